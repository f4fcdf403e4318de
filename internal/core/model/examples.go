// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the data structures for the application. This file
// provides factory functions for hardcoded example instances used for
// "few-shot" prompting: embedding a concrete example of the desired JSON
// output inside the prompt makes the generative model's responses far more
// consistent and parsable.
package model

// GetExampleScoreResult returns the sample result that is marshaled into the
// scoring prompt to show the model the exact output shape it must produce.
func GetExampleScoreResult() *ScoreResult {
	return &ScoreResult{
		Score:      8,
		Reason:     "The video demonstrates sourdough shaping techniques, which sits squarely inside the home-baking niche.",
		Confidence: 90,
	}
}
