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

// Package model defines the core data structures for the application. This
// file handles input normalization at the HTTP boundary. Different clients of
// the scoring endpoint have drifted over time and send the same two inputs
// under different field names; the ScorePayload struct accepts every known
// variant and Normalize collapses them into the canonical ScoreRequest so the
// ambiguity never propagates past the boundary.
package model

import "strings"

// ScorePayload is the wire shape of POST /score. Each logical input has one
// field per accepted naming convention; Normalize picks the first non-empty
// one in declaration order.
type ScorePayload struct {
	URL              string `json:"url"`
	ResolvedURL      string `json:"resolved_url"`
	ResolvedURLCamel string `json:"resolvedUrl"`
	SourceURL        string `json:"source_url"`
	SourceURLCamel   string `json:"sourceUrl"`

	Niche            string `json:"niche"`
	NicheBrief       string `json:"niche_brief"`
	NicheBriefCamel  string `json:"nicheBrief"`
	Brief            string `json:"brief"`
	NicheDesc        string `json:"niche_description"`
	NicheDescCamel   string `json:"nicheDescription"`
}

// firstNonEmpty returns the first value that is not blank after trimming.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Normalize maps the polymorphic payload into a canonical ScoreRequest.
// It returns a StageError with a field-specific code when a required input is
// absent from every accepted alias.
func (p *ScorePayload) Normalize() (*ScoreRequest, *StageError) {
	url := firstNonEmpty(p.URL, p.ResolvedURL, p.ResolvedURLCamel, p.SourceURL, p.SourceURLCamel)
	if url == "" {
		return nil, NewStageError(ErrCodeMissingURL, nil)
	}
	niche := firstNonEmpty(p.Niche, p.NicheBrief, p.NicheBriefCamel, p.Brief, p.NicheDesc, p.NicheDescCamel)
	if niche == "" {
		return nil, NewStageError(ErrCodeMissingNiche, nil)
	}
	return &ScoreRequest{SourceURL: url, NicheDescription: niche}, nil
}
