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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that turns the model's raw text into a ScoreResult.
//
// Parsing policy: the upstream model's output is not contractually
// structured, even when a JSON response format is requested, so an
// all-or-nothing parse would be too brittle. Parsing is an ordered chain of
// attempts, stopping at the first success:
//
//  1. Strict JSON parse of the whole text.
//  2. Brace-scan salvage: parse the substring between the outermost braces,
//     for responses that wrap the JSON in prose.
//  3. Default result: score 0, confidence 0, reason set to a truncated
//     prefix of the raw text.
//
// Every field is then coerced independently — score clamped to [0,10] and
// truncated to an integer, confidence clamped to [0,100] with fractional
// values rescaled, reason bounded in length — so one malformed field never
// invalidates the rest. This command never records a context error: a
// scoring failure degrades to "no match" instead of failing the request.
package commands

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// rawScoreResult holds the fields as raw JSON so numbers, numeric strings,
// and garbage can each be coerced on their own terms.
type rawScoreResult struct {
	Score      json.RawMessage `json:"score"`
	Reason     string          `json:"reason"`
	Confidence json.RawMessage `json:"confidence"`
}

// coerceNumber extracts a float from a raw JSON value, accepting numbers and
// numeric strings.
func coerceNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// truncateReason bounds the reason text without splitting a UTF-8 sequence.
func truncateReason(reason string, maxLen int) string {
	runes := []rune(strings.TrimSpace(reason))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen])
}

// braceSubstring returns the substring spanning the outermost brace pair, or
// "" when the text contains no such pair.
func braceSubstring(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// ParseScoreText applies the salvage chain to the model's raw output and
// returns a well-formed result in every case.
func ParseScoreText(text string, maxReasonLen int) *model.ScoreResult {
	raw := &rawScoreResult{}

	parsed := json.Unmarshal([]byte(text), raw) == nil
	if !parsed {
		if sub := braceSubstring(text); sub != "" {
			raw = &rawScoreResult{}
			parsed = json.Unmarshal([]byte(sub), raw) == nil
		}
	}
	if !parsed {
		return &model.ScoreResult{
			Score:      0,
			Confidence: 0,
			Reason:     truncateReason(text, maxReasonLen),
		}
	}

	out := &model.ScoreResult{}

	if score, ok := coerceNumber(raw.Score); ok {
		out.Score = int(math.Min(10, math.Max(0, math.Trunc(score))))
	}

	if confidence, ok := coerceNumber(raw.Confidence); ok {
		// Values in (0,1] are read as fractions and rescaled to percent.
		if confidence > 0 && confidence <= 1 {
			confidence = confidence * 100
		}
		out.Confidence = int(math.Min(100, math.Max(0, math.Round(confidence))))
	}

	out.Reason = truncateReason(raw.Reason, maxReasonLen)
	return out
}

// ScoreJSONToStruct is a command that parses the raw model output into a
// ScoreResult, degrading to a conservative default on unparsable input.
type ScoreJSONToStruct struct {
	cor.BaseCommand
	maxReasonLength int // Bound applied to the reason text.
}

// NewScoreJSONToStruct is the constructor for the ScoreJSONToStruct command.
func NewScoreJSONToStruct(name string, outputParamName string, maxReasonLength int) *ScoreJSONToStruct {
	out := ScoreJSONToStruct{BaseCommand: *cor.NewBaseCommand(name), maxReasonLength: maxReasonLength}
	out.OutputParamName = outputParamName
	return &out
}

// Execute parses the raw text from the previous command into a ScoreResult.
func (s *ScoreJSONToStruct) Execute(context cor.Context) {
	in := context.Get(s.GetInputParam()).(string)

	result := ParseScoreText(in, s.maxReasonLength)

	s.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(s.GetOutputParam(), result)
	context.Add(cor.CtxOut, result)
}
