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
// command that asks the generative model to score a video against a niche.
//
// Logic Flow:
//  1. Receives the active RemoteAssetHandle from the context, plus the
//     original ScoreRequest (stored under its canonical key by the service).
//  2. Builds the prompt from a Go template. The template is populated with
//     the niche description and with a marshaled example result, so the
//     model sees the exact JSON shape it must produce (few-shot prompting).
//  3. Sends the file reference and the prompt to the model through the
//     rate-limited generation helper, which handles the bounded retry for
//     transient provider failures and records token usage counters.
//  4. Emits the raw response text for the parsing command. No parsing
//     happens here; the model's output is not contractually structured even
//     when a JSON response format is requested.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/metric"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// GetScoreRequestParameterName returns the canonical context key holding the
// normalized ScoreRequest for the whole chain. The fetch command consumes the
// piped copy; this one survives for the scorer.
func GetScoreRequestParameterName() string {
	return "__SCORE_REQUEST__"
}

// ScoreGenerator is a command that produces the model's raw scoring text.
type ScoreGenerator struct {
	cor.BaseCommand
	generator    cloud.ContentGenerator // The rate-limited generative model.
	template     *template.Template     // Prompt template.
	maxRetries   int                    // Bounded retries for transient provider failures.
	retryBackoff time.Duration          // Fixed delay before a retry.

	geminiInputTokenCounter  metric.Int64Counter // Prompt tokens used.
	geminiOutputTokenCounter metric.Int64Counter // Response tokens generated.
	geminiRetryCounter       metric.Int64Counter // Retry attempts.
}

// NewScoreGenerator is the constructor for the ScoreGenerator command.
func NewScoreGenerator(
	name string,
	generator cloud.ContentGenerator,
	template *template.Template,
	maxRetries int,
	retryBackoff time.Duration) *ScoreGenerator {

	out := &ScoreGenerator{
		BaseCommand:  *cor.NewBaseCommand(name),
		generator:    generator,
		template:     template,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
	}

	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))

	return out
}

// GenerateParams builds the dynamic values injected into the prompt template.
func (t *ScoreGenerator) GenerateParams(context cor.Context) map[string]interface{} {
	params := make(map[string]interface{})

	req := context.Get(GetScoreRequestParameterName()).(*model.ScoreRequest)
	params["NICHE"] = req.NicheDescription

	// A complete well-formed example anchors the output shape far more
	// reliably than prose instructions alone.
	exampleResult, _ := json.Marshal(model.GetExampleScoreResult())
	params["EXAMPLE_JSON"] = string(exampleResult)
	return params
}

// IsExecutable additionally requires the original request to be present.
func (t *ScoreGenerator) IsExecutable(context cor.Context) bool {
	return t.BaseCommand.IsExecutable(context) &&
		context.Get(GetScoreRequestParameterName()) != nil
}

// Execute prompts the generative model and emits its raw text output.
func (t *ScoreGenerator) Execute(context cor.Context) {
	handle := context.Get(t.GetInputParam()).(*model.RemoteAssetHandle)

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(context)); err != nil {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), model.NewStageError(model.ErrCodeInternal,
			fmt.Errorf("failed to execute prompt template: %w", err)))
		return
	}

	out, err := cloud.GenerateScoreText(
		context.GetContext(),
		t.geminiInputTokenCounter,
		t.geminiOutputTokenCounter,
		t.geminiRetryCounter,
		0,
		t.maxRetries,
		t.retryBackoff,
		t.generator,
		genai.FileData{URI: handle.URI, MIMEType: handle.MIMEType},
		genai.Text(buffer.String()),
	)
	if err != nil {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), cloud.ClassifyAPIError(err,
			model.ErrCodeGenerateAuth, model.ErrCodeGenerateQuota, model.ErrCodeGenerateFailed))
		return
	}

	t.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(t.GetOutputParam(), out)
}
