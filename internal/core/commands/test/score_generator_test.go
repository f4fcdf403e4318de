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

// Package commands_test contains unit tests for the workflow commands. This
// file exercises the scoring prompt command: template population, the file
// reference sent alongside the prompt, and failure classification.
package commands_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/ziadkhisya/pinflow-proxy/internal/core/commands"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// fakeGenerator is an in-memory stand-in for the rate-limited model. It
// records the parts of every request and replays canned responses or errors.
type fakeGenerator struct {
	response string // Text returned on success.
	err      error  // Returned instead when set.
	parts    [][]genai.Part
}

func (g *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.parts = append(g.parts, parts)
	if g.err != nil {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(g.response)}},
		}},
	}, nil
}

// newGeneratorContext seeds a chain context the way the poller leaves it: an
// active handle in the piped slot plus the original request under its
// canonical key.
func newGeneratorContext(niche string) cor.Context {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, &model.RemoteAssetHandle{
		Name:     "files/active-1",
		URI:      "https://files.fake/active-1",
		MIMEType: "video/mp4",
		State:    model.RemoteAssetStateActive,
	})
	chainCtx.Add(commands.GetScoreRequestParameterName(), &model.ScoreRequest{
		SourceURL:        "https://example.com/v.mp4",
		NicheDescription: niche,
	})
	return chainCtx
}

func scoreTemplate(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.New("score").Parse("Niche: {{.NICHE}}\nShape: {{.EXAMPLE_JSON}}\n")
	assert.NoError(t, err)
	return tmpl
}

// TestScoreGeneratorSuccess verifies that the prompt carries the niche and
// the example JSON, that the file reference precedes the prompt, and that the
// raw response text is piped onward unparsed.
func TestScoreGeneratorSuccess(t *testing.T) {
	generator := &fakeGenerator{response: `{"score": 7, "reason": "matches", "confidence": 85}`}
	chainCtx := newGeneratorContext("urban beekeeping")

	command := commands.NewScoreGenerator("generate-score", generator, scoreTemplate(t), 1, 0)
	command.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	assert.Equal(t, generator.response, chainCtx.Get(cor.CtxOut))

	assert.Len(t, generator.parts, 1)
	parts := generator.parts[0]
	assert.Len(t, parts, 2)

	fileData, ok := parts[0].(genai.FileData)
	assert.True(t, ok)
	assert.Equal(t, "https://files.fake/active-1", fileData.URI)
	assert.Equal(t, "video/mp4", fileData.MIMEType)

	prompt := string(parts[1].(genai.Text))
	assert.Contains(t, prompt, "urban beekeeping")
	example, _ := json.Marshal(model.GetExampleScoreResult())
	assert.Contains(t, prompt, string(example))
}

// TestScoreGeneratorStripsCodeFences verifies that a fenced response reaches
// the parser without its Markdown wrapper.
func TestScoreGeneratorStripsCodeFences(t *testing.T) {
	generator := &fakeGenerator{response: "```json\n{\"score\": 5, \"reason\": \"ok\", \"confidence\": 50}\n```"}
	chainCtx := newGeneratorContext("any niche")

	command := commands.NewScoreGenerator("generate-score", generator, scoreTemplate(t), 1, 0)
	command.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	out := chainCtx.Get(cor.CtxOut).(string)
	assert.False(t, strings.Contains(out, "```"))
	assert.Equal(t, `{"score": 5, "reason": "ok", "confidence": 50}`, out)
}

// TestScoreGeneratorErrorClassification verifies that provider failures map
// to generation-stage codes.
func TestScoreGeneratorErrorClassification(t *testing.T) {
	cases := map[model.ErrorCode]error{
		model.ErrCodeGenerateAuth:   &googleapi.Error{Code: 401, Message: "unauthenticated"},
		model.ErrCodeGenerateQuota:  &googleapi.Error{Code: 429, Message: "resource exhausted"},
		model.ErrCodeGenerateFailed: &googleapi.Error{Code: 400, Message: "bad request"},
	}

	for want, genErr := range cases {
		generator := &fakeGenerator{err: genErr}
		chainCtx := newGeneratorContext("any niche")

		command := commands.NewScoreGenerator("generate-score", generator, scoreTemplate(t), 0, 0)
		command.Execute(chainCtx)

		requireStageError(t, chainCtx, want)
	}
}

// TestScoreGeneratorNotExecutableWithoutRequest verifies the extra
// precondition: without the canonical request key the command does not run.
func TestScoreGeneratorNotExecutableWithoutRequest(t *testing.T) {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, &model.RemoteAssetHandle{Name: "files/x", State: model.RemoteAssetStateActive})

	command := commands.NewScoreGenerator("generate-score", &fakeGenerator{}, scoreTemplate(t), 1, 0)
	assert.False(t, command.IsExecutable(chainCtx))
}

// TestScoreGeneratorRetriesTransient verifies the bounded retry: one 500
// followed by a success yields a result, while retries exhausted yields the
// generation failure code.
func TestScoreGeneratorRetriesTransient(t *testing.T) {
	// The fake returns the error until cleared, so with zero retries the
	// command must fail...
	generator := &fakeGenerator{err: &googleapi.Error{Code: 500, Message: "internal error"}}
	chainCtx := newGeneratorContext("any niche")
	command := commands.NewScoreGenerator("generate-score", generator, scoreTemplate(t), 0, 0)
	command.Execute(chainCtx)
	requireStageError(t, chainCtx, model.ErrCodeGenerateFailed)

	// ...and with one retry and a recovering provider it must succeed.
	recovering := &recoveringGenerator{
		failures: 1,
		err:      &googleapi.Error{Code: 500, Message: "internal error"},
		response: `{"score": 3, "reason": "weak match", "confidence": 40}`,
	}
	chainCtx = newGeneratorContext("any niche")
	command = commands.NewScoreGenerator("generate-score", recovering, scoreTemplate(t), 1, time.Millisecond)
	command.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	assert.Equal(t, recovering.response, chainCtx.Get(cor.CtxOut))
	assert.Equal(t, 2, recovering.calls)
}

// recoveringGenerator fails a fixed number of times and then succeeds.
type recoveringGenerator struct {
	failures int
	err      error
	response string
	calls    int
}

func (g *recoveringGenerator) GenerateContent(_ context.Context, _ ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.calls++
	if g.calls <= g.failures {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(g.response)}},
		}},
	}, nil
}
