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

// Package workflow defines the high-level orchestrations that combine
// commands into coherent pipelines. This file implements the niche-relevance
// scoring workflow: fetch the video, upload it to the File Service, wait for
// the handle to activate, prompt the model, parse the output. Resource
// cleanup is not a chain step — it belongs to the context's Close, so it
// runs whether or not the chain completed.
package workflow

import (
	"text/template"
	"time"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/commands"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
)

// ScoreResultParamName is the context key under which the final ScoreResult
// is stored by the last command of the chain.
const ScoreResultParamName = "__score_result__"

// ScoreWorkflow orchestrates the scoring of one video against one niche.
// A single instance is shared by all requests; per-request state lives in
// the cor.Context each execution receives.
type ScoreWorkflow struct {
	cor.BaseCommand
	config        *cloud.Config
	files         cloud.FileService
	generator     cloud.ContentGenerator
	scoreTemplate *template.Template
	chain         cor.Chain
}

// Execute runs the scoring chain against the given context.
func (m *ScoreWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

// initializeChain builds the command sequence. The chain stops at the first
// command that records an error; the parse command never records one.
func (m *ScoreWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())

	// Step 1: Download the source URL to a uniquely named temp file, with
	// status, size, emptiness, and HTML-disguise checks.
	out.AddCommand(commands.NewVideoFetch(
		"video-fetch",
		m.config.Fetcher.UserAgent,
		m.config.Fetcher.MaxBodyBytes,
		time.Duration(m.config.Fetcher.TimeoutInSeconds)*time.Second))

	// Step 2: Upload the temp file to the File Service and register the
	// resulting handle for end-of-request deletion.
	out.AddCommand(commands.NewFileUpload("file-upload", m.files))

	// Step 3: Poll the handle until the provider reports it active, with a
	// hard deadline. Generation against a pending handle fails spuriously.
	out.AddCommand(commands.NewFileActivationWait(
		"file-activation-wait",
		m.files,
		time.Duration(m.config.Poller.IntervalInMillis)*time.Millisecond,
		time.Duration(m.config.Poller.TimeoutInSeconds)*time.Second))

	// Step 4: Prompt the model with the file reference and the niche brief;
	// transient provider failures get one bounded retry.
	out.AddCommand(commands.NewScoreGenerator(
		"generate-score",
		m.generator,
		m.scoreTemplate,
		m.config.Scorer.MaxRetries,
		time.Duration(m.config.Scorer.RetryBackoffInSeconds)*time.Second))

	// Step 5: Salvage-parse the raw output into a ScoreResult. Unparsable
	// output degrades to a default result rather than failing the request.
	out.AddCommand(commands.NewScoreJSONToStruct(
		"convert-score-result",
		ScoreResultParamName,
		m.config.Scorer.MaxReasonLength))

	m.chain = out
}

// NewScoreWorkflow builds the scoring pipeline from the application
// configuration and the shared service clients.
func NewScoreWorkflow(
	config *cloud.Config,
	files cloud.FileService,
	generator cloud.ContentGenerator) *ScoreWorkflow {

	scoreTemplate, err := template.New("score-template").Parse(config.PromptTemplates.ScorePrompt)
	if err != nil {
		panic(err) // The app cannot run without a valid prompt template.
	}

	out := &ScoreWorkflow{
		BaseCommand:   *cor.NewBaseCommand("score-workflow"),
		config:        config,
		files:         files,
		generator:     generator,
		scoreTemplate: scoreTemplate,
	}
	out.initializeChain()
	return out
}
