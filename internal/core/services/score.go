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

// Package services contains the request-scoped application services that sit
// between the HTTP layer and the workflows. This file implements the scoring
// service: it owns the per-request chain context, guarantees resource
// cleanup, and reduces the chain's error map to the single StageError the
// HTTP layer reports.
package services

import (
	"context"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/commands"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/workflow"
)

// ScoreService executes the scoring workflow for one request at a time.
// The struct itself is stateless and shared across requests.
type ScoreService struct {
	Workflow *workflow.ScoreWorkflow // The shared scoring pipeline.
	Files    cloud.FileService       // Used by cleanup to delete remote handles.
}

// Score runs the full scoring pipeline for the given request. On success it
// returns the parsed result; on failure, the StageError of the stage that
// aborted the chain. Either way, the local temp file and any remote handle
// created for this request are released before Score returns — Close runs on
// a cancellation-detached context, so a dropped client still gets cleanup.
func (s *ScoreService) Score(ctx context.Context, req *model.ScoreRequest) (*model.ScoreResult, *model.StageError) {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	chainCtx.SetRemoteFileReleaser(s.Files.DeleteFile)
	defer chainCtx.Close()

	// The piped copy feeds the fetch command; the canonical key survives the
	// whole chain for the scorer's prompt.
	chainCtx.Add(cor.CtxIn, req)
	chainCtx.Add(commands.GetScoreRequestParameterName(), req)

	s.Workflow.Execute(chainCtx)

	if chainCtx.HasErrors() {
		return nil, reduceErrors(chainCtx.GetErrors())
	}

	result, ok := chainCtx.Get(workflow.ScoreResultParamName).(*model.ScoreResult)
	if !ok {
		return nil, model.NewStageError(model.ErrCodeInternal, nil)
	}
	return result, nil
}

// reduceErrors picks the StageError to surface. The chain stops at the first
// failure, so the map nearly always holds exactly one entry; anything that
// is not a StageError is wrapped as internal.
func reduceErrors(errs map[string]error) *model.StageError {
	for _, err := range errs {
		if stageErr, ok := err.(*model.StageError); ok {
			return stageErr
		}
	}
	for _, err := range errs {
		return model.NewStageError(model.ErrCodeInternal, err)
	}
	return model.NewStageError(model.ErrCodeInternal, nil)
}
