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
// command that waits for an uploaded file to finish provider-side processing.
//
// Logic Flow:
// The File Service processes uploads asynchronously; sending a generation
// request against a still-processing handle is a documented source of
// spurious failures. This command polls the handle's state at a fixed
// interval until it becomes ACTIVE, observes FAILED, or runs out of time.
//
//  1. Receives the RemoteAssetHandle from the context.
//  2. If the handle is already active (small uploads often are), passes it
//     through untouched.
//  3. Otherwise sleeps for the interval — via a timer select that also honors
//     request cancellation, never a busy loop — then queries GetFile.
//  4. FAILED aborts immediately with its own code; exhausting the deadline
//     yields the distinct "not ready in time" code. The two are deliberately
//     distinguishable because a caller can usefully retry the latter.
package commands

import (
	"fmt"
	"time"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// FileActivationWait is a command that polls a remote handle until it is
// ready for generation.
type FileActivationWait struct {
	cor.BaseCommand
	files    cloud.FileService // The File Service surface used for status queries.
	interval time.Duration     // Sleep between queries.
	deadline time.Duration     // Hard bound on the total wait.
}

// NewFileActivationWait is the constructor for the FileActivationWait command.
func NewFileActivationWait(name string, files cloud.FileService, interval, deadline time.Duration) *FileActivationWait {
	return &FileActivationWait{
		BaseCommand: *cor.NewBaseCommand(name),
		files:       files,
		interval:    interval,
		deadline:    deadline,
	}
}

// Execute polls the handle's state until active, failed, or timed out.
func (w *FileActivationWait) Execute(context cor.Context) {
	handle := context.Get(w.GetInputParam()).(*model.RemoteAssetHandle)

	goCtx := context.GetContext()
	expiry := time.Now().Add(w.deadline)

	for handle.State != model.RemoteAssetStateActive {
		if handle.State == model.RemoteAssetStateFailed {
			w.GetErrorCounter().Add(goCtx, 1)
			context.AddError(w.GetName(), model.NewStageError(model.ErrCodeFileFailed,
				fmt.Errorf("remote processing failed for %s", handle.Name)))
			return
		}
		if time.Now().After(expiry) {
			w.GetErrorCounter().Add(goCtx, 1)
			context.AddError(w.GetName(), model.NewStageError(model.ErrCodeFileNotReady,
				fmt.Errorf("handle %s not active within %s", handle.Name, w.deadline)))
			return
		}

		select {
		case <-time.After(w.interval):
		case <-goCtx.Done():
			w.GetErrorCounter().Add(goCtx, 1)
			context.AddError(w.GetName(), model.NewStageError(model.ErrCodeInternal, goCtx.Err()))
			return
		}

		file, err := w.files.GetFile(goCtx, handle.Name)
		if err != nil {
			w.GetErrorCounter().Add(goCtx, 1)
			context.AddError(w.GetName(), cloud.ClassifyAPIError(err,
				model.ErrCodeUploadAuth, model.ErrCodeUploadQuota, model.ErrCodeFileFailed))
			return
		}
		handle.State = toRemoteState(file.State)
		if file.URI != "" {
			handle.URI = file.URI
		}
	}

	w.GetSuccessCounter().Add(goCtx, 1)
	context.Add(w.GetOutputParam(), handle)
}
