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
// file provides the in-memory File Service fake shared by the upload and
// activation tests.
package commands_test

import (
	"context"
	"sync"

	"github.com/google/generative-ai-go/genai"
)

// fakeFileService is an in-memory stand-in for the Gemini File Service. Each
// hook can be overridden per test; unset hooks behave like a provider that
// accepts everything immediately.
type fakeFileService struct {
	mu sync.Mutex

	uploadErr error             // Returned from UploadFileFromPath when set.
	uploadRes *genai.File       // Returned from UploadFileFromPath when set.
	getErr    error             // Returned from GetFile when set.
	getStates []genai.FileState // Successive states returned by GetFile calls.

	uploads  []string // Local paths passed to UploadFileFromPath.
	getCalls int      // Number of GetFile invocations.
	deleted  []string // Handle names passed to DeleteFile.
}

func (f *fakeFileService) UploadFileFromPath(_ context.Context, path string, _ *genai.UploadFileOptions) (*genai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, path)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if f.uploadRes != nil {
		return f.uploadRes, nil
	}
	return &genai.File{
		Name:  "files/fake-upload",
		URI:   "https://files.fake/fake-upload",
		State: genai.FileStateActive,
	}, nil
}

func (f *fakeFileService) GetFile(_ context.Context, name string) (*genai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	state := genai.FileStateProcessing
	if len(f.getStates) > 0 {
		state = f.getStates[0]
		if len(f.getStates) > 1 {
			f.getStates = f.getStates[1:]
		}
	}
	f.getCalls++
	return &genai.File{
		Name:  name,
		URI:   "https://files.fake/" + name,
		State: state,
	}, nil
}

func (f *fakeFileService) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}
