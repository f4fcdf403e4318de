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

// Package workflow_test contains integration tests for the scoring pipeline,
// run end to end through the service with a local HTTP source, an in-memory
// File Service, and a canned model. The central assertions are the resource
// guarantees: whatever the outcome, the request leaves no temp file and no
// remote handle behind.
package workflow_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/services"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/workflow"
	test "github.com/ziadkhisya/pinflow-proxy/internal/testutil"
)

// fakeFileService is an in-memory File Service that tracks live handles, so
// tests can assert that every upload is eventually deleted.
type fakeFileService struct {
	mu        sync.Mutex
	nextID    int
	live      map[string]bool // Handles uploaded and not yet deleted.
	uploadErr error           // Fails uploads when set.
}

func newFakeFileService() *fakeFileService {
	return &fakeFileService{live: make(map[string]bool)}
}

func (f *fakeFileService) UploadFileFromPath(_ context.Context, _ string, opts *genai.UploadFileOptions) (*genai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.nextID++
	name := fmt.Sprintf("files/test-%d", f.nextID)
	f.live[name] = true
	return &genai.File{
		Name:     name,
		URI:      "https://files.fake/" + name,
		MIMEType: opts.MIMEType,
		State:    genai.FileStateActive,
	}, nil
}

func (f *fakeFileService) GetFile(_ context.Context, name string) (*genai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &genai.File{Name: name, URI: "https://files.fake/" + name, State: genai.FileStateActive}, nil
}

func (f *fakeFileService) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, name)
	return nil
}

func (f *fakeFileService) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// fakeGenerator replays one canned response, or an error.
type fakeGenerator struct {
	response string
	err      error
}

func (g *fakeGenerator) GenerateContent(context.Context, ...genai.Part) (*genai.GenerateContentResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(g.response)}},
		}},
	}, nil
}

// videoServer serves a small MP4-looking payload.
func videoServer() *httptest.Server {
	payload := make([]byte, 4096)
	copy(payload, []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'})
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
}

// newScoreService wires a full service from fakes and the test config.
func newScoreService(files *fakeFileService, generator *fakeGenerator) *services.ScoreService {
	config := test.GetConfig()
	return &services.ScoreService{
		Workflow: workflow.NewScoreWorkflow(config, files, generator),
		Files:    files,
	}
}

// tempFilesMatching counts files in the OS temp dir with the scoring prefix,
// so tests can detect leaks without owning the directory.
func tempFilesMatching(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "score-*"))
	assert.NoError(t, err)
	return len(matches)
}

// TestScoreWorkflowSuccess verifies the full pipeline: download, upload,
// activation, generation, parse — and that success leaves no temp file and no
// live remote handle.
func TestScoreWorkflowSuccess(t *testing.T) {
	server := videoServer()
	defer server.Close()

	files := newFakeFileService()
	generator := &fakeGenerator{response: `{"score": 8, "reason": "strong match", "confidence": 90}`}
	service := newScoreService(files, generator)

	before := tempFilesMatching(t)

	result, stageErr := service.Score(context.Background(), &model.ScoreRequest{
		SourceURL:        server.URL,
		NicheDescription: "woodworking",
	})

	assert.Nil(t, stageErr)
	assert.Equal(t, 8, result.Score)
	assert.Equal(t, "strong match", result.Reason)
	assert.Equal(t, 90, result.Confidence)

	assert.Equal(t, 0, files.liveCount())
	assert.Equal(t, before, tempFilesMatching(t))
}

// TestScoreWorkflowFetchFailure verifies that a bad source aborts the chain
// with the fetch code and touches no remote state.
func TestScoreWorkflowFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	files := newFakeFileService()
	service := newScoreService(files, &fakeGenerator{response: "unused"})

	result, stageErr := service.Score(context.Background(), &model.ScoreRequest{
		SourceURL:        server.URL,
		NicheDescription: "anything",
	})

	assert.Nil(t, result)
	assert.NotNil(t, stageErr)
	assert.Equal(t, model.ErrCodeFetchStatus, stageErr.Code)
	assert.Equal(t, 0, files.liveCount())
}

// TestScoreWorkflowUploadFailure verifies cleanup when the provider rejects
// the upload: the temp file must still be removed.
func TestScoreWorkflowUploadFailure(t *testing.T) {
	server := videoServer()
	defer server.Close()

	files := newFakeFileService()
	files.uploadErr = fmt.Errorf("the provided API key is invalid")
	service := newScoreService(files, &fakeGenerator{response: "unused"})

	before := tempFilesMatching(t)

	result, stageErr := service.Score(context.Background(), &model.ScoreRequest{
		SourceURL:        server.URL,
		NicheDescription: "anything",
	})

	assert.Nil(t, result)
	assert.NotNil(t, stageErr)
	assert.Equal(t, model.ErrCodeUploadAuth, stageErr.Code)
	assert.Equal(t, before, tempFilesMatching(t))
}

// TestScoreWorkflowGenerationFailure verifies the critical half of the
// resource invariant: when generation fails after the upload, the already
// created remote handle is still deleted.
func TestScoreWorkflowGenerationFailure(t *testing.T) {
	server := videoServer()
	defer server.Close()

	files := newFakeFileService()
	generator := &fakeGenerator{err: fmt.Errorf("permission denied for model")}
	service := newScoreService(files, generator)

	before := tempFilesMatching(t)

	result, stageErr := service.Score(context.Background(), &model.ScoreRequest{
		SourceURL:        server.URL,
		NicheDescription: "anything",
	})

	assert.Nil(t, result)
	assert.NotNil(t, stageErr)
	assert.Equal(t, model.ErrCodeGenerateAuth, stageErr.Code)

	assert.Equal(t, 0, files.liveCount())
	assert.Equal(t, before, tempFilesMatching(t))
}

// TestScoreWorkflowUnparsableOutput verifies the degradation contract: free
// text from the model yields HTTP success with the zero score, not an error.
func TestScoreWorkflowUnparsableOutput(t *testing.T) {
	server := videoServer()
	defer server.Close()

	files := newFakeFileService()
	generator := &fakeGenerator{response: "As a language model, I cannot evaluate this video."}
	service := newScoreService(files, generator)

	result, stageErr := service.Score(context.Background(), &model.ScoreRequest{
		SourceURL:        server.URL,
		NicheDescription: "anything",
	})

	assert.Nil(t, stageErr)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, 0, result.Confidence)
	assert.True(t, strings.Contains(result.Reason, "cannot evaluate"))
	assert.Equal(t, 0, files.liveCount())
}

// TestScoreWorkflowCanceledClient verifies the disconnect guarantee end to
// end: a request context canceled after upload still gets its remote handle
// deleted, because cleanup runs detached from cancellation.
func TestScoreWorkflowCanceledClient(t *testing.T) {
	server := videoServer()
	defer server.Close()

	files := newFakeFileService()
	generator := &fakeGenerator{response: `{"score": 5, "reason": "ok", "confidence": 50}`}
	service := newScoreService(files, generator)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // The client is gone before the workflow even starts.

	result, stageErr := service.Score(ctx, &model.ScoreRequest{
		SourceURL:        server.URL,
		NicheDescription: "anything",
	})

	// The fetch fails on the canceled context; what matters is that nothing
	// leaked on the way out.
	assert.Nil(t, result)
	assert.NotNil(t, stageErr)
	assert.Equal(t, 0, files.liveCount())
}

// TestScoreWorkflowConcurrentRequests verifies request isolation: parallel
// scorings against one shared service must not cross wires, and all of their
// resources must be released.
func TestScoreWorkflowConcurrentRequests(t *testing.T) {
	server := videoServer()
	defer server.Close()

	files := newFakeFileService()
	generator := &fakeGenerator{response: `{"score": 6, "reason": "fine", "confidence": 70}`}
	service := newScoreService(files, generator)

	const parallel = 8
	var wg sync.WaitGroup
	results := make([]*model.ScoreResult, parallel)
	stageErrs := make([]*model.StageError, parallel)

	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], stageErrs[i] = service.Score(context.Background(), &model.ScoreRequest{
				SourceURL:        server.URL,
				NicheDescription: fmt.Sprintf("niche-%d", i),
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < parallel; i++ {
		assert.Nil(t, stageErrs[i])
		assert.Equal(t, 6, results[i].Score)
	}
	assert.Equal(t, 0, files.liveCount())
}

// TestScoreWorkflowRejectsConfigWithoutTemplate documents the construction
// contract: the workflow cannot be built from a config with no prompt.
func TestScoreWorkflowRejectsConfigWithoutTemplate(t *testing.T) {
	config := cloud.NewConfig()
	config.PromptTemplates.ScorePrompt = "{{.BROKEN" // Unclosed action.

	assert.Panics(t, func() {
		workflow.NewScoreWorkflow(config, newFakeFileService(), &fakeGenerator{})
	})
}
