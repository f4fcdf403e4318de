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

// Package cor_test contains unit tests for the chain-of-responsibility
// building blocks: data piping between commands, stop-on-first-error
// semantics, and the resource cleanup guarantees of the context's Close.
package cor_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
)

// appendCommand appends its own suffix to the piped string, so test
// assertions can observe execution order.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	failed bool // When set, the command records an error instead of producing output.
	ran    *[]string
}

func newAppendCommand(name, suffix string, fail bool, ran *[]string) *appendCommand {
	return &appendCommand{
		BaseCommand: *cor.NewBaseCommand(name),
		suffix:      suffix,
		failed:      fail,
		ran:         ran,
	}
}

func (c *appendCommand) Execute(ctx cor.Context) {
	*c.ran = append(*c.ran, c.GetName())
	if c.failed {
		ctx.AddError(c.GetName(), errors.New("simulated failure"))
		return
	}
	in := ctx.Get(c.GetInputParam()).(string)
	ctx.Add(c.GetOutputParam(), in+c.suffix)
}

// TestChainPipesOutputToInput verifies that each command's output becomes the
// next command's input and that the final value lands in the output slot.
func TestChainPipesOutputToInput(t *testing.T) {
	ran := make([]string, 0)
	chain := cor.NewBaseChain("pipe-test")
	chain.AddCommand(newAppendCommand("first", "-a", false, &ran))
	chain.AddCommand(newAppendCommand("second", "-b", false, &ran))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, "seed")

	chain.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, "seed-a-b", chainCtx.Get(cor.CtxIn))
}

// TestChainStopsOnFirstError verifies that a recorded error halts the chain
// before later commands run.
func TestChainStopsOnFirstError(t *testing.T) {
	ran := make([]string, 0)
	chain := cor.NewBaseChain("stop-test")
	chain.AddCommand(newAppendCommand("first", "-a", false, &ran))
	chain.AddCommand(newAppendCommand("boom", "", true, &ran))
	chain.AddCommand(newAppendCommand("never", "-c", false, &ran))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, "seed")

	chain.Execute(chainCtx)

	assert.True(t, chainCtx.HasErrors())
	assert.Equal(t, []string{"first", "boom"}, ran)
	assert.Len(t, chainCtx.GetErrors(), 1)
}

// TestChainSkipsNonExecutableCommand verifies that a command whose input slot
// is empty is skipped without failing the chain.
func TestChainSkipsNonExecutableCommand(t *testing.T) {
	ran := make([]string, 0)
	chain := cor.NewBaseChain("skip-test")
	chain.AddCommand(newAppendCommand("orphan", "-a", false, &ran))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	// No CtxIn value: the default IsExecutable precondition fails.

	chain.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	assert.Empty(t, ran)
}

// TestCloseRemovesTempFiles verifies that every tracked temporary file is
// unlinked by Close and that an already-missing file is not an error.
func TestCloseRemovesTempFiles(t *testing.T) {
	tempFile, err := os.CreateTemp(t.TempDir(), "cleanup-*")
	assert.NoError(t, err)
	assert.NoError(t, tempFile.Close())

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.AddTempFile(tempFile.Name())
	chainCtx.AddTempFile(tempFile.Name() + "-already-gone")

	chainCtx.Close()

	_, err = os.Stat(tempFile.Name())
	assert.True(t, os.IsNotExist(err))
}

// TestCloseReleasesRemoteFiles verifies that Close invokes the releaser once
// per tracked handle, in registration order.
func TestCloseReleasesRemoteFiles(t *testing.T) {
	var mu sync.Mutex
	released := make([]string, 0)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.SetRemoteFileReleaser(func(_ context.Context, name string) error {
		mu.Lock()
		defer mu.Unlock()
		released = append(released, name)
		return nil
	})
	chainCtx.AddRemoteFile("files/abc123")
	chainCtx.AddRemoteFile("files/def456")

	chainCtx.Close()

	assert.Equal(t, []string{"files/abc123", "files/def456"}, released)
}

// TestCloseSurvivesCanceledRequest verifies the disconnect guarantee: remote
// cleanup still runs with a live context even when the request context was
// canceled before teardown.
func TestCloseSurvivesCanceledRequest(t *testing.T) {
	requestCtx, cancel := context.WithCancel(context.Background())
	cancel() // The client is already gone.

	var sawLiveContext bool
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(requestCtx)
	chainCtx.SetRemoteFileReleaser(func(ctx context.Context, _ string) error {
		sawLiveContext = ctx.Err() == nil
		return nil
	})
	chainCtx.AddRemoteFile("files/orphan")

	chainCtx.Close()

	assert.True(t, sawLiveContext)
}

// TestCloseToleratesReleaserFailure verifies that a failing releaser does not
// stop cleanup of the remaining handles.
func TestCloseToleratesReleaserFailure(t *testing.T) {
	released := make([]string, 0)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.SetRemoteFileReleaser(func(_ context.Context, name string) error {
		released = append(released, name)
		if name == "files/first" {
			return errors.New("permission denied")
		}
		return nil
	})
	chainCtx.AddRemoteFile("files/first")
	chainCtx.AddRemoteFile("files/second")

	chainCtx.Close()

	assert.Equal(t, []string{"files/first", "files/second"}, released)
}
