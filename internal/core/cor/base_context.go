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

// Package cor provides the building blocks for workflows. This file defines
// BaseContext, the default Context implementation: a property bag plus the
// cleanup sets that enforce the resource-lifetime invariant. A request must
// leave nothing behind — Close unlinks every tracked temp file and deletes
// every tracked remote handle, and it does so on a context detached from
// cancellation so a client disconnect cannot orphan a remote file.
package cor

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// remoteReleaseTimeout bounds each remote-handle deletion during Close so a
// hung provider cannot stall request teardown indefinitely.
const remoteReleaseTimeout = 15 * time.Second

// BaseContext is the default implementation of the Context interface.
type BaseContext struct {
	data        map[string]interface{} // Arbitrary key-value data shared between commands.
	errors      map[string]error       // Failures keyed by the command that produced them.
	tempFiles   []string               // Local temporary files to unlink in Close.
	remoteFiles []string               // Remote file handle names to delete in Close.
	releaser    RemoteFileReleaser     // Deleter for remote handles; nil disables remote cleanup.
	context     context.Context        // Request-scoped Go context.
}

// NewBaseContext creates an empty, ready-to-use context.
func NewBaseContext() Context {
	return &BaseContext{
		data:        make(map[string]interface{}),
		errors:      make(map[string]error),
		tempFiles:   make([]string, 0),
		remoteFiles: make([]string, 0),
	}
}

// SetContext sets the request-scoped Go context.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext returns the request-scoped Go context.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Add stores a key-value pair and returns the context for chaining.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// Get retrieves a value by key, or nil when absent.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

// Remove deletes a key-value pair.
func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// AddError records a failure keyed by the producing command's name.
func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

// GetErrors returns all recorded failures.
func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// HasErrors reports whether any command has failed.
func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// AddTempFile tracks a local temporary file for removal in Close.
func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

// GetTempFiles returns the tracked temporary file paths.
func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// AddRemoteFile tracks a remote file handle for deletion in Close.
func (c *BaseContext) AddRemoteFile(name string) {
	c.remoteFiles = append(c.remoteFiles, name)
}

// GetRemoteFiles returns the tracked remote handle names.
func (c *BaseContext) GetRemoteFiles() []string {
	return c.remoteFiles
}

// SetRemoteFileReleaser installs the deleter Close uses for remote handles.
func (c *BaseContext) SetRemoteFileReleaser(releaser RemoteFileReleaser) {
	c.releaser = releaser
}

// Close releases every tracked resource, best effort. Cleanup failures are
// logged, never surfaced: the caller's response must not depend on teardown.
func (c *BaseContext) Close() {
	for _, file := range c.tempFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temporary file", "path", file, "error", err)
		}
	}

	if c.releaser == nil {
		return
	}
	// Remote deletion must survive request cancellation: a disconnected
	// client still owns a handle on the provider side until we delete it.
	base := c.context
	if base == nil {
		base = context.Background()
	}
	detached := context.WithoutCancel(base)
	for _, name := range c.remoteFiles {
		releaseCtx, cancel := context.WithTimeout(detached, remoteReleaseTimeout)
		if err := c.releaser(releaseCtx, name); err != nil {
			slog.Warn("failed to delete remote file handle", "name", name, "error", err)
		}
		cancel()
	}
}
