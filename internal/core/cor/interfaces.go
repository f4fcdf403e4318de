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

// Package cor (Chain of Responsibility) provides the building blocks for
// workflows: a Command is an atomic unit of work, a Chain executes commands
// in order while piping each command's output into the next command's input,
// and a Context is the shared property bag for one workflow execution.
//
// Beyond data passing, the Context owns the resource-lifetime guarantees of a
// request: it tracks every local temporary file and every remote file handle
// created along the way, and Close releases all of them regardless of how the
// workflow ended.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the context keys the chain uses to pipe data between
// consecutive commands: after each command runs, the value under CtxOut is
// moved to CtxIn for the next command.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// RemoteFileReleaser deletes a remote file handle by name. The Context calls
// it during Close for every tracked handle. Implementations must be safe to
// call with an already-deleted handle.
type RemoteFileReleaser func(ctx context.Context, name string) error

// Context is the shared state for a single workflow execution. It carries the
// request-scoped Go context, arbitrary key-value data, collected errors, and
// the cleanup sets (temp files, remote handles).
type Context interface {
	// SetContext and GetContext manage the request-scoped Go context used for
	// cancellation and tracing.
	SetContext(context context.Context)
	GetContext() context.Context

	// Add stores a key-value pair; it returns the Context for chaining.
	Add(key string, value interface{}) Context

	// Get retrieves a value by key, or nil when absent.
	Get(key string) interface{}

	// Remove deletes a key-value pair.
	Remove(key string)

	// AddError records a failure, keyed by the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all recorded failures.
	GetErrors() map[string]error

	// HasErrors reports whether any command has failed.
	HasErrors() bool

	// AddTempFile tracks a local temporary file for removal in Close.
	AddTempFile(file string)

	// GetTempFiles returns the tracked temporary file paths.
	GetTempFiles() []string

	// AddRemoteFile tracks a remote file handle for deletion in Close.
	AddRemoteFile(name string)

	// GetRemoteFiles returns the tracked remote handle names.
	GetRemoteFiles() []string

	// SetRemoteFileReleaser installs the deleter used by Close for tracked
	// remote handles.
	SetRemoteFileReleaser(releaser RemoteFileReleaser)

	// Close releases every tracked resource, best effort. It must run on all
	// exit paths, including cancellation of the request context.
	Close()
}

// Executable is anything with core execution logic driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic, testable unit of work within a chain.
type Command interface {
	Executable

	// GetName returns the command's name for logging and telemetry.
	GetName() string

	// GetInputParam and GetOutputParam return the context keys the command
	// reads its primary input from and writes its primary output to.
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	// Telemetry accessors.
	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a sequence of commands. A Chain is itself a Command, so chains can
// be nested.
type Chain interface {
	Command

	// ContinueOnFailure controls whether the chain keeps executing after a
	// command records an error. The default is to stop at the first failure.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
