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
// BaseCommand, the foundation every concrete command embeds: a name, the
// default input/output parameter handling that makes chain piping work, and
// OpenTelemetry instrumentation (tracer, meter, success/error counters).
// Without an OTel SDK installed the global providers are no-ops, so the
// instrumentation costs nothing in plain deployments.
package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// meterName is the namespace under which all command metrics are registered.
const meterName = "github.com/ziadkhisya/pinflow-proxy"

// BaseCommand is the default implementation of the Command interface.
type BaseCommand struct {
	Name            string              // Unique name, used for tracing and metrics.
	InputParamName  string              // Context key for the command's primary input.
	OutputParamName string              // Context key for the command's primary output.
	Tracer          trace.Tracer        // OpenTelemetry tracer for spans.
	Meter           metric.Meter        // OpenTelemetry meter for counters.
	SuccessCounter  metric.Int64Counter // Incremented on successful execution.
	ErrorCounter    metric.Int64Counter // Incremented on failure.
}

// NewBaseCommand creates a BaseCommand with its telemetry initialized from
// the global OpenTelemetry providers.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(meterName)

	successCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.success", name))
	if err != nil {
		slog.Warn("failed to create success counter", "command", name, "error", err)
	}
	errorCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.error", name))
	if err != nil {
		slog.Warn("failed to create error counter", "command", name, "error", err)
	}

	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: successCounter,
		ErrorCounter:   errorCounter,
	}
}

// GetName returns the name of the command.
func (c *BaseCommand) GetName() string {
	return c.Name
}

// GetInputParam returns the context key for the command's primary input,
// defaulting to the chain's piped input slot.
func (c *BaseCommand) GetInputParam() string {
	if len(c.InputParamName) > 0 {
		return c.InputParamName
	}
	return CtxIn
}

// GetOutputParam returns the context key for the command's primary output,
// defaulting to the chain's piped output slot.
func (c *BaseCommand) GetOutputParam() string {
	if len(c.OutputParamName) > 0 {
		return c.OutputParamName
	}
	return CtxOut
}

// IsExecutable is the default precondition: the context must carry a value in
// the command's input slot.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.Get(c.GetInputParam()) != nil
}

// GetTracer returns the command's tracer.
func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

// GetMeter returns the command's meter.
func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

// GetSuccessCounter returns the counter incremented on success.
func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

// GetErrorCounter returns the counter incremented on failure.
func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

// Execute is a no-op on the base type; concrete commands override it.
func (c *BaseCommand) Execute(_ Context) {}
