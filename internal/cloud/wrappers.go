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

// Package cloud provides components for interacting with the Gemini API.
// This file wraps the generative model with a process-wide rate limiter
// (Decorator pattern). One wrapper instance is shared by every concurrent
// request, so the limiter is the single point that gates the generation
// endpoint: callers suspend in Wait until a token is available, and waiters
// are served in arrival order rather than dropped or reordered.
package cloud

import (
	"context"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
)

// ContentGenerator is the minimal generation surface the scoring commands
// depend on. *QuotaAwareGenerativeAIModel implements it in production; tests
// substitute fakes.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel decorates a genai.GenerativeModel with a
// token-bucket rate limiter.
type QuotaAwareGenerativeAIModel struct {
	Wrapped   *genai.GenerativeModel // The configured underlying model.
	RateLimit *rate.Limiter          // Shared token bucket gating all generation calls.
}

// NewQuotaAwareModel wraps the given model with a limiter that replenishes
// one token per second up to a burst of requestsPerSecond.
func NewQuotaAwareModel(wrapped *genai.GenerativeModel, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	return &QuotaAwareGenerativeAIModel{
		Wrapped:   wrapped,
		RateLimit: rate.NewLimiter(rate.Every(time.Second/1), requestsPerSecond),
	}
}

// GenerateContent blocks until the limiter grants a slot, then forwards the
// request to the wrapped model. Cancellation of ctx aborts the wait.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.Wrapped.GenerateContent(ctx, parts...)
}
