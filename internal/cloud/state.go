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
// This file initializes and holds the client objects the application needs.
// It acts as a small dependency injection container: NewCloudServiceClients
// is called once at startup and the resulting ServiceClients struct is shared
// by every request.
//
// Logic Flow:
//  1. NewCloudServiceClients validates that a credential is present.
//  2. It creates the Gemini client authenticated with the API key.
//  3. For each configured agent model it builds a genai.GenerativeModel with
//     the model's sampling parameters, system instructions, safety settings,
//     and response MIME type, then wraps it in the rate-limiting decorator.
//  4. The client and model map are bundled into ServiceClients.
package cloud

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrMissingAPIKey is returned when no Gemini credential is configured. The
// service fails closed: scoring requests are rejected until a key is set.
var ErrMissingAPIKey = errors.New("no Gemini API key configured; set " + EnvAPIKey)

// ServiceClients is the container for all external-service clients. The
// fields are read-only after startup; sharing one instance across concurrent
// requests is safe.
type ServiceClients struct {
	GenAIClient *genai.Client                           // Client for the Gemini API, including the File Service.
	AgentModels map[string]*QuotaAwareGenerativeAIModel // Configured, rate-limited models keyed by logical name.
}

// Close releases the underlying client connections. Useful in tests and for
// controlled shutdowns; in normal operation the root context manages them.
func (c *ServiceClients) Close() {
	_ = c.GenAIClient.Close()
}

// NewCloudServiceClients initializes the Gemini client and the configured
// agent models from the application configuration.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}

	agentModels := make(map[string]*QuotaAwareGenerativeAIModel)
	for amKey, values := range config.AgentModels {
		model := gc.GenerativeModel(values.Model)
		model.SetTemperature(values.Temperature)
		model.SetTopP(values.TopP)
		model.SetTopK(values.TopK)
		model.SetMaxOutputTokens(values.MaxTokens)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(values.SystemInstructions)},
		}
		model.SafetySettings = DefaultSafetySettings
		model.ResponseMIMEType = values.OutputFormat

		agentModels[amKey] = NewQuotaAwareModel(model, values.RateLimit)
	}

	return &ServiceClients{
		GenAIClient: gc,
		AgentModels: agentModels,
	}, nil
}
