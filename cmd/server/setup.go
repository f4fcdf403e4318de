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

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/services"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/workflow"
)

// agentModelKey is the logical name of the model used for scoring, both in
// the TOML configuration and in the clients container.
const agentModelKey = "scorer"

// StateManager holds the shared, read-only-after-startup components of the
// application.
type StateManager struct {
	config       *cloud.Config
	cloud        *cloud.ServiceClients
	scoreService *services.ScoreService
}

var state = &StateManager{}

// GetConfig loads the application configuration exactly once: an optional
// .env file, the TOML hierarchy, the credential from the environment, and a
// default scorer model when the TOML declares none.
func GetConfig() *cloud.Config {
	if state.config != nil {
		return state.config
	}

	// A local .env file is a development convenience; absence is normal.
	_ = godotenv.Load()

	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			slog.Error("failed to set config prefix", "error", err)
			os.Exit(1)
		}
	}

	config := cloud.NewConfig()
	cloud.LoadConfig(config)
	config.APIKey = os.Getenv(cloud.EnvAPIKey)

	if _, ok := config.AgentModels[agentModelKey]; !ok {
		config.AgentModels[agentModelKey] = cloud.GeminiLLMModel{
			Model:              "gemini-1.5-flash",
			SystemInstructions: "You are a strict content analyst. You always answer with a single JSON object and nothing else.",
			Temperature:        0.1,
			TopP:               0.95,
			TopK:               40,
			MaxTokens:          1024,
			OutputFormat:       "application/json",
			RateLimit:          5,
		}
	}

	state.config = config
	return state.config
}

// InitState wires the Gemini clients, the scoring workflow, and the scoring
// service. It returns an error instead of exiting so main can decide to keep
// serving /health when the credential is absent.
func InitState(ctx context.Context) error {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	scoreWorkflow := workflow.NewScoreWorkflow(
		config,
		cloudClients.GenAIClient,
		cloudClients.AgentModels[agentModelKey])

	state.scoreService = &services.ScoreService{
		Workflow: scoreWorkflow,
		Files:    cloudClients.GenAIClient,
	}
	return nil
}
