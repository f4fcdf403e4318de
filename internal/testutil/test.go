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

// Package test provides shared helpers for the application's test suite: a
// cached test configuration and canned model output for the scoring workflow.
package test

import (
	"log"
	"os"
	"testing"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
)

// StateManager caches the test configuration so the TOML files are decoded at
// most once per test binary.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is non-nil. Convenience to cut down on
// boilerplate in test bodies.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestScoreResponseText returns model output in the strict shape the
// parser expects, for exercising workflow paths without a live model.
func GetTestScoreResponseText() string {
	return `{"score": 7, "reason": "matches the niche", "confidence": 85}`
}

// GetTestScorePrompt returns a minimal prompt template with the same
// placeholders as the production one.
func GetTestScorePrompt() string {
	return "Niche: {{.NICHE}}\nAnswer with JSON shaped like: {{.EXAMPLE_JSON}}\n"
}

// SetupOS points the configuration loader at the test runtime. Tests run from
// their package directory, so the configs directory usually does not resolve
// and the compiled-in defaults apply; that is intentional.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig is the singleton accessor for the test configuration. The prompt
// template is always populated so workflow construction never panics.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(config)
		if config.PromptTemplates.ScorePrompt == "" {
			config.PromptTemplates.ScorePrompt = GetTestScorePrompt()
		}
		state.config = config
	}
	return state.config
}
