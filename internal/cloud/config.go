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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, along with the client container and helpers for
// talking to the Gemini API. This file centralizes the configuration structs.
//
// Structs:
//   - GeminiLLMModel: Configuration for one generative model, including its
//     sampling parameters and request rate limit.
//   - Fetcher: Limits and identity for the video download stage.
//   - Poller: Interval and deadline for the file-readiness polling stage.
//   - Scorer: Parsing bounds and retry policy for the scoring stage.
//   - PromptTemplates: Text templates for prompts sent to the model.
//   - Config: The top-level aggregate, populated by LoadConfig.
package cloud

import "github.com/google/generative-ai-go/genai"

// DefaultSafetySettings disables content blocking for all harm categories.
// The service scores arbitrary caller-supplied videos; a safety block would
// surface as an opaque empty response, so filtering is left to the caller.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockNone,
	},
}

// GeminiLLMModel holds the configuration for a single generative model.
type GeminiLLMModel struct {
	Model              string  `toml:"model"`               // The Gemini model identifier.
	SystemInstructions string  `toml:"system_instructions"` // System instructions applied to every request.
	Temperature        float32 `toml:"temperature"`         // Sampling temperature.
	TopP               float32 `toml:"top_p"`               // Nucleus sampling parameter.
	TopK               int32   `toml:"top_k"`               // Top-k sampling parameter.
	MaxTokens          int32   `toml:"max_tokens"`          // Maximum output tokens.
	OutputFormat       string  `toml:"output_format"`       // Response MIME type (e.g. "application/json").
	RateLimit          int     `toml:"rate_limit"`          // Requests per second across all concurrent callers.
}

// Fetcher bounds the video download stage.
type Fetcher struct {
	UserAgent        string `toml:"user_agent"`         // Sent on every download request; some hosts gate on it.
	MaxBodyBytes     int64  `toml:"max_body_bytes"`     // Hard cap on the downloaded payload size.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // Per-download request timeout.
}

// Poller configures the readiness polling loop for uploaded files.
type Poller struct {
	IntervalInMillis int `toml:"interval_in_millis"` // Sleep between status queries.
	TimeoutInSeconds int `toml:"timeout_in_seconds"` // Hard deadline for the handle to become active.
}

// Scorer configures result parsing and the generation retry policy.
type Scorer struct {
	MaxReasonLength       int `toml:"max_reason_length"`        // Reason text is truncated to this many characters.
	MaxRetries            int `toml:"max_retries"`              // Bounded retries for transient generation failures.
	RetryBackoffInSeconds int `toml:"retry_backoff_in_seconds"` // Fixed delay before a retry attempt.
}

// PromptTemplates holds the text templates for prompts sent to the model.
type PromptTemplates struct {
	ScorePrompt string `toml:"score"` // Template for the niche-relevance scoring prompt.
}

// Config is the top-level application configuration, loaded from TOML files.
// The Gemini credential is deliberately absent from the TOML schema: it is
// read from the environment at startup and injected into APIKey.
type Config struct {
	Application struct {
		Name string `toml:"name"` // Application name, used in logs and the liveness banner.
		Port int    `toml:"port"` // HTTP listen port.
	} `toml:"application"`
	Fetcher         Fetcher                   `toml:"fetcher"`
	Poller          Poller                    `toml:"poller"`
	Scorer          Scorer                    `toml:"scorer"`
	PromptTemplates PromptTemplates           `toml:"prompt_templates"`
	AgentModels     map[string]GeminiLLMModel `toml:"agent_models"`

	APIKey string `toml:"-"` // Gemini API key, from the GEMINI_API_KEY environment variable.
}

// NewConfig creates a Config with initialized maps and the documented
// defaults. TOML files loaded on top of it override any of these values.
func NewConfig() *Config {
	out := &Config{AgentModels: make(map[string]GeminiLLMModel)}
	out.Application.Name = "pinflow-proxy"
	out.Application.Port = 8080
	out.Fetcher.UserAgent = "pinflow-proxy/1.0 (+video relevance scoring)"
	out.Fetcher.MaxBodyBytes = 100 << 20
	out.Fetcher.TimeoutInSeconds = 120
	out.Poller.IntervalInMillis = 750
	out.Poller.TimeoutInSeconds = 60
	out.Scorer.MaxReasonLength = 500
	out.Scorer.MaxRetries = 1
	out.Scorer.RetryBackoffInSeconds = 2
	return out
}
