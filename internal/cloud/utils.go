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
// This file contains general-purpose helpers for the package: hierarchical
// configuration loading, structured classification of Gemini API errors, and
// a resilient text-generation wrapper with a bounded retry.
//
// Functions:
//   - LoadConfig: Hierarchical configuration loader. Reads a base TOML file
//     and then overwrites values with an environment-specific file selected
//     by an environment variable.
//   - ClassifyAPIError: Maps a Gemini API failure to the taxonomy code for
//     the stage that observed it, preferring the structured HTTP status on
//     googleapi.Error over message text.
//   - IsTransientAPIError: Reports whether a failure is a provider-side 5xx
//     worth one retry.
//   - GenerateScoreText: Executes a generation request with the bounded
//     retry policy, records token usage, and strips Markdown code fences
//     from the response text.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/api/googleapi"

	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// Cloud constants for configuration loading and API interaction policy.
const (
	ConfigFileBaseName  = ".env"                 // Base name for configuration files (".env.toml").
	ConfigFileExtension = ".toml"                // Extension for configuration files.
	ConfigSeparator     = "."                    // Separator in override file names (".env.local.toml").
	EnvConfigFilePrefix = "SCORER_CONFIG_PREFIX" // Environment variable naming the config directory.
	EnvConfigRuntime    = "SCORER_RUNTIME"       // Environment variable naming the runtime ("local", "test", ...).
	EnvAPIKey           = "GEMINI_API_KEY"       // Environment variable holding the Gemini credential.
)

// FileService is the slice of the Gemini client the upload, polling, and
// cleanup paths depend on. *genai.Client satisfies it; tests use fakes.
type FileService interface {
	UploadFileFromPath(ctx context.Context, path string, opts *genai.UploadFileOptions) (*genai.File, error)
	GetFile(ctx context.Context, name string) (*genai.File, error)
	DeleteFile(ctx context.Context, name string) error
}

// fileExists reports whether a file exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig populates baseConfig from TOML files. It first decodes the base
// configuration file and then, if present, an environment-specific override
// file; values in the override win. The config directory and runtime name
// come from environment variables, with "local" as the default runtime.
func LoadConfig(baseConfig interface{}) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "local"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	if fileExists(baseConfigFileName) {
		if _, err := toml.DecodeFile(baseConfigFileName, baseConfig); err != nil {
			slog.Error("failed to decode base configuration file", "path", baseConfigFileName, "error", err)
			os.Exit(1)
		}
	}

	if fileExists(envConfigFileName) {
		if _, err := toml.DecodeFile(envConfigFileName, baseConfig); err != nil {
			slog.Error("failed to decode environment configuration file", "path", envConfigFileName, "error", err)
			os.Exit(1)
		}
	}
}

// apiStatusCode extracts the HTTP status from a Gemini API error, or 0 when
// the error carries no structured status.
func apiStatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// ClassifyAPIError maps an API failure onto the given stage-specific codes.
// The structured status on googleapi.Error is authoritative; message text is
// inspected only when the SDK surfaced a bare error.
func ClassifyAPIError(err error, authCode, quotaCode, genericCode model.ErrorCode) *model.StageError {
	switch code := apiStatusCode(err); {
	case code == 401 || code == 403:
		return model.NewStageError(authCode, err)
	case code == 429:
		return model.NewStageError(quotaCode, err)
	case code != 0:
		return model.NewStageError(genericCode, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "permission"):
		return model.NewStageError(authCode, err)
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource exhausted"):
		return model.NewStageError(quotaCode, err)
	default:
		return model.NewStageError(genericCode, err)
	}
}

// IsTransientAPIError reports whether the failure looks like a provider-side
// internal error (5xx). Only these are worth a retry; auth and quota
// rejections will not heal within a request.
func IsTransientAPIError(err error) bool {
	if code := apiStatusCode(err); code != 0 {
		return code >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "internal error") || strings.Contains(msg, "internal server")
}

// GenerateScoreText sends a generation request through the rate-limited model
// and returns the concatenated text of the response. A transient provider
// failure is retried up to maxRetries times with a fixed backoff; any other
// failure is returned immediately.
func GenerateScoreText(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	tryCount int,
	maxRetries int,
	backoff time.Duration,
	generator ContentGenerator,
	parts ...genai.Part) (string, error) {

	resp, err := generator.GenerateContent(ctx, parts...)
	if err != nil {
		if IsTransientAPIError(err) && tryCount < maxRetries {
			retryCounter.Add(ctx, 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return GenerateScoreText(ctx, inputTokenCounter, outputTokenCounter, retryCounter,
				tryCount+1, maxRetries, backoff, generator, parts...)
		}
		return "", err
	}

	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			} else {
				sb.WriteString(fmt.Sprint(part))
			}
		}
	}

	value := strings.TrimSpace(sb.String())
	value = strings.TrimPrefix(value, "```json")
	value = strings.TrimPrefix(value, "```")
	value = strings.TrimSuffix(value, "```")
	return strings.TrimSpace(value), nil
}
