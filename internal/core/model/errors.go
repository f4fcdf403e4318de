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

// Package model defines the core data structures for the application. This
// file defines the error taxonomy for the scoring workflow. Every failure a
// stage can produce carries a stable, externally visible code so that the
// HTTP layer (and callers behind it) can distinguish, for example, a bad
// source URL from a provider quota rejection.
package model

import "fmt"

// ErrorCode identifies a failure class. The codes are part of the HTTP
// contract: error responses are `{"error": "<code>"}`.
type ErrorCode string

const (
	// Client-input errors.
	ErrCodeInvalidBody  ErrorCode = "invalid_body"  // Request body was not a JSON object.
	ErrCodeMissingURL   ErrorCode = "missing_url"   // No source URL in any accepted field.
	ErrCodeMissingNiche ErrorCode = "missing_niche" // No niche description in any accepted field.

	// Fetch-stage errors.
	ErrCodeFetchFailed   ErrorCode = "fetch_failed"    // Network-level failure reaching the source URL.
	ErrCodeFetchStatus   ErrorCode = "fetch_status"    // Source responded with a non-success status.
	ErrCodeFetchEmpty    ErrorCode = "fetch_empty"     // Source responded with a zero-length body.
	ErrCodeFetchHTML     ErrorCode = "fetch_html"      // Body is an HTML page, not media.
	ErrCodeFetchTooLarge ErrorCode = "fetch_too_large" // Body exceeds the configured size cap.

	// Upload-stage errors.
	ErrCodeUploadAuth   ErrorCode = "upload_auth"   // File Service rejected the credential.
	ErrCodeUploadQuota  ErrorCode = "upload_quota"  // File Service quota or rate limit.
	ErrCodeUploadFailed ErrorCode = "upload_failed" // Any other upload failure.

	// Readiness-stage errors.
	ErrCodeFileFailed   ErrorCode = "file_failed"    // Remote handle reached the FAILED state.
	ErrCodeFileNotReady ErrorCode = "file_not_ready" // Handle did not become ACTIVE before the deadline.

	// Generation-stage errors.
	ErrCodeGenerateAuth   ErrorCode = "generate_auth"   // Generation endpoint rejected the credential.
	ErrCodeGenerateQuota  ErrorCode = "generate_quota"  // Generation endpoint rate/quota rejection.
	ErrCodeGenerateFailed ErrorCode = "generate_failed" // Generation failed after the bounded retry.

	// No credential configured at all; the service fails closed.
	ErrCodeNoCredential ErrorCode = "no_credential"

	// Everything that escaped classification.
	ErrCodeInternal ErrorCode = "internal"
)

// StageError wraps a stage failure with its taxonomy code. Commands record a
// *StageError in the chain context; the service surfaces exactly one to the
// HTTP layer.
type StageError struct {
	Code ErrorCode
	Err  error
}

// NewStageError builds a StageError from a code and an underlying cause.
func NewStageError(code ErrorCode, err error) *StageError {
	return &StageError{Code: code, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// HTTPStatus maps an error code to the response status class mandated for it:
// 400 for client input, 401 for credentials, 429 for rate limiting, 502 for
// upstream failures, 500 otherwise.
func (e *StageError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidBody, ErrCodeMissingURL, ErrCodeMissingNiche:
		return 400
	case ErrCodeUploadAuth, ErrCodeGenerateAuth, ErrCodeNoCredential:
		return 401
	case ErrCodeUploadQuota, ErrCodeGenerateQuota:
		return 429
	case ErrCodeFetchFailed, ErrCodeFetchStatus, ErrCodeFetchEmpty,
		ErrCodeFetchHTML, ErrCodeFetchTooLarge, ErrCodeUploadFailed,
		ErrCodeFileFailed, ErrCodeFileNotReady, ErrCodeGenerateFailed:
		return 502
	default:
		return 500
	}
}
