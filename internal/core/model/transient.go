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

// Package model defines the core data structures for the application.
// Every type in this file is transient: it lives for the duration of a single
// scoring request and is never persisted. The structs act as the typed
// payloads that flow between the commands of the scoring chain.
package model

// ScoreRequest is the canonical, normalized form of an inbound scoring
// request. The HTTP boundary accepts several field-name variants (see
// ScorePayload in normalize.go); everything past that boundary works with
// this struct only.
type ScoreRequest struct {
	SourceURL        string `json:"source_url"`        // The HTTP(S) URL of the video to score.
	NicheDescription string `json:"niche_description"` // Natural-language description of the topical target.
}

// DownloadedAsset describes a video that has been fetched to the local
// filesystem. The file at LocalPath is owned exclusively by the request that
// created it and is unlinked when the request's context is closed.
type DownloadedAsset struct {
	LocalPath string // Absolute path of the temporary file holding the video bytes.
	MIMEType  string // Declared or sniffed content type (falls back to "video/mp4").
	SizeBytes int64  // Number of bytes written to LocalPath.
}

// RemoteAssetHandle is the application's view of a file uploaded to the
// Gemini File Service. The remote provider owns the authoritative state;
// this struct is a snapshot taken at upload or poll time.
type RemoteAssetHandle struct {
	Name     string           // Unique resource name, used for GetFile/DeleteFile calls.
	URI      string           // URI referenced in generation requests.
	MIMEType string           // MIME type recorded at upload time.
	State    RemoteAssetState // Last observed processing state.
}

// RemoteAssetState mirrors the provider's file processing states.
type RemoteAssetState int

const (
	RemoteAssetStatePending RemoteAssetState = iota // Still processing; not usable for generation yet.
	RemoteAssetStateActive                          // Ready for generation requests.
	RemoteAssetStateFailed                          // Processing failed on the provider side.
)

// ScoreResult is the structured outcome of a scoring request. It is produced
// by parsing the model's free-form text output; each field is coerced
// independently, so a malformed field degrades to its default without
// invalidating the rest of the result.
type ScoreResult struct {
	Score      int    `json:"score"`      // Relevance score, clamped to [0, 10].
	Reason     string `json:"reason"`     // Short textual justification, bounded in length.
	Confidence int    `json:"confidence"` // Model confidence, clamped to [0, 100].
}
