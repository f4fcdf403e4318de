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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that downloads the caller-supplied video URL to a local temporary
// file.
//
// Logic Flow:
//  1. Receives the normalized ScoreRequest from the context.
//  2. Performs an HTTP GET with a descriptive User-Agent (some hosts serve
//     interstitial pages to unidentified clients), following redirects.
//  3. Rejects non-success statuses, empty bodies, bodies that are actually
//     HTML (the signature of a consent or error page rather than media), and
//     bodies above the configured size cap. Each rejection carries its own
//     taxonomy code so callers can tell "bad URL" from "file too large".
//  4. Streams the body into a uniquely named temp file and records the
//     declared content type, falling back to magic-byte sniffing and finally
//     to "video/mp4" when the server declares nothing useful.
//  5. Registers the temp file with the context for unconditional cleanup and
//     emits a DownloadedAsset for the upload command.
package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// sniffLen is how many leading bytes are inspected for content detection,
// matching http.DetectContentType's window.
const sniffLen = 512

// defaultVideoMIME is used when neither the server nor the payload identifies
// the content type.
const defaultVideoMIME = "video/mp4"

// VideoFetch is a command that downloads a video URL into a temp file.
type VideoFetch struct {
	cor.BaseCommand
	httpClient   *http.Client // Client used for the download; follows redirects.
	userAgent    string       // Sent on every request.
	maxBodyBytes int64        // Hard cap on the payload size.
}

// NewVideoFetch is the constructor for the VideoFetch command.
func NewVideoFetch(name string, userAgent string, maxBodyBytes int64, timeout time.Duration) *VideoFetch {
	return &VideoFetch{
		BaseCommand:  *cor.NewBaseCommand(name),
		httpClient:   &http.Client{Timeout: timeout},
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
	}
}

// looksLikeHTML reports whether the payload is an HTML document in disguise:
// either declared as such or starting with an HTML preamble.
func looksLikeHTML(declaredType string, head []byte) bool {
	if strings.Contains(strings.ToLower(declaredType), "text/html") {
		return true
	}
	if strings.HasPrefix(http.DetectContentType(head), "text/html") {
		return true
	}
	prefix := strings.ToLower(strings.TrimSpace(string(head)))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}

// resolveMIMEType picks the asset MIME type: the declared Content-Type when
// it is specific, otherwise magic-byte detection, otherwise the video
// default.
func resolveMIMEType(declaredType string, head []byte) string {
	mime, _, _ := strings.Cut(declaredType, ";")
	mime = strings.TrimSpace(mime)
	if mime != "" && mime != "application/octet-stream" {
		return mime
	}
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return defaultVideoMIME
}

// Execute downloads the request's source URL into a temporary file.
func (v *VideoFetch) Execute(context cor.Context) {
	req := context.Get(v.GetInputParam()).(*model.ScoreRequest)

	httpReq, err := http.NewRequestWithContext(context.GetContext(), http.MethodGet, req.SourceURL, nil)
	if err != nil {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchFailed, err))
		return
	}
	httpReq.Header.Set("User-Agent", v.userAgent)

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchFailed, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchStatus,
			fmt.Errorf("source responded with status %d", resp.StatusCode)))
		return
	}
	if resp.ContentLength > v.maxBodyBytes {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchTooLarge,
			fmt.Errorf("declared length %d exceeds limit %d", resp.ContentLength, v.maxBodyBytes)))
		return
	}

	// Read the sniff window before committing anything to disk so an HTML
	// interstitial never produces a temp file.
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchFailed, err))
		return
	}
	head = head[:n]

	declaredType := resp.Header.Get("Content-Type")
	if n == 0 {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchEmpty,
			errors.New("source responded with an empty body")))
		return
	}
	if looksLikeHTML(declaredType, head) {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchHTML,
			errors.New("source responded with an HTML page instead of media")))
		return
	}

	// The temp file name carries a timestamp and a UUID on top of
	// CreateTemp's own randomness, so concurrent requests can never collide.
	tempFile, err := os.CreateTemp("", fmt.Sprintf("score-%d-%s-*", time.Now().UnixMilli(), uuid.NewString()))
	if err != nil {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeInternal,
			fmt.Errorf("could not create temp file: %w", err)))
		return
	}
	// Track immediately: the context must clean this up even if the copy
	// below fails halfway through.
	context.AddTempFile(tempFile.Name())

	written, err := io.Copy(tempFile, io.MultiReader(bytes.NewReader(head),
		io.LimitReader(resp.Body, v.maxBodyBytes-int64(n)+1)))
	closeErr := tempFile.Close()
	if err != nil {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchFailed,
			fmt.Errorf("failed to persist download after %d bytes: %w", written, err)))
		return
	}
	if closeErr != nil {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeInternal, closeErr))
		return
	}
	if written > v.maxBodyBytes {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.NewStageError(model.ErrCodeFetchTooLarge,
			fmt.Errorf("payload exceeds limit of %d bytes", v.maxBodyBytes)))
		return
	}

	v.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(v.GetOutputParam(), &model.DownloadedAsset{
		LocalPath: tempFile.Name(),
		MIMEType:  resolveMIMEType(declaredType, head),
		SizeBytes: written,
	})
}
