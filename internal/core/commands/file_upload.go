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
// command that uploads the downloaded video to the Gemini File Service.
//
// Logic Flow:
// The Gemini models require a File Service handle to perform multimodal
// analysis on video content; raw bytes cannot be inlined at video sizes.
//
//  1. Receives the DownloadedAsset from the context.
//  2. Uploads the local file with UploadFileFromPath, passing the recorded
//     MIME type along.
//  3. Immediately registers the returned handle name with the context so the
//     remote file is deleted at the end of the request no matter what the
//     rest of the chain does.
//  4. Emits a RemoteAssetHandle snapshot for the readiness poller. The
//     provider processes uploads asynchronously, so the handle's initial
//     state is usually still pending.
//
// Upload failures are classified into auth, quota, and generic codes so each
// maps to a different HTTP response.
package commands

import (
	"github.com/google/generative-ai-go/genai"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/cor"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
)

// GetRemoteHandleParameterName returns the canonical context key under which
// the RemoteAssetHandle is stored. Commands that need the handle outside the
// chain's piped input (the scorer, for one) read it from this key.
func GetRemoteHandleParameterName() string {
	return "__REMOTE_ASSET_HANDLE__"
}

// FileUpload is a command that submits a local file to the File Service.
type FileUpload struct {
	cor.BaseCommand
	files cloud.FileService // The File Service surface of the Gemini client.
}

// NewFileUpload is the constructor for the FileUpload command.
func NewFileUpload(name string, files cloud.FileService) *FileUpload {
	return &FileUpload{BaseCommand: *cor.NewBaseCommand(name), files: files}
}

// toRemoteState maps the SDK's file state onto the application's enum.
func toRemoteState(state genai.FileState) model.RemoteAssetState {
	switch state {
	case genai.FileStateActive:
		return model.RemoteAssetStateActive
	case genai.FileStateFailed:
		return model.RemoteAssetStateFailed
	default:
		return model.RemoteAssetStatePending
	}
}

// Execute uploads the asset and records the resulting handle.
func (u *FileUpload) Execute(context cor.Context) {
	asset := context.Get(u.GetInputParam()).(*model.DownloadedAsset)

	file, err := u.files.UploadFileFromPath(context.GetContext(), asset.LocalPath,
		&genai.UploadFileOptions{MIMEType: asset.MIMEType})
	if err != nil {
		u.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(u.GetName(), cloud.ClassifyAPIError(err,
			model.ErrCodeUploadAuth, model.ErrCodeUploadQuota, model.ErrCodeUploadFailed))
		return
	}

	// Track before anything else can fail: the handle now exists remotely
	// and must be released when the request ends.
	context.AddRemoteFile(file.Name)

	handle := &model.RemoteAssetHandle{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: asset.MIMEType,
		State:    toRemoteState(file.State),
	}

	u.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetRemoteHandleParameterName(), handle)
	context.Add(u.GetOutputParam(), handle)
}
