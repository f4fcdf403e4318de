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
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ziadkhisya/pinflow-proxy/internal/cloud"
	"github.com/ziadkhisya/pinflow-proxy/internal/core/model"
	"github.com/ziadkhisya/pinflow-proxy/internal/telemetry"
)

func main() {
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()

	// A missing credential is not fatal at startup: the server comes up,
	// /health reports the condition, and /score fails closed with 401.
	if err := InitState(ctx); err != nil {
		if errors.Is(err, cloud.ErrMissingAPIKey) {
			slog.Warn("no Gemini API key configured; scoring requests will be rejected",
				"env", cloud.EnvAPIKey)
		} else {
			slog.Error("failed to initialize service clients", "error", err)
			log.Fatal(err)
		}
	} else {
		defer state.cloud.Close()
	}
	slog.Info("Initialized State")

	r := gin.Default()

	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(cors.Default())

	ScoreRouter(r, config)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Application.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen: ", "error", err)
		}
	}()
	slog.Info("Server Ready", "port", config.Application.Port)

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	// In-flight scoring requests get 5 seconds to drain.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed:", "error", err)
	}

	log.Println("Server exiting")
}

// ScoreRouter registers the liveness banner, the health probe, and the
// scoring endpoint.
func ScoreRouter(r *gin.Engine, config *cloud.Config) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "%s: video niche-relevance scoring\n", config.Application.Name)
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":                    true,
			"credential_configured": state.scoreService != nil,
		})
	})

	r.POST("/score", func(c *gin.Context) {
		var payload model.ScorePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": string(model.ErrCodeInvalidBody)})
			return
		}

		req, stageErr := payload.Normalize()
		if stageErr != nil {
			c.JSON(stageErr.HTTPStatus(), gin.H{"error": string(stageErr.Code)})
			return
		}

		if state.scoreService == nil {
			noCred := model.NewStageError(model.ErrCodeNoCredential, nil)
			c.JSON(noCred.HTTPStatus(), gin.H{"error": string(noCred.Code)})
			return
		}

		result, stageErr := state.scoreService.Score(c.Request.Context(), req)
		if stageErr != nil {
			slog.Error("scoring failed",
				"code", string(stageErr.Code),
				"url", req.SourceURL,
				"error", stageErr.Error())
			c.JSON(stageErr.HTTPStatus(), gin.H{"error": string(stageErr.Code)})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"score":      result.Score,
			"reason":     result.Reason,
			"confidence": result.Confidence,
		})
	})
}
