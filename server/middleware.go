// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// tokenAuth rejects requests whose TokenHeader does not match token. An
// empty token rejects everything.
func tokenAuth(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		got := ctx.GetHeader(TokenHeader)
		if token == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abortWithError(ctx, http.StatusUnauthorized, "Invalid or missing X-Token header")

			return
		}

		ctx.Next()
	}
}

// rateLimit throttles per client IP with the token buckets of store.
func rateLimit(store *limiterStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		r := store.Get(ctx.ClientIP()).Reserve()

		delay := r.Delay()
		if !r.OK() || delay > 0 {
			r.Cancel()

			seconds := int(math.Ceil(delay.Seconds()))
			if seconds < 1 {
				seconds = 1
			}

			ctx.Header("Retry-After", strconv.Itoa(seconds))
			abortWithError(ctx, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", seconds))

			return
		}

		ctx.Next()
	}
}

func allowOrigin(origin string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Header("Access-Control-Allow-Origin", origin)
		ctx.Header("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			ctx.Header("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)
			ctx.AbortWithStatus(http.StatusNoContent)

			return
		}

		ctx.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		level := slog.LevelInfo
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "request",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", ctx.ClientIP(),
		)
	}
}
