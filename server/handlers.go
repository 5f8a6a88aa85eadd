// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/provider"
)

// ValidateRequest is the body of POST /validate-address.
type ValidateRequest struct {
	Address string `json:"address" binding:"required,min=1,max=500"`
}

// ValidateResponse is the answer of POST /validate-address.
type ValidateResponse struct {
	Address       *address.StandardizedAddress `json:"address"`
	Status        address.Status               `json:"status"`
	OriginalInput string                       `json:"originalInput"`
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func abortWithError(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

func (s *Server) validateAddress(ctx *gin.Context) {
	var req ValidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortWithError(ctx, http.StatusBadRequest, "Invalid request body")

		return
	}

	res, err := s.cache.GetOrFetch(ctx.Request.Context(), req.Address, func(fetchCtx context.Context) (address.ValidationResult, error) {
		r, err := s.validator.Validate(fetchCtx, req.Address)
		if err != nil {
			return address.ValidationResult{}, err
		}

		return address.ValidationResult{Address: r.Address, Status: r.Status}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrTimeout):
			abortWithError(ctx, http.StatusServiceUnavailable, "Address service timeout")
		case errors.Is(err, context.Canceled):
			// client went away; nobody reads this
			abortWithError(ctx, http.StatusServiceUnavailable, "Request cancelled")
		default:
			s.logger.ErrorContext(ctx, "address validation failed", "address", req.Address, "error", err)
			abortWithError(ctx, http.StatusBadGateway, "External service error")
		}

		return
	}

	ctx.JSON(http.StatusOK, ValidateResponse{
		Address:       res.Address,
		Status:        res.Status,
		OriginalInput: req.Address,
	})
}

func (s *Server) healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) cacheStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) cacheClear(ctx *gin.Context) {
	size := s.cache.Size()
	s.cache.Clear()

	s.logger.InfoContext(ctx, "cache cleared", "entries", size)
	ctx.JSON(http.StatusOK, gin.H{"cleared": size})
}
