// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider adapts external geocoding services to a uniform
// address.ValidationResult.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jcodagnone/addrcheck/address"
)

// Name identifies a supported provider.
type Name string

const (
	GoogleMaps       Name = "google-maps"
	Geocodio         Name = "geocodio"
	AzureMaps        Name = "azure-maps"
	GoogleValidation Name = "google-validation"
)

// Names lists every supported provider.
func Names() []Name {
	return []Name{GoogleMaps, Geocodio, AzureMaps, GoogleValidation}
}

// ErrUnknownProvider is returned for identifiers outside Names.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrMissingCredential is returned when a provider has no API key.
var ErrMissingCredential = errors.New("missing API key")

// ParseName validates a provider identifier.
func ParseName(s string) (Name, error) {
	n := Name(strings.TrimSpace(s))
	for _, known := range Names() {
		if n == known {
			return n, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// DefaultTimeout is the per call budget used when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Config is what every provider needs.
type Config struct {
	// Timeout bounds every call to the provider.
	Timeout time.Duration

	// APIKey is the provider credential.
	APIKey string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// UserAgent is sent with every request when set.
	UserAgent string

	// Logger receives HTTP traces at debug level.
	Logger *slog.Logger

	// TraceBody adds response bodies to the HTTP traces.
	TraceBody bool
}

// Provider validates free-form addresses against one external service.
//
// A business-level non match is reported as an unverifiable result, never as
// an error. Errors are reserved for transport failures; a call that exceeds
// its budget fails with an error matching ErrTimeout. Providers do not cache.
type Provider interface {
	Name() Name
	Validate(ctx context.Context, freeForm string) (address.ValidationResult, error)
}

// New builds the provider identified by name.
func New(name Name, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingCredential)
	}

	switch name {
	case GoogleMaps:
		return NewGoogleMaps(cfg), nil
	case Geocodio:
		return NewGeocodio(cfg), nil
	case AzureMaps:
		return NewAzureMaps(cfg), nil
	case GoogleValidation:
		return NewGoogleValidation(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
