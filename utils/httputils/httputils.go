// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides round trippers shared by the provider clients.
package httputils

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// SecretParams are query parameters that carry provider credentials.
var SecretParams = []string{"key", "api_key", "subscription-key"}

/////////////////////////////////////////
/// RoundTrippers

// LoggingRoundTripper logs every HTTP transaction at debug level.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
	DumpBody  bool
}

// abbreviate keeps dumps readable in the logs.
func abbreviate(s string) string {
	const maxChars = 2048

	if len(s) > maxChars {
		return s[:maxChars] + "…"
	}

	return s
}

// RedactURL returns u as a string with the values of the given query
// parameters replaced.
func RedactURL(u *url.URL, params ...string) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	changed := false

	for _, p := range params {
		if q.Has(p) {
			q.Set(p, "REDACTED")

			changed = true
		}
	}

	if !changed {
		return u.String()
	}

	redacted := *u
	redacted.RawQuery = q.Encode()

	return redacted.String()
}

func (t *LoggingRoundTripper) transport() http.RoundTripper {
	if t.Transport == nil {
		return http.DefaultTransport
	}

	return t.Transport
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Logger == nil || !t.Logger.Enabled(req.Context(), slog.LevelDebug) {
		return t.transport().RoundTrip(req)
	}

	target := RedactURL(req.URL, SecretParams...)
	start := time.Now()

	resp, err := t.transport().RoundTrip(req)
	if err != nil {
		t.Logger.DebugContext(req.Context(), "http request failed",
			"method", req.Method,
			"url", target,
			"duration", time.Since(start),
			"error", err,
		)

		return nil, err
	}

	attrs := []any{
		"method", req.Method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	}

	if t.DumpBody {
		if dump, err := httputil.DumpResponse(resp, true); err == nil {
			attrs = append(attrs, "response", abbreviate(strings.TrimSpace(string(dump))))
		}
	}

	t.Logger.DebugContext(req.Context(), "http request", attrs...)

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds static headers to every request.
// Headers already present on the request win.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if len(t.Headers) == 0 {
		return transport.RoundTrip(req)
	}

	// a RoundTripper must not modify the caller's request
	clone := req.Clone(req.Context())
	for k, v := range t.Headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}

	return transport.RoundTrip(clone)
}
