// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jcodagnone/addrcheck/utils/httputils"
)

const (
	// maxResponseBytes caps provider payloads.
	maxResponseBytes = 4 << 20

	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second
)

// client holds what the adapters share: the credential, the endpoint, the
// per call budget and the HTTP client.
type client struct {
	name    Name
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func newClient(name Name, cfg Config, defaultURL string) client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}

	if cfg.Logger != nil {
		transport = &httputils.LoggingRoundTripper{
			Transport: transport,
			Logger:    cfg.Logger,
			DumpBody:  cfg.TraceBody,
		}
	}

	if cfg.UserAgent != "" {
		transport = &httputils.AppendRequestHeadersRoundTripper{
			Transport: transport,
			Headers:   map[string]string{"User-Agent": cfg.UserAgent},
		}
	}

	return client{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{Transport: transport},
	}
}

func (c *client) Name() Name {
	return c.name
}

// endpoint appends params to the base URL.
func (c *client) endpoint(params url.Values) string {
	if len(params) == 0 {
		return c.baseURL
	}

	return c.baseURL + "?" + params.Encode()
}

// getJSON performs a GET and returns the raw JSON body.
func (c *client) getJSON(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.endpoint(params), nil)
}

// postJSON marshals body and POSTs it.
func (c *client) postJSON(ctx context.Context, params url.Values, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Type: ErrorTypeInvalidRequest, Provider: c.name, Message: "encoding request", Err: err}
	}

	return c.do(ctx, http.MethodPost, c.endpoint(params), data)
}

// do runs one request under the provider budget. Running out of budget is
// reported as a timeout Error, distinct from other transport failures.
func (c *client) do(ctx context.Context, method, target string, body []byte) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, &Error{Type: ErrorTypeInvalidRequest, Provider: c.name, Message: "creating request", Err: err}
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(reqCtx, ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(reqCtx, ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ClassifyHTTPError(c.name, resp.StatusCode)
	}

	if !json.Valid(data) {
		return nil, &Error{Type: ErrorTypeDecode, Provider: c.name, Message: "response is not JSON"}
	}

	return json.RawMessage(data), nil
}

// transportError tells a deadline apart from the caller giving up.
func (c *client) transportError(reqCtx, parent context.Context, err error) error {
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return newTimeoutError(c.name, fmt.Errorf("no answer within %v", c.timeout))
	}

	if errors.Is(parent.Err(), context.Canceled) {
		return &Error{Type: ErrorTypeNetworkError, Provider: c.name, Message: "request cancelled", Err: parent.Err()}
	}

	return &Error{Type: ErrorTypeNetworkError, Provider: c.name, Message: "request failed", Err: err}
}
