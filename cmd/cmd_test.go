// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/cache"
	"github.com/jcodagnone/addrcheck/orchestrator"
	"github.com/jcodagnone/addrcheck/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "json", "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "v", entry["k"])

	_, err = newLogger(&buf, "xml", "info")
	require.Error(t, err)

	_, err = newLogger(&buf, "text", "verbose")
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ADDRCHECK_TEST_VALUE=from-file\n"), 0o600))

	t.Setenv("ADDRCHECK_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("ADDRCHECK_TEST_VALUE"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("ADDRCHECK_TEST_VALUE"))
}

func TestNormalizeLines(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, normalizeLines(strings.NewReader("  123   MAIN st \nOak Ave\n"), &out))
	assert.Equal(t, "  123   MAIN st \t123 main st\nOak Ave\toak ave\n", out.String())
}

func TestReadLines(t *testing.T) {
	lines, err := readLines(strings.NewReader("123 Main St\n\n  \n456 Oak Ave  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"123 Main St", "456 Oak Ave"}, lines)
}

type fakeValidator struct {
	calls atomic.Int32
	fn    func(freeForm string) (orchestrator.Result, error)
}

func (f *fakeValidator) Validate(_ context.Context, freeForm string) (orchestrator.Result, error) {
	f.calls.Add(1)

	return f.fn(freeForm)
}

func TestValidateAll(t *testing.T) {
	v := &fakeValidator{fn: func(freeForm string) (orchestrator.Result, error) {
		switch {
		case strings.HasPrefix(freeForm, "fail"):
			return orchestrator.Result{}, errors.New("validating: internal error")
		case strings.HasPrefix(freeForm, "nowhere"):
			return orchestrator.Result{Status: address.StatusUnverifiable}, nil
		}

		return orchestrator.Result{
			Address: &address.StandardizedAddress{Street: "Main St", Number: address.StringPtr("123")},
			Status:  address.StatusCorrected,
			Alt: []orchestrator.AltAddress{
				{StandardizedAddress: address.StandardizedAddress{Street: "Main St"}, Provider: provider.GoogleMaps},
				{StandardizedAddress: address.StandardizedAddress{Street: "Main Ave"}, Provider: provider.Geocodio},
			},
		}, nil
	}}
	c := cache.New(cache.Options{MaxSize: 10, TTL: time.Minute})

	var out bytes.Buffer

	err := validateAll(t.Context(), v, c, []string{"123 main st", "nowhere", "fail here"}, 2, &out, nil)
	require.EqualError(t, err, "1 of 3 addresses failed")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first validateRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "123 main st", first.OriginalInput)
	assert.Equal(t, address.StatusCorrected, first.Status)
	assert.Len(t, first.Alt, 2)

	assert.JSONEq(t, `{"originalInput":"nowhere","address":null,"status":"unverifiable"}`, lines[1])
	assert.JSONEq(t, `{"originalInput":"fail here","address":null,"error":"validating: internal error"}`, lines[2])
}

func TestValidateAllUsesCache(t *testing.T) {
	v := &fakeValidator{fn: func(string) (orchestrator.Result, error) {
		return orchestrator.Result{
			Address: &address.StandardizedAddress{Street: "Main St"},
			Status:  address.StatusValid,
		}, nil
	}}
	c := cache.New(cache.Options{MaxSize: 10, TTL: time.Minute})

	var out bytes.Buffer

	require.NoError(t, validateAll(t.Context(), v, c, []string{"123 Main St", "123 MAIN ST", " 123 main  st"}, 1, &out, nil))
	assert.Equal(t, int32(1), v.calls.Load())
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
}

type stubProvider struct {
	res address.ValidationResult
	err error
}

func (s stubProvider) Name() provider.Name { return provider.Geocodio }

func (s stubProvider) Validate(context.Context, string) (address.ValidationResult, error) {
	return s.res, s.err
}

func TestCallProvider(t *testing.T) {
	var out bytes.Buffer

	res := address.ValidationResult{
		Address: &address.StandardizedAddress{Street: "Main St", City: "Springfield", State: "IL", Zip: "62701"},
		Status:  address.StatusValid,
		Raw:     json.RawMessage(`{"results":[]}`),
	}

	require.NoError(t, callProvider(t.Context(), stubProvider{res: res}, "123 Main St", &out))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "geocodio", got["service"])
	assert.Equal(t, "valid", got["status"])
	assert.NotNil(t, got["raw"])
}

func TestCallProviderTimeout(t *testing.T) {
	timeout := &provider.Error{Type: provider.ErrorTypeTimeout, Provider: provider.Geocodio, Message: "deadline exceeded"}

	err := callProvider(t.Context(), stubProvider{err: timeout}, "123 Main St", &bytes.Buffer{})
	require.ErrorIs(t, err, provider.ErrTimeout)
	assert.Equal(t, "geocodio: service timeout", err.Error())

	err = callProvider(t.Context(), stubProvider{err: errors.New("connection refused")}, "123 Main St", &bytes.Buffer{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, provider.ErrTimeout)
}
