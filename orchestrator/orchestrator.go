// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator asks every configured provider about an address and
// picks the most trustworthy standardized answer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/provider"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Common configuration errors.
var (
	ErrNoProviders       = errors.New("no providers configured")
	ErrUnknownProvider   = provider.ErrUnknownProvider
	ErrMissingCredential = provider.ErrMissingCredential
)

// Observer is told about every provider call.
type Observer interface {
	ObserveProvider(name provider.Name, status address.Status, err error, elapsed time.Duration)
}

// Config selects and configures the providers.
type Config struct {
	// Providers in priority order; the order breaks scoring ties.
	Providers []provider.Name

	// ProviderConfigs holds timeout and credential per provider.
	ProviderConfigs map[provider.Name]provider.Config

	// TrustBonus overrides entries of DefaultTrustBonus.
	TrustBonus map[provider.Name]int

	// LogRawResponses adds provider payloads to the debug events.
	LogRawResponses bool

	Logger   *slog.Logger
	Observer Observer
}

// AltAddress is a candidate address tagged with the provider that found it.
type AltAddress struct {
	address.StandardizedAddress
	Provider provider.Name `json:"service"`
}

// Result is the orchestrated answer. Alt is set only when providers
// disagreed on the normalized address.
type Result struct {
	Address *address.StandardizedAddress `json:"address"`
	Status  address.Status               `json:"status"`
	Alt     []AltAddress                 `json:"alt,omitempty"`
}

type entry struct {
	name     provider.Name
	provider provider.Provider
}

// Orchestrator fans a query out to its providers. The provider set is fixed
// at construction.
type Orchestrator struct {
	providers []entry
	trust     map[provider.Name]int
	inflight  singleflight.Group
	logger    *slog.Logger
	observer  Observer
	logRaw    bool
}

// New builds one provider per requested name. It fails when a name is
// unknown or its configuration lacks a credential.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}

	providers := make([]provider.Provider, 0, len(cfg.Providers))
	seen := make(map[provider.Name]bool, len(cfg.Providers))

	for _, name := range cfg.Providers {
		if seen[name] {
			continue
		}

		seen[name] = true

		if _, err := provider.ParseName(string(name)); err != nil {
			return nil, err
		}

		p, err := provider.New(name, cfg.ProviderConfigs[name])
		if err != nil {
			return nil, fmt.Errorf("creating provider: %w", err)
		}

		providers = append(providers, p)
	}

	return newOrchestrator(providers, cfg), nil
}

func newOrchestrator(providers []provider.Provider, cfg Config) *Orchestrator {
	o := &Orchestrator{
		trust:    maps.Clone(DefaultTrustBonus),
		logger:   cfg.Logger,
		observer: cfg.Observer,
		logRaw:   cfg.LogRawResponses,
	}

	maps.Copy(o.trust, cfg.TrustBonus)

	if o.logger == nil {
		o.logger = slog.Default()
	}

	for _, p := range providers {
		o.providers = append(o.providers, entry{name: p.Name(), provider: p})
	}

	return o
}

// Providers returns the configured provider names in priority order.
func (o *Orchestrator) Providers() []provider.Name {
	names := make([]provider.Name, len(o.providers))
	for i, e := range o.providers {
		names[i] = e.name
	}

	return names
}

// Validate returns the best standardized address for freeForm.
//
// Concurrent calls with the very same input share one validation. Provider
// failures never fail the validation: they count as unverifiable answers.
// An error is only returned for an internal fault or when ctx is done.
func (o *Orchestrator) Validate(ctx context.Context, freeForm string) (Result, error) {
	ch := o.inflight.DoChan(freeForm, func() (any, error) {
		return o.validate(context.WithoutCancel(ctx), freeForm)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}

		res, _ := r.Val.(Result)

		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (o *Orchestrator) validate(ctx context.Context, freeForm string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validating %q: internal error: %v", freeForm, r)
		}
	}()

	o.logger.DebugContext(ctx, "starting address validation",
		"address", freeForm,
		"providers", o.Providers(),
	)

	results := o.fanOut(ctx, freeForm)
	res = o.decide(ctx, results)

	o.logger.DebugContext(ctx, "validation complete",
		"address", freeForm,
		"status", res.Status,
		"result", res.Address,
		"alternatives", len(res.Alt),
	)

	return res, nil
}

// serviceResult is one provider answer within a validation.
type serviceResult struct {
	name   provider.Name
	result address.ValidationResult
}

// fanOut calls every provider concurrently and waits for all of them.
func (o *Orchestrator) fanOut(ctx context.Context, freeForm string) []serviceResult {
	results := make([]serviceResult, len(o.providers))

	var g errgroup.Group

	for i, e := range o.providers {
		g.Go(func() error {
			results[i] = serviceResult{name: e.name, result: o.call(ctx, e, freeForm)}

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// call isolates a provider: errors and panics become unverifiable.
func (o *Orchestrator) call(ctx context.Context, e entry, freeForm string) address.ValidationResult {
	res, err := o.invoke(ctx, e, freeForm)
	if err != nil {
		return address.Unverifiable(nil)
	}

	return res
}

// invoke runs one provider, turning a panic into an error, and reports the
// outcome.
func (o *Orchestrator) invoke(ctx context.Context, e entry, freeForm string) (res address.ValidationResult, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", e.name, r)
		}

		if err != nil {
			res = address.Unverifiable(nil)
		}

		elapsed := time.Since(start)
		o.report(ctx, e.name, res, err, elapsed)

		if o.observer != nil {
			o.observer.ObserveProvider(e.name, res.Status, err, elapsed)
		}
	}()

	return e.provider.Validate(ctx, freeForm)
}

func (o *Orchestrator) report(ctx context.Context, name provider.Name, res address.ValidationResult, err error, elapsed time.Duration) {
	if !o.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []any{
		"provider", name,
		"status", res.Status,
		"address", res.Address,
		"has_raw_response", len(res.Raw) > 0,
		"duration", elapsed,
	}

	if err != nil {
		attrs = append(attrs, "error", err, "timeout", provider.IsTimeoutError(err))
	}

	if o.logRaw && len(res.Raw) > 0 {
		attrs = append(attrs, "raw_response", string(res.Raw))
	}

	o.logger.DebugContext(ctx, "provider response", attrs...)
}

// decide filters, scores and deduplicates the provider answers.
func (o *Orchestrator) decide(ctx context.Context, results []serviceResult) Result {
	scored := make([]scoredResult, 0, len(results))

	for _, sr := range results {
		if !sr.result.Verified() {
			continue
		}

		scored = append(scored, scoredResult{serviceResult: sr, score: o.score(sr)})
	}

	if len(scored) == 0 {
		o.logger.DebugContext(ctx, "no provider could verify the address", "providers", len(results))

		return Result{Status: address.StatusUnverifiable}
	}

	// stable: equal scores keep the provider order
	slices.SortStableFunc(scored, func(a, b scoredResult) int {
		return b.score - a.score
	})

	for _, s := range scored {
		o.logger.DebugContext(ctx, "scored result", "provider", s.name, "score", s.score, "status", s.result.Status)
	}

	best := scored[0]
	res := Result{Address: best.result.Address, Status: best.result.Status}

	unique := deduplicate(scored)
	if len(unique) > 1 {
		res.Alt = make([]AltAddress, len(unique))
		for i, u := range unique {
			res.Alt[i] = AltAddress{StandardizedAddress: *u.result.Address, Provider: u.name}
		}
	}

	return res
}

// deduplicate keeps the first, highest scored, answer per normalized address.
func deduplicate(scored []scoredResult) []scoredResult {
	seen := make(map[string]bool, len(scored))
	unique := make([]scoredResult, 0, len(scored))

	for _, s := range scored {
		key := s.result.Address.Key()
		if seen[key] {
			continue
		}

		seen[key] = true

		unique = append(unique, s)
	}

	return unique
}
