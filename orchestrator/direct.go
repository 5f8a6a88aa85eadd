// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"

	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/provider"
)

// Direct validates against a single provider without isolating it: provider
// errors, timeouts included, reach the caller.
type Direct struct {
	o *Orchestrator
	e entry
}

// Direct returns the validator bound to the only configured provider. It
// reports false when more than one provider is configured.
func (o *Orchestrator) Direct() (*Direct, bool) {
	if len(o.providers) != 1 {
		return nil, false
	}

	return &Direct{o: o, e: o.providers[0]}, true
}

// Provider is the name of the wrapped provider.
func (d *Direct) Provider() provider.Name {
	return d.e.name
}

// Validate calls the provider once. An unverifiable answer is not an error.
func (d *Direct) Validate(ctx context.Context, freeForm string) (Result, error) {
	res, err := d.o.invoke(ctx, d.e, freeForm)
	if err != nil {
		return Result{}, err
	}

	if !res.Verified() {
		return Result{Status: address.StatusUnverifiable}, nil
	}

	return Result{Address: res.Address, Status: res.Status}, nil
}
