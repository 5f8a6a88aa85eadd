// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package address holds the data model shared by the providers, the result
// cache and the orchestrator.
package address

import (
	"encoding/json"
	"fmt"
	"math"
)

// Status classifies how much a provider trusts its answer.
type Status string

const (
	// StatusValid the input matched a deliverable address as-is.
	StatusValid Status = "valid"
	// StatusCorrected the provider had to infer or replace components.
	StatusCorrected Status = "corrected"
	// StatusUnverifiable no usable address was found.
	StatusUnverifiable Status = "unverifiable"
)

// Coordinates is a (latitude, longitude) pair. It marshals as a two element
// JSON array.
type Coordinates [2]float64

// Lat returns the latitude.
func (c Coordinates) Lat() float64 { return c[0] }

// Lng returns the longitude.
func (c Coordinates) Lng() float64 { return c[1] }

// ValidateCoordinates checks that lat and lng are on the globe.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got %f)", lat)
	}

	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got %f)", lng)
	}

	return nil
}

// NewCoordinates returns nil when the pair is not a valid position.
func NewCoordinates(lat, lng float64) *Coordinates {
	if ValidateCoordinates(lat, lng) != nil {
		return nil
	}

	return &Coordinates{lat, lng}
}

// StandardizedAddress is a normalized US postal address.
type StandardizedAddress struct {
	Street      string       `json:"street"`
	Number      *string      `json:"number"`
	City        string       `json:"city"`
	State       string       `json:"state"`
	Zip         string       `json:"zip"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// String renders the address on one line, mostly for logs.
func (a *StandardizedAddress) String() string {
	if a == nil {
		return "<nil>"
	}

	street := a.Street
	if a.Number != nil {
		street = *a.Number + " " + street
	}

	return fmt.Sprintf("%s, %s, %s %s", street, a.City, a.State, a.Zip)
}

// Key is the comparison key of the address: every component but the
// coordinates, normalized with NormalizeKey.
func (a *StandardizedAddress) Key() string {
	if a == nil {
		return ""
	}

	number := ""
	if a.Number != nil {
		number = *a.Number
	}

	return NormalizeKey(number) + "|" +
		NormalizeKey(a.Street) + "|" +
		NormalizeKey(a.City) + "|" +
		NormalizeKey(a.State) + "|" +
		NormalizeKey(a.Zip)
}

// ValidationResult is the answer of a single provider.
//
// Address is nil if and only if Status is StatusUnverifiable. Raw carries the
// provider payload for diagnostics only.
type ValidationResult struct {
	Address *StandardizedAddress `json:"address"`
	Status  Status               `json:"status"`
	Raw     json.RawMessage      `json:"-"`
}

// Unverifiable builds the negative result, keeping the raw payload if any.
func Unverifiable(raw json.RawMessage) ValidationResult {
	return ValidationResult{Status: StatusUnverifiable, Raw: raw}
}

// Verified reports whether the result carries a usable address.
func (r ValidationResult) Verified() bool {
	return r.Address != nil && r.Status != StatusUnverifiable
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
