// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"slices"

	"github.com/jcodagnone/addrcheck/address"
)

const (
	geocodioURL = "https://api.geocod.io/v1.9/geocode"

	// geocodioMinAccuracy is the lowest accuracy still reported as valid.
	geocodioMinAccuracy = 0.8
)

// geocodioPreciseTypes are the accuracy types that pin an actual address.
var geocodioPreciseTypes = []string{"rooftop", "range_interpolation", "point"}

// GeocodioProvider uses the Geocodio geocoding API.
type GeocodioProvider struct {
	client
}

// NewGeocodio creates a new Geocodio provider.
func NewGeocodio(cfg Config) *GeocodioProvider {
	return &GeocodioProvider{client: newClient(Geocodio, cfg, geocodioURL)}
}

type geocodioResult struct {
	AddressComponents struct {
		Number          string `json:"number"`
		Street          string `json:"street"`
		FormattedStreet string `json:"formatted_street"`
		City            string `json:"city"`
		State           string `json:"state"`
		Zip             string `json:"zip"`
	} `json:"address_components"`
	FormattedAddress string `json:"formatted_address"`
	Location         *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy     float64 `json:"accuracy"`
	AccuracyType string  `json:"accuracy_type"`
	Source       string  `json:"source"`
}

type geocodioResponse struct {
	Results []geocodioResult `json:"results"`
}

func (g *GeocodioProvider) Validate(ctx context.Context, freeForm string) (address.ValidationResult, error) {
	params := url.Values{}
	params.Set("q", freeForm)
	params.Set("api_key", g.apiKey)
	params.Set("country", "US")

	raw, err := g.getJSON(ctx, params)
	if err != nil {
		return address.ValidationResult{}, err
	}

	return parseGeocodio(raw), nil
}

func parseGeocodio(raw json.RawMessage) address.ValidationResult {
	var resp geocodioResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Results) == 0 {
		return address.Unverifiable(raw)
	}

	best := resp.Results[0]
	c := best.AddressComponents

	if c.City == "" || c.State == "" || c.Zip == "" {
		return address.Unverifiable(raw)
	}

	street := c.FormattedStreet
	if street == "" {
		street = c.Street
	}

	addr := &address.StandardizedAddress{
		Street: street,
		Number: address.StringPtr(c.Number),
		City:   c.City,
		State:  c.State,
		Zip:    c.Zip,
	}

	if best.Location != nil {
		addr.Coordinates = address.NewCoordinates(best.Location.Lat, best.Location.Lng)
	}

	status := address.StatusCorrected
	if best.Accuracy >= geocodioMinAccuracy && slices.Contains(geocodioPreciseTypes, best.AccuracyType) {
		status = address.StatusValid
	}

	return address.ValidationResult{Address: addr, Status: status, Raw: raw}
}
