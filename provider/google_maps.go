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

const googleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsProvider uses the Google Maps Geocoding API.
type GoogleMapsProvider struct {
	client
}

// NewGoogleMaps creates a new Google Maps provider.
func NewGoogleMaps(cfg Config) *GoogleMapsProvider {
	return &GoogleMapsProvider{client: newClient(GoogleMaps, cfg, googleMapsURL)}
}

type googleMapsComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type googleMapsResult struct {
	AddressComponents []googleMapsComponent `json:"address_components"`
	Geometry          struct {
		Location *struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
}

type googleMapsResponse struct {
	Results []googleMapsResult `json:"results"`
	Status  string             `json:"status"` // OK, ZERO_RESULTS, etc.
}

func (g *GoogleMapsProvider) Validate(ctx context.Context, freeForm string) (address.ValidationResult, error) {
	params := url.Values{}
	params.Set("address", freeForm)
	params.Set("key", g.apiKey)
	params.Set("components", "country:US")

	raw, err := g.getJSON(ctx, params)
	if err != nil {
		return address.ValidationResult{}, err
	}

	return parseGoogleMaps(raw), nil
}

func parseGoogleMaps(raw json.RawMessage) address.ValidationResult {
	var resp googleMapsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return address.Unverifiable(raw)
	}

	if resp.Status != "OK" || len(resp.Results) == 0 {
		return address.Unverifiable(raw)
	}

	best := resp.Results[0]

	addr := extractGoogleMapsAddress(&best)
	if addr == nil {
		return address.Unverifiable(raw)
	}

	status := address.StatusValid
	if best.PartialMatch {
		status = address.StatusCorrected
	}

	return address.ValidationResult{Address: addr, Status: status, Raw: raw}
}

func extractGoogleMapsAddress(r *googleMapsResult) *address.StandardizedAddress {
	find := func(kind string) *googleMapsComponent {
		for i := range r.AddressComponents {
			if slices.Contains(r.AddressComponents[i].Types, kind) {
				return &r.AddressComponents[i]
			}
		}

		return nil
	}

	locality := find("locality")
	state := find("administrative_area_level_1")
	postalCode := find("postal_code")

	if locality == nil || state == nil || postalCode == nil {
		return nil
	}

	addr := &address.StandardizedAddress{
		City:  locality.LongName,
		State: state.ShortName,
		Zip:   postalCode.LongName,
	}

	if route := find("route"); route != nil {
		addr.Street = route.LongName
	}

	if number := find("street_number"); number != nil {
		addr.Number = address.StringPtr(number.LongName)
	}

	if loc := r.Geometry.Location; loc != nil {
		addr.Coordinates = address.NewCoordinates(loc.Lat, loc.Lng)
	}

	return addr
}
