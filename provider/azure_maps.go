// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/jcodagnone/addrcheck/address"
)

const (
	azureMapsURL = "https://atlas.microsoft.com/search/address/json"

	// azureMapsMinScore is the lowest match score still reported as valid.
	azureMapsMinScore = 8.0
)

// AzureMapsProvider uses the Azure Maps Search Address API.
type AzureMapsProvider struct {
	client
}

// NewAzureMaps creates a new Azure Maps provider.
func NewAzureMaps(cfg Config) *AzureMapsProvider {
	return &AzureMapsProvider{client: newClient(AzureMaps, cfg, azureMapsURL)}
}

type azureMapsResult struct {
	Type      string  `json:"type"`
	MatchType string  `json:"matchType"`
	Score     float64 `json:"score"`
	Address   struct {
		StreetNumber           string `json:"streetNumber"`
		StreetName             string `json:"streetName"`
		Municipality           string `json:"municipality"`
		CountrySubdivisionCode string `json:"countrySubdivisionCode"`
		PostalCode             string `json:"postalCode"`
		FreeformAddress        string `json:"freeformAddress"`
	} `json:"address"`
	Position *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"position"`
}

type azureMapsResponse struct {
	Summary struct {
		Query      string `json:"query"`
		FuzzyLevel *int   `json:"fuzzyLevel"`
	} `json:"summary"`
	Results []azureMapsResult `json:"results"`
}

func (a *AzureMapsProvider) Validate(ctx context.Context, freeForm string) (address.ValidationResult, error) {
	params := url.Values{}
	params.Set("api-version", "1.0")
	params.Set("subscription-key", a.apiKey)
	params.Set("query", freeForm)
	params.Set("countrySet", "US")
	params.Set("limit", "1")

	raw, err := a.getJSON(ctx, params)
	if err != nil {
		return address.ValidationResult{}, err
	}

	return parseAzureMaps(raw), nil
}

func parseAzureMaps(raw json.RawMessage) address.ValidationResult {
	var resp azureMapsResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Results) == 0 {
		return address.Unverifiable(raw)
	}

	best := resp.Results[0]
	a := best.Address

	if a.Municipality == "" || a.CountrySubdivisionCode == "" || a.PostalCode == "" {
		return address.Unverifiable(raw)
	}

	addr := &address.StandardizedAddress{
		Street: a.StreetName,
		Number: address.StringPtr(a.StreetNumber),
		City:   a.Municipality,
		State:  a.CountrySubdivisionCode,
		Zip:    a.PostalCode,
	}

	if best.Position != nil {
		addr.Coordinates = address.NewCoordinates(best.Position.Lat, best.Position.Lon)
	}

	fuzzy := resp.Summary.FuzzyLevel
	exact := best.MatchType == "AddressPoint" &&
		best.Score >= azureMapsMinScore &&
		(fuzzy == nil || *fuzzy <= 1)

	status := address.StatusCorrected
	if exact {
		status = address.StatusValid
	}

	return address.ValidationResult{Address: addr, Status: status, Raw: raw}
}
