// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"

	"github.com/jcodagnone/addrcheck/address"
)

const googleValidationURL = "https://addressvalidation.googleapis.com/v1:validateAddress"

// addressLineRegex splits "123A Main St" into number and street.
var addressLineRegex = regexp.MustCompile(`^(\d+[A-Za-z]?)\s+(.+)$`)

// GoogleValidationProvider uses the Google Address Validation API, which is
// backed by USPS CASS data for US addresses.
type GoogleValidationProvider struct {
	client
}

// NewGoogleValidation creates a new Google Address Validation provider.
func NewGoogleValidation(cfg Config) *GoogleValidationProvider {
	return &GoogleValidationProvider{client: newClient(GoogleValidation, cfg, googleValidationURL)}
}

type googleValidationRequest struct {
	Address struct {
		RegionCode   string   `json:"regionCode"`
		AddressLines []string `json:"addressLines"`
	} `json:"address"`
}

type googleValidationVerdict struct {
	InputGranularity         string `json:"inputGranularity"`
	ValidationGranularity    string `json:"validationGranularity"`
	GeocodeGranularity       string `json:"geocodeGranularity"`
	AddressComplete          bool   `json:"addressComplete"`
	HasUnconfirmedComponents bool   `json:"hasUnconfirmedComponents"`
	HasInferredComponents    bool   `json:"hasInferredComponents"`
	HasReplacedComponents    bool   `json:"hasReplacedComponents"`
}

type googleValidationResult struct {
	Verdict *googleValidationVerdict `json:"verdict"`
	Address *struct {
		FormattedAddress string `json:"formattedAddress"`
		PostalAddress    *struct {
			RegionCode         string   `json:"regionCode"`
			PostalCode         string   `json:"postalCode"`
			AdministrativeArea string   `json:"administrativeArea"`
			Locality           string   `json:"locality"`
			AddressLines       []string `json:"addressLines"`
		} `json:"postalAddress"`
	} `json:"address"`
	Geocode *struct {
		Location *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	} `json:"geocode"`
	USPSData *struct {
		StandardizedAddress *struct {
			FirstAddressLine string `json:"firstAddressLine"`
			City             string `json:"city"`
			State            string `json:"state"`
			ZipCode          string `json:"zipCode"`
			ZipCodeExtension string `json:"zipCodeExtension"`
		} `json:"standardizedAddress"`
	} `json:"uspsData"`
}

type googleValidationResponse struct {
	Result     *googleValidationResult `json:"result"`
	ResponseID string                  `json:"responseId"`
}

func (g *GoogleValidationProvider) Validate(ctx context.Context, freeForm string) (address.ValidationResult, error) {
	var body googleValidationRequest
	body.Address.RegionCode = "US"
	body.Address.AddressLines = []string{freeForm}

	params := url.Values{}
	params.Set("key", g.apiKey)

	raw, err := g.postJSON(ctx, params, body)
	if err != nil {
		return address.ValidationResult{}, err
	}

	return parseGoogleValidation(raw), nil
}

func parseGoogleValidation(raw json.RawMessage) address.ValidationResult {
	var resp googleValidationResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Result == nil {
		return address.Unverifiable(raw)
	}

	addr := extractGoogleValidationAddress(resp.Result)
	if addr == nil {
		return address.Unverifiable(raw)
	}

	status := googleValidationStatus(resp.Result.Verdict)
	if status == address.StatusUnverifiable {
		return address.Unverifiable(raw)
	}

	return address.ValidationResult{Address: addr, Status: status, Raw: raw}
}

func googleValidationStatus(v *googleValidationVerdict) address.Status {
	switch {
	case v == nil:
		return address.StatusUnverifiable
	case v.AddressComplete && !v.HasUnconfirmedComponents && !v.HasInferredComponents && !v.HasReplacedComponents:
		return address.StatusValid
	case v.AddressComplete || v.ValidationGranularity != "":
		return address.StatusCorrected
	default:
		return address.StatusUnverifiable
	}
}

func splitAddressLine(line string) (*string, string) {
	if m := addressLineRegex.FindStringSubmatch(line); m != nil {
		return address.StringPtr(m[1]), m[2]
	}

	return nil, line
}

func extractGoogleValidationAddress(r *googleValidationResult) *address.StandardizedAddress {
	var coords *address.Coordinates
	if r.Geocode != nil && r.Geocode.Location != nil &&
		r.Geocode.Location.Latitude != 0 && r.Geocode.Location.Longitude != 0 {
		coords = address.NewCoordinates(r.Geocode.Location.Latitude, r.Geocode.Location.Longitude)
	}

	// USPS data is the most accurate source for US addresses.
	if r.USPSData != nil && r.USPSData.StandardizedAddress != nil {
		usps := r.USPSData.StandardizedAddress
		if usps.City == "" || usps.State == "" || usps.ZipCode == "" {
			return nil
		}

		zip := usps.ZipCode
		if usps.ZipCodeExtension != "" {
			zip += "-" + usps.ZipCodeExtension
		}

		number, street := splitAddressLine(usps.FirstAddressLine)

		return &address.StandardizedAddress{
			Street:      street,
			Number:      number,
			City:        usps.City,
			State:       usps.State,
			Zip:         zip,
			Coordinates: coords,
		}
	}

	if r.Address == nil || r.Address.PostalAddress == nil {
		return nil
	}

	postal := r.Address.PostalAddress
	if postal.Locality == "" || postal.AdministrativeArea == "" || postal.PostalCode == "" {
		return nil
	}

	line := ""
	if len(postal.AddressLines) > 0 {
		line = postal.AddressLines[0]
	}

	number, street := splitAddressLine(line)

	return &address.StandardizedAddress{
		Street:      street,
		Number:      number,
		City:        postal.Locality,
		State:       postal.AdministrativeArea,
		Zip:         postal.PostalCode,
		Coordinates: coords,
	}
}
