// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/provider"
)

// Scoring weights. Status dominates: a valid answer always outranks a
// corrected one whatever the completeness and trust bonuses.
const (
	scoreValid       = 100
	scoreCorrected   = 50
	scoreNumber      = 20
	scoreStreet      = 15
	scoreCity        = 10
	scoreState       = 10
	scoreZip         = 10
	scoreCoordinates = 5
)

// DefaultTrustBonus rewards providers by their known accuracy on US
// addresses. The USPS backed validation API ranks first.
var DefaultTrustBonus = map[provider.Name]int{
	provider.GoogleValidation: 15,
	provider.GoogleMaps:       10,
	provider.Geocodio:         5,
	provider.AzureMaps:        5,
}

type scoredResult struct {
	serviceResult
	score int
}

func (o *Orchestrator) score(sr serviceResult) int {
	score := 0

	switch sr.result.Status {
	case address.StatusValid:
		score += scoreValid
	case address.StatusCorrected:
		score += scoreCorrected
	case address.StatusUnverifiable:
	}

	if a := sr.result.Address; a != nil {
		if a.Number != nil && *a.Number != "" {
			score += scoreNumber
		}

		if a.Street != "" {
			score += scoreStreet
		}

		if a.City != "" {
			score += scoreCity
		}

		if a.State != "" {
			score += scoreState
		}

		if a.Zip != "" {
			score += scoreZip
		}

		if a.Coordinates != nil {
			score += scoreCoordinates
		}
	}

	return score + o.trust[sr.name]
}
