// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "only spaces", input: " \t\n ", want: ""},
		{name: "lower cases", input: "123 MAIN St", want: "123 main st"},
		{name: "trims", input: "  123 Main St  ", want: "123 main st"},
		{name: "collapses runs", input: "123   Main\t\tSt,\n Springfield", want: "123 main st, springfield"},
		{name: "composes accents", input: "Cafe\u0301 RD", want: "caf\u00e9 rd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.input))
		})
	}
}

func TestNormalizeKeyIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"1600 Amphitheatre Pkwy, Mountain View, CA",
		"  1600   AMPHITHEATRE pkwy ,mountain   view ",
		"\tÉCOLE   st\n",
	}

	for _, s := range inputs {
		once := NormalizeKey(s)
		assert.Equal(t, once, NormalizeKey(once), "input %q", s)
	}
}

func TestNormalizeKeyCollapsesVariants(t *testing.T) {
	a := NormalizeKey("123 Main St, Springfield, IL")
	b := NormalizeKey("  123  MAIN st,   springfield,  il ")

	assert.Equal(t, a, b)
}

func TestAddressKey(t *testing.T) {
	a := &StandardizedAddress{
		Street:      "Main St",
		Number:      StringPtr("123"),
		City:        "Springfield",
		State:       "IL",
		Zip:         "62701",
		Coordinates: &Coordinates{39.78, -89.65},
	}
	b := &StandardizedAddress{
		Street: "  MAIN   st ",
		Number: StringPtr("123"),
		City:   "springfield",
		State:  "il",
		Zip:    "62701",
	}
	c := &StandardizedAddress{
		Street: "Main St",
		City:   "Springfield",
		State:  "IL",
		Zip:    "62701",
	}

	assert.Equal(t, a.Key(), b.Key(), "coordinates and case must not matter")
	assert.NotEqual(t, a.Key(), c.Key(), "missing number is a different address")
	assert.Equal(t, "123|main st|springfield|il|62701", a.Key())
	assert.Empty(t, (*StandardizedAddress)(nil).Key())
}

func TestValidationResultVerified(t *testing.T) {
	addr := &StandardizedAddress{Street: "Main St", City: "X", State: "IL", Zip: "1"}

	assert.True(t, ValidationResult{Address: addr, Status: StatusValid}.Verified())
	assert.True(t, ValidationResult{Address: addr, Status: StatusCorrected}.Verified())
	assert.False(t, ValidationResult{Address: addr, Status: StatusUnverifiable}.Verified())
	assert.False(t, ValidationResult{Status: StatusValid}.Verified())
	assert.False(t, Unverifiable(nil).Verified())
}
