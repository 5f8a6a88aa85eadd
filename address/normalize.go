// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeKey produces the comparison key used for caching and for
// deduplicating provider answers: NFC composed, lower-cased, trimmed and with
// internal whitespace runs collapsed to a single space.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}
