// Package countries validates ISO 3166-1 alpha-2 country codes.
package countries

import (
	"strings"

	"golang.org/x/text/language"
)

// IsValid reports whether code is a two-letter ISO 3166-1 country code.
// Macro regions and private-use codes are rejected.
func IsValid(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return false
	}
	return region.IsCountry()
}
