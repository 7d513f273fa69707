// Package normalize canonicalizes the identity signals used for duplicate
// detection: names, street addresses, phone numbers, and website domains.
// Every function is deterministic and idempotent so normalized values can be
// compared or re-normalized safely.
package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
)

var (
	// Anything that is not a letter or digit in any script collapses to a
	// single space.
	nonAlnumPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	nonDigitPattern = regexp.MustCompile(`\D`)
)

// Name canonicalizes a clinic or provider name: lowercase, punctuation
// stripped, whitespace collapsed, and each token singularized so
// "Aesthetics" and "Aesthetic" compare equal.
func Name(s string) string {
	tokens := strings.Fields(nonAlnumPattern.ReplaceAllString(strings.ToLower(s), " "))
	for i, tok := range tokens {
		// Keep the original token when singularizing collapses it to nothing
		// (a lone possessive "s" for example).
		if singular := inflection.Singular(tok); singular != "" {
			tokens[i] = singular
		}
	}
	return strings.Join(tokens, " ")
}

// Address canonicalizes a street address: lowercase, punctuation stripped,
// whitespace collapsed. No abbreviation expansion; similarity scoring
// absorbs "St" vs "Street" differences.
func Address(s string) string {
	return strings.Join(strings.Fields(nonAlnumPattern.ReplaceAllString(strings.ToLower(s), " ")), " ")
}

// Phone reduces a phone number to bare digits. An 11-digit number with a
// leading 1 drops the country code so "+1 (212) 555-0100" and
// "212-555-0100" compare equal.
func Phone(s string) string {
	digits := nonDigitPattern.ReplaceAllString(s, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return digits[1:]
	}
	return digits
}

// Domain reduces a website URL to its bare hostname: scheme defaulted to
// https when missing, port dropped, leading "www." stripped, lowercased.
// Returns "" when the value does not parse as a URL host.
func Domain(s string) string {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	return host
}
