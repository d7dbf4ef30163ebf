package progress

import (
	"fmt"
	"slices"
	"strings"
)

// ScanReason explains why a scanned code was refused.
type ScanReason string

const (
	ReasonInvalid       ScanReason = "invalid"
	ReasonWrongLocation ScanReason = "wrong_location"
)

// ScanResult is the outcome of ValidateScan. MatchedLocation is set for
// ReasonWrongLocation.
type ScanResult struct {
	Valid           bool
	Reason          ScanReason
	MatchedLocation string
}

// Scanned text shorter than this only matches when it contains a whole
// token; longer text may also match as a fragment of a token.
const minFragmentLen = 6

// TokenSet maps QR tokens to the single location each one unlocks.
type TokenSet struct {
	byLocation map[string][]string
	locations  []string
}

// DefaultTokens returns the printed QR payloads for a location.
func DefaultTokens(locationID string) []string {
	id := strings.ToUpper(locationID)
	return []string{
		"HUNT" + id + "2024",
		"TREASURE_" + id,
		"LOCATION_" + id,
	}
}

// NewTokenSet builds a token set keyed by location ID. Tokens are
// compared upper-cased. A token may belong to one location only, and no
// token may contain another location's token.
func NewTokenSet(tokens map[string][]string) (*TokenSet, error) {
	ts := &TokenSet{byLocation: make(map[string][]string, len(tokens))}
	owner := make(map[string]string)

	for loc, list := range tokens {
		for _, raw := range list {
			tok := normalize(raw)
			if tok == "" {
				continue
			}
			if prev, ok := owner[tok]; ok {
				if prev != loc {
					return nil, fmt.Errorf("token %q registered for %s and %s", tok, prev, loc)
				}
				continue
			}
			owner[tok] = loc
			ts.byLocation[loc] = append(ts.byLocation[loc], tok)
		}
		ts.locations = append(ts.locations, loc)
	}
	slices.Sort(ts.locations)

	for a, locA := range owner {
		for b, locB := range owner {
			if locA != locB && strings.Contains(a, b) {
				return nil, fmt.Errorf("token %q (%s) contains token %q (%s)", a, locA, b, locB)
			}
		}
	}
	return ts, nil
}

// Tokens returns the normalized tokens for a location.
func (ts *TokenSet) Tokens(locationID string) []string {
	return slices.Clone(ts.byLocation[locationID])
}

// ValidateScan checks scanned QR text against the location's tokens.
// Matching is case-insensitive in both directions: the text contains a
// token, or a token contains the text. Text that matches several
// locations is treated as invalid.
func ValidateScan(ts *TokenSet, scanned, locationID string) ScanResult {
	text := normalize(scanned)
	if text == "" {
		return ScanResult{Reason: ReasonInvalid}
	}

	var matched []string
	for _, loc := range ts.locations {
		if slices.ContainsFunc(ts.byLocation[loc], func(tok string) bool { return tokenMatches(tok, text) }) {
			matched = append(matched, loc)
		}
	}

	switch {
	case len(matched) == 0:
		return ScanResult{Reason: ReasonInvalid}
	case slices.Contains(matched, locationID):
		if len(matched) > 1 {
			return ScanResult{Reason: ReasonInvalid}
		}
		return ScanResult{Valid: true}
	default:
		return ScanResult{Reason: ReasonWrongLocation, MatchedLocation: matched[0]}
	}
}

func tokenMatches(token, text string) bool {
	if strings.Contains(text, token) {
		return true
	}
	return len(text) >= minFragmentLen && strings.Contains(token, text)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
