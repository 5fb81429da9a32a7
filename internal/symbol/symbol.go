// Package symbol validates and normalizes tradable instrument symbols.
// Game modules pass user-typed symbols straight through, so the engine
// canonicalizes once here instead of trusting every caller.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches a canonical symbol: 1–12 characters, leading letter,
// uppercase letters and digits only. Example: ACME, BTC2, X.
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,11}$`)

// ErrInvalidSymbol is returned for symbols that do not normalize to the
// canonical form.
var ErrInvalidSymbol = errors.New("symbol: invalid instrument symbol")

// Normalize canonicalizes a raw symbol (trims whitespace, uppercases) and
// validates it.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return s, nil
}
