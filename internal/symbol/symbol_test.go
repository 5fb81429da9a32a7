package symbol_test

import (
	"errors"
	"testing"

	"github.com/guildpay/ledger-engine/internal/symbol"
)

func TestNormalize_Valid(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ACME", "ACME"},
		{"acme", "ACME"},
		{"  acme  ", "ACME"},
		{"BTC2", "BTC2"},
		{"X", "X"},
		{"ABCDEFGHIJKL", "ABCDEFGHIJKL"}, // 12 chars, max length
	}
	for _, tc := range cases {
		got, err := symbol.Normalize(tc.in)
		if err != nil {
			t.Errorf("Normalize(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"2ACME",         // leading digit
		"AC-ME",         // punctuation
		"AC ME",         // interior space
		"ABCDEFGHIJKLM", // 13 chars, too long
		"açme",
	}
	for _, in := range cases {
		if _, err := symbol.Normalize(in); !errors.Is(err, symbol.ErrInvalidSymbol) {
			t.Errorf("Normalize(%q): expected ErrInvalidSymbol, got %v", in, err)
		}
	}
}
