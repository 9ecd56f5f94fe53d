package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding whitespace and applies NFKC so that
// visually identical usernames compare equal.
func NormalizeName(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
