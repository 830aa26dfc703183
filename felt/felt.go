// Package felt holds the small field-element helpers the indexer payloads need:
// integer coercion, address normalization and Cairo short-string decoding.
package felt

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// AddressHexLen is the number of hex digits in a padded Starknet address.
const AddressHexLen = 64

// ParseUint coerces a felt-ish value ("0x2a", "42", "42.0") into a uint64.
// The second return value is false for empty, malformed or overflowing input.
func ParseUint(raw string) (uint64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, true
	}
	// JSON numbers sometimes arrive as floats with a zero fraction.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != float64(uint64(f)) {
		return 0, false
	}
	return uint64(f), true
}

// ParseUintPtr is ParseUint returning nil on failure.
func ParseUintPtr(raw string) *uint64 {
	if v, ok := ParseUint(raw); ok {
		return &v
	}
	return nil
}

// PadAddress lower-cases an address and left-pads it to 64 hex digits.
// Values that are not hex are returned lower-cased and trimmed.
func PadAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	if s == "" {
		return ""
	}
	digits := strings.TrimPrefix(s, "0x")
	if digits == "" || !isHex(digits) {
		return s
	}
	if len(digits) > AddressHexLen {
		return "0x" + digits
	}
	return "0x" + strings.Repeat("0", AddressHexLen-len(digits)) + digits
}

// SameAddress compares two addresses after padding.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return PadAddress(a) == PadAddress(b)
}

// DecodeShortString turns a felt-encoded Cairo short string back into text.
// Hex and decimal felts are decoded; anything else is assumed to be plain text
// already and is returned unchanged.
func DecodeShortString(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	n := new(big.Int)
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		if _, ok := n.SetString(s[2:], 16); !ok {
			return raw
		}
	case isDecimal(s):
		n.SetString(s, 10)
	default:
		return raw
	}
	if n.Sign() == 0 {
		return ""
	}
	b := n.Bytes()
	for _, c := range b {
		if c > unicode.MaxASCII || (c < 0x20 && c != '\t') {
			return raw
		}
	}
	return string(b)
}

// EncodeShortString encodes text (at most 31 ASCII bytes) as a hex felt.
func EncodeShortString(text string) string {
	if text == "" {
		return "0x0"
	}
	return "0x" + hex.EncodeToString([]byte(text))
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
