// Package iban allocates and validates account identifiers shaped like
// Turkish IBANs: "TR", two check digits, then 22 digits.
package iban

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode"
)

const (
	Prefix    = "TR"
	Length    = 26
	MinLength = 12

	// bankCode and reserve form the fixed part of the BBAN after the check digits.
	bankCode = "00061"
	reserve  = "0"

	accountDigits = 16
	maxAttempts   = 1 << 20
)

var ErrExhausted = errors.New("identifier space exhausted")

// Allocate draws identifiers until one is absent from existing, records it in
// existing and returns it. The caller passes the full live population.
func Allocate(existing map[string]struct{}) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate := generate()
		if _, taken := existing[candidate]; taken {
			continue
		}
		existing[candidate] = struct{}{}
		return candidate, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, maxAttempts)
}

func generate() string {
	var b strings.Builder
	b.Grow(accountDigits)
	for i := 0; i < accountDigits; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	bban := bankCode + reserve + b.String()
	return Prefix + checkDigits(bban) + bban
}

// checkDigits computes ISO 7064 mod 97-10 check digits for a TR BBAN.
func checkDigits(bban string) string {
	// "TR00" moved to the end, letters as numbers: T=29, R=27.
	rearranged := bban + "2927" + "00"
	rem := 0
	for _, c := range rearranged {
		rem = (rem*10 + int(c-'0')) % 97
	}
	return fmt.Sprintf("%02d", 98-rem)
}

// Normalize trims, removes inner whitespace and upper-cases raw input.
func Normalize(raw string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw))
}

// Valid reports whether id has the identifier prefix and minimum length.
// It does not require the identifier to belong to this system.
func Valid(id string) bool {
	return strings.HasPrefix(id, Prefix) && len(id) >= MinLength
}

// Checksum reports whether a full-length identifier carries valid check digits.
func Checksum(id string) bool {
	if len(id) != Length || !strings.HasPrefix(id, Prefix) {
		return false
	}
	for _, c := range id[2:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return checkDigits(id[4:]) == id[2:4]
}
