// Package idgen generates short, stable hash-based identifiers for
// human-facing entities (issues, DQ rules, CDEs).
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// DefaultLength is the base36 id length used when callers do not care.
const DefaultLength = 6

// EncodeBase36 converts a byte slice to a base36 string of the given
// length, zero-padded on the left and truncated to the least significant
// digits when longer.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}

	s := b.String()
	if len(s) < length {
		s = strings.Repeat("0", length-len(s)) + s
	}
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return s
}

// New creates a prefixed hash-based id from the given content parts and the
// current time. Identical parts at different instants produce different ids.
func New(prefix string, parts ...string) string {
	return NewAt(prefix, time.Now(), parts...)
}

// NewAt is New with an explicit timestamp, for deterministic tests.
func NewAt(prefix string, at time.Time, parts ...string) string {
	content := fmt.Sprintf("%s|%d", strings.Join(parts, "|"), at.UnixNano())
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%s", prefix, EncodeBase36(hash[:5], DefaultLength))
}
