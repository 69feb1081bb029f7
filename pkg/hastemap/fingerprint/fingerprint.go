// Package fingerprint provides a lightweight, fixed-width content digest used
// to detect whether a file's bytes have changed between crawls. Strength
// against deliberate collision is not a goal here — only speed and a low
// accidental-collision rate for files that already differ in size or mtime.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes (160 bits).
const Size = sha1.Size

// Fingerprint is a 160-bit content digest.
type Fingerprint [Size]byte

// Zero is the zero-value fingerprint, used to represent "no digest computed"
// when a pointer isn't convenient.
var Zero Fingerprint

// Compute returns the fingerprint of the given byte sequence.
func Compute(data []byte) Fingerprint {
	return Fingerprint(sha1.Sum(data))
}

// String returns the lowercase hex encoding of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero returns true if the fingerprint is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Zero
}

// Parse decodes a 40-character hex string into a Fingerprint. It returns an
// error if the string is not valid hex or is not exactly Size bytes long.
func Parse(value string) (Fingerprint, error) {
	var result Fingerprint
	if len(value) != Size*2 {
		return result, fmt.Errorf("invalid fingerprint length: %d", len(value))
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return result, fmt.Errorf("invalid fingerprint encoding: %w", err)
	}
	copy(result[:], decoded)
	return result, nil
}

// ParseLoose decodes a hex string into a Fingerprint, returning (Fingerprint,
// ok). It's used by code that receives an externally supplied digest (e.g.
// from a watch source response) and must silently reject anything that isn't
// a well-formed 40-hex-character value rather than erroring.
func ParseLoose(value string) (Fingerprint, bool) {
	f, err := Parse(value)
	if err != nil {
		return Zero, false
	}
	return f, true
}
