package blueprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// Checksum returns the hex SHA-256 of b.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares b against a recorded checksum.
func VerifyChecksum(b []byte, want string) error {
	if got := Checksum(b); got != want {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrChecksumMismatch, want, got)
	}
	return nil
}
