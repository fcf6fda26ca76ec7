package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	pubkeyLen    = 32
	signatureLen = 64
)

// ErrInvalidEncoding is returned for malformed base58 keys and signatures.
var ErrInvalidEncoding = errors.New("invalid base58 value")

// ValidateSignature checks that sig is a base58 encoded 64-byte transaction signature.
func ValidateSignature(sig string) error {
	return validateBase58(sig, signatureLen)
}

// ValidatePubkey checks that key is a base58 encoded 32-byte public key.
func ValidatePubkey(key string) error {
	return validateBase58(key, pubkeyLen)
}

func validateBase58(s string, size int) error {
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(decoded) != size {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidEncoding, size, len(decoded))
	}
	return nil
}

// IsOnCurve reports whether key is a point on the ed25519 curve.
// Wallet keys are on the curve; program derived addresses are not.
func IsOnCurve(key string) bool {
	decoded, err := base58.Decode(key)
	if err != nil || len(decoded) != pubkeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
