package model

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

const codeBytes = 20

var ErrMalformedCode = errors.New("malformed verification code")

// VerificationCode is the one-time capability handed out in a verification
// link. String() is redacted; use Reveal() only when building the link.
type VerificationCode string

func NewVerificationCode() (VerificationCode, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return VerificationCode(hex.EncodeToString(buf)), nil
}

func ParseVerificationCode(raw string) (VerificationCode, error) {
	if len(raw) != codeBytes*2 {
		return "", ErrMalformedCode
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", ErrMalformedCode
	}
	return VerificationCode(raw), nil
}

// Hash is the storage key for the code.
func (c VerificationCode) Hash() string {
	sum := blake2b.Sum256([]byte(c))
	return hex.EncodeToString(sum[:])
}

func (c VerificationCode) Reveal() string {
	return string(c)
}

func (c VerificationCode) String() string {
	if len(c) <= 6 {
		return "***"
	}
	return string(c[:6]) + "***"
}
