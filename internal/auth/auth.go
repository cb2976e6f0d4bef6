// Package auth owns connect-token minting and the shared-key checks
// used by the insecure connect path.
//
// It intentionally avoids transport and session concerns.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a caller-presented key.
type Validator interface {
	Validate(presented []byte) error
}

// StaticKey accepts a single shared key. It is intended for development
// setups and the insecure connect path, never for production admission.
type StaticKey struct {
	Key []byte
}

func (s StaticKey) Validate(presented []byte) error {
	if len(s.Key) == 0 {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(s.Key, presented) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(presented []byte) error

func (f FuncValidator) Validate(presented []byte) error {
	return f(presented)
}
