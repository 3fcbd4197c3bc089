// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sessionvault.
//
// go-sessionvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package kdf implements password-based key derivation for the master key
// and password-derived data keys.
//
// Two KDFs are supported:
//   - PBKDF2-HMAC-SHA256 (default), iteration count configurable with a
//     floor of 100,000
//   - Argon2id, where the iteration count is the Argon2 time parameter
//     (memory and parallelism are fixed: 64 MB, 4 lanes)
//
// Derivation is deterministic: identical (password, salt, parameters)
// always produces bit-identical key material. Cryptographic derivation
// failures are never retried.
package kdf

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sessionvault/pkg/types"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the salt length in bytes generated for new derivations.
	SaltSize = 32

	// KeySize is the derived key length in bytes (256-bit keys).
	KeySize = 32

	// MinIterations is the PBKDF2 iteration floor. Requests below it are
	// rejected rather than silently raised.
	MinIterations = 100000

	// DefaultIterations is the PBKDF2 iteration count used when the
	// caller does not configure one.
	DefaultIterations = 310000

	// Argon2 parameters. Only the time parameter varies per derivation;
	// memory and lanes are pinned so derivation stays deterministic
	// across hosts.
	argon2Memory = 64 * 1024
	argon2Lanes  = 4

	// DefaultArgon2Time is the Argon2id time parameter used by default.
	DefaultArgon2Time = 3
)

// ErrDerivationFailed indicates key derivation could not be performed.
var ErrDerivationFailed = errors.New("kdf: key derivation failed")

// Params selects the KDF and its cost.
type Params struct {
	// Algorithm selects the KDF. Empty defaults to PBKDF2-SHA256.
	Algorithm types.KDFAlgorithm

	// Iterations is the PBKDF2 iteration count or the Argon2id time
	// parameter. Zero selects the algorithm default.
	Iterations int
}

// Validate normalizes and checks the parameters.
func (p *Params) Validate() error {
	if p.Algorithm == "" {
		p.Algorithm = types.KDFPBKDF2SHA256
	}
	if !p.Algorithm.Valid() {
		return fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, p.Algorithm)
	}

	switch p.Algorithm {
	case types.KDFPBKDF2SHA256:
		if p.Iterations == 0 {
			p.Iterations = DefaultIterations
		}
		if p.Iterations < MinIterations {
			return fmt.Errorf("%w: iteration count %d below minimum %d",
				ErrDerivationFailed, p.Iterations, MinIterations)
		}
	case types.KDFArgon2id:
		if p.Iterations == 0 {
			p.Iterations = DefaultArgon2Time
		}
		if p.Iterations < 1 {
			return fmt.Errorf("%w: argon2 time parameter must be positive", ErrDerivationFailed)
		}
	}

	return nil
}

// Derive stretches password into KeySize bytes of key material using the
// given salt and parameters.
func Derive(password, salt []byte, params *Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password is empty", ErrDerivationFailed)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt is empty", ErrDerivationFailed)
	}

	p := params
	if p == nil {
		p = &Params{}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Algorithm {
	case types.KDFPBKDF2SHA256:
		return pbkdf2.Key(password, salt, p.Iterations, KeySize, sha256.New), nil
	case types.KDFArgon2id:
		// #nosec G115 - Validate caps Iterations to a small positive int
		return argon2.IDKey(password, salt, uint32(p.Iterations), argon2Memory, argon2Lanes, KeySize), nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, p.Algorithm)
	}
}
