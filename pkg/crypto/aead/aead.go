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

// Package aead provides the authenticated ciphers behind the encryption
// service: AES-256-GCM (default) and XChaCha20-Poly1305.
//
// Both ciphers provide confidentiality and tamper detection together: a
// flipped bit anywhere in nonce or ciphertext makes Open fail, never
// return altered plaintext. Open failures are reported as ErrOpenFailed
// with no further detail; wrong key and tampered ciphertext are
// indistinguishable here and must stay that way upstream.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sessionvault/pkg/types"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrOpenFailed indicates authenticated decryption failed. Covers both
// authentication-tag mismatch and wrong key.
var ErrOpenFailed = errors.New("aead: open failed")

// Cipher is an authenticated symmetric cipher over raw byte parts.
type Cipher interface {
	// Algorithm returns the cipher's identifier.
	Algorithm() types.SymmetricAlgorithm

	// NonceSize returns the required nonce length in bytes.
	NonceSize() int

	// Seal encrypts and authenticates plaintext, binding aad into the
	// authentication tag. Returns ciphertext with the tag appended.
	Seal(nonce, plaintext, aad []byte) ([]byte, error)

	// Open authenticates and decrypts ciphertext produced by Seal.
	// Returns ErrOpenFailed on any authentication failure.
	Open(nonce, ciphertext, aad []byte) ([]byte, error)
}

// New returns a Cipher for the algorithm using the given 32-byte key.
func New(alg types.SymmetricAlgorithm, key []byte) (Cipher, error) {
	if len(key) != alg.KeySize() || alg.KeySize() == 0 {
		if !alg.Valid() {
			return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
		}
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d",
			types.ErrInvalidKey, alg.KeySize(), len(key))
	}

	switch alg {
	case types.SymmetricAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("aead: failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("aead: failed to create GCM: %w", err)
		}
		return &stdCipher{aead: gcm, alg: alg}, nil

	case types.SymmetricXChaCha20Poly1305:
		xc, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("aead: failed to create XChaCha20-Poly1305: %w", err)
		}
		return &stdCipher{aead: xc, alg: alg}, nil

	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
	}
}

// stdCipher adapts a cipher.AEAD to the Cipher interface.
type stdCipher struct {
	aead cipher.AEAD
	alg  types.SymmetricAlgorithm
}

func (c *stdCipher) Algorithm() types.SymmetricAlgorithm {
	return c.alg
}

func (c *stdCipher) NonceSize() int {
	return c.aead.NonceSize()
}

func (c *stdCipher) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d",
			types.ErrInvalidData, c.aead.NonceSize(), len(nonce))
	}
	return c.aead.Seal(nil, nonce, plaintext, aad), nil
}

func (c *stdCipher) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d",
			types.ErrInvalidData, c.aead.NonceSize(), len(nonce))
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		// Deliberately drop the underlying error: tag mismatch and wrong
		// key must be indistinguishable to callers.
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

var _ Cipher = (*stdCipher)(nil)
