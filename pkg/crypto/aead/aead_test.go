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

package aead

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestCipher_RoundTrip(t *testing.T) {
	for _, alg := range []types.SymmetricAlgorithm{
		types.SymmetricAES256GCM,
		types.SymmetricXChaCha20Poly1305,
	} {
		t.Run(string(alg), func(t *testing.T) {
			key := randomBytes(t, alg.KeySize())
			c, err := New(alg, key)
			require.NoError(t, err)

			nonce := randomBytes(t, c.NonceSize())
			plaintext := []byte("attack at dawn")
			aad := []byte("header")

			ciphertext, err := c.Seal(nonce, plaintext, aad)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, ciphertext)

			out, err := c.Open(nonce, ciphertext, aad)
			require.NoError(t, err)
			assert.Equal(t, plaintext, out)
		})
	}
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	key := randomBytes(t, 32)
	c, err := New(types.SymmetricAES256GCM, key)
	require.NoError(t, err)

	nonce := randomBytes(t, c.NonceSize())
	ciphertext, err := c.Seal(nonce, []byte("payload"), nil)
	require.NoError(t, err)

	for i := range ciphertext {
		tampered := bytes.Clone(ciphertext)
		tampered[i] ^= 0x01

		_, err := c.Open(nonce, tampered, nil)
		assert.ErrorIs(t, err, ErrOpenFailed, "flipping byte %d must fail authentication", i)
	}
}

func TestCipher_TamperedNonce(t *testing.T) {
	key := randomBytes(t, 32)
	c, err := New(types.SymmetricAES256GCM, key)
	require.NoError(t, err)

	nonce := randomBytes(t, c.NonceSize())
	ciphertext, err := c.Seal(nonce, []byte("payload"), nil)
	require.NoError(t, err)

	nonce[0] ^= 0x01
	_, err = c.Open(nonce, ciphertext, nil)
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestCipher_TamperedAAD(t *testing.T) {
	key := randomBytes(t, 32)
	c, err := New(types.SymmetricXChaCha20Poly1305, key)
	require.NoError(t, err)

	nonce := randomBytes(t, c.NonceSize())
	ciphertext, err := c.Seal(nonce, []byte("payload"), []byte("salt-a"))
	require.NoError(t, err)

	_, err = c.Open(nonce, ciphertext, []byte("salt-b"))
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestCipher_WrongKey(t *testing.T) {
	keyA := randomBytes(t, 32)
	keyB := randomBytes(t, 32)

	a, err := New(types.SymmetricAES256GCM, keyA)
	require.NoError(t, err)
	b, err := New(types.SymmetricAES256GCM, keyB)
	require.NoError(t, err)

	nonce := randomBytes(t, a.NonceSize())
	ciphertext, err := a.Seal(nonce, []byte("payload"), nil)
	require.NoError(t, err)

	// Wrong key and tampered ciphertext must be the same failure
	_, err = b.Open(nonce, ciphertext, nil)
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestNew_InvalidKeySize(t *testing.T) {
	_, err := New(types.SymmetricAES256GCM, make([]byte, 16))
	assert.ErrorIs(t, err, types.ErrInvalidKey)
}

func TestNew_UnknownAlgorithm(t *testing.T) {
	_, err := New("des-ecb", make([]byte, 32))
	assert.ErrorIs(t, err, types.ErrUnsupportedAlgorithm)
}

func TestCipher_NonceSizes(t *testing.T) {
	key := make([]byte, 32)

	gcm, err := New(types.SymmetricAES256GCM, key)
	require.NoError(t, err)
	assert.Equal(t, 12, gcm.NonceSize())

	xchacha, err := New(types.SymmetricXChaCha20Poly1305, key)
	require.NoError(t, err)
	assert.Equal(t, 24, xchacha.NonceSize())
}

func TestCipher_WrongNonceLength(t *testing.T) {
	key := make([]byte, 32)
	c, err := New(types.SymmetricAES256GCM, key)
	require.NoError(t, err)

	_, err = c.Seal(make([]byte, 8), []byte("payload"), nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = c.Open(make([]byte, 8), []byte("ciphertext"), nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)
}
