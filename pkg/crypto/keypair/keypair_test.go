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

package keypair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

var allAlgorithms = []types.SignatureAlgorithm{
	types.SignatureEd25519,
	types.SignatureECDSAP256,
	types.SignatureMLDSA65,
}

func TestDefaultAlgorithm(t *testing.T) {
	alg := DefaultAlgorithm()
	assert.Equal(t, types.SignatureEd25519, alg)

	// The probe result is fixed for the process lifetime
	assert.Equal(t, alg, DefaultAlgorithm())
}

func TestGenerate_SignVerify(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			pair, err := Generate(alg)
			require.NoError(t, err)
			assert.Equal(t, alg, pair.Algorithm)
			assert.NotEmpty(t, pair.PrivateKey)
			assert.NotEmpty(t, pair.PublicKey)

			message := []byte("signed content")
			sig, err := Sign(pair, message)
			require.NoError(t, err)
			assert.NotEmpty(t, sig)

			ok, err := Verify(alg, pair.PublicKey, message, sig)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestVerify_TamperedMessage(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			pair, err := Generate(alg)
			require.NoError(t, err)

			sig, err := Sign(pair, []byte("original"))
			require.NoError(t, err)

			ok, err := Verify(alg, pair.PublicKey, []byte("altered"), sig)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVerify_WrongPublicKey(t *testing.T) {
	pair, err := Generate(types.SignatureEd25519)
	require.NoError(t, err)
	other, err := Generate(types.SignatureEd25519)
	require.NoError(t, err)

	message := []byte("message")
	sig, err := Sign(pair, message)
	require.NoError(t, err)

	ok, err := Verify(types.SignatureEd25519, other.PublicKey, message, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MalformedPublicKey(t *testing.T) {
	pair, err := Generate(types.SignatureEd25519)
	require.NoError(t, err)

	sig, err := Sign(pair, []byte("message"))
	require.NoError(t, err)

	_, err = Verify(types.SignatureEd25519, []byte("not a key"), []byte("message"), sig)
	assert.Error(t, err)
}

func TestGenerate_UnknownAlgorithm(t *testing.T) {
	_, err := Generate("rsa-4096")
	assert.ErrorIs(t, err, types.ErrUnsupportedAlgorithm)
}

func TestGenerate_FreshKeys(t *testing.T) {
	a, err := Generate(types.SignatureEd25519)
	require.NoError(t, err)
	b, err := Generate(types.SignatureEd25519)
	require.NoError(t, err)

	assert.NotEqual(t, a.PrivateKey, b.PrivateKey)
	assert.NotEqual(t, a.PublicKey, b.PublicKey)
}

func TestSign_NilPair(t *testing.T) {
	_, err := Sign(nil, []byte("message"))
	assert.Error(t, err)
}
