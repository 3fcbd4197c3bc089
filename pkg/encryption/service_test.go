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

package encryption

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(nil)
	require.NoError(t, err)
	return svc
}

func TestService_EncryptDecrypt(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("session state")
	envelope, err := svc.Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.Equal(t, string(types.SymmetricAES256GCM), envelope.AlgorithmID)
	assert.Equal(t, types.EnvelopeFormatVersion, envelope.FormatVersion)
	assert.NotZero(t, envelope.CreatedAt)
	assert.NotEmpty(t, envelope.Ciphertext)
	assert.NotEmpty(t, envelope.IV)
	assert.NotEmpty(t, envelope.Salt)

	out, err := svc.Decrypt(envelope, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestService_EncryptEmptyPlaintext(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte{}, key)
	require.NoError(t, err)

	out, err := svc.Decrypt(envelope, key)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestService_FreshIVAndSaltPerCall(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	a, err := svc.Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	b, err := svc.Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestService_Decrypt_TamperedCiphertext(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	raw, err := encoding.DecodeBase64(envelope.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	envelope.Ciphertext = encoding.EncodeBase64(raw)

	_, err = svc.Decrypt(envelope, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestService_Decrypt_TamperedSalt(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	// The salt is bound into the tag as additional data
	raw, err := encoding.DecodeBase64(envelope.Salt)
	require.NoError(t, err)
	raw[0] ^= 0x01
	envelope.Salt = encoding.EncodeBase64(raw)

	_, err = svc.Decrypt(envelope, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestService_Decrypt_WrongKey(t *testing.T) {
	svc := newTestService(t)
	keyA, err := svc.GenerateKey()
	require.NoError(t, err)
	keyB, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("payload"), keyA)
	require.NoError(t, err)

	// Wrong key is the same failure as tampering
	_, err = svc.Decrypt(envelope, keyB)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestService_Decrypt_MalformedEnvelope(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	valid, err := svc.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(e *types.EncryptedEnvelope)
	}{
		{"missing ciphertext", func(e *types.EncryptedEnvelope) { e.Ciphertext = "" }},
		{"missing iv", func(e *types.EncryptedEnvelope) { e.IV = "" }},
		{"missing salt", func(e *types.EncryptedEnvelope) { e.Salt = "" }},
		{"bad base64 ciphertext", func(e *types.EncryptedEnvelope) { e.Ciphertext = "!!!" }},
		{"bad base64 iv", func(e *types.EncryptedEnvelope) { e.IV = "!!!" }},
		{"unknown algorithm", func(e *types.EncryptedEnvelope) { e.AlgorithmID = "rot13" }},
		{"wrong format version", func(e *types.EncryptedEnvelope) { e.FormatVersion = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope := *valid
			tt.mutate(&envelope)

			_, err := svc.Decrypt(&envelope, key)
			assert.ErrorIs(t, err, types.ErrInvalidData)
		})
	}

	_, err = svc.Decrypt(nil, key)
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestService_Envelope_JSONWireFormat(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	data, err := json.Marshal(envelope)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, name := range []string{
		"ciphertext", "iv", "salt", "algorithmId", "kdfId",
		"kdfIterations", "formatVersion", "createdAt",
	} {
		assert.Contains(t, fields, name)
	}

	var decoded types.EncryptedEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))

	out, err := svc.Decrypt(&decoded, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)
}

func TestService_DeriveKey_Deterministic(t *testing.T) {
	svc := newTestService(t)
	password := types.NewPasswordFromString("master password")

	first, err := svc.DeriveKey(password, nil)
	require.NoError(t, err)
	assert.Len(t, first.Salt, 32)
	assert.Equal(t, types.KDFPBKDF2SHA256, first.KDFID)

	second, err := svc.DeriveKey(password, first.Salt)
	require.NoError(t, err)

	// Same password and salt must unlock the same data
	envelope, err := svc.Encrypt([]byte("locked"), first.Key)
	require.NoError(t, err)
	out, err := svc.Decrypt(envelope, second.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("locked"), out)
}

func TestService_DeriveKey_FreshSaltPerCall(t *testing.T) {
	svc := newTestService(t)
	password := types.NewPasswordFromString("master password")

	a, err := svc.DeriveKey(password, nil)
	require.NoError(t, err)
	b, err := svc.DeriveKey(password, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
}

func TestService_DeriveKey_NotExportable(t *testing.T) {
	svc := newTestService(t)

	derived, err := svc.DeriveKey(types.NewPasswordFromString("pw"), nil)
	require.NoError(t, err)

	// Derived keys unlock data; their raw bytes never leave the handle
	_, err = derived.Key.Raw()
	assert.ErrorIs(t, err, ErrKeyNotExportable)
}

func TestService_GenerateKey_Exportable(t *testing.T) {
	svc := newTestService(t)

	key, err := svc.GenerateKey()
	require.NoError(t, err)

	raw, err := key.Raw()
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestService_RotateKey(t *testing.T) {
	svc := newTestService(t)
	oldKey, err := svc.GenerateKey()
	require.NoError(t, err)
	newKey, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("long lived"), oldKey)
	require.NoError(t, err)

	rotated, err := svc.RotateKey(envelope, oldKey, newKey)
	require.NoError(t, err)

	out, err := svc.Decrypt(rotated, newKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("long lived"), out)

	// The old key no longer opens the rotated envelope
	_, err = svc.Decrypt(rotated, oldKey)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestService_RotateKey_WrongOldKey(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)
	wrong, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	_, err = svc.RotateKey(envelope, wrong, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	// Original envelope still decrypts with the right key
	out, err := svc.Decrypt(envelope, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)
}

func TestService_Batch(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	items := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	envelopes, err := svc.EncryptBatch(items, key)
	require.NoError(t, err)
	require.Len(t, envelopes, 3)

	out, err := svc.DecryptBatch(envelopes, key)
	require.NoError(t, err)
	assert.Equal(t, items, out)
}

func TestService_DecryptBatch_AbortsOnFirstFailure(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	envelopes, err := svc.EncryptBatch([][]byte{[]byte("a"), []byte("b"), []byte("c")}, key)
	require.NoError(t, err)

	raw, err := encoding.DecodeBase64(envelopes[1].Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	envelopes[1].Ciphertext = encoding.EncodeBase64(raw)

	out, err := svc.DecryptBatch(envelopes, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Nil(t, out)
}

func TestService_XChaCha20(t *testing.T) {
	svc, err := NewService(&Config{Algorithm: types.SymmetricXChaCha20Poly1305})
	require.NoError(t, err)

	key, err := svc.GenerateKey()
	require.NoError(t, err)

	envelope, err := svc.Encrypt([]byte("payload"), key)
	require.NoError(t, err)
	assert.Equal(t, string(types.SymmetricXChaCha20Poly1305), envelope.AlgorithmID)

	out, err := svc.Decrypt(envelope, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)
}

func TestNewService_UnknownAlgorithm(t *testing.T) {
	_, err := NewService(&Config{Algorithm: "3des"})
	assert.ErrorIs(t, err, types.ErrUnsupportedAlgorithm)
}

func TestNewKey_WrongSize(t *testing.T) {
	_, err := NewKey(types.SymmetricAES256GCM, make([]byte, 16), true)
	assert.ErrorIs(t, err, types.ErrInvalidKey)
}

func TestKey_Destroy(t *testing.T) {
	svc := newTestService(t)
	key, err := svc.GenerateKey()
	require.NoError(t, err)

	key.Destroy()
	_, err = key.Raw()
	assert.Error(t, err)

	_, err = svc.Encrypt([]byte("payload"), key)
	assert.Error(t, err)
}
