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

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/encryption"
	"github.com/jeremyhahn/go-sessionvault/pkg/keystore"
	"github.com/jeremyhahn/go-sessionvault/pkg/signing"
	"github.com/jeremyhahn/go-sessionvault/pkg/storage"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()

	enc, err := encryption.NewService(nil)
	require.NoError(t, err)
	sig, err := signing.NewService("")
	require.NoError(t, err)

	store, err := keystore.New(&keystore.Config{
		Storage:       storage.NewMemory(),
		Encryption:    enc,
		SweepInterval: -1,
	})
	require.NoError(t, err)
	require.NoError(t, store.Initialize(types.NewPasswordFromString("master password")))
	t.Cleanup(func() { _ = store.Close() })

	v, err := New(&Config{Encryption: enc, Signing: sig, Keystore: store})
	require.NoError(t, err)
	return v
}

func TestNew_RequiresAllServices(t *testing.T) {
	enc, err := encryption.NewService(nil)
	require.NoError(t, err)
	sig, err := signing.NewService("")
	require.NoError(t, err)
	store, err := keystore.New(&keystore.Config{Storage: storage.NewMemory(), SweepInterval: -1})
	require.NoError(t, err)

	_, err = New(nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)
	_, err = New(&Config{Signing: sig, Keystore: store})
	assert.ErrorIs(t, err, types.ErrInvalidData)
	_, err = New(&Config{Encryption: enc, Keystore: store})
	assert.ErrorIs(t, err, types.ErrInvalidData)
	_, err = New(&Config{Encryption: enc, Signing: sig})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestVault_EncryptAndSign_VerifyAndDecrypt(t *testing.T) {
	v := newTestVault(t)

	key, err := v.enc.GenerateKey()
	require.NoError(t, err)
	pair, err := v.sig.GenerateKeyPair("")
	require.NoError(t, err)

	data := []byte("window session state")
	se, err := v.EncryptAndSign(data, key, pair)
	require.NoError(t, err)
	require.NotNil(t, se.Envelope)
	require.NotNil(t, se.Signature)

	out, err := v.VerifyAndDecrypt(se, key, nil)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	out, err = v.VerifyAndDecrypt(se, key, pair.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestVault_VerifyAndDecrypt_TamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	key, err := v.enc.GenerateKey()
	require.NoError(t, err)
	pair, err := v.sig.GenerateKeyPair("")
	require.NoError(t, err)

	se, err := v.EncryptAndSign([]byte("data"), key, pair)
	require.NoError(t, err)

	raw, err := encoding.DecodeBase64(se.Envelope.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	se.Envelope.Ciphertext = encoding.EncodeBase64(raw)

	// The signature covers the envelope, so tampering fails verification
	// before decryption is ever attempted
	_, err = v.VerifyAndDecrypt(se, key, nil)
	assert.ErrorIs(t, err, signing.ErrVerificationFailed)
}

func TestVault_VerifyAndDecrypt_MissingSignature(t *testing.T) {
	v := newTestVault(t)

	key, err := v.enc.GenerateKey()
	require.NoError(t, err)
	pair, err := v.sig.GenerateKeyPair("")
	require.NoError(t, err)

	se, err := v.EncryptAndSign([]byte("data"), key, pair)
	require.NoError(t, err)

	se.Signature = nil
	_, err = v.VerifyAndDecrypt(se, key, nil)
	assert.ErrorIs(t, err, signing.ErrVerificationFailed)

	_, err = v.VerifyAndDecrypt(nil, key, nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestVault_VerifyAndDecrypt_WrongVerifierKey(t *testing.T) {
	v := newTestVault(t)

	key, err := v.enc.GenerateKey()
	require.NoError(t, err)
	pair, err := v.sig.GenerateKeyPair("")
	require.NoError(t, err)
	other, err := v.sig.GenerateKeyPair("")
	require.NoError(t, err)

	se, err := v.EncryptAndSign([]byte("data"), key, pair)
	require.NoError(t, err)

	_, err = v.VerifyAndDecrypt(se, key, other.PublicKey)
	assert.ErrorIs(t, err, signing.ErrVerificationFailed)
}

func TestVault_GenerateKeySet(t *testing.T) {
	v := newTestVault(t)

	set, err := v.GenerateKeySet(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, set.ID)
	assert.NotNil(t, set.EncryptionKey)
	assert.NotNil(t, set.SigningKeyPair)
	assert.Nil(t, set.DerivedKey)
	assert.False(t, set.CreatedAt.IsZero())

	// Both members are persisted under the logical id
	encBytes, encMeta, err := v.store.RetrieveKey(set.ID + ":encryption")
	require.NoError(t, err)
	assert.Equal(t, types.KeyTypeEncryption, encMeta.KeyType)
	assert.Equal(t, set.ID, encMeta.Extra["keySet"])

	raw, err := set.EncryptionKey.Raw()
	require.NoError(t, err)
	assert.Equal(t, raw, encBytes)

	sigBytes, sigMeta, err := v.store.RetrieveKey(set.ID + ":signing")
	require.NoError(t, err)
	assert.Equal(t, types.KeyTypeSigning, sigMeta.KeyType)
	assert.Equal(t, set.SigningKeyPair.PrivateKey, sigBytes)
}

func TestVault_GenerateKeySet_WithPassword(t *testing.T) {
	v := newTestVault(t)

	set, err := v.GenerateKeySet(types.NewPasswordFromString("user password"))
	require.NoError(t, err)
	require.NotNil(t, set.DerivedKey)
	assert.NotEmpty(t, set.DerivedKey.Salt)

	// Derived keys are usable but never persisted
	_, _, err = v.store.RetrieveKey(set.ID + ":derived")
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
}

func TestVault_GenerateKeySet_UniqueIDs(t *testing.T) {
	v := newTestVault(t)

	a, err := v.GenerateKeySet(nil)
	require.NoError(t, err)
	b, err := v.GenerateKeySet(nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestVault_SecureForStorage_RestoreFromStorage(t *testing.T) {
	v := newTestVault(t)

	original := map[string]interface{}{"url": "https://a"}
	payload, err := v.SecureForStorage(original)
	require.NoError(t, err)
	require.NotNil(t, payload.Data)
	require.NotNil(t, payload.Signature)
	assert.NotEmpty(t, payload.KeyID)

	var restored map[string]interface{}
	require.NoError(t, v.RestoreFromStorage(payload, &restored))
	assert.Equal(t, original, restored)
}

func TestVault_RestoreFromStorage_Tampered(t *testing.T) {
	v := newTestVault(t)

	payload, err := v.SecureForStorage(map[string]string{"url": "https://a"})
	require.NoError(t, err)

	raw, err := encoding.DecodeBase64(payload.Data.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	payload.Data.Ciphertext = encoding.EncodeBase64(raw)

	var out map[string]string
	err = v.RestoreFromStorage(payload, &out)
	assert.ErrorIs(t, err, signing.ErrVerificationFailed)
}

func TestVault_RestoreFromStorage_MissingSignature(t *testing.T) {
	v := newTestVault(t)

	payload, err := v.SecureForStorage(map[string]string{"k": "v"})
	require.NoError(t, err)

	payload.Signature = nil
	var out map[string]string
	err = v.RestoreFromStorage(payload, &out)
	assert.ErrorIs(t, err, signing.ErrVerificationFailed)
}

func TestVault_RestoreFromStorage_MissingKey(t *testing.T) {
	v := newTestVault(t)

	payload, err := v.SecureForStorage(map[string]string{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, v.store.DeleteKey(payload.KeyID))

	var out map[string]string
	err = v.RestoreFromStorage(payload, &out)
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
}

func TestVault_UninitializedStoreFailsFast(t *testing.T) {
	enc, err := encryption.NewService(nil)
	require.NoError(t, err)
	sig, err := signing.NewService("")
	require.NoError(t, err)
	store, err := keystore.New(&keystore.Config{
		Storage:       storage.NewMemory(),
		Encryption:    enc,
		SweepInterval: -1,
	})
	require.NoError(t, err)

	v, err := New(&Config{Encryption: enc, Signing: sig, Keystore: store})
	require.NoError(t, err)

	_, err = v.GenerateKeySet(nil)
	assert.ErrorIs(t, err, keystore.ErrNotInitialized)

	_, err = v.SecureForStorage(map[string]string{"k": "v"})
	assert.ErrorIs(t, err, keystore.ErrNotInitialized)
}
