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

// Package vault composes the encryption service, signature service, and
// key store into combined operations: encrypt-then-sign, verify-then-
// decrypt, key set generation, and sealing arbitrary objects for
// persistence.
//
// Verification always gates decryption. A payload whose signature does
// not verify is never decrypted, so tampered data is rejected before any
// key material touches it.
package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/encryption"
	"github.com/jeremyhahn/go-sessionvault/pkg/keystore"
	"github.com/jeremyhahn/go-sessionvault/pkg/logging"
	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/signing"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// Config contains the services the Vault composes. All three are
// injected; the vault never constructs its own.
type Config struct {
	Encryption *encryption.Service
	Signing    *signing.Service
	Keystore   *keystore.Store

	// Logger defaults to the package default logger.
	Logger *logging.Logger
}

// Vault is the high-level coordinator. Stateless apart from its injected
// services; safe for concurrent use.
type Vault struct {
	enc    *encryption.Service
	sig    *signing.Service
	store  *keystore.Store
	logger *logging.Logger
}

// New creates a Vault from injected services. The key store must already
// be constructed but need not be initialized; operations that touch it
// fail with keystore.ErrNotInitialized until it is.
func New(cfg *Config) (*Vault, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", types.ErrInvalidData)
	}
	if cfg.Encryption == nil {
		return nil, fmt.Errorf("%w: encryption service is required", types.ErrInvalidData)
	}
	if cfg.Signing == nil {
		return nil, fmt.Errorf("%w: signing service is required", types.ErrInvalidData)
	}
	if cfg.Keystore == nil {
		return nil, fmt.Errorf("%w: key store is required", types.ErrInvalidData)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return &Vault{
		enc:    cfg.Encryption,
		sig:    cfg.Signing,
		store:  cfg.Keystore,
		logger: logger,
	}, nil
}

// SignedEnvelope pairs ciphertext with a detached signature over the
// envelope's canonical JSON serialization.
type SignedEnvelope struct {
	Envelope  *types.EncryptedEnvelope `json:"envelope"`
	Signature *types.Signature         `json:"signature"`
}

// EncryptAndSign encrypts data under key and signs the resulting
// envelope's canonical serialization with pair. The signature covers
// every envelope field, so altering the ciphertext, IV, salt, or any
// header invalidates it.
func (v *Vault) EncryptAndSign(data []byte, key types.SymmetricKey, pair *types.SigningKeyPair) (*SignedEnvelope, error) {
	envelope, err := v.enc.Encrypt(data, key)
	if err != nil {
		return nil, err
	}

	sig, err := v.sig.SignJSON(envelope, pair)
	if err != nil {
		return nil, err
	}

	return &SignedEnvelope{Envelope: envelope, Signature: sig}, nil
}

// VerifyAndDecrypt verifies the signed envelope and, only if the
// signature checks out, decrypts it under key. The publicKey parameter
// overrides the key embedded in the signature when non-nil. A failed or
// missing signature fails with signing.ErrVerificationFailed before any
// decryption is attempted.
func (v *Vault) VerifyAndDecrypt(se *SignedEnvelope, key types.SymmetricKey, publicKey []byte) ([]byte, error) {
	if se == nil || se.Envelope == nil {
		return nil, fmt.Errorf("%w: signed envelope is required", types.ErrInvalidData)
	}
	if se.Signature == nil {
		return nil, fmt.Errorf("%w: signature is missing", signing.ErrVerificationFailed)
	}

	if !v.sig.VerifyJSON(se.Envelope, se.Signature, publicKey) {
		return nil, signing.ErrVerificationFailed
	}

	return v.enc.Decrypt(se.Envelope, key)
}

// GenerateKeySet generates a fresh encryption key and signing keypair
// under one logical id and persists both in the key store. When password
// is non-nil a derived key is included in the returned set; derived keys
// unlock data and are never persisted. Generation is atomic: if any
// member fails to persist, already-persisted members are removed.
func (v *Vault) GenerateKeySet(password types.Password) (*types.KeySet, error) {
	id := uuid.NewString()

	encKey, err := v.enc.GenerateKey()
	if err != nil {
		return nil, err
	}

	pair, err := v.sig.GenerateKeyPair("")
	if err != nil {
		encKey.Destroy()
		return nil, err
	}

	var derived *types.DerivedKeyMaterial
	if password != nil {
		derived, err = v.enc.DeriveKey(password, nil)
		if err != nil {
			encKey.Destroy()
			return nil, err
		}
	}

	raw, err := encKey.Raw()
	if err != nil {
		encKey.Destroy()
		return nil, err
	}
	defer secret.Zeroize(raw)

	encID := id + ":encryption"
	sigID := id + ":signing"

	if err := v.store.StoreKey(encID, raw, types.StoredKeyMetadata{
		KeyType: types.KeyTypeEncryption,
		Extra: map[string]string{
			"keySet":    id,
			"algorithm": string(encKey.Algorithm()),
		},
	}); err != nil {
		encKey.Destroy()
		return nil, err
	}

	if err := v.store.StoreKey(sigID, pair.PrivateKey, types.StoredKeyMetadata{
		KeyType: types.KeyTypeSigning,
		Extra: map[string]string{
			"keySet":    id,
			"algorithm": string(pair.Algorithm),
			"publicKey": encoding.EncodeBase64(pair.PublicKey),
		},
	}); err != nil {
		if delErr := v.store.DeleteKey(encID); delErr != nil {
			v.logger.Errorf("vault: rolling back key set %s: %v", id, delErr)
		}
		encKey.Destroy()
		return nil, err
	}

	return &types.KeySet{
		ID:             id,
		EncryptionKey:  encKey,
		SigningKeyPair: pair,
		DerivedKey:     derived,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// StoredPayload is a sealed object ready for untrusted persistence:
// ciphertext, a detached signature over it, and the id of the one-time
// key held by the key store.
type StoredPayload struct {
	FormatVersion int                      `json:"formatVersion"`
	KeyID         string                   `json:"keyId"`
	Data          *types.EncryptedEnvelope `json:"data"`
	Signature     *types.Signature         `json:"signature"`
	CreatedAt     int64                    `json:"createdAt"`
}

// SecureForStorage serializes value canonically, encrypts it under a
// fresh one-time key, and signs the ciphertext with a fresh one-time
// signing keypair. The encryption key is persisted in the key store
// under the payload's key id; the signing private key is discarded after
// use, leaving only the embedded public key for verification.
func (v *Vault) SecureForStorage(value interface{}) (*StoredPayload, error) {
	plaintext, err := encoding.MarshalCanonical(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	defer secret.Zeroize(plaintext)

	key, err := v.enc.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	envelope, err := v.enc.Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}

	pair, err := v.sig.GenerateKeyPair("")
	if err != nil {
		return nil, err
	}

	sig, err := v.sig.SignJSON(envelope, pair)
	if err != nil {
		return nil, err
	}
	secret.Zeroize(pair.PrivateKey)

	raw, err := key.Raw()
	if err != nil {
		return nil, err
	}
	defer secret.Zeroize(raw)

	keyID := "payload:" + uuid.NewString()
	if err := v.store.StoreKey(keyID, raw, types.StoredKeyMetadata{
		KeyType: types.KeyTypeEncryption,
		Extra:   map[string]string{"purpose": "stored-payload"},
	}); err != nil {
		return nil, err
	}

	return &StoredPayload{
		FormatVersion: types.EnvelopeFormatVersion,
		KeyID:         keyID,
		Data:          envelope,
		Signature:     sig,
		CreatedAt:     types.NowUnixMilli(),
	}, nil
}

// RestoreFromStorage verifies a stored payload, decrypts it with the key
// store's copy of its one-time key, and unmarshals the plaintext into
// value. Payloads missing their signature or whose signature does not
// verify are rejected before decryption.
func (v *Vault) RestoreFromStorage(payload *StoredPayload, value interface{}) error {
	if payload == nil || payload.Data == nil || payload.KeyID == "" {
		return fmt.Errorf("%w: stored payload is incomplete", types.ErrInvalidData)
	}
	if payload.Signature == nil {
		return fmt.Errorf("%w: payload signature is missing", signing.ErrVerificationFailed)
	}

	if !v.sig.VerifyJSON(payload.Data, payload.Signature, nil) {
		return signing.ErrVerificationFailed
	}

	raw, _, err := v.store.RetrieveKey(payload.KeyID)
	if err != nil {
		return err
	}
	defer secret.Zeroize(raw)

	key, err := encryption.NewKey(types.SymmetricAlgorithm(payload.Data.AlgorithmID), raw, false)
	if err != nil {
		return err
	}
	defer key.Destroy()

	plaintext, err := v.enc.Decrypt(payload.Data, key)
	if err != nil {
		return err
	}
	defer secret.Zeroize(plaintext)

	if err := json.Unmarshal(plaintext, value); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return nil
}
