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

// Package encryption implements the authenticated symmetric encryption
// service: key generation, password-based key derivation with a TTL
// cache, envelope encrypt/decrypt, key rotation, and batch operations.
//
// Ciphertext is returned as a self-describing EncryptedEnvelope. Every
// call uses a fresh IV and salt; the salt is bound into the cipher's
// authentication tag as additional data, so envelope-level salt swaps
// fail authentication.
package encryption

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/aead"
	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/rand"
	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// DefaultCacheTTL is the derived-key cache lifetime used when the
// configuration does not set one.
const DefaultCacheTTL = 5 * time.Minute

// Config contains configuration for the encryption Service.
type Config struct {
	// Algorithm selects the authenticated cipher.
	// Defaults to AES-256-GCM.
	Algorithm types.SymmetricAlgorithm

	// KDF configures password-based key derivation.
	KDF kdf.Params

	// CacheTTL is the derived-key cache lifetime. Zero selects
	// DefaultCacheTTL; negative disables caching.
	CacheTTL time.Duration

	// RNG is the randomness source for keys, IVs, and salts.
	// Defaults to the software resolver.
	RNG rand.Resolver
}

// Service performs authenticated symmetric encryption. Stateless apart
// from the derived-key cache; safe for concurrent use.
type Service struct {
	alg       types.SymmetricAlgorithm
	kdfParams kdf.Params
	rng       rand.Resolver
	cache     *keyCache
}

// NewService creates an encryption service from the configuration.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = types.SymmetricAES256GCM
	}
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
	}

	params := cfg.KDF
	if err := params.Validate(); err != nil {
		return nil, err
	}

	rng := cfg.RNG
	if rng == nil {
		r, err := rand.NewResolver(rand.ModeAuto)
		if err != nil {
			return nil, fmt.Errorf("encryption: failed to initialize RNG: %w", err)
		}
		rng = r
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	return &Service{
		alg:       alg,
		kdfParams: params,
		rng:       rng,
		cache:     newKeyCache(ttl),
	}, nil
}

// Algorithm returns the cipher the service encrypts with.
func (s *Service) Algorithm() types.SymmetricAlgorithm {
	return s.alg
}

// KDFParams returns the service's key derivation parameters.
func (s *Service) KDFParams() kdf.Params {
	return s.kdfParams
}

// GenerateKey generates a fresh 256-bit key for the configured cipher.
// The key is exportable so it can be persisted by the key store.
func (s *Service) GenerateKey() (types.SymmetricKey, error) {
	raw, err := s.rng.Rand(s.alg.KeySize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	defer secret.Zeroize(raw)

	return NewKey(s.alg, raw, true)
}

// DeriveKey stretches a password into key material. A fresh salt is
// generated when salt is nil; supplying the same (password, salt) always
// re-derives bit-identical material. The result is cached for the
// configured TTL keyed by a digest of the derivation inputs.
//
// The returned key handle is non-exportable: derived keys unlock data,
// they are never persisted themselves.
func (s *Service) DeriveKey(password types.Password, salt []byte) (*types.DerivedKeyMaterial, error) {
	if password == nil {
		return nil, fmt.Errorf("%w: password is required", kdf.ErrDerivationFailed)
	}
	pw, err := password.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kdf.ErrDerivationFailed, err)
	}
	defer secret.Zeroize(pw)

	if salt == nil {
		salt, err = s.rng.Rand(kdf.SaltSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kdf.ErrDerivationFailed, err)
		}
	}

	params := s.kdfParams
	ck := cacheKey(pw, salt, params.Iterations, params.Algorithm)

	raw := s.cache.get(ck)
	if raw == nil {
		raw, err = kdf.Derive(pw, salt, &params)
		if err != nil {
			return nil, err
		}
		s.cache.put(ck, raw)
	}
	defer secret.Zeroize(raw)

	key, err := NewKey(s.alg, raw, false)
	if err != nil {
		return nil, err
	}

	saltCopy := make([]byte, len(salt))
	copy(saltCopy, salt)

	return &types.DerivedKeyMaterial{
		Key:        key,
		Salt:       saltCopy,
		Iterations: params.Iterations,
		KDFID:      params.Algorithm,
	}, nil
}

// Encrypt authenticated-encrypts plaintext under key, returning a
// self-describing envelope. IV and salt are fresh per call; the salt is
// authenticated as additional data.
func (s *Service) Encrypt(plaintext []byte, key types.SymmetricKey) (*types.EncryptedEnvelope, error) {
	raw, err := keyBytes(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
	}
	defer secret.Zeroize(raw)

	cipher, err := aead.New(s.alg, raw)
	if err != nil {
		return nil, err
	}

	iv, err := s.rng.Rand(cipher.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	salt, err := s.rng.Rand(kdf.SaltSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext, err := cipher.Seal(iv, plaintext, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return &types.EncryptedEnvelope{
		Ciphertext:    encoding.EncodeBase64(ciphertext),
		IV:            encoding.EncodeBase64(iv),
		Salt:          encoding.EncodeBase64(salt),
		AlgorithmID:   string(s.alg),
		KDFID:         string(s.kdfParams.Algorithm),
		KDFIterations: s.kdfParams.Iterations,
		FormatVersion: types.EnvelopeFormatVersion,
		CreatedAt:     types.NowUnixMilli(),
	}, nil
}

// Decrypt validates the envelope's shape and then authenticated-decrypts
// it. Structural problems (missing fields, malformed base64, unknown or
// mismatched algorithm) fail with types.ErrInvalidData before any
// cryptography runs; authentication failure and wrong key both fail with
// ErrDecryptionFailed and are never distinguished.
func (s *Service) Decrypt(envelope *types.EncryptedEnvelope, key types.SymmetricKey) ([]byte, error) {
	ciphertext, iv, salt, err := validateEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	raw, err := keyBytes(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
	}
	defer secret.Zeroize(raw)

	cipher, err := aead.New(types.SymmetricAlgorithm(envelope.AlgorithmID), raw)
	if err != nil {
		return nil, err
	}

	plaintext, err := cipher.Open(iv, ciphertext, salt)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// RotateKey re-encrypts an envelope from oldKey to newKey. If decryption
// fails the rotation fails atomically and the original envelope is
// untouched; the caller keeps it.
func (s *Service) RotateKey(envelope *types.EncryptedEnvelope, oldKey, newKey types.SymmetricKey) (*types.EncryptedEnvelope, error) {
	plaintext, err := s.Decrypt(envelope, oldKey)
	if err != nil {
		return nil, err
	}
	defer secret.Zeroize(plaintext)

	return s.Encrypt(plaintext, newKey)
}

// EncryptBatch encrypts items sequentially under key. The first failure
// aborts the batch; nothing is partially returned.
func (s *Service) EncryptBatch(items [][]byte, key types.SymmetricKey) ([]*types.EncryptedEnvelope, error) {
	envelopes := make([]*types.EncryptedEnvelope, 0, len(items))
	for i, item := range items {
		envelope, err := s.Encrypt(item, key)
		if err != nil {
			return nil, fmt.Errorf("encryption: batch item %d: %w", i, err)
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

// DecryptBatch decrypts envelopes sequentially under key. The first
// failure aborts the batch.
func (s *Service) DecryptBatch(envelopes []*types.EncryptedEnvelope, key types.SymmetricKey) ([][]byte, error) {
	items := make([][]byte, 0, len(envelopes))
	for i, envelope := range envelopes {
		item, err := s.Decrypt(envelope, key)
		if err != nil {
			return nil, fmt.Errorf("encryption: batch item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// PurgeCache zeroizes and drops all cached derived keys.
func (s *Service) PurgeCache() {
	s.cache.purge()
}

// validateEnvelope checks required fields and encodings, returning the
// decoded binary parts. All failures are types.ErrInvalidData.
func validateEnvelope(envelope *types.EncryptedEnvelope) (ciphertext, iv, salt []byte, err error) {
	if envelope == nil {
		return nil, nil, nil, fmt.Errorf("%w: envelope is nil", types.ErrInvalidData)
	}
	if envelope.FormatVersion != types.EnvelopeFormatVersion {
		return nil, nil, nil, fmt.Errorf("%w: unsupported format version %d",
			types.ErrInvalidData, envelope.FormatVersion)
	}
	if !types.SymmetricAlgorithm(envelope.AlgorithmID).Valid() {
		return nil, nil, nil, fmt.Errorf("%w: unknown algorithm %q",
			types.ErrInvalidData, envelope.AlgorithmID)
	}
	if envelope.Ciphertext == "" || envelope.IV == "" || envelope.Salt == "" {
		return nil, nil, nil, fmt.Errorf("%w: missing envelope fields", types.ErrInvalidData)
	}

	ciphertext, err = encoding.DecodeBase64(envelope.Ciphertext)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: ciphertext: %v", types.ErrInvalidData, err)
	}
	iv, err = encoding.DecodeBase64(envelope.IV)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: iv: %v", types.ErrInvalidData, err)
	}
	salt, err = encoding.DecodeBase64(envelope.Salt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: salt: %v", types.ErrInvalidData, err)
	}

	return ciphertext, iv, salt, nil
}
