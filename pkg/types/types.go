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

// Package types defines the value types shared across the sessionvault
// services: the self-describing ciphertext envelope, detached signatures,
// derived key material, and the records persisted by the secure key store.
//
// Envelope and Signature are immutable value types created once per
// operation. Their JSON encodings are the at-rest wire format and must
// round-trip byte-exact; do not add, remove, or rename fields without
// bumping EnvelopeFormatVersion.
package types

import (
	"time"
)

// EnvelopeFormatVersion is the current EncryptedEnvelope wire version.
const EnvelopeFormatVersion = 1

// EncryptedEnvelope is a self-describing ciphertext container holding
// everything needed to decrypt later without external context. Binary
// fields are base64 (StdEncoding) strings; timestamps are Unix
// milliseconds UTC.
//
// Invariants:
//   - Produced only by an authenticated cipher. Any mutation of
//     Ciphertext or IV causes decryption to fail, never to succeed with
//     altered plaintext.
//   - IV and Salt are fresh per call and never reused under the same key.
type EncryptedEnvelope struct {
	Ciphertext    string `json:"ciphertext"`
	IV            string `json:"iv"`
	Salt          string `json:"salt"`
	AlgorithmID   string `json:"algorithmId"`
	KDFID         string `json:"kdfId"`
	KDFIterations int    `json:"kdfIterations"`
	FormatVersion int    `json:"formatVersion"`
	CreatedAt     int64  `json:"createdAt"`
}

// Signature is a detached signature over a message. The signer's public
// key is embedded so signatures self-verify without an external lookup.
type Signature struct {
	Signature   string `json:"signature"`
	AlgorithmID string `json:"algorithmId"`
	PublicKey   string `json:"publicKey"`
	CreatedAt   int64  `json:"createdAt"`
}

// DerivedKeyMaterial is the result of a password-based key derivation.
// Derivation is deterministic: identical (password, salt, iterations)
// always re-derives bit-identical key material. The Key handle is opaque;
// raw bytes surface only through its export gate.
type DerivedKeyMaterial struct {
	Key        SymmetricKey
	Salt       []byte
	Iterations int
	KDFID      KDFAlgorithm
}

// SymmetricKey is an opaque handle to symmetric key material. Raw bytes
// surface only through Raw, which fails for non-exportable keys and for
// keys whose backing buffer has been zeroized.
type SymmetricKey interface {
	// Raw returns a copy of the key bytes. Fails if the key is not
	// exportable or has been destroyed.
	Raw() ([]byte, error)

	// Algorithm returns the cipher the key was generated for.
	Algorithm() SymmetricAlgorithm

	// Destroy zeroizes the backing buffer. The handle is unusable after.
	Destroy()
}

// StoredKeyMetadata describes a key at rest. Listing and eviction operate
// on metadata alone so they never require decryption.
type StoredKeyMetadata struct {
	KeyID      string            `json:"keyId"`
	KeyType    KeyType           `json:"keyType"`
	CreatedAt  int64             `json:"createdAt"`
	LastUsedAt int64             `json:"lastUsedAt"`
	ExpiresAt  int64             `json:"expiresAt,omitempty"`
	Version    int               `json:"version"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time.
// Records without an expiry never expire.
func (m *StoredKeyMetadata) Expired(now time.Time) bool {
	return m.ExpiresAt > 0 && now.UnixMilli() >= m.ExpiresAt
}

// StoredKeyRecord is the persisted representation of one key: the key
// material encrypted under the store's master key, its metadata, and an
// integrity tag over hash(metadata ∥ plaintext key bytes). The tag is
// recomputed and compared on every read; a mismatch is fatal to that read.
type StoredKeyRecord struct {
	EncryptedKey  *EncryptedEnvelope `json:"encryptedKey"`
	Metadata      StoredKeyMetadata  `json:"metadata"`
	IntegrityHash string             `json:"integrityHash"`
}

// KeyIndex maps keyId to metadata. Kept as a separate persisted record so
// listing and eviction never touch encrypted payloads.
type KeyIndex struct {
	Entries map[string]StoredKeyMetadata `json:"entries"`
}

// NewKeyIndex returns an empty index.
func NewKeyIndex() *KeyIndex {
	return &KeyIndex{Entries: make(map[string]StoredKeyMetadata)}
}

// KeySet is the caller-facing bundle produced atomically by the
// orchestrator's GenerateKeySet. It is never persisted as a unit; each
// member is stored as an individual StoredKeyRecord.
type KeySet struct {
	// ID is the logical identifier the members are persisted under.
	ID string

	EncryptionKey  SymmetricKey
	SigningKeyPair *SigningKeyPair
	DerivedKey     *DerivedKeyMaterial

	CreatedAt time.Time
}

// SigningKeyPair bundles a private signing key with its public key.
// The public key is always supplied alongside the private key at sign
// time, never derived from it.
type SigningKeyPair struct {
	Algorithm  SignatureAlgorithm
	PrivateKey []byte
	PublicKey  []byte
}

// NowUnixMilli returns the current UTC time in Unix milliseconds, the
// timestamp representation used throughout the wire format.
func NowUnixMilli() int64 {
	return time.Now().UTC().UnixMilli()
}
