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

package types

// SymmetricAlgorithm identifies an authenticated symmetric cipher.
// The identifier is carried verbatim in every EncryptedEnvelope so that
// ciphertext remains self-describing across versions.
type SymmetricAlgorithm string

const (
	// SymmetricAES256GCM is AES-256 in Galois/Counter Mode (default).
	SymmetricAES256GCM SymmetricAlgorithm = "aes-256-gcm"

	// SymmetricXChaCha20Poly1305 is XChaCha20-Poly1305 with a 24-byte nonce.
	SymmetricXChaCha20Poly1305 SymmetricAlgorithm = "xchacha20-poly1305"
)

// KeySize returns the key size in bytes for the algorithm, or 0 if unknown.
func (a SymmetricAlgorithm) KeySize() int {
	switch a {
	case SymmetricAES256GCM, SymmetricXChaCha20Poly1305:
		return 32
	default:
		return 0
	}
}

// Valid reports whether the algorithm identifier is recognized.
func (a SymmetricAlgorithm) Valid() bool {
	return a.KeySize() != 0
}

// SignatureAlgorithm identifies an asymmetric signature scheme.
type SignatureAlgorithm string

const (
	// SignatureEd25519 is the default EdDSA-family algorithm.
	SignatureEd25519 SignatureAlgorithm = "ed25519"

	// SignatureECDSAP256 is the ECDSA P-256/SHA-256 fallback used when the
	// EdDSA primitive is unavailable on the platform.
	SignatureECDSAP256 SignatureAlgorithm = "ecdsa-p256"

	// SignatureMLDSA65 is the optional post-quantum ML-DSA-65 scheme.
	// Never selected by the capability probe; callers opt in explicitly.
	SignatureMLDSA65 SignatureAlgorithm = "ml-dsa-65"
)

// Valid reports whether the algorithm identifier is recognized.
func (a SignatureAlgorithm) Valid() bool {
	switch a {
	case SignatureEd25519, SignatureECDSAP256, SignatureMLDSA65:
		return true
	default:
		return false
	}
}

// KDFAlgorithm identifies a password-based key derivation function.
type KDFAlgorithm string

const (
	// KDFPBKDF2SHA256 is PBKDF2 with HMAC-SHA256 (default).
	KDFPBKDF2SHA256 KDFAlgorithm = "pbkdf2-sha256"

	// KDFArgon2id is Argon2id. The iteration count in DerivedKeyMaterial
	// holds the Argon2 time parameter for this KDF.
	KDFArgon2id KDFAlgorithm = "argon2id"
)

// Valid reports whether the KDF identifier is recognized.
func (a KDFAlgorithm) Valid() bool {
	switch a {
	case KDFPBKDF2SHA256, KDFArgon2id:
		return true
	default:
		return false
	}
}

// KeyType classifies the purpose of a stored key.
type KeyType string

const (
	// KeyTypeEncryption marks a symmetric data-encryption key.
	KeyTypeEncryption KeyType = "encryption"

	// KeyTypeSigning marks an asymmetric signing key (private half).
	KeyTypeSigning KeyType = "signing"

	// KeyTypeDerived marks password-derived key material.
	KeyTypeDerived KeyType = "derived"
)
