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

// Package keypair implements signing keypair generation, export, import,
// and the low-level sign/verify primitives for the supported algorithms:
//
//   - Ed25519 (default)
//   - ECDSA P-256 with SHA-256 (fallback when Ed25519 is unavailable)
//   - ML-DSA-65 (optional post-quantum scheme, explicit opt-in)
//
// The default algorithm is fixed by a one-time capability probe at first
// use, never re-probed per call; the algorithm actually produced is
// carried on every resulting signature.
//
// Export formats: PKCS#8 DER for Ed25519/ECDSA private keys and PKIX DER
// for their public keys; ML-DSA-65 keys use the scheme's binary encoding.
package keypair

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

var (
	probeOnce sync.Once
	probedAlg types.SignatureAlgorithm
)

// DefaultAlgorithm returns the signature algorithm selected by the
// capability probe: Ed25519 where the primitive is available, otherwise
// ECDSA P-256. The probe runs once per process.
func DefaultAlgorithm() types.SignatureAlgorithm {
	probeOnce.Do(func() {
		if _, _, err := ed25519.GenerateKey(rand.Reader); err == nil {
			probedAlg = types.SignatureEd25519
			return
		}
		probedAlg = types.SignatureECDSAP256
	})
	return probedAlg
}

// Generate creates a fresh keypair for the given algorithm. An empty
// algorithm selects the probed default.
func Generate(alg types.SignatureAlgorithm) (*types.SigningKeyPair, error) {
	if alg == "" {
		alg = DefaultAlgorithm()
	}

	switch alg {
	case types.SignatureEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keypair: ed25519 generation failed: %w", err)
		}
		privDER, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, fmt.Errorf("keypair: failed to encode private key: %w", err)
		}
		pubDER, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("keypair: failed to encode public key: %w", err)
		}
		return &types.SigningKeyPair{Algorithm: alg, PrivateKey: privDER, PublicKey: pubDER}, nil

	case types.SignatureECDSAP256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keypair: ecdsa generation failed: %w", err)
		}
		privDER, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, fmt.Errorf("keypair: failed to encode private key: %w", err)
		}
		pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("keypair: failed to encode public key: %w", err)
		}
		return &types.SigningKeyPair{Algorithm: alg, PrivateKey: privDER, PublicKey: pubDER}, nil

	case types.SignatureMLDSA65:
		pub, priv, err := mldsa65.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keypair: ml-dsa-65 generation failed: %w", err)
		}
		privBytes, err := priv.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keypair: failed to encode private key: %w", err)
		}
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keypair: failed to encode public key: %w", err)
		}
		return &types.SigningKeyPair{Algorithm: alg, PrivateKey: privBytes, PublicKey: pubBytes}, nil

	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
	}
}

// Sign produces a raw signature over message with the pair's private key.
// The message is signed directly for Ed25519 and ML-DSA-65; ECDSA signs
// the SHA-256 digest (ASN.1 DER signature encoding).
func Sign(pair *types.SigningKeyPair, message []byte) ([]byte, error) {
	if pair == nil || len(pair.PrivateKey) == 0 {
		return nil, fmt.Errorf("%w: missing private key", types.ErrInvalidKey)
	}

	switch pair.Algorithm {
	case types.SignatureEd25519:
		key, err := parsePKCS8(pair.PrivateKey)
		if err != nil {
			return nil, err
		}
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an ed25519 private key", types.ErrInvalidKey)
		}
		return ed25519.Sign(priv, message), nil

	case types.SignatureECDSAP256:
		key, err := parsePKCS8(pair.PrivateKey)
		if err != nil {
			return nil, err
		}
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an ecdsa private key", types.ErrInvalidKey)
		}
		digest := sha256.Sum256(message)
		sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
		if err != nil {
			return nil, fmt.Errorf("keypair: ecdsa signing failed: %w", err)
		}
		return sig, nil

	case types.SignatureMLDSA65:
		priv := new(mldsa65.PrivateKey)
		if err := priv.UnmarshalBinary(pair.PrivateKey); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
		}
		sig := make([]byte, mldsa65.SignatureSize)
		if err := mldsa65.SignTo(priv, message, nil, false, sig); err != nil {
			return nil, fmt.Errorf("keypair: ml-dsa-65 signing failed: %w", err)
		}
		return sig, nil

	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, pair.Algorithm)
	}
}

// Verify checks a raw signature over message against an exported public
// key. Returns an error only for malformed input; a well-formed but
// invalid signature returns (false, nil).
func Verify(alg types.SignatureAlgorithm, publicKey, message, sig []byte) (bool, error) {
	if len(publicKey) == 0 {
		return false, fmt.Errorf("%w: missing public key", types.ErrInvalidKey)
	}

	switch alg {
	case types.SignatureEd25519:
		key, err := x509.ParsePKIXPublicKey(publicKey)
		if err != nil {
			return false, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
		}
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: not an ed25519 public key", types.ErrInvalidKey)
		}
		return ed25519.Verify(pub, message, sig), nil

	case types.SignatureECDSAP256:
		key, err := x509.ParsePKIXPublicKey(publicKey)
		if err != nil {
			return false, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
		}
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: not an ecdsa public key", types.ErrInvalidKey)
		}
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(pub, digest[:], sig), nil

	case types.SignatureMLDSA65:
		pub := new(mldsa65.PublicKey)
		if err := pub.UnmarshalBinary(publicKey); err != nil {
			return false, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
		}
		return mldsa65.Verify(pub, message, nil, sig), nil

	default:
		return false, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
	}
}

// parsePKCS8 decodes a PKCS#8 private key.
func parsePKCS8(der []byte) (interface{}, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidKey, err)
	}
	return key, nil
}
