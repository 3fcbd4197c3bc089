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

// Package signing implements the detached signature service: keypair
// generation with a probed default algorithm, sign/verify over raw bytes
// and canonical JSON, timestamped signatures, batch operations, and
// hash-linked signature chains.
//
// Verification is a pure predicate: it never raises. Every internal
// failure, malformed input included, maps to false so callers cannot be
// used as an exception-based oracle.
package signing

import (
	"encoding/binary"
	"fmt"

	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/keypair"
	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// Service produces and verifies detached signatures. Stateless and safe
// for concurrent use.
type Service struct {
	alg types.SignatureAlgorithm
}

// NewService creates a signing service. An empty algorithm selects the
// platform default fixed by the one-time capability probe (Ed25519,
// falling back to ECDSA P-256).
func NewService(alg types.SignatureAlgorithm) (*Service, error) {
	if alg == "" {
		alg = keypair.DefaultAlgorithm()
	}
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
	}
	return &Service{alg: alg}, nil
}

// Algorithm returns the service's default signature algorithm.
func (s *Service) Algorithm() types.SignatureAlgorithm {
	return s.alg
}

// GenerateKeyPair generates a signing keypair. An empty algorithm selects
// the service default. The algorithm actually produced is carried on
// every Signature made with the pair.
func (s *Service) GenerateKeyPair(alg types.SignatureAlgorithm) (*types.SigningKeyPair, error) {
	if alg == "" {
		alg = s.alg
	}
	pair, err := keypair.Generate(alg)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Sign signs message with the pair's private key. The exported public key
// is embedded in the result so signatures self-verify without an external
// lookup. The public key always comes from the pair, never derived from
// the private key.
func (s *Service) Sign(message []byte, pair *types.SigningKeyPair) (*types.Signature, error) {
	if pair == nil {
		return nil, fmt.Errorf("%w: keypair is required", types.ErrInvalidKey)
	}
	if len(pair.PublicKey) == 0 {
		return nil, fmt.Errorf("%w: public key must be supplied with the private key", types.ErrInvalidKey)
	}

	sig, err := keypair.Sign(pair, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return &types.Signature{
		Signature:   encoding.EncodeBase64(sig),
		AlgorithmID: string(pair.Algorithm),
		PublicKey:   encoding.EncodeBase64(pair.PublicKey),
		CreatedAt:   types.NowUnixMilli(),
	}, nil
}

// Verify checks a signature over message. The publicKey parameter
// overrides the key embedded in the signature when non-nil. Never raises:
// any structural or cryptographic failure returns false.
func (s *Service) Verify(message []byte, sig *types.Signature, publicKey []byte) bool {
	if err := ValidateSignature(sig); err != nil {
		return false
	}

	pk := publicKey
	if pk == nil {
		decoded, err := encoding.DecodeBase64(sig.PublicKey)
		if err != nil {
			return false
		}
		pk = decoded
	}

	raw, err := encoding.DecodeBase64(sig.Signature)
	if err != nil {
		return false
	}

	ok, err := keypair.Verify(types.SignatureAlgorithm(sig.AlgorithmID), pk, message, raw)
	if err != nil {
		return false
	}
	return ok
}

// SignJSON signs the canonical (whitespace-free, key-sorted) JSON
// serialization of v, so a logical object always signs identically.
func (s *Service) SignJSON(v interface{}, pair *types.SigningKeyPair) (*types.Signature, error) {
	message, err := encoding.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return s.Sign(message, pair)
}

// VerifyJSON verifies a signature over the canonical JSON serialization
// of v. Never raises.
func (s *Service) VerifyJSON(v interface{}, sig *types.Signature, publicKey []byte) bool {
	message, err := encoding.MarshalCanonical(v)
	if err != nil {
		return false
	}
	return s.Verify(message, sig, publicKey)
}

// SignTimestamped signs message with its creation timestamp bound into
// the signed bytes, so the timestamp on the signature cannot be altered
// after the fact.
func (s *Service) SignTimestamped(message []byte, pair *types.SigningKeyPair) (*types.Signature, error) {
	if pair == nil || len(pair.PublicKey) == 0 {
		return nil, fmt.Errorf("%w: public key must be supplied with the private key", types.ErrInvalidKey)
	}

	createdAt := types.NowUnixMilli()
	sigBytes, err := keypair.Sign(pair, timestampedMessage(message, createdAt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return &types.Signature{
		Signature:   encoding.EncodeBase64(sigBytes),
		AlgorithmID: string(pair.Algorithm),
		PublicKey:   encoding.EncodeBase64(pair.PublicKey),
		CreatedAt:   createdAt,
	}, nil
}

// VerifyTimestamped verifies a signature produced by SignTimestamped,
// reconstructing the signed bytes from the signature's own timestamp.
// Never raises.
func (s *Service) VerifyTimestamped(message []byte, sig *types.Signature, publicKey []byte) bool {
	if err := ValidateSignature(sig); err != nil {
		return false
	}
	return s.Verify(timestampedMessage(message, sig.CreatedAt), sig, publicKey)
}

func timestampedMessage(message []byte, createdAt int64) []byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	out := make([]byte, 0, len(message)+len(ts))
	out = append(out, message...)
	out = append(out, ts[:]...)
	return out
}

// BatchItem is one message in a batch signing request.
type BatchItem struct {
	ID      string
	Message []byte
}

// SignBatch signs items sequentially. The first failure aborts the batch.
func (s *Service) SignBatch(items []BatchItem, pair *types.SigningKeyPair) ([]*types.Signature, error) {
	sigs := make([]*types.Signature, 0, len(items))
	for _, item := range items {
		sig, err := s.Sign(item.Message, pair)
		if err != nil {
			return nil, fmt.Errorf("signing: batch item %q: %w", item.ID, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// VerifyBatchItem is one message/signature pair in a batch verification.
type VerifyBatchItem struct {
	ID        string
	Message   []byte
	Signature *types.Signature
	PublicKey []byte
}

// VerifyBatchResult is the outcome for one batch verification item.
type VerifyBatchResult struct {
	ID    string
	Valid bool
}

// VerifyBatch verifies all items. Unlike SignBatch it never aborts: every
// item resolves independently.
func (s *Service) VerifyBatch(items []VerifyBatchItem) []VerifyBatchResult {
	results := make([]VerifyBatchResult, 0, len(items))
	for _, item := range items {
		results = append(results, VerifyBatchResult{
			ID:    item.ID,
			Valid: s.Verify(item.Message, item.Signature, item.PublicKey),
		})
	}
	return results
}

// ValidateSignature is a structural predicate run before real
// verification to fail fast on malformed input: fields present, algorithm
// recognized, encodings valid, timestamp positive. It performs no
// cryptography.
func ValidateSignature(sig *types.Signature) error {
	if sig == nil {
		return fmt.Errorf("%w: signature is nil", types.ErrInvalidData)
	}
	if sig.Signature == "" || sig.PublicKey == "" {
		return fmt.Errorf("%w: missing signature fields", types.ErrInvalidData)
	}
	if !types.SignatureAlgorithm(sig.AlgorithmID).Valid() {
		return fmt.Errorf("%w: unknown algorithm %q", types.ErrInvalidData, sig.AlgorithmID)
	}
	if sig.CreatedAt <= 0 {
		return fmt.Errorf("%w: invalid timestamp", types.ErrInvalidData)
	}
	if _, err := encoding.DecodeBase64(sig.Signature); err != nil {
		return fmt.Errorf("%w: signature: %v", types.ErrInvalidData, err)
	}
	if _, err := encoding.DecodeBase64(sig.PublicKey); err != nil {
		return fmt.Errorf("%w: publicKey: %v", types.ErrInvalidData, err)
	}
	return nil
}
