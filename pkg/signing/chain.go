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

package signing

import (
	"fmt"

	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// Signature chains give tamper-evident ordering over a sequence of items
// without a full Merkle structure. Element i signs
//
//	SHA256(chainHash[i-1]) ∥ item[i]
//
// where chainHash[i] = SHA256(chainHash[i-1] ∥ item[i]) and chainHash[-1]
// is empty. Reordering, replacing, inserting, or truncating any element
// breaks every later link, so verification replays the chain from the
// start and fails closed on the first mismatch.

// SignChain signs items in order, linking each signature to everything
// before it. The first failure aborts the chain.
func (s *Service) SignChain(items [][]byte, pair *types.SigningKeyPair) ([]*types.Signature, error) {
	sigs := make([]*types.Signature, 0, len(items))

	var chainHash []byte
	for i, item := range items {
		sig, err := s.Sign(chainMessage(chainHash, item), pair)
		if err != nil {
			return nil, fmt.Errorf("signing: chain element %d: %w", i, err)
		}
		sigs = append(sigs, sig)
		chainHash = encoding.SHA256(chainHash, item)
	}

	return sigs, nil
}

// VerifyChain replays the chain against items and verifies every link.
// Returns false on any break, including a length mismatch. Never raises.
func (s *Service) VerifyChain(items [][]byte, sigs []*types.Signature) bool {
	if len(items) != len(sigs) {
		return false
	}

	var chainHash []byte
	for i, item := range items {
		if !s.Verify(chainMessage(chainHash, item), sigs[i], nil) {
			return false
		}
		chainHash = encoding.SHA256(chainHash, item)
	}

	return true
}

func chainMessage(chainHash, item []byte) []byte {
	prev := encoding.SHA256(chainHash)
	out := make([]byte, 0, len(prev)+len(item))
	out = append(out, prev...)
	out = append(out, item...)
	return out
}
