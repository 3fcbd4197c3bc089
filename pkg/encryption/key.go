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
	"fmt"

	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// Key is the in-process symmetric key handle. Key material lives in a
// zeroizable buffer; Raw surfaces it only when the key was created
// exportable, so the type system decides where raw bytes may appear.
// Non-exportable keys can still be used for encrypt/decrypt within this
// package.
type Key struct {
	alg        types.SymmetricAlgorithm
	buf        *secret.SecureBuffer
	exportable bool
}

// NewKey wraps raw key material in a handle. The bytes are copied; the
// caller should zeroize its own copy.
func NewKey(alg types.SymmetricAlgorithm, raw []byte, exportable bool) (*Key, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedAlgorithm, alg)
	}
	if len(raw) != alg.KeySize() {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d",
			types.ErrInvalidKey, alg.KeySize(), len(raw))
	}
	return &Key{
		alg:        alg,
		buf:        secret.NewSecureBuffer(raw),
		exportable: exportable,
	}, nil
}

// Raw returns a copy of the key bytes. Fails with ErrKeyNotExportable for
// non-exportable keys and secret.ErrBufferCleared after Destroy.
func (k *Key) Raw() ([]byte, error) {
	if !k.exportable {
		return nil, ErrKeyNotExportable
	}
	return k.buf.Bytes()
}

// Algorithm returns the cipher the key was generated for.
func (k *Key) Algorithm() types.SymmetricAlgorithm {
	return k.alg
}

// Destroy zeroizes the backing buffer.
func (k *Key) Destroy() {
	k.buf.Zeroize()
}

// bytes returns the key material for use inside this package, bypassing
// the export gate but not the cleared check.
func (k *Key) bytes() ([]byte, error) {
	return k.buf.Bytes()
}

// keyBytes extracts raw material from any SymmetricKey. Package-local
// handles bypass the export gate; foreign implementations go through Raw.
func keyBytes(key types.SymmetricKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: key is nil", types.ErrInvalidKey)
	}
	if k, ok := key.(*Key); ok {
		return k.bytes()
	}
	return key.Raw()
}

var _ types.SymmetricKey = (*Key)(nil)
