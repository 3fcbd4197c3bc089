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

// Package secret provides a zeroizable container for key material and
// other secrets. A SecureBuffer owns its bytes; once Zeroize has been
// called every subsequent access fails with ErrBufferCleared rather than
// returning stale or zeroed data.
package secret

import (
	"errors"
	"sync"
)

// ErrBufferCleared indicates use of a secure buffer after zeroization.
var ErrBufferCleared = errors.New("secret: buffer has been cleared")

// SecureBuffer holds sensitive bytes with explicit lifetime management.
// Thread-safe. The zero value is an empty, live buffer.
type SecureBuffer struct {
	mu      sync.RWMutex
	data    []byte
	cleared bool
}

// NewSecureBuffer copies b into a new buffer. The caller retains ownership
// of b and should zeroize it separately if it is sensitive.
func NewSecureBuffer(b []byte) *SecureBuffer {
	data := make([]byte, len(b))
	copy(data, b)
	return &SecureBuffer{data: data}
}

// Bytes returns a copy of the buffer contents.
// Returns ErrBufferCleared after Zeroize.
func (s *SecureBuffer) Bytes() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cleared {
		return nil, ErrBufferCleared
	}

	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// Len returns the buffer length, or 0 once cleared.
func (s *SecureBuffer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cleared {
		return 0
	}
	return len(s.data)
}

// Cleared reports whether the buffer has been zeroized.
func (s *SecureBuffer) Cleared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleared
}

// Zeroize overwrites the contents with zeros and marks the buffer
// cleared. Safe to call more than once.
func (s *SecureBuffer) Zeroize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	Zeroize(s.data)
	s.data = nil
	s.cleared = true
}

// Zeroize overwrites b with zeros. Helper for scratch buffers that do not
// warrant a SecureBuffer of their own.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
