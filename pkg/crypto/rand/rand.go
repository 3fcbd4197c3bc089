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

// Package rand provides the random number generation used for keys, IVs,
// and salts. A Resolver is created once at startup and injected into the
// services that need randomness; it implements io.Reader so it can be
// passed anywhere the standard library expects crypto/rand.Reader.
//
// Only the software source (crypto/rand) is provided. The Resolver
// indirection keeps call sites independent of the source so a
// platform-backed generator can be added without touching them.
package rand

import (
	"crypto/rand"
	"fmt"
)

// Mode specifies which RNG source to use.
type Mode string

const (
	// ModeAuto selects the best available source. Currently equivalent
	// to ModeSoftware.
	ModeAuto Mode = "auto"

	// ModeSoftware uses crypto/rand (stdlib secure random).
	ModeSoftware Mode = "software"
)

// Resolver generates random bytes from a configured source.
// All implementations are safe for concurrent use.
type Resolver interface {
	// Rand returns n random bytes.
	Rand(n int) ([]byte, error)

	// Read implements io.Reader, making the Resolver a drop-in
	// replacement for crypto/rand.Reader with standard library
	// functions such as ecdsa.GenerateKey.
	Read(p []byte) (n int, err error)

	// Available returns true if the source is ready.
	Available() bool

	// Close releases any resources held by the source.
	Close() error
}

// NewResolver creates a resolver for the given mode.
// An empty mode defaults to ModeAuto.
func NewResolver(mode Mode) (Resolver, error) {
	switch mode {
	case ModeAuto, ModeSoftware, "":
		return &SoftwareResolver{}, nil
	default:
		return nil, fmt.Errorf("rand: unknown RNG mode: %s", mode)
	}
}

// SoftwareResolver uses crypto/rand from the Go standard library.
type SoftwareResolver struct{}

var _ Resolver = (*SoftwareResolver)(nil)

// Rand returns n random bytes.
func (s *SoftwareResolver) Rand(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("rand: invalid length %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("rand: read failed: %w", err)
	}
	return buf, nil
}

// Read implements io.Reader for compatibility with crypto/rand.Reader.
func (s *SoftwareResolver) Read(p []byte) (n int, err error) {
	return rand.Read(p)
}

// Available returns true; crypto/rand is always available.
func (s *SoftwareResolver) Available() bool {
	return true
}

// Close is a no-op for the software source.
func (s *SoftwareResolver) Close() error {
	return nil
}
