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

// Password represents a secret used to derive or unlock protected key
// material. The interface separates the concept of a password from its
// storage mechanism, allowing for different security models ranging from
// clear-text in-memory storage to host-provided secure surfaces.
type Password interface {
	// Bytes returns the password as a byte slice.
	// Returns an error if the password cannot be retrieved.
	Bytes() ([]byte, error)
}

// ClearPassword is a simple in-memory implementation of the Password
// interface that stores the password in clear text. Use only where the
// security model explicitly accepts holding the secret in process memory.
type ClearPassword struct {
	password []byte
}

// NewPassword creates a new clear text password stored in memory.
// The password is copied to prevent external modification.
func NewPassword(password []byte) Password {
	p := make([]byte, len(password))
	copy(p, password)
	return &ClearPassword{password: p}
}

// NewPasswordFromString creates a new clear text password from a string.
func NewPasswordFromString(password string) Password {
	return &ClearPassword{password: []byte(password)}
}

// Bytes returns the password as a byte slice.
// A copy is returned to prevent external modification.
func (p *ClearPassword) Bytes() ([]byte, error) {
	b := make([]byte, len(p.password))
	copy(b, p.password)
	return b, nil
}

// Zeroize overwrites the password memory with zeros. Call when the
// password is no longer needed to minimize its lifetime in memory.
func (p *ClearPassword) Zeroize() {
	for i := range p.password {
		p.password[i] = 0
	}
}
