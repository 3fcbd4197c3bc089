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

import "errors"

// Cross-cutting errors shared by the crypto services. Service-specific
// failures live in their own packages; these are the kinds that surface
// from more than one component.
var (
	// ErrInvalidKey indicates a key handle or key material is unusable
	// for the requested operation (wrong size, wrong type, destroyed).
	ErrInvalidKey = errors.New("sessionvault: invalid key")

	// ErrInvalidData indicates input that fails structural validation
	// before any cryptographic processing (missing fields, malformed
	// encoding, version/algorithm mismatch).
	ErrInvalidData = errors.New("sessionvault: invalid data")

	// ErrUnsupportedAlgorithm indicates an algorithm identifier that is
	// not recognized or not available on this platform.
	ErrUnsupportedAlgorithm = errors.New("sessionvault: unsupported algorithm")
)
