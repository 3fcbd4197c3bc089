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

package keystore

import "errors"

var (
	// ErrNotInitialized indicates the store was used before Initialize.
	ErrNotInitialized = errors.New("keystore: not initialized")

	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("keystore: already initialized")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("keystore: closed")

	// ErrStorage indicates a persistence-layer failure.
	ErrStorage = errors.New("keystore: storage error")

	// ErrKeyNotFound indicates the requested key was not found.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrIntegrityCheckFailed indicates the stored integrity tag did not
	// match the recomputed one. Fatal to the read: possibly tampered
	// plaintext is never returned.
	ErrIntegrityCheckFailed = errors.New("keystore: integrity check failed")

	// ErrInvalidExport indicates an export bundle that is malformed or
	// was not produced by this store version.
	ErrInvalidExport = errors.New("keystore: invalid export bundle")
)
