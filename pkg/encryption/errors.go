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

import "errors"

var (
	// ErrEncryptionFailed indicates the encrypt operation failed.
	ErrEncryptionFailed = errors.New("encryption: encryption failed")

	// ErrDecryptionFailed indicates authenticated decryption failed.
	// Covers both tampered ciphertext and wrong key; the two causes are
	// never distinguished to the caller.
	ErrDecryptionFailed = errors.New("encryption: decryption failed")

	// ErrKeyNotExportable indicates Raw was called on a key whose export
	// capability is disabled.
	ErrKeyNotExportable = errors.New("encryption: key is not exportable")
)
