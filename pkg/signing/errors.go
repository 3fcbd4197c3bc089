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

import "errors"

var (
	// ErrSigningFailed indicates a signing operation failed.
	ErrSigningFailed = errors.New("signing: signing failed")

	// ErrVerificationFailed indicates verification could not complete.
	// The Verify predicate itself never returns errors; this kind is for
	// callers (the orchestrator) that must surface a failed verification
	// as an error rather than a boolean.
	ErrVerificationFailed = errors.New("signing: verification failed")
)
