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

import (
	"errors"
	"time"

	"github.com/jeremyhahn/go-sessionvault/pkg/storage"
)

// sweepLoop runs until Close, removing expired records on each tick.
// Failures are logged and never interrupt the loop.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

// SweepExpired removes every expired record and returns the number
// removed. Called periodically by the background sweeper; exported so
// callers can force a sweep. Individual deletion failures are logged and
// skipped.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.initialized {
		return 0
	}

	index, err := s.loadIndex()
	if err != nil {
		s.logger.Errorf("keystore: expiry sweep: %v", err)
		return 0
	}

	now := time.Now()
	removed := 0
	for id, meta := range index.Entries {
		if !meta.Expired(now) {
			continue
		}
		if err := s.storage.Delete(recordPrefix + id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Errorf("keystore: sweeping expired key %q: %v", id, err)
			continue
		}
		delete(index.Entries, id)
		removed++
	}

	if removed > 0 {
		if err := s.saveIndex(index); err != nil {
			s.logger.Error(err)
		}
		s.logger.Debugf("keystore: swept %d expired keys", removed)
	}
	return removed
}
