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
	"encoding/binary"
	"sync"
	"time"

	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// keyCache is a TTL map for derived key material, keyed by a digest of
// the derivation inputs. Purely a performance optimization to avoid
// re-running the KDF for a password/salt pair seen recently: entries give
// no durability or consistency guarantee. Expired entries are dropped
// lazily on access and opportunistically on write.
type keyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	raw       []byte
	expiresAt time.Time
}

func newKeyCache(ttl time.Duration) *keyCache {
	return &keyCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

// cacheKey digests the full derivation inputs so distinct passwords,
// salts, or parameters can never collide into the same entry.
func cacheKey(password, salt []byte, iterations int, kdfID types.KDFAlgorithm) string {
	var iter [8]byte
	binary.BigEndian.PutUint64(iter[:], uint64(iterations))
	digest := encoding.SHA256(password, []byte{0x00}, salt, []byte{0x00}, iter[:], []byte(kdfID))
	return encoding.EncodeBase64(digest)
}

// get returns a copy of the cached key material, or nil on miss/expiry.
func (c *keyCache) get(key string) []byte {
	if c.ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		secret.Zeroize(entry.raw)
		delete(c.entries, key)
		return nil
	}

	out := make([]byte, len(entry.raw))
	copy(out, entry.raw)
	return out
}

// put stores a copy of raw and purges any expired entries while holding
// the lock.
func (c *keyCache) put(key string, raw []byte) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			secret.Zeroize(entry.raw)
			delete(c.entries, k)
		}
	}

	data := make([]byte, len(raw))
	copy(data, raw)
	c.entries[key] = &cacheEntry{
		raw:       data,
		expiresAt: now.Add(c.ttl),
	}
}

// purge zeroizes and drops all entries.
func (c *keyCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, entry := range c.entries {
		secret.Zeroize(entry.raw)
		delete(c.entries, k)
	}
}
