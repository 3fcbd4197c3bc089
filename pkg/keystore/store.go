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

// Package keystore implements the encrypted key store: a password-locked
// vault of symmetric keys and signing key material persisted through a
// pluggable storage backend.
//
// Every key is encrypted at rest under a master key derived from the
// store password and a persisted store salt. Each record additionally
// carries a content-binding integrity tag over its metadata and key
// bytes; retrieval verifies the tag in constant time before returning
// anything, so a record whose metadata or key material was altered in
// storage is rejected rather than served.
//
// The store evicts least-recently-used records when full, sweeps expired
// records in the background, supports atomic re-keying of the whole
// store, and can export and import its contents as a password-protected
// bundle.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/rand"
	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/encryption"
	"github.com/jeremyhahn/go-sessionvault/pkg/logging"
	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/storage"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

const (
	// DefaultCapacity is the record limit used when the configuration
	// does not set one.
	DefaultCapacity = 1000

	// DefaultSweepInterval is how often the background sweeper scans for
	// expired records.
	DefaultSweepInterval = 5 * time.Minute

	saltKey      = "sessionvault:salt"
	indexKey     = "sessionvault:index"
	recordPrefix = "sessionvault:key:"
)

// Config contains configuration for the key Store.
type Config struct {
	// Storage is the persistence backend. Required. The store does not
	// close it; the caller owns its lifecycle.
	Storage storage.Backend

	// Encryption is the encryption service used for key wrapping and
	// master key derivation. Defaults to a service with default
	// configuration.
	Encryption *encryption.Service

	// Capacity is the maximum number of stored records. Zero selects
	// DefaultCapacity.
	Capacity int

	// SweepInterval is the background expiry sweep period. Zero selects
	// DefaultSweepInterval; negative disables the sweeper.
	SweepInterval time.Duration

	// RNG is the randomness source for export salts. Defaults to the
	// software resolver.
	RNG rand.Resolver

	// Logger receives sweep and shutdown diagnostics. Defaults to the
	// package default logger.
	Logger *logging.Logger
}

// Store is the encrypted key store. All operations except Initialize
// fail with ErrNotInitialized until a master password has been supplied.
// Safe for concurrent use.
type Store struct {
	storage       storage.Backend
	enc           *encryption.Service
	capacity      int
	sweepInterval time.Duration
	rng           rand.Resolver
	logger        *logging.Logger

	mu          sync.RWMutex
	masterKey   types.SymmetricKey
	masterSalt  []byte
	initialized bool
	closed      bool
	sweepStop   chan struct{}
}

// New creates a key store from the configuration. The store is unusable
// until Initialize is called with the master password.
func New(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Storage == nil {
		return nil, fmt.Errorf("%w: storage backend is required", ErrStorage)
	}

	enc := cfg.Encryption
	if enc == nil {
		e, err := encryption.NewService(nil)
		if err != nil {
			return nil, err
		}
		enc = e
	}

	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrStorage)
	}

	interval := cfg.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}

	rng := cfg.RNG
	if rng == nil {
		r, err := rand.NewResolver(rand.ModeAuto)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		rng = r
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return &Store{
		storage:       cfg.Storage,
		enc:           enc,
		capacity:      capacity,
		sweepInterval: interval,
		rng:           rng,
		logger:        logger,
	}, nil
}

// Initialize unlocks the store with the master password. The store salt
// is loaded from storage when present, so the same password re-derives
// the same master key across restarts; a fresh salt is generated and
// persisted on first use. Also starts the background expiry sweeper.
func (s *Store) Initialize(masterPassword types.Password) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.initialized {
		return ErrAlreadyInitialized
	}
	if masterPassword == nil {
		return fmt.Errorf("%w: master password is required", types.ErrInvalidData)
	}

	salt, err := s.storage.Get(saltKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: loading store salt: %v", ErrStorage, err)
	}

	derived, err := s.enc.DeriveKey(masterPassword, salt)
	if err != nil {
		return err
	}

	if salt == nil {
		if err := s.storage.Put(saltKey, derived.Salt, nil); err != nil {
			derived.Key.Destroy()
			return fmt.Errorf("%w: persisting store salt: %v", ErrStorage, err)
		}
	}

	s.masterKey = derived.Key
	s.masterSalt = derived.Salt
	s.initialized = true

	if s.sweepInterval > 0 {
		s.sweepStop = make(chan struct{})
		go s.sweepLoop()
	}

	return nil
}

// Close stops the sweeper and destroys the in-memory master key. The
// storage backend is left open for the caller to close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.sweepStop != nil {
		close(s.sweepStop)
	}
	if s.masterKey != nil {
		s.masterKey.Destroy()
		s.masterKey = nil
	}
	s.initialized = false
	return nil
}

// StoreKey encrypts keyBytes under the master key and persists it with
// its metadata and integrity tag. If the store is at capacity and id is
// not already present, the least-recently-used tenth of the records is
// evicted first. Storing an existing id overwrites it.
func (s *Store) StoreKey(id string, keyBytes []byte, meta types.StoredKeyMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: key id is required", types.ErrInvalidData)
	}
	if len(keyBytes) == 0 {
		return fmt.Errorf("%w: key material is empty", types.ErrInvalidData)
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	if _, exists := index.Entries[id]; !exists && len(index.Entries) >= s.capacity {
		if err := s.evictLRU(index); err != nil {
			return err
		}
	}

	now := types.NowUnixMilli()
	meta.KeyID = id
	if meta.CreatedAt == 0 {
		meta.CreatedAt = now
	}
	meta.LastUsedAt = now
	if meta.Version == 0 {
		meta.Version = 1
	}

	if err := s.putRecord(index, meta, keyBytes); err != nil {
		return err
	}
	return s.saveIndex(index)
}

// RetrieveKey decrypts and returns the key material for id along with
// its metadata. The record's integrity tag is recomputed and compared in
// constant time before anything is returned; a mismatch fails the read.
// Retrieval refreshes the record's last-used time. Expired records are
// deleted on access and reported as not found.
func (s *Store) RetrieveKey(id string) ([]byte, types.StoredKeyMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero types.StoredKeyMetadata
	if err := s.requireOpen(); err != nil {
		return nil, zero, err
	}

	record, err := s.loadRecord(id)
	if err != nil {
		return nil, zero, err
	}

	if record.Metadata.Expired(time.Now()) {
		if err := s.deleteLocked(id); err != nil {
			s.logger.Errorf("keystore: deleting expired key %q: %v", id, err)
		}
		return nil, zero, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}

	keyBytes, err := s.enc.Decrypt(record.EncryptedKey, s.masterKey)
	if err != nil {
		return nil, zero, err
	}

	tag, err := integrityTag(record.Metadata, keyBytes)
	if err != nil {
		secret.Zeroize(keyBytes)
		return nil, zero, err
	}
	if !encoding.ConstantTimeEqual([]byte(tag), []byte(record.IntegrityHash)) {
		secret.Zeroize(keyBytes)
		return nil, zero, fmt.Errorf("%w: %s", ErrIntegrityCheckFailed, id)
	}

	index, err := s.loadIndex()
	if err != nil {
		secret.Zeroize(keyBytes)
		return nil, zero, err
	}

	record.Metadata.LastUsedAt = types.NowUnixMilli()
	if err := s.putRecord(index, record.Metadata, keyBytes); err != nil {
		secret.Zeroize(keyBytes)
		return nil, zero, err
	}
	if err := s.saveIndex(index); err != nil {
		secret.Zeroize(keyBytes)
		return nil, zero, err
	}

	return keyBytes, record.Metadata, nil
}

// RotateKey replaces the key material stored under id, bumping the
// record version. The old material must still decrypt and pass its
// integrity check, otherwise the record is left untouched.
func (s *Store) RotateKey(id string, newKeyBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	if len(newKeyBytes) == 0 {
		return fmt.Errorf("%w: key material is empty", types.ErrInvalidData)
	}

	record, err := s.loadRecord(id)
	if err != nil {
		return err
	}

	oldBytes, err := s.enc.Decrypt(record.EncryptedKey, s.masterKey)
	if err != nil {
		return err
	}
	defer secret.Zeroize(oldBytes)

	tag, err := integrityTag(record.Metadata, oldBytes)
	if err != nil {
		return err
	}
	if !encoding.ConstantTimeEqual([]byte(tag), []byte(record.IntegrityHash)) {
		return fmt.Errorf("%w: %s", ErrIntegrityCheckFailed, id)
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	record.Metadata.Version++
	record.Metadata.LastUsedAt = types.NowUnixMilli()
	if err := s.putRecord(index, record.Metadata, newKeyBytes); err != nil {
		return err
	}
	return s.saveIndex(index)
}

// DeleteKey removes the record for id. Deleting a missing id fails with
// ErrKeyNotFound.
func (s *Store) DeleteKey(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	return s.deleteLocked(id)
}

// ListKeys returns the metadata of every stored key, sorted by id. Only
// the index is read; no key material is decrypted.
func (s *Store) ListKeys() ([]types.StoredKeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen(); err != nil {
		return nil, err
	}

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	metas := make([]types.StoredKeyMetadata, 0, len(index.Entries))
	for _, meta := range index.Entries {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].KeyID < metas[j].KeyID })
	return metas, nil
}

// ContainsKey reports whether a record exists for id, without touching
// its last-used time.
func (s *Store) ContainsKey(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen(); err != nil {
		return false, err
	}

	index, err := s.loadIndex()
	if err != nil {
		return false, err
	}
	_, ok := index.Entries[id]
	return ok, nil
}

func (s *Store) requireOpen() error {
	if s.closed {
		return ErrClosed
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// evictLRU removes the least-recently-used tenth of the store's
// capacity, rounded up. Mutates index in place; callers persist it.
func (s *Store) evictLRU(index *types.KeyIndex) error {
	count := (s.capacity + 9) / 10

	metas := make([]types.StoredKeyMetadata, 0, len(index.Entries))
	for _, meta := range index.Entries {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].LastUsedAt != metas[j].LastUsedAt {
			return metas[i].LastUsedAt < metas[j].LastUsedAt
		}
		return metas[i].KeyID < metas[j].KeyID
	})

	if count > len(metas) {
		count = len(metas)
	}
	for _, meta := range metas[:count] {
		if err := s.storage.Delete(recordPrefix + meta.KeyID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: evicting %q: %v", ErrStorage, meta.KeyID, err)
		}
		delete(index.Entries, meta.KeyID)
		s.logger.Debugf("keystore: evicted least-recently-used key %q", meta.KeyID)
	}
	return nil
}

// putRecord encrypts keyBytes, tags it with meta, and writes the record
// and index entry. Mutates index in place; callers persist it.
func (s *Store) putRecord(index *types.KeyIndex, meta types.StoredKeyMetadata, keyBytes []byte) error {
	tag, err := integrityTag(meta, keyBytes)
	if err != nil {
		return err
	}

	envelope, err := s.enc.Encrypt(keyBytes, s.masterKey)
	if err != nil {
		return err
	}

	record := types.StoredKeyRecord{
		EncryptedKey:  envelope,
		Metadata:      meta,
		IntegrityHash: tag,
	}
	if err := s.writeRecord(&record); err != nil {
		return err
	}

	index.Entries[meta.KeyID] = meta
	return nil
}

func (s *Store) writeRecord(record *types.StoredKeyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %v", ErrStorage, err)
	}
	if err := s.storage.Put(recordPrefix+record.Metadata.KeyID, data, nil); err != nil {
		return fmt.Errorf("%w: writing record %q: %v", ErrStorage, record.Metadata.KeyID, err)
	}
	return nil
}

func (s *Store) loadRecord(id string) (*types.StoredKeyRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: key id is required", types.ErrInvalidData)
	}
	data, err := s.storage.Get(recordPrefix + id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
		}
		return nil, fmt.Errorf("%w: reading record %q: %v", ErrStorage, id, err)
	}

	var record types.StoredKeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decoding record %q: %v", ErrStorage, id, err)
	}
	return &record, nil
}

func (s *Store) deleteLocked(id string) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index.Entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}

	if err := s.storage.Delete(recordPrefix + id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: deleting record %q: %v", ErrStorage, id, err)
	}
	delete(index.Entries, id)
	return s.saveIndex(index)
}

func (s *Store) loadIndex() (*types.KeyIndex, error) {
	data, err := s.storage.Get(indexKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.NewKeyIndex(), nil
		}
		return nil, fmt.Errorf("%w: reading index: %v", ErrStorage, err)
	}

	var index types.KeyIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: decoding index: %v", ErrStorage, err)
	}
	if index.Entries == nil {
		index.Entries = make(map[string]types.StoredKeyMetadata)
	}
	return &index, nil
}

func (s *Store) saveIndex(index *types.KeyIndex) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("%w: encoding index: %v", ErrStorage, err)
	}
	if err := s.storage.Put(indexKey, data, nil); err != nil {
		return fmt.Errorf("%w: writing index: %v", ErrStorage, err)
	}
	return nil
}

// integrityTag computes the content-binding tag over the canonical JSON
// of the metadata concatenated with the raw key bytes. Binding the
// metadata means renaming or re-dating a record in storage invalidates
// it just like altering the key material does.
func integrityTag(meta types.StoredKeyMetadata, keyBytes []byte) (string, error) {
	metaJSON, err := encoding.MarshalCanonical(meta)
	if err != nil {
		return "", fmt.Errorf("%w: encoding metadata: %v", ErrStorage, err)
	}
	return encoding.EncodeBase64(encoding.SHA256(metaJSON, keyBytes)), nil
}
