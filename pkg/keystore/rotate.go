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
	"fmt"

	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// RotateStorageKey re-keys the entire store under a new master password.
// Every record is decrypted and integrity-checked under the current
// master key before anything is written; any failure aborts with the
// store untouched and the old password still valid. Only after every
// record has been re-encrypted under the new key is the new salt
// committed, which is the point the new password takes effect.
func (s *Store) RotateStorageKey(newMasterPassword types.Password) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	if newMasterPassword == nil {
		return fmt.Errorf("%w: new master password is required", types.ErrInvalidData)
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	type decrypted struct {
		record   *types.StoredKeyRecord
		keyBytes []byte
	}
	plaintexts := make([]decrypted, 0, len(index.Entries))
	zeroizeAll := func() {
		for _, d := range plaintexts {
			secret.Zeroize(d.keyBytes)
		}
	}

	for id := range index.Entries {
		record, err := s.loadRecord(id)
		if err != nil {
			zeroizeAll()
			return err
		}
		keyBytes, err := s.enc.Decrypt(record.EncryptedKey, s.masterKey)
		if err != nil {
			zeroizeAll()
			return fmt.Errorf("keystore: rotation aborted at %q: %w", id, err)
		}
		tag, err := integrityTag(record.Metadata, keyBytes)
		if err != nil {
			secret.Zeroize(keyBytes)
			zeroizeAll()
			return err
		}
		if !encoding.ConstantTimeEqual([]byte(tag), []byte(record.IntegrityHash)) {
			secret.Zeroize(keyBytes)
			zeroizeAll()
			return fmt.Errorf("%w: rotation aborted at %q", ErrIntegrityCheckFailed, id)
		}
		plaintexts = append(plaintexts, decrypted{record: record, keyBytes: keyBytes})
	}
	defer zeroizeAll()

	derived, err := s.enc.DeriveKey(newMasterPassword, nil)
	if err != nil {
		return err
	}

	for _, d := range plaintexts {
		envelope, err := s.enc.Encrypt(d.keyBytes, derived.Key)
		if err != nil {
			derived.Key.Destroy()
			return fmt.Errorf("keystore: rotation aborted at %q: %w", d.record.Metadata.KeyID, err)
		}
		d.record.EncryptedKey = envelope

		if err := s.writeRecord(d.record); err != nil {
			derived.Key.Destroy()
			s.logger.Warnf("keystore: rotation interrupted mid-write at %q; old master password remains valid", d.record.Metadata.KeyID)
			return err
		}
	}

	// Committing the salt is what switches the store to the new password.
	if err := s.storage.Put(saltKey, derived.Salt, nil); err != nil {
		derived.Key.Destroy()
		return fmt.Errorf("%w: committing new store salt: %v", ErrStorage, err)
	}

	if s.masterKey != nil {
		s.masterKey.Destroy()
	}
	s.masterKey = derived.Key
	s.masterSalt = derived.Salt
	return nil
}
