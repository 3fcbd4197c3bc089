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
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-sessionvault/pkg/encoding"
	"github.com/jeremyhahn/go-sessionvault/pkg/encryption"
	"github.com/jeremyhahn/go-sessionvault/pkg/secret"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

const (
	exportFormatVersion = 1

	// HKDF context string separating export keys from master keys derived
	// from the same password.
	exportKeyInfo = "go-sessionvault/export/v1"
)

type exportEntry struct {
	Metadata types.StoredKeyMetadata `json:"metadata"`
	Key      string                  `json:"key"`
}

type exportPayload struct {
	FormatVersion int           `json:"formatVersion"`
	ExportedAt    int64         `json:"exportedAt"`
	Entries       []exportEntry `json:"entries"`
}

type exportBundle struct {
	FormatVersion int                      `json:"formatVersion"`
	KDFID         string                   `json:"kdfId"`
	KDFIterations int                      `json:"kdfIterations"`
	KDFSalt       string                   `json:"kdfSalt"`
	Envelope      *types.EncryptedEnvelope `json:"envelope"`
}

// ExportKeys decrypts every record, integrity-checks it, and returns the
// full set sealed in a single envelope under a key derived from
// exportPassword. The export key is domain-separated from the master
// key, so a bundle exported under the master password still cannot be
// opened with the live master key itself.
func (s *Store) ExportKeys(exportPassword types.Password) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if exportPassword == nil {
		return nil, fmt.Errorf("%w: export password is required", types.ErrInvalidData)
	}

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	payload := exportPayload{
		FormatVersion: exportFormatVersion,
		ExportedAt:    types.NowUnixMilli(),
		Entries:       make([]exportEntry, 0, len(index.Entries)),
	}
	for id := range index.Entries {
		record, err := s.loadRecord(id)
		if err != nil {
			return nil, err
		}
		keyBytes, err := s.enc.Decrypt(record.EncryptedKey, s.masterKey)
		if err != nil {
			return nil, fmt.Errorf("keystore: exporting %q: %w", id, err)
		}
		tag, err := integrityTag(record.Metadata, keyBytes)
		if err != nil {
			secret.Zeroize(keyBytes)
			return nil, err
		}
		if !encoding.ConstantTimeEqual([]byte(tag), []byte(record.IntegrityHash)) {
			secret.Zeroize(keyBytes)
			return nil, fmt.Errorf("%w: exporting %q", ErrIntegrityCheckFailed, id)
		}
		payload.Entries = append(payload.Entries, exportEntry{
			Metadata: record.Metadata,
			Key:      encoding.EncodeBase64(keyBytes),
		})
		secret.Zeroize(keyBytes)
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding export payload: %v", ErrStorage, err)
	}
	defer secret.Zeroize(plaintext)

	salt, err := s.rng.Rand(kdf.SaltSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kdf.ErrDerivationFailed, err)
	}
	params := s.enc.KDFParams()
	key, err := s.deriveExportKey(exportPassword, salt, params)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	envelope, err := s.enc.Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}

	bundle := exportBundle{
		FormatVersion: exportFormatVersion,
		KDFID:         string(params.Algorithm),
		KDFIterations: params.Iterations,
		KDFSalt:       encoding.EncodeBase64(salt),
		Envelope:      envelope,
	}
	out, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding export bundle: %v", ErrStorage, err)
	}
	return out, nil
}

// ImportKeys opens an export bundle with exportPassword and stores every
// entry under the current master key, preserving the exported metadata.
// Entries whose ids already exist are overwritten. A wrong password or
// tampered bundle fails before anything is written.
func (s *Store) ImportKeys(data []byte, exportPassword types.Password) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	if exportPassword == nil {
		return fmt.Errorf("%w: export password is required", types.ErrInvalidData)
	}

	var bundle exportBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if bundle.FormatVersion != exportFormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrInvalidExport, bundle.FormatVersion)
	}
	salt, err := encoding.DecodeBase64(bundle.KDFSalt)
	if err != nil {
		return fmt.Errorf("%w: kdfSalt: %v", ErrInvalidExport, err)
	}

	params := kdf.Params{
		Algorithm:  types.KDFAlgorithm(bundle.KDFID),
		Iterations: bundle.KDFIterations,
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}

	key, err := s.deriveExportKey(exportPassword, salt, params)
	if err != nil {
		return err
	}
	defer key.Destroy()

	plaintext, err := s.enc.Decrypt(bundle.Envelope, key)
	if err != nil {
		return err
	}
	defer secret.Zeroize(plaintext)

	var payload exportPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if payload.FormatVersion != exportFormatVersion {
		return fmt.Errorf("%w: unsupported payload version %d", ErrInvalidExport, payload.FormatVersion)
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	for _, entry := range payload.Entries {
		if entry.Metadata.KeyID == "" {
			return fmt.Errorf("%w: entry missing key id", ErrInvalidExport)
		}
		keyBytes, err := encoding.DecodeBase64(entry.Key)
		if err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrInvalidExport, entry.Metadata.KeyID, err)
		}
		if err := s.putRecord(index, entry.Metadata, keyBytes); err != nil {
			secret.Zeroize(keyBytes)
			return err
		}
		secret.Zeroize(keyBytes)
	}

	return s.saveIndex(index)
}

// deriveExportKey stretches the export password and expands the result
// through HKDF-SHA256 with an export-specific context string.
func (s *Store) deriveExportKey(password types.Password, salt []byte, params kdf.Params) (types.SymmetricKey, error) {
	pw, err := password.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kdf.ErrDerivationFailed, err)
	}
	defer secret.Zeroize(pw)

	base, err := kdf.Derive(pw, salt, &params)
	if err != nil {
		return nil, err
	}
	defer secret.Zeroize(base)

	raw := make([]byte, kdf.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, base, nil, []byte(exportKeyInfo)), raw); err != nil {
		return nil, fmt.Errorf("%w: %v", kdf.ErrDerivationFailed, err)
	}
	defer secret.Zeroize(raw)

	return encryption.NewKey(s.enc.Algorithm(), raw, false)
}
