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

// Package config loads vault configuration from YAML files and
// environment variables. Environment variables use the SESSIONVAULT_
// prefix with underscores for nesting (SESSIONVAULT_KEYSTORE_CAPACITY).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-sessionvault/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-sessionvault/pkg/encryption"
	"github.com/jeremyhahn/go-sessionvault/pkg/keystore"
	"github.com/jeremyhahn/go-sessionvault/pkg/types"
)

// Config represents the complete vault configuration
type Config struct {
	Debug      bool             `mapstructure:"debug"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Signing    SigningConfig    `mapstructure:"signing"`
	Keystore   KeystoreConfig   `mapstructure:"keystore"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// EncryptionConfig controls the encryption service
type EncryptionConfig struct {
	Algorithm     string        `mapstructure:"algorithm"`
	KDF           string        `mapstructure:"kdf"`
	KDFIterations int           `mapstructure:"kdf_iterations"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// SigningConfig controls the signature service
type SigningConfig struct {
	// Algorithm selects the signature algorithm. Empty selects the
	// platform default.
	Algorithm string `mapstructure:"algorithm"`
}

// KeystoreConfig controls the encrypted key store
type KeystoreConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StorageConfig controls the persistence backend
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // memory, file
	Path    string `mapstructure:"path"`    // file backend root
}

// Load reads configuration from the given YAML file, if any, applies
// environment variable overrides, and validates the result. An empty
// path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SESSIONVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("encryption.algorithm", string(types.SymmetricAES256GCM))
	v.SetDefault("encryption.kdf", string(types.KDFPBKDF2SHA256))
	v.SetDefault("encryption.kdf_iterations", kdf.DefaultIterations)
	v.SetDefault("encryption.cache_ttl", encryption.DefaultCacheTTL)
	v.SetDefault("signing.algorithm", "")
	v.SetDefault("keystore.capacity", keystore.DefaultCapacity)
	v.SetDefault("keystore.sweep_interval", keystore.DefaultSweepInterval)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !types.SymmetricAlgorithm(c.Encryption.Algorithm).Valid() {
		return fmt.Errorf("config: invalid encryption algorithm: %s", c.Encryption.Algorithm)
	}
	if !types.KDFAlgorithm(c.Encryption.KDF).Valid() {
		return fmt.Errorf("config: invalid kdf: %s", c.Encryption.KDF)
	}
	if c.Signing.Algorithm != "" && !types.SignatureAlgorithm(c.Signing.Algorithm).Valid() {
		return fmt.Errorf("config: invalid signing algorithm: %s", c.Signing.Algorithm)
	}
	if c.Keystore.Capacity < 1 {
		return fmt.Errorf("config: keystore capacity must be positive: %d", c.Keystore.Capacity)
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage path is required for the file backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend: %s", c.Storage.Backend)
	}

	return nil
}

// EncryptionServiceConfig builds the encryption service configuration.
func (c *Config) EncryptionServiceConfig() *encryption.Config {
	return &encryption.Config{
		Algorithm: types.SymmetricAlgorithm(c.Encryption.Algorithm),
		KDF: kdf.Params{
			Algorithm:  types.KDFAlgorithm(c.Encryption.KDF),
			Iterations: c.Encryption.KDFIterations,
		},
		CacheTTL: c.Encryption.CacheTTL,
	}
}

// SigningAlgorithm returns the configured signature algorithm.
func (c *Config) SigningAlgorithm() types.SignatureAlgorithm {
	return types.SignatureAlgorithm(c.Signing.Algorithm)
}
