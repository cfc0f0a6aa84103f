// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// SessionStoreType defines the type of session storage backend.
type SessionStoreType string

const (
	// SessionStoreMemory uses in-memory storage (default, not persistent).
	SessionStoreMemory SessionStoreType = "memory"

	// SessionStoreBadger uses BadgerDB for persistent session storage.
	SessionStoreBadger SessionStoreType = "badger"
)

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Type SessionStoreType `koanf:"type" validate:"oneof=memory badger"`
	// Path is the Badger directory. Empty with type badger runs Badger in memory.
	Path string `koanf:"path"`
	// EncryptionKey is a base64 key of at least 16 bytes. When set, the
	// Badger store encrypts API tokens with AES-GCM.
	EncryptionKey string `koanf:"encryption_key"`
}

// NewSessionStore opens the store described by cfg. The returned store owns
// any database it opened; Close releases it.
func NewSessionStore(cfg StoreConfig) (SessionStore, error) {
	switch cfg.Type {
	case "", SessionStoreMemory:
		return NewMemorySessionStore(), nil
	case SessionStoreBadger:
		enc, err := NewTokenEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("session token encryption: %w", err)
		}

		opts := badger.DefaultOptions(cfg.Path)
		if cfg.Path == "" {
			opts = opts.WithInMemory(true)
		}
		opts.Logger = nil // Suppress BadgerDB logs

		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open badger db for sessions: %w", err)
		}
		return &BadgerSessionStore{db: db, ownsDB: true, enc: enc}, nil
	default:
		return nil, fmt.Errorf("unknown session store type %q", cfg.Type)
	}
}
