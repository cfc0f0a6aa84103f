// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Token encryption errors
var (
	// ErrDecryptionFailed indicates the ciphertext did not authenticate.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext indicates the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// tokenKeyContext is the HKDF info string for session token keys.
const tokenKeyContext = "skillswap-gateway-session-tokens"

// TokenEncryptor seals SkillSwap API tokens before they reach durable
// storage. A nil *TokenEncryptor passes values through unchanged.
type TokenEncryptor struct {
	aead cipher.AEAD
}

// NewTokenEncryptor derives an AES-256-GCM key from a base64 master key.
// An empty key disables encryption and returns nil.
func NewTokenEncryptor(masterKey string) (*TokenEncryptor, error) {
	if masterKey == "" {
		return nil, nil
	}

	secret, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(secret) < 16 {
		return nil, errors.New("encryption key must be at least 16 bytes")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(tokenKeyContext)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return &TokenEncryptor{aead: aead}, nil
}

// Enabled reports whether values are actually encrypted.
func (e *TokenEncryptor) Enabled() bool {
	return e != nil && e.aead != nil
}

// Encrypt returns base64(nonce || ciphertext). Empty strings stay empty.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if !e.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *TokenEncryptor) Decrypt(ciphertext string) (string, error) {
	if !e.Enabled() || ciphertext == "" {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead()+1 {
		return "", fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}
	return string(plaintext), nil
}

// sealTokens returns a copy of s with both API tokens encrypted.
func (e *TokenEncryptor) sealTokens(s *Session) (*Session, error) {
	if !e.Enabled() {
		return s, nil
	}
	sealed := s.clone()
	var err error
	if sealed.AccessToken, err = e.Encrypt(s.AccessToken); err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	if sealed.RefreshToken, err = e.Encrypt(s.RefreshToken); err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}
	return sealed, nil
}

// openTokens decrypts both API tokens of s in place.
func (e *TokenEncryptor) openTokens(s *Session) error {
	if !e.Enabled() {
		return nil
	}
	var err error
	if s.AccessToken, err = e.Decrypt(s.AccessToken); err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}
	if s.RefreshToken, err = e.Decrypt(s.RefreshToken); err != nil {
		return fmt.Errorf("decrypt refresh token: %w", err)
	}
	return nil
}

// GenerateEncryptionKey returns a random 256-bit key in the base64 form
// NewTokenEncryptor accepts.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
