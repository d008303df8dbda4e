// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

// Package config provides configuration management for the application.
// This file implements at-rest encryption for device credentials (the
// HTTP Basic auth secret the Tiered Poller and deviceclient present to
// each appliance), using a key derived from the server's JWT signing
// secret so no separate credential-encryption key needs provisioning.
//
// Encryption Algorithm:
//   - AES-256-GCM (authenticated encryption)
//   - 12-byte random nonce per encryption
//   - Key derived from the JWT signing secret using HKDF-SHA256
package config

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

const (
	// deviceSecretEncryptionSalt binds derived keys to this specific
	// use case so the same JWT secret can't be replayed against a
	// different HKDF consumer.
	deviceSecretEncryptionSalt = "fleetd-device-secrets"

	deviceSecretEncryptionInfo = "device-secret-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySigningSecret is returned when constructing a cipher from
	// an empty JWT secret.
	ErrEmptySigningSecret = errors.New("jwt signing secret cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrCiphertextTooShort is returned when the ciphertext is shorter
	// than nonce+tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrDecryptionFailed is returned when GCM authentication fails,
	// meaning the ciphertext was tampered with or encrypted under a
	// different key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")
)

// CredentialCipher encrypts and decrypts device credentials (currently
// models.Device.Secret) for storage in internal/store/duckdb. The key
// is derived from the server's JWT signing secret via HKDF, so
// rotating JWT_SECRET also invalidates previously encrypted device
// secrets — operators rotating that secret must re-provision the
// device roster.
type CredentialCipher struct {
	gcm cipher.AEAD
}

// NewCredentialCipher derives an AES-256-GCM cipher from signingSecret.
func NewCredentialCipher(signingSecret string) (*CredentialCipher, error) {
	if signingSecret == "" {
		return nil, ErrEmptySigningSecret
	}

	key, err := deriveDeviceSecretKey(signingSecret)
	if err != nil {
		return nil, fmt.Errorf("deriving device secret key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm mode: %w", err)
	}

	return &CredentialCipher{gcm: gcm}, nil
}

// Encrypt returns a base64-encoded ciphertext of plaintext, formatted
// as base64(nonce || ciphertext || tag). Empty plaintext is returned
// as-is, since an empty device secret is a valid (if unusual)
// configuration and has nothing worth encrypting.
func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty ciphertext decrypts to an empty
// string, matching Encrypt's pass-through of empty plaintext.
func (c *CredentialCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	minLength := gcmNonceSize + c.gcm.Overhead()
	if len(data) < minLength {
		return "", ErrCiphertextTooShort
	}

	nonce, encrypted := data[:gcmNonceSize], data[gcmNonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func deriveDeviceSecretKey(signingSecret string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(signingSecret), []byte(deviceSecretEncryptionSalt), []byte(deviceSecretEncryptionInfo))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("reading hkdf output: %w", err)
	}
	return key, nil
}

// MaskSecret returns a redacted form of a device secret suitable for
// logging: the last 4 characters preceded by asterisks, or "****" for
// anything too short to mask safely.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
