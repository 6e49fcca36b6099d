// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

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
	"strings"

	"golang.org/x/crypto/hkdf"
)

// A sealed server API key is stored in servers.api_key_encrypted as
//
//	enc:v1:<base64(nonce || ciphertext || tag)>
//
// AES-256-GCM with a key derived from security.credential_secret. The
// prefix lets the client factory tell a sealed key from a plaintext one
// seeded while no secret was configured.
const (
	sealedCredentialPrefix = "enc:v1:"

	credentialKeySalt = "mediasync-server-credentials"
	credentialKeyInfo = "server-api-key-v1"
	credentialKeySize = 32
	credentialNonce   = 12
)

var (
	ErrEmptySecret        = errors.New("security.credential_secret is empty")
	ErrEmptyPlaintext     = errors.New("server API key is empty")
	ErrEmptyCiphertext    = errors.New("sealed server API key is empty")
	ErrDecryptionFailed   = errors.New("server API key does not open with the configured credential secret")
	ErrInvalidCiphertext  = errors.New("malformed sealed server API key")
	ErrCiphertextTooShort = errors.New("sealed server API key is truncated")
)

// CredentialEncryptor seals media server API keys before they reach the
// servers table and opens them again for the client factory.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor derives the sealing key from secret with
// HKDF-SHA256.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, credentialKeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(credentialKeySalt), []byte(credentialKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, credentialNonce)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	return &CredentialEncryptor{aead: aead}, nil
}

// Encrypt seals apiKey into its stored form.
func (e *CredentialEncryptor) Encrypt(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrEmptyPlaintext
	}
	nonce := make([]byte, credentialNonce)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credential nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(apiKey), nil)
	return sealedCredentialPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a key produced by Encrypt.
func (e *CredentialEncryptor) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", ErrEmptyCiphertext
	}
	if !IsSealedCredential(stored) {
		return "", fmt.Errorf("%w: missing %q prefix", ErrInvalidCiphertext, sealedCredentialPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedCredentialPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < credentialNonce+e.aead.Overhead()+1 {
		return "", ErrCiphertextTooShort
	}
	apiKey, err := e.aead.Open(nil, raw[:credentialNonce], raw[credentialNonce:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(apiKey), nil
}

// IsSealedCredential reports whether stored came from Encrypt.
func IsSealedCredential(stored string) bool {
	return strings.HasPrefix(stored, sealedCredentialPrefix)
}

// MaskCredential keeps the last four characters of a key for log lines.
func MaskCredential(credential string) string {
	switch {
	case credential == "":
		return ""
	case len(credential) <= 4:
		return "****"
	default:
		return "****..." + credential[len(credential)-4:]
	}
}
