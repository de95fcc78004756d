package crypto

import (
	"context"
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

const localKeyInfo = "moneyloop-access-token"

// local seals values with AES-256-GCM under a key derived from a configured
// secret. Output is base64(nonce || ciphertext).
type local struct {
	aead cipher.AEAD
}

func NewLocal(secret string) (*local, error) {
	if len(secret) < 16 {
		return nil, errors.New("local encryption key must be at least 16 bytes")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(localKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &local{aead: aead}, nil
}

func (l *local) Prefix() string { return PrefixLocal }

func (l *local) Encrypt(_ context.Context, plaintext string) (string, error) {
	nonce := make([]byte, l.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := l.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (l *local) Decrypt(_ context.Context, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	n := l.aead.NonceSize()
	if len(data) < n+l.aead.Overhead() {
		return "", errCorrupted
	}
	plain, err := l.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
