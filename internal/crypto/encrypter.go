// Package crypto seals provider credentials before they reach storage.
// Stored values are tagged with the scheme that produced them, so a
// deployment can move from the local key to Cloud KMS without a rewrite.
package crypto

import (
	"context"
	"errors"
	"strings"

	"github.com/GregMSThompson/moneyloop/internal/errs"
)

const (
	PrefixKMS   = "kms:"
	PrefixLocal = "aes:"
)

var errCorrupted = errors.New("ciphertext integrity check failed")

// Cipher is one encryption scheme.
type Cipher interface {
	Prefix() string
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

type encrypter struct {
	primary Cipher
	byPref  map[string]Cipher
}

// NewEncrypter encrypts with primary and decrypts with whichever of primary
// and fallbacks matches the stored prefix.
func NewEncrypter(primary Cipher, fallbacks ...Cipher) *encrypter {
	e := &encrypter{primary: primary, byPref: map[string]Cipher{primary.Prefix(): primary}}
	for _, c := range fallbacks {
		if c == nil {
			continue
		}
		if _, ok := e.byPref[c.Prefix()]; !ok {
			e.byPref[c.Prefix()] = c
		}
	}
	return e
}

func (e *encrypter) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", errs.NewEncryptionError("nothing to encrypt", nil)
	}
	out, err := e.primary.Encrypt(ctx, plaintext)
	if err != nil {
		return "", errs.NewEncryptionError("failed to encrypt credential", err)
	}
	return e.primary.Prefix() + out, nil
}

func (e *encrypter) Decrypt(ctx context.Context, stored string) (string, error) {
	for prefix, c := range e.byPref {
		if !strings.HasPrefix(stored, prefix) {
			continue
		}
		plain, err := c.Decrypt(ctx, strings.TrimPrefix(stored, prefix))
		if err != nil {
			return "", errs.NewEncryptionError("failed to decrypt credential", err)
		}
		return plain, nil
	}
	return "", errs.NewEncryptionError("unrecognised credential encoding", nil)
}
