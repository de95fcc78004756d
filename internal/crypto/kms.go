package crypto

import (
	"context"
	"encoding/base64"
	"hash/crc32"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// kmsAPI is the subset of the Cloud KMS client used here.
type kmsAPI interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
}

type kms struct {
	client  kmsAPI
	keyName string
}

func NewKMS(client kmsAPI, keyName string) *kms {
	return &kms{client: client, keyName: keyName}
}

func (k *kms) Prefix() string { return PrefixKMS }

// Encrypt encrypts plaintext with the configured key and returns base64 text.
func (k *kms) Encrypt(ctx context.Context, plaintext string) (string, error) {
	data := []byte(plaintext)
	resp, err := k.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:            k.keyName,
		Plaintext:       data,
		PlaintextCrc32C: wrapperspb.Int64(checksum(data)),
	})
	if err != nil {
		return "", err
	}
	if !resp.GetVerifiedPlaintextCrc32C() || resp.GetCiphertextCrc32C().GetValue() != checksum(resp.GetCiphertext()) {
		return "", errCorrupted
	}
	return base64.StdEncoding.EncodeToString(resp.GetCiphertext()), nil
}

// Decrypt decrypts base64 ciphertext produced by Encrypt.
func (k *kms) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	resp, err := k.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:             k.keyName,
		Ciphertext:       raw,
		CiphertextCrc32C: wrapperspb.Int64(checksum(raw)),
	})
	if err != nil {
		return "", err
	}
	if resp.GetPlaintextCrc32C().GetValue() != checksum(resp.GetPlaintext()) {
		return "", errCorrupted
	}
	return string(resp.GetPlaintext()), nil
}

func checksum(data []byte) int64 {
	return int64(crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)))
}
