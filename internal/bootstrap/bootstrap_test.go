package bootstrap

import (
	"context"
	"hash/crc32"
	"strings"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/pkg/helpers"
)

type fakeSecretManager struct {
	data    map[string]string
	badSums bool
	got     []string
}

func (f *fakeSecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.got = append(f.got, req.GetName())
	v, ok := f.data[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "no such secret")
	}
	sum := int64(crc32.Checksum([]byte(v), crc32.MakeTable(crc32.Castagnoli)))
	if f.badSums {
		sum++
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(v), DataCrc32C: &sum},
	}, nil
}

const plaidSecretRef = "projects/moneyloop/secrets/plaid-secret/versions/latest"

func TestSecretsAccessorResolvesConfig(t *testing.T) {
	sm := &fakeSecretManager{data: map[string]string{plaidSecretRef: "plaid-sandbox-secret\n"}}
	cfg := &config.Config{Plaid: config.PlaidConfig{ClientID: "client", Secret: plaidSecretRef}}

	if err := cfg.ResolveSecrets(helpers.TestCtx(), newSecretsAccessor(sm)); err != nil {
		t.Fatal(err)
	}
	if cfg.Plaid.Secret != "plaid-sandbox-secret" {
		t.Fatalf("secret = %q", cfg.Plaid.Secret)
	}
	if len(sm.got) != 1 {
		t.Fatalf("accessed %v", sm.got)
	}
}

func TestSecretsAccessorErrors(t *testing.T) {
	ctx := helpers.TestCtx()

	_, err := newSecretsAccessor(&fakeSecretManager{}).AccessSecret(ctx, plaidSecretRef)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}

	sm := &fakeSecretManager{data: map[string]string{plaidSecretRef: "x"}, badSums: true}
	_, err = newSecretsAccessor(sm).AccessSecret(ctx, plaidSecretRef)
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Fatalf("err = %v", err)
	}
}

func TestInitCryptoLocalOnly(t *testing.T) {
	ctx := helpers.TestCtx()
	enc, kms, err := initCrypto(ctx, config.CryptoConfig{LocalKey: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatal(err)
	}
	if kms != nil {
		t.Fatal("no kms client expected without a key name")
	}

	ct, err := enc.Encrypt(ctx, "access-sandbox-123")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ct, "aes:") {
		t.Fatalf("ciphertext = %q", ct)
	}
	pt, err := enc.Decrypt(ctx, ct)
	if err != nil || pt != "access-sandbox-123" {
		t.Fatalf("decrypt = %q, %v", pt, err)
	}
}

func TestInitCryptoRequiresAKey(t *testing.T) {
	if _, _, err := initCrypto(helpers.TestCtx(), config.CryptoConfig{}); err == nil {
		t.Fatal("expected error without any key")
	}
	if _, _, err := initCrypto(helpers.TestCtx(), config.CryptoConfig{LocalKey: "short"}); err == nil {
		t.Fatal("expected error for short key")
	}
}
