package bootstrap

import (
	"context"
	"errors"
	"fmt"

	kmsapi "cloud.google.com/go/kms/apiv1"

	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/crypto"
)

// initCrypto builds the credential encrypter. With a KMS key configured, KMS
// encrypts and the local key (if any) still decrypts older "aes:" values.
func initCrypto(ctx context.Context, cfg config.CryptoConfig) (Encrypter, *kmsapi.KeyManagementClient, error) {
	var local crypto.Cipher
	if cfg.LocalKey != "" {
		l, err := crypto.NewLocal(cfg.LocalKey)
		if err != nil {
			return nil, nil, fmt.Errorf("local cipher: %w", err)
		}
		local = l
	}

	if cfg.KMSKeyName == "" {
		if local == nil {
			return nil, nil, errors.New("crypto.kms_key_name or crypto.local_key is required")
		}
		return crypto.NewEncrypter(local), nil, nil
	}

	client, err := kmsapi.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("kms client: %w", err)
	}
	var fallbacks []crypto.Cipher
	if local != nil {
		fallbacks = append(fallbacks, local)
	}
	return crypto.NewEncrypter(crypto.NewKMS(client, cfg.KMSKeyName), fallbacks...), client, nil
}
