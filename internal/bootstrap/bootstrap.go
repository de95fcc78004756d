package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	kmsapi "cloud.google.com/go/kms/apiv1"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GregMSThompson/moneyloop/internal/cache"
	plaidclient "github.com/GregMSThompson/moneyloop/internal/client/plaid"
	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/store"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

const accountsCacheEntries = 10_000

type Encrypter interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, stored string) (string, error)
}

type Bootstrap struct {
	Log           *slog.Logger
	DB            *pgxpool.Pool
	Crypto        Encrypter
	Plaid         plaidclient.Client
	AccountsCache *cache.UserCache[*dto.AccountsOverview]

	kms *kmsapi.KeyManagementClient
}

// Run builds every long-lived dependency. The returned Bootstrap always
// carries a logger, even on error.
func Run(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	var err error
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.Log.Level, logger.NewCloudRunHandler)
	slog.SetDefault(bs.Log)

	if cfg.HasSecretRefs() {
		sm, err := initSecretManager(ctx)
		if err != nil {
			return bs, fmt.Errorf("secret manager: %w", err)
		}
		err = cfg.ResolveSecrets(ctx, newSecretsAccessor(sm))
		sm.Close()
		if err != nil {
			return bs, err
		}
	}
	if err = cfg.Validate(); err != nil {
		return bs, fmt.Errorf("invalid config: %w", err)
	}

	bs.DB, err = store.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return bs, err
	}
	if cfg.Database.Migrate {
		if err = store.Migrate(ctx, bs.DB); err != nil {
			return bs, err
		}
		bs.Log.Info("database schema applied")
	}

	bs.Crypto, bs.kms, err = initCrypto(ctx, cfg.Crypto)
	if err != nil {
		return bs, err
	}

	if cfg.Plaid.Configured() {
		bs.Plaid = plaidclient.NewAdapter(cfg.Plaid)
	} else {
		bs.Log.Warn("plaid credentials missing; provider routes will fail")
		bs.Plaid = plaidclient.Unconfigured{}
	}

	bs.AccountsCache, err = cache.NewUserCache[*dto.AccountsOverview]("accounts", cfg.Cache.AccountsTTL, accountsCacheEntries)
	if err != nil {
		return bs, fmt.Errorf("accounts cache: %w", err)
	}

	bs.Log.Info("bootstrap complete",
		"plaid_env", cfg.Plaid.Environment,
		"plaid_configured", cfg.Plaid.Configured(),
		"kms", cfg.Crypto.KMSKeyName != "",
	)
	return bs, nil
}

func (bs *Bootstrap) Close() {
	if bs.AccountsCache != nil {
		bs.AccountsCache.Close()
	}
	if bs.kms != nil {
		if err := bs.kms.Close(); err != nil {
			bs.Log.Warn("failed to close kms client", "error", err)
		}
	}
	if bs.DB != nil {
		bs.DB.Close()
	}
}
