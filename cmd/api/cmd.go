package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/moneyloop/internal/bootstrap"
	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/handlers"
	"github.com/GregMSThompson/moneyloop/internal/middleware"
	"github.com/GregMSThompson/moneyloop/internal/response"
	"github.com/GregMSThompson/moneyloop/internal/router"
	"github.com/GregMSThompson/moneyloop/internal/services"
	"github.com/GregMSThompson/moneyloop/internal/store"
)

func exitOnError(message string, err error, log *slog.Logger) {
	if err != nil {
		log.Error(message, "error", err)
		os.Exit(1)
	}
}

func main() {
	// money is written as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// config
	cfg, err := config.Load()
	exitOnError("config load failed", err, slog.Default())

	// bootstrap
	bs, err := bootstrap.Run(ctx, cfg)
	exitOnError("bootstrap failed", err, bs.Log)
	defer bs.Close()

	// stores
	istore := store.NewInstitutionStore(bs.DB)
	astore := store.NewAccountStore(bs.DB)
	tstore := store.NewTransactionStore(bs.DB)

	// services
	plserv := services.NewPlaidService(bs.Plaid, bs.Crypto, istore, astore, bs.AccountsCache)
	acserv := services.NewAccountService(bs.Plaid, bs.Crypto, istore, astore, bs.AccountsCache)
	txserv := services.NewTransactionService(bs.Plaid, bs.Crypto, istore, astore, tstore, bs.AccountsCache, cfg.Plaid.PageSize, cfg.Plaid.SyncDays)

	// response handler
	rh := response.New(bs.Log)

	// dependencies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = rh
	deps.PlaidSvc = plserv
	deps.AccountSvc = acserv
	deps.TransactionSvc = txserv
	deps.DB = bs.DB

	// router
	mw := middleware.NewMiddleware(cfg.Supabase, rh)
	r := router.NewRouter(cfg.Server, mw, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		bs.Log.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			bs.Close()
			exitOnError("server start failed", err, bs.Log)
		}
	case <-ctx.Done():
		bs.Log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		bs.Log.Error("graceful shutdown failed", "error", err)
	}
	bs.Log.Info("server stopped")
}
