package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/saudedash/internal/api"
	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/config"
	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/database/postgres"
	"github.com/koustreak/saudedash/internal/export"
	"github.com/koustreak/saudedash/internal/filestore/minio"
	"github.com/koustreak/saudedash/internal/identity"
	"github.com/koustreak/saudedash/internal/logger"
	"github.com/koustreak/saudedash/internal/warehouse"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := openWarehouse(ctx, cfg, log)
	defer db.Close()

	wh := warehouse.NewService(db, nil, warehouse.Options{
		HeavyStatementTimeout: cfg.Database.HeavyStatementTimeout,
	}, log)
	if err := wh.Resolver().Warm(ctx, db); err != nil {
		log.WarnWith("description columns not resolved at startup", err, nil)
	}

	var idp auth.Provider
	client, err := identity.NewClient(cfg.Identity, log)
	if err != nil {
		log.WarnWith("identity provider disabled", err, nil)
		idp = auth.Unavailable(err)
	} else {
		idp = client
	}

	deps := api.Deps{
		Reports:  wh,
		Accounts: auth.NewGateway(idp, cfg.Auth.FrontendURL, log),
	}
	if cfg.Server.DebugEndpoints {
		deps.Diagnostics = wh
	}
	if cfg.Storage.Enabled() {
		store, err := minio.New(ctx, &cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureBucket(ctx, cfg.Storage.Bucket); err != nil {
			return err
		}
		deps.Exports = export.NewService(wh, store, cfg.Storage.Bucket, cfg.Storage.PresignTTL, log)
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.New(deps, api.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			AuthRateLimit:  cfg.Server.AuthRateLimit,
			AuthRateWindow: cfg.Server.AuthRateWindow,
			DebugEndpoints: cfg.Server.DebugEndpoints,
		}, log).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.InfoWith("listening", map[string]any{
			"addr":     cfg.Server.Addr,
			"exports":  deps.Exports != nil,
			"debug":    deps.Diagnostics != nil,
			"db_mode":  string(cfg.Database.Mode),
			"identity": client != nil,
		})
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openWarehouse returns the configured provider, or one that reports the
// configuration error on every use so the rest of the API still starts.
func openWarehouse(ctx context.Context, cfg *config.Config, log *logger.Logger) database.Provider {
	p, err := postgres.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		log.WarnWith("warehouse unavailable", err, nil)
		return database.Unavailable(err)
	}
	return p
}
