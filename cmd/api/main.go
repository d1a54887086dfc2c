package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/config"
	"github.com/invoply/invoply-api/internal/logger"
	"github.com/invoply/invoply-api/internal/server"
	"github.com/invoply/invoply-api/internal/store"
	"github.com/invoply/invoply-api/internal/store/memory"
	"github.com/invoply/invoply-api/internal/store/postgres"
	"github.com/invoply/invoply-api/internal/store/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:   "invoply-api",
		Short: "Invoice lifecycle and payment reconciliation API",
	}
	root.AddCommand(serveCmd(), initDBCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.Stage)
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}

			srv, err := server.New(cfg, st)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				logger.Info("shutting down", zap.String("signal", sig.String()))
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.Stage)
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("database initialized", zap.String("driver", cfg.StoreDriver))
			return nil
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return sqlite.Open(cfg.SQLitePath)
	}
}
