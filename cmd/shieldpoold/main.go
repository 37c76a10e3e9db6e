// shieldpoold runs the shielded pool service and its maintenance commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"shieldpool/internal/app"
	"shieldpool/internal/clients"
	"shieldpool/internal/config"
	"shieldpool/internal/db"
	"shieldpool/internal/dto"
	"shieldpool/internal/pool"
	"shieldpool/internal/store/postgres"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "shieldpoold",
		Short:        "Shielded pool service",
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config.local.yaml, then config.yaml)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		fundCmd(&configPath),
		eventsCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, *logrus.Logger, error) {
	if err := config.LoadConfig(path); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg := config.AppConfig
	logger := cfg.NewLogger()
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(logger.Formatter)
	return cfg, logger, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			gin.SetMode(cfg.Server.Mode)

			container, err := app.NewServiceContainer(cfg, logger)
			if err != nil {
				return err
			}
			defer container.Cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			container.Start(ctx)

			srv := &http.Server{
				Addr:              cfg.Server.Address(),
				Handler:           container.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"addr":    srv.Addr,
					"version": Version,
					"commit":  Commit,
				}).Info("Shieldpool service listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
				logger.Info("Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Warn("HTTP server shutdown incomplete")
				}
			}
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	var rollback string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create pool tables and apply data migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := loadConfig(*configPath); err != nil {
				return err
			}
			if err := db.InitDB(); err != nil {
				return err
			}
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if rollback != "" {
				return db.RollbackDataMigration(sqlDB, rollback)
			}
			return db.Migrate(db.DB)
		},
	}
	cmd.Flags().StringVar(&rollback, "rollback", "", "roll back the named data migration instead of migrating")
	return cmd
}

func fundCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <asset> <owner> <amount>",
		Short: "Credit a custody account (devnets only)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := pool.ParseAsset(args[0])
			if err != nil {
				return err
			}
			owner, err := dto.ParseAddress("owner", args[1])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}

			_, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := db.InitDB(); err != nil {
				return err
			}
			service := pool.NewService(postgres.New(db.DB), logger)
			if err := service.Credit(cmd.Context(), asset, owner, amount); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"asset":  asset.String(),
				"owner":  owner.Hex(),
				"amount": amount,
			}).Info("Custody account credited")
			return nil
		},
	}
}

func eventsCmd(configPath *string) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the pool event stream",
	}
	eventsCmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print pool events published to NATS as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return errors.New("nats url is not configured")
			}
			// tail only reads, the stream is owned by serve
			natsCfg := cfg.NATS
			natsCfg.EnableJetStream = false
			client, err := clients.NewNATSClient(natsCfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			enc := json.NewEncoder(cmd.OutOrStdout())
			return client.Subscribe(ctx, func(subject string, ev pool.Event) {
				if err := enc.Encode(ev); err != nil {
					logger.WithError(err).WithField("subject", subject).Warn("Failed to print event")
				}
			})
		},
	})
	return eventsCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shieldpoold %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
