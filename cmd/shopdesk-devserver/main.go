package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/config"
	"github.com/shopdeskhq/shopdesk/internal/devserver"
	"github.com/shopdeskhq/shopdesk/internal/logging"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopdesk-devserver",
		Short: "Development remote store for the Shopdesk sync agent",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("address", defaults.GetString("server.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("server.database_path"), "SQLite database path")
	cmd.PersistentFlags().String("signing-secret", "", "HS256 secret for session tokens")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("server.token_ttl"), "Session token lifetime")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "server.address", "address")
	bindFlag(cmd, "server.database_path", "database-path")
	bindFlag(cmd, "server.signing_secret", "signing-secret")
	bindFlag(cmd, "server.token_ttl", "token-ttl")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.LoadServer(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	storage, err := devserver.OpenStorage(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	tokens := devserver.NewTokenIssuer(devserver.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	handler, err := devserver.NewHTTPHandler(devserver.Dependencies{
		Tokens:     tokens,
		Storage:    storage,
		Dispatcher: devserver.NewDispatcher(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dev remote store starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
