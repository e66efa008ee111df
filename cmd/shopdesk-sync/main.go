package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/appstate"
	"github.com/shopdeskhq/shopdesk/internal/config"
	"github.com/shopdeskhq/shopdesk/internal/identity"
	"github.com/shopdeskhq/shopdesk/internal/localstore"
	"github.com/shopdeskhq/shopdesk/internal/logging"
	"github.com/shopdeskhq/shopdesk/internal/notify"
	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
	"github.com/shopdeskhq/shopdesk/internal/syncqueue"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopdesk-sync",
		Short: "Shopdesk offline-first sync agent",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
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
	cmd.PersistentFlags().String("admin-address", defaults.GetString("admin.address"), "Admin/status HTTP listen address")
	cmd.PersistentFlags().String("cache-path", defaults.GetString("cache.path"), "Local cache SQLite path")
	cmd.PersistentFlags().String("owner-id", "", "Owner identity for this agent")
	cmd.PersistentFlags().String("session-kind", defaults.GetString("session.kind"), "Session kind (cloud or mock)")
	cmd.PersistentFlags().String("remote-url", "", "Remote store base URL")
	cmd.PersistentFlags().String("remote-token", "", "Remote store bearer token")
	cmd.PersistentFlags().Duration("drain-interval", defaults.GetDuration("sync.drain_interval"), "Interval between queue drain rounds")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "admin.address", "admin-address")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "owner.id", "owner-id")
	bindFlag(cmd, "session.kind", "session-kind")
	bindFlag(cmd, "remote.url", "remote-url")
	bindFlag(cmd, "remote.token", "remote-token")
	bindFlag(cmd, "sync.drain_interval", "drain-interval")
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

func runAgent(ctx context.Context) error {
	appConfig, err := config.LoadSync(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := localstore.Open(appConfig.CachePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ownerID, err := resource.NewOwnerID(appConfig.OwnerID)
	if err != nil {
		return err
	}

	sessionKind := identity.SessionCloud
	if appConfig.SessionKind == "mock" {
		sessionKind = identity.SessionMock
	}
	owner := identity.Identity{
		ID:      ownerID.String(),
		Session: sessionKind,
	}

	registry := prometheus.NewRegistry()
	metrics := syncqueue.NewMetrics(registry)

	queue, err := syncqueue.NewService(syncqueue.ServiceConfig{
		Store:   store,
		OwnerID: ownerID,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	var remoteClient remote.Client
	if owner.Session == identity.SessionCloud {
		remoteClient, err = remote.NewHTTPClient(remote.HTTPClientConfig{
			BaseURL:     appConfig.RemoteURL,
			BearerToken: appConfig.RemoteToken,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
	}

	resources, err := appstate.NewContext(appstate.ContextConfig{
		Identity: owner,
		Store:    store,
		Queue:    queue,
		Remote:   remoteClient,
		Notifier: notify.NewLogDispatcher(logger),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer resources.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resources.LoadLocal()
	if err := resources.Reconcile(signalCtx); err != nil {
		logger.Warn("initial reconciliation failed, continuing with local state", zap.Error(err))
	}
	if err := resources.Subscribe(signalCtx); err != nil {
		logger.Warn("realtime subscription failed, continuing without live updates", zap.Error(err))
	}
	if remoteClient != nil {
		go queue.Run(signalCtx, remoteClient, appConfig.DrainInterval)
	}

	adminServer := &http.Server{
		Addr:    appConfig.AdminAddress,
		Handler: newAdminHandler(resources, registry),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin server starting", zap.String("address", appConfig.AdminAddress))
		err := adminServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return adminServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
