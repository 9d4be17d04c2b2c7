package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/truthlayer-systems/truthfeed/internal/analytics"
	"github.com/truthlayer-systems/truthfeed/internal/anchor"
	"github.com/truthlayer-systems/truthfeed/internal/archive"
	"github.com/truthlayer-systems/truthfeed/internal/config"
	"github.com/truthlayer-systems/truthfeed/internal/delivery"
	"github.com/truthlayer-systems/truthfeed/internal/handlers"
	"github.com/truthlayer-systems/truthfeed/internal/integrity"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/messaging"
	"github.com/truthlayer-systems/truthfeed/internal/messaging/natsclient"
	"github.com/truthlayer-systems/truthfeed/internal/registry"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
	"github.com/truthlayer-systems/truthfeed/internal/server"
	"github.com/truthlayer-systems/truthfeed/internal/service"
	"github.com/truthlayer-systems/truthfeed/internal/subscription"
	"github.com/truthlayer-systems/truthfeed/internal/trust"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the truth feed engine",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	connString := cfg.Database.Postgres.ConnString()

	// Run database migrations
	logger.Info("running database migrations")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo, err := repository.NewPostgresRepository(context.Background(), connString)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer repo.Close()

	// Messaging broker for callback queue and stream fan-out
	var broker messaging.Client
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		nc, err := natsclient.New(natsCfg)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()
		broker = nc
	}

	// Anchoring service with background retry for pending events
	var anchors anchor.Service
	if cfg.Anchor.Enabled {
		anchors = anchor.NewHTTPService(cfg.Anchor.URL, cfg.Anchor.Timeout)
	}

	reg := registry.New(repo, registry.Defaults{
		UpdateFrequency: cfg.Feeds.UpdateFrequency,
		RetentionDays:   cfg.Feeds.RetentionDays,
	})
	integrityMgr := integrity.NewManager(repo)
	trustAgg := trust.NewAggregator(repo, integrityMgr)
	subs := subscription.NewManager(repo, reg)

	// Delivery pipeline
	var limiter delivery.Limiter
	if cfg.Redis.Enabled {
		limiter, err = delivery.NewRedisLimiter(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
	} else {
		limiter = delivery.NewLocalLimiter()
	}
	streams := delivery.NewStreamHub(broker, logger)
	polls := delivery.NewPollStore()
	callbacks := delivery.NewCallbackQueue(broker, delivery.NewWebhookSender(10*time.Second), logger)
	dispatcher := delivery.NewDispatcher(subs, limiter, streams, polls, callbacks, logger, delivery.Config{
		Workers:   cfg.Delivery.Workers,
		QueueSize: cfg.Delivery.QueueSize,
	})

	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()
	if err := dispatcher.Start(dispatchCtx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	defer dispatcher.Stop()

	engine := service.NewEngine(repo, reg, integrityMgr, anchors, dispatcher, service.EngineConfig{
		AnchorTimeout: cfg.Anchor.Timeout,
	}, logger)

	if anchors != nil {
		retry := anchor.NewRetryWorker(repo, anchors, integrityMgr, anchor.RetryConfig{
			Interval:    cfg.Anchor.RetryInterval,
			MaxInterval: cfg.Anchor.RetryMax,
		}, logger)
		retry.Start(dispatchCtx)
		defer retry.Stop()
	}

	// Archival schedule
	if cfg.Archive.Enabled {
		cold, err := archive.NewOpenSearchStore(archive.OpenSearchConfig{
			URL:           cfg.Archive.URL,
			Username:      cfg.Archive.Username,
			Password:      cfg.Archive.Password,
			TLSSkipVerify: cfg.Archive.Insecure,
			IndexPrefix:   cfg.Archive.IndexPrefix,
		})
		if err != nil {
			return fmt.Errorf("create cold storage client: %w", err)
		}
		if err := cold.Initialize(context.Background()); err != nil {
			return fmt.Errorf("initialize cold storage: %w", err)
		}
		archiver := archive.New(repo, cold, anchors, archive.Config{
			Schedule:    cfg.Archive.Schedule,
			IdleWindow:  cfg.Archive.IdleWindow,
			ManifestDir: cfg.Archive.ManifestDir,
		}, logger)
		if err := archiver.Start(); err != nil {
			return fmt.Errorf("start archiver: %w", err)
		}
		defer archiver.Stop()
	}

	an := analytics.New(repo)
	handler := handlers.NewHandler(engine, subs, trustAgg, integrityMgr, an, polls, streams, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("truth feed engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
