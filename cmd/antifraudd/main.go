package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/api"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/config"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/observability/alerting"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/observability/metrics"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/orchestrator"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/plugin"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/queue"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/scoring"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/storage/mysql"
	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("antifraudd exited: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("ANTIFRAUD_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	var auditRepo mysql.AuditRepository
	var deadLetterRepo mysql.DeadLetterRepository
	if cfg.Storage.Driver == "mysql" {
		dbCfg := mysql.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Storage.ConnMaxIdleTime,
		}
		auditRepo, err = mysql.NewSQLAuditRepository(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("open audit repository: %w", err)
		}
		defer auditRepo.Close()

		deadLetterRepo, err = mysql.NewSQLDeadLetterRepository(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("open dead letter repository: %w", err)
		}
		defer deadLetterRepo.Close()
	}

	q, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer func() {
		if err := q.Disconnect(context.Background()); err != nil {
			log.Printf("disconnect queue: %v", err)
		}
	}()

	manager, err := openPluginManager(cfg)
	if err != nil {
		return fmt.Errorf("open plugin manager: %w", err)
	}
	if auditRepo != nil {
		manager.AddListener(auditListener(auditRepo))
	}
	if err := manager.EnableAll(ctx); err != nil {
		return fmt.Errorf("enable configured plugins: %w", err)
	}
	defer func() {
		if err := manager.DisableAll(context.Background()); err != nil {
			log.Printf("disable plugins: %v", err)
		}
	}()

	scorer := scoring.New(manager, scoring.WithLogger(logger.Named("scoring")))

	alerter := alerting.NewFanout()

	orchestratorOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithAlertDispatcher(alerter),
	}
	if deadLetterRepo != nil {
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithDeadLetterSink(deadLetterRepo))
	}
	pipeline := orchestrator.New(manager, scorer, q, orchestratorOpts...)

	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	defer cancelPipeline()

	pipelineErrCh := make(chan error, 1)
	go func() {
		pipelineErrCh <- pipeline.Start(pipelineCtx)
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("metrics server exited: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, manager)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Start(ctx)
	}()

	select {
	case err := <-pipelineErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("orchestrator exited: %w", err)
		}
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("admin api exited: %w", err)
		}
	case <-ctx.Done():
	}

	return nil
}

// auditListener builds a plugin.LifecycleListener that archives every
// state transition to repo, logging rather than failing the
// transition if the write itself fails.
func auditListener(repo mysql.AuditRepository) plugin.LifecycleListener {
	return func(id string, from, to plugin.State) {
		record := mysql.PluginAuditRecord{
			PluginID:   id,
			FromState:  from,
			ToState:    to,
			OccurredAt: time.Now().UTC(),
		}
		if err := repo.Save(context.Background(), record); err != nil {
			log.Printf("audit plugin transition %s %s->%s: %v", id, from, to, err)
		}
	}
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	var q queue.Queue
	switch cfg.Driver {
	case "", "memory":
		q = queue.NewMemoryQueue(cfg.MemoryBuffer)
	case "redis":
		streamQueue, err := queue.NewStreamQueue(queue.StreamQueueConfig{Address: cfg.DSN})
		if err != nil {
			return nil, err
		}
		q = streamQueue
	case "rabbitmq":
		rabbitQueue, err := queue.NewRabbitMQQueue(queue.RabbitMQConfig{URL: cfg.DSN, Durable: true})
		if err != nil {
			return nil, err
		}
		q = rabbitQueue
	default:
		return nil, fmt.Errorf("unknown queue driver: %s", cfg.Driver)
	}
	if err := q.Connect(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func openPluginManager(cfg *config.Config) (*plugin.Manager, error) {
	if cfg.Plugins.ConfigPath == "" {
		return plugin.NewManager(plugin.ManagerConfig{PluginDir: cfg.Plugins.Dir})
	}
	managerCfg, err := plugin.LoadManagerConfig(cfg.Plugins.ConfigPath)
	if err != nil {
		return nil, err
	}
	if managerCfg.PluginDir == "" {
		managerCfg.PluginDir = cfg.Plugins.Dir
	}
	return plugin.NewManager(managerCfg, plugin.WithHookTimeout(plugin.DefaultHookTimeout))
}
