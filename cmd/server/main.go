package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cirrusfs/cirrus/internal/config"
	"github.com/cirrusfs/cirrus/internal/logging"
	"github.com/cirrusfs/cirrus/internal/monitoring"
	"github.com/cirrusfs/cirrus/internal/resilience"
	"github.com/cirrusfs/cirrus/internal/server"
	"github.com/cirrusfs/cirrus/internal/storage"
	syncq "github.com/cirrusfs/cirrus/internal/sync"
	"github.com/cirrusfs/cirrus/internal/vfs"
)

func main() {
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	cfg := config.LoadOrDefault()

	log := logging.NewDefault()
	if *dev || cfg.Logging.Development {
		log = logging.NewDevelopment()
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	local, err := storage.NewDisk(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer local.Close()

	treeOpts := []vfs.Option{vfs.WithLogger(log.Named("vfs"))}
	if cfg.Storage.Seed {
		treeOpts = append(treeOpts, vfs.WithSeed())
	}
	tree, err := vfs.New(local, treeOpts...)
	if err != nil {
		return err
	}
	log.Info("filesystem hydrated",
		zap.String("dir", cfg.Storage.Dir),
		zap.Int("nodes", tree.Len()),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	var queue *syncq.Queue
	if cfg.Remote.Enabled {
		remote := storage.NewRemote(storage.RemoteConfig{
			Endpoint:   cfg.Remote.Endpoint,
			Credential: cfg.Remote.Credential,
		})
		queue = syncq.New(tree, remote, syncq.Config{
			Debounce:    cfg.Sync.Debounce(),
			MaxAttempts: cfg.Sync.MaxRetryAttempts,
			BackoffBase: cfg.Sync.BackoffBase(),
			BackoffCap:  cfg.Sync.BackoffCap(),
		},
			syncq.WithLogger(log.Named("sync")),
			syncq.WithMetrics(monitoring.NewMetrics(registry)),
			syncq.WithBreaker(resilience.New(resilience.Settings{})),
		)
		defer queue.Close()
		log.Info("cloud sync enabled", zap.String("endpoint", cfg.Remote.Endpoint))
	} else {
		log.Info("cloud sync disabled, running local-only")
	}

	srv := server.New(server.Options{
		Tree:      tree,
		Queue:     queue,
		Logger:    log.Named("http"),
		Registry:  registry,
		RateLimit: cfg.RateLimit,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errCh <- srv.Run(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
