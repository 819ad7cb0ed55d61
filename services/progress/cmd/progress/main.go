package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/example/watch-progress/internal/platform/analytics"
	"github.com/example/watch-progress/internal/platform/grpchealth"
	"github.com/example/watch-progress/internal/platform/httpserver"
	"github.com/example/watch-progress/internal/platform/logging"
	"github.com/example/watch-progress/internal/platform/natsconn"
	"github.com/example/watch-progress/internal/platform/run"
	"github.com/example/watch-progress/services/progress/internal/config"
	"github.com/example/watch-progress/services/progress/internal/handlers"
	"github.com/example/watch-progress/services/progress/internal/idempotency"
	"github.com/example/watch-progress/services/progress/internal/segments"
	"github.com/example/watch-progress/services/progress/internal/session"
	"github.com/example/watch-progress/services/progress/internal/store"
	"github.com/example/watch-progress/services/progress/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.NewService(cfg.App.LogLevel, cfg.App.ServiceName)
	if err != nil {
		panic(err)
	}

	progressStore, closeStore, err := store.Open(context.Background(), store.Options{
		Backend:     cfg.Store.Backend,
		RedisURL:    cfg.Store.RedisURL,
		DatabaseURL: cfg.Store.DatabaseURL,
		SQLitePath:  cfg.Store.SQLitePath,
		BoltPath:    cfg.Store.BoltPath,
		Production:  cfg.App.IsProduction(),
	}, log)
	if err != nil {
		log.Error("progress store", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}

	nc, js := connectNATS(cfg, log)
	ap := analytics.New(js, log, cfg.App.ServiceName)

	reg := session.NewRegistry(progressStore, session.RegistryOptions{
		SaveInterval: cfg.Session.SaveInterval,
		WriteTimeout: cfg.Session.WriteTimeout,
		IdleTTL:      cfg.Session.IdleTTL,
		Logger:       log,
		Analytics:    ap,
	})
	applier := segments.NewApplier(progressStore)
	publisher := segments.NewPublisher(js, cfg.AsyncWrites)

	var segWorker *worker.Worker
	if js != nil {
		idem, err := idempotency.NewStore(idempotency.Options{
			RedisURL:    cfg.Store.RedisURL,
			DatabaseURL: cfg.Store.DatabaseURL,
			TTL:         cfg.IdempotencyTTL,
			Production:  cfg.App.IsProduction(),
		})
		if err != nil {
			log.Error("idempotency store", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		segWorker = worker.NewWorker(log, js, applier, idem, ap, worker.Options{
			BatchSize:     cfg.Worker.BatchSize,
			BatchInterval: cfg.Worker.BatchInterval,
			MaxDeliver:    cfg.Worker.MaxDeliver,
		})
	}

	ready := func() error { return nil }
	if p, ok := progressStore.(store.Pinger); ok {
		ready = grpchealth.Probe(p.Ping, 2*time.Second)
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: ready, Logger: log})
	handlers.Register(r, handlers.Deps{
		Store:     progressStore,
		Sessions:  reg,
		Applier:   applier,
		Publisher: publisher,
		Logger:    log,
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, Router: r})
	health := grpchealth.New(cfg.App.ServiceName, log)

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			if err := srv.Start(log); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			if err := health.ListenAndServe(cfg.App.GRPC.Addr); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			reg.Run(gctx, cfg.Session.ReapInterval)
			return nil
		})
		if segWorker != nil {
			g.Go(func() error {
				// The HTTP path still applies segments inline when the
				// consumer cannot start, so this is not fatal.
				if err := segWorker.Run(gctx); err != nil {
					log.Error("segment worker stopped", zap.Error(err))
				}
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			health.SetServing(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown", zap.Error(err))
			}
			health.Shutdown(shutdownCtx)
			reg.Shutdown(shutdownCtx)
			ap.Flush(shutdownCtx)
			return nil
		})

		health.SetServing(true)
		return g.Wait()
	})

	if nc != nil {
		_ = nc.Drain()
	}
	closeStore()
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// connectNATS returns a JetStream context when NATS is enabled and reachable.
// Without it analytics are dropped and segments are applied inline.
func connectNATS(cfg config.Config, log *zap.Logger) (*nats.Conn, nats.JetStreamContext) {
	if !cfg.NATS.Enabled {
		log.Info("nats disabled")
		return nil, nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATS.URL, Name: cfg.App.ServiceName, Logger: log})
	if err != nil {
		log.Warn("nats unavailable, continuing without jetstream", zap.Error(err))
		return nil, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Warn("jetstream unavailable", zap.Error(err))
		nc.Close()
		return nil, nil
	}
	if err := natsconn.EnsureStream(js, natsconn.StreamSpec{
		Name:     "ANALYTICS",
		Subjects: []string{"analytics.progress.>"},
		MaxAge:   30 * 24 * time.Hour,
	}); err != nil {
		log.Warn("ensure analytics stream", zap.Error(err))
	}
	return nc, js
}
