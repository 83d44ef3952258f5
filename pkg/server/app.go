package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"BlockPulse/internal/hub"
	"BlockPulse/internal/service/cache"
	"BlockPulse/internal/usecase"
	pkgch "BlockPulse/pkg/clickhouse"
	"BlockPulse/pkg/config"
	xhttp "BlockPulse/pkg/http"
	pkgkafka "BlockPulse/pkg/kafka"
	applogger "BlockPulse/pkg/logger"
)

// Servers groups the two HTTP listeners.
type Servers struct {
	Query      *xhttp.Server
	Subscriber *xhttp.Server
}

// Schedulers is the set of polling loops, one per source.
type Schedulers []*usecase.SourceScheduler

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	servers    Servers
	schedulers Schedulers
	hub        *hub.Hub
	processor  *usecase.ObservationProcessor
	consumer   *pkgkafka.Consumer
	producer   *pkgkafka.Producer
	cache      cache.BytesCache
	chClient   *pkgch.Client
}

// Deps carries everything App starts or releases.
type Deps struct {
	Log        *applogger.Logger
	Servers    Servers
	Schedulers Schedulers
	Hub        *hub.Hub
	Processor  *usecase.ObservationProcessor
	Consumer   *pkgkafka.Consumer // nil unless the kafka backend is active
	Producer   *pkgkafka.Producer // nil when nothing writes to kafka
	Cache      cache.BytesCache   // closed on shutdown if it implements io.Closer
	ClickHouse *pkgch.Client
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, d Deps) *App {
	log := d.Log
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		servers:    d.Servers,
		schedulers: d.Schedulers,
		hub:        d.Hub,
		processor:  d.Processor,
		consumer:   d.Consumer,
		producer:   d.Producer,
		cache:      d.Cache,
		chClient:   d.ClickHouse,
	}
}

// Run starts every component and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or a listener fails. It always shuts down before
// returning.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.release()
			return fmt.Errorf("start consumer: %w", err)
		}
	}

	started := make([]*xhttp.Server, 0, 2)
	for _, s := range []*xhttp.Server{a.servers.Query, a.servers.Subscriber} {
		if s == nil {
			continue
		}
		if err := s.Start(); err != nil {
			a.stopServers(started)
			a.stopConsumer()
			a.release()
			return err
		}
		started = append(started, s)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, s := range a.schedulers {
		wg.Add(1)
		go func(s *usecase.SourceScheduler) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				a.log.Error("scheduler stopped", applogger.String("source", string(s.Source())), applogger.Error(err))
			}
		}(s)
	}
	a.log.Info("blockpulse started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("sources", len(a.schedulers)))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-errOf(a.servers.Query):
		runErr = err
	case err := <-errOf(a.servers.Subscriber):
		runErr = err
	}

	// schedulers finish their in-flight persist and publish before the hub goes away
	cancelRun()
	wg.Wait()
	a.log.Info("schedulers stopped")

	if a.hub != nil {
		a.hub.Close()
	}
	a.stopServers(started)
	a.stopConsumer()
	a.release()

	a.log.Info("shutdown complete")
	return runErr
}

func errOf(s *xhttp.Server) <-chan error {
	if s == nil {
		return nil
	}
	return s.Err()
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.QueryServer.ShutdownTimeout; d > 0 {
		return d
	}
	return 10 * time.Second
}

func (a *App) stopServers(servers []*xhttp.Server) {
	for _, s := range servers {
		if err := s.Stop(context.Background()); err != nil {
			a.log.Warn("http shutdown error", applogger.Error(err))
		}
	}
}

func (a *App) stopConsumer() {
	if a.consumer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.consumer.Stop(ctx); err != nil {
		a.log.Warn("kafka consumer stop error", applogger.Error(err))
	}
}

// release closes outbound clients. ClickHouse goes last because the
// consumer and the processor may still be writing to it until now.
func (a *App) release() {
	a.log.RemoveCollector()

	if a.processor != nil {
		a.processor.Close()
	}
	// with the kafka backend the processor's publisher owns the producer
	if a.producer != nil && a.cfg.Backend.Type != usecase.BackendKafka {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if c, ok := a.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
}
