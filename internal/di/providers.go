package di

import (
	"context"
	"fmt"
	"time"

	"BlockPulse/internal/domain/repository"
	"BlockPulse/internal/handler/api"
	"BlockPulse/internal/handler/ws"
	"BlockPulse/internal/hub"
	internalrepo "BlockPulse/internal/repository"
	"BlockPulse/internal/service/cache"
	"BlockPulse/internal/service/feed"
	"BlockPulse/internal/service/ratelimit"
	"BlockPulse/internal/usecase"
	pkgch "BlockPulse/pkg/clickhouse"
	"BlockPulse/pkg/config"
	xhttp "BlockPulse/pkg/http"
	pkgkafka "BlockPulse/pkg/kafka"
	applogger "BlockPulse/pkg/logger"
	"BlockPulse/pkg/metrics"
	"BlockPulse/pkg/server"
)

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return repository.NopMetrics{}
	}
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse and creates the schema.
// The schema is database-qualified, so the connection uses the server
// default database.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready",
		applogger.String("host", cfg.ClickHouse.Host),
		applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideStorage creates the ClickHouse observation store.
func ProvideStorage(client *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(client.DB(), cfg.ClickHouse.Database)
}

// ProvideKafkaProducer creates a producer when the kafka backend or the log
// collector needs one, and returns nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != usecase.BackendKafka && !cfg.Log.Collector.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher creates the Kafka observation publisher. It is nil unless
// the kafka backend is selected.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if cfg.Backend.Type != usecase.BackendKafka || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ObservationsTopic)
}

// ProvideObservationProcessor creates the persistence sink.
func ProvideObservationProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.ObservationProcessor {
	return usecase.NewObservationProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideHub creates the subscriber registry.
func ProvideHub(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *hub.Hub {
	return hub.New(
		hub.WithQueueSize(cfg.Subscriber.QueueSize),
		hub.WithMetrics(m),
		hub.WithLogger(l.With(applogger.String("component", "hub"))),
	)
}

// ProvideSchedulers creates one polling loop per source.
func ProvideSchedulers(
	cfg *config.Config,
	processor *usecase.ObservationProcessor,
	h *hub.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) server.Schedulers {
	chain := cfg.Sources.Chain
	price := cfg.Sources.Price

	newScheduler := func(f repository.Fetcher, src config.SourceConfig) *usecase.SourceScheduler {
		return usecase.NewSourceScheduler(f, processor, h, m, src.Interval,
			usecase.WithFetchOnStart(src.StartImmediately()),
			usecase.WithPersistTimeout(cfg.Scheduler.PersistTimeout),
			usecase.WithSchedulerLogger(l),
		)
	}

	return server.Schedulers{
		newScheduler(feed.NewChainHeightFetcher(chain.URL, chain.FieldPath, feed.WithTimeout(chain.Timeout)), chain),
		newScheduler(feed.NewPriceIndexFetcher(price.URL, price.FieldPath, feed.WithTimeout(price.Timeout)), price),
	}
}

// ProvideCache creates the read cache for the query side. It is nil when
// caching is disabled.
func ProvideCache(cfg *config.Config) cache.BytesCache {
	switch cfg.Cache.Type {
	case "ttl":
		return cache.NewTTLCache()
	case "redis":
		r := cfg.Cache.Redis
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
			Timeout:  r.Timeout,
		})
	default:
		return nil
	}
}

// ProvideHistoryUseCase creates the query use case.
func ProvideHistoryUseCase(
	store repository.Storage,
	m repository.Metrics,
	c cache.BytesCache,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.HistoryUseCase {
	opts := []usecase.HistoryOption{
		usecase.WithGranularity(repository.Timeframe(cfg.Query.Granularity)),
		usecase.WithHistoryLogger(l),
	}
	if c != nil {
		opts = append(opts, usecase.WithCache(c, cfg.Cache.LatestTTL, cfg.Cache.ListTTL))
	}
	return usecase.NewHistoryUseCase(store, m, opts...)
}

// ProvideServers builds the query listener and the subscriber listener.
func ProvideServers(
	cfg *config.Config,
	history *usecase.HistoryUseCase,
	h *hub.Hub,
	l *applogger.Logger,
) server.Servers {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	q := cfg.QueryServer
	query := xhttp.NewServer(
		[]xhttp.Handler{api.NewHistoryEchoHandler(l, history)},
		xhttp.WithName("query"),
		xhttp.WithHost(q.Host),
		xhttp.WithPort(q.Port),
		xhttp.WithTimeouts(q.ReadTimeout, q.WriteTimeout, q.ShutdownTimeout),
		xhttp.WithCORS(q.CORS),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)

	sc := cfg.Subscriber
	wsHandler := ws.NewHandler(h,
		ratelimit.New(sc.AcceptRate, sc.AcceptBurst),
		ws.Config{
			PingPeriod: sc.PingPeriod,
			PongWait:   sc.PongWait,
			WriteWait:  sc.WriteWait,
			ReadLimit:  ws.DefaultConfig().ReadLimit,
		},
		l,
	)

	s := cfg.SubscriberServer
	subscriber := xhttp.NewServer(
		[]xhttp.Handler{wsHandler},
		xhttp.WithName("subscriber"),
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithCORS(s.CORS),
		xhttp.WithLogger(l),
	)

	return server.Servers{Query: query, Subscriber: subscriber}
}

// ProvideKafkaConsumer creates the sink consumer that moves observations
// from Kafka into ClickHouse. It is nil unless the kafka backend is selected.
func ProvideKafkaConsumer(
	cfg *config.Config,
	store repository.Storage,
	m repository.Metrics,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewObservationsHandler(cfg.Kafka.ObservationsTopic, store, m))
	return consumer, nil
}

// ProvideApp creates the application server and attaches the log collector
// when it is enabled.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	servers server.Servers,
	schedulers server.Schedulers,
	h *hub.Hub,
	processor *usecase.ObservationProcessor,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	c cache.BytesCache,
	chClient *pkgch.Client,
) *server.App {
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, server.Deps{
		Log:        l,
		Servers:    servers,
		Schedulers: schedulers,
		Hub:        h,
		Processor:  processor,
		Consumer:   consumer,
		Producer:   producer,
		Cache:      c,
		ClickHouse: chClient,
	})
}
