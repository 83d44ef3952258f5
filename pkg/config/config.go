package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is one HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            bool          `yaml:"cors"`
}

// SourceConfig describes one polled feed.
type SourceConfig struct {
	URL          string        `yaml:"url"`
	FieldPath    string        `yaml:"field_path"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	FetchOnStart *bool         `yaml:"fetch_on_start"`
}

// StartImmediately reports whether the scheduler fires before the first tick.
// Unset means yes.
func (s SourceConfig) StartImmediately() bool {
	return s.FetchOnStart == nil || *s.FetchOnStart
}

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Sources struct {
		Chain SourceConfig `yaml:"chain"`
		Price SourceConfig `yaml:"price"`
	} `yaml:"sources"`
	Scheduler struct {
		PersistTimeout time.Duration `yaml:"persist_timeout"`
	} `yaml:"scheduler"`
	QueryServer      ServerConfig `yaml:"query_server"`
	SubscriberServer ServerConfig `yaml:"subscriber_server"`
	Subscriber       struct {
		QueueSize   int           `yaml:"queue_size"`
		PingPeriod  time.Duration `yaml:"ping_period"`
		PongWait    time.Duration `yaml:"pong_wait"`
		WriteWait   time.Duration `yaml:"write_wait"`
		AcceptRate  float64       `yaml:"accept_rate"`
		AcceptBurst int           `yaml:"accept_burst"`
	} `yaml:"subscriber"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		ObservationsTopic string   `yaml:"observations_topic"`
		RequiredAcks      int      `yaml:"required_acks"`
		Compression       string   `yaml:"compression"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		MaxOpenConns     int           `yaml:"max_open_conns"`
		MaxIdleConns     int           `yaml:"max_idle_conns"`
	} `yaml:"clickhouse"`
	Cache struct {
		Type      string        `yaml:"type"`
		LatestTTL time.Duration `yaml:"latest_ttl"`
		ListTTL   time.Duration `yaml:"list_ttl"`
		Redis     struct {
			Addr     string        `yaml:"addr"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			Prefix   string        `yaml:"prefix"`
			Timeout  time.Duration `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Query struct {
		Granularity string `yaml:"granularity"`
	} `yaml:"query"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, applies environment overrides and
// validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.setDefaults()
	return &c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = strings.Split(v, ",")
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("BLOCKPULSE_ENV", &c.Environment)
	str("BLOCKPULSE_LOG_LEVEL", &c.Log.Level)
	str("CHAIN_FEED_URL", &c.Sources.Chain.URL)
	str("PRICE_FEED_URL", &c.Sources.Price.URL)
	str("BLOCKPULSE_BACKEND", &c.Backend.Type)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_USER", &c.ClickHouse.User)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("REDIS_ADDR", &c.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("BLOCKPULSE_CACHE", &c.Cache.Type)

	for _, fn := range []func() error{
		func() error { return dur("BLOCKPULSE_CHAIN_INTERVAL", &c.Sources.Chain.Interval) },
		func() error { return dur("BLOCKPULSE_PRICE_INTERVAL", &c.Sources.Price.Interval) },
		func() error { return num("CLICKHOUSE_PORT", &c.ClickHouse.Port) },
		func() error { return num("BLOCKPULSE_QUERY_PORT", &c.QueryServer.Port) },
		func() error { return num("BLOCKPULSE_WS_PORT", &c.SubscriberServer.Port) },
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.Collector.Interval == 0 {
		c.Log.Collector.Interval = 30 * time.Second
	}
	if c.Log.Collector.CountThreshold == 0 {
		c.Log.Collector.CountThreshold = 100
	}
	if c.Log.Collector.Topic == "" {
		c.Log.Collector.Topic = "blockpulse.logs"
	}

	if c.Sources.Chain.URL == "" {
		c.Sources.Chain.URL = "https://blockchain.info/latestblock"
	}
	if c.Sources.Chain.FieldPath == "" {
		c.Sources.Chain.FieldPath = "height"
	}
	if c.Sources.Chain.Interval == 0 {
		c.Sources.Chain.Interval = 60 * time.Second
	}
	if c.Sources.Price.URL == "" {
		c.Sources.Price.URL = "https://api.coindesk.com/v1/bpi/currentprice.json"
	}
	if c.Sources.Price.FieldPath == "" {
		c.Sources.Price.FieldPath = "bpi.USD.rate_float"
	}
	if c.Sources.Price.Interval == 0 {
		c.Sources.Price.Interval = 30 * time.Second
	}
	for _, s := range []*SourceConfig{&c.Sources.Chain, &c.Sources.Price} {
		if s.Timeout == 0 {
			s.Timeout = 10 * time.Second
		}
	}
	if c.Scheduler.PersistTimeout == 0 {
		c.Scheduler.PersistTimeout = 10 * time.Second
	}

	if c.QueryServer.Port == 0 {
		c.QueryServer.Port = 8080
	}
	if c.SubscriberServer.Port == 0 {
		c.SubscriberServer.Port = 8081
	}
	for _, s := range []*ServerConfig{&c.QueryServer, &c.SubscriberServer} {
		if s.ReadTimeout == 0 {
			s.ReadTimeout = 15 * time.Second
		}
		if s.WriteTimeout == 0 {
			s.WriteTimeout = 15 * time.Second
		}
		if s.ShutdownTimeout == 0 {
			s.ShutdownTimeout = 10 * time.Second
		}
	}

	if c.Subscriber.QueueSize == 0 {
		c.Subscriber.QueueSize = 64
	}
	if c.Subscriber.PongWait == 0 {
		c.Subscriber.PongWait = 60 * time.Second
	}
	if c.Subscriber.PingPeriod == 0 {
		c.Subscriber.PingPeriod = c.Subscriber.PongWait * 9 / 10
	}
	if c.Subscriber.WriteWait == 0 {
		c.Subscriber.WriteWait = 10 * time.Second
	}
	if c.Subscriber.AcceptRate == 0 {
		c.Subscriber.AcceptRate = 5
	}
	if c.Subscriber.AcceptBurst == 0 {
		c.Subscriber.AcceptBurst = 10
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "clickhouse"
	}
	if c.Kafka.ObservationsTopic == "" {
		c.Kafka.ObservationsTopic = "blockpulse.observations"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "blockpulse-sink"
	}

	if c.ClickHouse.Host == "" {
		c.ClickHouse.Host = "localhost"
	}
	if c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = 9000
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "blockpulse"
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "ttl"
	}
	if c.Cache.LatestTTL == 0 {
		c.Cache.LatestTTL = 2 * time.Second
	}
	if c.Cache.ListTTL == 0 {
		c.Cache.ListTTL = 5 * time.Second
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "blockpulse:"
	}
	if c.Query.Granularity == "" {
		c.Query.Granularity = "1m"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if err := validateSource("sources.chain", c.Sources.Chain); err != nil {
		return err
	}
	if err := validateSource("sources.price", c.Sources.Price); err != nil {
		return err
	}
	if err := validatePort("query_server.port", c.QueryServer.Port); err != nil {
		return err
	}
	if err := validatePort("subscriber_server.port", c.SubscriberServer.Port); err != nil {
		return err
	}
	if c.QueryServer.Port == c.SubscriberServer.Port && c.QueryServer.Host == c.SubscriberServer.Host {
		return fmt.Errorf("query_server and subscriber_server must listen on different addresses")
	}
	if c.Subscriber.QueueSize < 1 {
		return fmt.Errorf("subscriber.queue_size must be positive, got %d", c.Subscriber.QueueSize)
	}
	if c.Subscriber.PingPeriod >= c.Subscriber.PongWait {
		return fmt.Errorf("subscriber.ping_period must be shorter than subscriber.pong_wait")
	}
	if c.Subscriber.AcceptRate < 0 || c.Subscriber.AcceptBurst < 1 {
		return fmt.Errorf("subscriber.accept_rate must be >= 0 and subscriber.accept_burst >= 1")
	}

	switch c.Backend.Type {
	case "clickhouse":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when backend.type is 'kafka'")
		}
		if c.Kafka.ObservationsTopic == "" {
			return fmt.Errorf("kafka.observations_topic is required")
		}
	default:
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Log.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("log.collector requires kafka.brokers")
	}

	if c.ClickHouse.Host == "" || c.ClickHouse.Database == "" {
		return fmt.Errorf("clickhouse.host and clickhouse.database are required")
	}

	switch c.Cache.Type {
	case "none", "ttl":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required when cache.type is 'redis'")
		}
	default:
		return fmt.Errorf("cache.type must be 'none', 'ttl' or 'redis', got '%s'", c.Cache.Type)
	}

	switch c.Query.Granularity {
	case "1s", "1m", "5m":
	default:
		return fmt.Errorf("query.granularity must be one of 1s, 1m, 5m, got '%s'", c.Query.Granularity)
	}
	return nil
}

func validateSource(name string, s SourceConfig) error {
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s.url must be an absolute URL, got '%s'", name, s.URL)
	}
	if s.FieldPath == "" {
		return fmt.Errorf("%s.field_path is required", name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("%s.interval must be positive", name)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", name)
	}
	return nil
}

func validatePort(name string, p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("%s must be in 1..65535, got %d", name, p)
	}
	return nil
}
