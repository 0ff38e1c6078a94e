package di

import (
	"context"
	"fmt"
	"time"

	"MarketScan/internal/domain/repository"
	"MarketScan/internal/handler/api"
	internalrepo "MarketScan/internal/repository"
	icache "MarketScan/internal/service/cache"
	"MarketScan/internal/service/fmp"
	"MarketScan/internal/service/ratelimit"
	"MarketScan/internal/services/signals"
	"MarketScan/internal/usecase"
	pkgch "MarketScan/pkg/clickhouse"
	"MarketScan/pkg/config"
	pkgkafka "MarketScan/pkg/kafka"
	applogger "MarketScan/pkg/logger"
	"MarketScan/pkg/metrics"
	"MarketScan/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	l, err := applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideLimiter creates the shared upstream rate limiter.
func ProvideLimiter(cfg *config.Config) (*ratelimit.SlidingWindow, error) {
	return ratelimit.NewSlidingWindow(ratelimit.Budget{
		MaxCalls: cfg.FMP.RateLimit.MaxCalls,
		Window:   cfg.FMP.RateLimit.Window,
	})
}

// ProvideMarketData creates the FMP client behind the MarketData boundary.
func ProvideMarketData(cfg *config.Config, limiter *ratelimit.SlidingWindow, l *applogger.Logger, m repository.Metrics) (repository.MarketData, error) {
	opts := []fmp.Option{fmp.WithLogger(l), fmp.WithMetrics(m)}
	if cfg.FMP.BaseURL != "" {
		opts = append(opts, fmp.WithBaseURL(cfg.FMP.BaseURL))
	}
	if cfg.FMP.Timeout > 0 {
		opts = append(opts, fmp.WithTimeout(cfg.FMP.Timeout))
	}
	client, err := fmp.New(cfg.FMP.APIKey, limiter, opts...)
	if err != nil {
		return nil, fmt.Errorf("fmp client: %w", err)
	}
	return client, nil
}

// ProvideEngine creates the signal engine from configuration.
func ProvideEngine(cfg *config.Config) (*signals.Engine, error) {
	return signals.NewEngine(signals.Config{
		ZWindow:         cfg.Signals.ZWindow,
		RVolWindow:      cfg.Signals.RVolWindow,
		RVolMinSessions: cfg.Signals.RVolMinSessions,
		ExtremeWindow:   cfg.Signals.ExtremeWindow,
		MAShort:         cfg.Signals.MAShort,
		MALong:          cfg.Signals.MALong,
		WeightZ:         cfg.Signals.WeightZ,
		WeightRVol:      cfg.Signals.WeightRVol,
		WeightFlags:     cfg.Signals.WeightFlags,
	})
}

// Stores bundles the persistence boundary so one provider can switch the
// whole set between ClickHouse and memory.
type Stores struct {
	RawPrices repository.RawPriceStore
	RawNews   repository.RawNewsStore
	Universe  repository.UniverseStore
	Canonical repository.CanonicalStore
	Signals   repository.SignalStore
	CH        *pkgch.Client
}

// ProvideStores creates the configured storage backend. For ClickHouse the
// schema is initialized before any store is handed out.
func ProvideStores(cfg *config.Config, l *applogger.Logger) (*Stores, error) {
	if cfg.Storage.Type == "memory" {
		return &Stores{
			RawPrices: internalrepo.NewMemoryRawPriceStore(),
			RawNews:   internalrepo.NewMemoryRawNewsStore(),
			Universe:  internalrepo.NewMemoryUniverseStore(),
			Canonical: internalrepo.NewMemoryCanonicalStore(),
			Signals:   internalrepo.NewMemorySignalStore(),
		}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return &Stores{
		RawPrices: internalrepo.NewCHRawPriceStore(client, l),
		RawNews:   internalrepo.NewCHRawNewsStore(client, l),
		Universe:  internalrepo.NewCHUniverseStore(client, l),
		Canonical: internalrepo.NewCHCanonicalStore(client, l),
		Signals:   internalrepo.NewCHSignalStore(client, l),
		CH:        client,
	}, nil
}

// ProvideCache picks Redis when configured, an in-process TTL cache otherwise.
func ProvideCache(cfg *config.Config) icache.BytesCache {
	if cfg.Cache.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// kafkaLogSink adapts the producer to the logger's collector boundary.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s *kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// ProvidePublisher creates the Kafka publisher, or nil when disabled. With
// Kafka on, repeated error logs are also aggregated onto a side topic.
func ProvidePublisher(cfg *config.Config, l *applogger.Logger) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 64,
		Topic:          cfg.Kafka.Topic + ".logs",
		Publisher:      &kafkaLogSink{producer: producer},
	})

	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideOrchestrator creates the bounded fetch pool.
func ProvideOrchestrator(cfg *config.Config, l *applogger.Logger) *usecase.Orchestrator {
	return usecase.NewOrchestrator(cfg.Ingest.Workers, l)
}

// ProvideIngest wires the ingestion use case.
func ProvideIngest(
	market repository.MarketData,
	stores *Stores,
	orch *usecase.Orchestrator,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.Ingest {
	return usecase.NewIngest(market, stores.RawPrices, stores.RawNews, stores.Universe,
		orch, cfg.Ingest.LookbackDays, cfg.Ingest.NewsLookbackDays, l, m)
}

// ProvideCanonicalBuilder wires the silver-table builder.
func ProvideCanonicalBuilder(stores *Stores, l *applogger.Logger) *usecase.CanonicalBuilder {
	return usecase.NewCanonicalBuilder(stores.RawPrices, stores.Canonical, l)
}

// ProvideSignalRunner wires signal computation with memoization.
func ProvideSignalRunner(
	stores *Stores,
	engine *signals.Engine,
	c icache.BytesCache,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.SignalRunner {
	return usecase.NewSignalRunner(stores.Canonical, engine, c, cfg.Cache.TTL, l, m)
}

// ProvideScanPipeline wires the end-to-end run.
func ProvideScanPipeline(
	ingest *usecase.Ingest,
	builder *usecase.CanonicalBuilder,
	runner *usecase.SignalRunner,
	stores *Stores,
	pub repository.Publisher,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.ScanPipeline {
	return usecase.NewScanPipeline(ingest, builder, runner, stores.Signals, pub,
		cfg.Signals.MinScore, cfg.Ingest.NewsTopK, l, m)
}

// ProvideHandler wires the HTTP surface.
func ProvideHandler(l *applogger.Logger, pipeline *usecase.ScanPipeline, runner *usecase.SignalRunner, stores *Stores) *api.ScanHandler {
	return api.NewScanHandler(l, pipeline, runner, stores.Universe)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *usecase.ScanPipeline,
	handler *api.ScanHandler,
	pub repository.Publisher,
	stores *Stores,
) *server.App {
	return server.New(cfg, l, pipeline, handler, pub, stores.CH)
}
