package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/handler/api"
	"ictbot/internal/repository"
	"ictbot/internal/service/bridge"
	"ictbot/internal/service/feed"
	"ictbot/internal/service/stream"
	"ictbot/internal/usecase"
	"ictbot/pkg/cache"
	pkgch "ictbot/pkg/clickhouse"
	"ictbot/pkg/config"
	xhttp "ictbot/pkg/http"
	pkgkafka "ictbot/pkg/kafka"
	"ictbot/pkg/logger"
	"ictbot/pkg/metrics"
	"ictbot/pkg/queue"
	"ictbot/pkg/server"
)

// ProvideLogger builds the application logger from the logger section. With
// logger.collect set, repeated errors are aggregated and shipped
// to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	lc := cfg.Logger.Config
	lgr, err := logger.New(&lc)
	if err != nil {
		return nil, err
	}
	if cfg.Logger.Collect && producer != nil && cfg.Kafka.LogTopic != "" {
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logger.FlushInterval,
			CountThreshold: cfg.Logger.Threshold,
			Topic:          cfg.Kafka.LogTopic,
			Source:         "ictbot",
			Publisher:      producer,
		})
	}
	return lgr, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisClient connects the Redis client shared by the cache and the job
// queue. It returns nil when no address is configured.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideCache selects the cache backend from cache.type.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, error) {
	switch cfg.Cache.Type {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("cache.type redis needs redis.addr")
		}
		return cache.NewRedisCacheFromClient(client, "ictbot"), nil
	case "layered":
		if client == nil {
			return nil, fmt.Errorf("cache.type layered needs redis.addr")
		}
		return cache.NewLayeredCache(cache.NewRedisCacheFromClient(client, "ictbot"),
			cache.WithLayeredMemorySize(cfg.Cache.MaxMem),
		), nil
	default:
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxMem)), nil
	}
}

// ProvideClickHouseClient connects ClickHouse and applies the schema. It
// returns nil when no host is configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
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
	if err := client.InitSchema(ctx, repository.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the producer used for ledgers and log batches.
// It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the consumer for the bars topic. It returns nil
// when Kafka or the topic is not configured.
func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger, m *metrics.Recorder) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.BarsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookFuncs{
		After: func(_ context.Context, topic string, _ kafkago.Message, err error) {
			if err != nil {
				m.RecordError("kafka_" + topic)
			}
		},
	})
	return consumer, nil
}

// ProvideBridgeClient creates the terminal bridge client, or nil without a base url.
func ProvideBridgeClient(cfg *config.Config, lgr *logger.Logger) (*bridge.Client, error) {
	if cfg.Bridge.BaseURL == "" {
		return nil, nil
	}
	return bridge.NewClient(cfg.Bridge.BaseURL, cfg.Bridge.APIKey, cfg.Bridge.Timeout, lgr)
}

// ProvideBarStore wraps ClickHouse as the bar store, or nil without ClickHouse.
func ProvideBarStore(ch *pkgch.Client, lgr *logger.Logger) *repository.CHBarStore {
	if ch == nil {
		return nil
	}
	return repository.NewCHBarStore(ch, lgr)
}

// ProvideMarketData builds the cached, chunked feed over the configured data source.
func ProvideMarketData(cfg *config.Config, store *repository.CHBarStore, br *bridge.Client, barCache *repository.BarCache, lgr *logger.Logger) (*feed.Cached, error) {
	var (
		src     domrepo.RangeSource
		symbols domrepo.SymbolSource
	)
	switch cfg.Data.Source {
	case "bridge":
		if br == nil {
			return nil, fmt.Errorf("data.source bridge needs bridge.base_url")
		}
		src, symbols = br, br
	default:
		if store == nil {
			return nil, fmt.Errorf("data.source clickhouse needs clickhouse.host")
		}
		src, symbols = store, store
	}

	chunked := feed.NewChunked(src, feed.WithMaxBarsPerChunk(cfg.Data.MaxBarsPerChunk), feed.WithLogger(lgr))
	return feed.NewCached(chunked, symbols, barCache, lgr), nil
}

// ProvideBarCache stores fetched histories in the cache for cache.max_age.
func ProvideBarCache(cfg *config.Config, c cache.Service, lgr *logger.Logger) *repository.BarCache {
	return repository.NewBarCache(c, cfg.Cache.MaxAge, lgr)
}

func ProvideStrategyLoader(cfg *config.Config) usecase.StrategyLoader {
	return usecase.DirStrategies(cfg.Strategy.Dir)
}

// ProvideReportStore keeps reports in ClickHouse when available and as JSON
// files under reports.dir otherwise.
func ProvideReportStore(cfg *config.Config, ch *pkgch.Client, lgr *logger.Logger) domrepo.ReportStore {
	if ch != nil {
		return repository.NewCHReportStore(ch, lgr)
	}
	return repository.NewFileReportStore(cfg.Reports.Dir)
}

func ProvideLedgerPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.LedgerPublisher {
	if producer == nil || cfg.Kafka.LedgerTopic == "" {
		return nil
	}
	return repository.NewKafkaLedgerPublisher(producer, cfg.Kafka.LedgerTopic)
}

// ProvideModelStore keeps filter snapshots in Redis when the cache is shared,
// and on disk when the cache lives only in this process.
func ProvideModelStore(cfg *config.Config, c cache.Service) domrepo.ModelStore {
	if cfg.Cache.Type == "memory" {
		return repository.NewFileModelStore(filepath.Join(cfg.Reports.Dir, "models"))
	}
	return repository.NewCacheModelStore(c)
}

// ProvideQueue creates the Redis job queue, or nil without Redis.
func ProvideQueue(cfg *config.Config, client *redis.Client, lgr *logger.Logger) *queue.RedisQueue {
	if client == nil {
		return nil
	}
	return queue.NewRedisQueue(lgr, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, queue.ModeProducerConsumer)
}

func ProvideBacktestService(md *feed.Cached, strategies usecase.StrategyLoader, reports domrepo.ReportStore, ledger domrepo.LedgerPublisher, m *metrics.Recorder, lgr *logger.Logger) *usecase.BacktestService {
	return usecase.NewBacktestService(md, strategies, reports, ledger, m, lgr)
}

func ProvideGridSearchService(md *feed.Cached, strategies usecase.StrategyLoader, c cache.Service, q *queue.RedisQueue, m *metrics.Recorder, lgr *logger.Logger) *usecase.GridSearchService {
	var qs queue.QueueService
	if q != nil {
		qs = q
	}
	return usecase.NewGridSearchService(md, strategies, c, qs, m, lgr)
}

// ProvideSignalService evaluates on the newest bars, reading past the bar cache.
func ProvideSignalService(cfg *config.Config, md *feed.Cached, strategies usecase.StrategyLoader, store domrepo.ModelStore, lgr *logger.Logger) *usecase.SignalService {
	return usecase.NewSignalService(md.Live(), md, strategies, store, cfg.Live.ModelKey, lgr)
}

// ProvideLiveTrader builds the live trader when live.enabled is set. It reads
// bars past the bar cache and takes contract details from the broker.
func ProvideLiveTrader(cfg *config.Config, md *feed.Cached, strategies usecase.StrategyLoader, br *bridge.Client, store domrepo.ModelStore, m *metrics.Recorder, lgr *logger.Logger) (*usecase.LiveTrader, error) {
	if !cfg.Live.Enabled {
		return nil, nil
	}
	if br == nil {
		return nil, fmt.Errorf("live trading needs bridge.base_url")
	}
	strategy, err := strategies(cfg.Strategy.Name)
	if err != nil {
		return nil, fmt.Errorf("live strategy: %w", err)
	}
	return usecase.NewLiveTrader(usecase.LiveConfig{
		Symbol:     cfg.Live.Symbol,
		Timeframe:  domrepo.NormalizeTimeframe(cfg.Live.Timeframe),
		WarmupBars: cfg.Live.WarmupBars,
		WindowBars: cfg.Live.WindowBars,
		ModelKey:   cfg.Live.ModelKey,
	}, strategy, md.Live(), br, br, store, m, lgr.With(logger.String("component", "live"))), nil
}

// ProvideBarCollector streams closed bars into the live trader, recording them
// in ClickHouse first when a bar store is available.
func ProvideBarCollector(cfg *config.Config, trader *usecase.LiveTrader, store *repository.CHBarStore, m *metrics.Recorder, lgr *logger.Logger) *usecase.BarCollector {
	if trader == nil {
		return nil
	}
	var procs usecase.BarProcessors
	if store != nil {
		procs = append(procs, usecase.NewBarRecorder(store))
	}
	procs = append(procs, trader)

	pipe := usecase.NewBarPipeline(procs, m,
		usecase.WithBufferSize(cfg.Live.BufferSize),
		usecase.WithPipelineLogger(lgr),
	)
	client := stream.New(cfg.Stream.URL, cfg.Stream.APIKey, lgr,
		stream.WithReconnectDelay(cfg.Stream.ReconnectDelay),
		stream.WithPingInterval(cfg.Stream.PingInterval),
	)
	return usecase.NewBarCollector(client, pipe, m, lgr,
		usecase.Subscription{Symbol: trader.Symbol(), Timeframe: trader.Timeframe()})
}

// ProvideKafkaBarsHandler ingests bar batches from Kafka into ClickHouse.
func ProvideKafkaBarsHandler(cfg *config.Config, store *repository.CHBarStore, m *metrics.Recorder) *usecase.KafkaBarsHandler {
	if store == nil || cfg.Kafka.BarsTopic == "" {
		return nil
	}
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, store, m)
}

// ProvideHTTPHandler assembles every API route group.
func ProvideHTTPHandler(
	lgr *logger.Logger,
	backtests *usecase.BacktestService,
	grid *usecase.GridSearchService,
	signals *usecase.SignalService,
	trader *usecase.LiveTrader,
	c cache.Service,
	barCache *repository.BarCache,
	ch *pkgch.Client,
	rdb *redis.Client,
) xhttp.Handler {
	var live api.LiveSignals
	if trader != nil {
		live = trader
	}

	checks := map[string]api.HealthCheck{}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	return xhttp.Handlers{
		api.NewSystemHandler(lgr, barCache, checks),
		api.NewBacktestHandler(lgr, backtests),
		api.NewGridSearchHandler(lgr, grid),
		api.NewSignalsHandler(lgr, signals, live, c),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	handler xhttp.Handler,
	c cache.Service,
	ch *pkgch.Client,
	rdb *redis.Client,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	q *queue.RedisQueue,
	grid *usecase.GridSearchService,
	trader *usecase.LiveTrader,
	collector *usecase.BarCollector,
) *server.App {
	app := server.New(cfg, lgr, handler)
	app.SetCache(c)
	app.SetClickHouse(ch)
	app.SetRedis(rdb)
	if producer != nil {
		app.SetProducer(producer)
	}
	if consumer != nil && kh != nil {
		app.SetConsumer(consumer, kh)
	}
	if q != nil {
		q.RegisterJob(grid.Job())
		app.SetQueue(q)
	}
	if trader != nil && collector != nil {
		app.SetLive(trader, collector)
	}
	return app
}
