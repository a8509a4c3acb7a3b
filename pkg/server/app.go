package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ictbot/internal/usecase"
	"ictbot/pkg/cache"
	pkgch "ictbot/pkg/clickhouse"
	"ictbot/pkg/config"
	xhttp "ictbot/pkg/http"
	pkgkafka "ictbot/pkg/kafka"
	"ictbot/pkg/logger"
	"ictbot/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	logger      *logger.Logger
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	cache    cache.Service
	chClient *pkgch.Client
	redis    *redis.Client
	producer *pkgkafka.Producer
	consumer *pkgkafka.Consumer
	kh       pkgkafka.MessageHandler
	queue    *queue.RedisQueue

	trader    *usecase.LiveTrader
	collector *usecase.BarCollector
	liveDone  chan struct{}
}

// New creates an App serving handler. Optional components are attached with
// the Set methods before Run.
func New(cfg *config.Config, lgr *logger.Logger, handler xhttp.Handler) *App {
	return &App{cfg: cfg, logger: lgr, httpHandler: handler}
}

func (a *App) SetCache(c cache.Service)         { a.cache = c }
func (a *App) SetClickHouse(ch *pkgch.Client)   { a.chClient = ch }
func (a *App) SetRedis(rdb *redis.Client)       { a.redis = rdb }
func (a *App) SetProducer(p *pkgkafka.Producer) { a.producer = p }
func (a *App) SetQueue(q *queue.RedisQueue)     { a.queue = q }

// SetConsumer attaches the Kafka consumer and the handler it feeds.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = h
}

// SetLive attaches the live trader and the collector streaming bars into it.
func (a *App) SetLive(t *usecase.LiveTrader, c *usecase.BarCollector) {
	a.trader = t
	a.collector = c
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}
	a.httpServer = xhttp.NewServer(a.logger, a.httpHandler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithRateLimit(a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst),
		xhttp.WithMetricsPath(metricsPath),
	)

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.logger.Error("job queue start error", logger.Error(err))
			return err
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", logger.Error(err))
			}
		}()
		a.logger.Info("kafka consumer started", logger.String("topic", a.kh.Topic()))
	}

	if a.trader != nil {
		a.liveDone = make(chan struct{})
		go a.runLive(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", logger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		a.logger.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		a.logger.Error("http server failed, shutting down", logger.Error(err))
	}

	cancel()
	return a.shutdown()
}

// runLive warms the trader up and then starts streaming. Warm-up replays a
// long history, so it runs while the API is already serving.
func (a *App) runLive(ctx context.Context) {
	defer close(a.liveDone)

	start := time.Now()
	if err := a.trader.Warmup(ctx); err != nil {
		a.logger.Error("live warm-up failed, live trading disabled", logger.Error(err))
		return
	}
	a.logger.Info("live trader warmed up",
		logger.String("symbol", a.trader.Symbol()),
		logger.String("timeframe", string(a.trader.Timeframe())),
		logger.Duration("took", time.Since(start)))

	if err := a.collector.Start(ctx); err != nil {
		a.logger.Error("bar collector start error", logger.Error(err))
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if a.trader != nil {
		select {
		case <-a.liveDone:
		case <-ctx.Done():
		}
		if err := a.collector.Shutdown(ctx); err != nil {
			a.logger.Warn("bar collector stop error", logger.Error(err))
		}
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", logger.Error(err))
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Warn("job queue stop error", logger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", logger.Error(err))
		}
	}

	// flush aggregated logs before the producer goes away
	a.logger.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close error", logger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", logger.Error(err))
		}
	}

	// a Redis-backed cache owns the shared client
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close error", logger.Error(err))
		}
	}
	if a.redis != nil && a.cfg.Cache.Type == "memory" {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close error", logger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
