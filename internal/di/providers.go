package di

import (
	"fmt"

	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	"FinSight/internal/handler/api"
	mid "FinSight/internal/middleware"
	internalrepo "FinSight/internal/repository"
	svccache "FinSight/internal/service/cache"
	"FinSight/internal/service/provider"
	"FinSight/internal/services/ensemble"
	"FinSight/internal/services/predictor"
	"FinSight/internal/usecase"
	pkgcache "FinSight/pkg/cache"
	pkgch "FinSight/pkg/clickhouse"
	"FinSight/pkg/config"
	xhttp "FinSight/pkg/http"
	pkgkafka "FinSight/pkg/kafka"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/metrics"
	"FinSight/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logger.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logger.Format
	if format == "" {
		format = "json"
	}
	output := cfg.Logger.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// history sink is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore creates the ClickHouse-backed result history, or
// nil when ClickHouse is disabled.
func ProvideHistoryStore(chClient *pkgch.Client, cfg *config.Config) domrepo.HistoryStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseHistory(chClient.DB(), cfg.ClickHouse.Table)
}

// ProvideEventPublisher wires prediction events to Kafka when a broker
// is configured, and to the in-process fan-out otherwise.
func ProvideEventPublisher(cfg *config.Config) (domrepo.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NewInProcPublisher(), nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvidePredictionCache builds the result cache, attaching a shared
// Redis level when configured.
func ProvidePredictionCache(cfg *config.Config, l *applogger.Logger) (*svccache.PredictionCache, error) {
	opts := []svccache.PredictionCacheOption{svccache.WithLogger(l)}
	if cfg.Engine.PredictionTTL > 0 {
		opts = append(opts, svccache.WithTTL(cfg.Engine.PredictionTTL))
	}
	if cfg.Redis.Enabled {
		redisCache, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(cfg.Redis.Host),
			pkgcache.WithRedisPort(cfg.Redis.Port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		// The layered memory tier absorbs repeat Redis round trips for
		// keys the typed cache has dropped, e.g. right after invalidation.
		opts = append(opts, svccache.WithL2(pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(512))))
	}
	return svccache.NewPredictionCache(opts...), nil
}

// ProvideBarProvider creates the REST bar fetcher.
func ProvideBarProvider(cfg *config.Config, l *applogger.Logger) domsvc.BarProvider {
	return provider.NewClient(provider.Config{
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		Timeout:     cfg.Provider.Timeout,
		MaxAttempts: cfg.Provider.MaxAttempts,
	}, l)
}

// ProvidePriceStream creates the provider WebSocket quote stream.
func ProvidePriceStream(cfg *config.Config, l *applogger.Logger) domrepo.PriceStream {
	return provider.NewStream(provider.StreamConfig{
		WebsocketURL:   cfg.Provider.WebSocketURL,
		APIKey:         cfg.Provider.APIKey,
		Tickers:        cfg.Provider.Tickers,
		ReconnectDelay: cfg.Provider.ReconnectDelay,
		PingInterval:   cfg.Provider.PingInterval,
	}, l)
}

// ProvideQuotePipeline builds the stream-to-alerts pipeline.
func ProvideQuotePipeline(stream domrepo.PriceStream, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *mid.QuotePipeline {
	opts := []mid.PipelineOption{mid.WithPipelineLogger(l)}
	if cfg.Provider.MaxRPS > 0 {
		opts = append(opts, mid.WithMaxRPS(cfg.Provider.MaxRPS))
	}
	return mid.NewQuotePipeline(stream, m, opts...)
}

// ProvideModelAdapters builds the three model variants with their
// confidence strategies.
func ProvideModelAdapters(cfg *config.Config) []domsvc.ModelAdapter {
	cc := predictor.DefaultConfidenceConfig()
	if cfg.Engine.ForestCalibration > 0 {
		cc.ForestCalibration = cfg.Engine.ForestCalibration
	}
	if cfg.Engine.BoostPrior > 0 {
		cc.BoostPrior = cfg.Engine.BoostPrior
	}
	if cfg.Engine.BoostRMSEThreshold > 0 {
		cc.BoostRMSEThreshold = cfg.Engine.BoostRMSEThreshold
	}
	if cfg.Engine.SeqNetScale > 0 {
		cc.SeqNetScale = cfg.Engine.SeqNetScale
	}
	return []domsvc.ModelAdapter{
		predictor.NewForestAdapter(predictor.NewForestConfidence(cc)),
		predictor.NewBoostAdapter(predictor.NewBoostConfidence(cc)),
		predictor.NewSeqNetAdapter(predictor.NewSeqNetConfidence(cc)),
	}
}

// ProvideModelCache builds the per-ticker artifact cache.
func ProvideModelCache(adapters []domsvc.ModelAdapter, cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) *usecase.ModelCache {
	opts := []usecase.ModelCacheOption{
		usecase.WithModelCacheMetrics(m),
		usecase.WithModelCacheLogger(l),
	}
	if cfg.Engine.RetrainInterval > 0 {
		opts = append(opts, usecase.WithRetrainInterval(cfg.Engine.RetrainInterval))
	}
	if cfg.Engine.TrainingWait > 0 {
		opts = append(opts, usecase.WithWaitTimeout(cfg.Engine.TrainingWait))
	}
	return usecase.NewModelCache(adapters, opts...)
}

// ProvideCombiner builds the ensemble combiner.
func ProvideCombiner() *ensemble.Combiner {
	return ensemble.NewCombiner()
}

// ProvidePredictionUseCase wires the engine orchestration.
func ProvidePredictionUseCase(
	barProvider domsvc.BarProvider,
	modelCache *usecase.ModelCache,
	combiner *ensemble.Combiner,
	cache *svccache.PredictionCache,
	publisher domrepo.EventPublisher,
	history domrepo.HistoryStore,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PredictionUseCase {
	opts := []usecase.PredictionOption{
		usecase.WithEventPublisher(publisher),
		usecase.WithMetrics(m),
		usecase.WithLogger(l),
	}
	if history != nil {
		opts = append(opts, usecase.WithHistoryStore(history))
	}
	if cfg.Engine.LookbackDays > 0 {
		opts = append(opts, usecase.WithLookbackDays(cfg.Engine.LookbackDays))
	}
	if cfg.Engine.RequestTimeout > 0 {
		opts = append(opts, usecase.WithRequestTimeout(cfg.Engine.RequestTimeout))
	}
	if cfg.Engine.ChartTTL > 0 {
		opts = append(opts, usecase.WithChartTTL(cfg.Engine.ChartTTL))
	}
	return usecase.NewPredictionUseCase(barProvider, modelCache, combiner, cache, opts...)
}

// ProvideAlertRegistry builds the alert rule registry.
func ProvideAlertRegistry(m domrepo.Metrics, l *applogger.Logger) *usecase.AlertRegistry {
	return usecase.NewAlertRegistry(
		usecase.WithAlertMetrics(m),
		usecase.WithAlertLogger(l),
	)
}

// ProvideScheduler wires the retrain and alert loops.
func ProvideScheduler(
	engine *usecase.PredictionUseCase,
	modelCache *usecase.ModelCache,
	alerts *usecase.AlertRegistry,
	pipeline *mid.QuotePipeline,
	cfg *config.Config,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Scheduler {
	opts := []usecase.SchedulerOption{
		usecase.WithSchedulerMetrics(m),
		usecase.WithSchedulerLogger(l),
	}
	if cfg.Engine.RetrainScan > 0 {
		opts = append(opts, usecase.WithRetrainScanInterval(cfg.Engine.RetrainScan))
	}
	if cfg.Engine.AlertInterval > 0 {
		opts = append(opts, usecase.WithAlertInterval(cfg.Engine.AlertInterval))
	}
	return usecase.NewScheduler(engine, modelCache, alerts, pipeline, opts...)
}

// ProvideHTTPHandler builds the Echo route handler.
func ProvideHTTPHandler(l *applogger.Logger, engine *usecase.PredictionUseCase, alerts *usecase.AlertRegistry) xhttp.Handler {
	return api.NewPredictionEchoHandler(l, engine, alerts)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *mid.QuotePipeline,
	scheduler *usecase.Scheduler,
	cache *svccache.PredictionCache,
	history domrepo.HistoryStore,
	publisher domrepo.EventPublisher,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, pipeline, scheduler, cache, history, publisher, chClient, handler)
}
