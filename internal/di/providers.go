package di

import (
	"context"
	"fmt"
	"time"

	"RateGate/internal/domain/repository"
	"RateGate/internal/handler/api"
	mid "RateGate/internal/middleware"
	internalrepo "RateGate/internal/repository"
	"RateGate/internal/service/cache"
	"RateGate/internal/service/ratelimit"
	"RateGate/internal/service/upstream"
	"RateGate/internal/usecase"
	"RateGate/pkg/config"
	xhttp "RateGate/pkg/http"
	pkgkafka "RateGate/pkg/kafka"
	applogger "RateGate/pkg/logger"
	"RateGate/pkg/metrics"
	"RateGate/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvidePrometheusRegistry creates the registry for application metrics.
func ProvidePrometheusRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideBucketRegistry builds the global and per-route token buckets.
func ProvideBucketRegistry(cfg *config.Config) (*ratelimit.Registry, error) {
	buckets := cfg.Buckets()
	specs := make([]ratelimit.BucketSpec, 0, len(buckets))
	for _, b := range buckets {
		specs = append(specs, ratelimit.BucketSpec{
			Name:         b.Name,
			Capacity:     b.Capacity,
			RefillRate:   b.RefillRate,
			RefillPeriod: b.RefillPeriod,
		})
	}
	reg, err := ratelimit.NewRegistry(specs)
	if err != nil {
		return nil, fmt.Errorf("rate limit buckets: %w", err)
	}
	return reg, nil
}

// ProvideCache returns Redis (optionally fronted by memory) when enabled,
// otherwise an in-process TTL cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.BytesCache, error) {
	if !cfg.Redis.Enabled {
		return cache.NewTTLCache(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))
	if cfg.Cache.MemoryTTL > 0 {
		return cache.NewLayeredCache(rc, cfg.Cache.MemoryTTL), nil
	}
	return rc, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithMetricsRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes admission events to Kafka when a producer exists.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NoopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideAdmissionRecorder creates the recorder shared by every limiter.
func ProvideAdmissionRecorder(pub repository.EventPublisher, m repository.Metrics) *usecase.AdmissionRecorder {
	return usecase.NewAdmissionRecorder(pub, m)
}

// ProvideLimiters maps each configured bucket to its admission policy.
func ProvideLimiters(cfg *config.Config, reg *ratelimit.Registry, rec *usecase.AdmissionRecorder, l *applogger.Logger) *mid.Limiters {
	policies := make(map[string]mid.Policy)
	for _, b := range cfg.Buckets() {
		policies[b.Name] = mid.Policy{Mode: b.Mode, WaitTimeout: b.WaitTimeout}
	}
	return mid.NewLimiters(reg, policies, rec, l)
}

// ProvideUpstream creates the client for the protected upstream API.
func ProvideUpstream(cfg *config.Config) repository.Upstream {
	return upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey,
		xhttp.NewClient(xhttp.WithTimeout(cfg.Upstream.Timeout)))
}

// ProvideQuoteUseCase creates the cached quote use case.
func ProvideQuoteUseCase(up repository.Upstream, c cache.BytesCache, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.QuoteUseCase {
	return usecase.NewQuoteUseCase(up, c, cfg.Cache.TTL, m, l)
}

// ProvideHTTPHandler combines the API handlers.
func ProvideHTTPHandler(uc *usecase.QuoteUseCase, limiters *mid.Limiters, reg *ratelimit.Registry, l *applogger.Logger) xhttp.Handler {
	return api.Router{
		api.NewQuoteHandler(uc, limiters, l),
		api.NewLimitsHandler(reg, l),
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger, promReg *prometheus.Registry) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetrics(metricsPath, promReg),
	)
}

// ProvideApp creates the application. With Kafka enabled, error logs are
// also aggregated and shipped to the logs topic.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	rec *usecase.AdmissionRecorder,
	pub repository.EventPublisher,
	c cache.BytesCache,
	producer *pkgkafka.Producer,
) *server.App {
	if producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.LogCollector.Interval,
			CountThreshold: cfg.Kafka.LogCollector.CountThreshold,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, l, srv, rec, pub, c)
}
