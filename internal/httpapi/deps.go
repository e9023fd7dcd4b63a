package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"lens_gateway/internal/billing"
	"lens_gateway/internal/config"
	"lens_gateway/internal/gateway"
	"lens_gateway/internal/logging"
	"lens_gateway/internal/metrics"
	"lens_gateway/internal/providers"
	"lens_gateway/internal/storage"
)

// HealthCheck reports whether a backing service is usable
type HealthCheck func(ctx context.Context) error

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Runner     *gateway.Runner
	Billing    billing.Service
	Metrics    metrics.Metrics
	Encryption *storage.Encryption  // nil without ENCRYPTION_KEY
	Executions *logging.RedisBuffer // nil without Redis
	Checks     map[string]HealthCheck
	Production bool

	closers []io.Closer
}

// NewDependencies builds the registry, side-effect sinks and dispatcher
// described by cfg. Close releases whatever was opened.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	d := &Dependencies{
		Billing:    billing.NewNoopService(),
		Metrics:    metrics.NewNoopMetrics(),
		Checks:     make(map[string]HealthCheck),
		Production: cfg.IsProduction(),
	}

	enc, err := storage.NewEncryptionFromSecret(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	d.Encryption = enc

	var prom *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusMetrics()
		d.Metrics = prom
	}

	store, err := d.openRegistry(ctx, cfg, enc)
	if err != nil {
		d.Close()
		return nil, err
	}
	if cs, ok := store.(*storage.CachedStore); ok && prom != nil {
		metrics.RegisterCache(prom.Registry(), "provider", func() metrics.CacheStats {
			s := cs.Stats()
			return metrics.CacheStats{Size: s.Size, Hits: s.Hits, Misses: s.Misses}
		})
	}

	var sink logging.Sink = logging.NewNoopSink()
	if cfg.Redis.Address != "" {
		rc := storage.DefaultRedisConfig()
		rc.Address = cfg.Redis.Address
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize
		rc.MinIdleConns = cfg.Redis.MinIdleConns
		rc.DialTimeout = cfg.Redis.DialTimeout
		rc.ReadTimeout = cfg.Redis.ReadTimeout
		rc.WriteTimeout = cfg.Redis.WriteTimeout

		client, err := storage.NewRedisClient(rc)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		d.closers = append(d.closers, client)
		d.Checks["redis"] = client.Health

		d.Executions = logging.NewRedisBuffer(client.Client(), logging.RedisBufferConfig{
			QueueKey: cfg.ExecutionLog.QueueKey,
			MaxSize:  cfg.ExecutionLog.MaxSize,
		})
		sink = d.Executions
		d.Billing = billing.NewRedisBillingService(client.Client())
	} else {
		log.Info().Msg("REDIS_ADDRESS not set; execution records and spend tracking are disabled")
	}

	adapters := providers.NewTable(providers.NewHTTPClient(cfg.Provider.RequestTimeout))
	d.Runner = &gateway.Runner{
		Store: store,
		Dispatcher: gateway.NewDispatcher(adapters, gateway.Options{
			Sink:    sink,
			Billing: d.Billing,
			Metrics: d.Metrics,
		}),
	}

	return d, nil
}

func (d *Dependencies) openRegistry(ctx context.Context, cfg *config.Config, enc *storage.Encryption) (storage.ProviderStore, error) {
	var store storage.ProviderStore
	var seeded *storage.MemoryStore

	switch {
	case cfg.Database.URL != "":
		db, err := storage.NewDB(storage.DBConfig{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		d.closers = append(d.closers, db)
		d.Checks["database"] = db.Health

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		store = db.NewProviderRepository(enc)
		log.Info().Msg("provider registry: postgres")

	case cfg.Provider.File != "":
		mem, err := storage.LoadMemoryStore(cfg.Provider.File, enc)
		if err != nil {
			return nil, err
		}
		store, seeded = mem, mem
		log.Info().Str("file", cfg.Provider.File).Msg("provider registry: file")

	default:
		store = storage.NewMemoryStore(enc)
		log.Warn().Msg("no DATABASE_URL or PROVIDERS_FILE; provider registry is empty")
	}

	cached := storage.NewCachedStore(store, cfg.Provider.CacheSize, cfg.Provider.CacheTTL)

	if seeded != nil && cfg.Provider.Watch {
		var onReload func()
		if cs, ok := cached.(*storage.CachedStore); ok {
			onReload = cs.Purge
		}
		w, err := storage.WatchMemoryStore(cfg.Provider.File, seeded, enc, onReload)
		if err != nil {
			return nil, fmt.Errorf("failed to watch providers file: %w", err)
		}
		d.closers = append(d.closers, w)
	}

	return cached, nil
}

// Close releases database and Redis connections
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// checkHealth runs every registered check with a shared deadline
func (d *Dependencies) checkHealth(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := make(map[string]string, len(d.Checks))
	for name, check := range d.Checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	return status
}
