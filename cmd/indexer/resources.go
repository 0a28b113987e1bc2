package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventScope/internal/alert"
	"eventScope/internal/chain"
	"eventScope/internal/checkpoint"
	"eventScope/internal/config"
	"eventScope/internal/indexer"
	"eventScope/internal/model"
	"eventScope/internal/provider"
	"eventScope/internal/registry"
	"eventScope/internal/storage"
	"eventScope/internal/storage/postgres"
)

// resources opens backends on demand and closes them in reverse order.
type resources struct {
	logger  *zap.Logger
	pg      *postgres.Store
	objects *storage.ObjectStore
	closers []func()
}

func newResources(logger *zap.Logger) *resources {
	return &resources{logger: logger}
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (r *resources) postgres(ctx context.Context, dsn string) (*postgres.Store, error) {
	if r.pg != nil {
		return r.pg, nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	r.pg = store
	r.closers = append(r.closers, store.Close)
	return store, nil
}

func (r *resources) objectStore(ctx context.Context, cfg config.ObjectConfig) (*storage.ObjectStore, error) {
	if r.objects != nil {
		return r.objects, nil
	}
	store, err := storage.NewObjectStore(ctx, storage.ObjectConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		BasePath:  cfg.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	r.objects = store
	return store, nil
}

func (r *resources) contracts(ctx context.Context, cfg config.Config) ([]model.ContractConfig, error) {
	if cfg.ContractsSource == config.BackendPostgres {
		pg, err := r.postgres(ctx, cfg.Checkpoint.PGDSN)
		if err != nil {
			return nil, err
		}
		contracts, err := pg.LoadContracts(ctx)
		if err != nil {
			return nil, err
		}
		if err := config.ValidateContracts(contracts); err != nil {
			return nil, err
		}
		return contracts, nil
	}
	return config.LoadContracts(cfg.Contracts)
}

func (r *resources) source(ctx context.Context, cfg config.Config) (provider.Source, error) {
	switch cfg.Provider {
	case config.ProviderRPC:
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		return client, nil
	default:
		return provider.NewEtherscanSource(provider.EtherscanConfig{
			BaseURL: cfg.EtherscanURL,
			APIKey:  cfg.EtherscanAPIKey,
			Timeout: cfg.RequestTimeout,
		}), nil
	}
}

func (r *resources) fetcher(ctx context.Context, cfg config.Config) (*provider.Client, error) {
	source, err := r.source(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return provider.NewClient(
		source,
		provider.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, source.Name()),
		provider.Options{
			PageSize: cfg.PageSize,
			Retry: provider.RetryPolicy{
				MaxAttempts: cfg.MaxAttempts,
				BaseDelay:   cfg.RetryBackoff,
				MaxDelay:    cfg.MaxBackoff,
				Jitter:      cfg.RetryJitter,
			},
		},
		r.logger,
	), nil
}

func (r *resources) checkpointStore(ctx context.Context, cfg config.CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return checkpoint.NewMemoryStore(), nil
	case config.BackendPostgres:
		return r.postgres(ctx, cfg.PGDSN)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		r.closers = append(r.closers, func() { client.Close() })
		return checkpoint.NewRedisStore(client, cfg.Redis.Prefix), nil
	default:
		return checkpoint.NewFileStore(cfg.Path), nil
	}
}

func (r *resources) blobs(ctx context.Context, cfg config.Config) (storage.BlobWriter, error) {
	if cfg.OutStore == config.StoreS3 {
		return r.objectStore(ctx, cfg.Object)
	}
	return storage.LocalBlobs{Dir: cfg.Out}, nil
}

func (r *resources) sink(ctx context.Context, cfg config.Config) (storage.Sink, error) {
	var sinks []storage.Sink
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkPostgres:
			pg, err := r.postgres(ctx, cfg.Checkpoint.PGDSN)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, pg)
		case config.SinkArrow, config.SinkJSONL:
			blobs, err := r.blobs(ctx, cfg)
			if err != nil {
				return nil, err
			}
			if name == config.SinkArrow {
				sinks = append(sinks, storage.NewArrowStorage(blobs))
			} else {
				sinks = append(sinks, storage.NewJsonlStorage(blobs))
			}
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return storage.Tee(sinks...), nil
}

// abiSource resolves file references against abiDir, or the manifest
// directory when abiDir is empty, and s3:// references through the object
// store when one is configured.
func (r *resources) abiSource(ctx context.Context, abiDir, manifest string, objects config.ObjectConfig) (registry.Source, error) {
	if abiDir == "" && manifest != "" {
		abiDir = filepath.Dir(manifest)
	}
	src := registry.MultiSource{Files: registry.FileSource{BaseDir: abiDir}}
	if objects.Enabled() {
		store, err := r.objectStore(ctx, objects)
		if err != nil {
			return nil, err
		}
		src.Objects = registry.ObjectSource{Store: store}
	}
	return src, nil
}

func (r *resources) alerter(cfg config.Config) (alert.Alerter, error) {
	channels := []alert.Alerter{alert.NewLogAlerter(r.logger)}
	if cfg.NATSURL != "" {
		natsAlerter, err := alert.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func() {
			if err := natsAlerter.Close(); err != nil {
				r.logger.Warn("close nats", zap.Error(err))
			}
		})
		channels = append(channels, natsAlerter)
	}
	return alert.NewMultiAlerter(cfg.AlertCooldown, r.logger, channels...), nil
}

var _ indexer.Fetcher = (*provider.Client)(nil)
