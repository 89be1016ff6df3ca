// Package commands holds the knowtextd cobra commands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloo-solutions/knowtext/internal/cache"
	"github.com/cloo-solutions/knowtext/internal/config"
	"github.com/cloo-solutions/knowtext/internal/database"
	"github.com/cloo-solutions/knowtext/internal/logger"
	"github.com/cloo-solutions/knowtext/internal/repository"
	"github.com/cloo-solutions/knowtext/internal/service"
	"github.com/cloo-solutions/knowtext/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runtime bundles what every command needs after startup.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	pool    *pgxpool.Pool
	closers []func()
}

func loadRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &runtime{cfg: cfg, log: log}
	rt.closers = append(rt.closers, log.Sync)

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)
	log.Debug("connected to database", "max_conns", cfg.DBMaxConns)

	return rt, nil
}

// Close releases resources in reverse acquisition order
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// newService wires the service with the optional cache and object store.
// Unavailable optional backends are logged and skipped.
func (rt *runtime) newService(ctx context.Context) (*service.KnowledgeTextService, error) {
	opts := []service.KnowledgeTextServiceOption{
		service.WithLogger(rt.log),
	}

	if rt.cfg.HasRedis() {
		client, err := cache.NewRedisClient(ctx, rt.cfg.RedisAddr)
		if err != nil {
			rt.log.Warn("tree cache disabled", "error", err)
		} else {
			rt.closers = append(rt.closers, func() { _ = client.Close() })
			opts = append(opts, service.WithTreeCache(cache.NewTreeCache(client, rt.cfg.TreeCacheTTL)))
			rt.log.Info("tree cache enabled", "ttl", rt.cfg.TreeCacheTTL.String())
		}
	}

	if rt.cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, rt.cfg.S3Config())
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		rt.log.Info("export bucket ready", "bucket", rt.cfg.S3Bucket)
		opts = append(opts, service.WithSnapshotStore(s3Client))
	}

	repo := repository.NewKnowledgeTextRepository(rt.pool)
	return service.NewKnowledgeTextService(repo, repository.NewTxRunner(rt.pool), opts...), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
