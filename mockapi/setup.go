package mockapi

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/config"
)

// FromConfig builds a Server and its backends from cfg. The returned close
// function releases backend connections.
func FromConfig(ctx context.Context, cfg config.MockConfig, logger *log.Logger, reg *prometheus.Registry) (*Server, func(), error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts := []ServerOption{WithServerLogger(logger)}
	closeFn := func() {}

	var storage Storage
	switch cfg.Storage {
	case config.StorageMemory, "":
		storage = NewMemoryStorage()
		opts = append(opts, WithDeduper(NewMemoryDeduper(cfg.DeduperTTL)))
	case config.StorageRedis:
		redisOpts, err := ParseRedisOptions(cfg.RedisConnectionString)
		if err != nil {
			return nil, nil, err
		}
		rc := redis.NewClient(redisOpts)
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		storage = NewRedisStorage(rc)
		opts = append(opts, WithDeduper(NewRedisDeduper(rc, cfg.DeduperTTL)))
		closeFn = func() {
			if err := rc.Close(); err != nil {
				logger.WithError(err).Warn("redis close")
			}
		}
	case config.StorageTables:
		ts, err := NewTableStorage(cfg.StorageConnectionString, cfg.TasksTable)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		if err := ts.EnsureTable(ctx); err != nil {
			return nil, nil, fmt.Errorf("create table %s: %w", cfg.TasksTable, err)
		}
		storage = ts
		opts = append(opts, WithDeduper(NewMemoryDeduper(cfg.DeduperTTL)))
	default:
		return nil, nil, fmt.Errorf("unknown mock storage %q", cfg.Storage)
	}

	switch {
	case cfg.AuthSharedSecret != "":
		opts = append(opts, WithAuth(NewSharedSecretAuth([]byte(cfg.AuthSharedSecret))))
	case cfg.Auth0Domain != "":
		auth, err := NewAuth0(cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		opts = append(opts, WithAuth(auth))
	default:
		logger.Warn("mock API running without authentication")
	}

	logger.WithField("storage", cfg.Storage).Info("mock API configured")
	return NewServer(storage, reg, opts...), closeFn, nil
}
