package repositories

import (
	"camcast/internal/core/ports"
	"camcast/internal/infrastructure/repositories/memory"
	redisrepo "camcast/internal/infrastructure/repositories/redis"
	"camcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the broadcast store, preferring redis when
// configured and reachable and falling back to process memory otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to redis, falling back to memory store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using redis broadcast store")
		}
	}

	if !factory.useRedis {
		logger.Info("using in-memory broadcast store")
	}
	return factory, nil
}

// CreateBroadcastRepository creates the broadcast record store.
func (f *RepositoryFactory) CreateBroadcastRepository() ports.BroadcastRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisBroadcastRepository(f.redisClient, f.logger)
	}
	return memory.NewMemoryBroadcastRepository()
}

// RedisClient exposes the underlying client for health checks. Nil when
// the memory store is in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// Close closes the redis connection if one is held.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}
