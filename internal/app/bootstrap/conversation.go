package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/wa-navigator/internal/config"
	"github.com/wolfman30/wa-navigator/internal/conversation"
	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// BuildSessionStore picks Postgres when a pool is available and memory otherwise.
func BuildSessionStore(pool *pgxpool.Pool, logger *logging.Logger) conversation.SessionStore {
	if pool == nil {
		if logger != nil {
			logger.Warn("session store: using in-memory store; sessions are lost on restart")
		}
		return conversation.NewMemorySessionStore()
	}
	return conversation.NewPostgresSessionStore(pool)
}

// BuildLocker serializes per-phone work across instances when Redis is
// configured and within this process otherwise.
func BuildLocker(cfg *appconfig.Config, redisClient *redis.Client) conversation.Locker {
	if redisClient == nil {
		return conversation.NewKeyedLocker()
	}
	ttl := conversation.DefaultLockTTL
	if cfg != nil && cfg.SessionLockTTL > 0 {
		ttl = cfg.SessionLockTTL
	}
	return conversation.NewRedisLocker(redisClient, ttl)
}

// BuildEngine wires the navigation state machine.
func BuildEngine(store conversation.SessionStore, locker conversation.Locker, m *metrics.ChatbotMetrics, logger *logging.Logger) *conversation.Engine {
	opts := []conversation.EngineOption{
		conversation.WithLocker(locker),
		conversation.WithLogger(logger),
	}
	if m != nil {
		opts = append(opts, conversation.WithObserver(m))
	}
	return conversation.NewEngine(store, opts...)
}
