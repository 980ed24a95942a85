package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
)

const standingPrefix = "club:standing:"

// RedisConfig is the connection part of the redis config section.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings. The caller owns Close.
func NewRedisClient(cfg RedisConfig, logger *zap.Logger) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr))
	return rdb, nil
}

// StandingCache remembers good-standing answers for ttl. Only positive
// answers are cached, so a member who falls behind is flagged at most ttl
// late and one who pays is never held back by the cache. Redis failures
// fall through to the wrapped Billing.
type StandingCache struct {
	inner  access.Billing
	rdb    *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ access.Billing = (*StandingCache)(nil)

func NewStandingCache(inner access.Billing, rdb *goredis.Client, ttl time.Duration, logger *zap.Logger) *StandingCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StandingCache{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *StandingCache) IsInGoodStanding(ctx context.Context, id facility.PersonID) (bool, error) {
	key := standingPrefix + string(id)

	n, err := c.rdb.Exists(ctx, key).Result()
	switch {
	case err == nil && n > 0:
		return true, nil
	case err != nil && !errors.Is(err, goredis.Nil):
		c.logger.Debug("standing cache read failed", zap.String("person_id", string(id)), zap.Error(err))
	}

	good, err := c.inner.IsInGoodStanding(ctx, id)
	if err != nil {
		return false, err
	}
	if good && c.ttl > 0 {
		if err := c.rdb.Set(ctx, key, "1", c.ttl).Err(); err != nil {
			c.logger.Debug("standing cache write failed", zap.String("person_id", string(id)), zap.Error(err))
		}
	}
	return good, nil
}

// Invalidate drops the cached answer, e.g. after a due is registered.
func (c *StandingCache) Invalidate(ctx context.Context, id facility.PersonID) error {
	return c.rdb.Del(ctx, standingPrefix+string(id)).Err()
}

// CachedRegistry is a Registry whose standing answers go through a
// StandingCache. Every write drops the affected person's cached answer, so
// a due added here is seen by the next scan instead of after the TTL.
type CachedRegistry struct {
	Registry
	cache *StandingCache
}

var _ Registry = (*CachedRegistry)(nil)

func NewCachedRegistry(inner Registry, cache *StandingCache) *CachedRegistry {
	return &CachedRegistry{Registry: inner, cache: cache}
}

func (r *CachedRegistry) IsInGoodStanding(ctx context.Context, id facility.PersonID) (bool, error) {
	return r.cache.IsInGoodStanding(ctx, id)
}

func (r *CachedRegistry) RegisterPerson(ctx context.Context, p facility.Person, codes Codes) error {
	if err := r.Registry.RegisterPerson(ctx, p, codes); err != nil {
		return err
	}
	r.invalidate(ctx, p.ID)
	return nil
}

func (r *CachedRegistry) AddDue(ctx context.Context, personID facility.PersonID, dueDate facility.Date) error {
	if err := r.Registry.AddDue(ctx, personID, dueDate); err != nil {
		return err
	}
	r.invalidate(ctx, personID)
	return nil
}

func (r *CachedRegistry) SettleDues(ctx context.Context, personID facility.PersonID) error {
	if err := r.Registry.SettleDues(ctx, personID); err != nil {
		return err
	}
	r.invalidate(ctx, personID)
	return nil
}

// invalidate never fails the write: the registry is the source of truth and
// the cached entry still expires with its TTL.
func (r *CachedRegistry) invalidate(ctx context.Context, id facility.PersonID) {
	if err := r.cache.Invalidate(ctx, id); err != nil {
		r.cache.logger.Warn("standing cache invalidation failed", zap.String("person_id", string(id)), zap.Error(err))
	}
}
