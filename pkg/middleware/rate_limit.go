package middleware

import (
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const rateLimitPrefix = "orgchart:limiter"

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	// Honour X-Forwarded-For / X-Real-IP when keying clients.
	TrustForwardHeader bool
}

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// NewRedisStore accepts either a redis:// URL or a bare host:port.
func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	store, err := sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: rateLimitPrefix,
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "create redis limiter store")
	}
	return store, nil
}

// RateLimit limits requests per client IP. Rejected requests get 429 with the
// X-RateLimit-* headers set by the limiter.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	period := cfg.Period
	if period <= 0 {
		period = time.Second
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	rate := limiter.Rate{Period: period, Limit: int64(cfg.RequestsPerPeriod)}
	instance := limiter.New(store, rate, limiter.WithTrustForwardHeader(cfg.TrustForwardHeader))
	return mhttp.NewMiddleware(instance).Handler
}
