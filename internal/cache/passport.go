// Package cache holds the passport-by-serial lookup cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"warranty/internal/models"
)

// Generation identifies a cache epoch. Every Invalidate starts a new one.
type Generation int64

// NoGeneration is returned when the epoch is unknown; Set ignores it.
const NoGeneration Generation = -1

// PassportCache memoizes passport resolution by full serial number.
// Implementations treat every backend failure as a miss.
//
// Get reports the generation it observed, hit or miss. Callers pass it back
// to Set, which stores the entry only while that generation is current, so a
// value read from the store before an Invalidate never outlives it.
type PassportCache interface {
	Get(ctx context.Context, serial string) (*models.Passport, Generation, bool)
	Set(ctx context.Context, serial string, gen Generation, p *models.Passport)
	// Invalidate drops every cached entry.
	Invalidate(ctx context.Context)
}

// Nop never caches.
type Nop struct{}

func (Nop) Get(context.Context, string) (*models.Passport, Generation, bool) {
	return nil, NoGeneration, false
}
func (Nop) Set(context.Context, string, Generation, *models.Passport) {}
func (Nop) Invalidate(context.Context)                                {}

const (
	genKey    = "warranty:passport:gen"
	keyFormat = "warranty:passport:%d:%s"
)

// Redis stores JSON-encoded passports under a generation-scoped key. Bumping
// the generation orphans all previous entries, which then expire via TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	lg     *zap.SugaredLogger
}

// Dial parses url, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func NewRedis(client *redis.Client, ttl time.Duration, lg *zap.SugaredLogger) *Redis {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return &Redis{client: client, ttl: ttl, lg: lg}
}

// getter is the slice of redis.Cmdable shared by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *Redis) generation(ctx context.Context, cmd getter) (Generation, error) {
	gen, err := cmd.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return Generation(gen), err
}

func (c *Redis) Get(ctx context.Context, serial string) (*models.Passport, Generation, bool) {
	gen, err := c.generation(ctx, c.client)
	if err != nil {
		c.lg.Warnw("passport cache generation", "err", err)
		return nil, NoGeneration, false
	}
	raw, err := c.client.Get(ctx, fmt.Sprintf(keyFormat, gen, serial)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.lg.Warnw("passport cache get", "serial", serial, "err", err)
		}
		return nil, gen, false
	}
	var p models.Passport
	if err := json.Unmarshal(raw, &p); err != nil {
		c.lg.Warnw("passport cache decode", "serial", serial, "err", err)
		return nil, gen, false
	}
	return &p, gen, true
}

// Set writes under gen inside a WATCH on the generation key, so the write is
// dropped when an Invalidate lands first.
func (c *Redis) Set(ctx context.Context, serial string, gen Generation, p *models.Passport) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.generation(ctx, tx)
		if err != nil || cur != gen {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fmt.Sprintf(keyFormat, gen, serial), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		c.lg.Debugw("passport cache set skipped", "serial", serial, "generation", gen)
	case err != nil:
		c.lg.Warnw("passport cache set", "serial", serial, "err", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		c.lg.Errorw("passport cache invalidate", "err", err)
	}
}

func (c *Redis) Close() error {
	return c.client.Close()
}
