package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/cyp0633/libguestshare/server/storage"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "guestshare:"

// RedisIssuer stores sessions in redis as JSON with a TTL. It counts
// issuance per guest in a one minute window and caps live sessions per guest.
type RedisIssuer struct {
	client        redis.UniversalClient
	ttl           time.Duration
	maxPerGuest   int64
	ratePerMinute int64
	now           func() time.Time
	logger        *slog.Logger
}

// RedisConfig configures a RedisIssuer.
type RedisConfig struct {
	TTL time.Duration
	// MaxPerGuest caps live sessions per guest. Zero means unlimited.
	MaxPerGuest int
	// RatePerMinute caps issuance per guest. Zero means unlimited.
	RatePerMinute int
	Logger        *slog.Logger
}

// NewRedisIssuer creates an Issuer backed by client.
func NewRedisIssuer(client redis.UniversalClient, cfg RedisConfig) (*RedisIssuer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RedisIssuer{
		client:        client,
		ttl:           cfg.TTL,
		maxPerGuest:   int64(cfg.MaxPerGuest),
		ratePerMinute: int64(cfg.RatePerMinute),
		now:           time.Now,
		logger:        logger,
	}, nil
}

func sessionKey(id string) string {
	return redisKeyPrefix + "session:" + id
}

func guestSessionsKey(contextID, userID int) string {
	return redisKeyPrefix + "guest-sessions:" + guestKey(contextID, userID)
}

func rateKey(contextID, userID int, now time.Time) string {
	return fmt.Sprintf("%srate:%s:%d", redisKeyPrefix, guestKey(contextID, userID), now.Unix()/60)
}

// Issue implements Issuer
func (r *RedisIssuer) Issue(ctx context.Context, req Request, c *storage.Context, u *storage.User) (*Session, error) {
	now := r.now()

	if r.ratePerMinute > 0 {
		key := rateKey(c.ID, u.ID, now)
		var incr *redis.IntCmd
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, time.Minute)
			return nil
		})
		if err != nil {
			return nil, apperror.New(apperror.ErrServiceUnavailable, "session store unavailable", err)
		}
		if incr.Val() > r.ratePerMinute {
			r.logger.Warn("session issuance rate limited",
				"context_id", c.ID,
				"user_id", u.ID)
			return nil, apperror.New(apperror.ErrRateLimited,
				fmt.Sprintf("too many sessions requested for guest %d, try again later", u.ID), nil)
		}
	}

	setKey := guestSessionsKey(c.ID, u.ID)
	if r.maxPerGuest > 0 {
		live, err := r.liveSessions(ctx, setKey)
		if err != nil {
			return nil, apperror.New(apperror.ErrServiceUnavailable, "session store unavailable", err)
		}
		if live >= r.maxPerGuest {
			r.logger.Warn("guest session limit reached, declining",
				"context_id", c.ID,
				"user_id", u.ID,
				"live", live)
			return nil, nil
		}
	}

	s := newSession(req, c, u, now)
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.ID), payload, r.ttl)
		pipe.SAdd(ctx, setKey, s.ID)
		pipe.Expire(ctx, setKey, r.ttl)
		return nil
	})
	if err != nil {
		return nil, apperror.New(apperror.ErrServiceUnavailable, "session store unavailable", err)
	}

	r.logger.Info("session issued",
		"session_id", s.ID,
		"context_id", c.ID,
		"user_id", u.ID)
	return s, nil
}

// liveSessions counts the guest's sessions that have not expired and drops
// stale ids from the set.
func (r *RedisIssuer) liveSessions(ctx context.Context, setKey string) (int64, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}
	var live int64
	for _, id := range ids {
		n, err := r.client.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			r.client.SRem(ctx, setKey, id)
			continue
		}
		live++
	}
	return live, nil
}

// Get loads a session by id.
func (r *RedisIssuer) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.New(apperror.ErrNotFound, "session not found", nil)
	} else if err != nil {
		return nil, apperror.New(apperror.ErrServiceUnavailable, "session store unavailable", err)
	}
	s := &Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}
