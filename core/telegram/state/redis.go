package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maximcoj/teleblog/core/logger"
)

const redisKeyPrefix = "teleblog:session:"

type redisManager struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisManager stores sessions as JSON values that expire after ttl of inactivity.
func NewRedisManager(rdb *redis.Client, ttl time.Duration) Manager {
	return &redisManager{rdb: rdb, ttl: ttl}
}

func (m *redisManager) Backend() string { return "redis" }

func (m *redisManager) Close() error { return m.rdb.Close() }

func sessionKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}

func (m *redisManager) Get(ctx context.Context, userID int64) (Session, error) {
	raw, err := m.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle(), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil || !s.Step.Valid() {
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "fsm.session_discarded",
			slog.Int64("user_id", userID),
			slog.String("backend", "redis"),
		)
		_ = m.rdb.Del(ctx, sessionKey(userID)).Err()
		return Idle(), nil
	}
	return s, nil
}

func (m *redisManager) Set(ctx context.Context, userID int64, s Session) error {
	if s.IsIdle() {
		return m.Clear(ctx, userID)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.rdb.Set(ctx, sessionKey(userID), raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (m *redisManager) Clear(ctx context.Context, userID int64) error {
	if err := m.rdb.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Options selects and configures a Manager.
type Options struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Open returns the configured Manager. An unreachable Redis degrades to memory.
func Open(ctx context.Context, opts Options) Manager {
	if opts.Backend != "redis" {
		return NewMemoryManager()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "fsm.backend",
			slog.String("status", "fail"),
			slog.String("backend", "redis"),
			slog.String("addr", opts.RedisAddr),
			slog.Bool("fallback", true),
			logger.Err(err),
		)
		_ = rdb.Close()
		return NewMemoryManager()
	}
	logger.LogEvent(ctx, logger.FSM, slog.LevelInfo, "fsm.backend",
		slog.String("status", "ok"),
		slog.String("backend", "redis"),
		slog.String("addr", opts.RedisAddr),
	)
	return NewRedisManager(rdb, opts.TTL)
}
