// Package locks — распределённые блокировки ячеек и партий через Redis.
// Нужны, когда сервис запущен в нескольких репликах и хочется снять нагрузку
// с построчных блокировок Postgres; корректность обеспечивают транзакции.
package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/Spok95/micron-tracking/internal/tracking"
)

const prefix = "micron:lock:"

type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	log    *slog.Logger
}

var _ tracking.Locker = (*Redis)(nil)

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl, log: log}
}

// Connect поднимает клиента и проверяет соединение.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Acquire берёт все ключи по порядку. Если хоть один занят — отпускает
// взятые и возвращает tracking.ErrConcurrencyConflict.
func (r *Redis) Acquire(ctx context.Context, keys ...string) (func(), error) {
	var held []*redislock.Lock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// контекст запроса мог уже закончиться
			if err := held[i].Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.Warn("redis lock release failed", "key", held[i].Key(), "err", err)
			}
		}
	}

	for _, k := range normalize(keys) {
		lock, err := r.client.Obtain(ctx, prefix+k, r.ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("%w: %s is busy", tracking.ErrConcurrencyConflict, k)
		}
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, lock)
	}
	return release, nil
}

// normalize сортирует и убирает повторы, чтобы встречные операции брали ключи в одном порядке.
func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
