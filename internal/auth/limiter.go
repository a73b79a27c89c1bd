package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "login:attempts:"
	lockKeyPrefix    = "login:lock:"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// AttemptLimiter はログイン失敗回数に応じて試行を制限します。
type AttemptLimiter interface {
	// Check はロック中なら残り時間を返します。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// Limiter は Redis に試行回数を保存する AttemptLimiter です。
type Limiter struct {
	rdb redis.UniversalClient
}

// NewLimiter は Limiter を作成します。
func NewLimiter(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb}
}

// Check は key がロック中であれば残り時間を返します。
func (l *Limiter) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.TTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("check login lock: %w", err)
	}
	// キーが無い場合は負の値が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure は失敗を1回記録し、ロックまでの残り回数を返します。
// 上限に達した場合はロックを設定して 0 を返します。
func (l *Limiter) RecordFailure(ctx context.Context, key string) (int, error) {
	countKey := attemptKeyPrefix + key

	// 初回の SET NX で期限付きのカウンタを作り、INCR は期限を保ったまま加算する
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, countKey, 0, loginWindow)
		incr = pipe.Incr(ctx, countKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	count := incr.Val()

	if count >= int64(maxLoginAttempts) {
		_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lockKeyPrefix+key, 1, lockDuration)
			pipe.Del(ctx, countKey)
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("lock login: %w", err)
		}
		return 0, nil
	}

	remaining := maxLoginAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset は成功したログインの後に失敗回数とロックを消去します。
func (l *Limiter) Reset(ctx context.Context, key string) error {
	err := l.rdb.Del(ctx, attemptKeyPrefix+key, lockKeyPrefix+key).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}
