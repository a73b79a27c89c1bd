package mailing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const subscriptionKeyPrefix = "mailing:subscription:"

// ErrNotFound は購読レコードが存在しない場合のエラーです。
var ErrNotFound = errors.New("subscription not found")

// Store は購読状態を Redis に保存します。
type Store struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewStore は Store を作成します。
func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{
		rdb: rdb,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get は購読情報を取得します。
func (s *Store) Get(ctx context.Context, email string) (*Subscription, error) {
	data, err := s.rdb.Get(ctx, subscriptionKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Request は登録依頼を記録します。
// 既に登録済みのアドレスは状態を変えずに依頼回数だけ増やします。
func (s *Store) Request(ctx context.Context, email string) (*Subscription, error) {
	var result Subscription
	err := s.update(ctx, email, func(sub *Subscription, exists bool) {
		now := s.now()
		if !exists {
			sub.Email = normalize(email)
			sub.Status = StatusPending
			sub.CreatedAt = now
		}
		sub.Requests++
		sub.UpdatedAt = now
		result = *sub
	}, true)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkSubscribed は購読を確定します。
func (s *Store) MarkSubscribed(ctx context.Context, email string) error {
	return s.update(ctx, email, func(sub *Subscription, _ bool) {
		sub.Status = StatusSubscribed
		sub.UpdatedAt = s.now()
	}, false)
}

func (s *Store) update(ctx context.Context, email string, mutate func(*Subscription, bool), create bool) error {
	key := subscriptionKey(email)
	for {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var sub Subscription
			exists := true
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				if !create {
					return ErrNotFound
				}
				exists = false
			case err != nil:
				return err
			default:
				if err := json.Unmarshal(data, &sub); err != nil {
					return err
				}
			}

			mutate(&sub, exists)
			payload, err := json.Marshal(&sub)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("update subscription: %w", err)
		}
		return err
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func subscriptionKey(email string) string {
	return subscriptionKeyPrefix + normalize(email)
}
