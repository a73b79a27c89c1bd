package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository はメモリ上で動く Repository 実装です（テスト用）。
type MemoryRepository struct {
	mu      sync.RWMutex
	records []User
	lookups []string
}

// NewMemoryRepository は空の MemoryRepository を作成します。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, username)

	var found []User
	for _, u := range r.records {
		if u.Username == username {
			found = append(found, u)
		}
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		u := found[0]
		return &u, nil
	default:
		return nil, ErrAmbiguous
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, user *User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.records {
		if u.Username == user.Username {
			return ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.records = append(r.records, *user)
	return nil
}

// Seed は重複チェックを通さずにレコードを追加します（曖昧な検索結果の再現用）。
func (r *MemoryRepository) Seed(users ...User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, users...)
}

// Lookups はこれまで FindByUsername に渡された値を返します。
func (r *MemoryRepository) Lookups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.lookups))
	copy(out, r.lookups)
	return out
}

// Users は保存されているレコードのコピーを返します。
func (r *MemoryRepository) Users() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, len(r.records))
	copy(out, r.records)
	return out
}
