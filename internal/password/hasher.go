// Package password はパスワードのハッシュ化と照合を提供します。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は bcrypt のデフォルトコストです。
const DefaultCost = 12

// ErrEmptyPassword は空文字列をハッシュ化しようとした場合に返されます。
var ErrEmptyPassword = errors.New("password is empty")

// Hasher は bcrypt によるハッシュ化と照合を行います。
type Hasher struct {
	cost int
}

// NewHasher は指定コストの Hasher を作成します。
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost は設定されたコストを返します。
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードからソルト付きハッシュを生成します。
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードが保存済みハッシュと一致するかを返します。
// 比較は bcrypt の定数時間比較に任せます。
func (h *Hasher) Verify(plain, hashed string) bool {
	if plain == "" || hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
