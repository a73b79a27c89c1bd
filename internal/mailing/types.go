// Package mailing はメーリングリスト登録の受付と非同期処理を提供します。
package mailing

import "time"

// Status は購読の状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusSubscribed Status = "subscribed"
)

// Subscription はメールアドレスごとの購読状態です。
type Subscription struct {
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	Requests  int       `json:"requests"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
