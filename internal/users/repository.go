package users

import (
	"context"
	"errors"
)

var (
	// ErrNotFound は該当ユーザーが0件の場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrAmbiguous は同じユーザー名で2件以上見つかった場合に返されます。
	ErrAmbiguous = errors.New("more than one user matches")
	// ErrDuplicate はユーザー名が既に使われている場合に返されます。
	ErrDuplicate = errors.New("username already exists")
)

// Repository はユーザーストアの操作です。
type Repository interface {
	// FindByUsername は0件なら ErrNotFound、複数件なら ErrAmbiguous を返します。
	FindByUsername(ctx context.Context, username string) (*User, error)
	// Insert はユーザーを作成します。ID と CreatedAt が空なら埋めます。
	Insert(ctx context.Context, user *User) error
}
