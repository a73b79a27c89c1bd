// Package users はユーザーレコードの保存と検索を提供します。
//
// このパッケージは入力検証を行いません。呼び出し側で validate パッケージを
// 通した値だけを渡してください。
package users

import "time"

// User は保存されたアカウントです。PasswordHash 以外にパスワードは保持しません。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
