// Package logging はプロジェクト全体で使う構造化ロガーのインターフェースを定義します。
package logging

import "context"

// Logger はコンテキスト付きの構造化ロガーです。
// 可変長引数はキーと値のペアとして扱います。
//
//	log.Info(ctx, "starting server", "addr", addr, "mode", mode)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With は常に指定のキー/値を付与する子ロガーを返します。
	With(args ...any) Logger
}
