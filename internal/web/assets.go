// Package web はHTMLテンプレート・静的ファイル・共通ミドルウェアを提供します。
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Templates は埋め込みテンプレートを読み込みます。
// html/template を使うため、リクエスト由来の値は常にエスケープされます。
func Templates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.html")
}

// MustTemplates は Templates の失敗時に panic します（起動時・テスト用）。
func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// StaticFS は /static で配信するファイルシステムを返します。
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
