// Package demo は認証とは無関係なデモ用ページ（インジェクション検証、
// 未エスケープ出力、メーリングリスト）を提供します。
package demo

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/logging"
	"github.com/yourusername/authdemo/internal/users"
	"github.com/yourusername/authdemo/internal/validate"
	"github.com/yourusername/authdemo/internal/web"
)

// Subscriber はメーリングリストへの登録を受け付けます。
type Subscriber interface {
	Subscribe(ctx context.Context, email string) error
}

// Handlers はデモページのハンドラーです。
type Handlers struct {
	users      users.Repository
	subscriber Subscriber
	logger     logging.Logger
}

// New は Handlers を作成します。
func New(repo users.Repository, subscriber Subscriber, logger logging.Logger) *Handlers {
	return &Handlers{
		users:      repo,
		subscriber: subscriber,
		logger:     logger,
	}
}

// NoSQLInjection は GET /nosql-injection のハンドラーです。
// スカラーでない値や形の合わない値は検索せずに検知メッセージを返します。
func (h *Handlers) NoSQLInjection(c *gin.Context) {
	ctx := c.Request.Context()

	username, err := validate.LookupUsername(c.Request.URL.Query(), "user")
	if err != nil {
		if validate.IsMissing(err) {
			c.HTML(http.StatusOK, "nosql.html", gin.H{"Usage": true})
			return
		}
		h.logger.Warn(ctx, "nosql injection detected", "error", err.Error(), "client_ip", c.ClientIP())
		c.HTML(http.StatusOK, "nosql.html", gin.H{"Detected": true})
		return
	}

	user, err := h.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, users.ErrNotFound):
		h.logger.Info(ctx, "nosql demo lookup", "username", username, "found", false)
	case err != nil:
		web.Abort(c, err)
		return
	default:
		h.logger.Info(ctx, "nosql demo lookup", "username", username, "found", true, "user_id", user.ID)
	}

	c.HTML(http.StatusOK, "nosql.html", gin.H{"Username": username})
}

// About は GET /about のハンドラーです。
// 反射型 XSS のデモとして color をエスケープせずに埋め込みます。
// テンプレートを通さない出力はこのハンドラーだけです。
func (h *Handlers) About(c *gin.Context) {
	color := c.Query("color")
	body := "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>About</title></head><body>" +
		"<h1 style='color:" + color + ";'>Patrick Guichon</h1>" +
		"<p>This page reflects the color parameter without escaping.</p>" +
		"</body></html>"
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

// Contact は GET /contact のハンドラーです。
func (h *Handlers) Contact(c *gin.Context) {
	c.HTML(http.StatusOK, "contact.html", gin.H{"Missing": c.Query("missing") != ""})
}

// SubmitEmail は POST /submitEmail のハンドラーです。
func (h *Handlers) SubmitEmail(c *gin.Context) {
	ctx := c.Request.Context()

	if err := c.Request.ParseForm(); err != nil {
		c.Redirect(http.StatusFound, "/contact?missing=1")
		return
	}
	email, err := validate.SubscribeEmail(c.Request.PostForm)
	if err != nil {
		h.logger.Info(ctx, "subscription rejected", "error", err.Error())
		c.Redirect(http.StatusFound, "/contact?missing=1")
		return
	}

	if err := h.subscriber.Subscribe(ctx, email); err != nil {
		web.Abort(c, err)
		return
	}
	c.HTML(http.StatusOK, "subscribed.html", gin.H{"Email": email})
}
