package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/authdemo/internal/logging"
)

const (
	requestIDHeader = "X-Request-Id"

	// ContextRequestIDKey はリクエストIDを gin.Context に保存するキーです。
	ContextRequestIDKey = "web.request_id"
)

// Abort はストア障害などの回復しないエラーを記録して処理を中断します。
// レスポンスは ErrorPages が生成します。
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// RequestID はリクエストIDを採番し、レスポンスヘッダーにも返します。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger はリクエストごとにアクセスログを出力します。
// クエリ文字列は攻撃入力を含みうるため記録しません。
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ContextRequestIDKey),
		)
	}
}

// ErrorPages は Abort されたリクエストを汎用の500ページに変換します。
func ErrorPages(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		logger.Error(c.Request.Context(), "request failed",
			"path", c.Request.URL.Path,
			"error", err,
			"request_id", c.GetString(ContextRequestIDKey),
		)
		if c.Writer.Written() {
			return
		}
		c.HTML(http.StatusInternalServerError, "error.html", nil)
	}
}

// NotFound はどのルートにも一致しないリクエストのハンドラーです。
func NotFound(c *gin.Context) {
	c.String(http.StatusNotFound, "Page not found - 404")
}
