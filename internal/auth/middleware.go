package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/web"
)

// RequireLogin は未認証のリクエストを /login へリダイレクトするミドルウェアを返します。
// リダイレクト時はページの内容を一切描画しません。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := m.session(c).State(m.now())
		if err != nil {
			web.Abort(c, err)
			return
		}
		if !state.Authenticated {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set(ContextUserKey, state.Username)
		c.Next()
	}
}

// CurrentUser は RequireLogin が設定したユーザー名を返します。
func CurrentUser(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}
