package auth

import (
	"math/rand/v2"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/web"
)

// メンバーページでランダムに表示する画像（web/static 配下）
var memberImages = []string{"cat1.svg", "cat2.svg", "cat3.svg"}

func randomIndex(n int) int {
	return rand.IntN(n)
}

// Home は GET / のハンドラーです。セッション状態で表示を切り替えます。
func (m *Manager) Home(c *gin.Context) {
	state, err := m.session(c).State(m.now())
	if err != nil {
		web.Abort(c, err)
		return
	}
	c.HTML(http.StatusOK, "home.html", gin.H{
		"Authenticated": state.Authenticated,
		"Username":      state.Username,
	})
}

// LoggedIn は GET /loggedin のハンドラーです（RequireLogin の後に置く）。
func (m *Manager) LoggedIn(c *gin.Context) {
	c.HTML(http.StatusOK, "loggedin.html", gin.H{
		"Username": CurrentUser(c),
	})
}

// Members は GET /members のハンドラーです（RequireLogin の後に置く）。
func (m *Manager) Members(c *gin.Context) {
	image := memberImages[m.pickImage(len(memberImages))]
	c.HTML(http.StatusOK, "members.html", gin.H{
		"Username": CurrentUser(c),
		"Image":    "/static/" + image,
	})
}
