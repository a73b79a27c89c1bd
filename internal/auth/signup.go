package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/users"
	"github.com/yourusername/authdemo/internal/validate"
	"github.com/yourusername/authdemo/internal/web"
)

var signupErrorMessages = map[string]string{
	"1":     "Invalid input. Please check username, email, and password requirements.",
	"taken": "That username is already taken. Please choose another one.",
}

// SignupForm は GET /createUser のハンドラーです。
func (m *Manager) SignupForm(c *gin.Context) {
	c.HTML(http.StatusOK, "signup.html", gin.H{
		"Error": signupErrorMessages[c.Query("error")],
	})
}

// Signup は POST /submitUser のハンドラーです。
// アカウント作成後もログイン状態にはしません。
func (m *Manager) Signup(c *gin.Context) {
	ctx := c.Request.Context()

	if err := c.Request.ParseForm(); err != nil {
		c.Redirect(http.StatusFound, "/createUser?error=1")
		return
	}

	form, err := validate.Signup(c.Request.PostForm)
	if err != nil {
		m.logger.Info(ctx, "signup rejected", "error", err.Error())
		c.Redirect(http.StatusFound, "/createUser?error=1")
		return
	}

	hashed, err := m.hasher.Hash(form.Password)
	if err != nil {
		web.Abort(c, err)
		return
	}

	user := &users.User{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: hashed,
	}
	if err := m.users.Insert(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicate) {
			m.logger.Info(ctx, "signup rejected", "reason", "duplicate_username", "username", form.Username)
			c.Redirect(http.StatusFound, "/createUser?error=taken")
			return
		}
		web.Abort(c, err)
		return
	}

	m.logger.Info(ctx, "user created", "username", user.Username, "user_id", user.ID)
	c.Redirect(http.StatusFound, "/userCreated")
}

// SignupDone は GET /userCreated のハンドラーです。
func (m *Manager) SignupDone(c *gin.Context) {
	c.HTML(http.StatusOK, "signup_done.html", nil)
}
