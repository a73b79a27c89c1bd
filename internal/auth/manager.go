// Package auth はアカウント作成・ログイン・ログアウトと、セッション状態による
// ページの出し分けを提供します。
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/logging"
	"github.com/yourusername/authdemo/internal/users"
	"github.com/yourusername/authdemo/internal/validate"
	"github.com/yourusername/authdemo/internal/web"
)

const (
	// InvalidCredentialsMessage は検証失敗・ユーザー不在・パスワード不一致で共通のメッセージです。
	InvalidCredentialsMessage = "Invalid username/password combination."
	// TooManyAttemptsMessage はログイン試行がロックされている間のメッセージです。
	TooManyAttemptsMessage = "Too many login attempts. Please try again later."
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

// PasswordHasher はパスワードのハッシュ化と照合を行います。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hashed string) bool
}

// Options は Manager の任意設定です。
type Options struct {
	SecureCookie bool             // Cookie に Secure 属性を付けるか
	Limiter      AttemptLimiter   // nil の場合は試行回数を制限しない
	Now          func() time.Time // テスト用
	PickImage    func(n int) int  // メンバーページの画像選択（テスト用）
}

// ユーザーが存在しない場合にも照合を1回行うためのダミーパスワード
const dummyPassword = "authdemo-dummy-password"

// Manager は認証処理をまとめた構造体です。
type Manager struct {
	users     users.Repository
	hasher    PasswordHasher
	store     sessions.Store
	limiter   AttemptLimiter
	logger    logging.Logger
	cookie    sessions.Options
	dummyHash string
	now       func() time.Time
	pickImage func(n int) int
}

// NewManager は認証マネージャーを作成し、store に Cookie 属性を設定します。
// store は sessions.Sessions ミドルウェアに渡したものと同じである必要があります。
func NewManager(repo users.Repository, hasher PasswordHasher, store sessions.Store, logger logging.Logger, opts Options) *Manager {
	m := &Manager{
		users:   repo,
		hasher:  hasher,
		store:   store,
		limiter: opts.Limiter,
		logger:  logger,
		cookie: sessions.Options{
			Path:     "/",
			MaxAge:   SessionMaxAgeSeconds(),
			HttpOnly: true,
			Secure:   opts.SecureCookie,
			SameSite: http.SameSiteStrictMode,
		},
		now:       opts.Now,
		pickImage: opts.PickImage,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.pickImage == nil {
		m.pickImage = randomIndex
	}
	if hashed, err := hasher.Hash(dummyPassword); err == nil {
		m.dummyHash = hashed
	}
	store.Options(m.cookie)
	return m
}

// CookieOptions はセッションストアに設定する Cookie 属性を返します。
func (m *Manager) CookieOptions() sessions.Options {
	return m.cookie
}

func (m *Manager) session(c *gin.Context) *Session {
	return newSession(c, m.store, m.cookie)
}

// LoginForm は GET /login のハンドラーです。
// セッションのログインエラーは表示と同時に削除します。
func (m *Manager) LoginForm(c *gin.Context) {
	msg, err := m.session(c).TakeLoginError()
	if err != nil {
		web.Abort(c, err)
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{
		"LoginError": msg,
	})
}

// Login は POST /loggingin のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	ctx := c.Request.Context()
	session := m.session(c)
	if err := session.Err(); err != nil {
		web.Abort(c, err)
		return
	}
	ip := c.ClientIP()

	if m.limiter != nil {
		retryAfter, err := m.limiter.Check(ctx, ip)
		if err != nil {
			web.Abort(c, err)
			return
		}
		if retryAfter > 0 {
			m.logger.Warn(ctx, "login locked", "client_ip", ip, "retry_after", retryAfter.String())
			m.redirectWithLoginError(c, session, TooManyAttemptsMessage)
			return
		}
	}

	if err := c.Request.ParseForm(); err != nil {
		m.loginFailed(c, session, ip, "unreadable_form", "")
		return
	}
	form := c.Request.PostForm

	username, err := validate.LookupUsername(form, "username")
	if err != nil {
		m.logger.Info(ctx, "login input rejected", "error", err.Error())
		m.loginFailed(c, session, ip, "invalid_input", "")
		return
	}
	// パスワードは検索には使わないため、スカラーでなければ空として照合させる
	password, _ := validate.Scalar(form, "password")

	user, err := m.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, users.ErrNotFound):
		// 応答時間で存在有無が分からないよう、不一致と同じだけ照合する
		m.hasher.Verify(password, m.dummyHash)
		m.loginFailed(c, session, ip, "user_not_found", username)
		return
	case err != nil:
		web.Abort(c, err)
		return
	}

	if !m.hasher.Verify(password, user.PasswordHash) {
		m.loginFailed(c, session, ip, "password_mismatch", username)
		return
	}

	if m.limiter != nil {
		if err := m.limiter.Reset(ctx, ip); err != nil {
			web.Abort(c, err)
			return
		}
	}

	if err := session.Authenticate(user.Username, m.now()); err != nil {
		web.Abort(c, err)
		return
	}

	m.logger.Info(ctx, "login succeeded", "username", user.Username, "user_id", user.ID)
	c.Redirect(http.StatusFound, "/loggedin")
}

// Logout は GET /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := m.session(c)
	state, err := session.State(m.now())
	if err != nil {
		web.Abort(c, err)
		return
	}
	if err := session.Destroy(); err != nil {
		web.Abort(c, err)
		return
	}
	if state.Authenticated {
		m.logger.Info(c.Request.Context(), "logout", "username", state.Username)
	}
	c.Redirect(http.StatusFound, "/")
}

// loginFailed は失敗理由を運用ログにだけ残し、利用者には共通メッセージを返します。
func (m *Manager) loginFailed(c *gin.Context, session *Session, ip, reason, username string) {
	ctx := c.Request.Context()

	args := []any{"reason", reason, "client_ip", ip}
	if username != "" {
		args = append(args, "username", username)
	}

	if m.limiter != nil {
		remaining, err := m.limiter.RecordFailure(ctx, ip)
		if err != nil {
			web.Abort(c, err)
			return
		}
		args = append(args, "remaining_attempts", remaining)
	}

	m.logger.Info(ctx, "login failed", args...)
	m.redirectWithLoginError(c, session, InvalidCredentialsMessage)
}

func (m *Manager) redirectWithLoginError(c *gin.Context, session *Session, msg string) {
	if err := session.SetLoginError(msg); err != nil {
		web.Abort(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/login")
}
