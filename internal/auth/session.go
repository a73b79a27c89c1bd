package auth

import (
	"fmt"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/sessionstore"
)

const (
	SessionCookieName = "authdemo_session"

	sessionKeyAuthenticated = "authenticated"
	sessionKeyUser          = "username"
	sessionKeyIssuedAt      = "issued_at"
	sessionKeyExpiresAt     = "expires_at"
	sessionKeyLoginError    = "login_error"
)

// ログイン成功からの固定有効期間
var sessionLifetime = 24 * time.Hour

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(sessionLifetime.Seconds())
}

// State はセッションから読み取った認証状態です。
type State struct {
	Authenticated bool
	Username      string
	ExpiresAt     time.Time
}

// Session は sessions.Session に対する認証用の操作をまとめたものです。
// ストアからの読み込みに失敗したセッションは、どの操作もそのエラーを返します。
type Session struct {
	s      sessions.Session
	cookie sessions.Options
	err    error
}

// newSession は gin-contrib/sessions のセッションを包みます。
// sessions.Default は Store.Get のエラーを捨てるため、同じリクエストの
// レジストリから Store.Get を呼び直して読み込みエラーを取り出します。
func newSession(c *gin.Context, store sessions.Store, cookie sessions.Options) *Session {
	var readErr error
	if _, err := store.Get(c.Request, SessionCookieName); err != nil {
		readErr = fmt.Errorf("read session: %w", err)
	}
	return &Session{s: sessions.Default(c), cookie: cookie, err: readErr}
}

// Err はセッションの読み込みエラーを返します。
func (s *Session) Err() error {
	return s.err
}

// State は現在の認証状態を返します。
// 期限切れの認証済みセッションは消去して未認証として扱います。
func (s *Session) State(now time.Time) (State, error) {
	if s.err != nil {
		return State{}, s.err
	}
	authenticated, _ := s.s.Get(sessionKeyAuthenticated).(bool)
	user, _ := s.s.Get(sessionKeyUser).(string)
	if !authenticated || user == "" {
		return State{}, nil
	}

	expiresAt := readUnix(s.s.Get(sessionKeyExpiresAt))
	if expiresAt.IsZero() || !now.Before(expiresAt) {
		s.s.Clear()
		if err := s.s.Save(); err != nil {
			return State{}, err
		}
		return State{}, nil
	}

	return State{Authenticated: true, Username: user, ExpiresAt: expiresAt}, nil
}

// Authenticate はログイン成功時にセッションを認証済みにします。
// 有効期限はストアの既定値に頼らず、ここで明示的に設定します。
func (s *Session) Authenticate(username string, now time.Time) error {
	if s.err != nil {
		return s.err
	}
	expiresAt := now.Add(sessionLifetime)

	s.s.Delete(sessionKeyLoginError)
	s.s.Set(sessionstore.RotateKey, true)
	s.s.Set(sessionKeyAuthenticated, true)
	s.s.Set(sessionKeyUser, username)
	s.s.Set(sessionKeyIssuedAt, now.Unix())
	s.s.Set(sessionKeyExpiresAt, expiresAt.Unix())

	opts := s.cookie
	opts.MaxAge = SessionMaxAgeSeconds()
	s.s.Options(opts)

	return s.s.Save()
}

// SetLoginError は次回のログイン画面で1度だけ表示するメッセージを保存します。
func (s *Session) SetLoginError(msg string) error {
	if s.err != nil {
		return s.err
	}
	s.s.Set(sessionKeyLoginError, msg)
	return s.s.Save()
}

// TakeLoginError はログインエラーを読み出し、同じリクエスト内で削除します。
func (s *Session) TakeLoginError() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	msg, ok := s.s.Get(sessionKeyLoginError).(string)
	if !ok {
		return "", nil
	}
	s.s.Delete(sessionKeyLoginError)
	if err := s.s.Save(); err != nil {
		return "", err
	}
	return msg, nil
}

// Destroy はセッションを破棄し、Cookie を失効させます。
func (s *Session) Destroy() error {
	if s.err != nil {
		return s.err
	}
	s.s.Clear()
	opts := s.cookie
	opts.MaxAge = -1
	s.s.Options(opts)
	return s.s.Save()
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
