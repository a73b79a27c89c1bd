// Package sessionstore は gin-contrib/sessions 用の Redis セッションストアを提供します。
//
// Cookie にはセッションIDだけを署名・暗号化して載せ、セッションの値は
// 別の鍵で暗号化したうえで Redis に保存します。
package sessionstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ginsessions "github.com/gin-contrib/sessions"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/hkdf"
)

const (
	keyPrefix = "session:"

	// DefaultMaxAge はセッションの既定の有効期間です。
	DefaultMaxAge = 24 * time.Hour

	// RotateKey がセッション値に含まれていると、次の Save でIDを振り直します。
	RotateKey = "_rotate"
)

// record は Redis に保存する1セッション分のデータです。
type record struct {
	Data      string    `json:"data"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RedisStore は Redis にセッションを保存する ginsessions.Store 実装です。
type RedisStore struct {
	rdb          redis.UniversalClient
	cookieCodecs []securecookie.Codec
	valueCodecs  []securecookie.Codec
	options      *gsessions.Options
}

var _ ginsessions.Store = (*RedisStore)(nil)

// NewRedisStore は RedisStore を作成します。
// cookieSecret は Cookie の署名・暗号化に、storeSecret は保存値の暗号化に使います。
func NewRedisStore(rdb redis.UniversalClient, cookieSecret, storeSecret string) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if cookieSecret == "" || storeSecret == "" {
		return nil, errors.New("session secrets are required")
	}

	cookieCodec, err := newCodec(cookieSecret, "cookie")
	if err != nil {
		return nil, err
	}
	valueCodec, err := newCodec(storeSecret, "store")
	if err != nil {
		return nil, err
	}
	// 保存値の期限は Redis の TTL で管理する
	valueCodec.MaxAge(0)
	valueCodec.MaxLength(0)

	s := &RedisStore{
		rdb:          rdb,
		cookieCodecs: []securecookie.Codec{cookieCodec},
		valueCodecs:  []securecookie.Codec{valueCodec},
		options: &gsessions.Options{
			Path:     "/",
			MaxAge:   int(DefaultMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
	s.setCookieMaxAge(s.options.MaxAge)
	return s, nil
}

// Options は以降に作成されるセッションの既定オプションを設定します。
func (s *RedisStore) Options(options ginsessions.Options) {
	s.options = options.ToGorillaOptions()
	s.setCookieMaxAge(s.options.MaxAge)
}

// Get はリクエスト単位のレジストリ経由でセッションを返します。
func (s *RedisStore) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name)
}

// New は Cookie からセッションを復元します。
// Cookie が無い・改ざんされている・Redis 側に無い場合は新しいセッションを返します。
func (s *RedisStore) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.cookieCodecs...); err != nil {
		return session, nil
	}

	found, err := s.load(r.Context(), id, session)
	if err != nil {
		return session, err
	}
	if found {
		session.ID = id
		session.IsNew = false
	}
	return session, nil
}

// Save はセッションを Redis に保存し、Cookie を書き出します。
// MaxAge が負の場合はセッションを削除します。
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	ctx := r.Context()
	if session.Options == nil {
		opts := *s.options
		session.Options = &opts
	}

	if session.Options.MaxAge < 0 {
		if err := s.delete(ctx, session.ID); err != nil {
			return err
		}
		session.ID = ""
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if _, ok := session.Values[RotateKey]; ok {
		delete(session.Values, RotateKey)
		if err := s.delete(ctx, session.ID); err != nil {
			return err
		}
		session.ID = ""
	}

	if session.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		session.ID = id
	}

	if err := s.save(ctx, session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.cookieCodecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string, session *gsessions.Session) (bool, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("decode session record: %w", err)
	}
	if err := securecookie.DecodeMulti(session.Name(), rec.Data, &session.Values, s.valueCodecs...); err != nil {
		// 鍵の入れ替え等で読めない値は破棄して新規扱い
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) save(ctx context.Context, session *gsessions.Session) error {
	encoded, err := securecookie.EncodeMulti(session.Name(), session.Values, s.valueCodecs...)
	if err != nil {
		return fmt.Errorf("encode session values: %w", err)
	}

	ttl := s.ttl(session.Options)
	now := time.Now().UTC()
	payload, err := json.Marshal(record{
		Data:      encoded,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) ttl(opts *gsessions.Options) time.Duration {
	if opts != nil && opts.MaxAge > 0 {
		return time.Duration(opts.MaxAge) * time.Second
	}
	return DefaultMaxAge
}

func (s *RedisStore) setCookieMaxAge(maxAge int) {
	if maxAge <= 0 {
		return
	}
	for _, c := range s.cookieCodecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(maxAge)
		}
	}
}

// newCodec は secret から HKDF で署名鍵と暗号鍵を導出します。
func newCodec(secret, purpose string) (*securecookie.SecureCookie, error) {
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("authdemo session "+purpose))
	keys := make([]byte, 64)
	if _, err := io.ReadFull(kdf, keys); err != nil {
		return nil, fmt.Errorf("derive %s keys: %w", purpose, err)
	}
	return securecookie.New(keys[:32], keys[32:]), nil
}

func generateID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func sessionKey(id string) string {
	return keyPrefix + id
}
