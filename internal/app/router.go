// Package app は依存関係の組み立てとルーティング、HTTPサーバーの起動を担います。
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/authdemo/internal/auth"
	"github.com/yourusername/authdemo/internal/demo"
	"github.com/yourusername/authdemo/internal/logging"
	"github.com/yourusername/authdemo/internal/users"
	"github.com/yourusername/authdemo/internal/web"
)

// HealthCheck は依存サービスの疎通確認です。
type HealthCheck func(ctx context.Context) error

// Deps はルーターの組み立てに必要な依存関係です。
type Deps struct {
	Logger         logging.Logger
	Users          users.Repository
	Hasher         auth.PasswordHasher
	Limiter        auth.AttemptLimiter
	SessionStore   sessions.Store
	Subscriber     demo.Subscriber
	AllowedOrigins []string
	SecureCookie   bool
	HealthChecks   map[string]HealthCheck

	// テスト用
	Now func() time.Time
}

// NewRouter はミドルウェアと全ルートを登録した gin.Engine を返します。
func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Users == nil || d.Hasher == nil || d.SessionStore == nil || d.Subscriber == nil {
		return nil, errors.New("users, hasher, session store and subscriber are required")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	authManager := auth.NewManager(d.Users, d.Hasher, d.SessionStore, d.Logger.With("component", "auth"), auth.Options{
		SecureCookie: d.SecureCookie,
		Limiter:      d.Limiter,
		Now:          d.Now,
	})

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(
		gin.Recovery(),
		web.RequestID(),
		web.RequestLogger(d.Logger),
	)

	// CORS許可オリジンが無い場合は同一オリジンのみ
	if len(d.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = d.AllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
		}
		router.Use(cors.New(corsConfig))
	}

	router.Use(
		sessions.Sessions(auth.SessionCookieName, d.SessionStore),
		web.ErrorPages(d.Logger),
	)

	setupRoutes(router, authManager, demo.New(d.Users, d.Subscriber, d.Logger.With("component", "demo")), d.HealthChecks)
	return router, nil
}

func setupRoutes(router *gin.Engine, authManager *auth.Manager, demoHandlers *demo.Handlers, checks map[string]HealthCheck) {
	router.GET("/health", handleHealth(checks))
	router.StaticFS("/static", web.StaticFS())

	router.GET("/", authManager.Home)

	router.GET("/createUser", authManager.SignupForm)
	router.POST("/submitUser", authManager.Signup)
	router.GET("/userCreated", authManager.SignupDone)

	router.GET("/login", authManager.LoginForm)
	router.POST("/loggingin", authManager.Login)
	router.GET("/logout", authManager.Logout)

	protected := router.Group("")
	protected.Use(authManager.RequireLogin())
	{
		protected.GET("/loggedin", authManager.LoggedIn)
		protected.GET("/members", authManager.Members)
	}

	router.GET("/nosql-injection", demoHandlers.NoSQLInjection)
	router.GET("/about", demoHandlers.About)
	router.GET("/contact", demoHandlers.Contact)
	router.POST("/submitEmail", demoHandlers.SubmitEmail)

	router.NoRoute(web.NotFound)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーを返します。
func handleHealth(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status":  overall,
			"service": "authdemo",
			"checks":  results,
		})
	}
}
