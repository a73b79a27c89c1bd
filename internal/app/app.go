package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/authdemo/internal/auth"
	"github.com/yourusername/authdemo/internal/config"
	"github.com/yourusername/authdemo/internal/logging"
	"github.com/yourusername/authdemo/internal/mailing"
	"github.com/yourusername/authdemo/internal/password"
	"github.com/yourusername/authdemo/internal/sessionstore"
	"github.com/yourusername/authdemo/internal/users"
)

const shutdownTimeout = 10 * time.Second

// App は起動済みの依存関係と HTTP ハンドラーを保持します。
type App struct {
	cfg     *config.Config
	logger  logging.Logger
	db      *sql.DB
	rdb     *redis.Client
	mailing *mailing.Manager
	router  *gin.Engine
}

// New は DB・Redis へ接続し、マイグレーションを適用してから App を組み立てます。
// いずれかの依存先に到達できない場合は起動しません。
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	db, err := users.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	a.db = db

	if err := users.Migrate(ctx, db); err != nil {
		a.Close()
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	a.rdb = rdb
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	store, err := sessionstore.NewRedisStore(rdb, cfg.SessionSecret, cfg.SessionStoreSecret)
	if err != nil {
		a.Close()
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.mailing, err = mailing.NewManager(cfg.RedisURL, cfg.MailingConcurrency, mailing.NewStore(rdb), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.router, err = NewRouter(Deps{
		Logger:         logger,
		Users:          users.NewPostgresRepository(db),
		Hasher:         hasher,
		Limiter:        auth.NewLimiter(rdb),
		SessionStore:   store,
		Subscriber:     a.mailing,
		AllowedOrigins: cfg.AllowedOrigins(),
		SecureCookie:   cfg.IsRelease(),
		HealthChecks: map[string]HealthCheck{
			"postgres": db.PingContext,
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		},
	})
	if err != nil {
		_ = a.mailing.Shutdown(ctx)
		a.Close()
		return nil, err
	}
	return a, nil
}

// Handler はルーターを返します。
func (a *App) Handler() http.Handler {
	return a.router
}

// Run はワーカーと HTTP サーバーを起動し、ctx が終了するまでブロックします。
// 終了時は処理中のリクエストを待ってから停止します。
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.mailing.StartWorkers()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "starting server", "addr", srv.Addr, "mode", a.cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.mailing.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("mailing shutdown: %w", err))
	}
	a.Close()
	return serveErr
}

// Close は DB と Redis の接続を閉じます。
func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn(context.Background(), "failed to close redis", "error", err)
		}
		a.rdb = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn(context.Background(), "failed to close database", "error", err)
		}
		a.db = nil
	}
}
