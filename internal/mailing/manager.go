package mailing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/yourusername/authdemo/internal/logging"
)

const (
	taskTypeSubscribe = "mailing:subscribe"
	queueName         = "mailing"
)

// enqueuer は asynq.Client のうち Manager が使う部分です。
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager は購読依頼の投入とワーカーを管理します。
type Manager struct {
	client enqueuer
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	logger logging.Logger
}

// TaskPayload は購読ジョブのペイロードです。
type TaskPayload struct {
	Email string `json:"email"`
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, concurrency int, store *Store, logger logging.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: asynq.NewClient(opt),
		server: server,
		mux:    mux,
		store:  store,
		logger: logger.With("component", "mailing"),
	}
	mux.HandleFunc(taskTypeSubscribe, manager.handleSubscribeTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error(context.Background(), "asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Subscribe は購読依頼を記録し、確定処理をキューに投入します。
func (m *Manager) Subscribe(ctx context.Context, email string) error {
	sub, err := m.store.Request(ctx, email)
	if err != nil {
		return err
	}
	if sub.Status == StatusSubscribed {
		m.logger.Info(ctx, "already subscribed", "requests", sub.Requests)
		return nil
	}

	body, err := json.Marshal(&TaskPayload{Email: sub.Email})
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskTypeSubscribe, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		return fmt.Errorf("enqueue subscription: %w", err)
	}
	m.logger.Info(ctx, "subscription queued", "task_id", info.ID)
	return nil
}

// Get は購読情報を取得します。
func (m *Manager) Get(ctx context.Context, email string) (*Subscription, error) {
	return m.store.Get(ctx, email)
}

func (m *Manager) handleSubscribeTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.Email == "" {
		return fmt.Errorf("%w: missing email in payload", asynq.SkipRetry)
	}

	if err := m.store.MarkSubscribed(ctx, payload.Email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	m.logger.Info(ctx, "subscription confirmed")
	return nil
}
