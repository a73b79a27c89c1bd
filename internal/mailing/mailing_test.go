package mailing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/authdemo/internal/logging"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: queueName, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func newTestManager(t *testing.T) (*Manager, *fakeEnqueuer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m, err := NewManager("redis://"+mr.Addr(), 1, NewStore(rdb), logging.Discard())
	require.NoError(t, err)

	fake := &fakeEnqueuer{}
	m.client = fake
	return m, fake, mr
}

func TestSubscribeQueuesTask(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newTestManager(t)

	require.NoError(t, m.Subscribe(ctx, " Someone@Example.com "))

	require.Len(t, fake.tasks, 1)
	assert.Equal(t, taskTypeSubscribe, fake.tasks[0].Type())
	var payload TaskPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	assert.Equal(t, "someone@example.com", payload.Email)

	sub, err := m.Get(ctx, "someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, 1, sub.Requests)
}

func TestWorkerConfirmsSubscription(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newTestManager(t)

	require.NoError(t, m.Subscribe(ctx, "a@b.com"))
	require.NoError(t, m.handleSubscribeTask(ctx, fake.tasks[0]))

	sub, err := m.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, StatusSubscribed, sub.Status)

	require.NoError(t, m.Subscribe(ctx, "a@b.com"))
	assert.Len(t, fake.tasks, 1, "confirmed addresses are not queued again")

	sub, err = m.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, StatusSubscribed, sub.Status)
	assert.Equal(t, 2, sub.Requests)
}

func TestWorkerSkipsRetryOnBadPayload(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	err := m.handleSubscribeTask(ctx, asynq.NewTask(taskTypeSubscribe, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = m.handleSubscribeTask(ctx, asynq.NewTask(taskTypeSubscribe, []byte(`{"email":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = m.handleSubscribeTask(ctx, asynq.NewTask(taskTypeSubscribe, []byte(`{"email":"ghost@example.com"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSubscribeEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newTestManager(t)
	fake.err = errors.New("queue unavailable")

	err := m.Subscribe(ctx, "a@b.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue unavailable")
}

func TestStoreRedisFailure(t *testing.T) {
	ctx := context.Background()
	m, fake, mr := newTestManager(t)
	mr.SetError("ERR simulated outage")

	require.Error(t, m.Subscribe(ctx, "a@b.com"))
	assert.Empty(t, fake.tasks)
}

func TestGetUnknown(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Get(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	_, err := NewManager("not-a-url", 1, NewStore(redis.NewClient(&redis.Options{})), nil)
	require.Error(t, err)

	_, err = NewManager("redis://localhost:6379", 1, nil, nil)
	require.Error(t, err)
}
