package data

import (
	"context"
	"testing"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestQueue(t *testing.T) (*eventQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := &Data{rdb: client}
	c := &conf.Bootstrap{Queue: &conf.Queue{KeyPrefix: "test_billing"}}
	q := NewEventQueue(d, c, log.NewStdLogger(discardWriter{})).(*eventQueue)
	return q, mr
}

func testQueueJob(id string) *biz.Job {
	env, err := biz.ParseEnvelope([]byte(`{"id":"evt_` + id + `","type":"subscription.created","data":{"object":{"id":"sub_abc"}}}`))
	if err != nil {
		panic(err)
	}
	return &biz.Job{ID: id, Market: "us", Envelope: env, ReceivedAt: time.Unix(1700000000, 0).UTC()}
}

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testQueueJob("job_1")))

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job_1", job.ID)
	assert.Equal(t, "us", job.Market)
	assert.Equal(t, "evt_job_1", job.Envelope.ID)
}

func TestEventQueue_DequeueTimeout(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEventQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testQueueJob("a")))
	require.NoError(t, q.Enqueue(ctx, testQueueJob("b")))

	first, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestEventQueue_RetryNotVisibleUntilDue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	base := time.Now()
	q.now = func() time.Time { return base }

	job := testQueueJob("job_1")
	job.Attempts = 1
	require.NoError(t, q.Retry(ctx, job, time.Minute))

	// 未到期：不晋升
	n, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 到期后晋升回待处理队列
	q.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err = q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job_1", got.ID)
	assert.Equal(t, 1, got.Attempts)
}

func TestEventQueue_DeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	size, err := q.DeadLetterSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, q.DeadLetter(ctx, testQueueJob("job_1")))

	size, err = q.DeadLetterSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	// 死信不会被消费
	job, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEventQueue_UnparseableJobGoesToDeadLetter(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.Lpush(q.readyKey, "not json")
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)

	size, err := q.DeadLetterSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}
