package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/conf"
	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeQueue struct {
	retried     []*biz.Job
	retryDelays []time.Duration
	dead        []*biz.Job
}

func (f *fakeQueue) Enqueue(context.Context, *biz.Job) error { return nil }
func (f *fakeQueue) Dequeue(context.Context, time.Duration) (*biz.Job, error) {
	return nil, nil
}
func (f *fakeQueue) Retry(_ context.Context, job *biz.Job, delay time.Duration) error {
	f.retried = append(f.retried, job)
	f.retryDelays = append(f.retryDelays, delay)
	return nil
}
func (f *fakeQueue) DeadLetter(_ context.Context, job *biz.Job) error {
	f.dead = append(f.dead, job)
	return nil
}
func (f *fakeQueue) PromoteDue(context.Context) (int, error)    { return 0, nil }
func (f *fakeQueue) DeadLetterSize(context.Context) (int64, error) { return int64(len(f.dead)), nil }

type fakeEventRepo struct {
	processed map[string]string
}

func (f *fakeEventRepo) Record(context.Context, string, *biz.Envelope, []byte) error { return nil }
func (f *fakeEventRepo) MarkProcessed(_ context.Context, _ string, eventID, procErr string) error {
	if f.processed == nil {
		f.processed = map[string]string{}
	}
	f.processed[eventID] = procErr
	return nil
}
func (f *fakeEventRepo) PurgeProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeEventRepo) CountPending(context.Context) (int64, error) { return 0, nil }

type erroringSchoolRepo struct{ err error }

func (r erroringSchoolRepo) GetByCustomerID(context.Context, string) (*biz.School, error) {
	return nil, r.err
}

type emptyMembershipRepo struct{}

func (emptyMembershipRepo) GetByPriceID(context.Context, string) (*biz.Membership, error) {
	return nil, nil
}

type emptySubRepo struct{}

func (emptySubRepo) GetByExternalID(context.Context, string) (*biz.Subscription, error) {
	return nil, nil
}
func (emptySubRepo) Create(context.Context, *biz.Subscription) error { return nil }
func (emptySubRepo) Update(context.Context, *biz.Subscription) error { return nil }

func testJob(eventType string) *biz.Job {
	env, err := biz.ParseEnvelope([]byte(`{"id":"evt_1","type":"` + eventType + `","data":{"object":{"id":"sub_abc","customer":"cus_123","items":{"data":[{"price":{"id":"price_456"}}]}}}}`))
	if err != nil {
		panic(err)
	}
	return &biz.Job{ID: "job_1", Market: "us", Envelope: env, ReceivedAt: time.Now().UTC()}
}

func newTestWorker(queue *fakeQueue, events *fakeEventRepo, schoolErr error) *Worker {
	logger := log.NewStdLogger(discardWriter{})
	uc := biz.NewReconcileUsecase(erroringSchoolRepo{err: schoolErr}, emptyMembershipRepo{}, emptySubRepo{}, logger)
	c := &conf.Bootstrap{Queue: &conf.Queue{Concurrency: 1, MaxAttempts: 3, RetryBackoff: "10s"}}
	return New(c, queue, uc, events, logger)
}

func TestProcess_TerminalNoOpCompletes(t *testing.T) {
	queue := &fakeQueue{}
	events := &fakeEventRepo{}
	// 学校不存在：终态 no-op，不重试
	w := newTestWorker(queue, events, nil)

	w.process(context.Background(), testJob("subscription.created"))

	assert.Empty(t, queue.retried)
	assert.Empty(t, queue.dead)
	require.Contains(t, events.processed, "evt_1")
	assert.Empty(t, events.processed["evt_1"])
}

func TestProcess_UnknownTypeCompletes(t *testing.T) {
	queue := &fakeQueue{}
	events := &fakeEventRepo{}
	w := newTestWorker(queue, events, nil)

	w.process(context.Background(), testJob("invoice.paid"))

	assert.Empty(t, queue.retried)
	assert.Contains(t, events.processed, "evt_1")
}

func TestProcess_InfrastructureErrorRetries(t *testing.T) {
	queue := &fakeQueue{}
	events := &fakeEventRepo{}
	w := newTestWorker(queue, events, errors.New("db unreachable"))

	w.process(context.Background(), testJob("subscription.created"))

	require.Len(t, queue.retried, 1)
	assert.Equal(t, 1, queue.retried[0].Attempts)
	assert.Equal(t, 10*time.Second, queue.retryDelays[0])
	assert.Empty(t, queue.dead)
	assert.NotContains(t, events.processed, "evt_1")
}

func TestProcess_ExhaustedAttemptsDeadLetters(t *testing.T) {
	queue := &fakeQueue{}
	events := &fakeEventRepo{}
	w := newTestWorker(queue, events, errors.New("db unreachable"))

	job := testJob("subscription.created")
	job.Attempts = 2 // 本次处理为第 3 次，达到 max_attempts
	w.process(context.Background(), job)

	assert.Empty(t, queue.retried)
	require.Len(t, queue.dead, 1)
	require.Contains(t, events.processed, "evt_1")
	assert.NotEmpty(t, events.processed["evt_1"])
}

func TestRetryDelay_ExponentialBackoffWithCap(t *testing.T) {
	w := newTestWorker(&fakeQueue{}, &fakeEventRepo{}, nil)

	assert.Equal(t, 10*time.Second, w.retryDelay(1))
	assert.Equal(t, 20*time.Second, w.retryDelay(2))
	assert.Equal(t, 40*time.Second, w.retryDelay(3))
	assert.Equal(t, constants.MaxRetryBackoff, w.retryDelay(20))
}
