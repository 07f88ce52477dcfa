package worker

import (
	"context"
	"sync"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/conf"
	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// Worker 队列消费者
// 区分两类结果是本服务最重要的失败处理契约：
// 终态业务 no-op（学校/套餐不存在、已取消、已存在）按成功完成，
// 基础设施类临时失败（数据库不可达等）按退避策略重试，
// 混淆两者会导致事件静默丢失或无限重试风暴
type Worker struct {
	queue       biz.EventQueue
	uc          *biz.ReconcileUsecase
	eventRepo   biz.WebhookEventRepo
	concurrency int
	maxAttempts int
	backoff     time.Duration
	log         *log.Helper
}

// New 创建 worker
func New(
	c *conf.Bootstrap,
	queue biz.EventQueue,
	uc *biz.ReconcileUsecase,
	eventRepo biz.WebhookEventRepo,
	logger log.Logger,
) *Worker {
	concurrency := constants.DefaultQueueConcurrency
	maxAttempts := constants.DefaultMaxAttempts
	backoff := constants.DefaultRetryBackoff
	if c != nil && c.Queue != nil {
		if c.Queue.Concurrency > 0 {
			concurrency = c.Queue.Concurrency
		}
		if c.Queue.MaxAttempts > 0 {
			maxAttempts = c.Queue.MaxAttempts
		}
		if c.Queue.RetryBackoff != "" {
			if d, err := time.ParseDuration(c.Queue.RetryBackoff); err == nil && d > 0 {
				backoff = d
			}
		}
	}
	return &Worker{
		queue:       queue,
		uc:          uc,
		eventRepo:   eventRepo,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         log.NewHelper(logger),
	}
}

// Run 启动消费循环，阻塞直到 ctx 取消
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infof("worker starting with %d consumers, max_attempts=%d, backoff=%s", w.concurrency, w.maxAttempts, w.backoff)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promote(ctx)
	}()

	wg.Wait()
	w.log.Info("worker stopped")
	return nil
}

// consume 单个消费协程的主循环
func (w *Worker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, constants.DequeueBlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Errorf("dequeue failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, job)
	}
}

// promote 周期性地把到期的延迟任务晋升回待处理队列
func (w *Worker) promote(ctx context.Context) {
	ticker := time.NewTicker(constants.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.queue.PromoteDue(ctx); err != nil {
				if ctx.Err() == nil {
					w.log.Errorf("failed to promote delayed jobs: %v", err)
				}
			} else if n > 0 {
				w.log.Infof("promoted %d delayed jobs", n)
			}
		}
	}
}

// process 处理单个任务并根据结果分类收尾
func (w *Worker) process(ctx context.Context, job *biz.Job) {
	job.Attempts++

	outcome := w.uc.Dispatch(ctx, job.Envelope)

	if outcome.Retry {
		if job.Attempts >= w.maxAttempts {
			if err := w.queue.DeadLetter(ctx, job); err != nil {
				w.log.Errorf("failed to dead-letter job %s: %v", job.ID, err)
				return
			}
			w.markProcessed(ctx, job, outcome.Message)
			return
		}
		if err := w.queue.Retry(ctx, job, w.retryDelay(job.Attempts)); err != nil {
			w.log.Errorf("failed to schedule retry for job %s: %v", job.ID, err)
		}
		return
	}

	if outcome.Message != "" {
		w.log.Infof("job %s completed: %s", job.ID, outcome.Message)
	}
	// 终态失败（如畸形载荷）把原因留在事件记录里，方便人工重放
	procErr := ""
	if !outcome.Success {
		procErr = outcome.Message
	}
	w.markProcessed(ctx, job, procErr)
}

func (w *Worker) markProcessed(ctx context.Context, job *biz.Job, procErr string) {
	if err := w.eventRepo.MarkProcessed(ctx, job.Market, job.Envelope.ID, procErr); err != nil {
		w.log.Errorf("failed to mark event %s processed: %v", job.Envelope.ID, err)
	}
}

// retryDelay 按处理次数指数退避
func (w *Worker) retryDelay(attempts int) time.Duration {
	delay := w.backoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= constants.MaxRetryBackoff {
			return constants.MaxRetryBackoff
		}
	}
	return delay
}
