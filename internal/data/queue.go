package data

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/conf"
	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// eventQueue 基于 Redis 的事件队列实现
// ready: List，LPUSH 入队 BRPOP 消费
// delayed: Sorted Set，score 为重试执行时间
// dead: List，超过最大处理次数的任务，等待人工重放
type eventQueue struct {
	data       *Data
	readyKey   string
	delayedKey string
	deadKey    string
	now        func() time.Time
	log        *log.Helper
}

// NewEventQueue 创建事件队列
func NewEventQueue(data *Data, c *conf.Bootstrap, logger log.Logger) biz.EventQueue {
	prefix := constants.DefaultQueueKeyPrefix
	if c != nil && c.Queue != nil && c.Queue.KeyPrefix != "" {
		prefix = c.Queue.KeyPrefix
	}
	return &eventQueue{
		data:       data,
		readyKey:   prefix + constants.QueueReadySuffix,
		delayedKey: prefix + constants.QueueDelayedSuffix,
		deadKey:    prefix + constants.QueueDeadSuffix,
		now:        time.Now,
		log:        log.NewHelper(logger),
	}
}

// Enqueue 任务入队
func (q *eventQueue) Enqueue(ctx context.Context, job *biz.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.data.rdb.LPush(ctx, q.readyKey, payload).Err(); err != nil {
		q.log.Errorf("Failed to enqueue job %s: %v", job.ID, err)
		return err
	}
	return nil
}

// Dequeue 阻塞获取任务，超时无任务时返回 (nil, nil)
func (q *eventQueue) Dequeue(ctx context.Context, timeout time.Duration) (*biz.Job, error) {
	vals, err := q.data.rdb.BRPop(ctx, timeout, q.readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP 返回 [key, value]
	var job biz.Job
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		q.log.Errorf("Failed to unmarshal job payload, moving to dead letter: %v", err)
		if derr := q.data.rdb.LPush(ctx, q.deadKey, vals[1]).Err(); derr != nil {
			q.log.Errorf("Failed to dead-letter unparseable job: %v", derr)
		}
		return nil, nil
	}
	return &job, nil
}

// Retry 延迟重新入队
func (q *eventQueue) Retry(ctx context.Context, job *biz.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	runAt := q.now().Add(delay)
	if err := q.data.rdb.ZAdd(ctx, q.delayedKey, redis.Z{
		Score:  float64(runAt.Unix()),
		Member: payload,
	}).Err(); err != nil {
		q.log.Errorf("Failed to schedule retry for job %s: %v", job.ID, err)
		return err
	}
	q.log.Infof("Job %s scheduled for retry at %s (attempt %d)", job.ID, runAt.UTC().Format(time.RFC3339), job.Attempts)
	return nil
}

// DeadLetter 移入死信队列
func (q *eventQueue) DeadLetter(ctx context.Context, job *biz.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.data.rdb.LPush(ctx, q.deadKey, payload).Err(); err != nil {
		q.log.Errorf("Failed to dead-letter job %s: %v", job.ID, err)
		return err
	}
	q.log.Warnf("Job %s moved to dead letter queue after %d attempts", job.ID, job.Attempts)
	return nil
}

// PromoteDue 将到期的延迟任务晋升回待处理队列
func (q *eventQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.now().Unix(), 10)
	members, err := q.data.rdb.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	promoted := 0
	for _, member := range members {
		// ZREM 成功才入队，避免多个 worker 晋升同一任务
		removed, err := q.data.rdb.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.data.rdb.LPush(ctx, q.readyKey, member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// DeadLetterSize 死信队列长度
func (q *eventQueue) DeadLetterSize(ctx context.Context) (int64, error) {
	return q.data.rdb.LLen(ctx, q.deadKey).Result()
}
