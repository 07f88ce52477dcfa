package biz

import (
	"context"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// MaintenanceUsecase 定时维护任务逻辑
type MaintenanceUsecase struct {
	eventRepo WebhookEventRepo
	queue     EventQueue
	rs        *redsync.Redsync
	log       *log.Helper
}

// NewMaintenanceUsecase 创建维护任务用例
func NewMaintenanceUsecase(
	eventRepo WebhookEventRepo,
	queue EventQueue,
	rs *redsync.Redsync,
	logger log.Logger,
) *MaintenanceUsecase {
	return &MaintenanceUsecase{
		eventRepo: eventRepo,
		queue:     queue,
		rs:        rs,
		log:       log.NewHelper(logger),
	}
}

// PurgeProcessedEvents 清理保留期之外的已处理 webhook 事件
// 使用分布式锁防止多实例 cron 重复执行
func (uc *MaintenanceUsecase) PurgeProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	mutex := uc.rs.NewMutex(
		"billing_webhook:lock:purge_events",
		redsync.WithExpiry(constants.MaintenanceLockExpiration),
		redsync.WithTries(constants.MaintenanceLockRetries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		uc.log.Infof("skipping webhook event purge: lock busy or already running")
		return 0, nil
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			uc.log.Warnf("failed to unlock webhook event purge: %v", err)
		}
	}()

	before := time.Now().UTC().Add(-retention)
	count, err := uc.eventRepo.PurgeProcessedBefore(ctx, before)
	if err != nil {
		uc.log.Errorf("failed to purge processed webhook events: %v", err)
		return 0, err
	}

	uc.log.Infof("purged %d processed webhook events older than %s", count, before.Format(time.RFC3339))
	return count, nil
}

// ReportQueueHealth 输出死信队列长度和未处理事件数
// 死信任务只做人工重放，不自动重回队列
func (uc *MaintenanceUsecase) ReportQueueHealth(ctx context.Context) (deadLetters, pending int64, err error) {
	deadLetters, err = uc.queue.DeadLetterSize(ctx)
	if err != nil {
		uc.log.Errorf("failed to get dead letter size: %v", err)
		return 0, 0, err
	}

	pending, err = uc.eventRepo.CountPending(ctx)
	if err != nil {
		uc.log.Errorf("failed to count pending webhook events: %v", err)
		return deadLetters, 0, err
	}

	if deadLetters > 0 {
		uc.log.Warnf("queue health: %d dead letters awaiting manual replay, %d events pending", deadLetters, pending)
	} else {
		uc.log.Infof("queue health: no dead letters, %d events pending", pending)
	}
	return deadLetters, pending, nil
}
