package biz

import (
	"context"
	"time"
)

// WebhookEvent 已验证的 webhook 事件落库记录
// 用于重复投递统计、死信人工重放和审计
type WebhookEvent struct {
	ID              uint64
	MarketID        string
	EventID         string
	Type            string
	Payload         string
	ReceiveCount    int
	ProcessedAt     *time.Time
	ProcessingError string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WebhookEventRepo webhook 事件仓库接口
type WebhookEventRepo interface {
	// Record 记录已验证的原始事件，按 (market, event_id) 幂等：
	// 重复投递只递增接收计数
	Record(ctx context.Context, market string, env *Envelope, payload []byte) error
	// MarkProcessed 标记事件处理完成，procErr 非空表示进入死信前的最后错误
	MarkProcessed(ctx context.Context, market, eventID, procErr string) error
	// PurgeProcessedBefore 删除指定时间之前已处理的事件，返回删除行数
	PurgeProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	// CountPending 未处理事件数
	CountPending(ctx context.Context) (int64, error)
}
