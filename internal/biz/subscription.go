package biz

import (
	"context"
	"errors"
	"time"
)

// ErrSubscriptionExists 外部订阅ID唯一索引冲突
// 两个 worker 并发处理同一外部订阅ID时，插入失败的一方收到该错误，
// 应重新读取后改为更新，而不是作为任务失败上报
var ErrSubscriptionExists = errors.New("subscription with the same external id already exists")

// Subscription 学校订阅记录，本服务唯一拥有写权限的实体
// ExternalID 是幂等键；SchoolID 和 ExternalID 由创建事件写入后不再变更
type Subscription struct {
	ID                    uint64
	ExternalID            string
	SchoolID              uint64
	MembershipID          *uint64
	Status                string // trialing, active, past_due, canceled, incomplete, incomplete_expired, unpaid
	StartsAt              *time.Time
	CancelsAt             *time.Time
	CanceledAt            *time.Time
	EndedAt               *time.Time
	CurrentPeriodStartsAt *time.Time
	CurrentPeriodEndsAt   *time.Time
	CustomPrice           *float64
	CustomMaxUsers        *int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SubscriptionRepo 订阅仓库接口
type SubscriptionRepo interface {
	// GetByExternalID 按外部订阅ID查找订阅，不存在时返回 (nil, nil)
	GetByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	// Create 创建订阅，外部订阅ID冲突时返回 ErrSubscriptionExists
	Create(ctx context.Context, sub *Subscription) error
	// Update 按内部ID更新订阅
	Update(ctx context.Context, sub *Subscription) error
}
