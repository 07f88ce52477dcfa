package model

import "time"

// Subscription 学校订阅模型
// external_id 的唯一索引是并发协调的最后防线：
// 两个 worker 同时处理同一订阅的事件时，输掉插入竞争的一方
// 依赖该约束回退为更新
type Subscription struct {
	ID                    uint64     `gorm:"primaryKey;column:subscription_id;autoIncrement"`
	ExternalID            string     `gorm:"column:external_id;uniqueIndex"`
	SchoolID              uint64     `gorm:"column:school_id;index"`
	MembershipID          *uint64    `gorm:"column:membership_id"`
	Status                string     `gorm:"column:status"` // trialing, active, past_due, canceled, incomplete, incomplete_expired, unpaid
	StartsAt              *time.Time `gorm:"column:starts_at"`
	CancelsAt             *time.Time `gorm:"column:cancels_at"`
	CanceledAt            *time.Time `gorm:"column:canceled_at"`
	EndedAt               *time.Time `gorm:"column:ended_at"`
	CurrentPeriodStartsAt *time.Time `gorm:"column:current_period_starts_at"`
	CurrentPeriodEndsAt   *time.Time `gorm:"column:current_period_ends_at"`
	CustomPrice           *float64   `gorm:"column:custom_price"`
	CustomMaxUsers        *int       `gorm:"column:custom_max_users"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

func (Subscription) TableName() string { return "subscription" }
