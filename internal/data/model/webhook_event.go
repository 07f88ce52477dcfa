package model

import "time"

// WebhookEvent 已验证的 webhook 事件记录
// (market_id, event_id) 唯一，重复投递只递增 receive_count
type WebhookEvent struct {
	ID              uint64     `gorm:"primaryKey;column:webhook_event_id;autoIncrement"`
	MarketID        string     `gorm:"column:market_id;uniqueIndex:uidx_market_event"`
	EventID         string     `gorm:"column:event_id;uniqueIndex:uidx_market_event"`
	Type            string     `gorm:"column:type;index"`
	Payload         string     `gorm:"column:payload;type:longtext"`
	ReceiveCount    int        `gorm:"column:receive_count;default:1"`
	ProcessedAt     *time.Time `gorm:"column:processed_at;index"`
	ProcessingError string     `gorm:"column:processing_error;type:text"`
	CreatedAt       time.Time  `gorm:"column:created_at;index"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }
