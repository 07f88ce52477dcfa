package model

import "time"

// School 学校模型（付费客户）
// 本服务只读：按外部计费客户ID查找归属学校
type School struct {
	ID                 uint64    `gorm:"primaryKey;column:school_id"`
	MarketID           string    `gorm:"column:market_id;index"`
	Name               string    `gorm:"column:name"`
	ExternalCustomerID *string   `gorm:"column:external_customer_id;uniqueIndex"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (School) TableName() string { return "school" }
