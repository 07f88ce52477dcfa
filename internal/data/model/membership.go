package model

import "time"

// Membership 订阅套餐模型（计费计划）
// 本服务只读：按外部价格ID查找套餐
type Membership struct {
	ID              uint64    `gorm:"primaryKey;column:membership_id"`
	MarketID        string    `gorm:"column:market_id;index"`
	Name            string    `gorm:"column:name"`
	ExternalPriceID string    `gorm:"column:external_price_id;uniqueIndex"`
	Period          string    `gorm:"column:period"` // month, year
	MaxUsers        int       `gorm:"column:max_users"`
	Price           float64   `gorm:"column:price"`
	Currency        string    `gorm:"column:currency;default:'USD'"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (Membership) TableName() string { return "membership" }
