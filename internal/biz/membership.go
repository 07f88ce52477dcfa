package biz

import "context"

// Membership 订阅套餐（计费计划）
// 本服务只按外部价格ID查找套餐，不创建不修改
type Membership struct {
	ID              uint64
	MarketID        string
	Name            string
	ExternalPriceID string
	Period          string // month, year
	MaxUsers        int
	Price           float64
	Currency        string
}

// MembershipRepo 套餐仓库接口
type MembershipRepo interface {
	// GetByPriceID 按外部价格ID查找套餐，不存在时返回 (nil, nil)
	GetByPriceID(ctx context.Context, priceID string) (*Membership, error)
}
