package biz

import "context"

// School 付费客户（学校）
// 本服务只按外部计费客户ID查找学校，不创建不修改
type School struct {
	ID                 uint64
	MarketID           string
	Name               string
	ExternalCustomerID string
}

// SchoolRepo 学校仓库接口
type SchoolRepo interface {
	// GetByCustomerID 按外部计费客户ID查找学校，不存在时返回 (nil, nil)
	GetByCustomerID(ctx context.Context, customerID string) (*School, error)
}
