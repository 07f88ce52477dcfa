package data

import (
	"context"
	"errors"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// membershipRepo 套餐仓库实现
type membershipRepo struct {
	data *Data
	log  *log.Helper
}

// NewMembershipRepo 创建套餐仓库
func NewMembershipRepo(data *Data, logger log.Logger) biz.MembershipRepo {
	return &membershipRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetByPriceID 按外部价格ID查找套餐
func (r *membershipRepo) GetByPriceID(ctx context.Context, priceID string) (*biz.Membership, error) {
	if priceID == "" {
		return nil, nil
	}

	var m model.Membership
	err := r.data.db.WithContext(ctx).Where("external_price_id = ?", priceID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get membership by price id %s: %v", priceID, err)
		return nil, err
	}

	return &biz.Membership{
		ID:              m.ID,
		MarketID:        m.MarketID,
		Name:            m.Name,
		ExternalPriceID: m.ExternalPriceID,
		Period:          m.Period,
		MaxUsers:        m.MaxUsers,
		Price:           m.Price,
		Currency:        m.Currency,
	}, nil
}
