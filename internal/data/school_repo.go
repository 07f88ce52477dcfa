package data

import (
	"context"
	"errors"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// schoolRepo 学校仓库实现
type schoolRepo struct {
	data *Data
	log  *log.Helper
}

// NewSchoolRepo 创建学校仓库
func NewSchoolRepo(data *Data, logger log.Logger) biz.SchoolRepo {
	return &schoolRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetByCustomerID 按外部计费客户ID查找学校
func (r *schoolRepo) GetByCustomerID(ctx context.Context, customerID string) (*biz.School, error) {
	if customerID == "" {
		return nil, nil
	}

	var m model.School
	err := r.data.db.WithContext(ctx).Where("external_customer_id = ?", customerID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get school by customer id %s: %v", customerID, err)
		return nil, err
	}

	externalID := ""
	if m.ExternalCustomerID != nil {
		externalID = *m.ExternalCustomerID
	}
	return &biz.School{
		ID:                 m.ID,
		MarketID:           m.MarketID,
		Name:               m.Name,
		ExternalCustomerID: externalID,
	}, nil
}
