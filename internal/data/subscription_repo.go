package data

import (
	"context"
	"errors"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/data/model"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// subscriptionRepo 订阅仓库实现
type subscriptionRepo struct {
	data *Data
	log  *log.Helper
}

// NewSubscriptionRepo 创建订阅仓库
func NewSubscriptionRepo(data *Data, logger log.Logger) biz.SubscriptionRepo {
	return &subscriptionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetByExternalID 按外部订阅ID查找订阅
func (r *subscriptionRepo) GetByExternalID(ctx context.Context, externalID string) (*biz.Subscription, error) {
	var m model.Subscription
	err := r.data.db.WithContext(ctx).Where("external_id = ?", externalID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get subscription by external id %s: %v", externalID, err)
		return nil, err
	}
	return toBizSubscription(&m), nil
}

// Create 创建订阅，唯一索引冲突时返回 biz.ErrSubscriptionExists
func (r *subscriptionRepo) Create(ctx context.Context, sub *biz.Subscription) error {
	m := toModelSubscription(sub)
	if err := r.data.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicateKey(err) {
			return biz.ErrSubscriptionExists
		}
		r.log.Errorf("Failed to create subscription %s: %v", sub.ExternalID, err)
		return err
	}
	sub.ID = m.ID
	return nil
}

// Update 按内部ID更新订阅
func (r *subscriptionRepo) Update(ctx context.Context, sub *biz.Subscription) error {
	m := toModelSubscription(sub)
	if err := r.data.db.WithContext(ctx).Save(m).Error; err != nil {
		r.log.Errorf("Failed to update subscription %s: %v", sub.ExternalID, err)
		return err
	}
	return nil
}

// isDuplicateKey 判断是否为唯一索引冲突
// TranslateError 已开启，同时兜底检查 MySQL 1062
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func toBizSubscription(m *model.Subscription) *biz.Subscription {
	return &biz.Subscription{
		ID:                    m.ID,
		ExternalID:            m.ExternalID,
		SchoolID:              m.SchoolID,
		MembershipID:          m.MembershipID,
		Status:                m.Status,
		StartsAt:              m.StartsAt,
		CancelsAt:             m.CancelsAt,
		CanceledAt:            m.CanceledAt,
		EndedAt:               m.EndedAt,
		CurrentPeriodStartsAt: m.CurrentPeriodStartsAt,
		CurrentPeriodEndsAt:   m.CurrentPeriodEndsAt,
		CustomPrice:           m.CustomPrice,
		CustomMaxUsers:        m.CustomMaxUsers,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func toModelSubscription(sub *biz.Subscription) *model.Subscription {
	return &model.Subscription{
		ID:                    sub.ID,
		ExternalID:            sub.ExternalID,
		SchoolID:              sub.SchoolID,
		MembershipID:          sub.MembershipID,
		Status:                sub.Status,
		StartsAt:              sub.StartsAt,
		CancelsAt:             sub.CancelsAt,
		CanceledAt:            sub.CanceledAt,
		EndedAt:               sub.EndedAt,
		CurrentPeriodStartsAt: sub.CurrentPeriodStartsAt,
		CurrentPeriodEndsAt:   sub.CurrentPeriodEndsAt,
		CustomPrice:           sub.CustomPrice,
		CustomMaxUsers:        sub.CustomMaxUsers,
		CreatedAt:             sub.CreatedAt,
		UpdatedAt:             sub.UpdatedAt,
	}
}
