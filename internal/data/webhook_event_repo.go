package data

import (
	"context"
	"errors"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// webhookEventRepo webhook 事件仓库实现
type webhookEventRepo struct {
	data *Data
	log  *log.Helper
}

// NewWebhookEventRepo 创建 webhook 事件仓库
func NewWebhookEventRepo(data *Data, logger log.Logger) biz.WebhookEventRepo {
	return &webhookEventRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Record 记录已验证的原始事件，重复投递递增接收计数
func (r *webhookEventRepo) Record(ctx context.Context, market string, env *biz.Envelope, payload []byte) error {
	m := &model.WebhookEvent{
		MarketID:     market,
		EventID:      env.ID,
		Type:         env.Type,
		Payload:      string(payload),
		ReceiveCount: 1,
	}
	err := r.data.db.WithContext(ctx).Create(m).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		r.log.Errorf("Failed to record webhook event %s: %v", env.ID, err)
		return err
	}

	// 重复投递
	result := r.data.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("market_id = ? AND event_id = ?", market, env.ID).
		Update("receive_count", gorm.Expr("receive_count + 1"))
	if result.Error != nil {
		r.log.Errorf("Failed to bump receive count for event %s: %v", env.ID, result.Error)
		return result.Error
	}
	r.log.Infof("Webhook event %s redelivered for market %s", env.ID, market)
	return nil
}

// MarkProcessed 标记事件处理完成
func (r *webhookEventRepo) MarkProcessed(ctx context.Context, market, eventID, procErr string) error {
	now := time.Now().UTC()
	result := r.data.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("market_id = ? AND event_id = ?", market, eventID).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": procErr,
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark webhook event %s processed: %v", eventID, result.Error)
		return result.Error
	}
	return nil
}

// PurgeProcessedBefore 删除指定时间之前已处理的事件
func (r *webhookEventRepo) PurgeProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.data.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before).
		Delete(&model.WebhookEvent{})
	if result.Error != nil {
		r.log.Errorf("Failed to purge processed webhook events: %v", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountPending 未处理事件数
func (r *webhookEventRepo) CountPending(ctx context.Context) (int64, error) {
	var total int64
	if err := r.data.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("processed_at IS NULL").
		Count(&total).Error; err != nil {
		r.log.Errorf("Failed to count pending webhook events: %v", err)
		return 0, err
	}
	return total, nil
}
