package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// 协调结果消息（用于响应体和可观测性）
const (
	OutcomeSchoolNotFound     = "The associated school not found."
	OutcomeMembershipNotFound = "The associated membership not found."
	OutcomeAlreadyExists      = "The subscription already exists."
	OutcomeAlreadyCanceled    = "The subscription has been canceled."
	OutcomeEventIgnored       = "The event type is ignored."
	OutcomePayloadMalformed   = "The event payload is malformed."
)

// Outcome 单个事件的协调结果
// Retry=false 且 Success=false 表示终态失败（不重试）；
// Retry=true 表示基础设施类临时失败，任务应按退避策略重试
type Outcome struct {
	Success bool
	Retry   bool
	Message string
}

func terminalOutcome(message string) Outcome {
	return Outcome{Success: true, Message: message}
}

func retryOutcome(err error) Outcome {
	return Outcome{Success: false, Retry: true, Message: err.Error()}
}

// ReconcileUsecase 订阅状态协调业务逻辑
// 以支付提供方为订阅状态的唯一事实来源，将其生命周期事件幂等地
// 合并进本地 subscription 表。不要求事件有序到达或恰好一次送达
type ReconcileUsecase struct {
	schoolRepo     SchoolRepo
	membershipRepo MembershipRepo
	subRepo        SubscriptionRepo
	log            *log.Helper
}

// NewReconcileUsecase 创建协调业务用例
func NewReconcileUsecase(
	schoolRepo SchoolRepo,
	membershipRepo MembershipRepo,
	subRepo SubscriptionRepo,
	logger log.Logger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		schoolRepo:     schoolRepo,
		membershipRepo: membershipRepo,
		subRepo:        subRepo,
		log:            log.NewHelper(logger),
	}
}

// Dispatch 按事件类型路由到处理器
// 未识别的事件类型不是错误：记录后按成功处理，避免提供方重发
func (uc *ReconcileUsecase) Dispatch(ctx context.Context, env *Envelope) Outcome {
	switch {
	case strings.HasSuffix(env.Type, constants.EventSubscriptionCreated):
		return uc.withPayload(ctx, env, uc.handleCreated)
	case strings.HasSuffix(env.Type, constants.EventSubscriptionUpdated):
		return uc.withPayload(ctx, env, uc.handleUpdated)
	case strings.HasSuffix(env.Type, constants.EventSubscriptionDeleted):
		return uc.withPayload(ctx, env, uc.handleDeleted)
	default:
		uc.log.WithContext(ctx).Infof("ignoring event %s with unhandled type %s", env.ID, env.Type)
		return terminalOutcome(OutcomeEventIgnored)
	}
}

// withPayload 解析订阅对象后调用处理器
// 无法解析的载荷是终态失败：schema 不匹配不会随时间自愈，
// 原始事件已落库，可人工修复后重放
func (uc *ReconcileUsecase) withPayload(ctx context.Context, env *Envelope, handle func(context.Context, *SubscriptionPayload) Outcome) Outcome {
	var payload SubscriptionPayload
	if err := json.Unmarshal(env.Data.Object, &payload); err != nil {
		uc.log.WithContext(ctx).Errorf("event %s payload unmarshal failed: %v", env.ID, err)
		return Outcome{Success: false, Message: OutcomePayloadMalformed}
	}
	if payload.ID == "" {
		uc.log.WithContext(ctx).Errorf("event %s payload has no subscription id", env.ID)
		return Outcome{Success: false, Message: OutcomePayloadMalformed}
	}
	return handle(ctx, &payload)
}

// resolve 三类事件共享的两步查找
// 学校或套餐不存在是终态 no-op 而不是错误：要么是噪声事件，
// 要么是对端数据尚未同步，无限重试只会造成重试风暴
func (uc *ReconcileUsecase) resolve(ctx context.Context, payload *SubscriptionPayload) (*School, *Membership, *Outcome) {
	school, err := uc.schoolRepo.GetByCustomerID(ctx, payload.Customer)
	if err != nil {
		o := retryOutcome(err)
		return nil, nil, &o
	}
	if school == nil {
		uc.log.WithContext(ctx).Infof("no school for external customer %s, skipping subscription %s", payload.Customer, payload.ID)
		o := terminalOutcome(OutcomeSchoolNotFound)
		return nil, nil, &o
	}

	membership, err := uc.membershipRepo.GetByPriceID(ctx, payload.PriceID())
	if err != nil {
		o := retryOutcome(err)
		return nil, nil, &o
	}
	if membership == nil {
		uc.log.WithContext(ctx).Infof("no membership for external price %s, skipping subscription %s", payload.PriceID(), payload.ID)
		o := terminalOutcome(OutcomeMembershipNotFound)
		return nil, nil, &o
	}

	return school, membership, nil
}

// handleCreated 幂等创建
func (uc *ReconcileUsecase) handleCreated(ctx context.Context, payload *SubscriptionPayload) Outcome {
	school, membership, failed := uc.resolve(ctx, payload)
	if failed != nil {
		return *failed
	}

	existing, err := uc.subRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		return retryOutcome(err)
	}
	if existing != nil {
		// 提供方可能重复投递，首次成功处理的字段保持不变
		uc.log.WithContext(ctx).Infof("subscription %s already exists, skipping create", payload.ID)
		return terminalOutcome(OutcomeAlreadyExists)
	}

	sub := newSubscription(school, membership, payload)
	if err := uc.subRepo.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrSubscriptionExists) {
			// 并发插入输掉了唯一索引竞争，等价于"已存在"
			uc.log.WithContext(ctx).Infof("subscription %s created concurrently, skipping create", payload.ID)
			return terminalOutcome(OutcomeAlreadyExists)
		}
		return retryOutcome(err)
	}

	uc.log.WithContext(ctx).Infof("subscription %s created for school %d", payload.ID, school.ID)
	return Outcome{Success: true}
}

// handleUpdated 更新，并兼容"updated 是本系统收到的第一个事件"的情况
func (uc *ReconcileUsecase) handleUpdated(ctx context.Context, payload *SubscriptionPayload) Outcome {
	school, membership, failed := uc.resolve(ctx, payload)
	if failed != nil {
		return *failed
	}

	existing, err := uc.subRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		return retryOutcome(err)
	}

	if existing == nil {
		// created 事件可能丢失或尚未处理，按创建处理。
		// 提供方报告的 status 字段是生命周期状态的权威来源：
		// 即便 canceled_at 非空，只要 status 不是 canceled 就按原样落库，
		// 字段均为逐字拷贝，后续 deleted 事件仍会把记录置为 canceled
		sub := newSubscription(school, membership, payload)
		if err := uc.subRepo.Create(ctx, sub); err != nil {
			if errors.Is(err, ErrSubscriptionExists) {
				// 并发创建后回退为更新
				existing, err = uc.subRepo.GetByExternalID(ctx, payload.ID)
				if err != nil {
					return retryOutcome(err)
				}
				if existing == nil {
					return retryOutcome(fmt.Errorf("subscription %s vanished after duplicate insert", payload.ID))
				}
				return uc.refresh(ctx, existing, membership, payload)
			}
			return retryOutcome(err)
		}
		uc.log.WithContext(ctx).Infof("subscription %s created from update event for school %d", payload.ID, school.ID)
		return Outcome{Success: true}
	}

	return uc.refresh(ctx, existing, membership, payload)
}

// refresh 用事件载荷整体覆盖状态、套餐和日期字段
// school_id 和 external_id 不可变更；canceled 是终态，
// 晚到的 update 事件不得复活已取消的订阅
func (uc *ReconcileUsecase) refresh(ctx context.Context, existing *Subscription, membership *Membership, payload *SubscriptionPayload) Outcome {
	if existing.Status == constants.StatusCanceled {
		uc.log.WithContext(ctx).Infof("subscription %s is canceled, skipping update", payload.ID)
		return terminalOutcome(OutcomeAlreadyCanceled)
	}

	existing.MembershipID = &membership.ID
	existing.Status = payload.Status
	existing.StartsAt = unixTime(payload.StartDate)
	existing.CancelsAt = unixTime(payload.CancelAt)
	existing.CanceledAt = unixTime(payload.CanceledAt)
	existing.EndedAt = unixTime(payload.EndedAt)
	existing.CurrentPeriodStartsAt = unixTime(payload.CurrentPeriodStart)
	existing.CurrentPeriodEndsAt = unixTime(payload.CurrentPeriodEnd)
	existing.CustomPrice = payload.CustomPrice
	existing.CustomMaxUsers = payload.CustomMaxUsers

	if err := uc.subRepo.Update(ctx, existing); err != nil {
		return retryOutcome(err)
	}

	uc.log.WithContext(ctx).Infof("subscription %s refreshed, status=%s", payload.ID, payload.Status)
	return Outcome{Success: true}
}

// handleDeleted 取消订阅
// 取消是状态变更而不是删除行；从未见过的订阅也要留下 canceled 记录
func (uc *ReconcileUsecase) handleDeleted(ctx context.Context, payload *SubscriptionPayload) Outcome {
	school, membership, failed := uc.resolve(ctx, payload)
	if failed != nil {
		return *failed
	}

	existing, err := uc.subRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		return retryOutcome(err)
	}

	if existing == nil {
		// created 事件从未到达，直接以 canceled 状态落库，
		// 避免先建活跃行再改写的双写
		sub := newSubscription(school, membership, payload)
		sub.Status = constants.StatusCanceled
		if err := uc.subRepo.Create(ctx, sub); err != nil {
			if errors.Is(err, ErrSubscriptionExists) {
				existing, err = uc.subRepo.GetByExternalID(ctx, payload.ID)
				if err != nil {
					return retryOutcome(err)
				}
				if existing == nil {
					return retryOutcome(fmt.Errorf("subscription %s vanished after duplicate insert", payload.ID))
				}
				return uc.cancel(ctx, existing, payload)
			}
			return retryOutcome(err)
		}
		uc.log.WithContext(ctx).Infof("subscription %s created directly in canceled state for school %d", payload.ID, school.ID)
		return Outcome{Success: true}
	}

	return uc.cancel(ctx, existing, payload)
}

// cancel 将现有订阅置为 canceled
func (uc *ReconcileUsecase) cancel(ctx context.Context, existing *Subscription, payload *SubscriptionPayload) Outcome {
	if existing.Status == constants.StatusCanceled {
		// 重复的取消事件无害
		uc.log.WithContext(ctx).Infof("subscription %s is already canceled, skipping", payload.ID)
		return terminalOutcome(OutcomeAlreadyCanceled)
	}

	existing.Status = constants.StatusCanceled
	existing.CanceledAt = unixTime(payload.CanceledAt)
	existing.CancelsAt = unixTime(payload.CancelAt)
	existing.EndedAt = unixTime(payload.EndedAt)

	if err := uc.subRepo.Update(ctx, existing); err != nil {
		return retryOutcome(err)
	}

	uc.log.WithContext(ctx).Infof("subscription %s canceled", payload.ID)
	return Outcome{Success: true}
}

// newSubscription 从事件载荷构造订阅记录，字段逐字拷贝不做二次计算
func newSubscription(school *School, membership *Membership, payload *SubscriptionPayload) *Subscription {
	membershipID := membership.ID
	return &Subscription{
		ExternalID:            payload.ID,
		SchoolID:              school.ID,
		MembershipID:          &membershipID,
		Status:                payload.Status,
		StartsAt:              unixTime(payload.StartDate),
		CancelsAt:             unixTime(payload.CancelAt),
		CanceledAt:            unixTime(payload.CanceledAt),
		EndedAt:               unixTime(payload.EndedAt),
		CurrentPeriodStartsAt: unixTime(payload.CurrentPeriodStart),
		CurrentPeriodEndsAt:   unixTime(payload.CurrentPeriodEnd),
		CustomPrice:           payload.CustomPrice,
		CustomMaxUsers:        payload.CustomMaxUsers,
	}
}
