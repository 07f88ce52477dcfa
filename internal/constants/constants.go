package constants

import "time"

// 队列相关常量
const (
	// DefaultQueueKeyPrefix 默认队列 key 前缀
	DefaultQueueKeyPrefix = "billing_webhook"
	// QueueReadySuffix 待处理任务列表
	QueueReadySuffix = ":queue:ready"
	// QueueDelayedSuffix 延迟重试任务集合
	QueueDelayedSuffix = ":queue:delayed"
	// QueueDeadSuffix 死信任务列表
	QueueDeadSuffix = ":queue:dead"

	// DefaultQueueConcurrency 默认 worker 并发数
	DefaultQueueConcurrency = 4
	// DefaultMaxAttempts 默认最大处理次数
	DefaultMaxAttempts = 5
	// DefaultRetryBackoff 默认重试退避基础间隔
	DefaultRetryBackoff = 30 * time.Second
	// MaxRetryBackoff 重试退避上限
	MaxRetryBackoff = 15 * time.Minute
	// DequeueBlockTimeout 消费阻塞等待时长
	DequeueBlockTimeout = 5 * time.Second
	// PromoteInterval 延迟任务晋升检查间隔
	PromoteInterval = time.Second
)

// 签名验证相关常量
const (
	// SignatureHeader webhook 签名请求头
	SignatureHeader = "Signature"
	// DefaultSignatureTolerance 默认防重放窗口
	DefaultSignatureTolerance = 5 * time.Minute
)

// 订阅状态（与支付提供方保持一致）
const (
	StatusTrialing          = "trialing"
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
)

// webhook 事件类型
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// 数据保留相关常量
const (
	// DefaultWebhookEventRetention 默认已处理事件保留时长
	DefaultWebhookEventRetention = 30 * 24 * time.Hour
)

// 分布式锁相关常量
const (
	// MaintenanceLockExpiration 定时维护任务锁过期时间
	MaintenanceLockExpiration = 10 * time.Minute
	// MaintenanceLockRetries 定时维护任务锁重试次数
	MaintenanceLockRetries = 1
)
