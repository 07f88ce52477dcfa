package biz

import (
	"context"
	"time"
)

// Job 排队等待协调的 webhook 事件任务
type Job struct {
	ID         string    `json:"id"`
	Market     string    `json:"market"`
	Envelope   *Envelope `json:"envelope"`
	Attempts   int       `json:"attempts"`
	ReceivedAt time.Time `json:"received_at"`
}

// EventQueue 事件队列接口
// HTTP 入口只负责入队并立即应答，协调工作由 worker 异步完成
type EventQueue interface {
	// Enqueue 任务入队
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue 阻塞获取任务，超时无任务时返回 (nil, nil)
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	// Retry 延迟重新入队
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	// DeadLetter 移入死信队列，等待人工处理
	DeadLetter(ctx context.Context, job *Job) error
	// PromoteDue 将到期的延迟任务晋升回待处理队列，返回晋升数量
	PromoteDue(ctx context.Context) (int, error)
	// DeadLetterSize 死信队列长度
	DeadLetterSize(ctx context.Context) (int64, error)
}
