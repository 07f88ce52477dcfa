package service

import (
	"io"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/constants"
	"xinyuan_tech/billing-webhook-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// WebhookService 支付提供方 webhook 入口
// 同步验证签名，验证通过后落库并入队，立即应答 200；
// 协调工作由 worker 异步完成
type WebhookService struct {
	verifier  *biz.SignatureVerifier
	queue     biz.EventQueue
	eventRepo biz.WebhookEventRepo
	log       *log.Helper
}

// NewWebhookService 创建 webhook 服务实例
func NewWebhookService(
	verifier *biz.SignatureVerifier,
	queue biz.EventQueue,
	eventRepo biz.WebhookEventRepo,
	logger log.Logger,
) *WebhookService {
	return &WebhookService{
		verifier:  verifier,
		queue:     queue,
		eventRepo: eventRepo,
		log:       log.NewHelper(logger),
	}
}

type webhookReply struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HandleWebhook 处理 POST /api/v1/{market}/billing/webhook
// 签名失败返回 403 且不入队；落库或入队失败返回 5xx，
// 由提供方按自身策略重发
func (s *WebhookService) HandleWebhook(ctx http.Context) error {
	market := ctx.Vars().Get("market")
	req := ctx.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to read webhook body: %v", err)
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeEventMalformed)
	}

	env, err := s.verifier.Verify(ctx, market, body, req.Header.Get(constants.SignatureHeader))
	if err != nil {
		return err
	}

	if err := s.eventRepo.Record(ctx, market, env, body); err != nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeEnqueueFailed)
	}

	job := &biz.Job{
		ID:         uuid.New().String(),
		Market:     market,
		Envelope:   env,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeEnqueueFailed)
	}

	s.log.WithContext(ctx).Infof("webhook event %s (%s) accepted for market %s", env.ID, env.Type, market)
	return ctx.Result(200, &webhookReply{Success: true})
}
