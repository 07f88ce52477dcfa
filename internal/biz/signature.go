package biz

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/conf"
	"xinyuan_tech/billing-webhook-service/internal/constants"
	"xinyuan_tech/billing-webhook-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// SignatureVerifier 按 market 验证 webhook 签名
// 签名方案：请求头 Signature: t=<unix>,v1=<hex hmac-sha256>
// 被签名内容为 "<t>.<原始请求体>"，密钥为 market 配置的 secret
type SignatureVerifier struct {
	config *conf.Bootstrap
	now    func() time.Time
	log    *log.Helper
}

// NewSignatureVerifier 创建签名验证器
func NewSignatureVerifier(c *conf.Bootstrap, logger log.Logger) *SignatureVerifier {
	return &SignatureVerifier{
		config: c,
		now:    time.Now,
		log:    log.NewHelper(logger),
	}
}

// Verify 验证签名并返回解析后的事件信封
// 任何失败都按鉴权失败处理，不产生副作用
func (v *SignatureVerifier) Verify(ctx context.Context, market string, body []byte, header string) (*Envelope, error) {
	m, ok := v.config.Markets[market]
	if !ok || m == nil {
		v.log.WithContext(ctx).Warnf("webhook for unknown market %q rejected", market)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeMarketNotFound)
	}

	if header == "" {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSignatureMissing)
	}

	ts, candidates, err := parseSignatureHeader(header)
	if err != nil {
		v.log.WithContext(ctx).Warnf("malformed signature header for market %s: %v", market, err)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSignatureMalformed)
	}

	// 防重放窗口，双向生效
	tolerance := v.config.MarketTolerance(market, constants.DefaultSignatureTolerance)
	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		v.log.WithContext(ctx).Warnf("signature timestamp outside tolerance for market %s: age=%v", market, age)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSignatureExpired)
	}

	expected := computeSignature([]byte(m.Secret), ts, body)
	matched := false
	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1 {
			matched = true
		}
	}
	if !matched {
		v.log.WithContext(ctx).Warnf("signature mismatch for market %s", market)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSignatureMismatch)
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		v.log.WithContext(ctx).Warnf("verified payload is not a valid event envelope: %v", err)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeEventMalformed)
	}
	return env, nil
}

// parseSignatureHeader 解析 "t=<unix>,v1=<hex>[,v1=<hex>...]" 形式的签名头
func parseSignatureHeader(header string) (int64, []string, error) {
	var ts int64 = -1
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return 0, nil, fmt.Errorf("invalid signature element %q", part)
		}
		switch kv[0] {
		case "t":
			n, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q", kv[1])
			}
			ts = n
		case "v1":
			candidates = append(candidates, kv[1])
		default:
			// 未知 scheme 忽略，保持对提供方扩展的兼容
		}
	}

	if ts < 0 {
		return 0, nil, fmt.Errorf("timestamp is missing")
	}
	if len(candidates) == 0 {
		return 0, nil, fmt.Errorf("no v1 signature present")
	}
	return ts, candidates, nil
}

// computeSignature 计算 "<t>.<body>" 的 HMAC-SHA256 十六进制摘要
func computeSignature(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
