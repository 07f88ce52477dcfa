package biz

import (
	"encoding/json"
	"time"
)

// Envelope 已验证的 webhook 事件信封
type Envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEnvelope 解析事件信封
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// SubscriptionPayload 支付提供方订阅对象中本服务消费的字段子集
// 时间字段均为秒级 Unix 时间戳，0 表示未设置
type SubscriptionPayload struct {
	ID                 string   `json:"id"`
	Customer           string   `json:"customer"`
	Status             string   `json:"status"`
	StartDate          int64    `json:"start_date"`
	CancelAt           int64    `json:"cancel_at"`
	CanceledAt         int64    `json:"canceled_at"`
	EndedAt            int64    `json:"ended_at"`
	CurrentPeriodStart int64    `json:"current_period_start"`
	CurrentPeriodEnd   int64    `json:"current_period_end"`
	CustomPrice        *float64 `json:"custom_price"`
	CustomMaxUsers     *int     `json:"custom_max_users"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID 返回首个 line item 的外部价格ID
func (p *SubscriptionPayload) PriceID() string {
	if len(p.Items.Data) == 0 {
		return ""
	}
	return p.Items.Data[0].Price.ID
}

// unixTime 秒级时间戳转 UTC 时间，0 返回 nil
func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
