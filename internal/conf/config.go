package conf

import (
	"fmt"
	"time"
)

type Bootstrap struct {
	Server    *Server            `yaml:"server" json:"server"`
	Data      *Data              `yaml:"data" json:"data"`
	Queue     *Queue             `yaml:"queue" json:"queue"`
	Markets   map[string]*Market `yaml:"markets" json:"markets"`
	Retention *Retention         `yaml:"retention" json:"retention"`
	Log       *Log               `yaml:"log" json:"log"`
}

type Server struct {
	Http struct {
		Addr    string `yaml:"addr" json:"addr"`
		Timeout string `yaml:"timeout" json:"timeout"`
	} `yaml:"http" json:"http"`
}

type Data struct {
	Database struct {
		Driver          string `yaml:"driver" json:"driver"`
		Source          string `yaml:"source" json:"source"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	} `yaml:"database" json:"database"`
	Redis struct {
		Addr         string `yaml:"addr" json:"addr"`
		Password     string `yaml:"password" json:"password"`
		Db           int32  `yaml:"db" json:"db"`
		ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
	} `yaml:"redis" json:"redis"`
}

// Queue webhook 事件队列配置
type Queue struct {
	// KeyPrefix Redis key 前缀，用于隔离多套部署
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// Concurrency worker 并发消费协程数
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// MaxAttempts 单个任务最大处理次数，超过后进入死信队列
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// RetryBackoff 重试退避基础间隔，按次数指数递增
	RetryBackoff string `yaml:"retry_backoff" json:"retry_backoff"`
}

// Market 支付提供方的计费隔离区域配置
type Market struct {
	// Secret webhook 签名密钥
	Secret string `yaml:"secret" json:"secret"`
	// Tolerance 签名时间戳允许的最大偏移（防重放窗口）
	Tolerance string `yaml:"tolerance" json:"tolerance"`
}

// Retention 数据保留配置
type Retention struct {
	// WebhookEvents 已处理 webhook 事件的保留时长
	WebhookEvents string `yaml:"webhook_events" json:"webhook_events"`
}

type Log struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Validate validates the configuration
func (b *Bootstrap) Validate() error {
	if b.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if b.Server.Http.Addr == "" {
		return fmt.Errorf("server.http.addr is required")
	}
	if b.Data == nil {
		return fmt.Errorf("data configuration is required")
	}
	if b.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if b.Data.Redis.Addr == "" {
		return fmt.Errorf("data.redis.addr is required")
	}
	if len(b.Markets) == 0 {
		return fmt.Errorf("at least one market configuration is required")
	}
	for name, m := range b.Markets {
		if m == nil || m.Secret == "" {
			return fmt.Errorf("markets.%s.secret is required", name)
		}
		if m.Tolerance != "" {
			if _, err := time.ParseDuration(m.Tolerance); err != nil {
				return fmt.Errorf("markets.%s.tolerance is invalid: %v", name, err)
			}
		}
	}
	if b.Queue != nil && b.Queue.RetryBackoff != "" {
		if _, err := time.ParseDuration(b.Queue.RetryBackoff); err != nil {
			return fmt.Errorf("queue.retry_backoff is invalid: %v", err)
		}
	}
	if b.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	return nil
}

// MarketTolerance 返回指定 market 的防重放窗口，未配置时使用默认值
func (b *Bootstrap) MarketTolerance(name string, def time.Duration) time.Duration {
	m, ok := b.Markets[name]
	if !ok || m.Tolerance == "" {
		return def
	}
	d, err := time.ParseDuration(m.Tolerance)
	if err != nil {
		return def
	}
	return d
}
