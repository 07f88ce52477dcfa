//go:build wireinject
// +build wireinject

package main

import (
	"os"

	"xinyuan_tech/billing-webhook-service/internal/biz"
	"xinyuan_tech/billing-webhook-service/internal/conf"
	"xinyuan_tech/billing-webhook-service/internal/data"
	"xinyuan_tech/billing-webhook-service/internal/worker"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// WorkerApp Worker 应用结构
type WorkerApp struct {
	worker *worker.Worker
}

// wireApp 初始化应用
func wireApp(*conf.Bootstrap) (*WorkerApp, func(), error) {
	panic(wire.Build(
		// Logger
		newLogger,

		// Data 层
		data.ProviderSet,

		// Biz 层
		biz.ProviderSet,

		// Worker
		worker.New,

		// App 结构
		wire.Struct(new(WorkerApp), "*"),
	))
}

// newLogger 创建 logger
func newLogger(c *conf.Bootstrap) log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "billing-webhook-worker",
	)
}
