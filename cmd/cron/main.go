package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/conf"
	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化应用
	app, cleanup, err := wireApp(&bc)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	retention := constants.DefaultWebhookEventRetention
	if bc.Retention != nil && bc.Retention.WebhookEvents != "" {
		if d, err := time.ParseDuration(bc.Retention.WebhookEvents); err == nil && d > 0 {
			retention = d
		}
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 1. 已处理 webhook 事件清理 - 每天凌晨 3 点执行
	_, err = cronScheduler.AddFunc("0 0 3 * * *", func() {
		log.Println("[CRON] Starting webhook event purge...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		count, err := app.maintenanceUsecase.PurgeProcessedEvents(ctx, retention)
		if err != nil {
			log.Printf("[CRON] Error purging webhook events: %v", err)
		} else {
			log.Printf("[CRON] Purged %d processed webhook events", count)
			log.Println("[CRON] Finished webhook event purge")
		}
	})
	if err != nil {
		log.Printf("Failed to add webhook event purge job: %v", err)
	}

	// 2. 队列健康报告 - 每小时执行
	_, err = cronScheduler.AddFunc("0 0 * * * *", func() {
		log.Println("[CRON] Starting queue health report...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deadLetters, pending, err := app.maintenanceUsecase.ReportQueueHealth(ctx)
		if err != nil {
			log.Printf("[CRON] Error reporting queue health: %v", err)
			return
		}
		log.Printf("[CRON] Queue health: dead_letters=%d, pending_events=%d", deadLetters, pending)
		log.Println("[CRON] Finished queue health report")
	})
	if err != nil {
		log.Printf("Failed to add queue health report job: %v", err)
	}

	cronScheduler.Start()
	log.Println("[CRON] Scheduler started")

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[CRON] Shutting down...")
	stopCtx := cronScheduler.Stop()
	<-stopCtx.Done()
	log.Println("[CRON] Shutdown complete")
}
