package main

import (
	"PayGapDashboard/src/config"
	"PayGapDashboard/src/datasource/email"
	"PayGapDashboard/src/datasource/file"
	"PayGapDashboard/src/pipeline"
	"PayGapDashboard/src/storage"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
)

// 缺失值填充任务.
// 没有配置schedule和watch时执行一次后退出, 否则常驻直到收到SIGINT/SIGTERM.
func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	selectionFile := "selection.json"
	cfg, _, err := config.LoadConfig(jsonFolder, jsonFile, selectionFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(filepath.Join(cfg.DataDir, cfg.LogName))
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()
	go echo(logger.Subscribe())

	var mail email.MailService
	if cfg.MailSourceEnabled() {
		mail = email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password)
	}
	job := pipeline.NewCleanJob(cfg, logger, mail)

	if _, err := job.Run(); err != nil {
		logger.Error("清洗失败: " + err.Error())
		if cfg.Clean.Schedule == "" && !cfg.Clean.Watch {
			logger.Close()
			log.Fatal(err)
		}
	}
	if cfg.Clean.Schedule == "" && !cfg.Clean.Watch {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	file.SetupSignalHandler(cancel, func() {
		if err := logger.Reopen(logger.Filename()); err != nil {
			log.Println("重新打开日志文件失败:", err)
		}
	})

	// 日志轮转检查
	if rotator, err := logger.ScheduleRotate("@every 1m", cfg.LogMaxSize); err != nil {
		logger.Error(err.Error())
	} else {
		defer rotator.Stop()
	}

	if cfg.Clean.Schedule != "" {
		c, err := job.Schedule(cfg.Clean.Schedule)
		if err != nil {
			logger.Error(err.Error())
			return
		}
		defer c.Stop()
		logger.Info(fmt.Sprintf("清洗任务已启动(%s)，按Ctrl+C退出", cfg.Clean.Schedule))
	}

	var wg sync.WaitGroup
	if cfg.Clean.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := job.Watch(ctx); err != nil {
				logger.Error(err.Error())
				cancel()
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("清洗任务已停止")
}

// echo 将日志同时输出到控制台
func echo(entries <-chan string) {
	for entry := range entries {
		fmt.Print(entry)
	}
}
