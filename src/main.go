package main

import (
	"PayGapDashboard/src/config"
	"PayGapDashboard/src/datapush"
	"PayGapDashboard/src/datasource/email"
	"PayGapDashboard/src/datasource/file"
	"PayGapDashboard/src/pipeline"
	"PayGapDashboard/src/processor"
	"PayGapDashboard/src/storage"
	"context"
	"fmt"
	"log"
	"path/filepath"
)

const jsonFolder = "./config"

// 仪表盘: 启动时加载清洗后的数据集, 按筛选条件计算图表数据和关键指标并发布.
func main() {
	cfg, sel, err := config.LoadConfig(jsonFolder, "config.json", "selection.json")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(filepath.Join(cfg.DataDir, cfg.LogName))
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	go func() {
		for entry := range logger.Subscribe() {
			fmt.Print(entry)
		}
	}()

	ds, err := pipeline.LoadDataset(cfg.CleanedPath(), cfg.Encoding)
	if err != nil {
		logger.Fatal(err.Error())
		logger.Close()
		log.Fatal(err)
	}
	opts := ds.Options()
	def := opts.Default()
	logger.Info(fmt.Sprintf("数据集已加载: %d行, %d个国家, %d-%d, 行业%v",
		ds.Nrow(), len(opts.Countries), def.YearLow, def.YearHigh, opts.Sectors))

	dash := pipeline.NewDashboard(ds, cfg.Dashboard.MAWindows, logger, publishers(cfg, logger)...)
	if _, err := dash.Apply(pipeline.SelectionFromConfig(*sel)); err != nil {
		// 配置的筛选条件无效时使用默认条件
		if _, err := dash.Apply(processor.Selection{}); err != nil {
			logger.Close()
			log.Fatal(err)
		}
	}

	if !cfg.Dashboard.Watch {
		logger.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	file.SetupSignalHandler(cancel, func() {
		if err := logger.Reopen(logger.Filename()); err != nil {
			log.Println("重新打开日志文件失败:", err)
		}
	})

	if rotator, err := logger.ScheduleRotate("@every 1m", cfg.LogMaxSize); err != nil {
		logger.Error(err.Error())
	} else {
		defer rotator.Stop()
	}

	selectionPath := filepath.Join(jsonFolder, cfg.Dashboard.SelectionFile)
	if err := dash.Watch(ctx, selectionPath); err != nil {
		logger.Error("监控筛选条件失败: " + err.Error())
	}
	waitForShutdown(ctx, logger)
}

// publishers 按配置组装发布方式, 导出xlsx始终启用
func publishers(cfg *config.Config, logger *storage.Logger) []pipeline.Publisher {
	out := cfg.OutputPath()
	pubs := []pipeline.Publisher{&pipeline.ExcelExporter{Path: out}}

	if robot := datapush.NewDingTalkRobot(cfg.DingTalk.Webhook, cfg.DingTalk.Secret); robot.Enabled() {
		pubs = append(pubs, &pipeline.DingTalkPublisher{Robot: robot})
	}

	mailer := &email.ReportMailer{
		Server:   cfg.SendEmail.Server,
		Username: cfg.SendEmail.Username,
		Password: cfg.SendEmail.Password,
		To:       cfg.SendEmail.To,
		Subject:  cfg.SendEmail.Subject,
	}
	if mailer.Enabled() {
		pubs = append(pubs, &pipeline.MailPublisher{Mailer: mailer, Attachment: out})
	}

	names := make([]string, len(pubs))
	for i, p := range pubs {
		names[i] = p.Name()
	}
	logger.Info(fmt.Sprintf("发布方式: %v", names))
	return pubs
}

func waitForShutdown(ctx context.Context, logger *storage.Logger) {
	<-ctx.Done()
	logger.Info("仪表盘已停止")
	logger.Close()
}
