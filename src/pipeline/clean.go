// clean.go
package pipeline

import (
	"PayGapDashboard/src/config"
	"PayGapDashboard/src/datasource/email"
	"PayGapDashboard/src/datasource/file"
	"PayGapDashboard/src/processor"
	"PayGapDashboard/src/storage"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/robfig/cron"
)

// CleanReport 一次清洗的结果
type CleanReport struct {
	Source     string // 原始数据来源(文件路径或邮件附件名)
	Output     string // 清洗后数据集的路径
	Rows       int
	Filled     int
	Unresolved []processor.MissingCell
	Elapsed    time.Duration
}

// CleanJob 缺失值填充任务: 读取原始数据集, 按国家均值填充, 写出清洗后的数据集.
// 多次触发时串行执行.
type CleanJob struct {
	cfg     *config.Config
	logger  *storage.Logger
	mail    email.MailService // 为nil时只读取本地文件
	handler *email.DatasetAttachmentHandler
	mu      sync.Mutex
}

func NewCleanJob(cfg *config.Config, logger *storage.Logger, mail email.MailService) *CleanJob {
	return &CleanJob{
		cfg:     cfg,
		logger:  logger,
		mail:    mail,
		handler: email.NewDatasetAttachmentHandler(cfg.RawPath(), cfg.RawSheet, cfg.Encoding, logger),
	}
}

// Run 执行一次清洗
func (j *CleanJob) Run() (*CleanReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	t1 := time.Now()
	raw, source, err := j.loadRaw()
	if err != nil {
		return nil, err
	}

	res, err := processor.Impute(raw)
	if err != nil {
		return nil, fmt.Errorf("填充缺失值失败(%s): %w", source, err)
	}
	for _, cell := range res.Unresolved {
		j.logger.Warning(fmt.Sprintf("%s 没有可用的国家均值, 保留为缺失值", cell))
	}

	output := j.cfg.CleanedPath()
	if err := file.WriteCleanedCSV(res.Frame, output, j.cfg.Encoding); err != nil {
		return nil, fmt.Errorf("写出清洗结果失败: %w", err)
	}

	report := &CleanReport{
		Source:     source,
		Output:     output,
		Rows:       res.Frame.Nrow(),
		Filled:     res.Filled,
		Unresolved: res.Unresolved,
		Elapsed:    time.Since(t1),
	}
	j.logger.Info(fmt.Sprintf("清洗完成: %s -> %s, %d行, 填充%d个, 未填充%d个, 耗时%v",
		report.Source, report.Output, report.Rows, report.Filled, len(report.Unresolved), report.Elapsed))
	return report, nil
}

// loadRaw 优先使用邮箱中的最新数据集, 没有新邮件或获取失败时读取本地文件
func (j *CleanJob) loadRaw() (dataframe.DataFrame, string, error) {
	if j.mail != nil {
		df, source, err := j.fetchFromMail()
		if err != nil {
			j.logger.Warning("从邮箱获取数据集失败, 使用本地文件: " + err.Error())
		} else if source != "" {
			return df, source, nil
		}
	}

	path := j.handler.TargetPath
	df, err := file.ReadTable(path, file.ReadOptions{Sheet: j.cfg.RawSheet, Encoding: j.cfg.Encoding})
	if err != nil {
		return df, path, fmt.Errorf("读取原始数据集失败: %w", err)
	}
	return df, path, nil
}

func (j *CleanJob) fetchFromMail() (dataframe.DataFrame, string, error) {
	target, err := email.CheckAndProcessEmails(j.mail, j.cfg.Email.TargetSubject, j.logger)
	if err != nil {
		return dataframe.DataFrame{}, "", err
	}
	if target == nil || j.handler.IsProcessed(target.UID) {
		return dataframe.DataFrame{}, "", nil
	}
	if err := j.handler.Handle(target); err != nil {
		return dataframe.DataFrame{}, "", fmt.Errorf("处理邮件失败(UID:%d): %w", target.UID, err)
	}
	data := j.handler.Data()
	return data.GetDF(), data.Source(), nil
}

// Schedule 按cron表达式定时清洗, 返回已启动的调度器
func (j *CleanJob) Schedule(spec string) (*cron.Cron, error) {
	if _, err := cron.Parse(spec); err != nil {
		return nil, fmt.Errorf("无效的cron表达式%q: %w", spec, err)
	}

	c := cron.New()
	err := c.AddFunc(spec, func() {
		j.logger.Info(fmt.Sprintf("开始定时清洗(%s)...", spec))
		if _, err := j.Run(); err != nil {
			j.logger.Error("定时清洗失败: " + err.Error())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("创建定时任务失败: %w", err)
	}
	c.Start()
	return c, nil
}

// Watch 原始数据文件变化时重新清洗, 阻塞直到ctx取消
func (j *CleanJob) Watch(ctx context.Context) error {
	monitor, err := file.NewFileMonitor(j.handler.TargetPath)
	if err != nil {
		return fmt.Errorf("创建文件监控失败: %w", err)
	}
	defer monitor.Close()

	j.logger.Info("开始监控原始数据集: " + monitor.Target())
	return monitor.Watch(ctx, func(path string) {
		j.logger.Info("原始数据集已更新: " + path)
		if _, err := j.Run(); err != nil {
			j.logger.Error("重新清洗失败: " + err.Error())
		}
	})
}
