// dashboard.go
package pipeline

import (
	"PayGapDashboard/src/config"
	"PayGapDashboard/src/datasource/file"
	"PayGapDashboard/src/processor"
	"PayGapDashboard/src/storage"
	"context"
	"fmt"
	"sync"
	"time"
)

// Publisher 接收每次重新计算的结果
type Publisher interface {
	Name() string
	Publish(snap *processor.Snapshot) error
}

// LoadDataset 启动时加载清洗后的数据集, 之后只读
func LoadDataset(path, charset string) (*processor.Dataset, error) {
	df, err := file.ReadTable(path, file.ReadOptions{Encoding: charset})
	if err != nil {
		return nil, fmt.Errorf("加载数据集失败: %w", err)
	}
	ds, err := processor.NewDataset(df)
	if err != nil {
		return nil, fmt.Errorf("数据集格式错误(%s): %w", path, err)
	}
	return ds, nil
}

// SelectionFromConfig 将配置文件中的筛选条件转换为计算用的筛选条件
func SelectionFromConfig(s config.Selection) processor.Selection {
	return processor.Selection{
		YearLow:  s.YearLow,
		YearHigh: s.YearHigh,
		Country:  s.Country,
		Sector:   s.Sector,
	}
}

// Dashboard 每次筛选条件变化时完整重新计算图表数据和指标, 并交给各个Publisher
type Dashboard struct {
	ds         *processor.Dataset
	windows    []int
	logger     *storage.Logger
	publishers []Publisher

	mu      sync.Mutex
	current *processor.Snapshot
}

func NewDashboard(ds *processor.Dataset, windows []int, logger *storage.Logger, publishers ...Publisher) *Dashboard {
	return &Dashboard{
		ds:         ds,
		windows:    windows,
		logger:     logger,
		publishers: publishers,
	}
}

// Current 最近一次成功计算的结果, 尚未计算时为nil
func (d *Dashboard) Current() *processor.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Apply 按新的筛选条件重新计算.
// 筛选条件无效时保留上一次的结果并返回错误; Publisher失败只记录日志.
func (d *Dashboard) Apply(sel processor.Selection) (*processor.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t1 := time.Now()
	snap, err := processor.Recompute(d.ds, sel, d.windows)
	if err != nil {
		d.logger.Error(fmt.Sprintf("筛选条件无效, 保留上一次结果: %v", err))
		return nil, err
	}
	d.current = snap

	s := snap.Selection
	d.logger.Info(fmt.Sprintf("重新计算完成: %d-%d %s/%s, 耗时%v",
		s.YearLow, s.YearHigh, s.Country, s.Sector, time.Since(t1)))
	for _, m := range []processor.ExtremeMetric{snap.Max, snap.Min} {
		if !m.Available {
			d.logger.Warning(fmt.Sprintf("所选年份范围内没有数据, 无法计算%s指标", m.Kind))
		}
	}

	for _, p := range d.publishers {
		if err := p.Publish(snap); err != nil {
			d.logger.Error(fmt.Sprintf("%s 发布失败: %v", p.Name(), err))
		}
	}
	return snap, nil
}

// ApplyFile 读取筛选条件文件并重新计算
func (d *Dashboard) ApplyFile(path string) (*processor.Snapshot, error) {
	sel, err := config.LoadSelection(path)
	if err != nil {
		d.logger.Error(fmt.Sprintf("读取筛选条件失败, 保留上一次结果: %v", err))
		return nil, err
	}
	return d.Apply(SelectionFromConfig(*sel))
}

// Watch 筛选条件文件变化时重新计算, 阻塞直到ctx取消
func (d *Dashboard) Watch(ctx context.Context, selectionPath string) error {
	monitor, err := file.NewFileMonitor(selectionPath)
	if err != nil {
		return fmt.Errorf("创建文件监控失败: %w", err)
	}
	defer monitor.Close()

	d.logger.Info("开始监控筛选条件: " + monitor.Target())
	return monitor.Watch(ctx, func(path string) {
		d.ApplyFile(path)
	})
}
