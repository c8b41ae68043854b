// publishers.go
package pipeline

import (
	"PayGapDashboard/src/datapush"
	"PayGapDashboard/src/datasource/email"
	"PayGapDashboard/src/processor"
	"PayGapDashboard/src/utils"
	"fmt"
	"strings"
)

// 导出工作簿中的工作表名
const (
	SheetGapminder = "Gapminder"
	SheetBars      = "SectorComparison"
	SheetTrend     = "MovingAverage"
	SheetMetrics   = "KeyMetrics"
)

const reportTitle = "Dashboard for Gender Pay Gap in Europe"

// ExcelExporter 将图表数据和指标写入一个xlsx工作簿, 每张图一个工作表
type ExcelExporter struct {
	Path string
}

func (e *ExcelExporter) Name() string { return "excel" }

func (e *ExcelExporter) Publish(snap *processor.Snapshot) error {
	sheets := []utils.Sheet{
		{Name: SheetGapminder, Title: snap.Titles.Gapminder, Frame: snap.Gapminder},
		{Name: SheetBars, Title: snap.Titles.Bars, Frame: processor.SortForDisplay(snap.Bars)},
		{Name: SheetTrend, Title: snap.Titles.Trend, Frame: snap.Trend},
		{Name: SheetMetrics, Title: "Key Metrics", Frame: processor.MetricsFrame(snap.Max, snap.Min)},
	}
	return utils.SaveToExcel(sheets, e.Path)
}

// DingTalkPublisher 把关键指标推送到钉钉群
type DingTalkPublisher struct {
	Robot *datapush.DingTalkRobot
}

func (p *DingTalkPublisher) Name() string { return "dingtalk" }

func (p *DingTalkPublisher) Publish(snap *processor.Snapshot) error {
	return p.Robot.SendMarkdown("Key Metrics", MetricsMarkdown(snap))
}

// MailPublisher 发送报告邮件, 附带导出的工作簿
type MailPublisher struct {
	Mailer     *email.ReportMailer
	Attachment string // 为空时不带附件
}

func (p *MailPublisher) Name() string { return "mail" }

func (p *MailPublisher) Publish(snap *processor.Snapshot) error {
	var attachments []string
	if p.Attachment != "" {
		attachments = append(attachments, p.Attachment)
	}
	return p.Mailer.Send(MetricsText(snap), attachments...)
}

// MetricsMarkdown 关键指标的markdown文本
func MetricsMarkdown(snap *processor.Snapshot) string {
	var b strings.Builder
	s := snap.Selection
	fmt.Fprintf(&b, "### %s\n\n", reportTitle)
	fmt.Fprintf(&b, "**Year range:** %d - %d\n\n", s.YearLow, s.YearHigh)
	for _, m := range []processor.ExtremeMetric{snap.Max, snap.Min} {
		fmt.Fprintf(&b, "- %s\n", metricLine(m))
	}
	return b.String()
}

// MetricsText 关键指标的纯文本
func MetricsText(snap *processor.Snapshot) string {
	var b strings.Builder
	s := snap.Selection
	fmt.Fprintf(&b, "%s\n", reportTitle)
	fmt.Fprintf(&b, "Year range: %d - %d, country: %s, sector: %s\n\n", s.YearLow, s.YearHigh, s.Country, s.Sector)
	for _, m := range []processor.ExtremeMetric{snap.Max, snap.Min} {
		fmt.Fprintf(&b, "%s\n", metricLine(m))
	}
	return b.String()
}

func metricLine(m processor.ExtremeMetric) string {
	label := "Maximum pay gap"
	if m.Kind == processor.KindMin {
		label = "Minimum pay gap"
	}
	if !m.Available {
		return fmt.Sprintf("%s: %s", label, m.ValueLabel())
	}
	return fmt.Sprintf("%s: %s (%s, %s, %d), change: %s",
		label, m.ValueLabel(), m.Country, m.Sector, m.Year, m.DeltaLabel())
}
