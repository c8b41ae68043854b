package pipeline

import (
	"PayGapDashboard/src/config"
	"PayGapDashboard/src/datapush"
	"PayGapDashboard/src/datasource/email"
	"PayGapDashboard/src/processor"
	"PayGapDashboard/src/storage"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const rawCSV = `Country,Year,GDP,Urban_population,Services,Industry
A,2019,100,50,10,5
A,2020,110,51,,7
B,2019,200,70,30,
B,2020,210,71,20,9
`

type fakeMail struct {
	emails   []*email.Email
	fetchErr error
}

func (f *fakeMail) Connect() error                             { return nil }
func (f *fakeMail) Disconnect()                                {}
func (f *fakeMail) FetchUnreadEmails() ([]*email.Email, error) { return f.emails, f.fetchErr }

type recorder struct {
	snaps []*processor.Snapshot
	err   error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Publish(snap *processor.Snapshot) error {
	r.snaps = append(r.snaps, snap)
	return r.err
}

func newLogger(t *testing.T) (*storage.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := storage.NewLogger(path)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DataDir:     t.TempDir(),
		RawFile:     "pay_gap_Europe.csv",
		CleanedFile: "data.csv",
	}
	cfg.Email.TargetSubject = "pay gap"
	cfg.Dashboard.OutputFile = "dashboard.xlsx"
	return cfg
}

func TestCleanJobRun(t *testing.T) {
	cfg := newConfig(t)
	require.NoError(t, os.WriteFile(cfg.RawPath(), []byte(rawCSV), 0644))
	logger, _ := newLogger(t)

	report, err := NewCleanJob(cfg, logger, nil).Run()
	require.NoError(t, err)
	assert.Equal(t, cfg.RawPath(), report.Source)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 2, report.Filled)
	assert.Empty(t, report.Unresolved)

	data, err := os.ReadFile(cfg.CleanedPath())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ",Country,Year,GDP"))

	ds, err := LoadDataset(cfg.CleanedPath(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Services", "Industry"}, ds.Sectors())
	assert.Equal(t, []float64{10, 10, 30, 20}, ds.Frame().Col("Services").Float())
	assert.Equal(t, []float64{5, 7, 9, 9}, ds.Frame().Col("Industry").Float())
}

func TestCleanJobReportsUnresolved(t *testing.T) {
	cfg := newConfig(t)
	raw := "Country,Year,GDP,Urban_population,Services\nA,2019,1,1,\nA,2020,1,1,\n"
	require.NoError(t, os.WriteFile(cfg.RawPath(), []byte(raw), 0644))
	logger, logPath := newLogger(t)

	report, err := NewCleanJob(cfg, logger, nil).Run()
	require.NoError(t, err)
	assert.Len(t, report.Unresolved, 2)

	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "WARNING: 第0行 A/Services")
}

func TestCleanJobPrefersMail(t *testing.T) {
	cfg := newConfig(t)
	logger, _ := newLogger(t)
	mail := &fakeMail{emails: []*email.Email{{
		UID:         5,
		Subject:     "pay gap dataset 2024",
		Date:        time.Now(),
		Attachments: []*email.Attachment{{Filename: "pay_gap.csv", Content: []byte(rawCSV)}},
	}}}

	job := NewCleanJob(cfg, logger, mail)
	report, err := job.Run()
	require.NoError(t, err)
	assert.Equal(t, "pay_gap.csv", report.Source)
	assert.Equal(t, 2, report.Filled)

	saved, err := os.ReadFile(cfg.RawPath())
	require.NoError(t, err)
	assert.Equal(t, rawCSV, string(saved))

	// 同一封邮件只处理一次, 之后读取本地文件
	report, err = job.Run()
	require.NoError(t, err)
	assert.Equal(t, cfg.RawPath(), report.Source)
}

func TestCleanJobMailFailureFallsBack(t *testing.T) {
	cfg := newConfig(t)
	require.NoError(t, os.WriteFile(cfg.RawPath(), []byte(rawCSV), 0644))
	logger, logPath := newLogger(t)

	report, err := NewCleanJob(cfg, logger, &fakeMail{fetchErr: errors.New("imap down")}).Run()
	require.NoError(t, err)
	assert.Equal(t, cfg.RawPath(), report.Source)

	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "imap down")
}

func TestCleanJobMissingRaw(t *testing.T) {
	logger, _ := newLogger(t)
	_, err := NewCleanJob(newConfig(t), logger, nil).Run()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCleanJobSchedule(t *testing.T) {
	logger, _ := newLogger(t)
	job := NewCleanJob(newConfig(t), logger, nil)

	_, err := job.Schedule("not a cron spec")
	assert.Error(t, err)

	c, err := job.Schedule("@every 1h")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}

func cleanedDataset(t *testing.T) (*config.Config, *processor.Dataset) {
	t.Helper()
	cfg := newConfig(t)
	require.NoError(t, os.WriteFile(cfg.RawPath(), []byte(rawCSV), 0644))
	logger, _ := newLogger(t)
	_, err := NewCleanJob(cfg, logger, nil).Run()
	require.NoError(t, err)

	ds, err := LoadDataset(cfg.CleanedPath(), "")
	require.NoError(t, err)
	return cfg, ds
}

func TestDashboardApply(t *testing.T) {
	cfg, ds := cleanedDataset(t)
	logger, logPath := newLogger(t)

	rec := &recorder{}
	failing := &recorder{err: errors.New("push rejected")}
	exporter := &ExcelExporter{Path: cfg.OutputPath()}
	d := NewDashboard(ds, []int{2}, logger, exporter, failing, rec)
	assert.Nil(t, d.Current())

	snap, err := d.Apply(processor.Selection{YearLow: 2019, YearHigh: 2020, Country: "B", Sector: "Services"})
	require.NoError(t, err)
	require.Len(t, rec.snaps, 1)
	assert.Same(t, snap, d.Current())
	assert.Equal(t, "B", snap.Max.Country)

	// Publisher失败只记录日志
	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "recorder 发布失败: push rejected")

	f, err := excelize.OpenFile(cfg.OutputPath())
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetGapminder, SheetBars, SheetTrend, SheetMetrics}, f.GetSheetList())

	rows, err := f.GetRows(SheetBars)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Comparison of Pay Gap in Different Sectors in B, 2020", rows[0][0])
	assert.Equal(t, []string{"Sector", "Pay_gap", "Highlight"}, rows[1])
	assert.Equal(t, "Services", rows[2][0])

	rows, err = f.GetRows(SheetTrend)
	require.NoError(t, err)
	// 标题 + 表头 + 2个变量 x 2年
	assert.Len(t, rows, 6)

	// 无效的筛选条件保留上一次结果
	_, err = d.Apply(processor.Selection{Country: "Atlantis"})
	assert.ErrorIs(t, err, processor.ErrUnknownCountry)
	assert.Same(t, snap, d.Current())
	assert.Len(t, rec.snaps, 1)
}

func TestDashboardApplyFile(t *testing.T) {
	_, ds := cleanedDataset(t)
	logger, _ := newLogger(t)
	d := NewDashboard(ds, nil, logger)

	path := filepath.Join(t.TempDir(), "selection.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"country": "A"}`), 0644))

	snap, err := d.ApplyFile(path)
	require.NoError(t, err)
	assert.Equal(t, processor.Selection{YearLow: 2019, YearHigh: 2020, Country: "A", Sector: "Services"}, snap.Selection)
	assert.Equal(t, 8, snap.Trend.Nrow())

	require.NoError(t, os.WriteFile(path, []byte(`{"country": `), 0644))
	_, err = d.ApplyFile(path)
	assert.Error(t, err)
	assert.Same(t, snap, d.Current())
}

func TestDingTalkPublisher(t *testing.T) {
	_, ds := cleanedDataset(t)
	snap, err := processor.Recompute(ds, processor.Selection{Country: "A"}, nil)
	require.NoError(t, err)

	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			Markdown struct {
				Text string `json:"text"`
			} `json:"markdown"`
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &msg))
		text = msg.Markdown.Text
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	p := &DingTalkPublisher{Robot: datapush.NewDingTalkRobot(srv.URL, "")}
	require.NoError(t, p.Publish(snap))
	assert.Equal(t, MetricsMarkdown(snap), text)
	assert.Contains(t, text, "Maximum pay gap: 20.00% (B, Services, 2020), change: -10.00%")
	assert.Contains(t, text, "Minimum pay gap: 7.00% (A, Industry, 2020), change: +2.00%")
}

func TestMetricsTextUnavailable(t *testing.T) {
	snap := &processor.Snapshot{
		Selection: processor.Selection{YearLow: 1990, YearHigh: 1991, Country: "A", Sector: "Services"},
		Max:       processor.ExtremeMetric{Kind: processor.KindMax},
		Min:       processor.ExtremeMetric{Kind: processor.KindMin},
	}
	text := MetricsText(snap)
	assert.Contains(t, text, "Year range: 1990 - 1991, country: A, sector: Services")
	assert.Contains(t, text, "Maximum pay gap: N/A")
	assert.Contains(t, text, "Minimum pay gap: N/A")
}
