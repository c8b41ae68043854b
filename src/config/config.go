package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir     string `json:"data_dir"`     // 数据文件目录
	RawFile     string `json:"raw_file"`     // 原始数据集(csv/xlsx)
	RawSheet    string `json:"raw_sheet"`    // 原始数据集为xlsx时的工作表名
	CleanedFile string `json:"cleaned_file"` // 清洗后的数据集
	Encoding    string `json:"encoding"`     // csv文件编码, 默认utf-8
	LogName     string `json:"log_name"`
	LogMaxSize  string `json:"log_max_size"`

	Clean struct {
		Schedule string `json:"schedule"` // cron表达式, 为空时只执行一次
		Watch    bool   `json:"watch"`    // 原始文件变化时重新清洗
	} `json:"clean"`

	Dashboard struct {
		SelectionFile string `json:"selection_file"` // 筛选条件文件, 相对于配置目录
		OutputFile    string `json:"output_file"`    // 导出的xlsx文件
		MAWindows     []int  `json:"ma_windows"`     // 移动平均窗口
		Watch         bool   `json:"watch"`          // 筛选条件变化时重新计算
	} `json:"dashboard"`

	Email struct {
		Server        string   `json:"server"`         // 邮件服务器地址
		Username      string   `json:"username"`       // 邮箱用户名
		Password      string   `json:"password"`       // 邮箱密码
		TargetSubject string   `json:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email"`

	SendEmail struct {
		Server   string   `json:"server"`   // SMTP服务器地址
		Username string   `json:"username"` // 发件邮箱
		Password string   `json:"password"` // 发件密码
		To       []string `json:"to"`       // 收件人
		Subject  string   `json:"subject"`  // 报告邮件主题
	} `json:"send_email"`

	DingTalk struct {
		Webhook string `json:"webhook"` // 机器人webhook地址
		Secret  string `json:"secret"`  // 加签密钥, 可为空
	} `json:"dingtalk"`
}

// Selection 仪表盘的筛选条件, 零值字段使用默认值
type Selection struct {
	YearLow  int    `json:"year_low"`
	YearHigh int    `json:"year_high"`
	Country  string `json:"country"`
	Sector   string `json:"sector"`
}

var (
	once      sync.Once
	instance  *Config
	selection *Selection
	loadErr   error
)

// LoadConfig 加载进程级配置, 只在第一次调用时读取文件
func LoadConfig(jsonFolder, jsonFile, selectionFile string) (*Config, *Selection, error) {
	once.Do(func() {
		instance, selection, loadErr = Load(jsonFolder, jsonFile, selectionFile)
	})
	return instance, selection, loadErr
}

// Load 读取并解析两个配置文件, 不做缓存
func Load(jsonFolder, jsonFile, selectionFile string) (*Config, *Selection, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	selFile := filepath.Join(jsonFolder, selectionFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	selData, err := readFile(selFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取筛选条件文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	selChan := make(chan *Selection, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseSelection(selData, selChan, errChan)

	cfg, sel, err := waitForResults(cfgChan, selChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	cfg.applyDefaults()
	return cfg, sel, nil
}

// LoadSelection 重新读取筛选条件文件(文件变化时调用)
func LoadSelection(path string) (*Selection, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("解析Selection失败: %w", err)
	}
	return &sel, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseSelection(data []byte, resultChan chan<- *Selection, errChan chan<- error) {
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		errChan <- fmt.Errorf("解析Selection失败: %w", err)
		return
	}
	resultChan <- &sel
}

func waitForResults(
	cfgChan <-chan *Config,
	selChan <-chan *Selection,
	errChan <-chan error,
) (*Config, *Selection, error) {
	var (
		cfg    *Config
		sel    *Selection
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case s := <-selChan:
			sel = s
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || sel == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, sel, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyDefaults 为未配置的字段填充默认值
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.RawFile == "" {
		c.RawFile = "pay_gap_Europe.csv"
	}
	if c.CleanedFile == "" {
		c.CleanedFile = "data.csv"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.Dashboard.SelectionFile == "" {
		c.Dashboard.SelectionFile = "selection.json"
	}
	if c.Dashboard.OutputFile == "" {
		c.Dashboard.OutputFile = "dashboard.xlsx"
	}
	if len(c.Dashboard.MAWindows) == 0 {
		c.Dashboard.MAWindows = []int{3, 5, 7}
	}
	if c.Email.CheckInterval == 0 {
		c.Email.CheckInterval = Duration(time.Hour)
	}
}

// RawPath 原始数据集的完整路径
func (c *Config) RawPath() string {
	return filepath.Join(c.DataDir, c.RawFile)
}

// CleanedPath 清洗后数据集的完整路径
func (c *Config) CleanedPath() string {
	return filepath.Join(c.DataDir, c.CleanedFile)
}

// OutputPath 导出工作簿的完整路径, 绝对路径原样返回
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Dashboard.OutputFile) {
		return c.Dashboard.OutputFile
	}
	return filepath.Join(c.DataDir, c.Dashboard.OutputFile)
}

// MailSourceEnabled 是否从邮箱获取原始数据集
func (c *Config) MailSourceEnabled() bool {
	return c.Email.Server != "" && c.Email.Username != ""
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
