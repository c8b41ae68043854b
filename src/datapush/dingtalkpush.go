package datapush

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// 常量定义
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
	HTTP_TIMEOUT   = 10 * time.Second
)

// 钉钉 API 响应结构体
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// 机器人markdown消息
type markdownMessage struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"markdown"`
}

// DingTalkRobot 钉钉群自定义机器人
type DingTalkRobot struct {
	Webhook       string // 机器人webhook地址(含access_token)
	Secret        string // 加签密钥, 为空时不加签
	Client        *http.Client
	RetryTimes    int
	RetryInterval time.Duration

	now func() time.Time
}

func NewDingTalkRobot(webhook, secret string) *DingTalkRobot {
	return &DingTalkRobot{
		Webhook:       webhook,
		Secret:        secret,
		Client:        &http.Client{Timeout: HTTP_TIMEOUT},
		RetryTimes:    RETRY_TIMES,
		RetryInterval: RETRY_INTERVAL,
		now:           time.Now,
	}
}

// Enabled 是否配置了webhook
func (r *DingTalkRobot) Enabled() bool {
	return r != nil && r.Webhook != ""
}

// SendMarkdown 发送markdown消息, 失败时按配置重试
func (r *DingTalkRobot) SendMarkdown(title, text string) error {
	var msg markdownMessage
	msg.MsgType = "markdown"
	msg.Markdown.Title = title
	msg.Markdown.Text = text

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %v", err)
	}

	return retry(func() error {
		return r.post(payload)
	}, r.RetryTimes, r.RetryInterval)
}

func (r *DingTalkRobot) post(payload []byte) error {
	target, err := r.signedURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("发送消息失败: HTTP %d", resp.StatusCode)
	}

	var result DingTalkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("发送消息失败: %s", result.ErrMsg)
	}
	return nil
}

// signedURL 加签: sign = base64(HmacSHA256(timestamp + "\n" + secret))
func (r *DingTalkRobot) signedURL() (string, error) {
	if r.Secret == "" {
		return r.Webhook, nil
	}
	u, err := url.Parse(r.Webhook)
	if err != nil {
		return "", fmt.Errorf("webhook地址无效: %v", err)
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	timestamp := strconv.FormatInt(now().UnixMilli(), 10)

	q := u.Query()
	q.Set("timestamp", timestamp)
	q.Set("sign", sign(timestamp, r.Secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// 重试函数
func retry(fn func() error, times int, interval time.Duration) error {
	if times < 1 {
		times = 1
	}
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			time.Sleep(interval)
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %v", times, err)
}
