package datapush

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMarkdown(t *testing.T) {
	var got markdownMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.URL.Query().Get("access_token"))
		assert.Equal(t, "1700000000000", r.URL.Query().Get("timestamp"))
		assert.Equal(t, sign("1700000000000", "SECxyz"), r.URL.Query().Get("sign"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	robot := NewDingTalkRobot(srv.URL+"/robot/send?access_token=abc", "SECxyz")
	robot.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.True(t, robot.Enabled())

	require.NoError(t, robot.SendMarkdown("Key Metrics", "**max** 20.00%"))
	assert.Equal(t, "markdown", got.MsgType)
	assert.Equal(t, "Key Metrics", got.Markdown.Title)
	assert.Equal(t, "**max** 20.00%", got.Markdown.Text)
}

func TestSendMarkdownRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Write([]byte(`{"errcode":130101,"errmsg":"send too fast"}`))
			return
		}
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	robot := NewDingTalkRobot(srv.URL, "")
	robot.RetryInterval = time.Millisecond
	require.NoError(t, robot.SendMarkdown("t", "x"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	robot.RetryTimes = 2
	atomic.StoreInt32(&calls, -10)
	err := robot.SendMarkdown("t", "x")
	assert.ErrorContains(t, err, "send too fast")
}

func TestSign(t *testing.T) {
	// 相同输入得到相同签名, 不同密钥得到不同签名
	assert.Equal(t, sign("1", "a"), sign("1", "a"))
	assert.NotEqual(t, sign("1", "a"), sign("1", "b"))
}

func TestRetry(t *testing.T) {
	n := 0
	err := retry(func() error {
		n++
		return errors.New("boom")
	}, 3, 0)
	assert.Equal(t, 3, n)
	assert.ErrorContains(t, err, "重试 3 次后失败")

	assert.False(t, (&DingTalkRobot{}).Enabled())
}
