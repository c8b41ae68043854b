// data_handler.go
package email

import (
	"PayGapDashboard/src/datasource/file"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
)

// DataFrameWrapper 封装DataFrame并提供线程安全访问
type DataFrameWrapper struct {
	df     dataframe.DataFrame // 存储DataFrame数据
	source string              // 数据来源的附件名
	mu     sync.RWMutex        // 读写锁保证线程安全
}

// GetDF 获取当前DataFrame(线程安全)
func (d *DataFrameWrapper) GetDF() dataframe.DataFrame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.df
}

// SetDF 设置当前DataFrame(线程安全)
func (d *DataFrameWrapper) SetDF(df dataframe.DataFrame, source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.df = df
	d.source = source
}

// Source 当前数据来源的附件名
func (d *DataFrameWrapper) Source() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.source
}

// IsTableAttachment 附件是否为csv或xlsx数据表
func IsTableAttachment(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// ReadAttachment 将附件解析为DataFrame, 成功后替换当前数据
func (d *DataFrameWrapper) ReadAttachment(att *Attachment, sheetName, charset string) error {
	var (
		df  dataframe.DataFrame
		err error
	)
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".csv":
		df, err = file.ParseCSV(bytes.NewReader(att.Content), charset)
	case ".xlsx":
		df, err = file.ParseXLSXBinary(att.Content, sheetName)
	default:
		return fmt.Errorf("不支持的附件类型: %s", att.Filename)
	}
	if err != nil {
		return fmt.Errorf("解析附件%s失败: %w", att.Filename, err)
	}

	d.SetDF(df, att.Filename)
	return nil
}
