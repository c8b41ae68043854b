// email_handler.go
package email

import (
	"PayGapDashboard/src/storage"
	"PayGapDashboard/src/utils"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ====================== 邮件处理器实现 ======================

// 原始数据集至少需要的列
var requiredColumns = []string{"Country", "Year"}

// DatasetAttachmentHandler 从目标邮件中取出数据集附件, 校验后保存为原始数据文件
type DatasetAttachmentHandler struct {
	TargetPath string // 原始数据集的保存路径
	SheetName  string // xlsx附件的工作表名, 为空时取第一个
	Charset    string // csv附件的编码

	data          DataFrameWrapper
	logger        *storage.Logger
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewDatasetAttachmentHandler(targetPath, sheetName, charset string, logger *storage.Logger) *DatasetAttachmentHandler {
	return &DatasetAttachmentHandler{
		TargetPath:    targetPath,
		SheetName:     sheetName,
		Charset:       charset,
		logger:        logger,
		processedUIDs: make(map[uint32]bool),
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *DatasetAttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *DatasetAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Data 最近一次成功解析的数据集
func (h *DatasetAttachmentHandler) Data() *DataFrameWrapper {
	return &h.data
}

// Handle 处理单个邮件: 使用第一个与原始数据文件类型相同且能解析的数据表附件
func (h *DatasetAttachmentHandler) Handle(email *Email) error {
	if h.IsProcessed(email.UID) {
		return nil
	}

	h.logger.Info(fmt.Sprintf("处理邮件: %s 发件人: %s 日期: %s",
		email.Subject, email.From, email.Date.Format("2006-01-02 15:04:05")))

	var lastErr error
	for _, att := range email.Attachments {
		if !IsTableAttachment(att.Filename) {
			continue
		}
		if !strings.EqualFold(filepath.Ext(att.Filename), filepath.Ext(h.TargetPath)) {
			lastErr = fmt.Errorf("附件%s与原始数据文件%s类型不一致", att.Filename, filepath.Base(h.TargetPath))
			h.logger.Warning(lastErr.Error())
			continue
		}
		if err := h.data.ReadAttachment(att, h.SheetName, h.Charset); err != nil {
			lastErr = err
			h.logger.Warning(err.Error())
			continue
		}
		if err := checkColumns(h.data.GetDF().Names()); err != nil {
			lastErr = fmt.Errorf("附件%s: %w", att.Filename, err)
			h.logger.Warning(lastErr.Error())
			continue
		}

		if err := h.save(att); err != nil {
			return err
		}
		h.logger.Info(fmt.Sprintf("附件已保存到: %s", h.TargetPath))
		h.markAsProcessed(email.UID)
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("邮件UID %d 中没有数据表附件", email.UID)
}

func checkColumns(names []string) error {
	for _, col := range requiredColumns {
		if !utils.Contains(names, col) {
			return fmt.Errorf("缺少列%s", col)
		}
	}
	return nil
}

// save 原样保存附件到原始数据文件
func (h *DatasetAttachmentHandler) save(att *Attachment) error {
	target := h.TargetPath
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, att.Content, 0644); err != nil {
		return fmt.Errorf("保存附件失败: %w", err)
	}
	return os.Rename(tmp, target)
}
