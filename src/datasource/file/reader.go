// reader.go
package file

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// 读取时视为缺失值的单元格内容
var nanValues = []string{"", "NA", "NaN", "nan", "<nil>"}

// ReadOptions 读取数据表的参数
type ReadOptions struct {
	Sheet    string // xlsx工作表名, 为空时取第一个
	Encoding string // csv文件编码, 为空时按utf-8处理
}

// ReadTable 按扩展名读取csv或xlsx文件
func ReadTable(path string, opts ReadOptions) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("打开文件失败: %w", err)
		}
		defer f.Close()
		return ParseCSV(f, opts.Encoding)
	case ".xlsx":
		return ReadXLSX(path, opts.Sheet)
	default:
		return dataframe.DataFrame{}, fmt.Errorf("不支持的文件类型: %s", path)
	}
}

// ParseCSV 解析csv数据, 空单元格按缺失值处理
func ParseCSV(r io.Reader, charset string) (dataframe.DataFrame, error) {
	dec, err := lookupEncoding(charset)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if dec != nil {
		r = transform.NewReader(r, dec.NewDecoder())
	}

	df := dataframe.ReadCSV(r, dataframe.NaNValues(nanValues))
	if err := df.Error(); err != nil {
		return df, fmt.Errorf("解析csv失败: %w", err)
	}
	return df, nil
}

// ReadXLSX 使用tealeg/xlsx读取工作表, 第一行为列名
func ReadXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file false: %w", err)
	}
	return sheetToDataFrame(xlFile, sheetName)
}

// ParseXLSXBinary 从内存中的xlsx数据读取工作表
func ParseXLSXBinary(data []byte, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open binary false: %w", err)
	}
	return sheetToDataFrame(xlFile, sheetName)
}

func sheetToDataFrame(xlFile *xlsx.File, sheetName string) (dataframe.DataFrame, error) {
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表")
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		sheet = xlFile.Sheet[sheetName]
		if sheet == nil {
			return dataframe.DataFrame{}, fmt.Errorf("工作表%s不存在", sheetName)
		}
	}

	records := convertSheetToRecords(sheet)
	if len(records) < 2 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表%s没有数据", sheet.Name)
	}
	df := dataframe.LoadRecords(records, dataframe.NaNValues(nanValues))
	if err := df.Error(); err != nil {
		return df, fmt.Errorf("转换为dataframe失败: %w", err)
	}
	return df, nil
}

// convertSheetToRecords 将xlsx.Sheet转换为记录, 短行补齐为空
func convertSheetToRecords(sheet *xlsx.Sheet) [][]string {
	if len(sheet.Rows) == 0 {
		return nil
	}

	// 获取列名(第一行是标题行)
	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}

	records := [][]string{headers}
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		rec := make([]string, len(headers))
		empty := true
		for i, cell := range row.Cells {
			if i < len(headers) && cell != nil { // 确保不超出列数范围
				rec[i] = strings.TrimSpace(cell.Value)
				if rec[i] != "" {
					empty = false
				}
			}
		}
		// 跳过完全空的行
		if !empty {
			records = append(records, rec)
		}
	}
	return records
}

// WriteCleanedCSV 写出清洗后的数据, 第一列为无列名的行号, 缺失值为空单元格
func WriteCleanedCSV(df dataframe.DataFrame, path, charset string) error {
	if err := df.Error(); err != nil {
		return fmt.Errorf("数据表无效: %w", err)
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	out := cleanedRecords(df)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(out); err != nil {
		return fmt.Errorf("写入csv失败: %w", err)
	}

	enc, err := lookupEncoding(charset)
	if err != nil {
		return err
	}
	data := buf.Bytes()
	if enc != nil {
		if data, _, err = transform.Bytes(enc.NewEncoder(), data); err != nil {
			return fmt.Errorf("转换编码失败: %w", err)
		}
	}

	// 先写临时文件再重命名, 避免读取到写了一半的文件
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return os.Rename(tmp, path)
}

// cleanedRecords 按列格式化记录: 浮点数保留全部精度, 缺失值写为空
func cleanedRecords(df dataframe.DataFrame) [][]string {
	names := df.Names()
	out := make([][]string, df.Nrow()+1)
	out[0] = append([]string{""}, names...)
	for i := 1; i < len(out); i++ {
		out[i] = make([]string, len(names)+1)
		out[i][0] = strconv.Itoa(i - 1)
	}

	for j, name := range names {
		col := df.Col(name)
		for i := 0; i < col.Len(); i++ {
			e := col.Elem(i)
			switch {
			case e.IsNA():
				// 留空
			case col.Type() == series.Float:
				out[i+1][j+1] = strconv.FormatFloat(e.Float(), 'f', -1, 64)
			default:
				out[i+1][j+1] = e.String()
			}
		}
	}
	return out
}

// lookupEncoding 查找字符集, utf-8返回nil
func lookupEncoding(charset string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("不支持的编码%s: %w", charset, err)
	}
	return enc, nil
}

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}

// SetupSignalHandler 设置信号处理器: SIGINT/SIGTERM时取消ctx, SIGHUP时调用onHangup(可为nil)
func SetupSignalHandler(cancel context.CancelFunc, onHangup func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				if onHangup != nil {
					onHangup()
				}
				continue
			}
			fmt.Printf("\nReceived signal: %v, shutting down...\n", sig)
			signal.Stop(sigChan)
			cancel()
			return
		}
	}()
}
