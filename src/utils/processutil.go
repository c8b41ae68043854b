package utils

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

// Sheet 导出到工作簿中的一张表
type Sheet struct {
	Name  string
	Title string // 非空时写在第一行, 表头下移一行
	Frame dataframe.DataFrame
}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// SaveToExcel 将多个DataFrame分别写入同一个工作簿的不同工作表
func SaveToExcel(sheets []Sheet, filePath string) error {
	if len(sheets) == 0 {
		return fmt.Errorf("没有需要保存的工作表")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				return fmt.Errorf("重命名工作表失败: %w", err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("创建工作表%s失败: %w", sh.Name, err)
		}

		if err := writeFrame(f, sh); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	// 保存文件
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func writeFrame(f *excelize.File, sh Sheet) error {
	df := sh.Frame
	if err := df.Error(); err != nil {
		return fmt.Errorf("工作表%s的数据无效: %w", sh.Name, err)
	}

	headerRow := 1
	if sh.Title != "" {
		if err := f.SetCellValue(sh.Name, "A1", sh.Title); err != nil {
			return err
		}
		headerRow = 2
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sh.Name, cell, name); err != nil {
			return err
		}
	}

	// 写入数据, 缺失值留空
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			val := col.Val(rowIdx)
			if val == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+headerRow+1)
			if err := f.SetCellValue(sh.Name, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}
