// data.go
package processor

import (
	"PayGapDashboard/src/utils"
	"errors"
	"fmt"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 数据集固定列, 之后的列均为行业列
const (
	ColCountry = "Country"
	ColYear    = "Year"
	ColGDP     = "GDP"
	ColUrban   = "Urban_population"
)

var leadingColumns = []string{ColCountry, ColYear, ColGDP, ColUrban}

var (
	ErrMissingColumn   = errors.New("缺少必需的列")
	ErrNoSectorColumns = errors.New("数据集中没有行业列")
	ErrMissingYear     = errors.New("Year列存在缺失值")
)

// Dataset 清洗后的只读数据集
type Dataset struct {
	df      dataframe.DataFrame
	sectors []string
}

// NewDataset 校验列结构并创建数据集
func NewDataset(df dataframe.DataFrame) (*Dataset, error) {
	df, err := normalizeTable(df)
	if err != nil {
		return nil, err
	}

	names := df.Names()
	for i, col := range leadingColumns {
		if i >= len(names) || names[i] != col {
			return nil, fmt.Errorf("%w: 第%d列应为%s", ErrMissingColumn, i+1, col)
		}
	}
	if len(names) == len(leadingColumns) {
		return nil, ErrNoSectorColumns
	}

	sectors := make([]string, len(names)-len(leadingColumns))
	copy(sectors, names[len(leadingColumns):])

	return &Dataset{df: df, sectors: sectors}, nil
}

// normalizeTable 去掉导出时带的索引列, 并统一列类型:
// Country为字符串, Year为整数, 其余列为浮点数
func normalizeTable(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := df.Error(); err != nil {
		return df, fmt.Errorf("数据表无效: %w", err)
	}

	names := df.Names()
	if len(names) > 1 && names[0] != ColCountry && names[1] == ColCountry {
		df = df.Drop(0)
	}

	for _, col := range []string{ColCountry, ColYear} {
		if !utils.HasColumn(df, col) {
			return df, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	for _, name := range df.Names() {
		col := df.Col(name)
		switch name {
		case ColCountry:
			if col.Type() != series.String {
				df = df.Mutate(series.New(col.Records(), series.String, name))
			}
		case ColYear:
			years, err := col.Int()
			if err != nil {
				return df, fmt.Errorf("%w: %v", ErrMissingYear, err)
			}
			if col.Type() != series.Int {
				df = df.Mutate(series.New(years, series.Int, name))
			}
		default:
			if col.Type() != series.Float {
				df = df.Mutate(series.New(col.Float(), series.Float, name))
			}
		}
	}

	if err := df.Error(); err != nil {
		return df, fmt.Errorf("数据表类型转换失败: %w", err)
	}
	return df, nil
}

// Frame 返回底层DataFrame, 调用方不得修改
func (d *Dataset) Frame() dataframe.DataFrame {
	return d.df
}

// Nrow 数据行数
func (d *Dataset) Nrow() int {
	return d.df.Nrow()
}

// Sectors 行业列名, 保持原始列顺序
func (d *Dataset) Sectors() []string {
	out := make([]string, len(d.sectors))
	copy(out, d.sectors)
	return out
}

// Years 去重后升序排列的年份
func (d *Dataset) Years() []int {
	years, _ := d.df.Col(ColYear).Int()
	seen := make(map[int]bool, len(years))
	var out []int
	for _, y := range years {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out
}

// Countries 去重后的国家, 按首次出现的顺序
func (d *Dataset) Countries() []string {
	col := d.df.Col(ColCountry)
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			continue
		}
		c := e.String()
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Options 可供选择的筛选项
func (d *Dataset) Options() Options {
	return Options{
		Years:     d.Years(),
		Countries: d.Countries(),
		Sectors:   d.Sectors(),
	}
}

// valueAt 查找某国家某年份某行业的值, 没有对应行或值缺失时返回false
func (d *Dataset) valueAt(country, sector string, year int) (float64, bool) {
	rows := d.df.FilterAggregation(dataframe.And,
		dataframe.F{Colname: ColCountry, Comparator: series.Eq, Comparando: country},
		dataframe.F{Colname: ColYear, Comparator: series.Eq, Comparando: year},
	)
	if rows.Nrow() == 0 {
		return 0, false
	}
	e := rows.Col(sector).Elem(0)
	if e.IsNA() {
		return 0, false
	}
	return e.Float(), true
}

// latestYearSlice 取视图中最大年份的所有行
func latestYearSlice(view dataframe.DataFrame) (dataframe.DataFrame, int, bool) {
	if view.Nrow() == 0 {
		return view, 0, false
	}
	latest := int(view.Col(ColYear).Max())
	slice := view.Filter(
		dataframe.F{Colname: ColYear, Comparator: series.Eq, Comparando: latest},
	)
	return slice, latest, true
}

// yearBounds 视图中的最小、最大年份
func yearBounds(view dataframe.DataFrame) (int, int, bool) {
	if view.Nrow() == 0 {
		return 0, 0, false
	}
	col := view.Col(ColYear)
	return int(col.Min()), int(col.Max()), true
}
