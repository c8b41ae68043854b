package processor

import (
	"PayGapDashboard/src/utils"
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
)

// 图表数据的列名
const (
	ColSector    = "Sector"
	ColPayGap    = "Pay_gap"
	ColHighlight = "Highlight"
	ColVariables = "Variables"
	ColValues    = "Values"
)

var (
	ErrAmbiguousLatestSlice = errors.New("最新年份存在多行数据")
	ErrInvalidWindow        = errors.New("移动平均窗口必须为正数")
)

// Gapminder 气泡图数据: 年份范围内所有国家的 Country/Year/GDP/Urban_population/所选行业
func (d *Dataset) Gapminder(rangeView dataframe.DataFrame, sector string) (dataframe.DataFrame, error) {
	if !d.hasSector(sector) {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrUnknownSector, sector)
	}
	df := rangeView.Select([]string{ColCountry, ColYear, ColGDP, ColUrban, sector})
	if err := df.Error(); err != nil {
		return df, fmt.Errorf("生成气泡图数据失败: %w", err)
	}
	return df, nil
}

// SectorBars 柱状图数据: 把单个国家最新年份的行业列转置为 Sector/Pay_gap 行,
// 保持原始列顺序. 等于该行最大值或最小值的行标记为高亮.
func (d *Dataset) SectorBars(countryView dataframe.DataFrame) (dataframe.DataFrame, error) {
	slice, _, ok := latestYearSlice(countryView)
	if !ok {
		return barFrame(nil, nil, nil), nil
	}
	if slice.Nrow() > 1 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %d行", ErrAmbiguousLatestSlice, slice.Nrow())
	}

	gaps := make([]float64, len(d.sectors))
	for i, sector := range d.sectors {
		gaps[i] = slice.Col(sector).Elem(0).Float()
	}

	highlight := make([]bool, len(gaps))
	if !allNaN(gaps) {
		hi, lo := floats.Max(gaps), floats.Min(gaps)
		for i, v := range gaps {
			highlight[i] = v == hi || v == lo
		}
	}
	return barFrame(d.Sectors(), gaps, highlight), nil
}

func barFrame(sectors []string, gaps []float64, highlight []bool) dataframe.DataFrame {
	if sectors == nil {
		sectors, gaps, highlight = []string{}, []float64{}, []bool{}
	}
	return dataframe.New(
		series.New(sectors, series.String, ColSector),
		series.New(gaps, series.Float, ColPayGap),
		series.New(highlight, series.Bool, ColHighlight),
	)
}

// SortForDisplay 按 Pay_gap 降序排列, 相同值保持原顺序
func SortForDisplay(bars dataframe.DataFrame) dataframe.DataFrame {
	if bars.Nrow() == 0 {
		return bars
	}
	return bars.Arrange(dataframe.RevSort(ColPayGap))
}

// MovingAverages 趋势图数据: 所选行业的原始值和各窗口的移动平均,
// 转换为 Year/Variables/Values 长表. 窗口不足的行保留, 值为缺失.
func (d *Dataset) MovingAverages(countryView dataframe.DataFrame, sector string, windows []int) (dataframe.DataFrame, error) {
	if !d.hasSector(sector) {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrUnknownSector, sector)
	}
	for _, w := range windows {
		if w <= 0 {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %d", ErrInvalidWindow, w)
		}
	}

	if countryView.Nrow() == 0 {
		return trendFrame(nil, nil, nil), nil
	}
	sorted := countryView.Arrange(dataframe.Sort(ColYear))
	if err := sorted.Error(); err != nil {
		return sorted, fmt.Errorf("按年份排序失败: %w", err)
	}

	years, err := sorted.Col(ColYear).Int()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %v", ErrMissingYear, err)
	}
	base := sorted.Col(sector)

	// 先按变量、再按年份展开
	variables := []string{sector}
	columns := [][]float64{base.Float()}
	for _, w := range windows {
		variables = append(variables, fmt.Sprintf("ma%d", w))
		columns = append(columns, base.Rolling(w).Mean().Float())
	}

	n := len(years) * len(variables)
	outYears := make([]int, 0, n)
	outVars := make([]string, 0, n)
	outVals := make([]float64, 0, n)
	for k, name := range variables {
		for i, y := range years {
			outYears = append(outYears, y)
			outVars = append(outVars, name)
			outVals = append(outVals, columns[k][i])
		}
	}
	return trendFrame(outYears, outVars, outVals), nil
}

func trendFrame(years []int, vars []string, vals []float64) dataframe.DataFrame {
	if years == nil {
		years, vars, vals = []int{}, []string{}, []float64{}
	}
	return dataframe.New(
		series.New(years, series.Int, ColYear),
		series.New(vars, series.String, ColVariables),
		series.New(vals, series.Float, ColValues),
	)
}

func (d *Dataset) hasSector(sector string) bool {
	return utils.Contains(d.sectors, sector)
}
