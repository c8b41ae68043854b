package processor

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
)

// NoPriorData 上一年没有对应数据时显示的提示
const NoPriorData = "no data from the previous year"

const (
	KindMax = "max"
	KindMin = "min"
)

// ExtremeMetric 最新年份中薪酬差距的最大值或最小值
type ExtremeMetric struct {
	Kind      string
	Available bool
	Value     float64
	Country   string
	Sector    string
	Year      int

	HasPrior   bool
	PriorValue float64
	Delta      float64
}

// ValueLabel 指标值, 保留两位小数
func (m ExtremeMetric) ValueLabel() string {
	if !m.Available {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", m.Value)
}

// DeltaLabel 与上一年的差值, 带符号保留两位小数; 上一年无数据时返回提示
func (m ExtremeMetric) DeltaLabel() string {
	if !m.Available || !m.HasPrior {
		return NoPriorData
	}
	return fmt.Sprintf("%+.2f%%", m.Delta)
}

// Extremes 在年份范围视图的最新年份中, 扫描所有国家的全部行业列,
// 返回最大值和最小值. 多个单元格相同时取按行优先顺序的第一个.
func (d *Dataset) Extremes(rangeView dataframe.DataFrame) (ExtremeMetric, ExtremeMetric) {
	maxM := ExtremeMetric{Kind: KindMax}
	minM := ExtremeMetric{Kind: KindMin}

	slice, year, ok := latestYearSlice(rangeView)
	if !ok || slice.Nrow() == 0 {
		return maxM, minM
	}

	// 按行优先展开行业列
	cols := make([][]float64, len(d.sectors))
	for j, sector := range d.sectors {
		cols[j] = slice.Col(sector).Float()
	}
	nRows, nCols := slice.Nrow(), len(d.sectors)
	flat := make([]float64, 0, nRows*nCols)
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			flat = append(flat, cols[j][i])
		}
	}
	if allNaN(flat) {
		return maxM, minM
	}

	countries := slice.Col(ColCountry)
	locate := func(m ExtremeMetric, idx int) ExtremeMetric {
		r, c := idx/nCols, idx%nCols
		m.Available = true
		m.Value = flat[idx]
		m.Country = countries.Elem(r).String()
		m.Sector = d.sectors[c]
		m.Year = year
		if prior, ok := d.valueAt(m.Country, m.Sector, year-1); ok {
			m.HasPrior = true
			m.PriorValue = prior
			m.Delta = m.Value - prior
		}
		return m
	}

	return locate(maxM, floats.MaxIdx(flat)), locate(minM, floats.MinIdx(flat))
}

func allNaN(s []float64) bool {
	for _, v := range s {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// MetricsFrame 将两个指标整理为一张表, 用于导出
func MetricsFrame(metrics ...ExtremeMetric) dataframe.DataFrame {
	records := [][]string{{"Metric", "Value", "Country", "Sector", "Year", "Prior", "Delta"}}
	for _, m := range metrics {
		if !m.Available {
			records = append(records, []string{m.Kind, "N/A", "", "", "", "", NoPriorData})
			continue
		}
		prior := NoPriorData
		if m.HasPrior {
			prior = fmt.Sprintf("%.2f", m.PriorValue)
		}
		records = append(records, []string{
			m.Kind,
			fmt.Sprintf("%.2f", m.Value),
			m.Country,
			m.Sector,
			fmt.Sprint(m.Year),
			prior,
			m.DeltaLabel(),
		})
	}
	return dataframe.LoadRecords(records, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
}
