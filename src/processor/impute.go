package processor

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/montanaflynn/stats"
)

// MissingCell 无法填充的单元格(该国家此列没有任何非空值)
type MissingCell struct {
	Row     int
	Country string
	Column  string
}

func (m MissingCell) String() string {
	return fmt.Sprintf("第%d行 %s/%s", m.Row, m.Country, m.Column)
}

// ImputeResult 缺失值填充结果
type ImputeResult struct {
	Frame      dataframe.DataFrame
	Filled     int
	Unresolved []MissingCell
}

// Impute 按国家分组, 用该国家自身的列均值填充缺失值.
// 输出与输入的行列顺序一致; 均值无定义的单元格保持缺失并记录在Unresolved中.
func Impute(raw dataframe.DataFrame) (ImputeResult, error) {
	df, err := normalizeTable(raw)
	if err != nil {
		return ImputeResult{}, err
	}

	// 1. 按国家分组, 记录每组的行号
	countries := df.Col(ColCountry)
	groups := make(map[string][]int)
	for i := 0; i < countries.Len(); i++ {
		e := countries.Elem(i)
		if e.IsNA() {
			continue
		}
		groups[e.String()] = append(groups[e.String()], i)
	}

	result := ImputeResult{}
	for _, name := range df.Names() {
		if name == ColCountry || name == ColYear {
			continue
		}
		col := df.Col(name)
		if !col.HasNaN() {
			continue
		}

		// 2. 计算每个国家此列的均值
		means := make(map[string]float64, len(groups))
		for country, rows := range groups {
			means[country] = groupMean(col.Subset(rows))
		}

		// 3. 用本国均值填充缺失单元格
		values := col.Float()
		for i, v := range values {
			if !math.IsNaN(v) {
				continue
			}
			country := countries.Elem(i)
			mean := math.NaN()
			if !country.IsNA() {
				mean = means[country.String()]
			}
			if math.IsNaN(mean) {
				result.Unresolved = append(result.Unresolved, MissingCell{
					Row:     i,
					Country: country.String(),
					Column:  name,
				})
				continue
			}
			values[i] = mean
			result.Filled++
		}
		df = df.Mutate(series.New(values, series.Float, name))
	}

	if err := df.Error(); err != nil {
		return ImputeResult{}, fmt.Errorf("填充缺失值失败: %w", err)
	}
	result.Frame = df
	return result, nil
}

// groupMean 只对非空值求均值, 全部为空时返回NaN
func groupMean(s series.Series) float64 {
	var data stats.Float64Data
	for _, v := range s.Float() {
		if !math.IsNaN(v) {
			data = append(data, v)
		}
	}
	mean, err := stats.Mean(data)
	if errors.Is(err, stats.ErrEmptyInput) {
		return math.NaN()
	}
	return mean
}
