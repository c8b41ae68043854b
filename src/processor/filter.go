package processor

import (
	"PayGapDashboard/src/utils"
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	ErrUnknownCountry   = errors.New("未知的国家")
	ErrUnknownSector    = errors.New("未知的行业")
	ErrInvalidYearRange = errors.New("年份范围无效")
)

// Selection 用户的筛选条件, 年份范围两端都包含
type Selection struct {
	YearLow  int
	YearHigh int
	Country  string
	Sector   string
}

// Options 数据集中可选的年份、国家和行业
type Options struct {
	Years     []int
	Countries []string
	Sectors   []string
}

// Views 筛选结果: 年份范围内的所有国家, 以及年份范围内的单个国家
type Views struct {
	Range   dataframe.DataFrame
	Country dataframe.DataFrame
}

// Default 默认筛选条件: 全部年份、第一个国家、第一个行业
func (o Options) Default() Selection {
	var sel Selection
	if len(o.Years) > 0 {
		sel.YearLow = o.Years[0]
		sel.YearHigh = o.Years[len(o.Years)-1]
	}
	if len(o.Countries) > 0 {
		sel.Country = o.Countries[0]
	}
	if len(o.Sectors) > 0 {
		sel.Sector = o.Sectors[0]
	}
	return sel
}

// WithDefaults 用默认值补全未设置的字段
func (s Selection) WithDefaults(o Options) Selection {
	def := o.Default()
	if s.YearLow == 0 {
		s.YearLow = def.YearLow
	}
	if s.YearHigh == 0 {
		s.YearHigh = def.YearHigh
	}
	if s.Country == "" {
		s.Country = def.Country
	}
	if s.Sector == "" {
		s.Sector = def.Sector
	}
	return s
}

// Validate 国家和行业必须来自数据集, 年份范围不能颠倒.
// 超出数据年份的范围不是错误, 只会得到空视图.
func (s Selection) Validate(o Options) error {
	if s.YearLow > s.YearHigh {
		return fmt.Errorf("%w: %d > %d", ErrInvalidYearRange, s.YearLow, s.YearHigh)
	}
	if !utils.Contains(o.Countries, s.Country) {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, s.Country)
	}
	if !utils.Contains(o.Sectors, s.Sector) {
		return fmt.Errorf("%w: %q", ErrUnknownSector, s.Sector)
	}
	return nil
}

// Resolve 按年份范围和国家筛选数据
func (d *Dataset) Resolve(sel Selection) Views {
	rangeView := d.df.FilterAggregation(dataframe.And,
		dataframe.F{Colname: ColYear, Comparator: series.GreaterEq, Comparando: sel.YearLow},
		dataframe.F{Colname: ColYear, Comparator: series.LessEq, Comparando: sel.YearHigh},
	)
	countryView := rangeView.Filter(
		dataframe.F{Colname: ColCountry, Comparator: series.Eq, Comparando: sel.Country},
	)
	return Views{Range: rangeView, Country: countryView}
}
