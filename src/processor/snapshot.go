package processor

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
)

// DefaultMAWindows 默认的移动平均窗口
var DefaultMAWindows = []int{3, 5, 7}

// ChartTitles 三张图的标题
type ChartTitles struct {
	Gapminder string
	Bars      string
	Trend     string
}

// Snapshot 一次筛选条件对应的全部图表数据和指标, 创建后不再修改
type Snapshot struct {
	Selection Selection
	Gapminder dataframe.DataFrame
	Bars      dataframe.DataFrame
	Trend     dataframe.DataFrame
	Max       ExtremeMetric
	Min       ExtremeMetric
	Titles    ChartTitles
}

// Recompute 按筛选条件依次生成视图、图表数据和指标.
// 筛选条件无效时返回错误, 不生成任何数据.
func Recompute(ds *Dataset, sel Selection, windows []int) (*Snapshot, error) {
	opts := ds.Options()
	sel = sel.WithDefaults(opts)
	if err := sel.Validate(opts); err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		windows = DefaultMAWindows
	}

	views := ds.Resolve(sel)

	gapminder, err := ds.Gapminder(views.Range, sel.Sector)
	if err != nil {
		return nil, err
	}
	bars, err := ds.SectorBars(views.Country)
	if err != nil {
		return nil, err
	}
	trend, err := ds.MovingAverages(views.Country, sel.Sector, windows)
	if err != nil {
		return nil, err
	}
	maxM, minM := ds.Extremes(views.Range)

	return &Snapshot{
		Selection: sel,
		Gapminder: gapminder,
		Bars:      bars,
		Trend:     trend,
		Max:       maxM,
		Min:       minM,
		Titles:    chartTitles(sel, views.Country),
	}, nil
}

func chartTitles(sel Selection, countryView dataframe.DataFrame) ChartTitles {
	t := ChartTitles{
		Gapminder: fmt.Sprintf("Gapminder Chart by Year for %s Sector", sel.Sector),
	}
	if lo, hi, ok := yearBounds(countryView); ok {
		t.Bars = fmt.Sprintf("Comparison of Pay Gap in Different Sectors in %s, %d", sel.Country, hi)
		t.Trend = fmt.Sprintf("Trends in %s Sector and Moving Averages (MA) in %s, %d - %d",
			sel.Sector, sel.Country, lo, hi)
	} else {
		t.Bars = fmt.Sprintf("Comparison of Pay Gap in Different Sectors in %s", sel.Country)
		t.Trend = fmt.Sprintf("Trends in %s Sector and Moving Averages (MA) in %s", sel.Sector, sel.Country)
	}
	return t
}
