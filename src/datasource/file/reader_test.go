package file

import (
	"PayGapDashboard/src/processor"
	"PayGapDashboard/src/utils"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const rawCSV = `Country,Year,GDP,Urban_population,Industry,Business
Austria,2010,35390,65.8,,21.7
Austria,2011,36970,65.8,27.1,NA
Belgium,2010,33370,97.7,10.5,12.8
`

func TestParseCSVMissingValues(t *testing.T) {
	df, err := ParseCSV(strings.NewReader(rawCSV), "")
	require.NoError(t, err)
	assert.Equal(t, 3, df.Nrow())
	assert.Equal(t, series.Float, df.Col("Industry").Type())
	assert.Equal(t, []bool{true, false, false}, df.Col("Industry").IsNaN())
	assert.Equal(t, []bool{false, true, false}, df.Col("Business").IsNaN())
}

func TestParseCSVCharset(t *testing.T) {
	enc, err := htmlindex.Get("gbk")
	require.NoError(t, err)
	data, _, err := transform.Bytes(enc.NewEncoder(), []byte("Country,Year\n奥地利,2010\n"))
	require.NoError(t, err)

	df, err := ParseCSV(bytes.NewReader(data), "GBK")
	require.NoError(t, err)
	assert.Equal(t, []string{"奥地利"}, df.Col("Country").Records())

	_, err = ParseCSV(strings.NewReader(rawCSV), "no-such-charset")
	assert.Error(t, err)
}

func TestWriteCleanedCSV(t *testing.T) {
	df, err := ParseCSV(strings.NewReader(rawCSV), "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "data.csv")
	require.NoError(t, WriteCleanedCSV(df, path, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], ",Country,Year"))
	assert.Equal(t, "0,Austria,2010,35390,65.8,,21.7", lines[1])
	assert.Equal(t, "1,Austria,2011,36970,65.8,27.1,", lines[2])
	assert.Equal(t, "2,Belgium,2010,33370,97.7,10.5,12.8", lines[3])

	back, err := ReadTable(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "X0", back.Names()[0])
	assert.Equal(t, df.Col("Business").IsNaN(), back.Col("Business").IsNaN())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCleanedCSVKeepsPrecision(t *testing.T) {
	raw := dataframe.LoadRecords([][]string{
		{"Country", "Year", "GDP", "Urban_population", "Services", "Industry"},
		{"A", "2017", "123456789.125", "50", "1", "NaN"},
		{"A", "2018", "1", "50", "NaN", "NaN"},
		{"A", "2019", "1", "50", "0", "NaN"},
		{"A", "2020", "1", "50", "0.00000004", "NaN"},
	}, dataframe.NaNValues(nanValues))
	res, err := processor.Impute(raw)
	require.NoError(t, err)
	require.Len(t, res.Unresolved, 4)

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, WriteCleanedCSV(res.Frame, path, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "0,A,2017,123456789.125,50,1,\n")
	assert.Contains(t, string(data), ",0.00000004,")
	assert.NotContains(t, string(data), "NaN")

	df, err := ReadTable(path, ReadOptions{})
	require.NoError(t, err)
	ds, err := processor.NewDataset(df)
	require.NoError(t, err)

	want := res.Frame.Col("Services").Float()
	assert.Equal(t, 0.33333334666666664, want[1])
	assert.Equal(t, want, ds.Frame().Col("Services").Float())
	assert.Equal(t, res.Frame.Col("GDP").Float(), ds.Frame().Col("GDP").Float())
	assert.Equal(t, []bool{true, true, true, true}, ds.Frame().Col("Industry").IsNaN())
}

func TestReadTableUnsupported(t *testing.T) {
	_, err := ReadTable("data.parquet", ReadOptions{})
	assert.Error(t, err)

	_, err = ReadTable(filepath.Join(t.TempDir(), "missing.csv"), ReadOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadXLSX(t *testing.T) {
	df := dataframe.LoadRecords([][]string{
		{"Country", "Year", "GDP", "Urban_population", "Industry"},
		{"Austria", "2010", "35390", "65.8", "NaN"},
		{"Belgium", "2010", "33370", "97.7", "10.5"},
	})
	require.NoError(t, df.Error())

	path := filepath.Join(t.TempDir(), "raw.xlsx")
	require.NoError(t, utils.SaveToExcel([]utils.Sheet{{Name: "pay_gap", Frame: df}}, path))

	back, err := ReadXLSX(path, "")
	require.NoError(t, err)
	assert.Equal(t, df.Names(), back.Names())
	assert.Equal(t, 2, back.Nrow())
	assert.Equal(t, []string{"Austria", "Belgium"}, back.Col("Country").Records())
	assert.Equal(t, []bool{true, false}, back.Col("Industry").IsNaN())

	_, err = ReadXLSX(path, "missing")
	assert.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fromBytes, err := ParseXLSXBinary(data, "pay_gap")
	require.NoError(t, err)
	assert.Equal(t, 2, fromBytes.Nrow())
}

func TestFileMonitor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selection.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	monitor, err := NewFileMonitor(path)
	require.NoError(t, err)
	defer monitor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- monitor.Watch(ctx, func(p string) { got <- p })
	}()

	// 同目录下的其他文件不触发
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(path, []byte(`{"country":"Austria"}`), 0644))

	select {
	case p := <-got:
		assert.Equal(t, monitor.Target(), p)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
