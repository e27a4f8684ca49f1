package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/i474232898/jma-forecast/internal/area"
	"github.com/i474232898/jma-forecast/internal/forecast"
)

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	renderText(&buf, "130000", "2024-01-11", []forecast.ForecastRecord{
		{
			AreaCode:    "130010",
			AreaName:    "東京地方",
			WeatherText: "くもり　時々　晴れ",
			WindText:    "北の風",
			Temps:       []string{"3", "10"},
			Pops:        []forecast.Pop{{Label: "06時", Value: "20"}, {Label: "12時", Value: "30"}},
			DataSource:  forecast.SourceShort,
		},
		{
			AreaCode:   "130100",
			AreaName:   "伊豆諸島南部",
			Temps:      []string{},
			Pops:       []forecast.Pop{},
			DataSource: forecast.SourceWeekly,
		},
	})

	want := `130000 2024-01-11

東京地方 (130010, short)
  天気: くもり　時々　晴れ
  風: 北の風
  気温: 3 / 10
  降水確率: 06時 20%, 12時 30%

伊豆諸島南部 (130100, weekly)
  天気: -
`
	assert.Equal(t, want, buf.String())
}

func TestRenderTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderText(&buf, "130000", "2024-01-20", nil)
	assert.Equal(t, "no forecasts for 130000 on 2024-01-20\n", buf.String())
}

func TestPrintRegions(t *testing.T) {
	tax := area.New(
		[]area.Center{{Code: "010300", Name: "関東甲信地方"}, {Code: "010100", Name: "北海道地方"}},
		[]area.Office{
			{Code: "130000", Name: "東京都", ParentCenter: "010300"},
			{Code: "016000", Name: "石狩・空知・後志地方", ParentCenter: "010100"},
		},
	)

	var buf bytes.Buffer
	printRegions(&buf, tax)
	assert.Equal(t, "010100 北海道地方\n  016000 石狩・空知・後志地方\n010300 関東甲信地方\n  130000 東京都\n", buf.String())
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, forecast.SyncReport{
		ID:         "1f0c",
		ParentCode: "130000",
		Status:     forecast.SyncFailed,
		Error:      "upstream fetch failed: timeout",
	})
	assert.Equal(t, "130000\tfailed\tweekly=0 short=0 warnings=0\t1f0c\n\terror: upstream fetch failed: timeout\n", buf.String())
}
