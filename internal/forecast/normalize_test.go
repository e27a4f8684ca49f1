package forecast

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) Document {
	t.Helper()
	data, err := os.ReadFile("testdata/130000.json")
	require.NoError(t, err)
	doc, err := ParseDocument(data)
	require.NoError(t, err)
	return doc
}

func bySourceAndKey(records []ForecastRecord) map[string]ForecastRecord {
	out := make(map[string]ForecastRecord, len(records))
	for _, r := range records {
		out[string(r.DataSource)+"/"+r.Key()] = r
	}
	return out
}

func TestNormalizeFixture(t *testing.T) {
	records, warnings := Normalize(loadFixture(t), "130000")

	assert.Empty(t, warnings)
	require.Len(t, records, 12)

	// Weekly rows come first so short rows win on upsert.
	for i, r := range records {
		want := SourceWeekly
		if i >= 6 {
			want = SourceShort
		}
		assert.Equal(t, want, r.DataSource, "record %d", i)
		assert.Equal(t, "130000", r.ParentCode)
	}

	reported := time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC)
	rows := bySourceAndKey(records)

	w := rows["weekly/130010:2024-01-12"]
	assert.Equal(t, "東京地方", w.AreaName)
	assert.Equal(t, "300", w.WeatherCode)
	assert.Equal(t, "雨", w.WeatherText)
	assert.Equal(t, []string{"3", "10"}, w.Temps)
	assert.Equal(t, []Pop{{Label: "day", Value: "60"}}, w.Pops)
	assert.Empty(t, w.WindText)
	assert.True(t, reported.Equal(w.ReportDatetime))

	// Blank weekly values leave empty, non-nil fields.
	w = rows["weekly/130010:2024-01-11"]
	assert.NotNil(t, w.Temps)
	assert.Empty(t, w.Temps)
	assert.NotNil(t, w.Pops)
	assert.Empty(t, w.Pops)

	w = rows["weekly/130100:2024-01-13"]
	assert.Equal(t, "伊豆諸島北部", w.AreaName)
	assert.Equal(t, "晴れ時々曇り", w.WeatherText)
	assert.Equal(t, []string{"5", "14"}, w.Temps)

	s := rows["short/130010:2024-01-10"]
	assert.Equal(t, "100", s.WeatherCode)
	assert.Equal(t, "晴れ", s.WeatherText)
	assert.Equal(t, "北の風", s.WindText)
	assert.Equal(t, "０．５メートル", s.WaveText)
	assert.Equal(t, []string{"12"}, s.Temps)
	assert.Equal(t, []Pop{{Label: "12時", Value: "0"}, {Label: "18時", Value: "10"}}, s.Pops)

	s = rows["short/130010:2024-01-11"]
	assert.Equal(t, "くもり　時々　晴れ", s.WeatherText)
	assert.Equal(t, []string{"3", "10"}, s.Temps)
	assert.Equal(t, []Pop{
		{Label: "00時", Value: "10"},
		{Label: "06時", Value: "20"},
		{Label: "12時", Value: "30"},
		{Label: "18時", Value: "20"},
	}, s.Pops)

	// Dates outside the temperature and pop axes get empty lists.
	s = rows["short/130020:2024-01-12"]
	assert.Equal(t, "雨　後　くもり", s.WeatherText)
	assert.Equal(t, "南西の風　強く", s.WindText)
	assert.Empty(t, s.Temps)
	assert.Empty(t, s.Pops)

	s = rows["short/130020:2024-01-11"]
	assert.Equal(t, []string{"6", "12"}, s.Temps)
}

func TestNormalizeScenarioA(t *testing.T) {
	weekly := Package{
		ReportDatetime: "2024-01-10T11:00+09:00",
		TimeSeries: []TimeSeries{
			{
				TimeDefines: []string{"2024-01-10T00:00+09:00", "2024-01-11T00:00+09:00"},
				Areas: []AreaSeries{{
					Area:         Area{Name: "東京都", Code: "130000"},
					WeatherCodes: []string{"100", "200"},
					Pops:         []string{"10", "20"},
				}},
			},
			{
				TimeDefines: []string{"2024-01-10T00:00+09:00", "2024-01-11T00:00+09:00"},
				Areas: []AreaSeries{{
					Area:     Area{Name: "東京", Code: "44132"},
					TempsMin: []string{"5", "6"},
					TempsMax: []string{"15", "16"},
				}},
			},
		},
	}
	doc, err := NewDocument([]Package{{ReportDatetime: "2024-01-10T11:00+09:00"}, weekly})
	require.NoError(t, err)

	records, _ := Normalize(doc, "130000")

	var got []ForecastRecord
	for _, r := range records {
		if r.DataSource == SourceWeekly {
			got = append(got, r)
		}
	}
	require.Len(t, got, 2)

	assert.Equal(t, "130000", got[0].AreaCode)
	assert.Equal(t, "2024-01-10", got[0].TargetDate)
	assert.Equal(t, "晴れ", got[0].WeatherText)
	assert.Equal(t, []string{"5", "15"}, got[0].Temps)

	assert.Equal(t, "130000", got[1].AreaCode)
	assert.Equal(t, "2024-01-11", got[1].TargetDate)
	assert.Equal(t, "曇り", got[1].WeatherText)
	assert.Equal(t, []string{"6", "16"}, got[1].Temps)
}

func TestNormalizeMissingSeries(t *testing.T) {
	doc := loadFixture(t)
	doc.Weekly.TimeSeries = doc.Weekly.TimeSeries[:1]
	doc.Short.TimeSeries = doc.Short.TimeSeries[:1]

	records, warnings := Normalize(doc, "130000")

	require.Len(t, records, 12)
	for _, r := range records {
		assert.NotNil(t, r.Temps, r.Key())
		assert.Empty(t, r.Temps, r.Key())
		if r.DataSource == SourceShort {
			assert.Empty(t, r.Pops, r.Key())
			assert.NotEmpty(t, r.WeatherText, r.Key())
		}
	}

	var fields []string
	for _, w := range warnings {
		assert.True(t, errors.Is(w, ErrMalformedDocument))
		var mde *MalformedDocumentError
		require.True(t, errors.As(w, &mde))
		fields = append(fields, string(mde.Branch)+":"+mde.Field)
	}
	assert.ElementsMatch(t, []string{"weekly:timeSeries[1]", "short:timeSeries[1]", "short:timeSeries[2]"}, fields)
}

func TestNormalizeMissingArrays(t *testing.T) {
	doc := loadFixture(t)
	doc.Weekly.TimeSeries[0].Areas[0].Pops = nil
	doc.Short.TimeSeries[2].Areas = nil

	records, warnings := Normalize(doc, "130000")
	require.Len(t, records, 12)

	rows := bySourceAndKey(records)
	assert.Empty(t, rows["weekly/130010:2024-01-12"].Pops)
	assert.Equal(t, []string{"3", "10"}, rows["weekly/130010:2024-01-12"].Temps)
	assert.Empty(t, rows["short/130010:2024-01-10"].Temps)
	assert.Len(t, rows["short/130010:2024-01-10"].Pops, 2)

	// One warning per (branch, area, field), however many dates are affected.
	require.Len(t, warnings, 3)
	assert.EqualError(t, warnings[0], "weekly package, area 130010: missing pops")
	assert.EqualError(t, warnings[1], "short package, area 130010: missing temps")
	assert.EqualError(t, warnings[2], "short package, area 130020: missing temps")
}

func TestNormalizeWeatherCodeFallback(t *testing.T) {
	short := Package{
		ReportDatetime: "2024-01-10T11:00:00+09:00",
		TimeSeries: []TimeSeries{{
			TimeDefines: []string{"2024-01-10T11:00:00+09:00", "2024-01-11T00:00:00+09:00", "2024-01-12T00:00:00+09:00"},
			Areas: []AreaSeries{{
				Area:         Area{Name: "東京地方", Code: "130010"},
				WeatherCodes: []string{"100", "450", "999"},
			}},
		}},
	}

	records, warnings := Normalize(Document{Short: short}, "130000")
	require.Len(t, records, 3)

	assert.Equal(t, "晴れ", records[0].WeatherText)
	assert.Equal(t, "雪系", records[1].WeatherText)
	assert.Equal(t, "不明", records[2].WeatherText)
	for _, w := range warnings {
		assert.NotContains(t, w.Error(), "weathers")
	}
}

func TestNormalizeBadTimestamps(t *testing.T) {
	doc := loadFixture(t)
	doc.Short.ReportDatetime = "yesterday"
	doc.Short.TimeSeries[0].TimeDefines[1] = "not-a-date"

	records, warnings := Normalize(doc, "130000")

	var short []ForecastRecord
	for _, r := range records {
		if r.DataSource == SourceShort {
			short = append(short, r)
		}
	}
	// The unparseable step is skipped for both areas.
	require.Len(t, short, 4)
	for _, r := range short {
		assert.NotEqual(t, "2024-01-11", r.TargetDate)
		assert.True(t, r.ReportDatetime.IsZero())
	}
	require.Len(t, warnings, 2)
	assert.EqualError(t, warnings[0], "short package: missing reportDatetime")
	assert.EqualError(t, warnings[1], "short package: missing timeSeries[0].timeDefines[1]")
}

func TestNormalizeShortOnly(t *testing.T) {
	doc := loadFixture(t)
	doc.Weekly = nil

	records, warnings := Normalize(doc, "130000")
	assert.Empty(t, warnings)
	require.Len(t, records, 6)
	for _, r := range records {
		assert.Equal(t, SourceShort, r.DataSource)
	}
}

func TestWeatherText(t *testing.T) {
	tests := map[string]string{
		"100": "晴れ",
		"200": "曇り",
		"300": "雨",
		"400": "雪",
		"199": "晴れ系",
		"298": "曇り系",
		"399": "雨系",
		"498": "雪系",
		"500": "不明",
		"":    "不明",
		"abc": "不明",
	}
	for code, want := range tests {
		assert.Equal(t, want, WeatherText(code), code)
	}
}
