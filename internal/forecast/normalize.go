package forecast

import (
	"fmt"
	"strings"
	"time"
)

// Normalize turns a fetched document into canonical records for parentCode.
//
// The weekly package is processed before the short-range package, so when
// both produce the same (area code, date) key the short-range record comes
// later in the result and wins on upsert. Missing series or fields never
// abort normalization: the derived field is left empty and a
// *MalformedDocumentError is added to the returned warnings.
func Normalize(doc Document, parentCode string) ([]ForecastRecord, []error) {
	n := &normalizer{
		parentCode: parentCode,
		warned:     make(map[string]bool),
	}
	if doc.Weekly != nil {
		n.weekly(doc.Weekly)
	}
	n.short(&doc.Short)
	return n.records, n.warnings
}

type normalizer struct {
	parentCode string
	records    []ForecastRecord
	warnings   []error
	warned     map[string]bool
}

// axisPoint is one parsed step of a time axis.
type axisPoint struct {
	date string
	hour string
	ok   bool
}

func (n *normalizer) warn(branch DataSource, areaCode, field string) {
	key := string(branch) + "|" + areaCode + "|" + field
	if n.warned[key] {
		return
	}
	n.warned[key] = true
	n.warnings = append(n.warnings, &MalformedDocumentError{Branch: branch, AreaCode: areaCode, Field: field})
}

func (n *normalizer) reportTime(branch DataSource, pkg *Package) time.Time {
	ts, err := parseTimestamp(pkg.ReportDatetime)
	if err != nil {
		n.warn(branch, "", "reportDatetime")
		return time.Time{}
	}
	return ts
}

func (n *normalizer) axis(branch DataSource, name string, ts *TimeSeries) []axisPoint {
	if ts == nil {
		return nil
	}
	points := make([]axisPoint, len(ts.TimeDefines))
	for i, def := range ts.TimeDefines {
		t, err := parseTimestamp(def)
		if err != nil {
			n.warn(branch, "", fmt.Sprintf("%s.timeDefines[%d]", name, i))
			continue
		}
		points[i] = axisPoint{date: t.Format(DateLayout), hour: t.Format("15") + "時", ok: true}
	}
	return points
}

func (n *normalizer) newRecord(area Area, date string, reported time.Time, source DataSource) ForecastRecord {
	return ForecastRecord{
		AreaCode:       area.Code,
		ParentCode:     n.parentCode,
		AreaName:       area.Name,
		TargetDate:     date,
		Temps:          []string{},
		Pops:           []Pop{},
		ReportDatetime: reported,
		DataSource:     source,
	}
}

func (n *normalizer) weekly(pkg *Package) {
	reported := n.reportTime(SourceWeekly, pkg)

	daily := pkg.series(0)
	if daily == nil {
		n.warn(SourceWeekly, "", "timeSeries[0]")
		return
	}
	temps := pkg.series(1)
	if temps == nil {
		n.warn(SourceWeekly, "", "timeSeries[1]")
	}
	steps := n.axis(SourceWeekly, "timeSeries[0]", daily)

	for j, as := range daily.Areas {
		code := as.Area.Code
		if as.WeatherCodes == nil {
			n.warn(SourceWeekly, code, "weatherCodes")
		}
		if as.Pops == nil {
			n.warn(SourceWeekly, code, "pops")
		}

		var tempArea *AreaSeries
		if temps != nil {
			tempArea = matchArea(temps.Areas, code, j)
			switch {
			case tempArea == nil:
				n.warn(SourceWeekly, code, "temperature area")
			case tempArea.TempsMin == nil && tempArea.TempsMax == nil:
				n.warn(SourceWeekly, code, "tempsMin/tempsMax")
			}
		}

		for i, step := range steps {
			if !step.ok {
				continue
			}
			rec := n.newRecord(as.Area, step.date, reported, SourceWeekly)
			if wc := valueAt(as.WeatherCodes, i); wc != "" {
				rec.WeatherCode = wc
				rec.WeatherText = WeatherText(wc)
			}
			if pop := valueAt(as.Pops, i); pop != "" {
				rec.Pops = []Pop{{Label: "day", Value: pop}}
			}
			if tempArea != nil {
				rec.Temps = nonBlank(valueAt(tempArea.TempsMin, i), valueAt(tempArea.TempsMax, i))
			}
			n.records = append(n.records, rec)
		}
	}
}

func (n *normalizer) short(pkg *Package) {
	reported := n.reportTime(SourceShort, pkg)

	daily := pkg.series(0)
	if daily == nil {
		n.warn(SourceShort, "", "timeSeries[0]")
		return
	}
	popSeries := pkg.series(1)
	if popSeries == nil {
		n.warn(SourceShort, "", "timeSeries[1]")
	}
	tempSeries := pkg.series(2)
	if tempSeries == nil {
		n.warn(SourceShort, "", "timeSeries[2]")
	}

	steps := n.axis(SourceShort, "timeSeries[0]", daily)
	popSteps := n.axis(SourceShort, "timeSeries[1]", popSeries)
	tempSteps := n.axis(SourceShort, "timeSeries[2]", tempSeries)

	for j, as := range daily.Areas {
		code := as.Area.Code
		if as.Weathers == nil && as.WeatherCodes == nil {
			n.warn(SourceShort, code, "weathers")
		}

		var popArea, tempArea *AreaSeries
		if popSeries != nil {
			if popArea = matchArea(popSeries.Areas, code, j); popArea == nil || popArea.Pops == nil {
				n.warn(SourceShort, code, "pops")
			}
		}
		if tempSeries != nil {
			if tempArea = matchArea(tempSeries.Areas, code, j); tempArea == nil || tempArea.Temps == nil {
				n.warn(SourceShort, code, "temps")
			}
		}

		for i, step := range steps {
			if !step.ok {
				continue
			}
			rec := n.newRecord(as.Area, step.date, reported, SourceShort)
			rec.WeatherCode = valueAt(as.WeatherCodes, i)
			if text := valueAt(as.Weathers, i); text != "" {
				rec.WeatherText = text
			} else if rec.WeatherCode != "" {
				rec.WeatherText = WeatherText(rec.WeatherCode)
			}
			rec.WindText = valueAt(as.Winds, i)
			rec.WaveText = valueAt(as.Waves, i)

			if tempArea != nil {
				for k, ts := range tempSteps {
					if !ts.ok || ts.date != step.date {
						continue
					}
					if v := valueAt(tempArea.Temps, k); v != "" {
						rec.Temps = append(rec.Temps, v)
					}
				}
			}
			if popArea != nil {
				for k, ps := range popSteps {
					if !ps.ok || ps.date != step.date {
						continue
					}
					if v := valueAt(popArea.Pops, k); v != "" {
						rec.Pops = append(rec.Pops, Pop{Label: ps.hour, Value: v})
					}
				}
			}
			n.records = append(n.records, rec)
		}
	}
}

// matchArea finds the series for code, falling back to the same position
// because temperature axes are reported per station rather than per area.
func matchArea(areas []AreaSeries, code string, pos int) *AreaSeries {
	for i := range areas {
		if areas[i].Area.Code == code {
			return &areas[i]
		}
	}
	if pos >= 0 && pos < len(areas) {
		return &areas[pos]
	}
	return nil
}

// valueAt returns the trimmed value at i, or "" when the array is too short.
func valueAt(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[i])
}

func nonBlank(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
