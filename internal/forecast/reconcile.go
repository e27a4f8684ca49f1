package forecast

// sourcePriority ranks feeds when two records share a display name.
// The finer-grained short-range feed wins.
var sourcePriority = map[DataSource]int{
	SourceWeekly: 1,
	SourceShort:  2,
}

// Reconcile collapses rows that share an AreaName into one entry per name.
// A short-range row supersedes a weekly row; among rows of the same source
// the first one seen is kept. Output keeps first-seen name order.
func Reconcile(rows []ForecastRecord) []ForecastRecord {
	if len(rows) == 0 {
		return []ForecastRecord{}
	}

	index := make(map[string]int, len(rows))
	out := make([]ForecastRecord, 0, len(rows))

	for _, row := range rows {
		i, seen := index[row.AreaName]
		if !seen {
			index[row.AreaName] = len(out)
			out = append(out, row)
			continue
		}
		if sourcePriority[row.DataSource] > sourcePriority[out[i].DataSource] {
			out[i] = row
		}
	}

	return out
}
