package evaluation

import "math"

// NamedReport is one session's report, named after its directory.
type NamedReport struct {
	Name   string
	Report *Report
}

// MergedRow is one metric across sessions. Summary is the sum for count rows
// and the mean of the defined values for ratio rows.
type MergedRow struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Kind    RowKind  `json:"kind"`
	Values  []Number `json:"values"`
	Summary Number   `json:"summary"`
}

type MergedTable struct {
	Columns []string    `json:"columns"`
	Rows    []MergedRow `json:"rows"`
}

// Merge lays reports side by side in Metrics order. first selects the
// "first" column of every report instead of "all". Metrics missing from a
// report are NaN for that session.
func Merge(reports []NamedReport, first bool) *MergedTable {
	t := &MergedTable{Columns: make([]string, 0, len(reports))}
	for _, r := range reports {
		t.Columns = append(t.Columns, r.Name)
	}

	for _, m := range Metrics {
		row := MergedRow{
			Key:    m.Key,
			Label:  m.Label,
			Kind:   m.Kind,
			Values: make([]Number, 0, len(reports)),
		}

		var sum float64
		defined := 0
		for _, r := range reports {
			v := Number(math.NaN())
			if got, ok := r.Report.Value(m.Key); ok {
				v = got.All
				if first {
					v = got.First
				}
			}
			row.Values = append(row.Values, v)
			if !v.IsNaN() {
				sum += v.Float()
				defined++
			}
		}

		switch {
		case m.Kind == KindCount:
			row.Summary = Number(sum)
		case defined > 0:
			row.Summary = Number(sum / float64(defined))
		default:
			row.Summary = Number(math.NaN())
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
