package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/evaluation"
)

// Tables are exchanged with spreadsheet users and carry a UTF-8 BOM.
func bomReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

func bomWriter(w io.Writer) io.WriteCloser {
	return transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
}

// LabelColumns is the label.csv header.
var LabelColumns = []string{
	"frame_id", "timestamp", "lot", "is_occupied", "is_uncertain", "vehicle_status",
	"vehicle_xmin", "vehicle_ymin", "vehicle_xmax", "vehicle_ymax", "vehicle_width", "vehicle_height", "vehicle_score",
	"lpr_top", "top_quality", "lpr_bottom", "bottom_quality",
	"plate_xmin", "plate_ymin", "plate_xmax", "plate_ymax", "plate_width", "plate_height", "plate_score",
	"plate_confidence", "plate_count", "vehicle_count",
	"is_miss_in", "is_miss_out", "is_gt_unknown", "is_first",
	"status", "status_label",
}

// WriteLabels writes the full label table for frames.
func WriteLabels(w io.Writer, frames []*parking.Frame) error {
	bw := bomWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(LabelColumns); err != nil {
		return err
	}
	for _, f := range frames {
		if err := cw.Write(labelRecord(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Close()
}

func labelRecord(f *parking.Frame) []string {
	rec := []string{
		f.ID, f.Timestamp, f.Lot, boolInt(f.IsOccupied), optBool(f.IsUncertain), string(f.VehicleStatus),
	}
	rec = append(rec, bboxFields(f.Vehicle)...)
	rec = append(rec,
		optString(f.Plate.Top), optFloat(f.Plate.TopQuality),
		optString(f.Plate.Bottom), optFloat(f.Plate.BottomQuality),
	)
	rec = append(rec, bboxFields(f.PlateBox)...)
	rec = append(rec,
		optFloat(f.PlateConfidence), optInt(f.PlateCount), optInt(f.VehicleCount),
		boolInt(f.IsMissIn), boolInt(f.IsMissOut), boolInt(f.IsGTUnknown), boolInt(f.IsFirst),
		strconv.Itoa(int(f.Status)), f.Status.String(),
	)
	return rec
}

func bboxFields(b parking.BBox) []string {
	return []string{
		optFloat(b.XMin), optFloat(b.YMin), optFloat(b.XMax), optFloat(b.YMax),
		optFloat(b.Width), optFloat(b.Height), optFloat(b.Score),
	}
}

func boolInt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func optBool(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "True"
	}
	return "False"
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// formatFloat keeps full precision so ratios read back unchanged.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SaveLabels overwrites dir/label.csv.
func SaveLabels(dir string, frames []*parking.Frame) (string, error) {
	path := filepath.Join(dir, LabelFileName)
	if err := writeFile(path, func(w io.Writer) error { return WriteLabels(w, frames) }); err != nil {
		return "", fmt.Errorf("save labels: %w", err)
	}
	return path, nil
}

// WriteReport writes one "label,all,first" row per metric, without header.
func WriteReport(w io.Writer, report *evaluation.Report) error {
	bw := bomWriter(w)
	cw := csv.NewWriter(bw)
	for _, row := range report.Rows {
		rec := []string{row.Label, formatFloat(row.All.Float()), formatFloat(row.First.Float())}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Close()
}

// SaveReport overwrites dir/eval.csv.
func SaveReport(dir string, report *evaluation.Report) (string, error) {
	path := filepath.Join(dir, EvalFileName)
	if err := writeFile(path, func(w io.Writer) error { return WriteReport(w, report) }); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

// ReadReport parses an eval.csv. Files written before the "first" column
// existed yield NaN for it. Unknown labels are kept as count rows keyed by
// their label.
func ReadReport(r io.Reader) (*evaluation.Report, error) {
	cr := csv.NewReader(bomReader(r))
	cr.FieldsPerRecord = -1

	report := &evaluation.Report{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		if len(rec) < 2 {
			continue
		}

		row := evaluation.Row{Key: rec[0], Label: rec[0], Kind: evaluation.KindCount}
		if m, ok := evaluation.MetricByLabel(rec[0]); ok {
			row.Key, row.Kind = m.Key, m.Kind
		}
		if row.All, err = parseNumber(rec[1]); err != nil {
			return nil, fmt.Errorf("report row %q: %w", rec[0], err)
		}
		row.First = evaluation.Number(math.NaN())
		if len(rec) > 2 {
			if row.First, err = parseNumber(rec[2]); err != nil {
				return nil, fmt.Errorf("report row %q: %w", rec[0], err)
			}
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

// ReadReportFile opens and parses an eval.csv.
func ReadReportFile(path string) (*evaluation.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadReport(f)
}

func parseNumber(s string) (evaluation.Number, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return evaluation.Number(math.NaN()), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return evaluation.Number(v), nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
