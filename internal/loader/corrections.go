package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"parkeval-service/internal/domain/parking"
)

// MergeStats summarises a correction merge.
type MergeStats struct {
	Applied   int `json:"applied"`
	Unmatched int `json:"unmatched"`
	Ambiguous int `json:"ambiguous"`
}

// ApplyCorrectionFile opens path and merges it into c.
func ApplyCorrectionFile(c *parking.Collection, path string, log zerolog.Logger) (MergeStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return MergeStats{}, fmt.Errorf("open label file: %w", err)
	}
	defer f.Close()
	return ApplyCorrections(c, f, log)
}

// ApplyCorrections merges a previously saved label table into c. Rows are
// matched on frame_id (or the legacy json column); rows matching zero or
// several frames are logged and skipped. Missing columns leave the frame
// defaults untouched.
func ApplyCorrections(c *parking.Collection, r io.Reader, log zerolog.Logger) (MergeStats, error) {
	var stats MergeStats

	cr := csv.NewReader(bomReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("read label header: %w", err)
	}
	cols := columnIndex(header)

	keyCol, ok := cols["frame_id"]
	if !ok {
		keyCol, ok = cols["json"]
	}
	if !ok {
		return stats, fmt.Errorf("label file has neither frame_id nor json column")
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read label row %d: %w", line, err)
		}
		if keyCol >= len(rec) {
			continue
		}

		id := rec[keyCol]
		matches := c.Lookup(id)
		if len(matches) != 1 {
			if len(matches) == 0 {
				stats.Unmatched++
			} else {
				stats.Ambiguous++
			}
			log.Warn().
				Str("frame_id", id).
				Int("matches", len(matches)).
				Msg("label row does not match exactly one frame, skipped")
			continue
		}

		applyRow(matches[0], rec, cols, log)
		stats.Applied++
	}

	return stats, nil
}

func applyRow(f *parking.Frame, rec []string, cols map[string]int, log zerolog.Logger) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		v := strings.TrimSpace(rec[i])
		return v, v != ""
	}
	flag := func(name string, dst *bool) {
		v, ok := field(name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warn().Str("frame_id", f.ID).Str("column", name).Str("value", v).Msg("invalid flag value")
			return
		}
		*dst = b
	}

	flag("is_miss_in", &f.IsMissIn)
	flag("is_miss_out", &f.IsMissOut)
	flag("is_gt_unknown", &f.IsGTUnknown)
	flag("is_first", &f.IsFirst)

	if v, ok := field("status"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Str("frame_id", f.ID).Str("value", v).Msg("invalid status value")
			return
		}
		s, err := parking.StatusFromOrdinal(n)
		if err != nil {
			log.Warn().Err(err).Str("frame_id", f.ID).Msg("invalid status value")
			return
		}
		f.Status = s
	}
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	return cols
}
