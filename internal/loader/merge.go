package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"parkeval-service/internal/evaluation"
)

// FindFiles walks root and returns every file called name, sorted by path.
func FindFiles(root, name string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// WriteMergedTable writes the side-by-side report with a header row naming
// each session and a trailing summary column.
func WriteMergedTable(w io.Writer, t *evaluation.MergedTable) error {
	bw := bomWriter(w)
	cw := csv.NewWriter(bw)

	header := append([]string{"項目"}, t.Columns...)
	header = append(header, "総和/平均")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		rec := make([]string, 0, len(row.Values)+2)
		rec = append(rec, row.Label)
		for _, v := range row.Values {
			rec = append(rec, formatFloat(v.Float()))
		}
		rec = append(rec, formatFloat(row.Summary.Float()))
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

// SourceColumn is appended to merged label tables.
const SourceColumn = "source_folder"

// MergeLabelFiles concatenates label tables. The output header is the union
// of the input headers in first-seen order plus SourceColumn, filled with
// the name of the directory each row came from.
func MergeLabelFiles(w io.Writer, paths []string) (int, error) {
	var tables []rawTable
	var header []string
	seen := map[string]bool{}
	for _, p := range paths {
		t, err := readTable(p)
		if err != nil {
			return 0, err
		}
		t.source = filepath.Base(filepath.Dir(p))
		for _, h := range t.header {
			if !seen[h] {
				seen[h] = true
				header = append(header, h)
			}
		}
		tables = append(tables, t)
	}
	if !seen[SourceColumn] {
		header = append(header, SourceColumn)
	}
	pos := columnIndex(header)

	bw := bomWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	written := 0
	for _, t := range tables {
		for _, row := range t.rows {
			out := make([]string, len(header))
			for i, h := range t.header {
				if i < len(row) {
					out[pos[h]] = row[i]
				}
			}
			out[pos[SourceColumn]] = t.source
			if err := cw.Write(out); err != nil {
				return written, err
			}
			written++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, err
	}
	return written, bw.Close()
}

type rawTable struct {
	source string
	header []string
	rows   [][]string
}

func readTable(path string) (rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return rawTable{}, err
	}
	defer f.Close()

	cr := csv.NewReader(bomReader(f))
	cr.FieldsPerRecord = -1

	var t rawTable
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rawTable{}, fmt.Errorf("read %s: %w", path, err)
		}
		if t.header == nil {
			t.header = rec
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}
