// Package loader reads a capture session directory into a parking.Collection
// and writes the label and eval tables back next to it.
package loader

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/utils"
)

var (
	ErrNoMetaDir   = errors.New("session has no META directory")
	ErrNoDocuments = errors.New("session has no detection documents")
	ErrNoFrames    = errors.New("no frame could be read from the session")
)

const (
	MetaDir       = "META"
	LabelFileName = "label.csv"
	EvalFileName  = "eval.csv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Rect is a pixel rectangle in raw image coordinates.
type Rect struct {
	XMin float64 `mapstructure:"xmin" json:"xmin"`
	YMin float64 `mapstructure:"ymin" json:"ymin"`
	XMax float64 `mapstructure:"xmax" json:"xmax"`
	YMax float64 `mapstructure:"ymax" json:"ymax"`
}

// Contains reports whether b lies completely inside r.
func (r Rect) Contains(b parking.BBox) bool {
	if b.XMin == nil || b.YMin == nil || b.XMax == nil || b.YMax == nil {
		return false
	}
	return *b.XMin >= r.XMin && *b.YMin >= r.YMin && *b.XMax <= r.XMax && *b.YMax <= r.YMax
}

// Options are the pre-filters applied while loading.
type Options struct {
	// From drops frames captured before this detector timestamp.
	From string
	// ROI switches to the single-rectangle capture layout: the lot entry is
	// chosen by vehicle box position instead of by file name.
	ROI *Rect
}

type document struct {
	InferenceResults []struct {
		ParkingLotInfo []lotInfo `json:"parking_lot_info"`
	} `json:"Inference_Results"`
}

type lotInfo struct {
	Lot           string              `json:"Lot"`
	TimeStamp     jsoniter.RawMessage `json:"TimeStamp"`
	IsOccupied    *bool               `json:"Is_Occupied"`
	IsOcclusion   *bool               `json:"Is_Occlusion"`
	IsUncertain   *bool               `json:"Is_Uncertain"`
	VehicleStatus *string             `json:"Vehicle_Status"`
	PlateNumber   struct {
		Top           *string  `json:"Top"`
		TopQuality    *float64 `json:"Top_Quality"`
		Bottom        *string  `json:"Bottom"`
		BottomQuality *float64 `json:"Bottom_Quality"`
	} `json:"Plate_Number"`
	PlateConfidence *float64     `json:"Plate_Confidence"`
	LPDBox          parking.BBox `json:"LPD_Bbox"`
	VehicleBox      parking.BBox `json:"Vehicle_Bbox"`
	PlateCount      *int         `json:"Plate_Count"`
	VehicleCount    *int         `json:"Vehicle_Count"`
	MovePlateEndY   *float64     `json:"Move_Plate_End_Y"`
}

// Load reads every META/*.json document of dir in file name order and
// merges label.csv when present.
func Load(dir string, opts Options, log zerolog.Logger) (*parking.Collection, error) {
	metaDir := filepath.Join(dir, MetaDir)
	info, err := os.Stat(metaDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoMetaDir, dir)
	}

	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metaDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocuments, metaDir)
	}
	sort.Strings(names)

	frames := make([]*parking.Frame, 0, len(names))
	for _, name := range names {
		f, err := readDocument(filepath.Join(metaDir, name), opts.ROI)
		if err != nil {
			return nil, err
		}
		if f == nil {
			log.Warn().Str("frame_id", name).Msg("document has no entry for its lot, skipped")
			continue
		}
		if opts.From != "" && before(f.Timestamp, opts.From) {
			continue
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFrames, dir)
	}

	c := parking.NewCollection(frames)

	labelPath := filepath.Join(dir, LabelFileName)
	if _, err := os.Stat(labelPath); err == nil {
		stats, err := ApplyCorrectionFile(c, labelPath, log)
		if err != nil {
			return nil, err
		}
		log.Info().
			Int("applied", stats.Applied).
			Int("unmatched", stats.Unmatched).
			Int("ambiguous", stats.Ambiguous).
			Str("path", labelPath).
			Msg("merged label file")
	}

	return c, nil
}

// parseName splits "<timestamp>_<lot>[_ps]" into its lot and ps marker.
func parseName(name string) (lot string, ps bool, ok bool) {
	parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	if len(parts) < 2 {
		return "", false, false
	}
	return parts[1], len(parts) == 3, true
}

func readDocument(path string, roi *Rect) (*parking.Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(doc.InferenceResults) == 0 {
		return nil, nil
	}
	infos := doc.InferenceResults[0].ParkingLotInfo

	name := filepath.Base(path)
	lot, ps, ok := parseName(name)

	var picked *lotInfo
	if roi != nil {
		picked = bestInside(infos, *roi)
	} else if ok {
		for i := range infos {
			if infos[i].Lot == lot {
				picked = &infos[i]
			}
		}
	}
	if picked == nil {
		return nil, nil
	}

	f := toFrame(picked)
	f.ID = name
	f.IsPS = ps
	return f, nil
}

// bestInside keeps the entries whose vehicle box lies inside roi and returns
// the one with the highest vehicle score.
func bestInside(infos []lotInfo, roi Rect) *lotInfo {
	var best *lotInfo
	bestScore := math.Inf(-1)
	for i := range infos {
		in := &infos[i]
		if !roi.Contains(in.VehicleBox) {
			continue
		}
		score := math.Inf(-1)
		if in.VehicleBox.Score != nil {
			score = *in.VehicleBox.Score
		}
		if best == nil || score > bestScore {
			best, bestScore = in, score
		}
	}
	return best
}

func toFrame(in *lotInfo) *parking.Frame {
	f := &parking.Frame{
		Lot:       in.Lot,
		Timestamp: rawText(in.TimeStamp),
	}
	if in.IsOccupied != nil {
		f.IsOccupied = *in.IsOccupied
	}
	f.IsOcclusion = in.IsOcclusion
	f.IsUncertain = in.IsUncertain
	f.VehicleStatus = parking.VehicleNone
	if in.VehicleStatus != nil {
		f.VehicleStatus = parking.NormalizeVehicleStatus(*in.VehicleStatus)
	}
	f.Plate = parking.PlateText{
		Top:           in.PlateNumber.Top,
		TopQuality:    in.PlateNumber.TopQuality,
		Bottom:        in.PlateNumber.Bottom,
		BottomQuality: in.PlateNumber.BottomQuality,
	}
	f.PlateConfidence = in.PlateConfidence
	f.PlateBox = in.LPDBox
	f.Vehicle = in.VehicleBox
	f.PlateCount = in.PlateCount
	f.VehicleCount = in.VehicleCount
	if in.MovePlateEndY != nil {
		y := int(math.Round(*in.MovePlateEndY))
		f.MovePlateEndY = &y
	}
	return f
}

// rawText renders a JSON scalar that may be encoded as string or number.
func rawText(raw jsoniter.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// before compares two detector timestamps, falling back to string order
// when either cannot be parsed.
func before(ts, threshold string) bool {
	a, errA := utils.ParseTimestamp(ts)
	b, errB := utils.ParseTimestamp(threshold)
	if errA != nil || errB != nil {
		return ts < threshold
	}
	return a.Before(b)
}
