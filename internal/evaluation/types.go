package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
)

// ResendPolicy controls whether the "previous frame was occupied" tracker
// is reset at lot boundaries.
type ResendPolicy string

const (
	// ResendGlobal carries the tracker across lots. This is how historic
	// eval.csv files were produced and stays the default.
	ResendGlobal ResendPolicy = "global"
	ResendPerLot ResendPolicy = "per_lot"
)

func ParseResendPolicy(v string) (ResendPolicy, error) {
	switch ResendPolicy(v) {
	case ResendGlobal, "":
		return ResendGlobal, nil
	case ResendPerLot:
		return ResendPerLot, nil
	default:
		return "", fmt.Errorf("unknown resend policy %q", v)
	}
}

// Options configures an aggregation pass.
type Options struct {
	// ExcludeMoving drops Moving frames before any counting, resend included.
	ExcludeMoving bool
	ResendPolicy  ResendPolicy
}

func DefaultOptions() Options {
	return Options{
		ExcludeMoving: true,
		ResendPolicy:  ResendGlobal,
	}
}

// Counters is one column of the report.
type Counters struct {
	DetectAll int `json:"detect_all"`
	DetectOK  int `json:"detect_ok"`

	NGOut          int `json:"ng_out"`
	NGShadow       int `json:"ng_shadow"`
	NGOcclusion    int `json:"ng_occlusion"`
	NGFP           int `json:"ng_fp"`
	NGBlur         int `json:"ng_blur"`
	NGOverExposure int `json:"ng_over_exposure"`
	NGAI           int `json:"ng_ai"`
	NGOthers       int `json:"ng_others"`

	WrongOut  int `json:"wrong_out"`
	MissIn    int `json:"miss_in"`
	MissOut   int `json:"miss_out"`
	GTUnknown int `json:"gt_unknown"`
	Resend    int `json:"resend"`

	// Unclassified counts occupied frames whose status is neither OK nor an
	// NG bucket, NoLabel included.
	Unclassified int `json:"unclassified"`
}

func (c Counters) NGTotal() int {
	return c.NGOut + c.NGShadow + c.NGOcclusion + c.NGFP + c.NGBlur + c.NGOverExposure + c.NGAI + c.NGOthers
}

func (c Counters) VehicleTotal() int {
	return c.DetectAll - c.WrongOut - c.NGFP - c.Resend + c.MissOut + c.MissIn
}

// Result holds both report columns before formatting.
type Result struct {
	All   Counters `json:"all"`
	First Counters `json:"first"`
	// Unlabeled counts every frame still at NoLabel, occupied or not.
	Unlabeled int `json:"unlabeled"`
}

// Number is a report value. NaN marks an undefined ratio and is encoded as
// JSON null.
type Number float64

func (n Number) Float() float64 { return float64(n) }

func (n Number) IsNaN() bool { return math.IsNaN(float64(n)) }

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = Number(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

type RowKind string

const (
	KindCount RowKind = "count"
	KindRatio RowKind = "ratio"
)

// Row is one metric of the report.
type Row struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Kind  RowKind `json:"kind"`
	All   Number  `json:"all"`
	First Number  `json:"first"`
}

// Report is the KPI table. Row order is fixed by Metrics.
type Report struct {
	Rows []Row `json:"rows"`
}

// Value returns the row for key.
func (r *Report) Value(key string) (Row, bool) {
	for _, row := range r.Rows {
		if row.Key == key {
			return row, true
		}
	}
	return Row{}, false
}

// Metric describes one report row.
type Metric struct {
	Key   string
	Label string
	Kind  RowKind
}

const (
	KeyDetectAll      = "detect_all"
	KeyVehicleTotal   = "vehicle_total"
	KeyMissIn         = "miss_in"
	KeyMissOut        = "miss_out"
	KeyWrongOut       = "wrong_out"
	KeyDetectOK       = "detect_ok"
	KeyNGTotal        = "ng_total"
	KeyNGOut          = "ng_out"
	KeyNGShadow       = "ng_shadow"
	KeyNGOcclusion    = "ng_occlusion"
	KeyNGFP           = "ng_fp"
	KeyNGBlur         = "ng_blur"
	KeyNGOverExposure = "ng_over_exposure"
	KeyNGAI           = "ng_ai"
	KeyNGOthers       = "ng_others"
	KeyGTUnknown      = "gt_unknown"
	KeyResend         = "resend"
	KeyAccuracy       = "accuracy_per_frame"
	KeyAccuracyExclFP = "accuracy_excl_cutoff_fp"
)

// Metrics is the report contract: labels and their order are read back by
// downstream spreadsheets and must stay stable.
var Metrics = []Metric{
	{KeyDetectAll, "検知総数", KindCount},
	{KeyVehicleTotal, "車両総数", KindCount},
	{KeyMissIn, "入庫見逃し", KindCount},
	{KeyMissOut, "出庫見逃し", KindCount},
	{KeyWrongOut, "誤出庫", KindCount},
	{KeyDetectOK, "全桁OK", KindCount},
	{KeyNGTotal, "全桁NG", KindCount},
	{KeyNGOut, "全桁NG（見切れ）", KindCount},
	{KeyNGShadow, "全桁NG（影）", KindCount},
	{KeyNGOcclusion, "全桁NG（Occlusion）", KindCount},
	{KeyNGFP, "全桁NG（FP）", KindCount},
	{KeyNGBlur, "全桁NG（Blur）", KindCount},
	{KeyNGOverExposure, "全桁NG（白飛び）", KindCount},
	{KeyNGAI, "全桁NG（AI）", KindCount},
	{KeyNGOthers, "全桁NG（その他）", KindCount},
	{KeyGTUnknown, "GT不明", KindCount},
	{KeyResend, "再送回数", KindCount},
	{KeyAccuracy, "全桁精度（メタごと）", KindRatio},
	{KeyAccuracyExclFP, "全桁精度（見切れ/FP抜き）", KindRatio},
}

// MetricByLabel resolves a display label read back from a saved report.
func MetricByLabel(label string) (Metric, bool) {
	for _, m := range Metrics {
		if m.Label == label {
			return m, true
		}
	}
	return Metric{}, false
}
