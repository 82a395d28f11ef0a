package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/labeling"
)

type fixture struct {
	lot      string
	occupied bool
	vs       parking.VehicleStatus
	status   parking.Status
	first    bool
}

func build(fixtures ...fixture) []*parking.Frame {
	frames := make([]*parking.Frame, 0, len(fixtures))
	for i, s := range fixtures {
		vs := s.vs
		if vs == "" {
			vs = parking.VehicleStop
		}
		frames = append(frames, &parking.Frame{
			ID:        fmt.Sprintf("%03d_%s.json", i, s.lot),
			Lot:       s.lot,
			Detection: parking.Detection{IsOccupied: s.occupied, VehicleStatus: vs},
			Labels:    parking.Labels{Status: s.status, IsFirst: s.first},
		})
	}
	return frames
}

func lotsOf(frames []*parking.Frame) []string {
	return parking.NewCollection(frames).Lots()
}

func newAggregator(opts Options) *Aggregator {
	return NewAggregator(opts, zerolog.Nop())
}

func value(t *testing.T, r *Report, key string) Row {
	t.Helper()
	row, ok := r.Value(key)
	if !ok {
		t.Fatalf("report has no %s row", key)
	}
	return row
}

func TestAggregateBuckets(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: true, status: parking.OK, first: true},
		fixture{lot: "A", occupied: true, status: parking.NGOut},
		fixture{lot: "A", occupied: false, status: parking.NoLabel},
		fixture{lot: "A", occupied: true, status: parking.NGFP, first: true},
		fixture{lot: "A", occupied: false, status: parking.WrongOut},
		fixture{lot: "A", occupied: true, status: parking.NGAI},
		fixture{lot: "A", occupied: true, status: parking.NGOverExposure},
	)
	frames[2].IsMissIn = true
	frames[4].IsMissOut = true
	frames[1].IsGTUnknown = true

	res := newAggregator(DefaultOptions()).Aggregate(lotsOf(frames), frames)

	all := res.All
	if all.DetectAll != 5 || all.DetectOK != 1 {
		t.Fatalf("detect_all=%d detect_ok=%d", all.DetectAll, all.DetectOK)
	}
	if all.NGOut != 1 || all.NGFP != 1 || all.NGAI != 1 || all.NGOverExposure != 1 {
		t.Fatalf("unexpected NG buckets: %+v", all)
	}
	if all.WrongOut != 1 || all.MissIn != 1 || all.MissOut != 1 || all.GTUnknown != 1 {
		t.Fatalf("unexpected flag counters: %+v", all)
	}
	// pairs: (0,1) and (5,6); frame 3 follows an empty frame.
	if all.Resend != 2 {
		t.Fatalf("expected resend 2, got %d", all.Resend)
	}
	if res.First.DetectAll != 2 || res.First.DetectOK != 1 || res.First.NGFP != 1 {
		t.Fatalf("unexpected first counters: %+v", res.First)
	}
	if res.Unlabeled != 1 {
		t.Fatalf("expected 1 unlabeled frame, got %d", res.Unlabeled)
	}
}

func TestAggregateTotalsBalance(t *testing.T) {
	statuses := parking.Statuses()
	var fixtures []fixture
	for i := 0; i < 60; i++ {
		fixtures = append(fixtures, fixture{
			lot:      []string{"A", "B", "C"}[i%3],
			occupied: i%4 != 0,
			status:   statuses[(i*7)%len(statuses)],
			first:    i%5 == 0,
		})
	}
	frames := build(fixtures...)

	res := newAggregator(DefaultOptions()).Aggregate(lotsOf(frames), frames)
	for name, c := range map[string]Counters{"all": res.All, "first": res.First} {
		if got := c.DetectOK + c.NGTotal() + c.Unclassified; got != c.DetectAll {
			t.Fatalf("%s: ok+ng+unclassified=%d, detect_all=%d", name, got, c.DetectAll)
		}
	}
}

func TestResendSpansLotBoundaryByDefault(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: false, status: parking.OK},
		fixture{lot: "A", occupied: true, status: parking.OK},
		fixture{lot: "B", occupied: true, status: parking.OK},
		fixture{lot: "B", occupied: true, status: parking.OK},
	)
	lots := lotsOf(frames)

	global := newAggregator(DefaultOptions()).Aggregate(lots, frames)
	if global.All.Resend != 2 {
		t.Fatalf("global policy: expected resend 2, got %d", global.All.Resend)
	}

	opts := DefaultOptions()
	opts.ResendPolicy = ResendPerLot
	perLot := newAggregator(opts).Aggregate(lots, frames)
	if perLot.All.Resend != 1 {
		t.Fatalf("per-lot policy: expected resend 1, got %d", perLot.All.Resend)
	}
}

func TestResendCountsEachAdjacentPair(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: true, status: parking.OK},
		fixture{lot: "A", occupied: true, status: parking.OK},
		fixture{lot: "A", occupied: true, status: parking.OK},
		fixture{lot: "A", occupied: true, status: parking.OK},
	)
	res := newAggregator(DefaultOptions()).Aggregate(lotsOf(frames), frames)
	if res.All.Resend != 3 {
		t.Fatalf("expected resend 3, got %d", res.All.Resend)
	}
}

func TestZeroDetectionsDoNotDivideByZero(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: false},
		fixture{lot: "A", occupied: false},
	)
	report, _ := newAggregator(DefaultOptions()).Evaluate(lotsOf(frames), frames)

	acc := value(t, report, KeyAccuracy)
	if !acc.All.IsNaN() {
		t.Fatalf("expected NaN for all, got %v", acc.All)
	}
	if acc.First != 0 {
		t.Fatalf("expected 0 for first, got %v", acc.First)
	}
	excl := value(t, report, KeyAccuracyExclFP)
	if !excl.All.IsNaN() || excl.First != 0 {
		t.Fatalf("unexpected excl ratio %v/%v", excl.All, excl.First)
	}

	b, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if !strings.Contains(string(b), `"all":null`) {
		t.Fatalf("NaN must be encoded as null: %s", b)
	}
}

func TestAccuracyExclCutoffAndFP(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: true, status: parking.OK},
		fixture{lot: "A", occupied: false},
		fixture{lot: "A", occupied: true, status: parking.NGFP},
		fixture{lot: "A", occupied: false},
		fixture{lot: "A", occupied: true, status: parking.NGOut},
		fixture{lot: "A", occupied: false},
		fixture{lot: "A", occupied: true, status: parking.NGBlur},
	)
	report, _ := newAggregator(DefaultOptions()).Evaluate(lotsOf(frames), frames)

	if got := value(t, report, KeyAccuracy).All; math.Abs(got.Float()-0.25) > 1e-12 {
		t.Fatalf("expected accuracy 0.25, got %v", got)
	}
	if got := value(t, report, KeyAccuracyExclFP).All; math.Abs(got.Float()-0.5) > 1e-12 {
		t.Fatalf("expected excl accuracy 0.5, got %v", got)
	}
	if got := value(t, report, KeyNGTotal).All; got != 3 {
		t.Fatalf("expected ng_total 3, got %v", got)
	}
	// 4 detections - 1 fp, no wrong out, no resend.
	if got := value(t, report, KeyVehicleTotal).All; got != 3 {
		t.Fatalf("expected vehicle_total 3, got %v", got)
	}
}

func TestVehicleTotalIncludesMisses(t *testing.T) {
	c := Counters{DetectAll: 10, WrongOut: 1, NGFP: 2, Resend: 3, MissOut: 1, MissIn: 2}
	if got := c.VehicleTotal(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestReportRowOrderIsStable(t *testing.T) {
	report := BuildReport(Result{})
	if len(report.Rows) != len(Metrics) {
		t.Fatalf("expected %d rows, got %d", len(Metrics), len(report.Rows))
	}
	for i, m := range Metrics {
		if report.Rows[i].Key != m.Key || report.Rows[i].Label != m.Label {
			t.Fatalf("row %d: got %s/%s, want %s/%s", i, report.Rows[i].Key, report.Rows[i].Label, m.Key, m.Label)
		}
	}
	if report.Rows[0].Label != "検知総数" || report.Rows[len(report.Rows)-1].Key != KeyAccuracyExclFP {
		t.Fatal("report must start with detections and end with the excl accuracy")
	}
}

func TestMovingFramesExcludedButLabeled(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: false, vs: parking.VehicleMoving},
		fixture{lot: "A", occupied: true, vs: parking.VehicleStop, status: parking.OK},
		fixture{lot: "A", occupied: true, vs: parking.VehicleMoving},
	)
	c := parking.NewCollection(frames)
	labeling.AutoLabel(c)

	if frames[0].Status != parking.MovingIn {
		t.Fatalf("frame1: expected MovingIn, got %s", frames[0].Status)
	}
	if frames[2].Status != parking.MovingOut {
		t.Fatalf("frame3: expected MovingOut, got %s", frames[2].Status)
	}

	report, res := newAggregator(DefaultOptions()).Evaluate(c.Lots(), c.Frames())
	if res.All.DetectAll != 1 || res.All.DetectOK != 1 {
		t.Fatalf("detect_all=%d detect_ok=%d", res.All.DetectAll, res.All.DetectOK)
	}
	if res.All.Resend != 0 {
		t.Fatalf("moving frames must not feed resend, got %d", res.All.Resend)
	}
	if got := value(t, report, KeyAccuracy).All; got != 1 {
		t.Fatalf("expected accuracy 1.0, got %v", got)
	}
}

func TestIncludeMovingCountsUnknownStatus(t *testing.T) {
	frames := build(
		fixture{lot: "A", occupied: true, vs: parking.VehicleMoving, status: parking.MovingOut},
	)
	opts := DefaultOptions()
	opts.ExcludeMoving = false
	res := newAggregator(opts).Aggregate(lotsOf(frames), frames)
	if res.All.DetectAll != 1 || res.All.Unclassified != 1 {
		t.Fatalf("expected the moving frame as unclassified detection: %+v", res.All)
	}
}

func TestMerge(t *testing.T) {
	a := BuildReport(Result{All: Counters{DetectAll: 4, DetectOK: 2}})
	b := BuildReport(Result{All: Counters{DetectAll: 2, DetectOK: 2}})
	empty := BuildReport(Result{})

	table := Merge([]NamedReport{{"day1", a}, {"day2", b}, {"day3", empty}}, false)
	if len(table.Columns) != 3 || table.Columns[1] != "day2" {
		t.Fatalf("unexpected columns %v", table.Columns)
	}

	for _, row := range table.Rows {
		switch row.Key {
		case KeyDetectAll:
			if row.Summary != 6 {
				t.Fatalf("expected detect_all sum 6, got %v", row.Summary)
			}
		case KeyAccuracy:
			if !row.Values[2].IsNaN() {
				t.Fatal("empty session accuracy must be NaN")
			}
			if math.Abs(row.Summary.Float()-0.75) > 1e-12 {
				t.Fatalf("expected mean accuracy 0.75, got %v", row.Summary)
			}
		}
	}
}
