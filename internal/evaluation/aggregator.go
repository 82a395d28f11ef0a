package evaluation

import (
	"math"

	"github.com/rs/zerolog"

	"parkeval-service/internal/domain/parking"
)

// Aggregator turns labeled frames into the KPI report.
type Aggregator struct {
	opts Options
	log  zerolog.Logger
}

func NewAggregator(opts Options, log zerolog.Logger) *Aggregator {
	if opts.ResendPolicy == "" {
		opts.ResendPolicy = ResendGlobal
	}
	return &Aggregator{
		opts: opts,
		log:  log,
	}
}

// Aggregate scans lots in the given order and, inside each lot, frames in
// load order. Frames whose lot is not listed are ignored.
func (a *Aggregator) Aggregate(lots []string, frames []*parking.Frame) Result {
	var res Result

	if a.opts.ExcludeMoving {
		kept := make([]*parking.Frame, 0, len(frames))
		for _, f := range frames {
			if !f.IsMoving() {
				kept = append(kept, f)
			}
		}
		frames = kept
	}

	groups := parking.GroupByLot(frames)
	occupiedLast := false

	for _, lot := range lots {
		if a.opts.ResendPolicy == ResendPerLot {
			occupiedLast = false
		}

		for _, f := range groups[lot] {
			resend := f.IsOccupied && occupiedLast
			known := res.All.add(f, resend)
			if f.IsFirst {
				res.First.add(f, resend)
			}

			if f.IsOccupied && !known && f.Status != parking.NoLabel {
				a.log.Warn().
					Str("frame_id", f.ID).
					Str("lot", f.Lot).
					Str("status", f.Status.String()).
					Msg("unknown status for occupied frame")
			}
			if f.Status == parking.NoLabel {
				res.Unlabeled++
			}

			occupiedLast = f.IsOccupied
		}
	}

	if res.Unlabeled > 0 {
		a.log.Debug().Int("unlabeled", res.Unlabeled).Msg("no label data exists for some frames")
	}

	return res
}

// Evaluate aggregates and formats the report in one step.
func (a *Aggregator) Evaluate(lots []string, frames []*parking.Frame) (*Report, Result) {
	res := a.Aggregate(lots, frames)
	return BuildReport(res), res
}

// add counts f into c and reports whether an occupied frame landed in one of
// the OK/NG buckets.
func (c *Counters) add(f *parking.Frame, resend bool) bool {
	if f.Status == parking.WrongOut {
		c.WrongOut++
	}
	if f.IsMissIn {
		c.MissIn++
	}
	if f.IsMissOut {
		c.MissOut++
	}

	if !f.IsOccupied {
		return false
	}

	c.DetectAll++
	if resend {
		c.Resend++
	}
	if f.IsGTUnknown {
		c.GTUnknown++
	}

	switch f.Status {
	case parking.OK:
		c.DetectOK++
	case parking.NGOut:
		c.NGOut++
	case parking.NGShadow:
		c.NGShadow++
	case parking.NGOcclusion:
		c.NGOcclusion++
	case parking.NGFP:
		c.NGFP++
	case parking.NGBlur:
		c.NGBlur++
	case parking.NGOverExposure:
		c.NGOverExposure++
	case parking.NGAI:
		c.NGAI++
	case parking.NGOthers:
		c.NGOthers++
	default:
		c.Unclassified++
		return false
	}
	return true
}

// BuildReport formats a Result. Undefined ratios are NaN in the "all"
// column and 0 in the "first" column.
func BuildReport(res Result) *Report {
	all, first := res.All, res.First

	values := make(map[string][2]Number, len(Metrics))
	set := func(key string, a, f Number) { values[key] = [2]Number{a, f} }
	setInt := func(key string, a, f int) { set(key, Number(a), Number(f)) }

	setInt(KeyDetectAll, all.DetectAll, first.DetectAll)
	setInt(KeyVehicleTotal, all.VehicleTotal(), first.VehicleTotal())
	setInt(KeyMissIn, all.MissIn, first.MissIn)
	setInt(KeyMissOut, all.MissOut, first.MissOut)
	setInt(KeyWrongOut, all.WrongOut, first.WrongOut)
	setInt(KeyDetectOK, all.DetectOK, first.DetectOK)
	setInt(KeyNGTotal, all.NGTotal(), first.NGTotal())
	setInt(KeyNGOut, all.NGOut, first.NGOut)
	setInt(KeyNGShadow, all.NGShadow, first.NGShadow)
	setInt(KeyNGOcclusion, all.NGOcclusion, first.NGOcclusion)
	setInt(KeyNGFP, all.NGFP, first.NGFP)
	setInt(KeyNGBlur, all.NGBlur, first.NGBlur)
	setInt(KeyNGOverExposure, all.NGOverExposure, first.NGOverExposure)
	setInt(KeyNGAI, all.NGAI, first.NGAI)
	setInt(KeyNGOthers, all.NGOthers, first.NGOthers)
	setInt(KeyGTUnknown, all.GTUnknown, first.GTUnknown)
	setInt(KeyResend, all.Resend, first.Resend)

	set(KeyAccuracy,
		ratio(all.DetectOK, all.DetectAll, math.NaN()),
		ratio(first.DetectOK, first.DetectAll, 0))
	set(KeyAccuracyExclFP,
		ratio(all.DetectOK, all.DetectAll-all.NGFP-all.NGOut, math.NaN()),
		ratio(first.DetectOK, first.DetectAll-first.NGFP-first.NGOut, 0))

	rows := make([]Row, 0, len(Metrics))
	for _, m := range Metrics {
		v := values[m.Key]
		rows = append(rows, Row{
			Key:   m.Key,
			Label: m.Label,
			Kind:  m.Kind,
			All:   v[0],
			First: v[1],
		})
	}
	return &Report{Rows: rows}
}

func ratio(num, den int, undefined float64) Number {
	if den <= 0 {
		return Number(undefined)
	}
	return Number(float64(num) / float64(den))
}
