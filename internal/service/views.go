package service

import (
	"time"

	"github.com/google/uuid"

	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/evaluation"
	"parkeval-service/internal/navigation"
	"parkeval-service/internal/utils"
)

type SessionInfo struct {
	ID        uuid.UUID `json:"id"`
	Dir       string    `json:"dir"`
	Frames    int       `json:"frames"`
	Lots      []string  `json:"lots"`
	Unlabeled int       `json:"unlabeled"`
	LoadedAt  time.Time `json:"loaded_at"`
}

func (sess *session) info() SessionInfo {
	unlabeled := 0
	for _, f := range sess.coll.Frames() {
		if f.Status == parking.NoLabel {
			unlabeled++
		}
	}
	return SessionInfo{
		ID:        sess.id,
		Dir:       sess.dir,
		Frames:    sess.coll.Len(),
		Lots:      append([]string(nil), sess.coll.Lots()...),
		Unlabeled: unlabeled,
		LoadedAt:  sess.loadedAt,
	}
}

// FrameView is a copy of a frame plus the derived predicates shown to the
// reviewer.
type FrameView struct {
	parking.Frame

	StatusLabel    string `json:"status_label"`
	TimeJST        string `json:"time_jst,omitempty"`
	ConfNG         bool   `json:"conf_ng"`
	TopFormatNG    bool   `json:"top_format_ng"`
	BottomFormatNG bool   `json:"bottom_format_ng"`
	DiffMoveY      *int   `json:"diff_move_y,omitempty"`
	MoveYNG        bool   `json:"move_y_ng"`

	// StopGapMillis is the time since the linked Stop frame.
	StopGapMillis *int64 `json:"stop_gap_ms,omitempty"`
}

func (s *ReviewService) view(c *parking.Collection, f *parking.Frame) FrameView {
	v := FrameView{
		Frame:          *f,
		StatusLabel:    f.Status.Label(),
		ConfNG:         f.IsConfNG(s.thresholds.Conf),
		TopFormatNG:    f.IsTopFormatNG(),
		BottomFormatNG: f.IsBottomFormatNG(),
		MoveYNG:        c.IsMoveYNG(f, s.thresholds.MoveY),
	}
	if t, err := utils.ParseTimestamp(f.Timestamp); err == nil {
		v.TimeJST = utils.FormatJST(t)
	}
	if d, ok := c.DiffMoveY(f); ok {
		v.DiffMoveY = &d
	}
	if stop, ok := c.StopFrame(f); ok {
		if gap, err := utils.DiffTimestamp(stop.Timestamp, f.Timestamp); err == nil {
			ms := gap.Milliseconds()
			v.StopGapMillis = &ms
		}
	}
	return v
}

// LabelPatch carries a reviewer edit. Nil fields are left unchanged.
type LabelPatch struct {
	Status      *parking.Status `json:"status,omitempty"`
	IsMissIn    *bool           `json:"is_miss_in,omitempty"`
	IsMissOut   *bool           `json:"is_miss_out,omitempty"`
	IsGTUnknown *bool           `json:"is_gt_unknown,omitempty"`
	IsFirst     *bool           `json:"is_first,omitempty"`
}

func (p LabelPatch) Empty() bool {
	return p.Status == nil && p.IsMissIn == nil && p.IsMissOut == nil && p.IsGTUnknown == nil && p.IsFirst == nil
}

func (p LabelPatch) apply(f *parking.Frame) {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.IsMissIn != nil {
		f.IsMissIn = *p.IsMissIn
	}
	if p.IsMissOut != nil {
		f.IsMissOut = *p.IsMissOut
	}
	if p.IsGTUnknown != nil {
		f.IsGTUnknown = *p.IsGTUnknown
	}
	if p.IsFirst != nil {
		f.IsFirst = *p.IsFirst
	}
}

type SaveResult struct {
	Path      string             `json:"path"`
	Frames    int                `json:"frames,omitempty"`
	Report    *evaluation.Report `json:"report,omitempty"`
	Persisted bool               `json:"persisted"`
}

type StoredReport struct {
	SessionID uuid.UUID        `json:"session_id"`
	SavedAt   time.Time        `json:"saved_at"`
	Rows      []evaluation.Row `json:"rows"`
}

type Step string

const (
	StepNext    Step = "next"
	StepPrev    Step = "prev"
	StepCurrent Step = "current"
)

type NavState struct {
	Frame         *FrameView        `json:"frame"`
	Position      int               `json:"position"`
	Total         int               `json:"total"`
	Wrapped       bool              `json:"wrapped"`
	Filter        navigation.Filter `json:"filter"`
	FilterApplied bool              `json:"filter_applied"`
}
