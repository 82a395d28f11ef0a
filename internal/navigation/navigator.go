// Package navigation keeps the reviewer's position inside a filtered view of
// a session.
package navigation

import (
	"fmt"

	"parkeval-service/internal/domain/parking"
)

// Option is an extra frame predicate selectable by the reviewer.
type Option string

const (
	OptionNone           Option = ""
	OptionGTUnknown      Option = "gt_unknown"
	OptionMissIn         Option = "miss_in"
	OptionMissOut        Option = "miss_out"
	OptionFirst          Option = "first"
	OptionNotFirst       Option = "not_first"
	OptionConfNG         Option = "conf_ng"
	OptionConfOK         Option = "conf_ok"
	OptionTopFormatNG    Option = "top_format_ng"
	OptionTopFormatOK    Option = "top_format_ok"
	OptionBottomFormatNG Option = "bottom_format_ng"
	OptionBottomFormatOK Option = "bottom_format_ok"
	OptionFormatNG       Option = "format_ng"
	OptionMoveYNG        Option = "move_y_ng"
)

// Filter selects the frames the reviewer steps through. The zero value
// shows every frame.
type Filter struct {
	Lot        string          `json:"lot,omitempty"`
	HideMoving bool            `json:"hide_moving,omitempty"`
	Status     *parking.Status `json:"status,omitempty"`
	Option     Option          `json:"option,omitempty"`
}

// Thresholds used by predicate options.
type Thresholds struct {
	Conf  float64
	MoveY int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Conf: parking.DefaultConfThreshold}
}

// Predicate builds the frame test for an option. It returns an error for an
// unknown option.
func Predicate(c *parking.Collection, opt Option, th Thresholds) (func(*parking.Frame) bool, error) {
	switch opt {
	case OptionNone:
		return func(*parking.Frame) bool { return true }, nil
	case OptionGTUnknown:
		return func(f *parking.Frame) bool { return f.IsGTUnknown }, nil
	case OptionMissIn:
		return func(f *parking.Frame) bool { return f.IsMissIn }, nil
	case OptionMissOut:
		return func(f *parking.Frame) bool { return f.IsMissOut }, nil
	case OptionFirst:
		return func(f *parking.Frame) bool { return f.IsFirst }, nil
	case OptionNotFirst:
		return func(f *parking.Frame) bool { return !f.IsFirst }, nil
	case OptionConfNG:
		return func(f *parking.Frame) bool { return f.IsConfNG(th.Conf) }, nil
	case OptionConfOK:
		return func(f *parking.Frame) bool { return !f.IsConfNG(th.Conf) }, nil
	case OptionTopFormatNG:
		return (*parking.Frame).IsTopFormatNG, nil
	case OptionTopFormatOK:
		return func(f *parking.Frame) bool { return !f.IsTopFormatNG() }, nil
	case OptionBottomFormatNG:
		return (*parking.Frame).IsBottomFormatNG, nil
	case OptionBottomFormatOK:
		return func(f *parking.Frame) bool { return !f.IsBottomFormatNG() }, nil
	case OptionFormatNG:
		return (*parking.Frame).IsFormatNG, nil
	case OptionMoveYNG:
		return func(f *parking.Frame) bool { return c.IsMoveYNG(f, th.MoveY) }, nil
	default:
		return nil, fmt.Errorf("unknown filter option %q", opt)
	}
}

// Navigator is a cursor over the frames matching a Filter.
type Navigator struct {
	coll   *parking.Collection
	th     Thresholds
	filter Filter
	view   []*parking.Frame
	pos    int
}

func NewNavigator(c *parking.Collection, th Thresholds) *Navigator {
	n := &Navigator{coll: c, th: th}
	n.view = visible(c, Filter{})
	return n
}

// Select returns the frames of c matching f. When f matches nothing it is
// dropped entirely and every frame is returned together with the zero
// Filter; applied is false in that case.
func Select(c *parking.Collection, f Filter, th Thresholds) (view []*parking.Frame, effective Filter, applied bool, err error) {
	pred, err := Predicate(c, f.Option, th)
	if err != nil {
		return nil, f, false, err
	}

	base := visible(c, f)
	view = make([]*parking.Frame, 0, len(base))
	for _, fr := range base {
		if f.Status != nil && fr.Status != *f.Status {
			continue
		}
		if pred(fr) {
			view = append(view, fr)
		}
	}

	if len(view) == 0 && c.Len() > 0 {
		return visible(c, Filter{}), Filter{}, false, nil
	}
	return view, f, true, nil
}

// SetFilter rebuilds the view with Select and moves the cursor to the
// first frame.
func (n *Navigator) SetFilter(f Filter) (bool, error) {
	view, effective, applied, err := Select(n.coll, f, n.th)
	if err != nil {
		return false, err
	}
	n.filter = effective
	n.view = view
	n.pos = 0
	return applied, nil
}

// visible applies the lot and moving parts of f.
func visible(c *parking.Collection, f Filter) []*parking.Frame {
	out := make([]*parking.Frame, 0, c.Len())
	for _, fr := range c.Frames() {
		if f.Lot != "" && fr.Lot != f.Lot {
			continue
		}
		if f.HideMoving && fr.IsMoving() {
			continue
		}
		out = append(out, fr)
	}
	return out
}

func (n *Navigator) Filter() Filter { return n.filter }

func (n *Navigator) View() []*parking.Frame { return n.view }

// Position returns the cursor index and the view size.
func (n *Navigator) Position() (int, int) { return n.pos, len(n.view) }

// Current returns the frame under the cursor, or nil for an empty view.
func (n *Navigator) Current() *parking.Frame {
	if len(n.view) == 0 {
		return nil
	}
	return n.view[n.pos]
}

// Next advances the cursor, wrapping to the start. wrapped is true when the
// cursor jumped back to the first frame.
func (n *Navigator) Next() (f *parking.Frame, wrapped bool) {
	if len(n.view) == 0 {
		return nil, false
	}
	if n.pos >= len(n.view)-1 {
		n.pos = 0
		return n.view[n.pos], true
	}
	n.pos++
	return n.view[n.pos], false
}

// Prev moves the cursor back, wrapping to the end.
func (n *Navigator) Prev() (f *parking.Frame, wrapped bool) {
	if len(n.view) == 0 {
		return nil, false
	}
	if n.pos <= 0 {
		n.pos = len(n.view) - 1
		return n.view[n.pos], true
	}
	n.pos--
	return n.view[n.pos], false
}

// Seek moves the cursor to the frame with id. It returns false when the
// frame is not in the current view.
func (n *Navigator) Seek(id string) bool {
	for i, f := range n.view {
		if f.ID == id {
			n.pos = i
			return true
		}
	}
	return false
}
