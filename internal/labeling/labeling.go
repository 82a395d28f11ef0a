// Package labeling fills in labels that follow mechanically from the
// detector output of neighbouring frames.
package labeling

import (
	"parkeval-service/internal/domain/parking"
)

// AutoLabel infers MovingIn/MovingOut for every Moving frame from the
// occupancy of the frame before it in the same lot. Non-moving frames are
// left untouched. It returns the number of frames it labeled.
func AutoLabel(c *parking.Collection) int {
	labeled := 0
	groups := parking.GroupByLot(c.Frames())
	for _, lot := range c.Lots() {
		labeled += autoLabelLot(groups[lot])
	}
	return labeled
}

func autoLabelLot(frames []*parking.Frame) int {
	labeled := 0
	var last *parking.Frame
	for _, f := range frames {
		if !f.IsMoving() {
			last = f
			continue
		}

		switch {
		case last == nil:
			if f.IsOccupied {
				f.Status = parking.MovingOut
			} else {
				f.Status = parking.MovingIn
			}
			labeled++
		case !last.IsOccupied:
			f.Status = parking.MovingIn
			labeled++
		case last.IsStop():
			f.Status = parking.MovingOut
			labeled++
		case last.IsMoving():
			f.Status = last.Status
			labeled++
		}
		last = f
	}
	return labeled
}

// DefaultLinkThresholdY is the plate end position below which an exit is
// considered for linking.
const DefaultLinkThresholdY = 0

// LinkMovement attaches each MovingOut frame to the Stop frame it most
// likely left from, so that the vertical plate displacement can be checked.
// The Stop frame right after a Wrong_Out is skipped because it belongs to
// the vehicle that actually remained. Previous links are cleared first.
func LinkMovement(c *parking.Collection, thresholdY int) int {
	linked := 0
	groups := parking.GroupByLot(c.Frames())
	for _, lot := range c.Lots() {
		linked += linkLot(groups[lot], thresholdY)
	}
	return linked
}

func linkLot(frames []*parking.Frame, thresholdY int) int {
	linked := 0
	var lastStop *parking.Frame
	wrongOutHappened := false

	for _, f := range frames {
		f.StopFrameID = ""

		switch {
		case f.IsStop():
			if wrongOutHappened {
				wrongOutHappened = false
				continue
			}
			lastStop = f
		case f.Status == parking.WrongOut:
			wrongOutHappened = true
		case f.Status == parking.MovingOut:
			if lastStop != nil && f.MovePlateEndY != nil && *f.MovePlateEndY < thresholdY {
				f.StopFrameID = lastStop.ID
				linked++
			}
		}
	}
	return linked
}
