package parking

// Collection owns the frames of one loaded session in load order.
// Frames are never removed; filtered views are plain slices of pointers.
type Collection struct {
	frames []*Frame
	lots   []string
	byID   map[string][]int
}

// NewCollection keeps frames in the given order and records lots in
// first-seen order.
func NewCollection(frames []*Frame) *Collection {
	c := &Collection{
		frames: frames,
		byID:   make(map[string][]int, len(frames)),
	}
	seen := make(map[string]bool)
	for i, f := range frames {
		c.byID[f.ID] = append(c.byID[f.ID], i)
		if !seen[f.Lot] {
			seen[f.Lot] = true
			c.lots = append(c.lots, f.Lot)
		}
	}
	return c
}

func (c *Collection) Frames() []*Frame { return c.frames }

func (c *Collection) Lots() []string { return c.lots }

func (c *Collection) Len() int { return len(c.frames) }

// Lookup returns every frame carrying id. More than one result means the
// session has duplicated documents.
func (c *Collection) Lookup(id string) []*Frame {
	idx := c.byID[id]
	out := make([]*Frame, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.frames[i])
	}
	return out
}

// Frame returns the frame with the given id when it is unique.
func (c *Collection) Frame(id string) (*Frame, bool) {
	idx := c.byID[id]
	if len(idx) != 1 {
		return nil, false
	}
	return c.frames[idx[0]], true
}

// GroupByLot partitions frames per lot preserving order inside each lot.
func GroupByLot(frames []*Frame) map[string][]*Frame {
	out := make(map[string][]*Frame)
	for _, f := range frames {
		out[f.Lot] = append(out[f.Lot], f)
	}
	return out
}

// StopFrame resolves the back-reference set by the movement linker.
func (c *Collection) StopFrame(f *Frame) (*Frame, bool) {
	if f.StopFrameID == "" {
		return nil, false
	}
	return c.Frame(f.StopFrameID)
}

// DiffMoveY is the vertical plate displacement between an exit frame and
// the Stop frame it was linked to. ok is false when the value is undefined.
func (c *Collection) DiffMoveY(f *Frame) (diff int, ok bool) {
	if f.Status != MovingOut || f.MovePlateEndY == nil {
		return 0, false
	}
	stop, found := c.StopFrame(f)
	if !found || stop.MovePlateEndY == nil {
		return 0, false
	}
	return *f.MovePlateEndY - *stop.MovePlateEndY, true
}

// IsMoveYNG reports an exit whose plate ended lower than the parked plate by
// more than threshold pixels.
func (c *Collection) IsMoveYNG(f *Frame, threshold int) bool {
	diff, ok := c.DiffMoveY(f)
	if !ok {
		return false
	}
	return diff > threshold
}
