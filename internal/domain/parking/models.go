package parking

// VehicleStatus is the detector's movement state for a lot.
type VehicleStatus string

const (
	VehicleStop   VehicleStatus = "Stop"
	VehicleMoving VehicleStatus = "Moving"
	VehicleNone   VehicleStatus = "None"
)

// NormalizeVehicleStatus maps unknown or empty values to VehicleNone.
func NormalizeVehicleStatus(v string) VehicleStatus {
	switch VehicleStatus(v) {
	case VehicleStop, VehicleMoving:
		return VehicleStatus(v)
	default:
		return VehicleNone
	}
}

const DefaultConfThreshold = 0.3

type BBox struct {
	XMin   *float64 `json:"xmin,omitempty"`
	YMin   *float64 `json:"ymin,omitempty"`
	XMax   *float64 `json:"xmax,omitempty"`
	YMax   *float64 `json:"ymax,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Score  *float64 `json:"score,omitempty"`
}

type PlateText struct {
	Top           *string  `json:"top,omitempty"`
	TopQuality    *float64 `json:"top_quality,omitempty"`
	Bottom        *string  `json:"bottom,omitempty"`
	BottomQuality *float64 `json:"bottom_quality,omitempty"`
}

// Detection is the part of a frame produced by the recognition pipeline.
// It is never modified after loading.
type Detection struct {
	IsOccupied      bool          `json:"is_occupied"`
	IsOcclusion     *bool         `json:"is_occlusion,omitempty"`
	IsUncertain     *bool         `json:"is_uncertain,omitempty"`
	VehicleStatus   VehicleStatus `json:"vehicle_status"`
	Vehicle         BBox          `json:"vehicle_bbox"`
	PlateBox        BBox          `json:"plate_bbox"`
	Plate           PlateText     `json:"plate"`
	PlateConfidence *float64      `json:"plate_confidence,omitempty"`
	PlateCount      *int          `json:"plate_count,omitempty"`
	VehicleCount    *int          `json:"vehicle_count,omitempty"`
	MovePlateEndY   *int          `json:"move_plate_end_y,omitempty"`
}

// Labels holds the reviewer-editable part of a frame.
type Labels struct {
	Status      Status `json:"status"`
	IsMissIn    bool   `json:"is_miss_in"`
	IsMissOut   bool   `json:"is_miss_out"`
	IsGTUnknown bool   `json:"is_gt_unknown"`
	IsFirst     bool   `json:"is_first"`
}

// Frame is one detection event for one lot.
type Frame struct {
	ID        string `json:"frame_id"`
	Lot       string `json:"lot"`
	Timestamp string `json:"timestamp"`
	IsPS      bool   `json:"is_ps"`

	Detection
	Labels

	// StopFrameID points at the Stop frame this exit was linked to by the
	// movement linker. It is a lookup key into the owning Collection.
	StopFrameID string `json:"stop_frame_id,omitempty"`
}

// Name is the image base name shared by the IT and RAW artifacts.
func (f *Frame) Name() string {
	name := f.Timestamp + "_" + f.Lot
	if f.IsPS {
		return name + "_ps"
	}
	return name
}

func (f *Frame) IsMoving() bool { return f.VehicleStatus == VehicleMoving }

func (f *Frame) IsStop() bool { return f.VehicleStatus == VehicleStop }

// IsConfNG reports a moving frame whose plate confidence is below threshold.
// Frames without a confidence value are never NG.
func (f *Frame) IsConfNG(threshold float64) bool {
	if f.PlateConfidence == nil || !f.IsMoving() {
		return false
	}
	return *f.PlateConfidence < threshold
}

// IsTopFormatNG reports a parked frame whose top plate line is malformed or
// missing.
func (f *Frame) IsTopFormatNG() bool {
	if !f.IsStop() {
		return false
	}
	return f.Plate.Top == nil || !ValidTopLine(*f.Plate.Top)
}

// IsBottomFormatNG reports a parked frame whose bottom plate line is
// malformed or missing.
func (f *Frame) IsBottomFormatNG() bool {
	if !f.IsStop() {
		return false
	}
	return f.Plate.Bottom == nil || !ValidBottomLine(*f.Plate.Bottom)
}

// IsFormatNG is true when either plate line fails validation.
func (f *Frame) IsFormatNG() bool {
	return f.IsTopFormatNG() || f.IsBottomFormatNG()
}
