package parking

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Status is the reviewer outcome of a frame. Ordinals are persisted in
// label.csv and must never be renumbered.
type Status int

const (
	NoLabel Status = iota
	OK
	NGOut
	NGShadow
	NGOcclusion
	NGFP
	NGBlur
	NGOthers
	OKOut
	WrongOut
	NGOverExposure
	NGAI
	MovingIn
	MovingOut
)

var statusNames = [...]string{
	NoLabel:        "NoLabel",
	OK:             "OK",
	NGOut:          "NG_Out",
	NGShadow:       "NG_Shadow",
	NGOcclusion:    "NG_Occlusion",
	NGFP:           "NG_FP",
	NGBlur:         "NG_Blur",
	NGOthers:       "NG_Others",
	OKOut:          "OK_Out",
	WrongOut:       "Wrong_Out",
	NGOverExposure: "NG_OverExposure",
	NGAI:           "NG_AI",
	MovingIn:       "MovingIn",
	MovingOut:      "MovingOut",
}

var statusLabels = [...]string{
	NoLabel:        "",
	OK:             "OK",
	NGOut:          "NG（見切れ）",
	NGShadow:       "NG（影）",
	NGOcclusion:    "NG（Occlusion）",
	NGFP:           "NG（FP）",
	NGBlur:         "NG（ブラー）",
	NGOthers:       "NG（その他）",
	OKOut:          "OK（出庫）",
	WrongOut:       "誤出庫",
	NGOverExposure: "NG（白飛び）",
	NGAI:           "NG（AI）",
	MovingIn:       "入庫中",
	MovingOut:      "出庫中",
}

// Statuses lists every status in ordinal order.
func Statuses() []Status {
	out := make([]Status, 0, len(statusNames))
	for i := range statusNames {
		out = append(out, Status(i))
	}
	return out
}

// Valid reports whether s is one of the known ordinals.
func (s Status) Valid() bool {
	return s >= NoLabel && int(s) < len(statusNames)
}

// String returns the identifier used in the status_label column.
func (s Status) String() string {
	if !s.Valid() {
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// Label returns the reviewer-facing display text.
func (s Status) Label() string {
	if !s.Valid() {
		return s.String()
	}
	return statusLabels[s]
}

// IsNG reports whether s is one of the defect buckets counted by the
// evaluation report.
func (s Status) IsNG() bool {
	switch s {
	case NGOut, NGShadow, NGOcclusion, NGFP, NGBlur, NGOverExposure, NGAI, NGOthers:
		return true
	default:
		return false
	}
}

// StatusFromOrdinal converts a persisted ordinal into a Status.
func StatusFromOrdinal(v int) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return NoLabel, fmt.Errorf("unknown status ordinal %d", v)
	}
	return s, nil
}

// ParseStatus accepts either the identifier name or the ordinal.
func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return NoLabel, fmt.Errorf("unknown status %q", v)
	}
	return StatusFromOrdinal(n)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalJSON accepts the identifier name, the ordinal as a string, or
// the ordinal as a JSON number.
func (s *Status) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &v); err != nil {
			return err
		}
		return s.UnmarshalText([]byte(v))
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid status %s", b)
	}
	v, err := StatusFromOrdinal(n)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
