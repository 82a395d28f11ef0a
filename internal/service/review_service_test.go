package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parkeval-service/internal/config"
	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/evaluation"
	"parkeval-service/internal/loader"
	"parkeval-service/internal/navigation"
	"parkeval-service/internal/repository"
)

type fakeStore struct {
	fail     bool
	sessions []uuid.UUID
	labels   int
	reports  int
	saved    map[uuid.UUID]*evaluation.Report
}

var errStore = errors.New("store unavailable")

func (f *fakeStore) CreateSession(_ context.Context, id uuid.UUID, _ string, _ *parking.Collection) error {
	if f.fail {
		return errStore
	}
	f.sessions = append(f.sessions, id)
	return nil
}

func (f *fakeStore) SaveLabels(_ context.Context, _ uuid.UUID, frames []*parking.Frame) (int, error) {
	if f.fail {
		return 0, errStore
	}
	f.labels += len(frames)
	return len(frames), nil
}

func (f *fakeStore) SaveReport(_ context.Context, id uuid.UUID, report *evaluation.Report, _ evaluation.Result) (int64, error) {
	if f.fail {
		return 0, errStore
	}
	if f.saved == nil {
		f.saved = make(map[uuid.UUID]*evaluation.Report)
	}
	f.saved[id] = report
	f.reports++
	return int64(f.reports), nil
}

func (f *fakeStore) LatestReport(_ context.Context, id uuid.UUID) (*evaluation.Report, time.Time, error) {
	if f.fail {
		return nil, time.Time{}, errStore
	}
	report, ok := f.saved[id]
	if !ok {
		return nil, time.Time{}, repository.ErrNotFound
	}
	return report, time.Now(), nil
}

func reviewConfig() config.ReviewConfig {
	return config.ReviewConfig{
		ConfThreshold: parking.DefaultConfThreshold,
		ResendPolicy:  string(evaluation.ResendGlobal),
		ExcludeMoving: true,
	}
}

// writeSession creates META documents for lot "1": moving in, parked,
// moving out.
func writeSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	meta := filepath.Join(dir, loader.MetaDir)
	if err := os.Mkdir(meta, 0o755); err != nil {
		t.Fatal(err)
	}
	docs := []struct {
		ts       string
		occupied bool
		status   string
		endY     int
	}{
		{"20240105101500000", false, "Moving", 10},
		{"20240105101600000", true, "Stop", -40},
		{"20240105102000000", true, "Moving", -20},
	}
	for _, d := range docs {
		entry := fmt.Sprintf(`{"Lot": "1", "TimeStamp": %q, "Is_Occupied": %t, "Vehicle_Status": %q,
			"Plate_Number": {"Top": "品川58", "Bottom": "あ12-34"}, "Plate_Confidence": 0.9,
			"Move_Plate_End_Y": %d}`, d.ts, d.occupied, d.status, d.endY)
		body := `{"Inference_Results": [{"parking_lot_info": [` + entry + `]}]}`
		name := d.ts + "_1.json"
		if err := os.WriteFile(filepath.Join(meta, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newService(t *testing.T, store Store) *ReviewService {
	t.Helper()
	svc, err := NewReviewService(store, reviewConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestLoadSessionValidation(t *testing.T) {
	svc := newService(t, nil)
	if _, err := svc.LoadSession(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.LoadSession(context.Background(), t.TempDir()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing META, got %v", err)
	}
	if _, err := svc.Frame(uuid.New(), "x", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewWorkflow(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store)
	ctx := context.Background()

	info, err := svc.LoadSession(ctx, writeSession(t))
	if err != nil {
		t.Fatal(err)
	}
	if info.Frames != 3 || info.Unlabeled != 3 || len(store.sessions) != 1 {
		t.Fatalf("unexpected session info %+v", info)
	}

	n, err := svc.AutoLabel(info.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 auto labels, got %d %v", n, err)
	}
	if _, err := svc.LinkMovement(info.ID); err != nil {
		t.Fatal(err)
	}

	out, err := svc.Frame(info.ID, "20240105102000000_1.json", "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != parking.MovingOut || out.StopFrameID != "20240105101600000_1.json" {
		t.Fatalf("unexpected exit frame %+v", out.Frame)
	}
	if out.DiffMoveY == nil || *out.DiffMoveY != 20 || !out.MoveYNG {
		t.Fatalf("unexpected move y %v %v", out.DiffMoveY, out.MoveYNG)
	}
	if out.StopGapMillis == nil || *out.StopGapMillis != 240000 {
		t.Fatalf("unexpected stop gap %v", out.StopGapMillis)
	}
	if out.TimeJST != "2024/01/05 19:20:00.000" {
		t.Fatalf("unexpected JST time %s", out.TimeJST)
	}

	ok := parking.OK
	yes := true
	if _, err := svc.UpdateLabels(info.ID, "20240105101600000_1.json", "1", LabelPatch{Status: &ok, IsFirst: &yes}); err != nil {
		t.Fatal(err)
	}

	report, _, err := svc.Evaluate(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row, _ := report.Value(evaluation.KeyDetectOK); row.All != 1 || row.First != 1 {
		t.Fatalf("unexpected detect_ok row %+v", row)
	}

	saved, err := svc.SaveEval(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.Persisted || store.reports != 1 {
		t.Fatalf("report not persisted: %+v", saved)
	}
	if _, err := os.Stat(saved.Path); err != nil {
		t.Fatal(err)
	}

	labels, err := svc.SaveLabels(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if labels.Frames != 3 || store.labels != 3 {
		t.Fatalf("unexpected label save %+v", labels)
	}
	body, err := os.ReadFile(labels.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), ",1,OK") {
		t.Fatalf("label file misses the reviewed status:\n%s", body)
	}
}

func TestUpdateLabelsRejectsUnknownStatus(t *testing.T) {
	svc := newService(t, nil)
	info, err := svc.LoadSession(context.Background(), writeSession(t))
	if err != nil {
		t.Fatal(err)
	}
	bad := parking.Status(99)
	_, err = svc.UpdateLabels(info.ID, "20240105101600000_1.json", "", LabelPatch{Status: &bad})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.UpdateLabels(info.ID, "missing.json", "", LabelPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreFailureDoesNotFailSave(t *testing.T) {
	svc := newService(t, &fakeStore{fail: true})
	ctx := context.Background()
	info, err := svc.LoadSession(ctx, writeSession(t))
	if err != nil {
		t.Fatal(err)
	}
	saved, err := svc.SaveEval(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Persisted {
		t.Fatal("persisted must be false when the store fails")
	}
	if _, err := os.Stat(filepath.Join(info.Dir, loader.EvalFileName)); err != nil {
		t.Fatal(err)
	}
}

func TestLatestReportOutlivesSession(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store)
	ctx := context.Background()

	info, err := svc.LoadSession(ctx, writeSession(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.LatestReport(ctx, info.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before saving, got %v", err)
	}
	if _, err := svc.SaveEval(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseSession(info.ID); err != nil {
		t.Fatal(err)
	}

	stored, err := svc.LatestReport(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.SessionID != info.ID || len(stored.Rows) != len(evaluation.Metrics) {
		t.Fatalf("unexpected stored report %+v", stored)
	}

	if _, err := newService(t, nil).LatestReport(ctx, info.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a store, got %v", err)
	}
	_, err = newService(t, &fakeStore{fail: true}).LatestReport(ctx, info.ID)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a store error, got %v", err)
	}
}

func TestFramesAndNavigate(t *testing.T) {
	svc := newService(t, nil)
	info, err := svc.LoadSession(context.Background(), writeSession(t))
	if err != nil {
		t.Fatal(err)
	}

	st, err := svc.Navigate(info.ID, nil, StepNext, "")
	if err != nil || st.Position != 1 || st.Total != 3 {
		t.Fatalf("unexpected nav state %+v %v", st, err)
	}

	views, applied, err := svc.Frames(info.ID, navigation.Filter{HideMoving: true})
	if err != nil || !applied || len(views) != 1 {
		t.Fatalf("unexpected view %d %v %v", len(views), applied, err)
	}

	missing := parking.NGBlur
	views, applied, err = svc.Frames(info.ID, navigation.Filter{Status: &missing})
	if err != nil || applied || len(views) != 3 {
		t.Fatalf("expected fallback to the full view, got %d %v %v", len(views), applied, err)
	}

	if _, _, err := svc.Frames(info.ID, navigation.Filter{Option: "bogus"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	st, err = svc.Navigate(info.ID, nil, StepCurrent, "")
	if err != nil {
		t.Fatal(err)
	}
	if st.Position != 1 || st.Total != 3 || st.Frame.ID != "20240105101600000_1.json" {
		t.Fatalf("listing frames must not move the cursor, got %+v", st)
	}

	st, err = svc.Navigate(info.ID, &navigation.Filter{HideMoving: true}, StepCurrent, "")
	if err != nil {
		t.Fatal(err)
	}
	if !st.FilterApplied || st.Total != 1 || st.Position != 0 {
		t.Fatalf("unexpected filtered nav state %+v", st)
	}

	st, err = svc.Navigate(info.ID, &navigation.Filter{Lot: "9"}, StepPrev, "")
	if err != nil {
		t.Fatal(err)
	}
	if st.FilterApplied || !st.Wrapped || st.Position != 2 || st.Total != 3 {
		t.Fatalf("expected fallback to the full view, got %+v", st)
	}

	st, err = svc.Navigate(info.ID, nil, StepNext, "20240105101500000_1.json")
	if err != nil {
		t.Fatal(err)
	}
	if st.Position != 1 || st.Frame.ID != "20240105101600000_1.json" {
		t.Fatalf("unexpected nav state %+v", st)
	}
	if _, err := svc.Navigate(info.ID, nil, "sideways", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
