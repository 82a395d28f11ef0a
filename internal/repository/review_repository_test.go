package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parkeval-service/internal/db"
	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/evaluation"
)

// Runs against a real PostgreSQL when PARKEVAL_TEST_DSN is set.
func newTestRepository(t *testing.T) *ReviewRepository {
	t.Helper()
	dsn := os.Getenv("PARKEVAL_TEST_DSN")
	if dsn == "" {
		t.Skip("PARKEVAL_TEST_DSN not set")
	}
	conn, err := db.Open(dsn, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return NewReviewRepository(conn)
}

func TestReviewRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	frames := []*parking.Frame{
		{ID: "20240105101600000_1.json", Lot: "1", Labels: parking.Labels{Status: parking.OK}},
		{ID: "20240105102000000_1.json", Lot: "1", Labels: parking.Labels{Status: parking.MovingOut}, StopFrameID: "20240105101600000_1.json"},
	}
	id := uuid.New()
	if err := repo.CreateSession(ctx, id, "/data/session", parking.NewCollection(frames)); err != nil {
		t.Fatal(err)
	}

	if n, err := repo.SaveLabels(ctx, id, frames); err != nil || n != 2 {
		t.Fatalf("save labels: %d %v", n, err)
	}
	frames[0].Status = parking.NGBlur
	if _, err := repo.SaveLabels(ctx, id, frames); err != nil {
		t.Fatalf("upsert labels: %v", err)
	}

	if _, _, err := repo.LatestReport(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	report, res := evaluation.NewAggregator(evaluation.DefaultOptions(), zerolog.Nop()).Evaluate([]string{"1"}, frames)
	if _, err := repo.SaveReport(ctx, id, report, res); err != nil {
		t.Fatal(err)
	}
	row, err := repo.latestRow(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if row.CountersAll.Data().NGBlur != 1 {
		t.Fatalf("unexpected counters %+v", row.CountersAll.Data())
	}
	decoded, savedAt, err := repo.LatestReport(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded.Rows) != len(evaluation.Metrics) || savedAt.IsZero() {
		t.Fatalf("unexpected snapshot: %d rows saved at %v", len(decoded.Rows), savedAt)
	}
}
