package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/evaluation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

type ReviewSession struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Dir        string         `gorm:"not null"`
	FrameCount int            `gorm:"not null"`
	Lots       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

type FrameLabel struct {
	SessionID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	FrameID     string    `gorm:"primaryKey"`
	Lot         string    `gorm:"primaryKey"`
	Status      int       `gorm:"not null"`
	IsMissIn    bool
	IsMissOut   bool
	IsGTUnknown bool
	IsFirst     bool
	StopFrameID *string
	UpdatedAt   time.Time
}

type EvalReport struct {
	ID            int64                                   `gorm:"primaryKey"`
	SessionID     uuid.UUID                               `gorm:"type:uuid;not null"`
	CountersAll   datatypes.JSONType[evaluation.Counters] `gorm:"type:jsonb;not null"`
	CountersFirst datatypes.JSONType[evaluation.Counters] `gorm:"type:jsonb;not null"`
	Report        datatypes.JSON                          `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time
}

func (ReviewSession) TableName() string { return "review_sessions" }

func (FrameLabel) TableName() string { return "frame_labels" }

func (EvalReport) TableName() string { return "eval_reports" }

func (r *ReviewRepository) CreateSession(ctx context.Context, id uuid.UUID, dir string, c *parking.Collection) error {
	lots, err := json.Marshal(c.Lots())
	if err != nil {
		return err
	}
	row := ReviewSession{
		ID:         id,
		Dir:        dir,
		FrameCount: c.Len(),
		Lots:       datatypes.JSON(lots),
		CreatedAt:  time.Now(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// SaveLabels upserts the reviewer labels of every frame.
func (r *ReviewRepository) SaveLabels(ctx context.Context, sessionID uuid.UUID, frames []*parking.Frame) (int, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	now := time.Now()
	rows := make([]FrameLabel, 0, len(frames))
	for _, f := range frames {
		row := FrameLabel{
			SessionID:   sessionID,
			FrameID:     f.ID,
			Lot:         f.Lot,
			Status:      int(f.Status),
			IsMissIn:    f.IsMissIn,
			IsMissOut:   f.IsMissOut,
			IsGTUnknown: f.IsGTUnknown,
			IsFirst:     f.IsFirst,
			UpdatedAt:   now,
		}
		if f.StopFrameID != "" {
			stop := f.StopFrameID
			row.StopFrameID = &stop
		}
		rows = append(rows, row)
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "frame_id"}, {Name: "lot"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "is_miss_in", "is_miss_out", "is_gt_unknown", "is_first", "stop_frame_id", "updated_at",
			}),
		}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *ReviewRepository) SaveReport(ctx context.Context, sessionID uuid.UUID, report *evaluation.Report, res evaluation.Result) (int64, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return 0, err
	}
	row := EvalReport{
		SessionID:     sessionID,
		CountersAll:   datatypes.NewJSONType(res.All),
		CountersFirst: datatypes.NewJSONType(res.First),
		Report:        datatypes.JSON(body),
		CreatedAt:     time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// LatestReport returns the most recent report snapshot of a session and
// the time it was saved.
func (r *ReviewRepository) LatestReport(ctx context.Context, sessionID uuid.UUID) (*evaluation.Report, time.Time, error) {
	row, err := r.latestRow(ctx, sessionID)
	if err != nil {
		return nil, time.Time{}, err
	}
	report, err := row.DecodeReport()
	if err != nil {
		return nil, time.Time{}, err
	}
	return report, row.CreatedAt, nil
}

func (r *ReviewRepository) latestRow(ctx context.Context, sessionID uuid.UUID) (*EvalReport, error) {
	var row EvalReport
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DecodeReport unmarshals the stored report rows.
func (e *EvalReport) DecodeReport() (*evaluation.Report, error) {
	var report evaluation.Report
	if err := json.Unmarshal(e.Report, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
