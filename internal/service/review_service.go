package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parkeval-service/internal/config"
	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/evaluation"
	"parkeval-service/internal/labeling"
	"parkeval-service/internal/loader"
	"parkeval-service/internal/navigation"
	"parkeval-service/internal/repository"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Store persists review results. It is optional; a nil Store keeps the
// service file-only.
type Store interface {
	CreateSession(ctx context.Context, id uuid.UUID, dir string, c *parking.Collection) error
	SaveLabels(ctx context.Context, sessionID uuid.UUID, frames []*parking.Frame) (int, error)
	SaveReport(ctx context.Context, sessionID uuid.UUID, report *evaluation.Report, res evaluation.Result) (int64, error)
	LatestReport(ctx context.Context, sessionID uuid.UUID) (*evaluation.Report, time.Time, error)
}

type session struct {
	mu       sync.Mutex
	id       uuid.UUID
	dir      string
	loadedAt time.Time
	coll     *parking.Collection
	nav      *navigation.Navigator
}

type ReviewService struct {
	store      Store
	loaderOpts loader.Options
	evalOpts   evaluation.Options
	thresholds navigation.Thresholds
	linkY      int
	log        zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

func NewReviewService(store Store, cfg config.ReviewConfig, log zerolog.Logger) (*ReviewService, error) {
	evalOpts, err := cfg.EvalOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &ReviewService{
		store:      store,
		loaderOpts: cfg.LoaderOptions(),
		evalOpts:   evalOpts,
		thresholds: navigation.Thresholds{Conf: cfg.ConfThreshold, MoveY: cfg.MoveYThreshold},
		linkY:      cfg.LinkThresholdY,
		log:        log,
		sessions:   make(map[uuid.UUID]*session),
	}, nil
}

// LoadSession reads a session directory and registers it.
func (s *ReviewService) LoadSession(ctx context.Context, dir string) (*SessionInfo, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: dir is required", ErrInvalidInput)
	}

	coll, err := loader.Load(dir, s.loaderOpts, s.log)
	if err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("failed to load session")
		if errors.Is(err, loader.ErrNoMetaDir) || errors.Is(err, loader.ErrNoDocuments) || errors.Is(err, loader.ErrNoFrames) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess := &session{
		id:       uuid.New(),
		dir:      dir,
		loadedAt: time.Now(),
		coll:     coll,
		nav:      navigation.NewNavigator(coll, s.thresholds),
	}
	info := sess.info()

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.CreateSession(ctx, sess.id, dir, coll); err != nil {
			s.log.Error().Err(err).Str("session_id", sess.id.String()).Msg("failed to persist session")
		}
	}

	s.log.Info().
		Str("session_id", sess.id.String()).
		Str("dir", dir).
		Int("frames", coll.Len()).
		Int("lots", len(coll.Lots())).
		Msg("session loaded")

	return &info, nil
}

func (s *ReviewService) Sessions() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sess.mu.Lock()
		out = append(out, sess.info())
		sess.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LoadedAt.Before(out[j].LoadedAt) })
	return out
}

func (s *ReviewService) Session(id uuid.UUID) (*SessionInfo, error) {
	var info SessionInfo
	err := s.with(id, func(sess *session) error {
		info = sess.info()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *ReviewService) CloseSession(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// with runs fn while holding the session lock.
func (s *ReviewService) with(id uuid.UUID, fn func(*session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess)
}

// Frames returns the frames matching filter. applied is false when the
// filter matched nothing and every frame was returned instead. The
// navigation cursor is left untouched.
func (s *ReviewService) Frames(id uuid.UUID, filter navigation.Filter) (views []FrameView, applied bool, err error) {
	if err := validateFilter(filter); err != nil {
		return nil, false, err
	}
	err = s.with(id, func(sess *session) error {
		view, _, ok, serr := navigation.Select(sess.coll, filter, s.thresholds)
		if serr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, serr)
		}
		applied = ok
		views = make([]FrameView, 0, len(view))
		for _, f := range view {
			views = append(views, s.view(sess.coll, f))
		}
		return nil
	})
	return views, applied, err
}

func validateFilter(filter navigation.Filter) error {
	if filter.Status != nil && !filter.Status.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidInput, int(*filter.Status))
	}
	return nil
}

// Frame returns one frame. lot disambiguates frame ids shared by several
// lots and may be empty.
func (s *ReviewService) Frame(id uuid.UUID, frameID, lot string) (*FrameView, error) {
	var out FrameView
	err := s.with(id, func(sess *session) error {
		f, err := find(sess.coll, frameID, lot)
		if err != nil {
			return err
		}
		out = s.view(sess.coll, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLabels applies a reviewer edit.
func (s *ReviewService) UpdateLabels(id uuid.UUID, frameID, lot string, patch LabelPatch) (*FrameView, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidInput, int(*patch.Status))
	}
	var out FrameView
	err := s.with(id, func(sess *session) error {
		f, err := find(sess.coll, frameID, lot)
		if err != nil {
			return err
		}
		patch.apply(f)
		out = s.view(sess.coll, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("session_id", id.String()).
		Str("frame_id", frameID).
		Str("status", out.Status.String()).
		Msg("labels updated")
	return &out, nil
}

func find(c *parking.Collection, frameID, lot string) (*parking.Frame, error) {
	if frameID == "" {
		return nil, fmt.Errorf("%w: frame_id is required", ErrInvalidInput)
	}
	var matches []*parking.Frame
	for _, f := range c.Lookup(frameID) {
		if lot == "" || f.Lot == lot {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: frame %s", ErrNotFound, frameID)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: frame %s matches %d lots, lot is required", ErrInvalidInput, frameID, len(matches))
	}
}

// AutoLabel runs the moving-state inference over the session.
func (s *ReviewService) AutoLabel(id uuid.UUID) (int, error) {
	var n int
	err := s.with(id, func(sess *session) error {
		n = labeling.AutoLabel(sess.coll)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("session_id", id.String()).Int("labeled", n).Msg("auto-labeling finished")
	return n, nil
}

// LinkMovement links exits to their Stop frames.
func (s *ReviewService) LinkMovement(id uuid.UUID) (int, error) {
	var n int
	err := s.with(id, func(sess *session) error {
		n = labeling.LinkMovement(sess.coll, s.linkY)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("session_id", id.String()).Int("linked", n).Msg("movement linking finished")
	return n, nil
}

func (s *ReviewService) Evaluate(id uuid.UUID) (*evaluation.Report, evaluation.Result, error) {
	var (
		report *evaluation.Report
		res    evaluation.Result
	)
	err := s.with(id, func(sess *session) error {
		report, res = s.evaluate(sess)
		return nil
	})
	return report, res, err
}

func (s *ReviewService) evaluate(sess *session) (*evaluation.Report, evaluation.Result) {
	agg := evaluation.NewAggregator(s.evalOpts, s.log.With().Str("session_id", sess.id.String()).Logger())
	return agg.Evaluate(sess.coll.Lots(), sess.coll.Frames())
}

// LatestReport returns the last persisted report of a session. It works
// for sessions that are no longer loaded, e.g. after a restart.
func (s *ReviewService) LatestReport(ctx context.Context, id uuid.UUID) (*StoredReport, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: persistence is disabled", ErrNotFound)
	}
	report, savedAt, err := s.store.LatestReport(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: no saved report for session %s", ErrNotFound, id)
	}
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to load saved report")
		return nil, fmt.Errorf("failed to load saved report: %w", err)
	}
	return &StoredReport{SessionID: id, SavedAt: savedAt, Rows: report.Rows}, nil
}

// SaveEval writes eval.csv into the session directory and stores a
// snapshot when persistence is enabled.
func (s *ReviewService) SaveEval(ctx context.Context, id uuid.UUID) (*SaveResult, error) {
	var (
		out    SaveResult
		report *evaluation.Report
		res    evaluation.Result
	)
	err := s.with(id, func(sess *session) error {
		report, res = s.evaluate(sess)
		path, err := loader.SaveReport(sess.dir, report)
		if err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		out = SaveResult{Path: path, Report: report}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to save eval")
		return nil, err
	}

	if s.store != nil {
		if _, err := s.store.SaveReport(ctx, id, report, res); err != nil {
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to persist report")
		} else {
			out.Persisted = true
		}
	}

	s.log.Info().Str("session_id", id.String()).Str("path", out.Path).Msg("eval saved")
	return &out, nil
}

// SaveLabels writes label.csv into the session directory and upserts the
// labels when persistence is enabled.
func (s *ReviewService) SaveLabels(ctx context.Context, id uuid.UUID) (*SaveResult, error) {
	var (
		out    SaveResult
		frames []*parking.Frame
	)
	err := s.with(id, func(sess *session) error {
		path, err := loader.SaveLabels(sess.dir, sess.coll.Frames())
		if err != nil {
			return fmt.Errorf("failed to save labels: %w", err)
		}
		out = SaveResult{Path: path, Frames: sess.coll.Len()}
		frames = snapshot(sess.coll.Frames())
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to save labels")
		return nil, err
	}

	if s.store != nil {
		if _, err := s.store.SaveLabels(ctx, id, frames); err != nil {
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to persist labels")
		} else {
			out.Persisted = true
		}
	}

	s.log.Info().Str("session_id", id.String()).Str("path", out.Path).Int("frames", out.Frames).Msg("labels saved")
	return &out, nil
}

// snapshot copies frames so the store can read them without the session
// lock.
func snapshot(frames []*parking.Frame) []*parking.Frame {
	out := make([]*parking.Frame, len(frames))
	for i, f := range frames {
		cp := *f
		out[i] = &cp
	}
	return out
}

// Navigate moves the session cursor. A non-nil filter replaces the view
// and resets the cursor first; a non-empty seek then positions it on that
// frame. Step is "next", "prev" or "current".
func (s *ReviewService) Navigate(id uuid.UUID, filter *navigation.Filter, step Step, seek string) (*NavState, error) {
	if filter != nil {
		if err := validateFilter(*filter); err != nil {
			return nil, err
		}
	}
	out := NavState{FilterApplied: true}
	err := s.with(id, func(sess *session) error {
		if filter != nil {
			applied, ferr := sess.nav.SetFilter(*filter)
			if ferr != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, ferr)
			}
			out.FilterApplied = applied
		}
		if seek != "" && !sess.nav.Seek(seek) {
			return fmt.Errorf("%w: frame %s is not in the current view", ErrNotFound, seek)
		}

		var f *parking.Frame
		switch step {
		case StepNext:
			f, out.Wrapped = sess.nav.Next()
		case StepPrev:
			f, out.Wrapped = sess.nav.Prev()
		case StepCurrent, "":
			f = sess.nav.Current()
		default:
			return fmt.Errorf("%w: unknown step %q", ErrInvalidInput, step)
		}

		out.Position, out.Total = sess.nav.Position()
		out.Filter = sess.nav.Filter()
		if f != nil {
			v := s.view(sess.coll, f)
			out.Frame = &v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
