package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
	"github.com/odyssey-erp/floorflow/internal/shared"
)

const idempotencyModule = "production"

// RepositoryPort abstracts article persistence for the service. Save must
// fail with shared.ErrConflict when the stored version moved since load.
type RepositoryPort interface {
	Create(ctx context.Context, a Article) (Article, error)
	Load(ctx context.Context, id string) (Article, error)
	Save(ctx context.Context, a Article) (Article, error)
	ListActive(ctx context.Context, afterID string, limit int) ([]Article, error)
}

// LockPort provides the per-article single-writer section.
type LockPort interface {
	Obtain(ctx context.Context, key string) (func(context.Context) error, error)
}

// IdempotencyPort guards article creation retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Bind(ctx context.Context, key, module, resourceID string) error
	Resolve(ctx context.Context, key, module string) (string, error)
	Delete(ctx context.Context, key string) error
}

// FloorAdvanceHook lets an order aggregate mirror the article's current floor.
type FloorAdvanceHook interface {
	OnFloorAdvanced(ctx context.Context, evt FloorAdvancedEvent) error
}

// Recorder receives operational counters.
type Recorder interface {
	ObserveMutation(operation, result string)
	ObserveAuditFailure(action string)
	ObserveFloorAdvance(floor string)
}

// Result is the outcome of a committed operation.
type Result struct {
	Article Article      `json:"article"`
	Audit   AuditOutcome `json:"audit"`
}

// ServiceDeps groups collaborators of Service. Only Repository is required.
type ServiceDeps struct {
	Repository  RepositoryPort
	Engine      *Engine
	Locker      LockPort
	Audit       AuditSink
	FloorHook   FloorAdvanceHook
	Idempotency IdempotencyPort
	Metrics     Recorder
	Logger      *slog.Logger
}

// Service coordinates article floor flow: one locked load, one engine
// operation, one save, then best-effort audit and floor notifications.
type Service struct {
	repo        RepositoryPort
	engine      *Engine
	locker      LockPort
	audit       AuditSink
	floorHook   FloorAdvanceHook
	idempotency IdempotencyPort
	metrics     Recorder
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(deps ServiceDeps) *Service {
	engine := deps.Engine
	if engine == nil {
		engine = NewEngine(EngineConfig{})
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repository,
		engine:      engine,
		locker:      deps.Locker,
		audit:       deps.Audit,
		floorHook:   deps.FloorHook,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// CreateArticle registers a new article at the first floor of its routing.
func (s *Service) CreateArticle(ctx context.Context, input CreateArticleInput) (Result, error) {
	if s.idempotency != nil && input.IdempotencyKey != "" {
		err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return s.replayCreate(ctx, input.IdempotencyKey)
		}
		if err != nil {
			return Result{}, err
		}
	}
	m, err := s.engine.NewArticle(input)
	if err == nil {
		m.Article, err = s.repo.Create(ctx, m.Article)
	}
	if err != nil {
		s.observe("create", err)
		if s.idempotency != nil && input.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Result{}, err
	}
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.Bind(ctx, input.IdempotencyKey, idempotencyModule, m.Article.ID); err != nil {
			s.logger.Warn("bind idempotency key", slog.String("article_id", m.Article.ID), slog.Any("error", err))
		}
	}
	s.observe("create", nil)
	return Result{Article: m.Article, Audit: s.dispatchAudit(ctx, m.Records)}, nil
}

func (s *Service) replayCreate(ctx context.Context, key string) (Result, error) {
	id, err := s.idempotency.Resolve(ctx, key, idempotencyModule)
	if err != nil {
		return Result{}, err
	}
	if id == "" {
		return Result{}, fmt.Errorf("%w: creation with this key still in flight", shared.ErrConflict)
	}
	a, err := s.repo.Load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return Result{Article: a}, nil
}

// Get loads an article.
func (s *Service) Get(ctx context.Context, id string) (Article, error) {
	return s.repo.Load(ctx, id)
}

// RecordCompleted records completed work on a floor.
func (s *Service) RecordCompleted(ctx context.Context, id string, in RecordCompletedInput) (Result, error) {
	return s.apply(ctx, id, "record_completed", func(a Article) (Mutation, error) {
		return s.engine.RecordCompleted(a, in)
	})
}

// TransferToNextFloor moves completed units downstream and advances the article.
func (s *Service) TransferToNextFloor(ctx context.Context, id string, in TransferInput) (Result, error) {
	return s.apply(ctx, id, "transfer", func(a Article) (Mutation, error) {
		return s.engine.TransferToNextFloor(a, in)
	})
}

// TransferFromFloor moves straggling units of a passed floor downstream.
func (s *Service) TransferFromFloor(ctx context.Context, id string, in BackfillTransferInput) (Result, error) {
	return s.apply(ctx, id, "backfill_transfer", func(a Article) (Mutation, error) {
		return s.engine.TransferFromFloor(a, in)
	})
}

// UpdateQualityCategories regrades the current inspection floor.
func (s *Service) UpdateQualityCategories(ctx context.Context, id string, in QualityInput) (Result, error) {
	return s.apply(ctx, id, "update_quality", func(a Article) (Mutation, error) {
		return s.engine.UpdateQualityCategories(a, in)
	})
}

// ShiftM2Items moves re-inspected M2 units into other grades.
func (s *Service) ShiftM2Items(ctx context.Context, id string, in ShiftInput) (Result, error) {
	return s.apply(ctx, id, "shift_m2", func(a Article) (Mutation, error) {
		return s.engine.ShiftM2Items(a, in)
	})
}

// ConfirmFinalQuality toggles the quality gate.
func (s *Service) ConfirmFinalQuality(ctx context.Context, id string, in ConfirmInput) (Result, error) {
	return s.apply(ctx, id, "confirm_quality", func(a Article) (Mutation, error) {
		return s.engine.ConfirmFinalQuality(a, in)
	})
}

// ListActive pages through articles that are not completed.
func (s *Service) ListActive(ctx context.Context, afterID string, limit int) ([]Article, error) {
	return s.repo.ListActive(ctx, afterID, limit)
}

// RecomputeProgress rewrites the cached progress when it drifted from the
// ledgers. It reports whether a correction was saved.
func (s *Service) RecomputeProgress(ctx context.Context, id string) (bool, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	a, err := s.repo.Load(ctx, id)
	if err != nil {
		return false, err
	}
	progress := Progress(a)
	if progress == a.Progress {
		return false, nil
	}
	s.logger.Info("progress drift corrected",
		slog.String("article_id", a.ID),
		slog.Int("cached", a.Progress),
		slog.Int("derived", progress))
	a.Progress = progress
	if _, err := s.repo.Save(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) apply(ctx context.Context, id, operation string, op func(Article) (Mutation, error)) (Result, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		s.observe(operation, err)
		return Result{}, err
	}
	defer release()

	current, err := s.repo.Load(ctx, id)
	if err != nil {
		s.observe(operation, err)
		return Result{}, err
	}
	m, err := op(current)
	if err != nil {
		s.observe(operation, err)
		return Result{}, err
	}
	saved, err := s.repo.Save(ctx, m.Article)
	if err != nil {
		s.observe(operation, err)
		return Result{}, err
	}
	s.observe(operation, nil)

	outcome := s.dispatchAudit(ctx, m.Records)
	if m.Advanced {
		s.notifyAdvance(ctx, saved, m.From, m.To)
	}
	return Result{Article: saved, Audit: outcome}, nil
}

func (s *Service) lock(ctx context.Context, id string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Obtain(ctx, shared.ArticleLockKey(id))
	if err != nil {
		return nil, err
	}
	return func() {
		// Release must run even when the request context was cancelled.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release article lock", slog.String("article_id", id), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) dispatchAudit(ctx context.Context, records []AuditRecord) AuditOutcome {
	var outcome AuditOutcome
	if s.audit == nil {
		return outcome
	}
	for _, rec := range records {
		if err := s.audit.Append(ctx, rec); err != nil {
			outcome.Failed++
			outcome.Reason = err.Error()
			s.logger.Warn("append audit record",
				slog.String("article_id", rec.ArticleID),
				slog.String("action", string(rec.Action)),
				slog.Any("error", err))
			if s.metrics != nil {
				s.metrics.ObserveAuditFailure(string(rec.Action))
			}
			continue
		}
		outcome.Recorded++
	}
	return outcome
}

func (s *Service) notifyAdvance(ctx context.Context, a Article, from, to floors.Floor) {
	if s.metrics != nil {
		s.metrics.ObserveFloorAdvance(string(to))
	}
	if s.floorHook == nil {
		return
	}
	evt := FloorAdvancedEvent{
		ArticleID: a.ID,
		OrderID:   a.OrderID,
		From:      from,
		To:        to,
		Progress:  a.Progress,
		At:        a.UpdatedAt,
	}
	if err := s.floorHook.OnFloorAdvanced(ctx, evt); err != nil {
		s.logger.Warn("floor advance hook",
			slog.String("article_id", a.ID),
			slog.String("floor", string(to)),
			slog.Any("error", err))
	}
}

func (s *Service) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveMutation(operation, resultLabel(err))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, ErrQualityOverflow):
		return "quality_overflow"
	case errors.Is(err, ErrShiftMismatch):
		return "shift_mismatch"
	case errors.Is(err, ErrIllegalFloorOperation):
		return "illegal_floor_operation"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrLocked):
		return "locked"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	}
	return "error"
}
