package production

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
	"github.com/odyssey-erp/floorflow/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	articles map[string]Article
	// beforeSave runs inside Save ahead of the version check.
	beforeSave func(r *memoryRepo, a Article)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{articles: make(map[string]Article)}
}

func (r *memoryRepo) Create(_ context.Context, a Article) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Version = 1
	r.articles[a.ID] = a.Clone()
	return a, nil
}

func (r *memoryRepo) Load(_ context.Context, id string) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return Article{}, shared.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *memoryRepo) Save(_ context.Context, a Article) (Article, error) {
	if hook := r.beforeSave; hook != nil {
		r.beforeSave = nil
		hook(r, a)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.articles[a.ID]
	if !ok {
		return Article{}, shared.ErrNotFound
	}
	if stored.Version != a.Version {
		return Article{}, shared.ErrConflict
	}
	a.Version++
	r.articles[a.ID] = a.Clone()
	return a, nil
}

func (r *memoryRepo) ListActive(_ context.Context, afterID string, limit int) ([]Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.articles))
	for id, a := range r.articles {
		if a.Status != StatusCompleted && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Article, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.articles[id].Clone())
	}
	return out, nil
}

type memorySink struct {
	mu      sync.Mutex
	records []AuditRecord
	err     error
}

func (s *memorySink) Append(_ context.Context, rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type hookRecorder struct {
	events []FloorAdvancedEvent
	err    error
}

func (h *hookRecorder) OnFloorAdvanced(_ context.Context, evt FloorAdvancedEvent) error {
	h.events = append(h.events, evt)
	return h.err
}

type countingRecorder struct {
	mutations     map[string]int
	auditFailures int
	advances      []string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{mutations: make(map[string]int)}
}

func (c *countingRecorder) ObserveMutation(op, result string) { c.mutations[op+":"+result]++ }
func (c *countingRecorder) ObserveAuditFailure(string)        { c.auditFailures++ }
func (c *countingRecorder) ObserveFloorAdvance(floor string)  { c.advances = append(c.advances, floor) }

type memoryIdempotency struct {
	keys map[string]string
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = ""
	return nil
}

func (m *memoryIdempotency) Bind(_ context.Context, key, _, id string) error {
	m.keys[key] = id
	return nil
}

func (m *memoryIdempotency) Resolve(_ context.Context, key, _ string) (string, error) {
	id, ok := m.keys[key]
	if !ok {
		return "", shared.ErrNotFound
	}
	return id, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type serviceFixture struct {
	svc     *Service
	repo    *memoryRepo
	sink    *memorySink
	hook    *hookRecorder
	metrics *countingRecorder
	locker  *shared.Locker
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &serviceFixture{
		repo:    newMemoryRepo(),
		sink:    &memorySink{},
		hook:    &hookRecorder{},
		metrics: newCountingRecorder(),
		locker:  shared.NewLocker(client, shared.LockerConfig{}),
	}
	f.svc = NewService(ServiceDeps{
		Repository:  f.repo,
		Engine:      testEngine(),
		Locker:      f.locker,
		Audit:       f.sink,
		FloorHook:   f.hook,
		Idempotency: &memoryIdempotency{keys: make(map[string]string)},
		Metrics:     f.metrics,
	})
	return f
}

func (f *serviceFixture) create(t *testing.T, planned int) Article {
	t.Helper()
	res, err := f.svc.CreateArticle(context.Background(), CreateArticleInput{
		OrderID:         "PO-7",
		ArticleCode:     "SW-2002",
		PlannedQuantity: planned,
		RoutingMode:     floors.HandLinking,
	})
	require.NoError(t, err)
	require.True(t, res.Audit.OK())
	return res.Article
}

func TestServiceFlowPersistsAndAudits(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 1000)
	require.EqualValues(t, 1, a.Version)

	res, err := f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 750, Actor: Actor{ID: "op-1"}})
	require.NoError(t, err)
	require.Equal(t, AuditOutcome{Recorded: 1}, res.Audit)
	require.EqualValues(t, 2, res.Article.Version)

	res, err = f.svc.TransferToNextFloor(ctx, a.ID, TransferInput{Quantity: 750})
	require.NoError(t, err)
	require.Equal(t, floors.Linking, res.Article.CurrentFloor)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, res.Article, stored)

	require.Len(t, f.sink.records, 3)
	require.Equal(t, ActionArticleCreated, f.sink.records[0].Action)
	require.Equal(t, ActionCompletedRecorded, f.sink.records[1].Action)
	require.Equal(t, ActionTransferred, f.sink.records[2].Action)

	require.Len(t, f.hook.events, 1)
	evt := f.hook.events[0]
	require.Equal(t, a.ID, evt.ArticleID)
	require.Equal(t, "PO-7", evt.OrderID)
	require.Equal(t, floors.Knitting, evt.From)
	require.Equal(t, floors.Linking, evt.To)
	require.Equal(t, 75, evt.Progress)
	require.Equal(t, []string{"Linking"}, f.metrics.advances)
	require.Equal(t, 1, f.metrics.mutations["transfer:ok"])
}

func TestServiceAuditFailureDoesNotRollBack(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 100)
	f.sink.err = errors.New("audit store unavailable")

	res, err := f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 40})
	require.NoError(t, err)
	require.False(t, res.Audit.OK())
	require.Equal(t, 1, res.Audit.Failed)
	require.Equal(t, "audit store unavailable", res.Audit.Reason)
	require.Equal(t, 1, f.metrics.auditFailures)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 40, stored.Ledgers[floors.Knitting].Completed)
}

func TestServiceFloorHookFailureIsSwallowed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 100)
	f.hook.err = errors.New("order service down")

	_, err := f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 100})
	require.NoError(t, err)
	res, err := f.svc.TransferToNextFloor(ctx, a.ID, TransferInput{Quantity: 100})
	require.NoError(t, err)
	require.Equal(t, floors.Linking, res.Article.CurrentFloor)
	require.Len(t, f.hook.events, 1)
}

func TestServiceRejectionLeavesStoreUntouched(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 100)

	_, err := f.svc.TransferToNextFloor(ctx, a.ID, TransferInput{Quantity: 10})
	require.ErrorIs(t, err, ErrInsufficientQuantity)
	require.Equal(t, 1, f.metrics.mutations["transfer:insufficient_quantity"])

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a, stored)
	require.Len(t, f.sink.records, 1)
}

func TestServiceSurfacesVersionConflict(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 100)

	f.repo.beforeSave = func(r *memoryRepo, _ Article) {
		r.mu.Lock()
		defer r.mu.Unlock()
		other := r.articles[a.ID]
		other.Version++
		r.articles[a.ID] = other
	}
	_, err := f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 10})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 1, f.metrics.mutations["record_completed:conflict"])
	require.Len(t, f.sink.records, 1)
}

func TestServiceRejectsWhileLocked(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 100)

	release, err := f.locker.Obtain(ctx, shared.ArticleLockKey(a.ID))
	require.NoError(t, err)

	_, err = f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 10})
	require.ErrorIs(t, err, shared.ErrLocked)

	require.NoError(t, release(ctx))
	_, err = f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 10})
	require.NoError(t, err)
}

func TestServiceUnknownArticle(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.RecordCompleted(context.Background(), "missing", RecordCompletedInput{Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceCreateIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	in := CreateArticleInput{
		OrderID:         "PO-9",
		ArticleCode:     "SW-9",
		PlannedQuantity: 20,
		RoutingMode:     floors.AutoLinking,
		IdempotencyKey:  "req-123",
	}
	first, err := f.svc.CreateArticle(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.CreateArticle(ctx, in)
	require.NoError(t, err)
	require.Equal(t, first.Article.ID, second.Article.ID)
	require.Len(t, f.repo.articles, 1)
	require.Len(t, f.sink.records, 1)

	in.IdempotencyKey = "req-124"
	in.ArticleCode = "bad code"
	_, err = f.svc.CreateArticle(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)
	in.ArticleCode = "SW-10"
	_, err = f.svc.CreateArticle(ctx, in)
	require.NoError(t, err)
	require.Len(t, f.repo.articles, 2)
}

func TestServiceRecomputeProgressCorrectsDrift(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.create(t, 100)
	_, err := f.svc.RecordCompleted(ctx, a.ID, RecordCompletedInput{Quantity: 40})
	require.NoError(t, err)

	changed, err := f.svc.RecomputeProgress(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, changed)

	f.repo.mu.Lock()
	drifted := f.repo.articles[a.ID]
	drifted.Progress = 12
	f.repo.articles[a.ID] = drifted
	f.repo.mu.Unlock()

	changed, err = f.svc.RecomputeProgress(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, changed)
	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 40, stored.Progress)
}

func TestServiceListActive(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.create(t, 10)
	f.create(t, 20)

	page, err := f.svc.ListActive(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	rest, err := f.svc.ListActive(ctx, page[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.NotEqual(t, page[0].ID, rest[0].ID)
}
