package production

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

// Mutation is the committed result of one engine operation.
type Mutation struct {
	Article Article
	Records []AuditRecord
	// Advanced is set when the current floor moved forward.
	Advanced bool
	From     floors.Floor
	To       floors.Floor
}

// EngineConfig groups optional engine settings.
type EngineConfig struct {
	MaxPlannedQuantity int
	Clock              func() time.Time
}

// Engine applies floor flow operations to an article aggregate. It performs
// no I/O; every operation works on a copy and returns it only when all
// validations passed.
type Engine struct {
	validate   *validator.Validate
	maxPlanned int
	clock      func() time.Time
}

// NewEngine builds Engine.
func NewEngine(cfg EngineConfig) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxPlanned := cfg.MaxPlannedQuantity
	if maxPlanned <= 0 {
		maxPlanned = DefaultMaxPlannedQuantity
	}
	return &Engine{validate: newValidator(), maxPlanned: maxPlanned, clock: clock}
}

func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// NewArticle creates an article with every ledger of its routing zeroed and
// the first floor holding the planned quantity.
func (e *Engine) NewArticle(input CreateArticleInput) (Mutation, error) {
	input.ArticleCode = strings.ToUpper(strings.TrimSpace(input.ArticleCode))
	input.OrderID = strings.TrimSpace(input.OrderID)
	if err := ValidateCreateInput(e.validate, input, e.maxPlanned); err != nil {
		return Mutation{}, err
	}
	seq, err := floors.Sequence(input.RoutingMode)
	if err != nil {
		return Mutation{}, err
	}
	now := e.now()
	a := Article{
		ID:              uuid.NewString(),
		OrderID:         input.OrderID,
		ArticleCode:     input.ArticleCode,
		PlannedQuantity: input.PlannedQuantity,
		RoutingMode:     input.RoutingMode,
		CurrentFloor:    seq[0],
		Status:          StatusPending,
		Remarks:         strings.TrimSpace(input.Remarks),
		Ledgers:         make(map[floors.Floor]FloorLedger, len(seq)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, f := range seq {
		l := FloorLedger{}
		l.resetQuality(f)
		a.Ledgers[f] = l
	}
	first := a.Ledgers[seq[0]]
	first.Received = input.PlannedQuantity
	first.Remaining = input.PlannedQuantity
	a.Ledgers[seq[0]] = first
	a.Progress = Progress(a)

	rec := e.record(a, ActionArticleCreated, seq[0], input.Actor, input.Remarks)
	rec.Delta = input.PlannedQuantity
	rec.Current = ledgerSnapshot(first)
	if err := rec.Seal(); err != nil {
		return Mutation{}, err
	}
	return Mutation{Article: a, Records: []AuditRecord{rec}}, nil
}

// RecordCompleted sets the completed quantity of the current floor, or of an
// earlier floor that still holds work not yet transferred.
func (e *Engine) RecordCompleted(a Article, in RecordCompletedInput) (Mutation, error) {
	next, err := e.begin(a)
	if err != nil {
		return Mutation{}, err
	}
	floor := in.Floor
	if floor == "" {
		floor = next.CurrentFloor
	}
	if !floors.Contains(next.RoutingMode, floor) {
		return Mutation{}, violation(ErrIllegalFloorOperation, floor, "floor", "not part of %s routing", next.RoutingMode)
	}
	cmp, err := floors.Compare(floor, next.CurrentFloor)
	if err != nil {
		return Mutation{}, err
	}
	ledger := next.Ledgers[floor]
	if cmp > 0 {
		return Mutation{}, violation(ErrIllegalFloorOperation, floor, "floor", "ahead of current floor %s", next.CurrentFloor)
	}
	if cmp < 0 && ledger.Remaining == 0 {
		return Mutation{}, violation(ErrIllegalFloorOperation, floor, "floor", "no outstanding work on a passed floor")
	}
	if gateLocked(next, floor) && in.Quantity != ledger.Completed {
		return Mutation{}, violation(ErrIllegalFloorOperation, floor, "completed", "quality confirmed for %d units; reopen before changing", next.QualityGate.Quantity)
	}
	before := ledger
	delta, err := ledger.recordCompleted(floor, in.Quantity)
	if err != nil {
		return Mutation{}, err
	}
	if floor.IsInspection() && ledger.graded() > ledger.Completed {
		return Mutation{}, violation(ErrQualityOverflow, floor, "completed", "%d is below graded units %d", ledger.Completed, ledger.graded())
	}
	next.Ledgers[floor] = ledger

	rec := e.record(next, ActionCompletedRecorded, floor, in.Actor, in.Remarks)
	rec.Delta = delta
	rec.Previous = ledgerSnapshot(before)
	rec.Current = ledgerSnapshot(ledger)
	return e.commit(next, rec)
}

// TransferToNextFloor sends completed units of the current floor downstream
// and advances the article to the next floor.
func (e *Engine) TransferToNextFloor(a Article, in TransferInput) (Mutation, error) {
	next, err := e.begin(a)
	if err != nil {
		return Mutation{}, err
	}
	from := next.CurrentFloor
	to, ok, err := floors.Next(from, next.RoutingMode)
	if err != nil {
		return Mutation{}, err
	}
	if !ok {
		return Mutation{}, violation(ErrIllegalFloorOperation, from, "floor", "terminal floor has no successor")
	}
	rec, err := e.move(&next, from, to, in.Quantity, ActionTransferred, in.Actor, in.Remarks)
	if err != nil {
		return Mutation{}, err
	}
	dst := next.Ledgers[to]
	dst.resetQuality(to)
	next.Ledgers[to] = dst
	next.CurrentFloor = to

	m, err := e.commit(next, rec)
	if err != nil {
		return Mutation{}, err
	}
	m.Advanced = true
	m.From = from
	m.To = to
	return m, nil
}

// TransferFromFloor sends straggling completed units of an already passed
// floor to its successor. The current floor does not change.
func (e *Engine) TransferFromFloor(a Article, in BackfillTransferInput) (Mutation, error) {
	next, err := e.begin(a)
	if err != nil {
		return Mutation{}, err
	}
	if !floors.Contains(next.RoutingMode, in.Floor) {
		return Mutation{}, violation(ErrIllegalFloorOperation, in.Floor, "floor", "not part of %s routing", next.RoutingMode)
	}
	cmp, err := floors.Compare(in.Floor, next.CurrentFloor)
	if err != nil {
		return Mutation{}, err
	}
	if cmp >= 0 {
		return Mutation{}, violation(ErrIllegalFloorOperation, in.Floor, "floor", "backfill only applies to floors before %s", next.CurrentFloor)
	}
	to, _, err := floors.Next(in.Floor, next.RoutingMode)
	if err != nil {
		return Mutation{}, err
	}
	rec, err := e.move(&next, in.Floor, to, in.Quantity, ActionBackfilled, in.Actor, in.Remarks)
	if err != nil {
		return Mutation{}, err
	}
	return e.commit(next, rec)
}

// UpdateQualityCategories replaces the grade counters of the current
// inspection floor and optionally its repair fields.
func (e *Engine) UpdateQualityCategories(a Article, in QualityInput) (Mutation, error) {
	next, err := e.begin(a)
	if err != nil {
		return Mutation{}, err
	}
	floor := next.CurrentFloor
	if err := requireOpenInspection(next, floor); err != nil {
		return Mutation{}, err
	}
	if in.RepairStatus != nil && !in.RepairStatus.Valid() {
		return Mutation{}, &ConstraintError{Kind: ErrInvalidInput, Floor: floor, Field: "repairStatus", Detail: "unknown status " + string(*in.RepairStatus)}
	}
	ledger := next.Ledgers[floor]
	before := ledger
	if before.Quality != nil {
		q := *before.Quality
		before.Quality = &q
	}
	if err := ledger.setQuality(floor, in.M1, in.M2, in.M3, in.M4); err != nil {
		return Mutation{}, err
	}
	q := ledger.quality()
	switch {
	case in.RepairStatus != nil:
		q.RepairStatus = *in.RepairStatus
	case q.M2 > 0 && q.RepairStatus == RepairNotRequired:
		q.RepairStatus = RepairPending
	}
	if in.RepairRemarks != nil {
		q.RepairRemarks = strings.TrimSpace(*in.RepairRemarks)
	}
	next.Ledgers[floor] = ledger

	rec := e.record(next, ActionQualityUpdated, floor, in.Actor, q.RepairRemarks)
	rec.Delta = ledger.graded() - before.graded()
	rec.Previous = ledgerSnapshot(before)
	rec.Current = ledgerSnapshot(ledger)
	return e.commit(next, rec)
}

// ShiftM2Items moves re-inspected repairable units into M1, M3 and M4.
func (e *Engine) ShiftM2Items(a Article, in ShiftInput) (Mutation, error) {
	next, err := e.begin(a)
	if err != nil {
		return Mutation{}, err
	}
	floor := next.CurrentFloor
	if err := requireOpenInspection(next, floor); err != nil {
		return Mutation{}, err
	}
	ledger := next.Ledgers[floor]
	before := ledger
	if before.Quality != nil {
		q := *before.Quality
		before.Quality = &q
	}
	if err := ledger.shiftGrade(floor, in.FromM2, in.ToM1, in.ToM3, in.ToM4); err != nil {
		return Mutation{}, err
	}
	q := ledger.quality()
	if q.M2 == 0 && (q.RepairStatus == RepairPending || q.RepairStatus == RepairInProgress) {
		q.RepairStatus = RepairDone
	}
	next.Ledgers[floor] = ledger

	rec := e.record(next, ActionGradeShifted, floor, in.Actor, "")
	rec.Delta = in.FromM2
	rec.Previous = ledgerSnapshot(before)
	rec.Current = ledgerSnapshot(ledger)
	return e.commit(next, rec)
}

// ConfirmFinalQuality sets or clears the quality gate for the current
// inspection floor. Confirming requires every completed unit to be graded.
func (e *Engine) ConfirmFinalQuality(a Article, in ConfirmInput) (Mutation, error) {
	next, err := e.begin(a)
	if err != nil {
		return Mutation{}, err
	}
	floor := next.CurrentFloor
	if !floor.IsInspection() {
		return Mutation{}, violation(ErrIllegalFloorOperation, floor, "floor", "quality confirmation requires an inspection floor")
	}
	ledger := next.Ledgers[floor]
	previous := next.QualityGate
	action := ActionQualityReopened
	if in.Confirmed {
		if ledger.Completed == 0 {
			return Mutation{}, violation(ErrIllegalFloorOperation, floor, "completed", "nothing completed to confirm")
		}
		if graded := ledger.graded(); graded != ledger.Completed {
			return Mutation{}, violation(ErrIllegalFloorOperation, floor, "m1+m2+m3+m4", "incomplete grading: %d of %d completed units graded", graded, ledger.Completed)
		}
		at := e.now()
		next.QualityGate = QualityConfirmation{
			Confirmed:   true,
			Floor:       floor,
			Quantity:    ledger.Completed,
			ConfirmedAt: &at,
			ConfirmedBy: in.Actor.ID,
		}
		action = ActionQualityConfirmed
	} else {
		next.QualityGate = QualityConfirmation{Floor: floor}
	}

	rec := e.record(next, action, floor, in.Actor, "")
	rec.Delta = next.QualityGate.Quantity - previous.Quantity
	rec.Previous = map[string]any{"confirmed": previous.Confirmed, "quantity": previous.Quantity}
	rec.Current = map[string]any{"confirmed": next.QualityGate.Confirmed, "quantity": next.QualityGate.Quantity}
	return e.commit(next, rec)
}

func (e *Engine) begin(a Article) (Article, error) {
	if !a.RoutingMode.Valid() {
		return Article{}, violation(ErrIllegalFloorOperation, a.CurrentFloor, "routingMode", "unknown routing mode %q", a.RoutingMode)
	}
	if !floors.Contains(a.RoutingMode, a.CurrentFloor) {
		return Article{}, violation(ErrIllegalFloorOperation, a.CurrentFloor, "currentFloor", "not part of %s routing", a.RoutingMode)
	}
	return a.Clone(), nil
}

func (e *Engine) move(a *Article, from, to floors.Floor, qty int, action AuditAction, actor Actor, remarks string) (AuditRecord, error) {
	src := a.Ledgers[from]
	dst := a.Ledgers[to]
	before := src
	if err := src.transfer(from, qty); err != nil {
		return AuditRecord{}, err
	}
	if err := dst.receive(to, qty); err != nil {
		return AuditRecord{}, err
	}
	a.Ledgers[from] = src
	a.Ledgers[to] = dst

	rec := e.record(*a, action, from, actor, remarks)
	rec.ToFloor = to
	rec.Delta = qty
	rec.Previous = ledgerSnapshot(before)
	rec.Current = ledgerSnapshot(src)
	return rec, nil
}

func (e *Engine) commit(a Article, records ...AuditRecord) (Mutation, error) {
	now := e.now()
	a.Progress = Progress(a)
	if a.Status == StatusPending {
		a.Status = StatusInProgress
	}
	if a.StartedAt == nil {
		started := now
		a.StartedAt = &started
	}
	terminal, err := floors.Terminal(a.RoutingMode)
	if err != nil {
		return Mutation{}, err
	}
	if a.CurrentFloor == terminal && a.Ledgers[terminal].Completed >= a.PlannedQuantity {
		a.Status = StatusCompleted
		if a.CompletedAt == nil {
			done := now
			a.CompletedAt = &done
		}
	} else if a.Status == StatusCompleted {
		a.Status = StatusInProgress
		a.CompletedAt = nil
	}
	a.UpdatedAt = now
	for i := range records {
		if err := records[i].Seal(); err != nil {
			return Mutation{}, err
		}
	}
	return Mutation{Article: a, Records: records}, nil
}

func (e *Engine) record(a Article, action AuditAction, floor floors.Floor, actor Actor, remarks string) AuditRecord {
	return AuditRecord{
		ID:        uuid.NewString(),
		ArticleID: a.ID,
		OrderID:   a.OrderID,
		Action:    action,
		Floor:     floor,
		Remarks:   strings.TrimSpace(remarks),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		At:        e.now(),
	}
}

func gateLocked(a Article, floor floors.Floor) bool {
	return a.QualityGate.Confirmed && a.QualityGate.Floor == floor
}

func requireOpenInspection(a Article, floor floors.Floor) error {
	if !floor.IsInspection() {
		return violation(ErrIllegalFloorOperation, floor, "floor", "quality grading requires an inspection floor")
	}
	if gateLocked(a, floor) {
		return violation(ErrIllegalFloorOperation, floor, "qualityGate", "quality already confirmed; reopen before regrading")
	}
	return nil
}
