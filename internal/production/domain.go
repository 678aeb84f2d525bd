package production

import (
	"time"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

// Status enumerates the overall article lifecycle.
type Status string

const (
	// StatusPending marks an article with no committed floor work yet.
	StatusPending Status = "Pending"
	// StatusInProgress marks an article with at least one committed mutation.
	StatusInProgress Status = "InProgress"
	// StatusCompleted marks an article whose planned quantity finished the terminal floor.
	StatusCompleted Status = "Completed"
)

// RepairStatus tracks rework of M2 (repairable) units at an inspection floor.
type RepairStatus string

const (
	RepairNotRequired RepairStatus = "NotRequired"
	RepairPending     RepairStatus = "Pending"
	RepairInProgress  RepairStatus = "InProgress"
	RepairDone        RepairStatus = "Done"
)

// Valid reports whether the repair status is known.
func (s RepairStatus) Valid() bool {
	switch s {
	case RepairNotRequired, RepairPending, RepairInProgress, RepairDone:
		return true
	}
	return false
}

// QualityBreakdown grades the completed units of an inspection floor.
// M1 good, M2 repairable, M3 minor defect, M4 major defect.
type QualityBreakdown struct {
	M1            int          `json:"m1"`
	M2            int          `json:"m2"`
	M3            int          `json:"m3"`
	M4            int          `json:"m4"`
	RepairStatus  RepairStatus `json:"repairStatus"`
	RepairRemarks string       `json:"repairRemarks,omitempty"`
}

// Graded returns the number of units carrying a grade.
func (q QualityBreakdown) Graded() int {
	return q.M1 + q.M2 + q.M3 + q.M4
}

// FloorLedger is the per-floor quantity record. Quality is only set on
// inspection floors.
type FloorLedger struct {
	Received    int               `json:"received"`
	Completed   int               `json:"completed"`
	Remaining   int               `json:"remaining"`
	Transferred int               `json:"transferred"`
	Quality     *QualityBreakdown `json:"quality,omitempty"`
}

// QualityConfirmation is the final quality gate of an article.
type QualityConfirmation struct {
	Confirmed   bool         `json:"confirmed"`
	Floor       floors.Floor `json:"floor,omitempty"`
	Quantity    int          `json:"quantity"`
	ConfirmedAt *time.Time   `json:"confirmedAt,omitempty"`
	ConfirmedBy string       `json:"confirmedBy,omitempty"`
}

// Article is the aggregate root tracked through the floors.
type Article struct {
	ID              string                       `json:"id"`
	OrderID         string                       `json:"orderId"`
	ArticleCode     string                       `json:"articleCode"`
	PlannedQuantity int                          `json:"plannedQuantity"`
	RoutingMode     floors.RoutingMode           `json:"routingMode"`
	CurrentFloor    floors.Floor                 `json:"currentFloor"`
	Status          Status                       `json:"status"`
	Progress        int                          `json:"progress"`
	Remarks         string                       `json:"remarks,omitempty"`
	Ledgers         map[floors.Floor]FloorLedger `json:"ledgers"`
	QualityGate     QualityConfirmation          `json:"qualityGate"`
	StartedAt       *time.Time                   `json:"startedAt,omitempty"`
	CompletedAt     *time.Time                   `json:"completedAt,omitempty"`
	CreatedAt       time.Time                    `json:"createdAt"`
	UpdatedAt       time.Time                    `json:"updatedAt"`
	Version         int64                        `json:"version"`
}

// Clone returns a deep copy so mutations never leak into the caller's value.
func (a Article) Clone() Article {
	out := a
	out.Ledgers = make(map[floors.Floor]FloorLedger, len(a.Ledgers))
	for f, l := range a.Ledgers {
		if l.Quality != nil {
			q := *l.Quality
			l.Quality = &q
		}
		out.Ledgers[f] = l
	}
	out.StartedAt = cloneTime(a.StartedAt)
	out.CompletedAt = cloneTime(a.CompletedAt)
	out.QualityGate.ConfirmedAt = cloneTime(a.QualityGate.ConfirmedAt)
	return out
}

// Ledger returns the ledger for floor f, zero valued when absent.
func (a Article) Ledger(f floors.Floor) FloorLedger {
	return a.Ledgers[f]
}

// Sequence returns the floors visited by the article.
func (a Article) Sequence() ([]floors.Floor, error) {
	return floors.Sequence(a.RoutingMode)
}

// FloorSummary is a read model row for one floor.
type FloorSummary struct {
	Floor       floors.Floor      `json:"floor"`
	Index       int               `json:"index"`
	Inspection  bool              `json:"inspection"`
	Current     bool              `json:"current"`
	Received    int               `json:"received"`
	Completed   int               `json:"completed"`
	Remaining   int               `json:"remaining"`
	Transferred int               `json:"transferred"`
	Quality     *QualityBreakdown `json:"quality,omitempty"`
	Ungraded    int               `json:"ungraded"`
}

// Summary lists the article ledgers in routing order.
func (a Article) Summary() []FloorSummary {
	seq, err := a.Sequence()
	if err != nil {
		return nil
	}
	rows := make([]FloorSummary, 0, len(seq))
	for _, f := range seq {
		l := a.Ledgers[f]
		idx, _ := floors.IndexOf(f)
		row := FloorSummary{
			Floor:       f,
			Index:       idx,
			Inspection:  f.IsInspection(),
			Current:     f == a.CurrentFloor,
			Received:    l.Received,
			Completed:   l.Completed,
			Remaining:   l.Remaining,
			Transferred: l.Transferred,
		}
		if l.Quality != nil {
			q := *l.Quality
			row.Quality = &q
			row.Ungraded = l.Completed - q.Graded()
		}
		rows = append(rows, row)
	}
	return rows
}

// Actor identifies who requested a mutation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CreateArticleInput describes a new article entering production.
type CreateArticleInput struct {
	OrderID         string             `json:"orderId" validate:"required,max=64"`
	ArticleCode     string             `json:"articleCode" validate:"required,min=3,max=32,articlecode"`
	PlannedQuantity int                `json:"plannedQuantity" validate:"required,min=1"`
	RoutingMode     floors.RoutingMode `json:"routingMode" validate:"required,routingmode"`
	Remarks         string             `json:"remarks" validate:"max=500"`
	IdempotencyKey  string             `json:"-"`
	Actor           Actor              `json:"-"`
}

// RecordCompletedInput sets the completed quantity of a floor.
type RecordCompletedInput struct {
	Floor    floors.Floor
	Quantity int
	Remarks  string
	Actor    Actor
}

// TransferInput moves completed units to the next floor.
type TransferInput struct {
	Quantity int
	Remarks  string
	Actor    Actor
}

// BackfillTransferInput moves completed units from an already passed floor.
type BackfillTransferInput struct {
	Floor    floors.Floor
	Quantity int
	Remarks  string
	Actor    Actor
}

// QualityInput replaces the grade counters of the current inspection floor.
type QualityInput struct {
	M1            int
	M2            int
	M3            int
	M4            int
	RepairStatus  *RepairStatus
	RepairRemarks *string
	Actor         Actor
}

// ShiftInput moves re-inspected M2 units into other grades.
type ShiftInput struct {
	FromM2 int
	ToM1   int
	ToM3   int
	ToM4   int
	Actor  Actor
}

// ConfirmInput toggles the final quality gate.
type ConfirmInput struct {
	Confirmed bool
	Actor     Actor
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
