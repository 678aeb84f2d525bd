package production

import "github.com/odyssey-erp/floorflow/internal/production/floors"

// The ledger primitives below mutate a single floor in place and validate
// before touching any field, so a returned error always leaves the ledger as it was.
// Invariants after every successful call:
//
//	remaining = received - transferred
//	transferred <= completed <= received
//	quality.Graded() <= completed

// recordCompleted sets the completed quantity and returns the delta.
func (l *FloorLedger) recordCompleted(floor floors.Floor, qty int) (int, error) {
	if qty < 0 {
		return 0, violation(ErrOutOfRange, floor, "completed", "must not be negative, got %d", qty)
	}
	if qty > l.Received {
		return 0, violation(ErrOutOfRange, floor, "completed", "%d exceeds received %d", qty, l.Received)
	}
	if qty < l.Transferred {
		return 0, violation(ErrOutOfRange, floor, "completed", "%d is below already transferred %d", qty, l.Transferred)
	}
	delta := qty - l.Completed
	l.Completed = qty
	l.Remaining = l.Received - l.Transferred
	return delta, nil
}

// available is the completed work not yet sent downstream.
func (l FloorLedger) available() int {
	return l.Completed - l.Transferred
}

// transfer sends qty completed units downstream. Completed stays as the
// high-water mark.
func (l *FloorLedger) transfer(floor floors.Floor, qty int) error {
	if qty <= 0 {
		return violation(ErrOutOfRange, floor, "quantity", "transfer quantity must be positive, got %d", qty)
	}
	if qty > l.available() {
		return violation(ErrInsufficientQuantity, floor, "quantity", "requested %d, untransferred completed %d", qty, l.available())
	}
	if qty > l.Remaining {
		return violation(ErrInsufficientQuantity, floor, "quantity", "requested %d, remaining %d", qty, l.Remaining)
	}
	l.Transferred += qty
	l.Remaining -= qty
	return nil
}

// receive books qty incoming units.
func (l *FloorLedger) receive(floor floors.Floor, qty int) error {
	if qty <= 0 {
		return violation(ErrOutOfRange, floor, "quantity", "received quantity must be positive, got %d", qty)
	}
	l.Received += qty
	l.Remaining += qty
	return nil
}

// setQuality replaces the four grade counters atomically.
func (l *FloorLedger) setQuality(floor floors.Floor, m1, m2, m3, m4 int) error {
	if err := nonNegative(floor, []string{"m1", "m2", "m3", "m4"}, m1, m2, m3, m4); err != nil {
		return err
	}
	// Accumulate against the headroom so oversized counters cannot wrap the sum.
	sum := 0
	for _, v := range []int{m1, m2, m3, m4} {
		if v > l.Completed-sum {
			return violation(ErrQualityOverflow, floor, "m1+m2+m3+m4", "grades exceed completed %d", l.Completed)
		}
		sum += v
	}
	q := l.quality()
	q.M1, q.M2, q.M3, q.M4 = m1, m2, m3, m4
	return nil
}

// shiftGrade moves re-inspected units out of M2.
func (l *FloorLedger) shiftGrade(floor floors.Floor, fromM2, toM1, toM3, toM4 int) error {
	if err := nonNegative(floor, []string{"fromM2", "toM1", "toM3", "toM4"}, fromM2, toM1, toM3, toM4); err != nil {
		return err
	}
	if fromM2 == 0 {
		return violation(ErrOutOfRange, floor, "fromM2", "must be positive")
	}
	for i, v := range []int{toM1, toM3, toM4} {
		if v > fromM2 {
			return violation(ErrShiftMismatch, floor, []string{"toM1", "toM3", "toM4"}[i], "%d exceeds fromM2 %d", v, fromM2)
		}
	}
	if sum := toM1 + toM3 + toM4; sum != fromM2 {
		return violation(ErrShiftMismatch, floor, "toM1+toM3+toM4", "%d does not equal fromM2 %d", sum, fromM2)
	}
	var m2 int
	if l.Quality != nil {
		m2 = l.Quality.M2
	}
	if fromM2 > m2 {
		return violation(ErrInsufficientQuantity, floor, "fromM2", "requested %d, m2 holds %d", fromM2, m2)
	}
	q := l.quality()
	q.M2 -= fromM2
	q.M1 += toM1
	q.M3 += toM3
	q.M4 += toM4
	return nil
}

func (l *FloorLedger) quality() *QualityBreakdown {
	if l.Quality == nil {
		l.Quality = &QualityBreakdown{RepairStatus: RepairNotRequired}
	}
	return l.Quality
}

// resetQuality restores the grading defaults for a fresh floor visit.
func (l *FloorLedger) resetQuality(floor floors.Floor) {
	if !floor.IsInspection() {
		l.Quality = nil
		return
	}
	l.Quality = &QualityBreakdown{RepairStatus: RepairNotRequired}
}

func (l FloorLedger) graded() int {
	if l.Quality == nil {
		return 0
	}
	return l.Quality.Graded()
}

func nonNegative(floor floors.Floor, names []string, values ...int) error {
	for i, v := range values {
		if v < 0 {
			return violation(ErrOutOfRange, floor, names[i], "must not be negative, got %d", v)
		}
	}
	return nil
}
