package production

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

var hundred = decimal.NewFromInt(100)

// Progress derives the overall completion percentage from the ledgers. It is
// always recomputed from scratch: completed work on the current floor plus the
// units transferred out of every canonically earlier floor, relative to the
// planned quantity, rounded half-up and clamped to 0..100.
func Progress(a Article) int {
	if a.PlannedQuantity <= 0 {
		return 0
	}
	current, err := floors.IndexOf(a.CurrentFloor)
	if err != nil {
		return 0
	}
	done := int64(a.Ledgers[a.CurrentFloor].Completed)
	for f, l := range a.Ledgers {
		idx, err := floors.IndexOf(f)
		if err != nil || idx >= current {
			continue
		}
		done += int64(l.Transferred)
	}
	pct := decimal.NewFromInt(done).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(a.PlannedQuantity))).
		Round(0).
		IntPart()
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}
