package production

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

func TestLedgerTransferAndReceive(t *testing.T) {
	src := FloorLedger{Received: 100, Completed: 60, Remaining: 100}
	require.NoError(t, src.transfer(floors.Knitting, 60))
	require.Equal(t, FloorLedger{Received: 100, Completed: 60, Remaining: 40, Transferred: 60}, src)

	err := src.transfer(floors.Knitting, 1)
	require.ErrorIs(t, err, ErrInsufficientQuantity)
	require.Equal(t, 40, src.Remaining)

	var dst FloorLedger
	require.NoError(t, dst.receive(floors.Linking, 60))
	require.Equal(t, FloorLedger{Received: 60, Remaining: 60}, dst)
	require.ErrorIs(t, dst.receive(floors.Linking, 0), ErrOutOfRange)
}

func TestLedgerSetQuality(t *testing.T) {
	l := FloorLedger{Received: 50, Completed: 40, Remaining: 50}
	require.NoError(t, l.setQuality(floors.Checking, 30, 5, 3, 2))
	require.Equal(t, 40, l.graded())
	require.Equal(t, RepairNotRequired, l.Quality.RepairStatus)

	err := l.setQuality(floors.Checking, 30, 5, 3, 3)
	require.ErrorIs(t, err, ErrQualityOverflow)
	require.Equal(t, 2, l.Quality.M4)

	err = l.setQuality(floors.Checking, 1, -1, 0, 0)
	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ErrOutOfRange, ce.Kind)
	require.Equal(t, "m2", ce.Field)
}

func TestLedgerSetQualityRejectsWrappingCounters(t *testing.T) {
	cases := []struct {
		name           string
		m1, m2, m3, m4 int
	}{
		{"two max counters", math.MaxInt, math.MaxInt, 2, 0},
		{"max plus completed", 100, 0, 0, math.MaxInt},
		{"single max", 0, 0, math.MaxInt, 0},
		{"all max", math.MaxInt, math.MaxInt, math.MaxInt, math.MaxInt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := FloorLedger{Received: 100, Completed: 100, Remaining: 100, Quality: &QualityBreakdown{M1: 90, M2: 10}}
			err := l.setQuality(floors.Checking, tc.m1, tc.m2, tc.m3, tc.m4)
			require.ErrorIs(t, err, ErrQualityOverflow)
			require.Equal(t, QualityBreakdown{M1: 90, M2: 10}, *l.Quality)
		})
	}

	l := FloorLedger{Received: 100, Completed: 100, Remaining: 100}
	require.NoError(t, l.setQuality(floors.Checking, 25, 25, 25, 25))
	require.Equal(t, 100, l.graded())
}

func TestLedgerShiftGradeOrder(t *testing.T) {
	l := FloorLedger{Received: 10, Completed: 10, Remaining: 10, Quality: &QualityBreakdown{M1: 6, M2: 4}}

	// A mismatch is reported before the m2 balance is checked.
	require.ErrorIs(t, l.shiftGrade(floors.Checking, 9, 1, 0, 0), ErrShiftMismatch)
	require.ErrorIs(t, l.shiftGrade(floors.Checking, 9, 9, 0, 0), ErrInsufficientQuantity)

	require.NoError(t, l.shiftGrade(floors.Checking, 4, 2, 1, 1))
	require.Equal(t, QualityBreakdown{M1: 8, M3: 1, M4: 1}, *l.Quality)
}

func TestLedgerShiftGradeRejectsWrappingDestinations(t *testing.T) {
	cases := []struct {
		name                     string
		fromM2, toM1, toM3, toM4 int
		kind                     error
	}{
		{"wrapped sum equals source", 1, math.MaxInt, math.MaxInt, 3, ErrShiftMismatch},
		{"single max destination", 1, 0, 0, math.MaxInt, ErrShiftMismatch},
		{"max source", math.MaxInt, math.MaxInt, 0, 0, ErrInsufficientQuantity},
		{"zero units", 0, 0, 0, 0, ErrOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := FloorLedger{Received: 100, Completed: 100, Remaining: 100, Quality: &QualityBreakdown{M1: 90, M2: 10}}
			err := l.shiftGrade(floors.Checking, tc.fromM2, tc.toM1, tc.toM3, tc.toM4)
			require.ErrorIs(t, err, tc.kind)
			require.Equal(t, QualityBreakdown{M1: 90, M2: 10}, *l.Quality)
		})
	}
}

func TestLedgerResetQuality(t *testing.T) {
	l := FloorLedger{Quality: &QualityBreakdown{M1: 3}}
	l.resetQuality(floors.Washing)
	require.Nil(t, l.Quality)

	l.resetQuality(floors.FinalChecking)
	require.Equal(t, &QualityBreakdown{RepairStatus: RepairNotRequired}, l.Quality)
}

func TestConstraintErrorMessage(t *testing.T) {
	err := violation(ErrOutOfRange, floors.Knitting, "completed", "%d exceeds received %d", 12, 10)
	require.EqualError(t, err, "quantity out of range: completed at Knitting: 12 exceeds received 10")

	err = &ConstraintError{Kind: ErrOutOfRange, Field: "plannedQuantity", Detail: "too big"}
	require.EqualError(t, err, "quantity out of range: plannedQuantity: too big")
}
