package floors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequenceByRoutingMode(t *testing.T) {
	seq, err := Sequence(HandLinking)
	require.NoError(t, err)
	require.Equal(t, []Floor{Knitting, Linking, Checking, Washing, Boarding, FinalChecking, Branding, Warehouse, Dispatch}, seq)

	seq, err = Sequence(AutoLinking)
	require.NoError(t, err)
	require.NotContains(t, seq, Linking)
	require.Equal(t, Knitting, seq[0])
	require.Equal(t, Checking, seq[1])
	require.Len(t, seq, 8)

	_, err = Sequence("Stitched")
	require.ErrorIs(t, err, ErrUnknownRoutingMode)
}

func TestNextAndPrevious(t *testing.T) {
	next, ok, err := Next(Knitting, AutoLinking)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Checking, next)

	next, ok, err = Next(Knitting, RossoLinking)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Linking, next)

	_, ok, err = Next(Dispatch, HandLinking)
	require.NoError(t, err)
	require.False(t, ok)

	prev, ok, err := Previous(Checking, AutoLinking)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Knitting, prev)

	_, ok, err = Previous(Knitting, AutoLinking)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = Next(Linking, AutoLinking)
	require.ErrorIs(t, err, ErrUnknownFloor)

	_, _, err = Next("Dyeing", HandLinking)
	require.ErrorIs(t, err, ErrUnknownFloor)
}

func TestIndexStableAcrossModes(t *testing.T) {
	idx, err := IndexOf(Checking)
	require.NoError(t, err)
	require.Equal(t, 2, idx)

	cmp, err := Compare(Linking, Checking)
	require.NoError(t, err)
	require.Negative(t, cmp)

	cmp, err = Compare(Dispatch, Warehouse)
	require.NoError(t, err)
	require.Positive(t, cmp)

	cmp, err = Compare(Boarding, Boarding)
	require.NoError(t, err)
	require.Zero(t, cmp)

	_, err = Compare(Knitting, "Dyeing")
	require.ErrorIs(t, err, ErrUnknownFloor)
}

func TestTerminalAndInspection(t *testing.T) {
	for _, mode := range Modes() {
		terminal, err := Terminal(mode)
		require.NoError(t, err)
		require.Equal(t, Dispatch, terminal)

		first, err := First(mode)
		require.NoError(t, err)
		require.Equal(t, Knitting, first)
	}
	require.True(t, Checking.IsInspection())
	require.True(t, FinalChecking.IsInspection())
	require.False(t, Washing.IsInspection())
	require.False(t, Contains(AutoLinking, Linking))
	require.True(t, Contains(HandLinking, Linking))
}

func TestParse(t *testing.T) {
	cases := map[string]Floor{
		"knitting":       Knitting,
		"FINAL CHECKING": FinalChecking,
		"final_checking": FinalChecking,
		" Final-Checking": FinalChecking,
		"dispatch":       Dispatch,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
	_, err := Parse("ironing")
	require.ErrorIs(t, err, ErrUnknownFloor)

	mode, err := ParseRoutingMode("auto_linking")
	require.NoError(t, err)
	require.Equal(t, AutoLinking, mode)

	_, err = ParseRoutingMode("manual")
	require.ErrorIs(t, err, ErrUnknownRoutingMode)
}
