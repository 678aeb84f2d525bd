// Package floors describes the production floor topology an article flows through.
package floors

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Floor identifies one production stage.
type Floor string

const (
	Knitting      Floor = "Knitting"
	Linking       Floor = "Linking"
	Checking      Floor = "Checking"
	Washing       Floor = "Washing"
	Boarding      Floor = "Boarding"
	FinalChecking Floor = "Final Checking"
	Branding      Floor = "Branding"
	Warehouse     Floor = "Warehouse"
	Dispatch      Floor = "Dispatch"
)

// RoutingMode selects which floors an article visits.
type RoutingMode string

const (
	// AutoLinking articles are linked on the knitting machine and skip the Linking floor.
	AutoLinking RoutingMode = "AutoLinking"
	// HandLinking articles visit the Linking floor.
	HandLinking RoutingMode = "HandLinking"
	// RossoLinking articles visit the Linking floor.
	RossoLinking RoutingMode = "RossoLinking"
)

// ErrUnknownFloor is returned for floor names outside the canonical order.
var ErrUnknownFloor = errors.New("floors: unknown floor")

// ErrUnknownRoutingMode is returned for unsupported routing modes.
var ErrUnknownRoutingMode = errors.New("floors: unknown routing mode")

// canonical is the single source of truth for floor ordering. Indexes stay
// stable across routing modes so floors remain comparable.
var canonical = []Floor{
	Knitting,
	Linking,
	Checking,
	Washing,
	Boarding,
	FinalChecking,
	Branding,
	Warehouse,
	Dispatch,
}

var skipped = map[RoutingMode]map[Floor]bool{
	AutoLinking:  {Linking: true},
	HandLinking:  {},
	RossoLinking: {},
}

var inspection = map[Floor]bool{
	Checking:      true,
	FinalChecking: true,
}

// All returns the canonical floor order.
func All() []Floor {
	out := make([]Floor, len(canonical))
	copy(out, canonical)
	return out
}

// Modes lists supported routing modes.
func Modes() []RoutingMode {
	return []RoutingMode{AutoLinking, HandLinking, RossoLinking}
}

// Valid reports whether the routing mode is supported.
func (m RoutingMode) Valid() bool {
	_, ok := skipped[m]
	return ok
}

// Valid reports whether f belongs to the canonical order.
func (f Floor) Valid() bool {
	_, err := IndexOf(f)
	return err == nil
}

// IsInspection reports whether quality grading happens on the floor.
func (f Floor) IsInspection() bool {
	return inspection[f]
}

// Sequence returns the ordered floors visited under mode.
func Sequence(mode RoutingMode) ([]Floor, error) {
	skip, ok := skipped[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoutingMode, mode)
	}
	seq := make([]Floor, 0, len(canonical))
	for _, f := range canonical {
		if skip[f] {
			continue
		}
		seq = append(seq, f)
	}
	return seq, nil
}

// Contains reports whether f is visited under mode.
func Contains(mode RoutingMode, f Floor) bool {
	skip, ok := skipped[mode]
	if !ok || !f.Valid() {
		return false
	}
	return !skip[f]
}

// First returns the entry floor for mode.
func First(mode RoutingMode) (Floor, error) {
	seq, err := Sequence(mode)
	if err != nil {
		return "", err
	}
	return seq[0], nil
}

// Terminal returns the last floor for mode.
func Terminal(mode RoutingMode) (Floor, error) {
	seq, err := Sequence(mode)
	if err != nil {
		return "", err
	}
	return seq[len(seq)-1], nil
}

// Next returns the floor following f under mode. ok is false on the terminal floor.
func Next(f Floor, mode RoutingMode) (next Floor, ok bool, err error) {
	seq, pos, err := locate(f, mode)
	if err != nil {
		return "", false, err
	}
	if pos == len(seq)-1 {
		return "", false, nil
	}
	return seq[pos+1], true, nil
}

// Previous returns the floor preceding f under mode. ok is false on the first floor.
func Previous(f Floor, mode RoutingMode) (prev Floor, ok bool, err error) {
	seq, pos, err := locate(f, mode)
	if err != nil {
		return "", false, err
	}
	if pos == 0 {
		return "", false, nil
	}
	return seq[pos-1], true, nil
}

// IndexOf returns the position of f in the canonical order.
func IndexOf(f Floor) (int, error) {
	for i, c := range canonical {
		if c == f {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownFloor, f)
}

// Compare orders two floors canonically: negative when a precedes b.
func Compare(a, b Floor) (int, error) {
	ia, err := IndexOf(a)
	if err != nil {
		return 0, err
	}
	ib, err := IndexOf(b)
	if err != nil {
		return 0, err
	}
	return ia - ib, nil
}

// Parse resolves a floor name ignoring case, spacing and separators.
func Parse(raw string) (Floor, error) {
	key := normalize(raw)
	for _, f := range canonical {
		if normalize(string(f)) == key {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFloor, raw)
}

// ParseRoutingMode resolves a routing mode name ignoring case.
func ParseRoutingMode(raw string) (RoutingMode, error) {
	key := normalize(raw)
	for _, m := range Modes() {
		if normalize(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRoutingMode, raw)
}

func locate(f Floor, mode RoutingMode) ([]Floor, int, error) {
	seq, err := Sequence(mode)
	if err != nil {
		return nil, 0, err
	}
	for i, s := range seq {
		if s == f {
			return seq, i, nil
		}
	}
	if !f.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownFloor, f)
	}
	return nil, 0, fmt.Errorf("%w: %q not visited under %s", ErrUnknownFloor, f, mode)
}

func normalize(raw string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return cases.Fold().String(replacer.Replace(strings.TrimSpace(raw)))
}
