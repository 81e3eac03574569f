// Package action implements the ordered event-action chain attached to an
// entity output.
package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/intern"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
)

// FireAlways marks an action that never runs out of fires.
const FireAlways = -1

// Action is the resolved view of one event action.
type Action struct {
	Target      string
	TargetInput string
	Parameter   string
	Delay       float32
	TimesToFire int
	IDStamp     int
}

// Node is the pooled storage record of an action.
type Node struct {
	target      intern.String
	targetInput intern.String
	parameter   intern.String
	delay       float32
	timesToFire int32
	idStamp     int32
	next        pool.Handle
}

// Field names a string-typed action field.
type Field int

const (
	FieldTarget Field = iota + 1
	FieldTargetInput
	FieldParameter
)

// String returns the wire name of the field.
func (f Field) String() string {
	switch f {
	case FieldTarget:
		return "target"
	case FieldTargetInput:
		return "target_input"
	case FieldParameter:
		return "parameter"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// ParseField resolves a wire name into a Field.
func ParseField(name string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "target":
		return FieldTarget, nil
	case "target_input", "targetinput", "input":
		return FieldTargetInput, nil
	case "parameter", "param":
		return FieldParameter, nil
	default:
		return 0, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown action field %q", name),
			map[string]string{"Reason": "field must be target, target_input or parameter"})
	}
}

// Placement selects where InsertAt links a new action.
type Placement int

const (
	// Prepend links the action at the head; the index is ignored.
	Prepend Placement = iota
	// After links the action after the node at the index.
	After
)

// Allocator supplies pooled storage for nodes.
type Allocator interface {
	Alloc() (pool.Handle, error)
	Free(pool.Handle)
	Get(pool.Handle) *Node
}

// Interner converts text into pooled string handles and back.
type Interner interface {
	Intern(text string) intern.String
	Lookup(s intern.String) string
}

// Stamper hands out action ID stamps. It is safe for concurrent use and is
// usually shared by every list in a world.
type Stamper struct {
	last atomic.Int32
}

// Next returns a fresh stamp.
func (s *Stamper) Next() int {
	return int(s.last.Add(1))
}

// Observe makes sure future stamps are greater than stamp.
func (s *Stamper) Observe(stamp int) {
	for {
		current := s.last.Load()
		if int32(stamp) <= current || s.last.CompareAndSwap(current, int32(stamp)) {
			return
		}
	}
}

// ErrNotFound matches every "no action at index" failure.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "action not found")

func notFound(index int) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("no action at index %d", index),
		map[string]string{"Index": strconv.Itoa(index)})
}

// checkTimesToFire rejects fire counts a node cannot hold: anything below
// FireAlways or past 32 bits.
func checkTimesToFire(times int) error {
	if times >= FireAlways && times <= math.MaxInt32 {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument,
		fmt.Sprintf("times to fire %d out of range", times),
		map[string]string{"Reason": "times to fire must be -1 or between 0 and 2147483647"})
}

const (
	fieldSeparator       = ","
	escapedSeparator     = "\x1b"
	maxEventActionFields = 5
)

// ParseEventAction parses the map keyvalue form of an action:
// "target,input,parameter,delay,times". Newer map formats separate fields
// with ESC (0x1B) instead of commas; both are accepted. A missing delay
// reads as 0 and missing times as FireAlways.
func ParseEventAction(raw string) (Action, error) {
	sep := fieldSeparator
	if strings.Contains(raw, escapedSeparator) {
		sep = escapedSeparator
	}
	parts := strings.Split(raw, sep)
	if len(parts) < 2 || len(parts) > maxEventActionFields {
		return Action{}, malformed(raw, "expected 2 to 5 fields")
	}
	for len(parts) < maxEventActionFields {
		parts = append(parts, "")
	}

	a := Action{
		Target:      strings.TrimSpace(parts[0]),
		TargetInput: strings.TrimSpace(parts[1]),
		Parameter:   parts[2],
		TimesToFire: FireAlways,
	}
	if a.Target == "" || a.TargetInput == "" {
		return Action{}, malformed(raw, "target and input are required")
	}
	if value := strings.TrimSpace(parts[3]); value != "" {
		delay, err := strconv.ParseFloat(value, 32)
		if err != nil || delay < 0 {
			return Action{}, malformed(raw, "delay must be a non-negative number")
		}
		a.Delay = float32(delay)
	}
	if value := strings.TrimSpace(parts[4]); value != "" {
		times, err := strconv.Atoi(value)
		if err != nil || times == 0 || times < FireAlways {
			return Action{}, malformed(raw, "times to fire must be -1 or positive")
		}
		a.TimesToFire = times
	}
	return a, nil
}

// FormatEventAction renders a in the comma-separated keyvalue form.
func FormatEventAction(a Action) string {
	return strings.Join([]string{
		a.Target,
		a.TargetInput,
		a.Parameter,
		strconv.FormatFloat(float64(a.Delay), 'g', -1, 32),
		strconv.Itoa(a.TimesToFire),
	}, fieldSeparator)
}

func malformed(raw, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeEventActionMalformed,
		fmt.Sprintf("malformed event action %q: %s", raw, reason),
		map[string]string{"Raw": raw, "Reason": reason})
}
