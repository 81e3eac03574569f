package action

import (
	"iter"

	"github.com/louisbranch/outputinfo/internal/services/outputs/intern"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
)

// List is the action chain of one output. Nodes live in the injected
// allocator and are linked by handle. A List is not safe for concurrent use;
// callers serialize access per output.
type List struct {
	head    pool.Handle
	alloc   Allocator
	strings Interner
	stamps  *Stamper
}

// NewList creates an empty chain. A nil stamper gives the list its own.
func NewList(alloc Allocator, strings Interner, stamps *Stamper) *List {
	if stamps == nil {
		stamps = &Stamper{}
	}
	return &List{alloc: alloc, strings: strings, stamps: stamps}
}

// Count returns the number of actions in the chain.
func (l *List) Count() int {
	count := 0
	for h := l.head; h != pool.Nil; h = l.node(h).next {
		count++
	}
	return count
}

// Get resolves the action at index i.
func (l *List) Get(i int) (Action, error) {
	_, h, err := l.walk(i)
	if err != nil {
		return Action{}, err
	}
	return l.resolve(l.node(h)), nil
}

// Field returns one string field of the action at index i.
func (l *List) Field(i int, f Field) (string, error) {
	_, h, err := l.walk(i)
	if err != nil {
		return "", err
	}
	ref, err := fieldRef(l.node(h), f)
	if err != nil {
		return "", err
	}
	return l.strings.Lookup(*ref), nil
}

// SetField replaces one string field of the action at index i.
func (l *List) SetField(i int, f Field, value string) error {
	_, h, err := l.walk(i)
	if err != nil {
		return err
	}
	ref, err := fieldRef(l.node(h), f)
	if err != nil {
		return err
	}
	*ref = l.strings.Intern(value)
	return nil
}

// Delay returns the delay of the action at index i.
func (l *List) Delay(i int) (float32, error) {
	_, h, err := l.walk(i)
	if err != nil {
		return 0, err
	}
	return l.node(h).delay, nil
}

// SetDelay replaces the delay of the action at index i.
func (l *List) SetDelay(i int, delay float32) error {
	_, h, err := l.walk(i)
	if err != nil {
		return err
	}
	l.node(h).delay = delay
	return nil
}

// TimesToFire returns the remaining fire count of the action at index i.
func (l *List) TimesToFire(i int) (int, error) {
	_, h, err := l.walk(i)
	if err != nil {
		return 0, err
	}
	return int(l.node(h).timesToFire), nil
}

// SetTimesToFire replaces the remaining fire count of the action at index i.
// Setting it to 0 removes the action from the chain. Counts below FireAlways
// or beyond 32 bits are rejected.
func (l *List) SetTimesToFire(i, times int) error {
	if err := checkTimesToFire(times); err != nil {
		return err
	}
	prev, h, err := l.walk(i)
	if err != nil {
		return err
	}
	if times == 0 {
		l.unlink(prev, h)
		return nil
	}
	l.node(h).timesToFire = int32(times)
	return nil
}

// InsertAt links a new action into the chain and returns its ID stamp.
// With Prepend the index is ignored and the action becomes the head, even
// when the chain is empty. With After the action follows the node at i.
// A failed insert leaves the chain unchanged.
func (l *List) InsertAt(i int, a Action, placement Placement) (int, error) {
	if err := checkTimesToFire(a.TimesToFire); err != nil {
		return 0, err
	}
	var anchor pool.Handle
	if placement == After {
		_, h, err := l.walk(i)
		if err != nil {
			return 0, err
		}
		anchor = h
	}

	h, err := l.alloc.Alloc()
	if err != nil {
		return 0, err
	}
	stamp := l.stamps.Next()
	l.fill(l.node(h), a, stamp)

	n := l.node(h)
	if anchor == pool.Nil {
		n.next = l.head
		l.head = h
	} else {
		at := l.node(anchor)
		n.next = at.next
		at.next = h
	}
	return stamp, nil
}

// Append links a new action at the tail and returns its ID stamp.
func (l *List) Append(a Action) (int, error) {
	if l.head == pool.Nil {
		return l.InsertAt(0, a, Prepend)
	}
	return l.InsertAt(l.Count()-1, a, After)
}

// RemoveAt unlinks and frees the action at index i.
func (l *List) RemoveAt(i int) error {
	prev, h, err := l.walk(i)
	if err != nil {
		return err
	}
	l.unlink(prev, h)
	return nil
}

// MaxDelay returns the largest delay in the chain, or 0 when it is empty.
func (l *List) MaxDelay() float32 {
	var longest float32
	for h := l.head; h != pool.Nil; h = l.node(h).next {
		if d := l.node(h).delay; d > longest {
			longest = d
		}
	}
	return longest
}

// All yields every action with its index, head first.
func (l *List) All() iter.Seq2[int, Action] {
	return func(yield func(int, Action) bool) {
		index := 0
		for h := l.head; h != pool.Nil; h = l.node(h).next {
			if !yield(index, l.resolve(l.node(h))) {
				return
			}
			index++
		}
	}
}

// Clear frees every action in the chain.
func (l *List) Clear() {
	h := l.head
	l.head = pool.Nil
	l.freeChain(h)
}

// Snapshot returns the resolved chain, head first.
func (l *List) Snapshot() []Action {
	var out []Action
	for _, a := range l.All() {
		out = append(out, a)
	}
	return out
}

// Restore replaces the chain with actions, keeping their ID stamps. Actions
// without a stamp get a fresh one. Either the whole chain is replaced or,
// on allocation failure, nothing changes.
func (l *List) Restore(actions []Action) error {
	for _, a := range actions {
		if err := checkTimesToFire(a.TimesToFire); err != nil {
			return err
		}
	}
	var head, tail pool.Handle
	for _, a := range actions {
		h, err := l.alloc.Alloc()
		if err != nil {
			l.freeChain(head)
			return err
		}
		stamp := a.IDStamp
		if stamp <= 0 {
			stamp = l.stamps.Next()
		} else {
			l.stamps.Observe(stamp)
		}
		l.fill(l.node(h), a, stamp)
		if tail == pool.Nil {
			head = h
		} else {
			l.node(tail).next = h
		}
		tail = h
	}
	l.Clear()
	l.head = head
	return nil
}

// walk returns the node at index i and its predecessor. It fails when the
// chain runs out before i steps.
func (l *List) walk(i int) (prev, cur pool.Handle, err error) {
	if i < 0 || l.head == pool.Nil {
		return pool.Nil, pool.Nil, notFound(i)
	}
	cur = l.head
	for step := 0; step < i; step++ {
		next := l.node(cur).next
		if next == pool.Nil {
			return pool.Nil, pool.Nil, notFound(i)
		}
		prev, cur = cur, next
	}
	return prev, cur, nil
}

func (l *List) unlink(prev, h pool.Handle) {
	next := l.node(h).next
	if prev == pool.Nil {
		l.head = next
	} else {
		l.node(prev).next = next
	}
	l.alloc.Free(h)
}

func (l *List) freeChain(h pool.Handle) {
	for h != pool.Nil {
		next := l.node(h).next
		l.alloc.Free(h)
		h = next
	}
}

func (l *List) node(h pool.Handle) *Node {
	return l.alloc.Get(h)
}

func (l *List) fill(n *Node, a Action, stamp int) {
	n.target = l.strings.Intern(a.Target)
	n.targetInput = l.strings.Intern(a.TargetInput)
	n.parameter = l.strings.Intern(a.Parameter)
	n.delay = a.Delay
	n.timesToFire = int32(a.TimesToFire)
	n.idStamp = int32(stamp)
	n.next = pool.Nil
}

func (l *List) resolve(n *Node) Action {
	return Action{
		Target:      l.strings.Lookup(n.target),
		TargetInput: l.strings.Lookup(n.targetInput),
		Parameter:   l.strings.Lookup(n.parameter),
		Delay:       n.delay,
		TimesToFire: int(n.timesToFire),
		IDStamp:     int(n.idStamp),
	}
}

func fieldRef(n *Node, f Field) (*intern.String, error) {
	switch f {
	case FieldTarget:
		return &n.target, nil
	case FieldTargetInput:
		return &n.targetInput, nil
	case FieldParameter:
		return &n.parameter, nil
	default:
		_, err := ParseField(f.String())
		return nil, err
	}
}
