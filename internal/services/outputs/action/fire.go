package action

import "github.com/louisbranch/outputinfo/internal/services/outputs/pool"

// FireRequest describes one firing of an output.
type FireRequest struct {
	// Value is passed to actions that carry no parameter of their own.
	Value string
	// Delay is added to every action's own delay.
	Delay float32
	// Activator and Caller identify the entities behind the firing.
	Activator int
	Caller    int
}

// Event is one scheduled input produced by firing an output.
type Event struct {
	Target      string
	TargetInput string
	Parameter   string
	Delay       float32
	Activator   int
	Caller      int
	IDStamp     int
}

// Sink receives the events produced by Fire, in chain order.
type Sink func(Event)

// Fire emits one event per action, head first. Actions with a limited fire
// count are decremented and dropped from the chain once they reach zero.
// It returns the number of events emitted.
func (l *List) Fire(req FireRequest, sink Sink) int {
	emitted := 0
	var prev pool.Handle
	h := l.head
	for h != pool.Nil {
		n := l.node(h)
		parameter := l.strings.Lookup(n.parameter)
		if parameter == "" {
			parameter = req.Value
		}
		if sink != nil {
			sink(Event{
				Target:      l.strings.Lookup(n.target),
				TargetInput: l.strings.Lookup(n.targetInput),
				Parameter:   parameter,
				Delay:       n.delay + req.Delay,
				Activator:   req.Activator,
				Caller:      req.Caller,
				IDStamp:     int(n.idStamp),
			})
		}
		emitted++

		next := n.next
		if n.timesToFire != FireAlways {
			n.timesToFire--
			if n.timesToFire <= 0 {
				l.unlink(prev, h)
				h = next
				continue
			}
		}
		prev, h = h, next
	}
	return emitted
}
