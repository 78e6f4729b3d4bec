package opt

// State is the phase the VNS driver is in when an event is emitted.
type State int

const (
	StateInit State = iota
	StateShaking
	StateDescending
	StateEvaluating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateShaking:
		return "shaking"
	case StateDescending:
		return "descending"
	case StateEvaluating:
		return "evaluating"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

type EventKind string

const (
	EventInit           EventKind = "init"
	EventVNDImprovement EventKind = "vnd_improvement"
	EventAccepted       EventKind = "accepted"
	EventStagnation     EventKind = "stagnation"
	EventTerminated     EventKind = "terminated"
)

// Event is a snapshot of the search. Routes holds customer ids.
type Event struct {
	Kind      EventKind `json:"kind"`
	State     string    `json:"state"`
	Iteration int       `json:"iteration"`
	K         int       `json:"k"`
	Operator  string    `json:"operator,omitempty"`
	Cost      float64   `json:"cost"`
	Vehicles  int       `json:"vehicles"`
	Routes    [][]int   `json:"routes,omitempty"`
}

// Observer receives search events synchronously on the solver goroutine.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

func snapshot(kind EventKind, state State, it, k int, operator string, s *Solution) Event {
	return Event{
		Kind:      kind,
		State:     state.String(),
		Iteration: it,
		K:         k,
		Operator:  operator,
		Cost:      s.Cost(),
		Vehicles:  s.RouteCount(),
		Routes:    s.CustomerIDs(),
	}
}
