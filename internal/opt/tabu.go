package opt

// Tabu is a bounded FIFO of solution signatures. With a horizon set, entries
// older than horizon iterations are also forgotten.
type Tabu struct {
	tenure  int
	horizon int
	order   []tabuEntry
	count   map[uint64]int
}

type tabuEntry struct {
	sig uint64
	it  int
}

func NewTabu(tenure, horizon int) *Tabu {
	if tenure < 1 {
		tenure = 1
	}
	return &Tabu{tenure: tenure, horizon: horizon, count: make(map[uint64]int, tenure)}
}

// Add records sig as visited at iteration it, evicting the oldest entry when full.
func (t *Tabu) Add(sig uint64, it int) {
	t.expire(it)
	t.order = append(t.order, tabuEntry{sig: sig, it: it})
	t.count[sig]++
	for len(t.order) > t.tenure {
		t.evict()
	}
}

// Contains reports whether sig is tabu at iteration it.
func (t *Tabu) Contains(sig uint64, it int) bool {
	t.expire(it)
	return t.count[sig] > 0
}

func (t *Tabu) Len() int { return len(t.order) }

func (t *Tabu) expire(it int) {
	if t.horizon <= 0 {
		return
	}
	for len(t.order) > 0 && it-t.order[0].it > t.horizon {
		t.evict()
	}
}

func (t *Tabu) evict() {
	e := t.order[0]
	t.order = t.order[1:]
	if t.count[e.sig]--; t.count[e.sig] <= 0 {
		delete(t.count, e.sig)
	}
}
