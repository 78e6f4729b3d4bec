package opt

import (
	"math/rand"
	"sort"
)

// ShakeKind identifies a perturbation operator.
type ShakeKind int

const (
	RandomRelocate ShakeKind = iota
	RandomSwap
	DoubleBridge
)

// shakeOrder maps strength k to an operator through (k-1) mod 3.
var shakeOrder = [...]ShakeKind{RandomRelocate, RandomSwap, DoubleBridge}

func (k ShakeKind) String() string {
	switch k {
	case RandomRelocate:
		return "random-relocate"
	case RandomSwap:
		return "random-swap"
	case DoubleBridge:
		return "double-bridge"
	}
	return "unknown"
}

// ShakeFor returns the operator used at strength k (k >= 1).
func ShakeFor(k int) ShakeKind {
	return shakeOrder[(k-1)%len(shakeOrder)]
}

// Shake returns a perturbed copy of s. s itself is left untouched. retries bounds
// the attempts spent on each random swap pair.
func Shake(op ShakeKind, s *Solution, k int, rng *rand.Rand, retries int) *Solution {
	out := s.Clone()
	if k < 1 || out.RouteCount() == 0 {
		return out
	}
	switch op {
	case RandomRelocate:
		shakeRelocate(out, k, rng)
	case RandomSwap:
		shakeSwap(out, k, rng, retries)
	case DoubleBridge:
		shakeDoubleBridge(out, k, rng)
	}
	out.compact()
	return out
}

// refresh recomputes cached load and cost after a random edit.
func (r *Route) refresh(inst *Instance) {
	r.load = routeLoad(inst, r.nodes)
	r.cost = routeCost(inst, r.nodes)
}

// shakeRelocate moves k random customers into random positions of other routes
// with room for them, falling back to a fresh route when none has room.
func shakeRelocate(s *Solution, k int, rng *rand.Rand) {
	inst := s.inst
	for t := 0; t < k; t++ {
		total := 0
		for _, r := range s.routes {
			total += len(r.nodes)
		}
		if total == 0 {
			return
		}
		pick := rng.Intn(total)
		from := 0
		for pick >= len(s.routes[from].nodes) {
			pick -= len(s.routes[from].nodes)
			from++
		}
		src := s.routes[from]
		c := src.nodes[pick]
		dem := inst.Demand(c)
		var targets []int
		for ri, r := range s.routes {
			if ri != from && len(r.nodes) > 0 && r.load+dem <= inst.capacity {
				targets = append(targets, ri)
			}
		}
		if len(targets) == 0 && len(src.nodes) == 1 {
			continue
		}
		src.nodes = removeRange(src.nodes, pick, pick+1)
		src.refresh(inst)
		if len(targets) == 0 {
			s.routes = append(s.routes, newRoute(inst, []int{c}))
			continue
		}
		dst := s.routes[targets[rng.Intn(len(targets))]]
		dst.nodes = insertAt(dst.nodes, rng.Intn(len(dst.nodes)+1), c)
		dst.refresh(inst)
	}
}

// shakeSwap exchanges k disjoint customer pairs taken from two different routes.
func shakeSwap(s *Solution, k int, rng *rand.Rand, retries int) {
	if len(s.routes) < 2 {
		return
	}
	if retries < 1 {
		retries = 1
	}
	inst := s.inst
	used := make(map[int]bool, 2*k)
	for t := 0; t < k; t++ {
		for try := 0; try < retries; try++ {
			a := rng.Intn(len(s.routes))
			b := rng.Intn(len(s.routes) - 1)
			if b >= a {
				b++
			}
			r1, r2 := s.routes[a], s.routes[b]
			i, j := rng.Intn(len(r1.nodes)), rng.Intn(len(r2.nodes))
			c1, c2 := r1.nodes[i], r2.nodes[j]
			if used[c1] || used[c2] {
				continue
			}
			d1, d2 := inst.Demand(c1), inst.Demand(c2)
			if r1.load-d1+d2 > inst.capacity || r2.load-d2+d1 > inst.capacity {
				continue
			}
			r1.nodes[i], r2.nodes[j] = c2, c1
			r1.refresh(inst)
			r2.refresh(inst)
			used[c1], used[c2] = true, true
			break
		}
	}
}

// shakeDoubleBridge cuts 1+(k-1)/3 routes into max(4, k+1) pieces each and
// reconnects them as P0 P2 P4 ... P1 P3 ...; with four pieces this is A C B D.
func shakeDoubleBridge(s *Solution, k int, rng *rand.Rand) {
	var eligible []int
	for ri, r := range s.routes {
		if len(r.nodes) >= 4 {
			eligible = append(eligible, ri)
		}
	}
	if len(eligible) == 0 {
		return
	}
	count := 1 + (k-1)/3
	if count > len(eligible) {
		count = len(eligible)
	}
	shuffleIntsInPlace(eligible, rng)
	for _, ri := range eligible[:count] {
		r := s.routes[ri]
		n := len(r.nodes)
		m := k + 1
		if m < 4 {
			m = 4
		}
		if m > n {
			m = n
		}
		cuts := rng.Perm(n - 1)[:m-1]
		for i := range cuts {
			cuts[i]++
		}
		sort.Ints(cuts)
		bounds := append(append([]int{0}, cuts...), n)
		out := make([]int, 0, n)
		for p := 0; p < m; p += 2 {
			out = append(out, r.nodes[bounds[p]:bounds[p+1]]...)
		}
		for p := 1; p < m; p += 2 {
			out = append(out, r.nodes[bounds[p]:bounds[p+1]]...)
		}
		r.nodes = out
		r.refresh(s.inst)
	}
}
