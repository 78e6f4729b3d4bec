package opt

import (
	"fmt"
	"math"
)

// Point is a planar coordinate.
type Point struct {
	X, Y float64
}

// Customer is a delivery point. ID is the external label (TSPLIB node id for parsed files).
type Customer struct {
	ID     int
	Pos    Point
	Demand int
}

// Instance is an immutable CVRP problem. Node 0 is the depot, customer k of the
// input slice is node k+1. Distances are Euclidean and stored row-major.
type Instance struct {
	name      string
	depot     Point
	depotID   int
	customers []Customer
	capacity  int
	n         int // nodes including depot
	dist      []float64
}

// NewInstance validates the input and precomputes the distance matrix.
func NewInstance(name string, depot Point, customers []Customer, capacity int) (*Instance, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidInstance, capacity)
	}
	seen := make(map[int]struct{}, len(customers))
	for _, c := range customers {
		if c.Demand < 0 {
			return nil, fmt.Errorf("%w: customer %d has negative demand %d", ErrInvalidInstance, c.ID, c.Demand)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate customer id %d", ErrInvalidInstance, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Demand > capacity {
			return nil, &CapacityViolationError{CustomerID: c.ID, Demand: c.Demand, Capacity: capacity}
		}
	}
	inst := &Instance{
		name:      name,
		depot:     depot,
		customers: append([]Customer(nil), customers...),
		capacity:  capacity,
		n:         len(customers) + 1,
	}
	inst.dist = make([]float64, inst.n*inst.n)
	for i := 0; i < inst.n; i++ {
		pi := inst.Coord(i)
		for j := i + 1; j < inst.n; j++ {
			pj := inst.Coord(j)
			d := math.Hypot(pi.X-pj.X, pi.Y-pj.Y)
			inst.dist[i*inst.n+j] = d
			inst.dist[j*inst.n+i] = d
		}
	}
	return inst, nil
}

// WithDepotID sets the external label written for the depot. Parsers use it to
// round-trip TSPLIB ids.
func (in *Instance) WithDepotID(id int) *Instance {
	in.depotID = id
	return in
}

func (in *Instance) Name() string { return in.name }

// N is the number of nodes including the depot.
func (in *Instance) N() int { return in.n }

// NumCustomers is N()-1.
func (in *Instance) NumCustomers() int { return in.n - 1 }

func (in *Instance) Capacity() int { return in.capacity }

func (in *Instance) Dist(i, j int) float64 { return in.dist[i*in.n+j] }

// Demand of node; the depot has none.
func (in *Instance) Demand(node int) int {
	if node == 0 {
		return 0
	}
	return in.customers[node-1].Demand
}

func (in *Instance) Coord(node int) Point {
	if node == 0 {
		return in.depot
	}
	return in.customers[node-1].Pos
}

// CustomerID maps a node index to its external id.
func (in *Instance) CustomerID(node int) int {
	if node == 0 {
		return in.depotID
	}
	return in.customers[node-1].ID
}

func (in *Instance) DepotID() int { return in.depotID }

// Customers returns a copy of the customer list in node order.
func (in *Instance) Customers() []Customer {
	return append([]Customer(nil), in.customers...)
}

// TotalDemand sums all customer demands.
func (in *Instance) TotalDemand() int {
	total := 0
	for _, c := range in.customers {
		total += c.Demand
	}
	return total
}

// MinVehicles is the trivial lower bound ceil(total demand / capacity).
func (in *Instance) MinVehicles() int {
	return (in.TotalDemand() + in.capacity - 1) / in.capacity
}
