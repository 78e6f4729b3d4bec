package opt

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityViolation is returned when a single customer's demand exceeds the vehicle capacity.
	ErrCapacityViolation = errors.New("opt: customer demand exceeds vehicle capacity")
	// ErrInfeasibleInstance signals that a construction produced a solution breaking an invariant.
	ErrInfeasibleInstance = errors.New("opt: infeasible solution")
	ErrInvalidInstance    = errors.New("opt: invalid instance")
	ErrInvalidConfig      = errors.New("opt: invalid config")
	// ErrStagnation is logged when every shaking retry lands on a tabu solution. Never returned.
	ErrStagnation = errors.New("opt: shaking stagnated on tabu solutions")
	// ErrMoveInfeasible is used inside operators only.
	ErrMoveInfeasible = errors.New("opt: move violates capacity")
)

// CapacityViolationError names the customer that cannot fit any vehicle.
type CapacityViolationError struct {
	CustomerID int
	Demand     int
	Capacity   int
}

func (e *CapacityViolationError) Error() string {
	return fmt.Sprintf("customer %d demand %d exceeds capacity %d", e.CustomerID, e.Demand, e.Capacity)
}

func (e *CapacityViolationError) Unwrap() error { return ErrCapacityViolation }

// InfeasibleError reports which route broke which invariant. Route is -1 for solution-wide problems.
type InfeasibleError struct {
	Route  int
	Reason string
}

func (e *InfeasibleError) Error() string {
	if e.Route < 0 {
		return "infeasible solution: " + e.Reason
	}
	return fmt.Sprintf("infeasible solution: route %d: %s", e.Route, e.Reason)
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasibleInstance }
