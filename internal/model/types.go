package model

import (
	"time"

	"cvrpsolver/internal/opt"
)

// Wire types of the solver service.

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CustomerIn struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Demand int     `json:"demand"`
}

type InstanceIn struct {
	Name      string       `json:"name,omitempty"`
	Depot     Point        `json:"depot"`
	Capacity  int          `json:"capacity"`
	Customers []CustomerIn `json:"customers"`
}

// SolveOptions overlays opt.Config. Zero fields keep the stored or built-in default.
type SolveOptions struct {
	Method        string `json:"method,omitempty"`
	UseOrOpt      *bool  `json:"useOrOpt,omitempty"`
	KMin          int    `json:"kMin,omitempty"`
	KMax          int    `json:"kMax,omitempty"`
	TabuTenure    int    `json:"tabuTenure,omitempty"`
	TabuHorizon   int    `json:"tabuHorizon,omitempty"`
	MaxIterations int    `json:"maxIterations,omitempty"`
	TimeBudgetMs  int    `json:"timeBudgetMs,omitempty"`
	Patience      int    `json:"patience,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	Starts        int    `json:"starts,omitempty"`
}

type Callback struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// SolveRequest carries either an inline instance or TSPLIB text in VRP.
type SolveRequest struct {
	Instance *InstanceIn  `json:"instance,omitempty"`
	VRP      string       `json:"vrp,omitempty"`
	Options  SolveOptions `json:"options"`
	Callback *Callback    `json:"callback,omitempty"`
}

// Run statuses.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run events published to the broker and to webhooks.
const (
	EventRunStarted   = "run.started"
	EventRunProgress  = "run.progress"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

type Run struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenantId"`
	Instance   string       `json:"instance"`
	Customers  int          `json:"customers"`
	Capacity   int          `json:"capacity"`
	Method     string       `json:"method"`
	Status     string       `json:"status"`
	Options    SolveOptions `json:"options"`
	Callback   *Callback    `json:"-"`
	Result     *RunResult   `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

// Terminal reports whether the run will not change any more.
func (r Run) Terminal() bool { return r.Status == RunSucceeded || r.Status == RunFailed }

type RouteOut struct {
	Customers []int   `json:"customers"`
	Load      int     `json:"load"`
	Cost      float64 `json:"cost"`
}

type RunResult struct {
	Cost     float64     `json:"cost"`
	Vehicles int         `json:"vehicles"`
	Routes   []RouteOut  `json:"routes"`
	Seed     int64       `json:"seed"`
	Metrics  opt.Metrics `json:"metrics"`
}

// NewRunResult converts a solution and its metrics into the wire form.
func NewRunResult(sol *opt.Solution, m opt.Metrics, seed int64) RunResult {
	ids := sol.CustomerIDs()
	out := RunResult{Cost: sol.Cost(), Vehicles: sol.RouteCount(), Seed: seed, Metrics: m}
	for i, r := range sol.Routes() {
		out.Routes = append(out.Routes, RouteOut{Customers: ids[i], Load: r.Load(), Cost: r.Cost()})
	}
	return out
}

// RunMetrics is one persisted metrics row.
type RunMetrics struct {
	RunID     string      `json:"runId"`
	Instance  string      `json:"instance"`
	Method    string      `json:"method"`
	Metrics   opt.Metrics `json:"metrics"`
	CreatedAt time.Time   `json:"createdAt"`
}

// RunEvent is the payload on broker channels, SSE and websocket streams.
type RunEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}
