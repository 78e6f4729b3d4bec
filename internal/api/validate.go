package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/tsplib"
)

func validateSolveRequest(req *model.SolveRequest, maxStarts int) error {
	hasVRP := strings.TrimSpace(req.VRP) != ""
	if (req.Instance == nil) == !hasVRP {
		return errors.New("exactly one of instance or vrp is required")
	}
	if in := req.Instance; in != nil {
		if in.Capacity <= 0 {
			return fmt.Errorf("capacity must be > 0")
		}
		seen := make(map[int]struct{}, len(in.Customers))
		for _, c := range in.Customers {
			if c.Demand < 0 {
				return fmt.Errorf("customer %d: demand must be >= 0", c.ID)
			}
			if _, dup := seen[c.ID]; dup {
				return fmt.Errorf("duplicate customer id %d", c.ID)
			}
			seen[c.ID] = struct{}{}
		}
	}
	if err := validateOptions(req.Options, maxStarts); err != nil {
		return err
	}
	if cb := req.Callback; cb != nil {
		u, err := url.Parse(cb.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callback.url must be an absolute http(s) URL")
		}
	}
	return nil
}

func validateOptions(o model.SolveOptions, maxStarts int) error {
	if o.Method != "" {
		if _, err := opt.ParseMethod(o.Method); err != nil {
			return err
		}
	}
	switch {
	case o.KMin < 0 || o.KMax < 0:
		return fmt.Errorf("kMin and kMax must be >= 0")
	case o.TabuTenure < 0 || o.TabuHorizon < 0:
		return fmt.Errorf("tabuTenure and tabuHorizon must be >= 0")
	case o.MaxIterations < 0:
		return fmt.Errorf("maxIterations must be >= 0")
	case o.TimeBudgetMs < 0:
		return fmt.Errorf("timeBudgetMs must be >= 0")
	case o.Patience < 0:
		return fmt.Errorf("patience must be >= 0")
	case o.Starts < 0 || o.Starts > maxStarts:
		return fmt.Errorf("starts must be in [0,%d]", maxStarts)
	}
	return nil
}

// buildInstance converts the inline instance or parses the TSPLIB text.
func buildInstance(req *model.SolveRequest) (*opt.Instance, error) {
	if req.Instance == nil {
		return tsplib.ReadInstance(strings.NewReader(req.VRP))
	}
	in := req.Instance
	customers := make([]opt.Customer, len(in.Customers))
	for i, c := range in.Customers {
		customers[i] = opt.Customer{ID: c.ID, Pos: opt.Point{X: c.X, Y: c.Y}, Demand: c.Demand}
	}
	name := in.Name
	if name == "" {
		name = fmt.Sprintf("inline-n%d", len(customers)+1)
	}
	return opt.NewInstance(name, opt.Point{X: in.Depot.X, Y: in.Depot.Y}, customers, in.Capacity)
}

// decodeOptions reads a stored tenant config; unknown keys are rejected.
func decodeOptions(m map[string]any) (model.SolveOptions, error) {
	var o model.SolveOptions
	if len(m) == 0 {
		return o, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return o, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return o, fmt.Errorf("%w: %v", opt.ErrInvalidConfig, err)
	}
	return o, nil
}

// applyOptions overlays the non-zero fields of o on cfg.
func applyOptions(cfg opt.Config, o model.SolveOptions) (opt.Config, error) {
	if o.Method != "" {
		m, err := opt.ParseMethod(o.Method)
		if err != nil {
			return cfg, err
		}
		cfg.Method = m
	}
	if o.UseOrOpt != nil {
		cfg.UseOrOpt = *o.UseOrOpt
	}
	if o.KMin > 0 {
		cfg.KMin = o.KMin
	}
	if o.KMax > 0 {
		cfg.KMax = o.KMax
	}
	if o.TabuTenure > 0 {
		cfg.TabuTenure = o.TabuTenure
	}
	if o.TabuHorizon > 0 {
		cfg.TabuHorizon = o.TabuHorizon
	}
	if o.MaxIterations > 0 {
		cfg.MaxIterations = o.MaxIterations
	}
	if o.TimeBudgetMs > 0 {
		cfg.TimeLimit = time.Duration(o.TimeBudgetMs) * time.Millisecond
	}
	if o.Patience > 0 {
		cfg.Patience = o.Patience
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
	return cfg, cfg.Validate()
}

// optionsView renders a config in request option form.
func optionsView(cfg opt.Config, starts int) map[string]any {
	return map[string]any{
		"method":        cfg.Method.String(),
		"useOrOpt":      cfg.UseOrOpt,
		"kMin":          cfg.KMin,
		"kMax":          cfg.KMax,
		"tabuTenure":    cfg.TabuTenure,
		"tabuHorizon":   cfg.TabuHorizon,
		"maxIterations": cfg.MaxIterations,
		"timeBudgetMs":  cfg.TimeLimit.Milliseconds(),
		"patience":      cfg.Patience,
		"seed":          cfg.Seed,
		"starts":        starts,
	}
}
