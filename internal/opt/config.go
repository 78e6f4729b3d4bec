package opt

import (
	"fmt"
	"time"
)

// Config tunes the VNS driver. Zero values of TabuTenure, Patience and
// MinIterations are filled from the instance size by Resolve.
type Config struct {
	Method        Method        `yaml:"method" json:"method"`
	UseOrOpt      bool          `yaml:"useOrOpt" json:"useOrOpt"`
	KMin          int           `yaml:"kMin" json:"kMin"`
	KMax          int           `yaml:"kMax" json:"kMax"`
	TabuTenure    int           `yaml:"tabuTenure" json:"tabuTenure"`
	TabuHorizon   int           `yaml:"tabuHorizon" json:"tabuHorizon"`
	TabuRetries   int           `yaml:"tabuRetries" json:"tabuRetries"`
	SwapRetries   int           `yaml:"swapRetries" json:"swapRetries"`
	MaxIterations int           `yaml:"maxIterations" json:"maxIterations"`
	TimeLimit     time.Duration `yaml:"timeLimit" json:"timeLimit"`
	Patience      int           `yaml:"patience" json:"patience"`
	MinIterations int           `yaml:"minIterations" json:"minIterations"`
	Seed          int64         `yaml:"seed" json:"seed"`
}

const (
	defaultKMax          = 5
	defaultTabuRetries   = 5
	defaultSwapRetries   = 10
	defaultMaxIterations = 1000
	defaultTimeLimit     = 600 * time.Second
	tabuTenureMin        = 10
	tabuTenureMax        = 20
	patienceMin          = 300
	patienceMax          = 300
	minIterationsFloor   = 50
)

func DefaultConfig() Config {
	return Config{
		Method:        ClarkeWright,
		KMin:          1,
		KMax:          defaultKMax,
		TabuRetries:   defaultTabuRetries,
		SwapRetries:   defaultSwapRetries,
		MaxIterations: defaultMaxIterations,
		TimeLimit:     defaultTimeLimit,
	}
}

func (c Config) Validate() error {
	switch {
	case c.KMin < 1:
		return fmt.Errorf("%w: kMin must be >= 1, got %d", ErrInvalidConfig, c.KMin)
	case c.KMax < c.KMin:
		return fmt.Errorf("%w: kMax %d < kMin %d", ErrInvalidConfig, c.KMax, c.KMin)
	case c.TabuTenure < 0, c.TabuHorizon < 0, c.TabuRetries < 0, c.SwapRetries < 0:
		return fmt.Errorf("%w: tabu and retry settings must be non-negative", ErrInvalidConfig)
	case c.MaxIterations < 0 || c.TimeLimit < 0:
		return fmt.Errorf("%w: limits must be non-negative", ErrInvalidConfig)
	case c.Patience < 0 || c.MinIterations < 0:
		return fmt.Errorf("%w: patience settings must be non-negative", ErrInvalidConfig)
	}
	if _, err := ParseMethod(c.Method.String()); err != nil {
		return err
	}
	return nil
}

// Resolve fills size dependent defaults for an instance with n nodes.
func (c Config) Resolve(n int) Config {
	if c.TabuTenure == 0 {
		c.TabuTenure = clamp(n/20, tabuTenureMin, tabuTenureMax)
	}
	if c.Patience == 0 {
		c.Patience = clamp(n/5, patienceMin, patienceMax)
	}
	if c.MinIterations == 0 {
		c.MinIterations = max(minIterationsFloor, n/10)
	}
	return c
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
