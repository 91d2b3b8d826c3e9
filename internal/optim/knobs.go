package optim

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/cosim/internal/config"
)

var ErrUnknownKnob = errors.New("optim: unknown knob")

// Apply sets one tunable config value. Knobs are dt, steps, tolerance,
// max_iterations, sweeps_per_turn, end and param.<name>.
func Apply(cfg *config.Config, knob string, v float64) error {
	if name, ok := strings.CutPrefix(knob, "param."); ok {
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[name] = v
		return nil
	}

	switch knob {
	case "dt":
		cfg.Dt = v
	case "end":
		cfg.End = v
	case "tolerance":
		cfg.Executor.Tolerance = v
	case "steps":
		cfg.Executor.Steps = int(math.Round(v))
	case "max_iterations":
		cfg.Executor.MaxIterations = int(math.Round(v))
	case "sweeps_per_turn":
		cfg.Executor.SweepsPerTurn = int(math.Round(v))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKnob, knob)
	}
	return nil
}

// Clone copies cfg deep enough for Apply.
func Clone(cfg *config.Config) *config.Config {
	c := *cfg
	if cfg.Params != nil {
		c.Params = make(map[string]float64, len(cfg.Params))
		for k, v := range cfg.Params {
			c.Params[k] = v
		}
	}
	return &c
}
