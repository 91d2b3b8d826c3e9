// Package automation runs scripted sequences of runs and parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/optim"
)

// Scenario defines a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset (or the defaults) and applies knob
// overrides, see optim.Apply.
type ScenarioStep struct {
	Name       string             `yaml:"name"`
	Problem    string             `yaml:"problem"`
	Preset     string             `yaml:"preset"`
	Integrator string             `yaml:"integrator"`
	Set        map[string]float64 `yaml:"set"`
}

// StepResult pairs a step with what it produced.
type StepResult struct {
	Step    ScenarioStep
	Config  *config.Config
	Session *experiment.Session
	Result  *experiment.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}

	return &scenario, nil
}

// StepConfig resolves the configuration of one step.
func StepConfig(step ScenarioStep) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if step.Preset != "" {
		cfg = config.GetPreset(step.Problem, step.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %s/%s", step.Problem, step.Preset)
		}
	}
	if step.Problem != "" {
		cfg.Problem = step.Problem
	}
	if step.Integrator != "" {
		cfg.Integrator = step.Integrator
	}

	knobs := make([]string, 0, len(step.Set))
	for k := range step.Set {
		knobs = append(knobs, k)
	}
	sort.Strings(knobs)
	for _, k := range knobs {
		if err := optim.Apply(cfg, k, step.Set[k]); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// RunScenario executes all steps in order. A step whose run ends failed
// does not stop the scenario; an error does.
func RunScenario(ctx context.Context, scenario *Scenario, reg *experiment.Registry, progress io.Writer, opts ...experiment.SessionOption) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := StepConfig(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		fmt.Fprintf(progress, "Running step %d/%d: %s\n", i+1, len(scenario.Steps), stepName(step, cfg))

		s, err := experiment.NewSession(cfg, reg, opts...)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		res, err := s.RunLocal(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Step: step, Config: cfg, Session: s, Result: res})
	}

	return results, nil
}

func stepName(step ScenarioStep, cfg *config.Config) string {
	if step.Name != "" {
		return step.Name
	}
	return cfg.Problem + "/" + cfg.Integrator
}

// ParameterSweep runs a base configuration across evenly spaced values
// of one knob.
type ParameterSweep struct {
	Base     *config.Config
	Knob     string
	Min, Max float64
	NumSteps int
}

// SweepResult holds the outcome of one sweep point.
type SweepResult struct {
	Value      float64
	Final      string
	Intervals  int
	Turns      int
	Iterations float64
	Metrics    map[string]float64
}

func (sw *ParameterSweep) Values() []float64 {
	if sw.NumSteps < 2 {
		return []float64{sw.Min}
	}
	step := (sw.Max - sw.Min) / float64(sw.NumSteps-1)
	vals := make([]float64, sw.NumSteps)
	for i := range vals {
		vals[i] = sw.Min + float64(i)*step
	}
	return vals
}

func RunSweep(ctx context.Context, sw *ParameterSweep, reg *experiment.Registry, progress io.Writer) ([]SweepResult, error) {
	vals := sw.Values()
	results := make([]SweepResult, 0, len(vals))

	for i, v := range vals {
		cfg := optim.Clone(sw.Base)
		if err := optim.Apply(cfg, sw.Knob, v); err != nil {
			return nil, err
		}

		s, err := experiment.NewSession(cfg, reg)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sw.Knob, v, err)
		}
		res, err := s.RunLocal(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sw.Knob, v, err)
		}

		results = append(results, SweepResult{
			Value:      v,
			Final:      res.Report.Final.String(),
			Intervals:  res.Report.Intervals,
			Turns:      res.Report.Turns,
			Iterations: res.Metrics["iterations"],
			Metrics:    res.Metrics,
		})

		fmt.Fprintf(progress, "Sweep %d/%d: %s=%.4g\n", i+1, len(vals), sw.Knob, v)
	}

	return results, nil
}
