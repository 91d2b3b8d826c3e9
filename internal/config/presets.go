package config

import "sort"

var Presets = map[string]map[string]*Config{
	"decay": {
		"quick": {
			Problem: "decay", Integrator: "rk4", Nodes: 2, End: 1.0, Dt: 0.1,
			Executor: ExecutorConfig{Steps: 4},
		},
		"stiff": {
			Problem: "decay", Integrator: "rk45", Nodes: 4, End: 2.0, Dt: 0.25,
			Params:   map[string]float64{"rate3": 40},
			Executor: ExecutorConfig{Steps: 2},
		},
	},
	"spring_chain": {
		"pulse": {
			Problem: "spring_chain", Integrator: "verlet", Nodes: 8, End: 2.0, Dt: 0.05,
			Executor: ExecutorConfig{Steps: 5, MaxIterations: 10, Parallel: true},
		},
		"adaptive": {
			Problem: "spring_chain", Integrator: "rk4", Nodes: 4, End: 2.0, Dt: 0.1,
			Executor: ExecutorConfig{Steps: 4, MaxIterations: 8, SweepsPerTurn: 3},
			Driver: DriverConfig{MinWidth: 0.02, MaxWidth: 0.2, SlowIterations: 5,
				FastIterations: 3, Shrink: 0.5, Grow: 1.5},
		},
	},
	"coupled_pendulum": {
		"beat": {
			Problem: "coupled_pendulum", Integrator: "rk4", End: 20.0, Dt: 0.1,
			Executor: ExecutorConfig{Steps: 5, MaxIterations: 8},
		},
	},
	"nbody": {
		"ring": {
			Problem: "nbody", Integrator: "verlet", Nodes: 4, End: 6.0, Dt: 0.05,
			Executor: ExecutorConfig{Steps: 10, MaxIterations: 12},
		},
	},
	"lorenz": {
		"butterfly": {
			Problem: "lorenz", Integrator: "rk45", End: 10.0, Dt: 0.05,
			Executor: ExecutorConfig{Steps: 2},
		},
	},
}

// GetPreset returns a copy of the preset merged over the defaults.
func GetPreset(problem, preset string) *Config {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	p, ok := problemPresets[preset]
	if !ok {
		return nil
	}

	cfg := DefaultConfig()
	cfg.Problem, cfg.Integrator, cfg.End, cfg.Dt = p.Problem, p.Integrator, p.End, p.Dt
	if p.Nodes > 0 {
		cfg.Nodes = p.Nodes
	}
	if p.Params != nil {
		cfg.Params = make(map[string]float64, len(p.Params))
		for k, v := range p.Params {
			cfg.Params[k] = v
		}
	}
	cfg.Executor = p.Executor
	cfg.Driver = p.Driver
	return cfg
}

func ListPresets(problem string) []string {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(problemPresets))
	for name := range problemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
