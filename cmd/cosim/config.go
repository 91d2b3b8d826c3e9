package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/config"
)

func listPresets(problem string) []string {
	return config.ListPresets(problem)
}

// buildConfig layers defaults, preset, config file, environment and
// changed flags, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	problem := ""
	if len(args) > 0 {
		problem = args[0]
	}

	if preset != "" {
		if problem == "" {
			return nil, fmt.Errorf("--preset needs a problem argument")
		}
		cfg = config.GetPreset(problem, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(problem))
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if problem != "" {
		cfg.Problem = problem
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("nodes") {
		cfg.Nodes = nodes
	}
	if flags.Changed("start") {
		cfg.Start = start
	}
	if flags.Changed("end") {
		cfg.End = end
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("steps") {
		cfg.Executor.Steps = steps
	}
	if flags.Changed("tolerance") {
		cfg.Executor.Tolerance = tolerance
	}
	if flags.Changed("max-iter") {
		cfg.Executor.MaxIterations = maxIter
	}
	if flags.Changed("sweeps") {
		cfg.Executor.SweepsPerTurn = sweeps
	}
	if flags.Changed("parallel") {
		cfg.Executor.Parallel = parallel
	}
	if flags.Changed("trace") {
		cfg.Trace.DSN = traceDSN
	}
	if flags.Changed("trace-driver") {
		cfg.Trace.Driver = traceDriver
	}
	if flags.Changed("mqtt") {
		cfg.MQTT.URL = mqttURL
	}
	if flags.Changed("client-id") {
		cfg.MQTT.ClientID = clientID
	}

	if len(params) > 0 {
		parsed, err := parseParams(params)
		if err != nil {
			return nil, err
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64, len(parsed))
		}
		for k, v := range parsed {
			cfg.Params[k] = v
		}
	}

	return cfg, cfg.Validate()
}

func parseParams(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q, want name=value", pair)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --param %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}
