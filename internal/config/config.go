package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProblem    = "decay"
	DefaultIntegrator = "rk4"
	DefaultNodes      = 2
	DefaultDt         = 0.1
	DefaultEnd        = 1.0
	DefaultSteps      = 4
	DefaultTopicIn    = "cosim/control"
	DefaultTopicOut   = "cosim/result"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Problem    string             `yaml:"problem"`
	Integrator string             `yaml:"integrator"`
	Nodes      int                `yaml:"nodes"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Start      float64            `yaml:"start"`
	End        float64            `yaml:"end"`
	Dt         float64            `yaml:"dt"`
	Executor   ExecutorConfig     `yaml:"executor"`
	Driver     DriverConfig       `yaml:"driver"`
	MQTT       MQTTConfig         `yaml:"mqtt"`
	Trace      TraceConfig        `yaml:"trace"`
}

type ExecutorConfig struct {
	Steps         int     `yaml:"steps"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	SweepsPerTurn int     `yaml:"sweeps_per_turn"`
	Parallel      bool    `yaml:"parallel"`
}

type DriverConfig struct {
	MinWidth       float64 `yaml:"min_width"`
	MaxWidth       float64 `yaml:"max_width"`
	SlowIterations int     `yaml:"slow_iterations"`
	FastIterations int     `yaml:"fast_iterations"`
	Shrink         float64 `yaml:"shrink"`
	Grow           float64 `yaml:"grow"`
}

type MQTTConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	TopicIn  string `yaml:"topic_in"`
	TopicOut string `yaml:"topic_out"`
}

// TraceConfig selects the message trace database. Driver is "sqlite" or
// "postgres"; an empty DSN disables tracing.
type TraceConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem:    DefaultProblem,
		Integrator: DefaultIntegrator,
		Nodes:      DefaultNodes,
		Start:      0,
		End:        DefaultEnd,
		Dt:         DefaultDt,
		Executor: ExecutorConfig{
			Steps: DefaultSteps,
		},
		MQTT: MQTTConfig{
			ClientID: "cosim",
			TopicIn:  DefaultTopicIn,
			TopicOut: DefaultTopicOut,
		},
		Trace: TraceConfig{
			Driver: "sqlite",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.Problem == "":
		return fmt.Errorf("%w: problem is required", ErrInvalid)
	case c.Integrator == "":
		return fmt.Errorf("%w: integrator is required", ErrInvalid)
	case c.Dt <= 0:
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalid, c.Dt)
	case c.End <= c.Start:
		return fmt.Errorf("%w: end %g must be after start %g", ErrInvalid, c.End, c.Start)
	case c.Executor.Steps < 0, c.Executor.MaxIterations < 0, c.Executor.SweepsPerTurn < 0:
		return fmt.Errorf("%w: executor counts must not be negative", ErrInvalid)
	case c.Executor.Tolerance < 0:
		return fmt.Errorf("%w: tolerance must not be negative", ErrInvalid)
	}
	switch c.Trace.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown trace driver %q", ErrInvalid, c.Trace.Driver)
	}
	return nil
}

// LoadEnv reads .env style files into the process environment. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("env %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv lets COSIM_MQTT_URL and COSIM_TRACE_DSN override the file.
func (c *Config) ApplyEnv() {
	if url := os.Getenv("COSIM_MQTT_URL"); url != "" {
		c.MQTT.URL = url
	}
	if dsn := os.Getenv("COSIM_TRACE_DSN"); dsn != "" {
		c.Trace.DSN = dsn
	}
}
