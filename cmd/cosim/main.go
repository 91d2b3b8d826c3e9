package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/san-kum/cosim/internal/optim"
)

var (
	dataDir    string
	configFile string
	preset     string
	envFiles   []string
	verbose    bool

	integrator  string
	nodes       int
	start       float64
	end         float64
	dt          float64
	steps       int
	tolerance   float64
	maxIter     int
	sweeps      int
	parallel    bool
	params      []string
	traceDSN    string
	traceDriver string
	monitorAddr string
	noSave      bool

	mqttURL  string
	clientID string

	plotNode      int
	plotComponent int
	outFile       string
)

// errRunFailed makes the process exit 1 after a run that ended failed.
var errRunFailed = errors.New("run ended failed")

func main() {
	rootCmd := &cobra.Command{
		Use:           "cosim",
		Short:         "interval-controlled co-simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cosim", "data directory")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "env files to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log protocol activity to stderr")

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "run controller and driver in-process",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLocal,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&monitorAddr, "monitor", "", "serve run status over HTTP on this address")

	liveCmd := &cobra.Command{
		Use:   "live [problem]",
		Short: "run in-process with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	serveCmd := &cobra.Command{
		Use:   "serve [problem]",
		Short: "run the interval controller over MQTT",
		Args:  cobra.MaximumNArgs(1),
		RunE:  serveMQTT,
	}
	addRunFlags(serveCmd)
	addMQTTFlags(serveCmd)
	serveCmd.Flags().StringVar(&monitorAddr, "monitor", "", "serve run status over HTTP on this address")

	driveCmd := &cobra.Command{
		Use:   "drive [problem]",
		Short: "drive a remote controller over MQTT",
		Args:  cobra.MaximumNArgs(1),
		RunE:  driveMQTT,
	}
	addRunFlags(driveCmd)
	addMQTTFlags(driveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run metadata and intervals",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot node values over intervals",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotNode, "node", -1, "node to plot (-1 plots every node)")
	plotCmd.Flags().IntVar(&plotComponent, "component", 0, "state component to plot")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	problemsCmd := &cobra.Command{
		Use:   "problems",
		Short: "list problems and integrators",
		RunE:  listProblems,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [problem]",
		Short: "list available presets for a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := listPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for problem: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "draw the phase portrait of a node",
		Args:  cobra.ExactArgs(1),
		RunE:  phaseRun,
	}
	phaseCmd.Flags().IntVar(&plotNode, "node", 0, "node to draw")
	phaseCmd.Flags().IntVar(&phaseX, "x", 0, "horizontal component")
	phaseCmd.Flags().IntVar(&phaseY, "y", 1, "vertical component")
	phaseCmd.Flags().IntVar(&crossIndex, "cross-component", 0, "component tested for Poincare crossings")
	phaseCmd.Flags().Float64Var(&crossAt, "cross", 0, "list upward crossings through this value")

	spectrumCmd := &cobra.Command{
		Use:   "spectrum [run_id]",
		Short: "power spectrum of one node component",
		Args:  cobra.ExactArgs(1),
		RunE:  spectrumRun,
	}
	spectrumCmd.Flags().IntVar(&plotNode, "node", 0, "node to analyze")
	spectrumCmd.Flags().IntVar(&plotComponent, "component", 0, "state component")
	spectrumCmd.Flags().IntVar(&samples, "samples", 128, "uniform samples to resample onto")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export node values as an SVG plot",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().IntVar(&plotNode, "node", -1, "node to plot (-1 plots every node)")
	exportSVGCmd.Flags().IntVar(&plotComponent, "component", 0, "state component to plot")
	exportSVGCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	tuneCmd := &cobra.Command{
		Use:   "tune [problem]",
		Short: "grid search run settings",
		Long: `Runs every combination of the given knob values and reports the one
with the lowest metric. Knobs: dt, end, steps, tolerance, max_iterations,
sweeps_per_turn and param.<name>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: tuneRun,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneKnobs, "knob", nil, "knob grid name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", optim.MetricTurns, "metric to minimize")

	sweepCmd := &cobra.Command{
		Use:   "sweep [problem]",
		Short: "sweep one knob over a linear range",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepRun,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepKnob, "knob", "dt", "knob to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.05, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.5, "last value")
	sweepCmd.Flags().IntVar(&sweepPoints, "points", 5, "number of values")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run the steps of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  batchRun,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	rootCmd.AddCommand(runCmd, liveCmd, serveCmd, driveCmd, listCmd, showCmd, plotCmd, exportJSONCmd,
		phaseCmd, spectrumCmd, exportSVGCmd, problemsCmd, presetsCmd, tuneCmd, sweepCmd, batchCmd)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.StringVar(&integrator, "integrator", "rk4", "integrator")
	f.IntVar(&nodes, "nodes", 2, "number of nodes")
	f.Float64Var(&start, "start", 0, "start time")
	f.Float64Var(&end, "end", 1, "end time")
	f.Float64Var(&dt, "dt", 0.1, "interval width")
	f.IntVar(&steps, "steps", 4, "steps per interval")
	f.Float64Var(&tolerance, "tolerance", 0, "residual tolerance (0 uses the default)")
	f.IntVar(&maxIter, "max-iter", 0, "iteration budget per interval (0 uses the default)")
	f.IntVar(&sweeps, "sweeps", 0, "sweeps per turn (0 means the whole budget)")
	f.BoolVar(&parallel, "parallel", false, "integrate nodes concurrently")
	f.StringArrayVar(&params, "param", nil, "problem parameter name=value (repeatable)")
	f.StringVar(&traceDSN, "trace", "", "trace messages into this database")
	f.StringVar(&traceDriver, "trace-driver", "sqlite", "trace database driver (sqlite, postgres)")
	f.BoolVar(&noSave, "no-save", false, "do not store the run")
}

func addMQTTFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&mqttURL, "mqtt", "", "broker URL (default $COSIM_MQTT_URL or tcp://localhost:1883)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "MQTT client ID prefix")
}

func newLogger() *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
}
