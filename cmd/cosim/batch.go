package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/automation"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/optim"
	"github.com/san-kum/cosim/internal/storage"
)

var (
	tuneKnobs  []string
	tuneMetric string

	sweepKnob   string
	sweepMin    float64
	sweepMax    float64
	sweepPoints int
)

// parseKnobs reads name=v1,v2,... grid definitions.
func parseKnobs(defs []string) ([]string, [][]float64, error) {
	knobs := make([]string, 0, len(defs))
	ranges := make([][]float64, 0, len(defs))
	for _, def := range defs {
		name, list, ok := strings.Cut(def, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("invalid --knob %q, want name=v1,v2,...", def)
		}
		var vals []float64
		for _, raw := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --knob %q: %w", def, err)
			}
			vals = append(vals, v)
		}
		knobs = append(knobs, name)
		ranges = append(ranges, vals)
	}
	return knobs, ranges, nil
}

func tuneRun(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	knobs, ranges, err := parseKnobs(tuneKnobs)
	if err != nil {
		return err
	}
	if len(knobs) == 0 {
		return fmt.Errorf("tune needs at least one --knob")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gs := optim.NewGridSearch(knobs, ranges)
	best, all, err := gs.Search(ctx, cfg, optim.LocalRun(experiment.NewRegistry()), tuneMetric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(knobs, "\t")+"\t"+tuneMetric+"\tSTATUS")
	for _, c := range all {
		cols := make([]string, 0, len(knobs)+2)
		for _, k := range knobs {
			cols = append(cols, strconv.FormatFloat(c.Values[k], 'g', -1, 64))
		}
		status := "ok"
		switch {
		case c.Err != nil:
			status = c.Err.Error()
		case c.Failed:
			status = "failed"
		}
		cols = append(cols, fmt.Sprintf("%.6g", c.Score), status)
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	w.Flush()

	if err != nil {
		return err
	}
	fmt.Printf("\nbest (%s = %.6g):\n", tuneMetric, best.Score)
	for _, k := range knobs {
		fmt.Printf("  %s = %g\n", k, best.Values[k])
	}
	return nil
}

func sweepRun(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sw := &automation.ParameterSweep{
		Base:     cfg,
		Knob:     sweepKnob,
		Min:      sweepMin,
		Max:      sweepMax,
		NumSteps: sweepPoints,
	}
	results, err := automation.RunSweep(ctx, sw, experiment.NewRegistry(), os.Stderr)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFINAL\tINTERVALS\tTURNS\tITERATIONS\n", sweepKnob)
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%s\t%d\t%d\t%.3g\n", r.Value, r.Final, r.Intervals, r.Turns, r.Iterations)
	}
	return w.Flush()
}

func batchRun(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if sc.Description != "" {
		fmt.Printf("%s: %s\n", sc.Name, sc.Description)
	}
	results, err := automation.RunScenario(ctx, sc, experiment.NewRegistry(), os.Stdout, experiment.WithLogger(newLogger()))
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if !noSave {
		if err := st.Init(); err != nil {
			return err
		}
	}

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPROBLEM\tFINAL\tINTERVALS\tTURNS\tRUN")
	for i, r := range results {
		runID := "-"
		if !noSave {
			id, err := st.Save(r.Session.Metadata(r.Result), r.Result.Records)
			if err != nil {
				return err
			}
			runID = id
		}
		if r.Result.Failed() {
			failed++
		}
		name := r.Step.Name
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		rep := r.Result.Report
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", name, r.Config.Problem, rep.Final, rep.Intervals, rep.Turns, runID)
	}
	w.Flush()

	if failed > 0 {
		fmt.Printf("%d of %d steps ended failed\n", failed, len(results))
		return errRunFailed
	}
	return nil
}
