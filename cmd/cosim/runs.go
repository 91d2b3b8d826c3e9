package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/analysis"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tTIME\tFINAL\tINTERVALS\tEND\tDT\tINTEG")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%g\t%g\t%s\n",
			run.ID,
			run.Problem,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Final,
			run.Intervals,
			run.End,
			run.Dt,
			run.Integrator,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	records, err := st.LoadRecords(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("problem: %s (%s)\n", meta.Problem, meta.Integrator)
	fmt.Printf("span: [%g, %g], dt %g\n", meta.Start, meta.End, meta.Dt)
	fmt.Printf("final: %s after %d intervals, %d turns\n", meta.Final, meta.Intervals, meta.Turns)

	if len(meta.Metrics) > 0 {
		fmt.Println("\nmetrics:")
		names := make([]string, 0, len(meta.Metrics))
		for name := range meta.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %.6g\n", name, meta.Metrics[name])
		}
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTART\tTIME\tFLAG\tITER\tRESIDUAL")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%g\t%g\t%s\t%d\t%.3g\n",
			rec.Interval, rec.Start, rec.Time, rec.Flag, rec.Iterations, rec.Residual)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	records, err := st.LoadRecords(args[0])
	if err != nil {
		return err
	}
	if len(records) < 2 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("problem: %s\n", meta.Problem)
	fmt.Printf("intervals: %d\n\n", len(records))

	nodeList := []int{plotNode}
	if plotNode < 0 {
		nodeList = nodeList[:0]
		const maxPlots = 6
		for n := 0; n < len(meta.Dims) && n < maxPlots; n++ {
			nodeList = append(nodeList, n)
		}
	}

	for _, n := range nodeList {
		data := analysis.Component(records, n, plotComponent).X
		if len(data) < 2 {
			return fmt.Errorf("node %d has no component %d", n, plotComponent)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption(fmt.Sprintf("node %d x%d vs interval end", n, plotComponent)))
		fmt.Println(graph)
		fmt.Println()
	}

	residuals := make([]float64, len(records))
	for i, rec := range records {
		residuals[i] = rec.Residual
	}
	fmt.Println(asciigraph.Plot(residuals,
		asciigraph.Height(6),
		asciigraph.Width(70),
		asciigraph.Caption("residual")))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	records, err := st.LoadRecords(args[0])
	if err != nil {
		return err
	}

	if outFile == "" {
		return storage.WriteJSON(os.Stdout, *meta, records)
	}
	if err := storage.ExportJSON(outFile, *meta, records); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outFile)
	return nil
}

func listProblems(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROBLEM\tNODES\tPARAMS\tPRESETS")
	for _, name := range reg.Problems() {
		p, err := reg.Problem(name, 2, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%v\n", name, p.Nodes(), paramList(p), listPresets(name))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nintegrators: %v\n", reg.Integrators())
	return nil
}

func paramList(p dynamo.Problem) string {
	c, ok := p.(dynamo.Configurable)
	if !ok {
		return "-"
	}
	ps := c.GetParams()
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)

	s := ""
	for i, name := range names {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%g", name, ps[name])
	}
	return s
}
