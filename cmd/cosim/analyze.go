package main

import (
	"fmt"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/analysis"
	"github.com/san-kum/cosim/internal/export"
	"github.com/san-kum/cosim/internal/storage"
)

var (
	phaseX     int
	phaseY     int
	crossAt    float64
	crossIndex int
	samples    int
)

func loadRun(id string) (*storage.RunMetadata, []storage.Record, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	records, err := st.LoadRecords(id)
	if err != nil {
		return nil, nil, err
	}
	return meta, records, nil
}

func phaseRun(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	node := max(plotNode, 0)

	p := analysis.NewPortrait(records, node, phaseX, phaseY)
	if len(p.Points) == 0 {
		return fmt.Errorf("node %d has no components %d and %d", node, phaseX, phaseY)
	}
	fmt.Printf("%s node %d: x%d (horizontal) vs x%d\n\n", meta.Problem, node, phaseX, phaseY)
	fmt.Print(p.ASCII(70, 24))

	if cmd.Flags().Changed("cross") {
		section := analysis.Poincare(records, node, crossIndex, crossAt, phaseX, phaseY)
		fmt.Printf("\n%d upward crossings of x%d = %g\n", len(section), crossIndex, crossAt)
		for _, pt := range section {
			fmt.Printf("  (%.6g, %.6g)\n", pt.X, pt.Y)
		}
	}
	return nil
}

func spectrumRun(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	node := max(plotNode, 0)

	s := analysis.Component(records, node, plotComponent)
	if s.Len() < 4 {
		return fmt.Errorf("node %d component %d has %d samples, need 4", node, plotComponent, s.Len())
	}
	ps := analysis.Spectrum(s.Resample(samples).X)

	fmt.Printf("%s node %d x%d over %d intervals\n\n", meta.Problem, node, plotComponent, s.Len())
	fmt.Println(asciigraph.Plot(ps,
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption("power spectrum")))
	fmt.Printf("\ndominant frequency: %.4g\n", analysis.DominantFrequency(s, samples))
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}

	var lines []export.Line
	for n := range meta.Dims {
		if plotNode >= 0 && n != plotNode {
			continue
		}
		label := fmt.Sprintf("node %d x%d", n, plotComponent)
		lines = append(lines, export.SeriesLine(label, analysis.Component(records, n, plotComponent)))
	}

	if outFile == "" {
		return export.WriteSVG(os.Stdout, lines, 800, 400)
	}
	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	if err := export.WriteSVG(f, lines, 800, 400); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outFile)
	return nil
}
