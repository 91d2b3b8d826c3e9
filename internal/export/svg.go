// Package export renders stored run data as standalone SVG documents.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/cosim/internal/analysis"
)

var palette = []string{"#00ffff", "#ff00ff", "#00ff00", "#ffff00", "#ff8800", "#8888ff"}

// Color returns the stroke color used for the i-th line.
func Color(i int) string {
	return palette[i%len(palette)]
}

// Line is one polyline of a plot.
type Line struct {
	Label  string
	Points []analysis.Point
}

// SeriesLine turns a time series into a plot line.
func SeriesLine(label string, s analysis.Series) Line {
	l := Line{Label: label, Points: make([]analysis.Point, s.Len())}
	for i := range s.T {
		l.Points[i] = analysis.Point{X: s.T[i], Y: s.X[i]}
	}
	return l
}

// WriteSVG draws lines scaled into a common box. Lines with fewer than
// two points are skipped.
func WriteSVG(w io.Writer, lines []Line, width, height int) error {
	var all []analysis.Point
	for _, l := range lines {
		if len(l.Points) >= 2 {
			all = append(all, l.Points...)
		}
	}
	if len(all) == 0 {
		return fmt.Errorf("export: nothing to draw")
	}
	minX, maxX, minY, maxY := analysis.Bounds(all)
	rangeX, rangeY := maxX-minX, maxY-minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i, l := range lines {
		if len(l.Points) < 2 {
			continue
		}
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, Color(i))
		for j, p := range l.Points {
			x := (p.X - minX) / rangeX * float64(width)
			y := float64(height) - (p.Y-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString(`"/>` + "\n")
		if l.Label != "" {
			fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>`+"\n",
				16+14*i, Color(i), escape(l.Label))
		}
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
