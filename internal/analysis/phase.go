package analysis

import (
	"strings"

	"github.com/san-kum/cosim/internal/storage"
)

type Point struct{ X, Y float64 }

// Portrait is the trajectory of one node in the plane of two of its
// state components.
type Portrait struct {
	Node   int
	XIndex int
	YIndex int
	Points []Point
}

func NewPortrait(records []storage.Record, node, xIdx, yIdx int) *Portrait {
	p := &Portrait{Node: node, XIndex: xIdx, YIndex: yIdx}
	for _, rec := range records {
		if node >= len(rec.Value) {
			continue
		}
		x := rec.Value[node]
		if xIdx < len(x) && yIdx < len(x) {
			p.Points = append(p.Points, Point{x[xIdx], x[yIdx]})
		}
	}
	return p
}

// Bounds returns the padded bounding box of the points.
func Bounds(points []Point) (minX, maxX, minY, maxY float64) {
	minX, maxX = points[0].X, points[0].X
	minY, maxY = points[0].Y, points[0].Y
	for _, p := range points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - rangeX*0.1, maxX + rangeX*0.1, minY - rangeY*0.1, maxY + rangeY*0.1
}

// ASCII draws the portrait on a width x height character grid, with the
// axes where they cross the visible area.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := Bounds(p.Points)
	rangeX, rangeY := maxX-minX, maxY-minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	if minX <= 0 && maxX >= 0 {
		col := int(-minX / rangeX * float64(width-1))
		for row := range canvas {
			canvas[row][col] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int(-minY/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == '│' {
				canvas[row][col] = '┼'
			} else {
				canvas[row][col] = '─'
			}
		}
	}

	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		canvas[row][col] = '•'
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Poincare records the (xIdx, yIdx) components of node at every upward
// crossing of component crossIdx through threshold, interpolated between
// the two records that bracket the crossing.
func Poincare(records []storage.Record, node, crossIdx int, threshold float64, xIdx, yIdx int) []Point {
	var out []Point
	var prev []float64

	for _, rec := range records {
		if node >= len(rec.Value) {
			continue
		}
		x := rec.Value[node]
		if crossIdx >= len(x) || xIdx >= len(x) || yIdx >= len(x) {
			continue
		}
		if prev != nil && prev[crossIdx] < threshold && x[crossIdx] >= threshold {
			frac := (threshold - prev[crossIdx]) / (x[crossIdx] - prev[crossIdx])
			out = append(out, Point{
				X: prev[xIdx] + frac*(x[xIdx]-prev[xIdx]),
				Y: prev[yIdx] + frac*(x[yIdx]-prev[yIdx]),
			})
		}
		prev = x
	}
	return out
}
