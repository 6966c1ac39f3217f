// Package debugdraw renders cost grids and flow fields to PNG for
// inspection in a browser.
package debugdraw

import (
	"bytes"
	"errors"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"battle-nav/internal/nav"
)

// MaxImageSide caps the rendered image; large grids get smaller cells.
const MaxImageSide = 4096

// Colors
var (
	groundColor      = color.RGBA{235, 235, 225, 255}
	roughColor       = color.RGBA{120, 90, 60, 255}
	wallColor        = color.RGBA{40, 40, 48, 255}
	wallCrossColor   = color.RGBA{200, 60, 60, 255}
	unreachedColor   = color.RGBA{90, 90, 110, 255}
	nearColor        = color.RGBA{80, 200, 120, 255}
	farColor         = color.RGBA{230, 90, 60, 255}
	arrowColor       = color.RGBA{20, 20, 20, 255}
	destinationColor = color.RGBA{40, 160, 255, 255}
)

var errEmpty = errors.New("debugdraw: nothing to draw")

// Options controls rendering.
type Options struct {
	CellPixels int  // side of one cell in pixels
	Arrows     bool // draw best-direction arrows (fields only)
	Heatmap    bool // shade by integration distance instead of cost (fields only)
}

// DefaultOptions returns 24px cells with arrows and cost shading.
func DefaultOptions() Options {
	return Options{CellPixels: 24, Arrows: true}
}

// RenderGrid draws the grid's current cost field.
func RenderGrid(g *nav.Grid, opts Options) ([]byte, error) {
	return RenderCells(g.Size(), g.Cells(), opts)
}

// RenderCells draws a row-major cost field.
func RenderCells(size nav.Size, cells []nav.Cell, opts Options) ([]byte, error) {
	if size.X <= 0 || size.Y <= 0 || len(cells) != size.X*size.Y {
		return nil, errEmpty
	}
	px := cellPixels(size, opts.CellPixels)
	dc := gg.NewContext(size.X*px, size.Y*px)

	for _, c := range cells {
		drawCostCell(dc, c, px)
	}
	return encode(dc)
}

// RenderField draws a flow field: cost or distance shading, one arrow per
// cell and a marker on the destination.
func RenderField(f *nav.FlowField, opts Options) ([]byte, error) {
	if f == nil || !f.Ready() {
		return nil, errEmpty
	}
	px := cellPixels(f.Size, opts.CellPixels)
	dc := gg.NewContext(f.Size.X*px, f.Size.Y*px)

	var maxDist uint16
	for _, c := range f.Cells {
		if c.Reached() && c.BestCost > maxDist {
			maxDist = c.BestCost
		}
	}

	for _, c := range f.Cells {
		if opts.Heatmap {
			drawDistanceCell(dc, c, px, maxDist)
		} else {
			drawCostCell(dc, c, px)
		}
	}

	if opts.Arrows && px >= 6 {
		dc.SetColor(arrowColor)
		dc.SetLineWidth(max(1, float64(px)/12))
		for _, c := range f.Cells {
			if c.Direction != nav.DirNone {
				drawArrow(dc, c, px)
			}
		}
	}

	d := f.DestinationCell.Index
	dc.SetColor(destinationColor)
	dc.DrawCircle(float64(d.X*px)+float64(px)/2, float64(d.Y*px)+float64(px)/2, float64(px)*0.3)
	dc.Fill()

	return encode(dc)
}

func cellPixels(size nav.Size, want int) int {
	if want <= 0 {
		want = DefaultOptions().CellPixels
	}
	return max(1, min(want, MaxImageSide/size.X, MaxImageSide/size.Y))
}

func drawCostCell(dc *gg.Context, c nav.Cell, px int) {
	x, y := float64(c.Index.X*px), float64(c.Index.Y*px)
	if c.Impassable() {
		drawWall(dc, x, y, px)
		return
	}
	// Destination cells carry cost 0
	t := 0.0
	if c.Cost > nav.CostBaseline {
		t = float64(c.Cost-nav.CostBaseline) / float64(nav.CostImpassable-nav.CostBaseline-1)
	}
	dc.SetColor(lerp(groundColor, roughColor, t))
	dc.DrawRectangle(x, y, float64(px), float64(px))
	dc.Fill()
}

func drawDistanceCell(dc *gg.Context, c nav.Cell, px int, maxDist uint16) {
	x, y := float64(c.Index.X*px), float64(c.Index.Y*px)
	switch {
	case c.Impassable():
		drawWall(dc, x, y, px)
		return
	case !c.Reached():
		dc.SetColor(unreachedColor)
	default:
		t := 0.0
		if maxDist > 0 {
			t = float64(c.BestCost) / float64(maxDist)
		}
		dc.SetColor(lerp(nearColor, farColor, t))
	}
	dc.DrawRectangle(x, y, float64(px), float64(px))
	dc.Fill()
}

func drawWall(dc *gg.Context, x, y float64, px int) {
	s := float64(px)
	dc.SetColor(wallColor)
	dc.DrawRectangle(x, y, s, s)
	dc.Fill()
	if px < 6 {
		return
	}
	inset := s * 0.2
	dc.SetColor(wallCrossColor)
	dc.SetLineWidth(max(1, s/16))
	dc.DrawLine(x+inset, y+inset, x+s-inset, y+s-inset)
	dc.DrawLine(x+s-inset, y+inset, x+inset, y+s-inset)
	dc.Stroke()
}

// drawArrow points from the cell center toward the neighbour. Row index
// grows downward in the image, matching the grid's +Z.
func drawArrow(dc *gg.Context, c nav.Cell, px int) {
	s := float64(px)
	cx, cy := float64(c.Index.X*px)+s/2, float64(c.Index.Y*px)+s/2
	u := c.Direction.Unit()
	tipX, tipY := cx+u.X*s*0.38, cy+u.Z*s*0.38
	tailX, tailY := cx-u.X*s*0.3, cy-u.Z*s*0.3

	dc.DrawLine(tailX, tailY, tipX, tipY)
	dc.Stroke()

	head := s * 0.18
	angle := c.Direction.Angle()
	for _, side := range []float64{-1, 1} {
		a := angle + side*2.5
		dc.DrawLine(tipX, tipY, tipX+head*math.Cos(a), tipY+head*math.Sin(a))
	}
	dc.Stroke()
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	t = max(0, min(1, t))
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}
