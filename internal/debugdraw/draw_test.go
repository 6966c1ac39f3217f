package debugdraw

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-nav/internal/nav"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgba(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func testGrid(t *testing.T) *nav.Grid {
	t.Helper()
	g, err := nav.NewGrid(nav.Size{X: 5, Y: 4}, 2, nil)
	require.NoError(t, err)
	g.RaiseCost(nav.GridIndex{X: 1, Y: 1}, nav.CostImpassable)
	return g
}

func TestRenderGridColors(t *testing.T) {
	g := testGrid(t)
	data, err := RenderGrid(g, Options{CellPixels: 10})
	require.NoError(t, err)

	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, 50, 40), img.Bounds())

	// Top-middle of each cell stays clear of the wall cross
	assert.Equal(t, groundColor, rgba(img.At(5, 1)))
	assert.Equal(t, wallColor, rgba(img.At(15, 11)))
}

func TestRenderFieldMarksDestination(t *testing.T) {
	g := testGrid(t)
	f, err := nav.BuildFlowField(g, nav.GridIndex{X: 4, Y: 3}, nil)
	require.NoError(t, err)

	data, err := RenderField(f, DefaultOptions())
	require.NoError(t, err)
	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, 120, 96), img.Bounds())
	assert.Equal(t, destinationColor, rgba(img.At(4*24+12, 3*24+12)))

	heat, err := RenderField(f, Options{CellPixels: 8, Heatmap: true})
	require.NoError(t, err)
	himg := decode(t, heat)
	assert.Equal(t, farColor, rgba(himg.At(1, 1)), "the farthest cell is (0,0)")
}

func TestRenderRejectsEmptyInput(t *testing.T) {
	_, err := RenderField(nil, DefaultOptions())
	assert.ErrorIs(t, err, errEmpty)

	g := testGrid(t)
	unbuilt := nav.NewFlowField(g.CellRadius(), g.Size(), nil)
	_, err = RenderField(unbuilt, DefaultOptions())
	assert.ErrorIs(t, err, errEmpty)

	_, err = RenderCells(nav.Size{X: 2, Y: 2}, nil, DefaultOptions())
	assert.ErrorIs(t, err, errEmpty)
}

func TestCellPixelsShrinksLargeGrids(t *testing.T) {
	assert.Equal(t, 24, cellPixels(nav.Size{X: 10, Y: 10}, 0))
	assert.Equal(t, 4, cellPixels(nav.Size{X: 1000, Y: 10}, 24))
	assert.Equal(t, 1, cellPixels(nav.Size{X: 10000, Y: 10}, 24))
}
