package terrain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/terrain/field"
)

func TestBrushFalloff_CenterAndBoundary(t *testing.T) {
	for _, shape := range []BrushShape{BrushCircle, BrushSquare, BrushStar} {
		assert.Equal(t, float32(1), shape.Falloff(0, 0, 4), "%s center", shape)
		assert.Equal(t, float32(0), shape.Falloff(10, 0, 4), "%s beyond radius", shape)
	}
	assert.Equal(t, float32(0), BrushCircle.Falloff(1, 0, 0), "zero radius")
}

func TestBrushFalloff_MonotonicTowardEdge(t *testing.T) {
	prev := float32(2)
	for d := float32(0); d < 4; d += 0.25 {
		w := BrushCircle.Falloff(d, 0, 4)
		assert.LessOrEqual(t, w, prev, "falloff rose at distance %v", d)
		prev = w
	}
}

func TestBrushSquare_ReachesCorners(t *testing.T) {
	// Along the diagonal the square boundary sits at radius*sqrt(2), so a
	// point just past the nominal radius still has weight.
	d := float32(4) * 1.2 / float32(math.Sqrt2)
	assert.Greater(t, BrushSquare.Falloff(d, d, 4), float32(0))
	// The same distance is outside a circle brush.
	assert.Equal(t, float32(0), BrushCircle.Falloff(d*float32(math.Sqrt2), 0, 4))
}

func TestBrushStar_PointsExtendPastValleys(t *testing.T) {
	// theta=0 is a star point (full radius), theta=pi/5 a valley.
	point := BrushStar.boundaryRadius(0)
	valley := BrushStar.boundaryRadius(math.Pi / float64(starPoints))
	assert.InDelta(t, 1.0, float64(point), 1e-6)
	assert.Less(t, valley, point)
	assert.Greater(t, valley, float32(0))
}

func TestBuildBrushDecal_DrapesOntoSurface(t *testing.T) {
	hf := field.NewHeightField(32, 32, 1.0)
	for row := 0; row < 32; row++ {
		for col := 0; col < 32; col++ {
			hf.Set(row, col, 2.0)
		}
	}

	decal := BuildBrushDecal(hf, 0, 0, 3, BrushCircle, 16)
	assert.Len(t, decal.Points, 17, "outline closes on itself")
	for _, p := range decal.Points {
		assert.InDelta(t, 2.0+decalLift, float64(p.Y()), 1e-5)
		r := math.Hypot(float64(p.X()), float64(p.Z()))
		assert.InDelta(t, 3.0, r, 1e-4)
	}
}
