package terrain

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/terrain/field"
)

// BrushShape selects the brush kernel footprint.
type BrushShape int

const (
	BrushCircle BrushShape = iota
	BrushSquare
	BrushStar
)

func (s BrushShape) String() string {
	switch s {
	case BrushCircle:
		return "circle"
	case BrushSquare:
		return "square"
	case BrushStar:
		return "star"
	default:
		return fmt.Sprintf("BrushShape(%d)", int(s))
	}
}

const starPoints = 5

// boundaryRadius returns the shape's edge distance along direction theta,
// as a fraction of the nominal radius.
func (s BrushShape) boundaryRadius(theta float64) float32 {
	switch s {
	case BrushCircle:
		return 1
	case BrushSquare:
		// Distance to the unit square boundary along theta.
		c := math.Abs(math.Cos(theta))
		si := math.Abs(math.Sin(theta))
		if c > si {
			return float32(1 / c)
		}
		if si == 0 {
			return 1
		}
		return float32(1 / si)
	case BrushStar:
		// Points at full radius, valleys at just over half.
		return float32(0.55 + 0.45*math.Cos(starPoints*theta))
	default:
		panic(fmt.Sprintf("unknown brush shape %d", int(s)))
	}
}

// Falloff evaluates the brush kernel at offset (dx,dz) from the brush
// center: 1 at the center, quadratic falloff to 0 at the shape boundary.
func (s BrushShape) Falloff(dx, dz, radius float32) float32 {
	if radius <= 0 {
		return 0
	}
	dist := float32(math.Sqrt(float64(dx*dx + dz*dz)))
	if dist == 0 {
		return 1
	}
	theta := math.Atan2(float64(dz), float64(dx))
	edge := radius * s.boundaryRadius(theta)
	if edge <= 0 || dist >= edge {
		return 0
	}
	fall := 1 - dist/edge
	return fall * fall
}

// decalLift keeps the indicator just above the surface so it never z-fights
// the terrain.
const decalLift = 0.05

// BrushDecal is the cursor indicator: a closed outline conformed to the
// terrain surface.
type BrushDecal struct {
	Shape  BrushShape
	Points []mgl32.Vec3
}

// BuildBrushDecal traces the brush boundary around a local-space center and
// drapes each outline vertex onto the sampled terrain height.
func BuildBrushDecal(hf *field.HeightField, centerX, centerZ, radius float32, shape BrushShape, segments int) BrushDecal {
	if segments < 8 {
		segments = 8
	}
	decal := BrushDecal{Shape: shape, Points: make([]mgl32.Vec3, 0, segments+1)}
	for i := 0; i <= segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		r := radius * shape.boundaryRadius(theta)
		x := centerX + r*float32(math.Cos(theta))
		z := centerZ + r*float32(math.Sin(theta))
		y := hf.SampleHeight(x, z) + decalLift
		decal.Points = append(decal.Points, mgl32.Vec3{x, y, z})
	}
	return decal
}
