package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraState is the minimal camera view the editor needs for streaming and
// LOD decisions.
type CameraState struct {
	Position mgl32.Vec3
	View     mgl32.Mat4
	Proj     mgl32.Mat4
}

func (c *CameraState) ViewProj() mgl32.Mat4 {
	return c.Proj.Mul4(c.View)
}

// ExtractFrustum extracts the 6 planes of the frustum from the
// view-projection matrix. Returns planes in order: Left, Right, Bottom, Top,
// Near, Far. Plane is Ax + By + Cz + D = 0, normals pointing inward.
func ExtractFrustum(vp mgl32.Mat4) [6]mgl32.Vec4 {
	var planes [6]mgl32.Vec4

	// Left plane: Row 3 + Row 0
	planes[0] = mgl32.Vec4{
		vp.At(3, 0) + vp.At(0, 0),
		vp.At(3, 1) + vp.At(0, 1),
		vp.At(3, 2) + vp.At(0, 2),
		vp.At(3, 3) + vp.At(0, 3),
	}
	// Right plane: Row 3 - Row 0
	planes[1] = mgl32.Vec4{
		vp.At(3, 0) - vp.At(0, 0),
		vp.At(3, 1) - vp.At(0, 1),
		vp.At(3, 2) - vp.At(0, 2),
		vp.At(3, 3) - vp.At(0, 3),
	}
	// Bottom plane: Row 3 + Row 1
	planes[2] = mgl32.Vec4{
		vp.At(3, 0) + vp.At(1, 0),
		vp.At(3, 1) + vp.At(1, 1),
		vp.At(3, 2) + vp.At(1, 2),
		vp.At(3, 3) + vp.At(1, 3),
	}
	// Top plane: Row 3 - Row 1
	planes[3] = mgl32.Vec4{
		vp.At(3, 0) - vp.At(1, 0),
		vp.At(3, 1) - vp.At(1, 1),
		vp.At(3, 2) - vp.At(1, 2),
		vp.At(3, 3) - vp.At(1, 3),
	}
	// Near plane: Row 3 + Row 2 (OpenGL-style -1..1)
	planes[4] = mgl32.Vec4{
		vp.At(3, 0) + vp.At(2, 0),
		vp.At(3, 1) + vp.At(2, 1),
		vp.At(3, 2) + vp.At(2, 2),
		vp.At(3, 3) + vp.At(2, 3),
	}
	// Far plane: Row 3 - Row 2
	planes[5] = mgl32.Vec4{
		vp.At(3, 0) - vp.At(2, 0),
		vp.At(3, 1) - vp.At(2, 1),
		vp.At(3, 2) - vp.At(2, 2),
		vp.At(3, 3) - vp.At(2, 3),
	}

	for i := 0; i < 6; i++ {
		length := float32(math.Sqrt(float64(planes[i][0]*planes[i][0] + planes[i][1]*planes[i][1] + planes[i][2]*planes[i][2])))
		if length > 0 {
			planes[i] = planes[i].Mul(1.0 / length)
		}
	}

	return planes
}

// SphereInFrustum tests a bounding sphere against an extracted frustum.
func SphereInFrustum(planes [6]mgl32.Vec4, center mgl32.Vec3, radius float32) bool {
	for _, p := range planes {
		dist := p.X()*center.X() + p.Y()*center.Y() + p.Z()*center.Z() + p.W()
		if dist < -radius {
			return false
		}
	}
	return true
}
