package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// FlyCamera is a free-look editor camera: WASD plus vertical movement,
// mouse look while the cursor is captured (toggled with Tab). It feeds the
// CameraState the editor uses for picking, streaming and LOD.
type FlyCamera struct {
	Position    mgl32.Vec3
	Yaw         float32 // degrees
	Pitch       float32 // degrees
	Speed       float32
	Sensitivity float32

	Fov    float32
	Near   float32
	Far    float32
	Aspect float32

	move mgl32.Vec3
	look mgl32.Vec2
}

func NewFlyCamera() *FlyCamera {
	return &FlyCamera{
		Position:    mgl32.Vec3{0, 30, 60},
		Pitch:       -25,
		Speed:       20,
		Sensitivity: 0.1,
		Fov:         60,
		Near:        0.1,
		Far:         2000,
		Aspect:      16.0 / 9.0,
	}
}

func (c *FlyCamera) forward() mgl32.Vec3 {
	yaw := mgl32.DegToRad(c.Yaw)
	pitch := mgl32.DegToRad(c.Pitch)
	return mgl32.Vec3{
		float32(math.Sin(float64(yaw)) * math.Cos(float64(pitch))),
		float32(math.Sin(float64(pitch))),
		float32(-math.Cos(float64(yaw)) * math.Cos(float64(pitch))),
	}.Normalize()
}

// State resolves the camera into view/projection matrices.
func (c *FlyCamera) State() *CameraState {
	forward := c.forward()
	return &CameraState{
		Position: c.Position,
		View:     mgl32.LookAtV(c.Position, c.Position.Add(forward), mgl32.Vec3{0, 1, 0}),
		Proj:     mgl32.Perspective(mgl32.DegToRad(c.Fov), c.Aspect, c.Near, c.Far),
	}
}

// ReadInput samples the per-frame device state.
func (c *FlyCamera) ReadInput(input *Input) {
	if input.JustPressed[KeyTab] {
		input.MouseCaptured = !input.MouseCaptured
	}

	c.move = mgl32.Vec3{}
	if input.Pressed[KeyW] {
		c.move[2] += 1
	}
	if input.Pressed[KeyS] {
		c.move[2] -= 1
	}
	if input.Pressed[KeyA] {
		c.move[0] -= 1
	}
	if input.Pressed[KeyD] {
		c.move[0] += 1
	}
	if input.Pressed[KeySpace] {
		c.move[1] += 1
	}
	if input.Pressed[KeyControl] {
		c.move[1] -= 1
	}

	if input.MouseCaptured {
		c.look = mgl32.Vec2{float32(input.MouseDeltaX), float32(input.MouseDeltaY)}
	} else {
		c.look = mgl32.Vec2{}
	}

	if input.WindowHeight > 0 {
		c.Aspect = float32(input.WindowWidth) / float32(input.WindowHeight)
	}
}

// Step applies the sampled input over one frame's dt.
func (c *FlyCamera) Step(dt float32) {
	if dt <= 0 {
		return
	}

	c.Yaw += c.look.X() * c.Sensitivity
	c.Pitch -= c.look.Y() * c.Sensitivity
	if c.Pitch > 89.0 {
		c.Pitch = 89.0
	}
	if c.Pitch < -89.0 {
		c.Pitch = -89.0
	}

	forward := c.forward()
	right := forward.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	up := mgl32.Vec3{0, 1, 0}

	moveDir := right.Mul(c.move.X()).Add(up.Mul(c.move.Y())).Add(forward.Mul(c.move.Z()))
	if moveDir.Len() > 0 {
		c.Position = c.Position.Add(moveDir.Normalize().Mul(c.Speed * dt))
	}
}

type FlyCameraModule struct{}

func (m FlyCameraModule) Install(app *App) {
	app.AddResources(NewFlyCamera())
	app.UseSystem(System(flyCameraSystem).InStage(Update))
}

// flyCameraSystem runs after pointer dispatch so a captured cursor steers
// the camera instead of painting. Requires the editor module.
func flyCameraSystem(cam *FlyCamera, input *Input, t *Time, ed *TerrainEditor) {
	cam.ReadInput(input)
	cam.Step(float32(t.Dt.Seconds()))
	ed.Camera = cam.State()
}
