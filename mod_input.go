package terrain

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

const (
	KeyEscape int = iota
	KeyDelete
	KeyShift
	KeyControl
	KeyLeftAlt
	KeyTab
	KeyW
	KeyA
	KeyS
	KeyD
	KeySpace
	Key1
	Key2
	Key3
	KeyMinus
	KeyEqual
	MouseButtonLeft
	MouseButtonRight
	MouseButtonMiddle

	inputSlots
)

// Input is the polled device state for one frame.
type Input struct {
	Pressed      [inputSlots]bool
	JustPressed  [inputSlots]bool
	JustReleased [inputSlots]bool

	MouseX, MouseY           float64
	MouseDeltaX, MouseDeltaY float64

	// MouseCaptured routes cursor motion to the camera instead of the
	// pointer handlers.
	MouseCaptured bool

	WindowWidth, WindowHeight int
}

// PointerPhase distinguishes the four pointer event kinds routed to the
// editor.
type PointerPhase int

const (
	PointerDown PointerPhase = iota
	PointerMove
	PointerUp
	PointerCancel
)

// PointerEvent is one pointer sample in window coordinates.
type PointerEvent struct {
	Phase  PointerPhase
	X, Y   float64
	Button int
}

// PointerHandler consumes routed pointer events. Each method reports whether
// the event was handled so upstream camera/selection handling can be skipped.
type PointerHandler interface {
	HandlePointerDown(ev PointerEvent) bool
	HandlePointerMove(ev PointerEvent) bool
	HandlePointerUp(ev PointerEvent) bool
	HandlePointerCancel(ev PointerEvent) bool
}

// PointerRouter queues pointer events and dispatches them to registered
// handlers in registration order, stopping at the first handler that
// consumes the event. Events come either from the glfw input system or from
// Push (headless embedders, tests).
type PointerRouter struct {
	handlers []PointerHandler
	queue    []PointerEvent

	// lastHandled reports whether the most recently dispatched event was
	// consumed by any handler.
	lastHandled bool

	prevLeftDown bool
	wasInside    bool
}

func (r *PointerRouter) Register(h PointerHandler) {
	r.handlers = append(r.handlers, h)
}

func (r *PointerRouter) Push(ev PointerEvent) {
	r.queue = append(r.queue, ev)
}

// Dispatch drains the queue. Returns whether the last event was handled.
func (r *PointerRouter) Dispatch() bool {
	for _, ev := range r.queue {
		r.lastHandled = r.dispatchOne(ev)
	}
	r.queue = r.queue[:0]
	return r.lastHandled
}

func (r *PointerRouter) dispatchOne(ev PointerEvent) bool {
	for _, h := range r.handlers {
		var handled bool
		switch ev.Phase {
		case PointerDown:
			handled = h.HandlePointerDown(ev)
		case PointerMove:
			handled = h.HandlePointerMove(ev)
		case PointerUp:
			handled = h.HandlePointerUp(ev)
		case PointerCancel:
			handled = h.HandlePointerCancel(ev)
		}
		if handled {
			return true
		}
	}
	return false
}

type InputModule struct{}

func (mod InputModule) Install(app *App) {
	app.AddResources(&Input{}, &PointerRouter{})
	if Resource[WindowState](app) != nil {
		app.UseSystem(System(inputSystem).InStage(Prelude))
	}
	app.UseSystem(System(pointerDispatchSystem).InStage(PreUpdate))
}

func pointerDispatchSystem(router *PointerRouter) {
	router.Dispatch()
}

// inputSystem polls glfw device state into the Input resource and converts
// left-button transitions and cursor motion into pointer events.
func inputSystem(s *WindowState, input *Input, router *PointerRouter) {
	glfw.PollEvents()

	for key, glfwKey := range keyToGlfw {
		action := s.windowGlfw.GetKey(glfwKey)
		updateButton(input, key, action == glfw.Press)
	}

	mx, my := s.windowGlfw.GetCursorPos()
	moved := mx != input.MouseX || my != input.MouseY
	input.MouseDeltaX = mx - input.MouseX
	input.MouseDeltaY = my - input.MouseY
	input.MouseX = mx
	input.MouseY = my
	input.WindowWidth, input.WindowHeight = s.windowGlfw.GetSize()

	for btn, glfwBtn := range mouseToGlfw {
		action := s.windowGlfw.GetMouseButton(glfwBtn)
		updateButton(input, btn, action == glfw.Press)
	}

	left := input.Pressed[MouseButtonLeft]
	if !input.MouseCaptured {
		switch {
		case input.JustPressed[MouseButtonLeft]:
			router.Push(PointerEvent{Phase: PointerDown, X: mx, Y: my, Button: MouseButtonLeft})
		case input.JustReleased[MouseButtonLeft]:
			router.Push(PointerEvent{Phase: PointerUp, X: mx, Y: my, Button: MouseButtonLeft})
		case left && moved:
			router.Push(PointerEvent{Phase: PointerMove, X: mx, Y: my, Button: MouseButtonLeft})
		}
	}

	// Losing window focus mid-drag cancels the stroke rather than leaving a
	// captured session behind.
	if left && s.windowGlfw.GetAttrib(glfw.Focused) == glfw.False {
		router.Push(PointerEvent{Phase: PointerCancel, X: mx, Y: my, Button: MouseButtonLeft})
	}
}

func updateButton(input *Input, slot int, down bool) {
	input.JustPressed[slot] = false
	input.JustReleased[slot] = false
	if down {
		if !input.Pressed[slot] {
			input.JustPressed[slot] = true
		}
		input.Pressed[slot] = true
	} else {
		if input.Pressed[slot] {
			input.JustReleased[slot] = true
		}
		input.Pressed[slot] = false
	}
}

var keyToGlfw = map[int]glfw.Key{
	KeyEscape:  glfw.KeyEscape,
	KeyDelete:  glfw.KeyDelete,
	KeyShift:   glfw.KeyLeftShift,
	KeyControl: glfw.KeyLeftControl,
	KeyLeftAlt: glfw.KeyLeftAlt,
	KeyTab:     glfw.KeyTab,
	KeyW:       glfw.KeyW,
	KeyA:       glfw.KeyA,
	KeyS:       glfw.KeyS,
	KeyD:       glfw.KeyD,
	KeySpace:   glfw.KeySpace,
	Key1:       glfw.Key1,
	Key2:       glfw.Key2,
	Key3:       glfw.Key3,
	KeyMinus:   glfw.KeyMinus,
	KeyEqual:   glfw.KeyEqual,
}

var mouseToGlfw = map[int]glfw.MouseButton{
	MouseButtonLeft:   glfw.MouseButtonLeft,
	MouseButtonRight:  glfw.MouseButtonRight,
	MouseButtonMiddle: glfw.MouseButtonMiddle,
}
