package terrain

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// WindowState wraps the single shared GLFW window. The editor can run
// headless (no window) for tests and embedding; only PlatformWindowModule
// creates one.
type WindowState struct {
	windowGlfw   *glfw.Window
	WindowWidth  int
	WindowHeight int
	windowTitle  string
}

func createWindowState(windowWidth int, windowHeight int, windowTitle string) *WindowState {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		panic(err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // surface is driven by wgpu, not OpenGL
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(windowWidth, windowHeight, windowTitle, nil, nil)
	if err != nil {
		panic(err)
	}

	return &WindowState{
		windowGlfw:   win,
		WindowWidth:  windowWidth,
		WindowHeight: windowHeight,
		windowTitle:  windowTitle,
	}
}

// PlatformWindowModule provides the shared WindowState resource.
type PlatformWindowModule struct {
	Width  int
	Height int
	Title  string
}

func NewPlatformWindow(width, height int, title string) *PlatformWindowModule {
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	if title == "" {
		title = "Terrain Editor"
	}
	return &PlatformWindowModule{Width: width, Height: height, Title: title}
}

func (m PlatformWindowModule) Install(app *App) {
	if Resource[WindowState](app) != nil {
		// Already created by user code; preserve the single-window invariant.
		return
	}
	app.AddResources(createWindowState(m.Width, m.Height, m.Title))
}
