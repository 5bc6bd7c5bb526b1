package terrain

import (
	"reflect"
)

// Module wires a subsystem (engines, input, assets, presets) into the app:
// resources plus systems.
type Module interface {
	Install(app *App)
}

type AppBuilder struct {
	app     *App
	modules []Module
}

func NewAppBuilder() *AppBuilder {
	app := &App{
		resources: make(map[reflect.Type]any),
		systems:   make(map[string][]systemFn),
	}
	for _, stage := range defaultStages {
		app.stages = append(app.stages, stage)
		app.systems[stage.Name] = nil
	}
	return &AppBuilder{app: app}
}

func (b *AppBuilder) UseModule(modules ...Module) *AppBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

func (b *AppBuilder) Build() *App {
	app := b.app
	app.modules = b.modules
	app.build()
	return app
}
