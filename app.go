package terrain

import (
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

// App hosts the terrain editor's cooperative scheduler: typed resources,
// ordered stages, and systems whose arguments are resolved from the resource
// set by reflection. Everything runs on the caller's goroutine; one Step is
// one frame.
type App struct {
	modules   []Module
	stages    []Stage
	systems   map[string][]systemFn
	resources map[reflect.Type]any

	built bool
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType.Kind() != reflect.Ptr {
			panic(fmt.Sprintf("resource %s must be a pointer", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// AddResources registers resources, typically from module Install hooks.
func (app *App) AddResources(resources ...any) *App {
	return app.addResources(resources...)
}

// Resource returns the registered resource of type T, nil if absent.
func Resource[T any](app *App) *T {
	var probe T
	if r, ok := app.resources[reflect.TypeOf(probe)]; ok {
		return r.(*T)
	}
	return nil
}

func (app *App) UseSystem(builder systemScheduleBuilder) *App {
	if _, ok := app.systems[builder.inStage.Name]; !ok {
		panic(fmt.Sprintf("stage %v does not exist", builder.inStage.Name))
	}
	app.systems[builder.inStage.Name] = append(app.systems[builder.inStage.Name], builder.system)
	return app
}

func (app *App) build() {
	if app.built {
		return
	}
	app.built = true
	for _, module := range app.modules {
		module.Install(app)
	}
}

// Step runs every stage once, in order. The embedding loop calls this once
// per frame after feeding pointer/window events.
func (app *App) Step() {
	app.build()
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name] {
			app.callSystem(system)
		}
	}
}

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())
	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if resource, ok := app.resources[underlyingType]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
				runtime.FuncForPC(systemValue.Pointer()).Name(),
				fmt.Sprint(systemType),
				fmt.Sprint(argType),
			)
			panic(msg)
		}
	}
	systemValue.Call(args)
}
