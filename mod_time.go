package terrain

import (
	"time"
)

// Time is the per-frame clock resource. The paint sync debounce and the
// scatter LOD throttle key off Time.Time rather than calling time.Now so
// tests can drive the clock.
type Time struct {
	Time time.Time
	Dt   time.Duration
}

type TimeModule struct {
}

func (mod TimeModule) Install(app *App) {
	app.AddResources(&Time{
		Time: time.Now(),
		Dt:   0,
	})
	app.UseSystem(System(timeSystem).InStage(Prelude))
}

func timeSystem(timeResource *Time) {
	now := time.Now()

	timeResource.Dt = now.Sub(timeResource.Time)
	timeResource.Time = now
}
