package terrain

// Stage names one slot of the per-frame pipeline. Stages run in declaration
// order; systems within a stage run in registration order.
type Stage struct {
	Name string
}

var (
	Prelude    = Stage{Name: "Prelude"}
	PreUpdate  = Stage{Name: "PreUpdate"}
	Update     = Stage{Name: "Update"}
	PostUpdate = Stage{Name: "PostUpdate"}
	Finale     = Stage{Name: "Finale"}
)

var defaultStages = []Stage{Prelude, PreUpdate, Update, PostUpdate, Finale}

type systemScheduleBuilder struct {
	inStage Stage
	system  systemFn
}

// System schedules a function into the Update stage by default.
func System(system systemFn) systemScheduleBuilder {
	return systemScheduleBuilder{
		system:  system,
		inStage: Update,
	}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	return systemScheduleBuilder{
		system:  sched.system,
		inStage: s,
	}
}
