package terrain

import (
	"math"
	"time"
)

// LodPreset names ascending distance thresholds. An instance at distance d
// renders at the level of the furthest threshold it has passed; below the
// first threshold it renders at full detail (level 0).
type LodPreset struct {
	Name       string    `yaml:"name"`
	Thresholds []float32 `yaml:"thresholds"`
}

// Level maps a camera distance to a detail level.
func (p LodPreset) Level(distance float32) int {
	level := 0
	for i, t := range p.Thresholds {
		if distance >= t {
			level = i + 1
		}
	}
	return level
}

// LodSink receives visibility and detail-level changes for scatter
// instances. Implemented by the render backend; tests record the calls.
type LodSink interface {
	SetInstanceLod(id InstanceId, level int)
	SetInstanceVisible(id InstanceId, visible bool)
}

// lodThrottle spaces out LOD sweeps; a sweep touches every instance on the
// node, so running it every frame would dominate the update loop.
const lodThrottle = 200 * time.Millisecond

type lodState struct {
	visible bool
	level   int
}

// ScatterLod drives per-instance culling and detail selection against the
// active camera. Sweeps are throttled and only push deltas to the sink.
type ScatterLod struct {
	scene  *SceneStore
	server *AssetServer
	sink   LodSink
	Preset LodPreset

	lastSweep time.Time
	states    map[InstanceId]lodState
}

func NewScatterLod(scene *SceneStore, server *AssetServer, sink LodSink) *ScatterLod {
	return &ScatterLod{
		scene:  scene,
		server: server,
		sink:   sink,
		states: make(map[InstanceId]lodState),
	}
}

// Reset forgets per-instance state, e.g. after a scene switch.
func (l *ScatterLod) Reset() {
	l.states = make(map[InstanceId]lodState)
	l.lastSweep = time.Time{}
}

// Sweep reevaluates every instance on the node. Returns false when the
// throttle suppressed the sweep.
func (l *ScatterLod) Sweep(now time.Time, cam *CameraState, node NodeId) bool {
	if l.sink == nil || cam == nil {
		return false
	}
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < lodThrottle {
		return false
	}
	n := l.scene.Node(node)
	if n == nil {
		return false
	}
	l.lastSweep = now

	planes := ExtractFrustum(cam.ViewProj())
	seen := make(map[InstanceId]struct{})
	for _, layer := range n.Scatter.Layers {
		for _, inst := range layer.Instances {
			seen[inst.Id] = struct{}{}
			radius := float32(1)
			if model, ok := l.server.Model(inst.Asset); ok {
				radius = model.BoundingRadius
			}
			radius *= inst.Scale

			visible := SphereInFrustum(planes, inst.LocalPosition, radius)
			level := 0
			if visible {
				d := inst.LocalPosition.Sub(cam.Position)
				level = l.Preset.Level(float32(math.Sqrt(float64(d.X()*d.X() + d.Y()*d.Y() + d.Z()*d.Z()))))
			}

			prev, known := l.states[inst.Id]
			if !known || prev.visible != visible {
				l.sink.SetInstanceVisible(inst.Id, visible)
			}
			if visible && (!known || prev.level != level) {
				l.sink.SetInstanceLod(inst.Id, level)
			}
			l.states[inst.Id] = lodState{visible: visible, level: level}
		}
	}
	// Instances erased since the last sweep drop out of the state map.
	for id := range l.states {
		if _, ok := seen[id]; !ok {
			delete(l.states, id)
		}
	}
	return true
}
