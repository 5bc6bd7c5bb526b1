package terrain

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

type InstanceId string

type LayerId string

func makeInstanceId() InstanceId { return InstanceId(makeAssetId()) }

func makeLayerId() LayerId { return LayerId(makeAssetId()) }

// ScatterInstance is one placed prop. Position is terrain-local, yaw is
// radians around +Y, Seed feeds per-instance shading variation downstream.
type ScatterInstance struct {
	Id            InstanceId
	LayerId       LayerId
	Asset         AssetId
	Seed          int64
	LocalPosition mgl32.Vec3
	Yaw           float32
	Scale         float32
}

// ScatterLayer groups the instances stamped with one asset/profile pair.
type ScatterLayer struct {
	Id        LayerId
	Category  string
	Asset     AssetId
	Profile   string
	Instances []ScatterInstance
}

// ScatterSnapshot is the persisted scatter state of a ground node. Layer
// instance slices are never mutated in place; edits build a fresh slice and
// swap the layer.
type ScatterSnapshot struct {
	Version int
	Layers  []ScatterLayer
}

func (s ScatterSnapshot) Clone() ScatterSnapshot {
	out := s
	out.Layers = make([]ScatterLayer, len(s.Layers))
	for i, layer := range s.Layers {
		out.Layers[i] = layer
		out.Layers[i].Instances = append([]ScatterInstance(nil), layer.Instances...)
	}
	return out
}

// ScatterProfile is the tunable recipe for one kind of prop stamp. Density
// is the fraction of the brush area the asset's footprint should cover,
// 0..1.
type ScatterProfile struct {
	Id       string  `yaml:"id"`
	Category string  `yaml:"category"`
	Density  float32 `yaml:"density"`
	ScaleMin float32 `yaml:"scale_min"`
	ScaleMax float32 `yaml:"scale_max"`
}

func (p ScatterProfile) scaleRange() (float32, float32) {
	lo, hi := p.ScaleMin, p.ScaleMax
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// InstanceBinder attaches placed instances to the render backend. A failed
// Bind rolls the whole stamp back.
type InstanceBinder interface {
	Bind(inst *ScatterInstance) error
	Release(id InstanceId)
}

// NopBinder accepts everything; used when no renderer is attached.
type NopBinder struct{}

func (NopBinder) Bind(inst *ScatterInstance) error { return nil }
func (NopBinder) Release(id InstanceId)            {}

// scatterCheckBudget caps the total number of pairwise spacing checks a
// single stamp may spend, across all its candidates. Exhausting it ends the
// stamp with whatever was placed so far.
const scatterCheckBudget = 200000

const (
	minStampAttempts       = 2000
	maxStampAttempts       = 20000
	attemptsPerTarget      = 120
	minScatterSpacingFloor = 0.05
)

// ScatterEngine places and erases prop instances on the bound ground node.
type ScatterEngine struct {
	scene  *SceneStore
	server *AssetServer
	binder InstanceBinder
	log    Logger
	rng    *rand.Rand

	node    NodeId
	index   *NeighborIndex
	session *scatterStroke
}

// scatterStroke tracks one pointer drag. The brush stamps again whenever
// the pointer has travelled far enough from the last stamp center.
type scatterStroke struct {
	erase    bool
	last     mgl32.Vec2
	radius   float32
	asset    AssetId
	profile  ScatterProfile
	category string
}

func NewScatterEngine(scene *SceneStore, server *AssetServer, binder InstanceBinder, log Logger) *ScatterEngine {
	if binder == nil {
		binder = NopBinder{}
	}
	if log == nil {
		log = NewNopLogger()
	}
	return &ScatterEngine{
		scene:  scene,
		server: server,
		binder: binder,
		log:    log,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// Reseed makes placement deterministic, mainly for tests.
func (e *ScatterEngine) Reseed(seed int64) {
	e.rng = rand.New(rand.NewSource(seed))
}

func (e *ScatterEngine) Attach(node NodeId) bool {
	n := e.scene.Node(node)
	if n == nil || n.HeightMap == nil {
		return false
	}
	e.node = node
	e.index = NewNeighborIndex(n.HeightMap)
	e.index.Rebuild(n.Scatter.Layers)
	return true
}

func (e *ScatterEngine) Detach() {
	e.node = ""
	e.index = nil
	e.session = nil
}

func (e *ScatterEngine) Active() bool { return e.session != nil }

// BeginStroke opens a placement drag and stamps at the press point.
func (e *ScatterEngine) BeginStroke(point mgl32.Vec2, radius float32, asset AssetId, profile ScatterProfile) int {
	e.session = &scatterStroke{
		last:    point,
		radius:  radius,
		asset:   asset,
		profile: profile,
	}
	return e.Stamp(point.X(), point.Y(), radius, asset, profile)
}

// BeginErase opens an erase drag and erases at the press point.
func (e *ScatterEngine) BeginErase(point mgl32.Vec2, radius float32, category string) int {
	e.session = &scatterStroke{
		erase:    true,
		last:     point,
		radius:   radius,
		category: category,
	}
	return e.Erase(point.X(), point.Y(), radius, category)
}

// ExtendStroke continues the drag. A new stamp fires once the pointer has
// moved past the stroke's step gate, so a slow drag does not pile repeated
// stamps onto the same spot.
func (e *ScatterEngine) ExtendStroke(point mgl32.Vec2) int {
	s := e.session
	if s == nil {
		return 0
	}
	if point.Sub(s.last).Len() < e.strokeStep(s) {
		return 0
	}
	s.last = point
	if s.erase {
		return e.Erase(point.X(), point.Y(), s.radius, s.category)
	}
	return e.Stamp(point.X(), point.Y(), s.radius, s.asset, s.profile)
}

// EndStroke closes the drag. Placement happens per stamp, so there is
// nothing left to commit here.
func (e *ScatterEngine) EndStroke() {
	e.session = nil
}

// strokeStep is the distance the pointer must travel before the drag stamps
// again: half the brush radius, never below the placement spacing.
func (e *ScatterEngine) strokeStep(s *scatterStroke) float32 {
	step := s.radius * 0.5
	if s.erase {
		if step < minScatterSpacingFloor {
			step = minScatterSpacingFloor
		}
		return step
	}
	if spacing := e.minSpacing(s.asset, s.profile); spacing > step {
		step = spacing
	}
	return step
}

// footprint is the model's 2D ground extent, 1x1 when the asset carries no
// model metadata.
func (e *ScatterEngine) footprint(asset AssetId) (float32, float32) {
	if model, ok := e.server.Model(asset); ok && model.FootprintX > 0 && model.FootprintZ > 0 {
		return model.FootprintX, model.FootprintZ
	}
	return 1, 1
}

// minSpacing derives the placement spacing from the model's footprint
// diagonal scaled by the middle of the profile's scale range, so larger or
// more variably scaled props spread out further.
func (e *ScatterEngine) minSpacing(asset AssetId, profile ScatterProfile) float32 {
	lo, hi := profile.scaleRange()
	fx, fz := e.footprint(asset)
	spacing := float32(math.Hypot(float64(fx), float64(fz))) * (lo + hi) / 2
	if spacing < minScatterSpacingFloor {
		spacing = minScatterSpacingFloor
	}
	return spacing
}

// Stamp scatters instances of an asset inside a circular brush. Returns the
// number of instances placed, zero when the profile density is zero or the
// stamp was rolled back.
func (e *ScatterEngine) Stamp(centerX, centerZ, radius float32, asset AssetId, profile ScatterProfile) int {
	if e.node == "" || radius <= 0 {
		return 0
	}
	n := e.scene.Node(e.node)
	if n == nil {
		return 0
	}
	hf := n.HeightMap

	// Density is the covered fraction of the brush: the target counts how
	// many footprints of the asset fit in the brush disc at that coverage.
	fx, fz := e.footprint(asset)
	area := math.Pi * float64(radius) * float64(radius)
	target := int(math.Round(float64(profile.Density) * area / float64(fx*fz)))
	if target <= 0 {
		return 0
	}
	spacing := e.minSpacing(asset, profile)
	maxAttempts := target * attemptsPerTarget
	if maxAttempts < minStampAttempts {
		maxAttempts = minStampAttempts
	}
	if maxAttempts > maxStampAttempts {
		maxAttempts = maxStampAttempts
	}

	// Intra-stamp acceleration grid, one cell per spacing unit. A valid
	// candidate can only collide with occupants of its 3x3 neighborhood.
	grid := make(map[[2]int][]mgl32.Vec3)
	gridCell := func(x, z float32) [2]int {
		return [2]int{int(math.Floor(float64(x / spacing))), int(math.Floor(float64(z / spacing)))}
	}

	checks := 0
	admits := func(x, z float32) bool {
		cell := gridCell(x, z)
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				for _, p := range grid[[2]int{cell[0] + dr, cell[1] + dc}] {
					checks++
					dx, dz := p.X()-x, p.Z()-z
					if dx*dx+dz*dz < spacing*spacing {
						return false
					}
					if checks >= scatterCheckBudget {
						return false
					}
				}
			}
		}
		ok := true
		e.index.Nearby(x, z, func(_ InstanceId, p mgl32.Vec3) bool {
			checks++
			dx, dz := p.X()-x, p.Z()-z
			if dx*dx+dz*dz < spacing*spacing {
				ok = false
				return false
			}
			return checks < scatterCheckBudget
		})
		return ok
	}

	halfW, halfD := hf.Width()/2, hf.Depth()/2
	inField := func(x, z float32) bool {
		return x >= -halfW && x <= halfW && z >= -halfD && z <= halfD
	}

	lo, hi := profile.scaleRange()
	var placed []ScatterInstance
	place := func(x, z float32) {
		pos := mgl32.Vec3{x, hf.SampleHeight(x, z), z}
		placed = append(placed, ScatterInstance{
			Id:            makeInstanceId(),
			Asset:         asset,
			Seed:          e.rng.Int63(),
			LocalPosition: pos,
			Yaw:           e.rng.Float32() * 2 * math.Pi,
			Scale:         lo + e.rng.Float32()*(hi-lo),
		})
		grid[gridCell(x, z)] = append(grid[gridCell(x, z)], pos)
	}

	// The brush center is always the first candidate.
	if inField(centerX, centerZ) && admits(centerX, centerZ) {
		place(centerX, centerZ)
	}
	for attempt := 0; attempt < maxAttempts && len(placed) < target && checks < scatterCheckBudget; attempt++ {
		r := radius * float32(math.Sqrt(e.rng.Float64()))
		theta := e.rng.Float64() * 2 * math.Pi
		x := centerX + r*float32(math.Cos(theta))
		z := centerZ + r*float32(math.Sin(theta))
		if !inField(x, z) {
			continue
		}
		if admits(x, z) {
			place(x, z)
		}
	}
	if checks >= scatterCheckBudget {
		e.log.Debugf("scatter stamp check budget exhausted after %d placements", len(placed))
	}
	if len(placed) == 0 {
		return 0
	}

	layer := e.ensureLayer(n, asset, profile)
	for i := range placed {
		placed[i].LayerId = layer
	}

	var bound []InstanceId
	for i := range placed {
		if err := e.binder.Bind(&placed[i]); err != nil {
			e.log.Warnf("scatter bind failed, rolling back %d instances: %v", len(bound), err)
			for _, id := range bound {
				e.binder.Release(id)
			}
			return 0
		}
		bound = append(bound, placed[i].Id)
	}

	committed := e.scene.UpdateTerrain(e.node, func(node *TerrainNode) {
		node.Scatter = node.Scatter.Clone()
		node.Scatter.Version++
		for i := range node.Scatter.Layers {
			if node.Scatter.Layers[i].Id == layer {
				node.Scatter.Layers[i].Instances = append(node.Scatter.Layers[i].Instances, placed...)
				return
			}
		}
		node.Scatter.Layers = append(node.Scatter.Layers, ScatterLayer{
			Id:        layer,
			Category:  profile.Category,
			Asset:     asset,
			Profile:   profile.Id,
			Instances: placed,
		})
	})
	if !committed {
		for _, id := range bound {
			e.binder.Release(id)
		}
		return 0
	}
	for _, inst := range placed {
		e.index.Insert(inst.Id, inst.LocalPosition)
	}
	return len(placed)
}

// ensureLayer finds the existing layer for an asset/profile pair or reserves
// a new layer id. The layer itself materializes at commit time.
func (e *ScatterEngine) ensureLayer(n *TerrainNode, asset AssetId, profile ScatterProfile) LayerId {
	for _, layer := range n.Scatter.Layers {
		if layer.Asset == asset && layer.Profile == profile.Id {
			return layer.Id
		}
	}
	return makeLayerId()
}

// Erase removes instances within an XZ radius. An empty category erases
// across all layers; otherwise only layers of that category are touched.
// A category no layer carries falls back to all layers, so erase keeps
// working right after an import that brought differently categorized
// layers in. Returns the number of instances removed.
func (e *ScatterEngine) Erase(centerX, centerZ, radius float32, category string) int {
	if e.node == "" || radius <= 0 {
		return 0
	}
	if category != "" {
		if n := e.scene.Node(e.node); n != nil && !n.Scatter.hasCategory(category) {
			category = ""
		}
	}
	removed := 0
	var released []ScatterInstance
	committed := e.scene.UpdateTerrain(e.node, func(node *TerrainNode) {
		node.Scatter = node.Scatter.Clone()
		for i := range node.Scatter.Layers {
			layer := &node.Scatter.Layers[i]
			if category != "" && layer.Category != category {
				continue
			}
			kept := layer.Instances[:0:0]
			for _, inst := range layer.Instances {
				dx := inst.LocalPosition.X() - centerX
				dz := inst.LocalPosition.Z() - centerZ
				if dx*dx+dz*dz <= radius*radius {
					released = append(released, inst)
					removed++
					continue
				}
				kept = append(kept, inst)
			}
			layer.Instances = kept
		}
		if removed > 0 {
			node.Scatter.Version++
		}
	})
	if !committed {
		return 0
	}
	for _, inst := range released {
		e.binder.Release(inst.Id)
		e.index.Remove(inst.Id, inst.LocalPosition)
	}
	return removed
}

// Clear drops every scatter instance on the bound node.
func (e *ScatterEngine) Clear() int {
	if e.node == "" {
		return 0
	}
	removed := 0
	var released []InstanceId
	e.scene.UpdateTerrain(e.node, func(node *TerrainNode) {
		node.Scatter = node.Scatter.Clone()
		for i := range node.Scatter.Layers {
			for _, inst := range node.Scatter.Layers[i].Instances {
				released = append(released, inst.Id)
			}
			removed += len(node.Scatter.Layers[i].Instances)
			node.Scatter.Layers[i].Instances = nil
		}
		if removed > 0 {
			node.Scatter.Version++
		}
	})
	for _, id := range released {
		e.binder.Release(id)
	}
	if e.index != nil {
		e.index.Clear()
	}
	return removed
}

func (s ScatterSnapshot) hasCategory(category string) bool {
	for _, layer := range s.Layers {
		if layer.Category == category {
			return true
		}
	}
	return false
}

// InstanceCount totals instances across all layers of a snapshot.
func (s ScatterSnapshot) InstanceCount() int {
	n := 0
	for _, layer := range s.Layers {
		n += len(layer.Instances)
	}
	return n
}
