package terrain

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/terrain/field"
)

// SculptOp selects what a sculpt stamp does to the heights in its footprint.
type SculptOp int

const (
	SculptRaise SculptOp = iota
	SculptDepress
	// SculptFlatten pulls toward the height sampled at the stroke's first
	// point; SculptFlattenZero pulls toward zero.
	SculptFlatten
	SculptFlattenZero
)

func (op SculptOp) String() string {
	switch op {
	case SculptRaise:
		return "raise"
	case SculptDepress:
		return "depress"
	case SculptFlatten:
		return "flatten"
	case SculptFlattenZero:
		return "flatten-zero"
	default:
		return fmt.Sprintf("SculptOp(%d)", int(op))
	}
}

type SculptTool struct {
	Op       SculptOp
	Shape    BrushShape
	Radius   float32
	Strength float32
}

// strengthDamp keeps single-frame height changes controllable relative to
// the raw input strength.
const strengthDamp = 0.4

// maxStrokeSubsteps caps segment interpolation on very fast pointer motion.
const maxStrokeSubsteps = 96

// SculptSession is the ephemeral state of one continuous sculpt edit. It
// holds a live reference to the node's height field and mutates it in
// place; commit replaces the persisted node wholesale.
type SculptSession struct {
	node  NodeId
	field *field.HeightField
	span  int

	dirty   bool
	region  field.CellRect
	touched map[field.ChunkKey]struct{}

	flattenTarget float32
	last          mgl32.Vec2
	hasLast       bool
}

// SculptEngine applies brush strokes to a node's height field and commits
// the result with an asynchronous normal recompute.
type SculptEngine struct {
	scene   *SceneStore
	worker  *NormalWorker
	patcher GeometryPatcher
	log     Logger

	Tool SculptTool

	// Selection, when non-empty, restricts stamps to cells inside it.
	Selection field.CellRect

	session *SculptSession
}

func NewSculptEngine(scene *SceneStore, worker *NormalWorker, patcher GeometryPatcher, log Logger) *SculptEngine {
	if log == nil {
		log = NewNopLogger()
	}
	return &SculptEngine{
		scene:   scene,
		worker:  worker,
		patcher: patcher,
		log:     log,
		Tool: SculptTool{
			Op:       SculptRaise,
			Shape:    BrushCircle,
			Radius:   4,
			Strength: 1,
		},
		Selection: field.EmptyRect(),
	}
}

func (e *SculptEngine) Active() bool { return e.session != nil }

// BeginStroke opens a session on the node and applies the first stamp. The
// flatten target is sampled here, before any mutation.
func (e *SculptEngine) BeginStroke(node NodeId, point mgl32.Vec2) bool {
	n := e.scene.Node(node)
	if n == nil || n.HeightMap == nil {
		return false
	}
	e.session = &SculptSession{
		node:    node,
		field:   n.HeightMap,
		span:    field.ChunkSpan(n.HeightMap.CellSize),
		region:  field.EmptyRect(),
		touched: make(map[field.ChunkKey]struct{}),
	}
	if e.Tool.Op == SculptFlatten {
		e.session.flattenTarget = n.HeightMap.SampleHeight(point.X(), point.Y())
	}
	e.applyStamp(point)
	e.session.last = point
	e.session.hasLast = true
	return true
}

// ExtendStroke continues the stroke. Fast pointer motion is filled in with
// interpolated stamps so the footprint has no gaps.
func (e *SculptEngine) ExtendStroke(point mgl32.Vec2) {
	s := e.session
	if s == nil {
		return
	}
	if !s.hasLast {
		e.applyStamp(point)
		s.last = point
		s.hasLast = true
		return
	}

	threshold := e.stepThreshold()
	delta := point.Sub(s.last)
	dist := delta.Len()
	if dist <= threshold {
		e.applyStamp(point)
		s.last = point
		return
	}

	steps := int(math.Ceil(float64(dist / threshold)))
	if steps > maxStrokeSubsteps {
		steps = maxStrokeSubsteps
	}
	for i := 1; i <= steps; i++ {
		t := float32(i) / float32(steps)
		e.applyStamp(s.last.Add(delta.Mul(t)))
	}
	s.last = point
}

// EndStroke commits the session: a no-change stroke is discarded with no
// write, otherwise the dirty region (padded by 2 cells to heal seams against
// untouched neighbors) goes to the normal worker and the mutated field is
// written back to the scene node in one atomic update.
func (e *SculptEngine) EndStroke() bool {
	s := e.session
	e.session = nil
	if s == nil || !s.dirty {
		return false
	}

	padded := s.region.Pad(2).Clamp(s.field.Rows, s.field.Cols)
	keys := field.ChunksInRect(padded, s.span)
	job := &NormalJob{Node: s.node, Region: padded}
	for _, key := range keys {
		job.Chunks = append(job.Chunks, field.BuildChunkGeometry(s.field, key, s.span))
	}
	e.worker.Dispatch(job)

	ok := e.scene.UpdateTerrain(s.node, func(n *TerrainNode) {
		n.HeightMap = s.field
	})
	if !ok {
		e.log.Warnf("sculpt commit: node %s vanished, edit dropped", s.node)
	}
	return ok
}

// ForceEnd commits whatever is dirty before a tool or scene switch tears
// the session down.
func (e *SculptEngine) ForceEnd() {
	if e.session != nil {
		e.EndStroke()
	}
}

func (e *SculptEngine) stepThreshold() float32 {
	cell := float32(0)
	if e.session != nil {
		cell = e.session.field.CellSize * 0.5
	}
	threshold := cell
	if r := e.Tool.Radius * 0.2; r > threshold {
		threshold = r
	}
	if threshold < 0.05 {
		threshold = 0.05
	}
	return threshold
}

// applyStamp runs the brush kernel once at a local XZ point and unions the
// affected cell rect into the session's dirty region.
func (e *SculptEngine) applyStamp(point mgl32.Vec2) {
	s := e.session
	hf := s.field

	radiusCells := int(math.Ceil(float64(e.Tool.Radius / hf.CellSize)))
	centerRow, centerCol := hf.CellAt(point.X(), point.Y())
	rect := field.CellRect{
		MinRow: centerRow - radiusCells,
		MaxRow: centerRow + radiusCells,
		MinCol: centerCol - radiusCells,
		MaxCol: centerCol + radiusCells,
	}.Clamp(hf.Rows, hf.Cols)
	if rect.Empty() {
		return
	}

	changed := false
	for row := rect.MinRow; row <= rect.MaxRow; row++ {
		for col := rect.MinCol; col <= rect.MaxCol; col++ {
			if !e.Selection.Empty() && !e.Selection.Contains(row, col) {
				continue
			}
			dx := hf.WorldX(col) - point.X()
			dz := hf.WorldZ(row) - point.Y()
			w := e.Tool.Shape.Falloff(dx, dz, e.Tool.Radius)
			if w <= 0 {
				continue
			}

			h := hf.At(row, col)
			next := h
			amount := e.Tool.Strength * strengthDamp * w
			switch e.Tool.Op {
			case SculptRaise:
				next = h + amount
			case SculptDepress:
				next = h - amount
			case SculptFlatten:
				next = s.flattenTarget
			case SculptFlattenZero:
				next = 0
			}
			if next != h {
				hf.Set(row, col, next)
				changed = true
			}
		}
	}

	if !changed {
		return
	}
	s.dirty = true
	s.region = s.region.Union(rect)
	for _, key := range field.ChunksInRect(rect, s.span) {
		s.touched[key] = struct{}{}
	}
	if e.patcher != nil {
		e.patcher.PatchHeights(s.node, hf, rect)
	}
}

// groundStep is the height delta of the whole-field raise/lower commands.
const groundStep = 1.0

// GroundRaise shifts every cell of the node up by one step, through the
// normal session/commit path.
func (e *SculptEngine) GroundRaise(node NodeId) bool {
	return e.wholeField(node, func(h float32) float32 { return h + groundStep })
}

func (e *SculptEngine) GroundLower(node NodeId) bool {
	return e.wholeField(node, func(h float32) float32 { return h - groundStep })
}

// GroundReset flattens the whole node back to zero height.
func (e *SculptEngine) GroundReset(node NodeId) bool {
	return e.wholeField(node, func(h float32) float32 { return 0 })
}

func (e *SculptEngine) wholeField(node NodeId, fn func(h float32) float32) bool {
	e.ForceEnd()
	n := e.scene.Node(node)
	if n == nil || n.HeightMap == nil {
		return false
	}
	hf := n.HeightMap
	s := &SculptSession{
		node:    node,
		field:   hf,
		span:    field.ChunkSpan(hf.CellSize),
		region:  field.EmptyRect(),
		touched: make(map[field.ChunkKey]struct{}),
	}
	e.session = s

	all := field.CellRect{MinRow: 0, MaxRow: hf.Rows - 1, MinCol: 0, MaxCol: hf.Cols - 1}
	for row := 0; row < hf.Rows; row++ {
		for col := 0; col < hf.Cols; col++ {
			h := hf.At(row, col)
			if next := fn(h); next != h {
				hf.Set(row, col, next)
				s.dirty = true
			}
		}
	}
	if s.dirty {
		s.region = all
		if e.patcher != nil {
			e.patcher.PatchHeights(node, hf, all)
		}
	}
	return e.EndStroke()
}
