package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/terrain/field"
)

// EditorMode selects which engine consumes pointer strokes.
type EditorMode int

const (
	ModeSculpt EditorMode = iota
	ModePaint
	ModeScatter
)

func (m EditorMode) String() string {
	switch m {
	case ModeSculpt:
		return "sculpt"
	case ModePaint:
		return "paint"
	case ModeScatter:
		return "scatter"
	}
	return "unknown"
}

const decalSegments = 48

// TerrainEditor owns the three editing engines and routes pointer input to
// whichever one the active mode selects. Switching mode, node or scene
// force-finalizes any open stroke first so no edit is ever lost in a
// half-open session.
type TerrainEditor struct {
	scene   *SceneStore
	sculpt  *SculptEngine
	paint   *PaintEngine
	scatter *ScatterEngine
	lod     *ScatterLod
	log     Logger

	Camera *CameraState
	ViewW  float64
	ViewH  float64

	mode       EditorMode
	activeNode NodeId

	// Paint tool state. The channel comes from EnsureLayer for the picked
	// texture.
	PaintChannel  int
	PaintRadius   float32
	PaintStrength float32

	// Scatter tool state.
	ScatterAsset   AssetId
	ScatterProfile ScatterProfile
	ScatterRadius  float32
	ScatterErase   bool
	EraseCategory  string

	dragging bool
	decal    *BrushDecal
}

func NewTerrainEditor(scene *SceneStore, sculpt *SculptEngine, paint *PaintEngine, scatter *ScatterEngine, lod *ScatterLod, log Logger) *TerrainEditor {
	if log == nil {
		log = NewNopLogger()
	}
	ed := &TerrainEditor{
		scene:         scene,
		sculpt:        sculpt,
		paint:         paint,
		scatter:       scatter,
		lod:           lod,
		log:           log,
		PaintRadius:   4,
		PaintStrength: 1,
		ScatterRadius: 6,
	}
	scene.OnSceneSwitch(ed.onSceneSwitch)
	return ed
}

func (ed *TerrainEditor) Mode() EditorMode { return ed.mode }

func (ed *TerrainEditor) ActiveNode() NodeId { return ed.activeNode }

// SetMode switches the active tool, finalizing any stroke the previous tool
// left open.
func (ed *TerrainEditor) SetMode(mode EditorMode) {
	if mode == ed.mode {
		return
	}
	ed.finalizeStroke()
	ed.mode = mode
}

// SetActiveNode rebinds all engines to another ground node. A no-op when
// the node does not exist or carries no heightfield.
func (ed *TerrainEditor) SetActiveNode(node NodeId) bool {
	if node == ed.activeNode {
		return true
	}
	n := ed.scene.Node(node)
	if n == nil || n.HeightMap == nil {
		return false
	}
	ed.finalizeStroke()
	ed.paint.Detach()
	ed.activeNode = node
	ed.paint.Attach(node)
	ed.scatter.Attach(node)
	ed.decal = nil
	return true
}

func (ed *TerrainEditor) onSceneSwitch() {
	ed.finalizeStroke()
	// The old nodes are still live at this point, so dirty paint commits
	// rather than vanishing with the scene.
	if ed.paint.Dirty() && !ed.paint.Commit() {
		ed.log.Warnf("scene switch: paint commit failed, dropping dirty chunks")
	}
	ed.paint.Reset()
	ed.scatter.Detach()
	ed.lod.Reset()
	ed.activeNode = ""
	ed.decal = nil
	ed.dragging = false
}

// finalizeStroke commits whatever stroke is currently open.
func (ed *TerrainEditor) finalizeStroke() {
	if ed.sculpt.Active() {
		ed.sculpt.ForceEnd()
	}
	ed.paint.StrokeEnd()
	ed.scatter.EndStroke()
	ed.dragging = false
}

// FlushTerrainPaintChanges persists all outstanding painted chunks. Reports
// whether everything committed.
func (ed *TerrainEditor) FlushTerrainPaintChanges() bool {
	ed.paint.StrokeEnd()
	return ed.paint.Commit()
}

// ClearScatterInstances removes every scatter instance on the active node.
func (ed *TerrainEditor) ClearScatterInstances() int {
	return ed.scatter.Clear()
}

// SelectRect restricts subsequent sculpt stamps to the cells covered by a
// local-space XZ rectangle.
func (ed *TerrainEditor) SelectRect(minX, minZ, maxX, maxZ float32) {
	n := ed.scene.Node(ed.activeNode)
	if n == nil || n.HeightMap == nil {
		return
	}
	hf := n.HeightMap
	r0, c0 := hf.CellAt(minX, minZ)
	r1, c1 := hf.CellAt(maxX, maxZ)
	if r1 < r0 {
		r0, r1 = r1, r0
	}
	if c1 < c0 {
		c0, c1 = c1, c0
	}
	rect := field.CellRect{MinRow: r0, MaxRow: r1, MinCol: c0, MaxCol: c1}
	ed.sculpt.Selection = rect.Clamp(hf.Rows, hf.Cols)
}

func (ed *TerrainEditor) ClearSelection() {
	ed.sculpt.Selection = field.EmptyRect()
}

func (ed *TerrainEditor) Selection() field.CellRect { return ed.sculpt.Selection }

// Decal is the current brush outline, nil when the pointer is off the
// terrain.
func (ed *TerrainEditor) Decal() *BrushDecal { return ed.decal }

// PickPoint projects a window-space pointer position onto the active
// heightfield. With no camera attached the window maps straight onto the
// field extent, a top-down view.
func (ed *TerrainEditor) PickPoint(px, py float64) (mgl32.Vec2, bool) {
	n := ed.scene.Node(ed.activeNode)
	if n == nil || n.HeightMap == nil {
		return mgl32.Vec2{}, false
	}
	hf := n.HeightMap
	if ed.Camera == nil {
		if ed.ViewW <= 0 || ed.ViewH <= 0 {
			return mgl32.Vec2{}, false
		}
		x := (float32(px/ed.ViewW) - 0.5) * hf.Width()
		z := (float32(py/ed.ViewH) - 0.5) * hf.Depth()
		return mgl32.Vec2{x, z}, true
	}
	return ed.raycastHeightfield(hf, px, py)
}

// raycastHeightfield builds the pointer ray through the camera and marches
// it against the sampled surface, refining the hit with bisection.
func (ed *TerrainEditor) raycastHeightfield(hf *field.HeightField, px, py float64) (mgl32.Vec2, bool) {
	if ed.ViewW <= 0 || ed.ViewH <= 0 {
		return mgl32.Vec2{}, false
	}
	ndcX := float32(px/ed.ViewW)*2 - 1
	ndcY := 1 - float32(py/ed.ViewH)*2

	inv := ed.Camera.ViewProj().Inv()
	near := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, -1, 1})
	far := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, 1, 1})
	if near.W() == 0 || far.W() == 0 {
		return mgl32.Vec2{}, false
	}
	origin := near.Vec3().Mul(1 / near.W())
	dir := far.Vec3().Mul(1 / far.W()).Sub(origin)
	length := dir.Len()
	if length == 0 {
		return mgl32.Vec2{}, false
	}
	dir = dir.Mul(1 / length)

	step := hf.CellSize * 0.5
	halfW, halfD := hf.Width()/2, hf.Depth()/2
	prevT := float32(0)
	prevAbove := origin.Y() >= hf.SampleHeight(origin.X(), origin.Z())
	for t := step; t <= length; t += step {
		p := origin.Add(dir.Mul(t))
		inside := p.X() >= -halfW && p.X() <= halfW && p.Z() >= -halfD && p.Z() <= halfD
		above := p.Y() >= hf.SampleHeight(p.X(), p.Z())
		if inside && above != prevAbove {
			lo, hi := prevT, t
			for i := 0; i < 16; i++ {
				mid := (lo + hi) / 2
				q := origin.Add(dir.Mul(mid))
				if (q.Y() >= hf.SampleHeight(q.X(), q.Z())) == prevAbove {
					lo = mid
				} else {
					hi = mid
				}
			}
			hit := origin.Add(dir.Mul((lo + hi) / 2))
			return mgl32.Vec2{hit.X(), hit.Z()}, true
		}
		prevT, prevAbove = t, above
	}
	return mgl32.Vec2{}, false
}

func (ed *TerrainEditor) brushRadius() float32 {
	switch ed.mode {
	case ModePaint:
		return ed.PaintRadius
	case ModeScatter:
		return ed.ScatterRadius
	}
	return ed.sculpt.Tool.Radius
}

func (ed *TerrainEditor) updateDecal(point mgl32.Vec2) {
	n := ed.scene.Node(ed.activeNode)
	if n == nil || n.HeightMap == nil {
		ed.decal = nil
		return
	}
	shape := BrushCircle
	if ed.mode == ModeSculpt {
		shape = ed.sculpt.Tool.Shape
	}
	d := BuildBrushDecal(n.HeightMap, point.X(), point.Y(), ed.brushRadius(), shape, decalSegments)
	ed.decal = &d
}

func (ed *TerrainEditor) HandlePointerDown(ev PointerEvent) bool {
	point, ok := ed.PickPoint(ev.X, ev.Y)
	if !ok {
		return false
	}
	ed.updateDecal(point)
	switch ed.mode {
	case ModeSculpt:
		if !ed.sculpt.BeginStroke(ed.activeNode, point) {
			return false
		}
	case ModePaint:
		ed.paint.Stamp(point.X(), point.Y(), ed.PaintRadius, ed.PaintStrength, ed.PaintChannel)
	case ModeScatter:
		if ed.ScatterErase {
			ed.scatter.BeginErase(point, ed.ScatterRadius, ed.EraseCategory)
		} else {
			ed.scatter.BeginStroke(point, ed.ScatterRadius, ed.ScatterAsset, ed.ScatterProfile)
		}
	}
	ed.dragging = true
	return true
}

func (ed *TerrainEditor) HandlePointerMove(ev PointerEvent) bool {
	point, ok := ed.PickPoint(ev.X, ev.Y)
	if ok {
		ed.updateDecal(point)
	} else {
		ed.decal = nil
	}
	if !ed.dragging || !ok {
		return ed.dragging
	}
	switch ed.mode {
	case ModeSculpt:
		ed.sculpt.ExtendStroke(point)
	case ModePaint:
		ed.paint.Stamp(point.X(), point.Y(), ed.PaintRadius, ed.PaintStrength, ed.PaintChannel)
	case ModeScatter:
		ed.scatter.ExtendStroke(point)
	}
	return true
}

func (ed *TerrainEditor) HandlePointerUp(ev PointerEvent) bool {
	if !ed.dragging {
		return false
	}
	ed.dragging = false
	switch ed.mode {
	case ModeSculpt:
		ed.sculpt.EndStroke()
	case ModePaint:
		ed.paint.StrokeEnd()
	case ModeScatter:
		ed.scatter.EndStroke()
	}
	return true
}

func (ed *TerrainEditor) HandlePointerCancel(ev PointerEvent) bool {
	if !ed.dragging {
		return false
	}
	// Cancellation still finalizes: applied stamps are already in the live
	// field, so dropping the session would desync the committed snapshot.
	ed.finalizeStroke()
	return true
}

// VisibleChunks lists every chunk whose bounding sphere intersects the
// camera frustum. With no camera all chunks count as visible.
func (ed *TerrainEditor) VisibleChunks() []field.ChunkKey {
	n := ed.scene.Node(ed.activeNode)
	if n == nil || n.HeightMap == nil {
		return nil
	}
	hf := n.HeightMap
	span := field.ChunkSpan(hf.CellSize)
	all := field.ChunksInRect(field.CellRect{
		MinRow: 0, MaxRow: hf.Rows - 2,
		MinCol: 0, MaxCol: hf.Cols - 2,
	}, span)
	if ed.Camera == nil {
		return all
	}
	planes := ExtractFrustum(ed.Camera.ViewProj())
	extent := float32(span) * hf.CellSize
	radius := extent * float32(math.Sqrt2) / 2
	var out []field.ChunkKey
	for _, key := range all {
		cx := float32(key.Col)*extent + extent/2 - hf.Width()/2
		cz := float32(key.Row)*extent + extent/2 - hf.Depth()/2
		center := mgl32.Vec3{cx, hf.SampleHeight(cx, cz), cz}
		if SphereInFrustum(planes, center, radius) {
			out = append(out, key)
		}
	}
	return out
}

// TerrainEditorModule wires the full editing stack: engines, pointer
// routing, normal application and the per-frame maintenance system.
type TerrainEditorModule struct {
	Patcher GeometryPatcher
	Binder  InstanceBinder
	LodSink LodSink
}

func (m TerrainEditorModule) Install(app *App) {
	log := app.Logger()
	scene := Resource[SceneStore](app)
	worker := Resource[NormalWorker](app)
	blobs := Resource[BlobStore](app)
	server := Resource[AssetServer](app)

	sculpt := NewSculptEngine(scene, worker, m.Patcher, log)
	paint := NewPaintEngine(scene, blobs, server, m.Patcher, log)
	scatter := NewScatterEngine(scene, server, m.Binder, log)
	lod := NewScatterLod(scene, server, m.LodSink)
	editor := NewTerrainEditor(scene, sculpt, paint, scatter, lod, log)

	if cfg := Resource[EditorConfig](app); cfg != nil {
		sculpt.Tool.Radius = cfg.Brush.Radius
		sculpt.Tool.Strength = cfg.Brush.Strength
		sculpt.Tool.Shape = cfg.brushShape()
		paint.Smoothness = cfg.Paint.Smoothness
		editor.PaintRadius = cfg.Brush.Radius
	}

	patcher := m.Patcher
	worker.OnResult(func(res *NormalResult) {
		if res.Err != nil {
			log.Warnf("normal recompute for %s failed: %v", res.Node, res.Err)
			return
		}
		if patcher != nil {
			patcher.PatchNormals(res.Node, res.Normals)
		}
	})

	app.AddResources(sculpt, paint, scatter, lod, editor)
	if router := Resource[PointerRouter](app); router != nil {
		router.Register(editor)
	}
	app.UseSystem(System(editorMaintenanceSystem).InStage(PostUpdate))
}

// editorMaintenanceSystem runs the debounced paint hydration and the
// throttled LOD sweep each frame.
func editorMaintenanceSystem(ed *TerrainEditor, paint *PaintEngine, lod *ScatterLod, t *Time, in *Input) {
	if in != nil {
		ed.ViewW = float64(in.WindowWidth)
		ed.ViewH = float64(in.WindowHeight)
	}
	if ed.activeNode == "" {
		return
	}
	paint.SetVisibleChunks(ed.VisibleChunks(), t.Time)
	paint.Sync(t.Time)
	lod.Sweep(t.Time, ed.Camera, ed.activeNode)
}
