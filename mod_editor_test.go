package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/terrain/field"
)

func editorFixture(t *testing.T) (*TerrainEditor, *SceneStore, NodeId) {
	t.Helper()
	scene := NewSceneStore()
	node := &TerrainNode{
		Id: "ground", Rows: 64, Cols: 64, CellSize: 1.0,
		HeightMap: field.NewHeightField(64, 64, 1.0),
	}
	scene.AddNode(node)

	server := NewAssetServer(nil)
	blobs := NewBlobStore(nil, nil)
	sculpt := NewSculptEngine(scene, NewNormalWorker(nil), nil, nil)
	paint := NewPaintEngine(scene, blobs, server, nil, nil)
	scatter := NewScatterEngine(scene, server, nil, nil)
	lod := NewScatterLod(scene, server, newRecordingSink())

	ed := NewTerrainEditor(scene, sculpt, paint, scatter, lod, nil)
	ed.ViewW, ed.ViewH = 800, 800
	require.True(t, ed.SetActiveNode(node.Id))
	return ed, scene, node.Id
}

func TestEditor_TopDownPickMapsWindowToField(t *testing.T) {
	ed, _, _ := editorFixture(t)

	center, ok := ed.PickPoint(400, 400)
	require.True(t, ok)
	assert.InDelta(t, 0, float64(center.X()), 1e-4)
	assert.InDelta(t, 0, float64(center.Y()), 1e-4)

	corner, ok := ed.PickPoint(0, 0)
	require.True(t, ok)
	assert.InDelta(t, -31.5, float64(corner.X()), 1e-3)
	assert.InDelta(t, -31.5, float64(corner.Y()), 1e-3)
}

func TestEditor_RaycastPickHitsSurface(t *testing.T) {
	ed, _, _ := editorFixture(t)
	ed.Camera = testCamera()

	hit, ok := ed.PickPoint(400, 400)
	require.True(t, ok, "center ray must hit the flat field")
	assert.InDelta(t, 0, float64(hit.X()), 0.5)
	assert.InDelta(t, 0, float64(hit.Y()), 0.5)
}

func TestEditor_PointerStrokeSculpts(t *testing.T) {
	ed, scene, node := editorFixture(t)
	before := scene.Node(node).Version

	assert.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	assert.True(t, ed.HandlePointerMove(PointerEvent{Phase: PointerMove, X: 430, Y: 400}))
	assert.True(t, ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 430, Y: 400}))

	n := scene.Node(node)
	assert.Greater(t, n.Version, before)
	assert.Greater(t, n.HeightMap.SampleHeight(0, 0), float32(0))
	assert.NotNil(t, ed.Decal(), "cursor decal follows the stroke")
}

func TestEditor_ModeSwitchFinalizesOpenStroke(t *testing.T) {
	ed, scene, node := editorFixture(t)
	before := scene.Node(node).Version

	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	ed.SetMode(ModePaint)

	assert.Equal(t, ModePaint, ed.Mode())
	assert.Greater(t, scene.Node(node).Version, before,
		"switching tools mid-stroke commits the open edit")
	assert.False(t, ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400}),
		"the drag ended with the switch")
}

func TestEditor_PointerCancelCommitsWork(t *testing.T) {
	ed, scene, node := editorFixture(t)
	before := scene.Node(node).Version

	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	assert.True(t, ed.HandlePointerCancel(PointerEvent{Phase: PointerCancel}))
	assert.Greater(t, scene.Node(node).Version, before)
}

func TestEditor_PaintStrokeAndFlush(t *testing.T) {
	ed, scene, node := editorFixture(t)
	ed.SetMode(ModePaint)
	ch, ok := ed.paint.EnsureLayer("tex-grass")
	require.True(t, ok)
	ed.PaintChannel = ch

	assert.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	assert.True(t, ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400}))

	require.True(t, ed.FlushTerrainPaintChanges())
	n := scene.Node(node)
	assert.NotEmpty(t, n.Paint.Chunks, "flush persists painted chunks")
	assert.Len(t, n.Paint.Layers, 1)
}

func TestEditor_ScatterStampAndClear(t *testing.T) {
	ed, scene, node := editorFixture(t)
	server := ed.scatter.server
	asset := server.RegisterModel(ModelAsset{Name: "pine", FootprintX: 1, FootprintZ: 1, BoundingRadius: 2})

	ed.SetMode(ModeScatter)
	ed.ScatterAsset = asset
	ed.ScatterProfile = ScatterProfile{Id: "pine", Category: "tree", Density: 0.2, ScaleMin: 1, ScaleMax: 1}
	ed.scatter.Reseed(7)

	assert.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400})
	require.Greater(t, scene.Node(node).Scatter.InstanceCount(), 0)

	assert.Greater(t, ed.ClearScatterInstances(), 0)
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
}

func TestEditor_ScatterEraseMode(t *testing.T) {
	ed, scene, node := editorFixture(t)
	server := ed.scatter.server
	asset := server.RegisterModel(ModelAsset{Name: "pine", FootprintX: 1, FootprintZ: 1, BoundingRadius: 2})

	ed.SetMode(ModeScatter)
	ed.ScatterAsset = asset
	ed.ScatterProfile = ScatterProfile{Id: "pine", Category: "tree", Density: 0.2, ScaleMin: 1, ScaleMax: 1}
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400})
	require.Greater(t, scene.Node(node).Scatter.InstanceCount(), 0)

	ed.ScatterErase = true
	ed.ScatterRadius = 100
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400})
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
}

func TestEditor_ScatterDragKeepsPlacing(t *testing.T) {
	ed, scene, node := editorFixture(t)
	server := ed.scatter.server
	asset := server.RegisterModel(ModelAsset{Name: "pine", FootprintX: 1, FootprintZ: 1, BoundingRadius: 2})

	ed.SetMode(ModeScatter)
	ed.ScatterAsset = asset
	ed.ScatterProfile = ScatterProfile{Id: "pine", Category: "tree", Density: 0.2, ScaleMin: 1, ScaleMax: 1}
	ed.scatter.Reseed(7)

	// 800px window over a 63-unit field: each 200px hop is ~15.75 units,
	// well past the stroke's step gate.
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 200, Y: 400}))
	afterPress := scene.Node(node).Scatter.InstanceCount()
	require.Greater(t, afterPress, 0)

	assert.True(t, ed.HandlePointerMove(PointerEvent{Phase: PointerMove, X: 400, Y: 400}))
	afterFirstHop := scene.Node(node).Scatter.InstanceCount()
	assert.Greater(t, afterFirstHop, afterPress, "the drag stamps past the press point")

	assert.True(t, ed.HandlePointerMove(PointerEvent{Phase: PointerMove, X: 600, Y: 400}))
	assert.Greater(t, scene.Node(node).Scatter.InstanceCount(), afterFirstHop)

	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 600, Y: 400})
	assert.False(t, ed.scatter.Active())
}

func TestEditor_ScatterEraseDragKeepsErasing(t *testing.T) {
	ed, scene, node := editorFixture(t)
	server := ed.scatter.server
	asset := server.RegisterModel(ModelAsset{Name: "pine", FootprintX: 1, FootprintZ: 1, BoundingRadius: 2})

	ed.SetMode(ModeScatter)
	ed.ScatterAsset = asset
	ed.ScatterProfile = ScatterProfile{Id: "pine", Category: "tree", Density: 0.2, ScaleMin: 1, ScaleMax: 1}
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 200, Y: 400}))
	ed.HandlePointerMove(PointerEvent{Phase: PointerMove, X: 600, Y: 400})
	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 600, Y: 400})
	require.Greater(t, scene.Node(node).Scatter.InstanceCount(), 0)

	ed.ScatterErase = true
	ed.ScatterRadius = 20
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 200, Y: 400}))
	afterPress := scene.Node(node).Scatter.InstanceCount()
	ed.HandlePointerMove(PointerEvent{Phase: PointerMove, X: 600, Y: 400})
	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 600, Y: 400})

	assert.LessOrEqual(t, scene.Node(node).Scatter.InstanceCount(), afterPress)
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount(),
		"dragging the eraser across both clusters clears everything")
}

func TestEditor_SceneSwitchCommitsDirtyPaint(t *testing.T) {
	scene := NewSceneStore()
	node := &TerrainNode{
		Id: "ground", Rows: 64, Cols: 64, CellSize: 1.0,
		HeightMap: field.NewHeightField(64, 64, 1.0),
	}
	scene.AddNode(node)

	puts := 0
	backend := &hookBackend{onPut: func() { puts++ }}
	server := NewAssetServer(nil)
	blobs := NewBlobStore(backend, nil)
	paint := NewPaintEngine(scene, blobs, server, nil, nil)
	ed := NewTerrainEditor(scene,
		NewSculptEngine(scene, NewNormalWorker(nil), nil, nil),
		paint,
		NewScatterEngine(scene, server, nil, nil),
		NewScatterLod(scene, server, nil), nil)
	ed.ViewW, ed.ViewH = 800, 800
	require.True(t, ed.SetActiveNode(node.Id))

	ed.SetMode(ModePaint)
	ch, ok := paint.EnsureLayer("tex-grass")
	require.True(t, ok)
	ed.PaintChannel = ch
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))
	ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400})
	require.True(t, paint.Dirty())

	scene.SwitchScene("caves")

	assert.Greater(t, puts, 0, "dirty chunks persist before the scene goes away")
	assert.False(t, paint.Dirty())
	assert.Equal(t, NodeId(""), ed.ActiveNode())
}

func TestEditor_SelectionRoundTrip(t *testing.T) {
	ed, _, _ := editorFixture(t)

	ed.SelectRect(-10, -10, 10, 10)
	sel := ed.Selection()
	assert.False(t, sel.Empty())
	assert.True(t, sel.Contains(31, 31))
	assert.False(t, sel.Contains(60, 60))

	ed.ClearSelection()
	assert.True(t, ed.Selection().Empty())
}

func TestEditor_SceneSwitchResetsEverything(t *testing.T) {
	ed, scene, _ := editorFixture(t)
	require.True(t, ed.HandlePointerDown(PointerEvent{Phase: PointerDown, X: 400, Y: 400}))

	scene.SwitchScene("caves")

	assert.Equal(t, NodeId(""), ed.ActiveNode())
	assert.Nil(t, ed.Decal())
	assert.False(t, ed.HandlePointerUp(PointerEvent{Phase: PointerUp, X: 400, Y: 400}))
}

func TestEditor_VisibleChunksWithoutCameraCoverField(t *testing.T) {
	scene := NewSceneStore()
	node := &TerrainNode{
		Id: "big", Rows: 64, Cols: 64, CellSize: 25.0, // span 4: 16x16 chunks
		HeightMap: field.NewHeightField(64, 64, 25.0),
	}
	scene.AddNode(node)
	server := NewAssetServer(nil)
	ed := NewTerrainEditor(scene,
		NewSculptEngine(scene, NewNormalWorker(nil), nil, nil),
		NewPaintEngine(scene, NewBlobStore(nil, nil), server, nil, nil),
		NewScatterEngine(scene, server, nil, nil),
		NewScatterLod(scene, server, nil), nil)
	require.True(t, ed.SetActiveNode(node.Id))

	keys := ed.VisibleChunks()
	assert.Len(t, keys, 16*16)
}
