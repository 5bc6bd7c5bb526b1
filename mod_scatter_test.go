package terrain

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/terrain/field"
)

// failAfterBinder accepts n binds, then fails.
type failAfterBinder struct {
	accepted int
	limit    int
	released []InstanceId
}

func (b *failAfterBinder) Bind(inst *ScatterInstance) error {
	if b.accepted >= b.limit {
		return fmt.Errorf("render backend out of instance slots")
	}
	b.accepted++
	return nil
}

func (b *failAfterBinder) Release(id InstanceId) {
	b.released = append(b.released, id)
}

func scatterFixture(t *testing.T, binder InstanceBinder) (*ScatterEngine, *SceneStore, *AssetServer, NodeId) {
	t.Helper()
	scene := NewSceneStore()
	node := &TerrainNode{
		Id: "ground", Rows: 64, Cols: 64, CellSize: 1.0,
		HeightMap: field.NewHeightField(64, 64, 1.0),
	}
	scene.AddNode(node)
	server := NewAssetServer(nil)
	engine := NewScatterEngine(scene, server, binder, nil)
	engine.Reseed(42)
	require.True(t, engine.Attach(node.Id))
	return engine, scene, server, node.Id
}

var treeProfile = ScatterProfile{
	Id:       "pine",
	Category: "tree",
	Density:  0.2,
	ScaleMin: 0.8,
	ScaleMax: 1.2,
}

func registerTree(server *AssetServer) AssetId {
	return server.RegisterModel(ModelAsset{
		Name:           "pine",
		FootprintX:     1.0,
		FootprintZ:     1.0,
		BoundingRadius: 2.0,
	})
}

func TestScatter_StampRespectsSpacing(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	placed := engine.Stamp(0, 0, 10, asset, treeProfile)
	require.Greater(t, placed, 0)

	n := scene.Node(node)
	assert.Equal(t, placed, n.Scatter.InstanceCount())

	spacing := engine.minSpacing(asset, treeProfile)
	var all []ScatterInstance
	for _, layer := range n.Scatter.Layers {
		all = append(all, layer.Instances...)
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			dx := all[i].LocalPosition.X() - all[j].LocalPosition.X()
			dz := all[i].LocalPosition.Z() - all[j].LocalPosition.Z()
			d := float32(math.Hypot(float64(dx), float64(dz)))
			assert.GreaterOrEqual(t, d, spacing*0.999,
				"instances %d and %d are %.3f apart, min spacing %.3f", i, j, d, spacing)
		}
	}
}

func TestScatter_CenterInstanceAlwaysFirst(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	require.Greater(t, engine.Stamp(5, -3, 8, asset, treeProfile), 0)

	found := false
	for _, layer := range scene.Node(node).Scatter.Layers {
		for _, inst := range layer.Instances {
			if inst.LocalPosition.X() == 5 && inst.LocalPosition.Z() == -3 {
				found = true
			}
		}
	}
	assert.True(t, found, "the brush center must carry an instance")
}

func TestScatter_ZeroDensityPlacesNothing(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	profile := treeProfile
	profile.Density = 0
	assert.Equal(t, 0, engine.Stamp(0, 0, 10, asset, profile))
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
}

func TestScatter_InstancesSitOnSurface(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	hf := scene.Node(node).HeightMap
	for row := 0; row < 64; row++ {
		for col := 0; col < 64; col++ {
			hf.Set(row, col, 3.0)
		}
	}

	require.Greater(t, engine.Stamp(0, 0, 8, asset, treeProfile), 0)
	for _, layer := range scene.Node(node).Scatter.Layers {
		for _, inst := range layer.Instances {
			assert.InDelta(t, 3.0, float64(inst.LocalPosition.Y()), 1e-4)
			assert.GreaterOrEqual(t, inst.Scale, treeProfile.ScaleMin)
			assert.LessOrEqual(t, inst.Scale, treeProfile.ScaleMax)
		}
	}
}

func TestScatter_SecondStampAvoidsFirst(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	first := engine.Stamp(0, 0, 8, asset, treeProfile)
	require.Greater(t, first, 0)
	engine.Stamp(2, 2, 8, asset, treeProfile)

	spacing := engine.minSpacing(asset, treeProfile)
	var all []ScatterInstance
	for _, layer := range scene.Node(node).Scatter.Layers {
		all = append(all, layer.Instances...)
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			dx := all[i].LocalPosition.X() - all[j].LocalPosition.X()
			dz := all[i].LocalPosition.Z() - all[j].LocalPosition.Z()
			d := float32(math.Hypot(float64(dx), float64(dz)))
			assert.GreaterOrEqual(t, d, spacing*0.999,
				"cross-stamp spacing violated between %d and %d", i, j)
		}
	}
}

func TestScatter_BindFailureRollsBackWholeStamp(t *testing.T) {
	binder := &failAfterBinder{limit: 2}
	engine, scene, server, node := scatterFixture(t, binder)
	asset := registerTree(server)

	placed := engine.Stamp(0, 0, 10, asset, treeProfile)
	assert.Equal(t, 0, placed, "a failed bind voids the whole stamp")
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
	assert.Len(t, binder.released, 2, "already-bound instances are released")
}

func TestScatter_EraseByCategory(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	tree := registerTree(server)
	rock := server.RegisterModel(ModelAsset{Name: "rock", FootprintX: 0.5, FootprintZ: 0.5, BoundingRadius: 0.5})

	rockProfile := ScatterProfile{Id: "boulder", Category: "rock", Density: 0.2, ScaleMin: 1, ScaleMax: 1}
	require.Greater(t, engine.Stamp(0, 0, 8, tree, treeProfile), 0)
	require.Greater(t, engine.Stamp(0, 0, 8, rock, rockProfile), 0)
	total := scene.Node(node).Scatter.InstanceCount()

	removed := engine.Erase(0, 0, 100, "tree")
	require.Greater(t, removed, 0)

	n := scene.Node(node)
	assert.Equal(t, total-removed, n.Scatter.InstanceCount())
	for _, layer := range n.Scatter.Layers {
		if layer.Category == "tree" {
			assert.Empty(t, layer.Instances)
		} else {
			assert.NotEmpty(t, layer.Instances, "other categories untouched")
		}
	}

	// Empty category erases everything in radius.
	engine.Erase(0, 0, 100, "")
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
}

func TestScatter_EraseIsRadiusBound(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	require.Greater(t, engine.Stamp(-20, -20, 5, asset, treeProfile), 0)
	far := scene.Node(node).Scatter.InstanceCount()
	require.Greater(t, engine.Stamp(20, 20, 5, asset, treeProfile), 0)

	engine.Erase(20, 20, 6, "")
	assert.Equal(t, far, scene.Node(node).Scatter.InstanceCount(),
		"instances outside the erase radius survive")
}

func TestScatter_ClearReleasesEverything(t *testing.T) {
	binder := &failAfterBinder{limit: 10000}
	engine, scene, server, node := scatterFixture(t, binder)
	asset := registerTree(server)

	placed := engine.Stamp(0, 0, 10, asset, treeProfile)
	require.Greater(t, placed, 0)

	assert.Equal(t, placed, engine.Clear())
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
	assert.Len(t, binder.released, placed)
}

func TestScatter_CommitIsCopyOnWrite(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	require.Greater(t, engine.Stamp(0, 0, 8, asset, treeProfile), 0)
	snapshot := scene.Node(node).Scatter
	count := snapshot.InstanceCount()

	engine.Stamp(15, 15, 8, asset, treeProfile)
	assert.Equal(t, count, snapshot.InstanceCount(),
		"a held snapshot must not see later edits")
}

func TestScatter_StrokeStampsAlongDrag(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	first := engine.BeginStroke(mgl32.Vec2{-20, 0}, 6, asset, treeProfile)
	require.Greater(t, first, 0)
	require.True(t, engine.Active())

	// Below the step gate: no new stamp.
	assert.Equal(t, 0, engine.ExtendStroke(mgl32.Vec2{-19.5, 0}))

	count := scene.Node(node).Scatter.InstanceCount()
	require.Greater(t, engine.ExtendStroke(mgl32.Vec2{0, 0}), 0)
	require.Greater(t, engine.ExtendStroke(mgl32.Vec2{20, 0}), 0)
	assert.Greater(t, scene.Node(node).Scatter.InstanceCount(), count,
		"dragging keeps placing past the first press")

	engine.EndStroke()
	assert.False(t, engine.Active())
	assert.Equal(t, 0, engine.ExtendStroke(mgl32.Vec2{25, 0}),
		"a closed stroke ignores further motion")
}

func TestScatter_EraseStrokeFollowsDrag(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	require.Greater(t, engine.Stamp(-20, 0, 5, asset, treeProfile), 0)
	require.Greater(t, engine.Stamp(20, 0, 5, asset, treeProfile), 0)

	removed := engine.BeginErase(mgl32.Vec2{-20, 0}, 6, "")
	require.Greater(t, removed, 0)
	require.Greater(t, engine.ExtendStroke(mgl32.Vec2{20, 0}), 0,
		"the erase drag keeps clearing as it moves")
	engine.EndStroke()

	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
}

func TestScatter_TargetCountScalesWithFootprint(t *testing.T) {
	engine, _, server, _ := scatterFixture(t, nil)
	shrub := server.RegisterModel(ModelAsset{Name: "shrub", FootprintX: 1, FootprintZ: 1, BoundingRadius: 1})
	oak := server.RegisterModel(ModelAsset{Name: "oak", FootprintX: 3, FootprintZ: 3, BoundingRadius: 4})

	profile := ScatterProfile{Id: "sparse", Category: "tree", Density: 0.05, ScaleMin: 1, ScaleMax: 1}
	small := engine.Stamp(-15, -15, 10, shrub, profile)
	large := engine.Stamp(15, 15, 10, oak, profile)

	require.Greater(t, small, 0)
	require.Greater(t, large, 0)
	assert.Greater(t, small, large,
		"the same density packs fewer large footprints into one brush")
	assert.LessOrEqual(t, large, 2, "coverage divided by a 3x3 footprint caps the target")
}

func TestScatter_SpacingUsesScaleRange(t *testing.T) {
	engine, _, server, _ := scatterFixture(t, nil)
	asset := registerTree(server)

	narrow := ScatterProfile{Id: "a", Density: 0.2, ScaleMin: 1, ScaleMax: 1}
	wide := ScatterProfile{Id: "b", Density: 0.2, ScaleMin: 1, ScaleMax: 3}

	base := float32(math.Hypot(1, 1))
	assert.InDelta(t, float64(base), float64(engine.minSpacing(asset, narrow)), 1e-4)
	assert.InDelta(t, float64(base*2), float64(engine.minSpacing(asset, wide)), 1e-4,
		"a variable scale range widens the spacing")
}

func TestScatter_EraseUnknownCategoryFallsBackToAll(t *testing.T) {
	engine, scene, server, node := scatterFixture(t, nil)
	asset := registerTree(server)

	require.Greater(t, engine.Stamp(0, 0, 8, asset, treeProfile), 0)

	removed := engine.Erase(0, 0, 100, "imported-bushes")
	assert.Greater(t, removed, 0,
		"a category no layer carries erases across all layers")
	assert.Equal(t, 0, scene.Node(node).Scatter.InstanceCount())
}

func TestScatter_CheckBudgetStopsStampEarly(t *testing.T) {
	engine, _, server, _ := scatterFixture(t, nil)
	asset := registerTree(server)
	profile := ScatterProfile{Id: "dense", Category: "tree", Density: 1, ScaleMin: 1, ScaleMax: 1}

	clean := engine.Stamp(-20, -20, 5, asset, profile)
	require.Greater(t, clean, 1)

	// A crowded neighbor index makes every candidate pay thousands of
	// spacing checks, exhausting the per-stamp ceiling within a handful of
	// candidates. The cluster sits far outside the brush so nothing is
	// actually rejected by it.
	cluttered, _, cserver, _ := scatterFixture(t, nil)
	casset := registerTree(cserver)
	for i := 0; i < 20000; i++ {
		cluttered.index.Insert(InstanceId(fmt.Sprintf("c%d", i)), mgl32.Vec3{20, 0, 20})
	}
	partial := cluttered.Stamp(-20, -20, 5, casset, profile)

	assert.GreaterOrEqual(t, partial, 1, "the center instance still lands")
	assert.Less(t, partial, clean,
		"an exhausted check ceiling returns the partial set placed so far")
}

func TestNeighborIndex_NearbyIsChunkLocal(t *testing.T) {
	hf := field.NewHeightField(64, 64, 25.0) // span 4, chunk extent 100
	idx := NewNeighborIndex(hf)

	idx.Insert("a", mgl32.Vec3{0, 0, 0})
	idx.Insert("far", mgl32.Vec3{500, 0, 500})

	var seen []InstanceId
	idx.Nearby(5, 5, func(id InstanceId, _ mgl32.Vec3) bool {
		seen = append(seen, id)
		return true
	})
	assert.Contains(t, seen, InstanceId("a"))
	assert.NotContains(t, seen, InstanceId("far"), "distant chunks stay out of the walk")

	idx.Remove("a", mgl32.Vec3{0, 0, 0})
	seen = nil
	idx.Nearby(5, 5, func(id InstanceId, _ mgl32.Vec3) bool {
		seen = append(seen, id)
		return true
	})
	assert.Empty(t, seen)
}
