package terrain

import (
	"github.com/gekko3d/terrain/field"
)

type NodeId string

// TerrainNode is the persisted scene-side view of one ground node. Engines
// never mutate a stored node in place: sessions edit private copies and
// commit through SceneStore.UpdateTerrain, which swaps the node wholesale.
type TerrainNode struct {
	Id       NodeId
	Rows     int
	Cols     int
	CellSize float32

	HeightMap *field.HeightField
	Paint     PaintSettings
	Scatter   ScatterSnapshot

	Version uint64
}

// SceneStore owns the terrain nodes of the loaded scene. It is the single
// source of truth; runtime bindings and session state are derived from it.
type SceneStore struct {
	nodes map[NodeId]*TerrainNode

	sceneName string
	onSwitch  []func()
}

func NewSceneStore() *SceneStore {
	return &SceneStore{nodes: make(map[NodeId]*TerrainNode)}
}

func (s *SceneStore) AddNode(node *TerrainNode) {
	if node.HeightMap == nil {
		node.HeightMap = field.NewHeightField(node.Rows, node.Cols, node.CellSize)
	}
	s.nodes[node.Id] = node
}

func (s *SceneStore) Node(id NodeId) *TerrainNode {
	return s.nodes[id]
}

// UpdateTerrain atomically replaces a node's terrain fields. The mutate
// callback receives a shallow working copy; the stored pointer is swapped
// only after mutate returns, so readers never observe a half-updated node.
// Returns false when the node does not exist.
func (s *SceneStore) UpdateTerrain(id NodeId, mutate func(node *TerrainNode)) bool {
	current, ok := s.nodes[id]
	if !ok {
		return false
	}
	next := *current
	mutate(&next)
	next.Version = current.Version + 1
	s.nodes[id] = &next
	return true
}

// OnSceneSwitch registers a reset hook. Engines use this to drop their
// caches and sessions when the scene changes, instead of holding ambient
// module state.
func (s *SceneStore) OnSceneSwitch(fn func()) {
	s.onSwitch = append(s.onSwitch, fn)
}

// SwitchScene fires the reset hooks, then discards every node. Hooks run
// while the old nodes are still reachable so engines can commit in-flight
// sessions before the scene goes away.
func (s *SceneStore) SwitchScene(name string) {
	s.sceneName = name
	for _, fn := range s.onSwitch {
		fn()
	}
	s.nodes = make(map[NodeId]*TerrainNode)
}

func (s *SceneStore) SceneName() string { return s.sceneName }

type SceneModule struct{}

func (SceneModule) Install(app *App) {
	app.AddResources(NewSceneStore())
}
