package terrain

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/terrain/field"
)

// NeighborIndex buckets scatter instances by the terrain chunk they sit in.
// Proximity queries only ever look at the 3x3 chunk neighborhood around the
// query point, which bounds the cost of spacing checks regardless of total
// instance count.
type NeighborIndex struct {
	span     int
	cellSize float32
	width    float32
	depth    float32
	cells    map[field.ChunkKey][]indexedInstance
}

type indexedInstance struct {
	id  InstanceId
	pos mgl32.Vec3
}

func NewNeighborIndex(hf *field.HeightField) *NeighborIndex {
	return &NeighborIndex{
		span:     field.ChunkSpan(hf.CellSize),
		cellSize: hf.CellSize,
		width:    hf.Width(),
		depth:    hf.Depth(),
		cells:    make(map[field.ChunkKey][]indexedInstance),
	}
}

func (idx *NeighborIndex) chunkAt(x, z float32) field.ChunkKey {
	col := int((x + idx.width/2) / idx.cellSize)
	row := int((z + idx.depth/2) / idx.cellSize)
	return field.ChunkOf(row, col, idx.span)
}

func (idx *NeighborIndex) Insert(id InstanceId, pos mgl32.Vec3) {
	key := idx.chunkAt(pos.X(), pos.Z())
	idx.cells[key] = append(idx.cells[key], indexedInstance{id: id, pos: pos})
}

func (idx *NeighborIndex) Remove(id InstanceId, pos mgl32.Vec3) {
	key := idx.chunkAt(pos.X(), pos.Z())
	bucket := idx.cells[key]
	for i, inst := range bucket {
		if inst.id == id {
			bucket[i] = bucket[len(bucket)-1]
			idx.cells[key] = bucket[:len(bucket)-1]
			return
		}
	}
}

// Nearby visits every indexed instance in the 3x3 chunk neighborhood of the
// given position. Returning false from the visitor stops the walk.
func (idx *NeighborIndex) Nearby(x, z float32, visit func(id InstanceId, pos mgl32.Vec3) bool) {
	center := idx.chunkAt(x, z)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			key := field.ChunkKey{Row: center.Row + dr, Col: center.Col + dc}
			for _, inst := range idx.cells[key] {
				if !visit(inst.id, inst.pos) {
					return
				}
			}
		}
	}
}

func (idx *NeighborIndex) Clear() {
	for k := range idx.cells {
		delete(idx.cells, k)
	}
}

// Rebuild repopulates the index from the given scatter layers.
func (idx *NeighborIndex) Rebuild(layers []ScatterLayer) {
	idx.Clear()
	for _, layer := range layers {
		for _, inst := range layer.Instances {
			idx.Insert(inst.Id, inst.LocalPosition)
		}
	}
}
