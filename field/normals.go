package field

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ChunkGeometry is a copied snapshot of one chunk's vertex heights, including
// a one-cell apron on every side so edge normals see true neighbor heights.
// Snapshots never alias the live height field; they are safe to hand to the
// recompute worker.
type ChunkGeometry struct {
	Key      ChunkKey
	Span     int
	CellSize float32
	heights  []float32 // (Span+3)*(Span+3), apron included
}

// BuildChunkGeometry copies the chunk's heights (with apron, clamped at the
// field border) out of the live field.
func BuildChunkGeometry(hf *HeightField, key ChunkKey, span int) *ChunkGeometry {
	g := &ChunkGeometry{
		Key:      key,
		Span:     span,
		CellSize: hf.CellSize,
		heights:  make([]float32, (span+3)*(span+3)),
	}
	baseRow := key.Row * span
	baseCol := key.Col * span
	for r := -1; r <= span+1; r++ {
		for c := -1; c <= span+1; c++ {
			gr := clampInt(baseRow+r, 0, hf.Rows-1)
			gc := clampInt(baseCol+c, 0, hf.Cols-1)
			g.heights[(r+1)*(span+3)+(c+1)] = hf.At(gr, gc)
		}
	}
	return g
}

// HeightAt reads a snapshot height with local coordinates in [-1, Span+1].
func (g *ChunkGeometry) HeightAt(r, c int) float32 {
	return g.heights[(r+1)*(g.Span+3)+(c+1)]
}

// ChunkNormals holds the recomputed per-vertex normals of one chunk's
// (Span+1)x(Span+1) vertex grid.
type ChunkNormals struct {
	Key     ChunkKey
	Span    int
	Normals []mgl32.Vec3 // (Span+1)*(Span+1), row-major
}

func (n *ChunkNormals) At(r, c int) mgl32.Vec3 {
	return n.Normals[r*(n.Span+1)+c]
}

func (n *ChunkNormals) set(r, c int, v mgl32.Vec3) {
	n.Normals[r*(n.Span+1)+c] = v
}

// ComputeNormals derives vertex normals by central differences over the
// snapshot heights. Y is up; rows advance along +Z, columns along +X.
func (g *ChunkGeometry) ComputeNormals() *ChunkNormals {
	out := &ChunkNormals{
		Key:     g.Key,
		Span:    g.Span,
		Normals: make([]mgl32.Vec3, (g.Span+1)*(g.Span+1)),
	}
	for r := 0; r <= g.Span; r++ {
		for c := 0; c <= g.Span; c++ {
			hl := g.HeightAt(r, c-1)
			hr := g.HeightAt(r, c+1)
			hn := g.HeightAt(r-1, c)
			hs := g.HeightAt(r+1, c)
			n := mgl32.Vec3{hl - hr, 2 * g.CellSize, hn - hs}
			out.set(r, c, n.Normalize())
		}
	}
	return out
}

// StitchSeams matches normals along every edge shared by two chunks in the
// set, averaging the two computed values so lighting shows no seam. Corner
// vertices settle through the horizontal pass then the vertical pass.
func StitchSeams(chunks map[ChunkKey]*ChunkNormals) {
	for key, left := range chunks {
		right, ok := chunks[ChunkKey{Row: key.Row, Col: key.Col + 1}]
		if !ok {
			continue
		}
		span := left.Span
		for r := 0; r <= span; r++ {
			avg := left.At(r, span).Add(right.At(r, 0)).Mul(0.5)
			if avg.Len() > 0 {
				avg = avg.Normalize()
			}
			left.set(r, span, avg)
			right.set(r, 0, avg)
		}
	}
	for key, top := range chunks {
		bottom, ok := chunks[ChunkKey{Row: key.Row + 1, Col: key.Col}]
		if !ok {
			continue
		}
		span := top.Span
		for c := 0; c <= span; c++ {
			avg := top.At(span, c).Add(bottom.At(0, c)).Mul(0.5)
			if avg.Len() > 0 {
				avg = avg.Normalize()
			}
			top.set(span, c, avg)
			bottom.set(0, c, avg)
		}
	}
}
