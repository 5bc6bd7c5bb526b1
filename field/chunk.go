package field

import (
	"fmt"
	"math"
)

// ChunkKey addresses one fixed-size square partition of the terrain grid.
type ChunkKey struct {
	Row int
	Col int
}

// String formats the key as "row:col", the form used in persisted paint
// settings.
func (k ChunkKey) String() string {
	return fmt.Sprintf("%d:%d", k.Row, k.Col)
}

// ParseChunkKey is the inverse of ChunkKey.String.
func ParseChunkKey(s string) (ChunkKey, error) {
	var k ChunkKey
	if _, err := fmt.Sscanf(s, "%d:%d", &k.Row, &k.Col); err != nil {
		return ChunkKey{}, fmt.Errorf("bad chunk key %q: %w", s, err)
	}
	return k, nil
}

// targetChunkExtent is the rough world size a chunk should cover per side.
const targetChunkExtent = 100.0

// ChunkSpan picks the chunk side length in cells so each chunk covers about
// 100 world meters, clamped to [4,512].
func ChunkSpan(cellSize float32) int {
	if cellSize <= 0 {
		return 4
	}
	span := int(math.Round(targetChunkExtent / float64(cellSize)))
	if span < 4 {
		span = 4
	}
	if span > 512 {
		span = 512
	}
	return span
}

// ChunkOf returns the chunk containing a cell.
func ChunkOf(row, col, span int) ChunkKey {
	return ChunkKey{Row: floorDiv(row, span), Col: floorDiv(col, span)}
}

// ChunksInRect lists every chunk overlapped by the cell rect, in row-major
// order.
func ChunksInRect(r CellRect, span int) []ChunkKey {
	if r.Empty() || span <= 0 {
		return nil
	}
	minK := ChunkOf(r.MinRow, r.MinCol, span)
	maxK := ChunkOf(r.MaxRow, r.MaxCol, span)

	var keys []ChunkKey
	for cr := minK.Row; cr <= maxK.Row; cr++ {
		for cc := minK.Col; cc <= maxK.Col; cc++ {
			keys = append(keys, ChunkKey{cr, cc})
		}
	}
	return keys
}

// CellRectOfChunk returns the inclusive cell rect a chunk covers, including
// the shared +1 edge row/column so per-chunk geometry tiles seamlessly.
func CellRectOfChunk(k ChunkKey, span int) CellRect {
	return CellRect{
		MinRow: k.Row * span,
		MaxRow: (k.Row+1)*span - 1 + 1,
		MinCol: k.Col * span,
		MaxCol: (k.Col+1)*span - 1 + 1,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
