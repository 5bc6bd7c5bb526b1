package field

import (
	"testing"
)

func TestChunkKey_StringParseRoundTrip(t *testing.T) {
	for _, k := range []ChunkKey{{0, 0}, {3, 7}, {-2, 5}, {-4, -4}} {
		s := k.String()
		back, err := ParseChunkKey(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if back != k {
			t.Errorf("round trip %q: got %+v want %+v", s, back, k)
		}
	}

	if _, err := ParseChunkKey("nope"); err == nil {
		t.Errorf("expected parse error for garbage key")
	}
}

func TestChunkSpan_ClampsToRange(t *testing.T) {
	cases := []struct {
		cellSize float32
		want     int
	}{
		{1.0, 100},
		{2.0, 50},
		{50.0, 4},   // would be 2, clamps up
		{0.1, 512},  // would be 1000, clamps down
		{-1.0, 4},   // degenerate input
	}
	for _, c := range cases {
		if got := ChunkSpan(c.cellSize); got != c.want {
			t.Errorf("ChunkSpan(%v) = %d, want %d", c.cellSize, got, c.want)
		}
	}
}

func TestChunkOf_NegativeCells(t *testing.T) {
	// Floor division: cell -1 belongs to chunk -1, not chunk 0.
	if got := ChunkOf(-1, -1, 16); got != (ChunkKey{-1, -1}) {
		t.Errorf("ChunkOf(-1,-1,16) = %+v", got)
	}
	if got := ChunkOf(15, 16, 16); got != (ChunkKey{0, 1}) {
		t.Errorf("ChunkOf(15,16,16) = %+v", got)
	}
}

func TestChunksInRect(t *testing.T) {
	r := CellRect{MinRow: 0, MaxRow: 31, MinCol: 0, MaxCol: 15}
	keys := ChunksInRect(r, 16)
	if len(keys) != 2 {
		t.Fatalf("expected 2 chunks, got %v", keys)
	}
	if keys[0] != (ChunkKey{0, 0}) || keys[1] != (ChunkKey{1, 0}) {
		t.Errorf("unexpected keys %v", keys)
	}

	if ChunksInRect(EmptyRect(), 16) != nil {
		t.Errorf("empty rect should yield no chunks")
	}
}
