package field

import (
	"math"
)

// CellKey addresses one height sample by integer grid coordinates.
type CellKey struct {
	Row int
	Col int
}

// HeightField is a sparse row/column -> height mapping over a regular grid.
// Cells that were never written read back as zero height. The zero value is
// not usable; construct with NewHeightField.
type HeightField struct {
	Rows     int
	Cols     int
	CellSize float32

	heights map[CellKey]float32
}

func NewHeightField(rows, cols int, cellSize float32) *HeightField {
	if rows < 2 {
		rows = 2
	}
	if cols < 2 {
		cols = 2
	}
	if cellSize <= 0 {
		cellSize = 1.0
	}
	return &HeightField{
		Rows:     rows,
		Cols:     cols,
		CellSize: cellSize,
		heights:  make(map[CellKey]float32),
	}
}

// Width is the world extent along X, Depth along Z.
func (hf *HeightField) Width() float32 { return float32(hf.Cols-1) * hf.CellSize }
func (hf *HeightField) Depth() float32 { return float32(hf.Rows-1) * hf.CellSize }

func (hf *HeightField) InBounds(row, col int) bool {
	return row >= 0 && row < hf.Rows && col >= 0 && col < hf.Cols
}

// At returns the height at a cell, zero for unwritten or out-of-bounds cells.
func (hf *HeightField) At(row, col int) float32 {
	if !hf.InBounds(row, col) {
		return 0
	}
	return hf.heights[CellKey{row, col}]
}

// Set writes a height. Out-of-bounds writes are dropped so brush kernels can
// overhang the field edge without bookkeeping. Writing zero deletes the key
// to keep the map sparse.
func (hf *HeightField) Set(row, col int, h float32) {
	if !hf.InBounds(row, col) {
		return
	}
	key := CellKey{row, col}
	if h == 0 {
		delete(hf.heights, key)
		return
	}
	hf.heights[key] = h
}

// Len reports the number of explicitly stored (non-zero) cells.
func (hf *HeightField) Len() int { return len(hf.heights) }

// Reset discards every stored height.
func (hf *HeightField) Reset() {
	hf.heights = make(map[CellKey]float32)
}

// Clone deep-copies the field. Sessions clone on commit so the persisted
// snapshot never aliases the live editing buffer.
func (hf *HeightField) Clone() *HeightField {
	out := NewHeightField(hf.Rows, hf.Cols, hf.CellSize)
	for k, v := range hf.heights {
		out.heights[k] = v
	}
	return out
}

// CellAt maps local coordinates (origin at the terrain center) to the cell
// containing that point.
func (hf *HeightField) CellAt(localX, localZ float32) (row, col int) {
	col = int(math.Floor(float64((localX + hf.Width()/2) / hf.CellSize)))
	row = int(math.Floor(float64((localZ + hf.Depth()/2) / hf.CellSize)))
	return row, col
}

// WorldX returns the local X coordinate of a column's grid line; WorldZ the
// local Z of a row's grid line.
func (hf *HeightField) WorldX(col int) float32 {
	return float32(col)*hf.CellSize - hf.Width()/2
}

func (hf *HeightField) WorldZ(row int) float32 {
	return float32(row)*hf.CellSize - hf.Depth()/2
}

// SampleHeight bilinearly interpolates the surface height at a local XZ
// position. Positions outside the field clamp to the border cells.
func (hf *HeightField) SampleHeight(localX, localZ float32) float32 {
	fx := (localX + hf.Width()/2) / hf.CellSize
	fz := (localZ + hf.Depth()/2) / hf.CellSize

	col := int(math.Floor(float64(fx)))
	row := int(math.Floor(float64(fz)))

	if col < 0 {
		col = 0
	}
	if row < 0 {
		row = 0
	}
	if col >= hf.Cols-1 {
		col = hf.Cols - 2
	}
	if row >= hf.Rows-1 {
		row = hf.Rows - 2
	}

	tx := clamp01(fx - float32(col))
	tz := clamp01(fz - float32(row))

	h00 := hf.At(row, col)
	h01 := hf.At(row, col+1)
	h10 := hf.At(row+1, col)
	h11 := hf.At(row+1, col+1)

	south := h00*(1-tx) + h01*tx
	north := h10*(1-tx) + h11*tx
	return south*(1-tz) + north*tz
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CellRect is an inclusive rectangle of cells. The zero value is the empty
// rectangle (MinRow > MaxRow by construction of EmptyRect).
type CellRect struct {
	MinRow, MaxRow int
	MinCol, MaxCol int
}

func EmptyRect() CellRect {
	return CellRect{MinRow: math.MaxInt32, MaxRow: math.MinInt32, MinCol: math.MaxInt32, MaxCol: math.MinInt32}
}

func (r CellRect) Empty() bool {
	return r.MinRow > r.MaxRow || r.MinCol > r.MaxCol
}

// Union returns the axis-aligned bounding rectangle of both rects.
func (r CellRect) Union(o CellRect) CellRect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return CellRect{
		MinRow: minInt(r.MinRow, o.MinRow),
		MaxRow: maxInt(r.MaxRow, o.MaxRow),
		MinCol: minInt(r.MinCol, o.MinCol),
		MaxCol: maxInt(r.MaxCol, o.MaxCol),
	}
}

// Pad grows the rect by n cells on every side.
func (r CellRect) Pad(n int) CellRect {
	if r.Empty() {
		return r
	}
	return CellRect{r.MinRow - n, r.MaxRow + n, r.MinCol - n, r.MaxCol + n}
}

// Clamp restricts the rect to [0,rows) x [0,cols).
func (r CellRect) Clamp(rows, cols int) CellRect {
	if r.Empty() {
		return r
	}
	out := CellRect{
		MinRow: maxInt(r.MinRow, 0),
		MaxRow: minInt(r.MaxRow, rows-1),
		MinCol: maxInt(r.MinCol, 0),
		MaxCol: minInt(r.MaxCol, cols-1),
	}
	if out.Empty() {
		return EmptyRect()
	}
	return out
}

func (r CellRect) Contains(row, col int) bool {
	return !r.Empty() && row >= r.MinRow && row <= r.MaxRow && col >= r.MinCol && col <= r.MaxCol
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
