package terrain

import (
	"math"
	"time"

	"github.com/gekko3d/terrain/field"
)

// Weight channel indices. Channel r is the implicit base layer and is never
// explicitly assigned to a paint layer.
const (
	ChannelR = 0
	ChannelG = 1
	ChannelB = 2
	ChannelA = 3
)

// PaintLayer binds one weight channel to a surface texture asset.
type PaintLayer struct {
	Channel int
	Texture AssetId
}

// WeightmapRef points at a persisted weightmap blob by content hash.
type WeightmapRef struct {
	LogicalId LogicalId
}

// PaintSettings is the versioned, persisted paint configuration of a ground
// node.
type PaintSettings struct {
	Version             int
	WeightmapResolution int
	Layers              []PaintLayer
	Chunks              map[string]WeightmapRef
}

const (
	minWeightmapResolution     = 8
	maxWeightmapResolution     = 2048
	defaultWeightmapResolution = 128
)

func clampResolution(res int) int {
	if res == 0 {
		return defaultWeightmapResolution
	}
	if res < minWeightmapResolution {
		return minWeightmapResolution
	}
	if res > maxWeightmapResolution {
		return maxWeightmapResolution
	}
	return res
}

func (ps PaintSettings) Clone() PaintSettings {
	out := ps
	out.Layers = append([]PaintLayer(nil), ps.Layers...)
	out.Chunks = make(map[string]WeightmapRef, len(ps.Chunks))
	for k, v := range ps.Chunks {
		out.Chunks[k] = v
	}
	return out
}

type paintChunkStatus int

const (
	chunkLoading paintChunkStatus = iota
	chunkReady
)

type pendingStamp struct {
	x, y     float32 // texel-space center
	radius   float32 // texel-space radius
	strength float32
	channel  int
}

// PaintChunkState is the ephemeral in-memory raster of one chunk. Stamps
// landing while the chunk is still hydrating queue up and replay in arrival
// order once the blob arrives.
type PaintChunkState struct {
	key     field.ChunkKey
	status  paintChunkStatus
	wm      *field.Weightmap
	pending []pendingStamp
	dirty   bool
}

// paintSyncDebounce delays visible-chunk hydration so rapid camera movement
// does not trigger redundant loads.
const paintSyncDebounce = 160 * time.Millisecond

const maxCommitRetries = 4

// PaintEngine mutates per-chunk weight rasters on the bound ground node and
// commits them as content-addressed blobs.
type PaintEngine struct {
	scene   *SceneStore
	blobs   *BlobStore
	server  *AssetServer
	patcher GeometryPatcher
	log     Logger

	node     NodeId
	settings PaintSettings
	chunks   map[field.ChunkKey]*PaintChunkState

	span     int
	cellSize float32
	rows     int
	cols     int

	// Smoothness drives the post-stroke blur: round(Smoothness*4) passes,
	// clamped to [0,6].
	Smoothness float32

	strokeDirty map[field.ChunkKey]struct{}

	commitToken uint64

	syncWanted   []field.ChunkKey
	syncPending  bool
	syncDeadline time.Time
}

func NewPaintEngine(scene *SceneStore, blobs *BlobStore, server *AssetServer, patcher GeometryPatcher, log Logger) *PaintEngine {
	if log == nil {
		log = NewNopLogger()
	}
	return &PaintEngine{
		scene:       scene,
		blobs:       blobs,
		server:      server,
		patcher:     patcher,
		log:         log,
		chunks:      make(map[field.ChunkKey]*PaintChunkState),
		strokeDirty: make(map[field.ChunkKey]struct{}),
	}
}

// Attach binds the engine to a ground node, cloning its persisted settings
// into the working copy. Any previously bound node is committed first.
func (e *PaintEngine) Attach(node NodeId) bool {
	if e.node != "" && e.node != node {
		e.Commit()
		e.dropChunks()
	}
	n := e.scene.Node(node)
	if n == nil || n.HeightMap == nil {
		return false
	}
	e.node = node
	e.settings = n.Paint.Clone()
	e.settings.WeightmapResolution = clampResolution(e.settings.WeightmapResolution)
	if e.settings.Chunks == nil {
		e.settings.Chunks = make(map[string]WeightmapRef)
	}
	e.cellSize = n.HeightMap.CellSize
	e.rows = n.HeightMap.Rows
	e.cols = n.HeightMap.Cols
	e.span = field.ChunkSpan(e.cellSize)
	return true
}

func (e *PaintEngine) Detach() {
	if e.node == "" {
		return
	}
	e.Commit()
	e.dropChunks()
	e.node = ""
}

func (e *PaintEngine) dropChunks() {
	e.chunks = make(map[field.ChunkKey]*PaintChunkState)
	e.strokeDirty = make(map[field.ChunkKey]struct{})
	e.syncWanted = nil
	e.syncPending = false
}

// Dirty reports whether any loaded chunk carries uncommitted paint.
func (e *PaintEngine) Dirty() bool {
	return len(e.dirtyChunks()) > 0
}

// Reset discards all ephemeral paint state, e.g. on scene switch.
func (e *PaintEngine) Reset() {
	e.dropChunks()
	e.node = ""
	e.settings = PaintSettings{}
}

// EnsureLayer returns the weight channel for a paint texture, allocating
// channels g, b, a in first-available order for textures not seen before.
// When all three are taken the new layer is silently rejected.
func (e *PaintEngine) EnsureLayer(texture AssetId) (int, bool) {
	for _, layer := range e.settings.Layers {
		if layer.Texture == texture {
			return layer.Channel, true
		}
	}
	used := map[int]bool{}
	for _, layer := range e.settings.Layers {
		used[layer.Channel] = true
	}
	for _, ch := range []int{ChannelG, ChannelB, ChannelA} {
		if !used[ch] {
			e.settings.Layers = append(e.settings.Layers, PaintLayer{Channel: ch, Texture: texture})
			return ch, true
		}
	}
	e.log.Debugf("paint layer %s rejected: no free channel", texture)
	return 0, false
}

// chunkWorldExtent is the world size of one chunk side.
func (e *PaintEngine) chunkWorldExtent() float32 {
	return float32(e.span) * e.cellSize
}

// Stamp applies one brush application at a local XZ position. The brush may
// straddle several chunks; each overlapped chunk gets its own texel-space
// stamp.
func (e *PaintEngine) Stamp(localX, localZ, radius, strength float32, channel int) {
	if e.node == "" || channel < ChannelR || channel > ChannelA {
		return
	}
	res := e.settings.WeightmapResolution
	extent := e.chunkWorldExtent()
	if extent <= 0 {
		return
	}
	texelsPerWorld := float32(res) / extent
	radiusTexels := radius * texelsPerWorld

	width := float32(e.cols-1) * e.cellSize
	depth := float32(e.rows-1) * e.cellSize
	// Continuous cell-space position, then chunk-space.
	fx := (localX + width/2) / e.cellSize
	fz := (localZ + depth/2) / e.cellSize

	minChunkCol := int(math.Floor(float64((fx - radius/e.cellSize) / float32(e.span))))
	maxChunkCol := int(math.Floor(float64((fx + radius/e.cellSize) / float32(e.span))))
	minChunkRow := int(math.Floor(float64((fz - radius/e.cellSize) / float32(e.span))))
	maxChunkRow := int(math.Floor(float64((fz + radius/e.cellSize) / float32(e.span))))

	for cr := minChunkRow; cr <= maxChunkRow; cr++ {
		for cc := minChunkCol; cc <= maxChunkCol; cc++ {
			key := field.ChunkKey{Row: cr, Col: cc}
			if !e.chunkInBounds(key) {
				continue
			}
			state := e.ensureChunk(key)

			cx := (fx - float32(cc*e.span)) / float32(e.span) * float32(res)
			cy := (fz - float32(cr*e.span)) / float32(e.span) * float32(res)

			if state.status == chunkLoading {
				state.pending = append(state.pending, pendingStamp{
					x: cx, y: cy, radius: radiusTexels, strength: strength, channel: channel,
				})
				continue
			}
			state.wm.Stamp(cx, cy, radiusTexels, strength, channel)
			state.dirty = true
			e.strokeDirty[key] = struct{}{}
			if e.patcher != nil {
				e.patcher.PatchWeightmap(e.node, key, state.wm)
			}
		}
	}
}

func (e *PaintEngine) chunkInBounds(key field.ChunkKey) bool {
	return key.Row >= 0 && key.Col >= 0 &&
		key.Row*e.span < e.rows-1 && key.Col*e.span < e.cols-1
}

// ensureChunk returns the chunk's raster state, creating it lazily. A chunk
// with a persisted blob hydrates asynchronously; one never painted before
// starts blank and ready.
func (e *PaintEngine) ensureChunk(key field.ChunkKey) *PaintChunkState {
	if state, ok := e.chunks[key]; ok {
		return state
	}
	res := e.settings.WeightmapResolution
	state := &PaintChunkState{key: key}
	e.chunks[key] = state

	ref, persisted := e.settings.Chunks[key.String()]
	if !persisted {
		state.status = chunkReady
		state.wm = field.NewBlankWeightmap(res)
		return state
	}

	state.status = chunkLoading
	e.blobs.GetAsync(ref.LogicalId, func(data []byte, err error) {
		e.hydrate(state, data, err)
	})
	return state
}

// hydrate finishes an async chunk load: decode (blank fallback on any
// failure), then replay queued stamps in arrival order.
func (e *PaintEngine) hydrate(state *PaintChunkState, data []byte, err error) {
	res := e.settings.WeightmapResolution
	if err == nil {
		wm, decodeErr := field.DecodeWeightmap(data, res)
		if decodeErr != nil {
			// Stored at a different resolution: try decoding at the side
			// length the blob implies, then resample.
			if side := blobSide(len(data)); side > 0 {
				if old, oldErr := field.DecodeWeightmap(data, side); oldErr == nil {
					wm, decodeErr = old.Resample(res), nil
				}
			}
		}
		if decodeErr == nil {
			state.wm = wm
		} else {
			e.log.Warnf("weightmap decode for %s failed: %v", state.key, decodeErr)
		}
	} else {
		e.log.Warnf("weightmap load for %s failed: %v", state.key, err)
	}
	if state.wm == nil {
		state.wm = field.NewBlankWeightmap(res)
	}
	state.status = chunkReady

	for _, st := range state.pending {
		state.wm.Stamp(st.x, st.y, st.radius, st.strength, st.channel)
		state.dirty = true
		e.strokeDirty[state.key] = struct{}{}
	}
	state.pending = nil

	if e.patcher != nil && e.node != "" {
		e.patcher.PatchWeightmap(e.node, state.key, state.wm)
	}
}

// blobSide recovers the square side length from a raw blob size, 0 if the
// size is not a valid raster.
func blobSide(n int) int {
	if n <= 0 || n%field.WeightChannels != 0 {
		return 0
	}
	side := int(math.Round(math.Sqrt(float64(n / field.WeightChannels))))
	if side*side*field.WeightChannels != n {
		return 0
	}
	return side
}

// StrokeEnd applies the post-stroke box blur to every chunk dirtied during
// the stroke.
func (e *PaintEngine) StrokeEnd() {
	passes := int(math.Round(float64(e.Smoothness * 4)))
	if passes < 0 {
		passes = 0
	}
	if passes > 6 {
		passes = 6
	}
	for key := range e.strokeDirty {
		state := e.chunks[key]
		if state == nil || state.status != chunkReady {
			continue
		}
		if passes > 0 {
			state.wm.BoxBlur(passes)
			if e.patcher != nil {
				e.patcher.PatchWeightmap(e.node, key, state.wm)
			}
		}
	}
	e.strokeDirty = make(map[field.ChunkKey]struct{})
}

func (e *PaintEngine) dirtyChunks() []*PaintChunkState {
	var out []*PaintChunkState
	for _, state := range e.chunks {
		if state.dirty && state.status == chunkReady {
			out = append(out, state)
		}
	}
	return out
}

// Commit persists every dirty chunk: encode, content-hash into the blob
// store, then record the refs and push the updated settings to the scene
// node in one atomic update. If new dirty chunks appear while committing,
// the loop retries up to its budget; leftover dirt after that fails the
// commit. A commit superseded by a newer one (token bumped mid-flight)
// abandons its staged refs without persisting partial chunk state.
func (e *PaintEngine) Commit() bool {
	if e.node == "" {
		return false
	}
	e.commitToken++
	token := e.commitToken

	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		dirty := e.dirtyChunks()
		if len(dirty) == 0 {
			break
		}
		staged := make(map[string]WeightmapRef, len(dirty))
		for _, state := range dirty {
			id, err := e.blobs.Put(state.wm.Encode())
			if err != nil {
				e.log.Errorf("paint commit: %v", err)
				return false
			}
			staged[state.key.String()] = WeightmapRef{LogicalId: id}
			if token != e.commitToken {
				// A newer commit took over; it will persist the current
				// state, including everything staged here.
				return false
			}
		}
		for k, ref := range staged {
			e.settings.Chunks[k] = ref
		}
		for _, state := range dirty {
			state.dirty = false
		}
	}

	if len(e.dirtyChunks()) > 0 {
		e.log.Warnf("paint commit: dirty chunks remain after %d attempts", maxCommitRetries)
		return false
	}

	e.settings.Version++
	return e.scene.UpdateTerrain(e.node, func(n *TerrainNode) {
		n.Paint = e.settings.Clone()
	})
}

// SetVisibleChunks notes the chunk set the camera currently streams in. The
// actual hydration is debounced; Sync performs it once the set has been
// stable for the debounce window. Re-announcing an unchanged set does not
// reset the deadline.
func (e *PaintEngine) SetVisibleChunks(keys []field.ChunkKey, now time.Time) {
	if chunkKeysEqual(e.syncWanted, keys) {
		return
	}
	e.syncWanted = append([]field.ChunkKey(nil), keys...)
	e.syncPending = true
	e.syncDeadline = now.Add(paintSyncDebounce)
}

func chunkKeysEqual(a, b []field.ChunkKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Sync hydrates newly visible chunks once the debounce window has elapsed.
// Runs every frame from the paint system.
func (e *PaintEngine) Sync(now time.Time) {
	if e.node == "" || !e.syncPending || now.Before(e.syncDeadline) {
		return
	}
	for _, key := range e.syncWanted {
		if !e.chunkInBounds(key) {
			continue
		}
		state := e.ensureChunk(key)
		if state.status == chunkReady && e.patcher != nil {
			e.patcher.PatchWeightmap(e.node, key, state.wm)
		}
	}
	e.syncPending = false
}

// Settings exposes the working paint settings (for UI and tests).
func (e *PaintEngine) Settings() PaintSettings { return e.settings }

// ChunkState returns the live raster state of a chunk, nil when the chunk
// was never touched.
func (e *PaintEngine) ChunkState(key field.ChunkKey) *PaintChunkState {
	return e.chunks[key]
}

// Weights reads the raster of a ready chunk; nil while hydrating.
func (s *PaintChunkState) Weights() *field.Weightmap {
	if s == nil || s.status != chunkReady {
		return nil
	}
	return s.wm
}

func (s *PaintChunkState) Dirty() bool { return s != nil && s.dirty }
