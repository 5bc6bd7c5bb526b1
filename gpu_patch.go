package terrain

import (
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/terrain/field"
)

// GeometryPatcher receives incremental terrain updates: height rows inside a
// dirty region, recomputed chunk normals, and repainted weightmaps. Patching
// is region-scoped so large terrains stay interactive; the full field is
// never re-uploaded during a stroke.
type GeometryPatcher interface {
	PatchHeights(node NodeId, hf *field.HeightField, region field.CellRect)
	PatchNormals(node NodeId, normals map[field.ChunkKey]*field.ChunkNormals)
	PatchWeightmap(node NodeId, key field.ChunkKey, wm *field.Weightmap)
}

// WgpuPatcher uploads patches straight into GPU buffers and textures through
// the shared device queue. Buffers are allocated lazily per node on first
// patch and sized for the whole field; subsequent patches write only the
// touched byte ranges.
type WgpuPatcher struct {
	device *wgpu.Device
	queue  *wgpu.Queue

	heightBuffers  map[NodeId]*wgpu.Buffer
	normalBuffers  map[NodeId]*wgpu.Buffer
	weightTextures map[string]*wgpu.Texture
}

func NewWgpuPatcher(device *wgpu.Device) *WgpuPatcher {
	return &WgpuPatcher{
		device:         device,
		queue:          device.GetQueue(),
		heightBuffers:  make(map[NodeId]*wgpu.Buffer),
		normalBuffers:  make(map[NodeId]*wgpu.Buffer),
		weightTextures: make(map[string]*wgpu.Texture),
	}
}

func floatBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func (p *WgpuPatcher) heightBuffer(node NodeId, hf *field.HeightField) *wgpu.Buffer {
	if buf, ok := p.heightBuffers[node]; ok {
		return buf
	}
	buf, err := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Terrain Heights " + string(node),
		Size:  uint64(hf.Rows * hf.Cols * 4),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}
	p.heightBuffers[node] = buf
	return buf
}

// PatchHeights writes the region's height floats row by row; each row of the
// region is one contiguous buffer range.
func (p *WgpuPatcher) PatchHeights(node NodeId, hf *field.HeightField, region field.CellRect) {
	region = region.Clamp(hf.Rows, hf.Cols)
	if region.Empty() {
		return
	}
	buf := p.heightBuffer(node, hf)

	width := region.MaxCol - region.MinCol + 1
	row := make([]float32, width)
	for r := region.MinRow; r <= region.MaxRow; r++ {
		for c := 0; c < width; c++ {
			row[c] = hf.At(r, region.MinCol+c)
		}
		offset := uint64((r*hf.Cols + region.MinCol) * 4)
		p.queue.WriteBuffer(buf, offset, floatBytes(row))
	}
}

// PatchNormals uploads each chunk's stitched normal grid as one write.
func (p *WgpuPatcher) PatchNormals(node NodeId, normals map[field.ChunkKey]*field.ChunkNormals) {
	for _, n := range normals {
		flat := make([]float32, 0, len(n.Normals)*3)
		for _, v := range n.Normals {
			flat = append(flat, v.X(), v.Y(), v.Z())
		}

		buf, ok := p.normalBuffers[node]
		if !ok {
			var err error
			buf, err = p.device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: "Terrain Normals " + string(node),
				Size:  uint64(len(flat) * 4 * 64), // room for a 8x8 chunk neighborhood
				Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
			})
			if err != nil {
				panic(err)
			}
			p.normalBuffers[node] = buf
		}
		p.queue.WriteBuffer(buf, 0, floatBytes(flat))
	}
}

// PatchWeightmap replaces a chunk's weight texture contents.
func (p *WgpuPatcher) PatchWeightmap(node NodeId, key field.ChunkKey, wm *field.Weightmap) {
	texKey := string(node) + "/" + key.String()
	tex, ok := p.weightTextures[texKey]
	if !ok {
		var err error
		tex, err = p.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "Weightmap " + texKey,
			Size:          wgpu.Extent3D{Width: uint32(wm.Resolution), Height: uint32(wm.Resolution), DepthOrArrayLayers: 1},
			Format:        wgpu.TextureFormatRGBA8Unorm,
			Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
			Dimension:     wgpu.TextureDimension2D,
			MipLevelCount: 1,
			SampleCount:   1,
		})
		if err != nil {
			panic(err)
		}
		p.weightTextures[texKey] = tex
	}
	p.queue.WriteTexture(tex.AsImageCopy(), wm.Data, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(wm.Resolution * field.WeightChannels),
		RowsPerImage: uint32(wm.Resolution),
	}, &wgpu.Extent3D{Width: uint32(wm.Resolution), Height: uint32(wm.Resolution), DepthOrArrayLayers: 1})
}

// Release frees all GPU resources, e.g. on scene switch.
func (p *WgpuPatcher) Release() {
	for _, b := range p.heightBuffers {
		b.Release()
	}
	for _, b := range p.normalBuffers {
		b.Release()
	}
	for _, t := range p.weightTextures {
		t.Release()
	}
	p.heightBuffers = make(map[NodeId]*wgpu.Buffer)
	p.normalBuffers = make(map[NodeId]*wgpu.Buffer)
	p.weightTextures = make(map[string]*wgpu.Texture)
}

// RecordingPatcher captures patch calls for tests and headless runs.
type RecordingPatcher struct {
	HeightRegions []field.CellRect
	NormalChunks  []field.ChunkKey
	Weightmaps    []field.ChunkKey
}

func (p *RecordingPatcher) PatchHeights(node NodeId, hf *field.HeightField, region field.CellRect) {
	p.HeightRegions = append(p.HeightRegions, region)
}

func (p *RecordingPatcher) PatchNormals(node NodeId, normals map[field.ChunkKey]*field.ChunkNormals) {
	for key := range normals {
		p.NormalChunks = append(p.NormalChunks, key)
	}
}

func (p *RecordingPatcher) PatchWeightmap(node NodeId, key field.ChunkKey, wm *field.Weightmap) {
	p.Weightmaps = append(p.Weightmaps, key)
}
