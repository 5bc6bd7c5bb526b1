package terrain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/google/uuid"
)

type AssetId string

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

// LogicalId is a content hash identifying a persisted blob. Equal content
// always maps to the same id, so re-committing an unchanged weightmap is a
// no-op at the storage layer.
type LogicalId string

func HashBlob(data []byte) LogicalId {
	sum := sha256.Sum256(data)
	return LogicalId(hex.EncodeToString(sum[:]))
}

// BlobBackend is the slow path behind the in-memory cache: disk, network, or
// a test double.
type BlobBackend interface {
	Get(id LogicalId) ([]byte, error)
	Put(id LogicalId, data []byte) error
}

type blobRequest struct {
	id LogicalId
	cb func(data []byte, err error)
}

// BlobStore is the content-addressed blob half of the asset collaborator.
// Reads are asynchronous: GetAsync queues a request and the per-frame pump
// completes it with a callback on the cooperative scheduler, so callers
// never block the pointer path. Writes are synchronous and cheap (hash +
// map insert; backend write-through when configured).
type BlobStore struct {
	blobs   map[LogicalId][]byte
	backend BlobBackend
	pending []blobRequest
	log     Logger
}

func NewBlobStore(backend BlobBackend, log Logger) *BlobStore {
	if log == nil {
		log = NewNopLogger()
	}
	return &BlobStore{
		blobs:   make(map[LogicalId][]byte),
		backend: backend,
		log:     log,
	}
}

// Put stores a blob under its content hash and returns the id.
func (s *BlobStore) Put(data []byte) (LogicalId, error) {
	id := HashBlob(data)
	if _, ok := s.blobs[id]; ok {
		return id, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[id] = cp

	if s.backend != nil {
		if err := s.backend.Put(id, cp); err != nil {
			return id, fmt.Errorf("blob backend put %s: %w", id, err)
		}
	}
	return id, nil
}

// Cached reports whether the blob is already in memory, avoiding a redundant
// fetch.
func (s *BlobStore) Cached(id LogicalId) ([]byte, bool) {
	data, ok := s.blobs[id]
	return data, ok
}

// GetAsync queues a read. The callback fires from the pump system on a later
// Step, or on this frame's pump if one still runs.
func (s *BlobStore) GetAsync(id LogicalId, cb func(data []byte, err error)) {
	s.pending = append(s.pending, blobRequest{id: id, cb: cb})
}

// Pump completes up to budget queued reads. Cache hits resolve without
// touching the backend.
func (s *BlobStore) Pump(budget int) {
	for budget > 0 && len(s.pending) > 0 {
		req := s.pending[0]
		s.pending = s.pending[1:]
		budget--

		if data, ok := s.blobs[req.id]; ok {
			req.cb(data, nil)
			continue
		}
		if s.backend == nil {
			req.cb(nil, fmt.Errorf("blob %s not found", req.id))
			continue
		}
		data, err := s.backend.Get(req.id)
		if err != nil {
			s.log.Warnf("blob fetch %s failed: %v", req.id, err)
			req.cb(nil, err)
			continue
		}
		s.blobs[req.id] = data
		req.cb(data, nil)
	}
}

// PendingReads reports queued, not-yet-pumped requests.
func (s *BlobStore) PendingReads() int { return len(s.pending) }

// Reset drops the in-memory cache and abandons queued reads. Tied to scene
// lifecycle by the assets module.
func (s *BlobStore) Reset() {
	s.blobs = make(map[LogicalId][]byte)
	s.pending = nil
}

// TextureAsset is a decoded RGBA paint texture referenced by paint layers.
type TextureAsset struct {
	Texels []uint8
	Width  uint32
	Height uint32
}

// ModelAsset describes a scatterable object: its 2D ground footprint drives
// occupancy spacing, the bounding radius drives culling.
type ModelAsset struct {
	Name           string
	FootprintX     float32
	FootprintZ     float32
	BoundingRadius float32
}

// AssetServer owns decoded assets by id: paint textures and scatter models.
type AssetServer struct {
	textures map[AssetId]TextureAsset
	models   map[AssetId]ModelAsset
	log      Logger
}

func NewAssetServer(log Logger) *AssetServer {
	if log == nil {
		log = NewNopLogger()
	}
	return &AssetServer{
		textures: make(map[AssetId]TextureAsset),
		models:   make(map[AssetId]ModelAsset),
		log:      log,
	}
}

// LoadTexture decodes a PNG from disk. A failed load logs and returns an
// empty id; paint falls back to skipping the layer.
func (server *AssetServer) LoadTexture(filename string) AssetId {
	file, err := os.Open(filename)
	if err != nil {
		server.log.Warnf("texture open %s: %v", filename, err)
		return ""
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		server.log.Warnf("texture decode %s: %v", filename, err)
		return ""
	}

	bounds := img.Bounds()
	rgbaImg, ok := img.(*image.RGBA)
	if !ok {
		rgbaImg = image.NewRGBA(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				rgbaImg.Set(x, y, img.At(x, y))
			}
		}
	}

	id := makeAssetId()
	server.textures[id] = TextureAsset{
		Texels: rgbaImg.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}
	return id
}

func (server *AssetServer) Texture(id AssetId) (TextureAsset, bool) {
	t, ok := server.textures[id]
	return t, ok
}

// RegisterModel registers a scatter model and returns its id.
func (server *AssetServer) RegisterModel(m ModelAsset) AssetId {
	id := makeAssetId()
	server.models[id] = m
	return id
}

func (server *AssetServer) Model(id AssetId) (ModelAsset, bool) {
	m, ok := server.models[id]
	return m, ok
}

func (server *AssetServer) Reset() {
	server.textures = make(map[AssetId]TextureAsset)
	server.models = make(map[AssetId]ModelAsset)
}

// blobPumpBudget bounds how many async blob reads resolve per frame.
const blobPumpBudget = 8

type AssetServerModule struct {
	Backend BlobBackend
}

func (m AssetServerModule) Install(app *App) {
	log := app.Logger()
	blobs := NewBlobStore(m.Backend, log)
	server := NewAssetServer(log)
	app.AddResources(blobs, server)

	if scene := Resource[SceneStore](app); scene != nil {
		scene.OnSceneSwitch(func() {
			blobs.Reset()
			server.Reset()
		})
	}

	app.UseSystem(System(blobPumpSystem).InStage(PostUpdate))
}

func blobPumpSystem(blobs *BlobStore) {
	blobs.Pump(blobPumpBudget)
}
