package terrain

import (
	"fmt"
	"os"
	"path/filepath"

	get "github.com/hashicorp/go-getter"
)

// FetchAssetPack downloads an asset pack (any go-getter URL: git, http, s3,
// local dir) into dst and imports every regular file into the blob store
// under its content hash. Returns the number of imported blobs.
func FetchAssetPack(blobs *BlobStore, dst, url string) (int, error) {
	if err := get.Get(dst, url); err != nil {
		return 0, fmt.Errorf("fetching asset pack %s: %w", url, err)
	}
	return ImportBlobDir(blobs, dst)
}

// ImportBlobDir walks a directory tree and puts every regular file into the
// blob store.
func ImportBlobDir(blobs *BlobStore, dir string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if _, err := blobs.Put(data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// DirBackend is a BlobBackend over a directory of hash-named files, the
// layout produced by asset pack downloads.
type DirBackend struct {
	Dir string
}

func (b DirBackend) path(id LogicalId) string {
	return filepath.Join(b.Dir, string(id))
}

func (b DirBackend) Get(id LogicalId) ([]byte, error) {
	return os.ReadFile(b.path(id))
}

func (b DirBackend) Put(id LogicalId, data []byte) error {
	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(b.path(id), data, 0644)
}
