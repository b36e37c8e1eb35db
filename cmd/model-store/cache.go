package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"k8s.io/examples/AI/modelpipeline/pkg/blobs"
)

// blobCache keeps verified copies of models on local disk, filling misses from a blobstore.
type blobCache struct {
	BaseDir string
	loader  *blobs.ModelLoader

	// downloads collapses concurrent misses for one hash into a single download.
	downloads singleflight.Group
}

func newBlobCache(baseDir string, reader blobs.BlobReader) *blobCache {
	return &blobCache{BaseDir: baseDir, loader: blobs.NewModelLoader(reader)}
}

// GetBlob returns the local path of the blob, downloading it on a miss.
func (c *blobCache) GetBlob(ctx context.Context, info blobs.BlobInfo) (string, error) {
	localPath := filepath.Join(c.BaseDir, info.Hash)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking blob %q: %w", info.Hash, err)
	}

	_, err, _ := c.downloads.Do(info.Hash, func() (any, error) {
		return nil, c.loader.DownloadToFile(ctx, info, localPath)
	})
	if err != nil {
		return "", fmt.Errorf("fetching blob %q: %w", info.Hash, err)
	}
	return localPath, nil
}
