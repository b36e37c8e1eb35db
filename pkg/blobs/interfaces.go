// Package blobs fetches and publishes model containers, addressed by the
// sha256 of their bytes.
package blobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrHashMismatch is returned when downloaded bytes do not hash to the requested blob.
var ErrHashMismatch = errors.New("blob content does not match its hash")

type BlobReader interface {
	// If no such object exists, Download should return an error for which errors.Is(err, os.ErrNotExist) is true.
	Download(ctx context.Context, info BlobInfo, destPath string) error
}

type Blobstore interface {
	BlobReader
	// Upload uploads the file at sourcePath to the blobstore, using the given hash as the object key.
	// If an object with the same hash already exists, Upload should do nothing and return no error.
	Upload(ctx context.Context, sourcePath string, info BlobInfo) error
}

type BlobInfo struct {
	// Hash is the hex sha256 of the container.
	Hash string
}

// Verifiable reports whether Hash is a sha256 digest, so downloads can be checked against it.
func (i BlobInfo) Verifiable() bool {
	if len(i.Hash) != 2*sha256.Size {
		return false
	}
	_, err := hex.DecodeString(i.Hash)
	return err == nil
}

// HashFile computes the BlobInfo of the file at path.
func HashFile(path string) (BlobInfo, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return BlobInfo{}, 0, fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return BlobInfo{}, n, fmt.Errorf("hashing %q: %w", path, err)
	}
	return BlobInfo{Hash: hex.EncodeToString(h.Sum(nil))}, n, nil
}
