package blobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// writeToFile copies src to destinationPath through a temp file, so the
// destination only ever holds a complete blob. When info is verifiable the
// bytes must hash to it.
func writeToFile(ctx context.Context, src io.Reader, info BlobInfo, destinationPath string) (int64, error) {
	log := klog.FromContext(ctx)

	dir := filepath.Dir(destinationPath)
	tempFile, err := os.CreateTemp(dir, "download")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil {
				log.Error(err, "removing temp file", "path", tempFile.Name())
			}
		}
	}()

	shouldCloseTempFile := true
	defer func() {
		if shouldCloseTempFile {
			if err := tempFile.Close(); err != nil {
				log.Error(err, "closing temp file", "path", tempFile.Name())
			}
		}
	}()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tempFile, hasher), src)
	if err != nil {
		return n, fmt.Errorf("downloading from upstream source: %w", err)
	}

	if info.Verifiable() {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != info.Hash {
			return n, fmt.Errorf("%w: want %s, got %s", ErrHashMismatch, info.Hash, got)
		}
	}

	if err := tempFile.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	shouldCloseTempFile = false

	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	shouldDeleteTempFile = false

	return n, nil
}
