// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

const (
	DefaultMaxDownloadAttempts = 5
	DefaultRetryDelay          = 5 * time.Second
)

// ModelLoader downloads a blob, retrying transient failures.
type ModelLoader struct {
	Reader BlobReader

	// MaxDownloadAttempts is the number of times to attempt a download before failing
	MaxDownloadAttempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// NewModelLoader returns a loader with the default retry policy.
func NewModelLoader(reader BlobReader) *ModelLoader {
	return &ModelLoader{
		Reader:              reader,
		MaxDownloadAttempts: DefaultMaxDownloadAttempts,
		RetryDelay:          DefaultRetryDelay,
	}
}

// DownloadToFile downloads info to destPath. Missing blobs and content that
// fails verification are not retried.
func (l *ModelLoader) DownloadToFile(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	attempt := 0
	for {
		attempt++

		err := l.Reader.Download(ctx, info, destPath)
		if err == nil {
			return nil
		}

		if attempt >= l.MaxDownloadAttempts || errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrHashMismatch) {
			return err
		}

		log.Error(err, "downloading blob, will retry", "info", info, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.RetryDelay):
		}
	}
}

// Resolve parses a model reference. gs://bucket/prefix/<hash> reads from GCS,
// http(s)://server/<hash> from a blob server. Anything else is a local path,
// for which Resolve returns a nil reader.
func Resolve(ref string) (BlobReader, BlobInfo, error) {
	switch {
	case strings.HasPrefix(ref, "gs://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, BlobInfo{}, fmt.Errorf("parsing %q: %w", ref, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, BlobInfo{}, fmt.Errorf("gs reference %q must name a bucket and an object", ref)
		}
		prefix, hash := "", key
		if i := strings.LastIndex(key, "/"); i >= 0 {
			prefix, hash = key[:i], key[i+1:]
		}
		return &GCSBlobstore{Bucket: u.Host, Prefix: prefix}, BlobInfo{Hash: hash}, nil

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, BlobInfo{}, fmt.Errorf("parsing %q: %w", ref, err)
		}
		dir, hash := u.Path, ""
		if i := strings.LastIndex(u.Path, "/"); i >= 0 {
			dir, hash = u.Path[:i], u.Path[i+1:]
		}
		if hash == "" {
			return nil, BlobInfo{}, fmt.Errorf("url %q does not name a blob", ref)
		}
		base := *u
		base.Path = dir
		base.RawQuery = ""
		return &ModelServer{BlobserverURL: &base}, BlobInfo{Hash: hash}, nil
	}
	return nil, BlobInfo{}, nil
}

// Fetch makes ref available as a local file and returns its path. Remote
// blobs are cached in cacheDir by hash.
func Fetch(ctx context.Context, ref string, cacheDir string) (string, error) {
	reader, info, err := Resolve(ref)
	if err != nil {
		return "", err
	}
	if reader == nil {
		return ref, nil
	}

	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	localPath := filepath.Join(cacheDir, info.Hash)
	if _, err := os.Stat(localPath); err == nil {
		klog.FromContext(ctx).V(2).Info("using cached model", "path", localPath)
		return localPath, nil
	}

	if err := NewModelLoader(reader).DownloadToFile(ctx, info, localPath); err != nil {
		return "", fmt.Errorf("downloading model: %w", err)
	}
	return localPath, nil
}
