package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var ErrStorageFailure = errors.New("storage backend failure")

// Publisher makes a finished attachment reachable and returns its URL.
// path points at the artifact in the local upload directory.
type Publisher interface {
	Publish(ctx context.Context, path, name, contentType string) (string, error)
}

// DiskPublisher serves artifacts straight from the upload directory, mounted
// at /uploads by the HTTP server.
type DiskPublisher struct {
	dir     string
	baseURL string
}

func NewDiskPublisher(dir, publicURL string) *DiskPublisher {
	return &DiskPublisher{dir: dir, baseURL: strings.TrimRight(publicURL, "/")}
}

func (d *DiskPublisher) Publish(_ context.Context, path, name, _ string) (string, error) {
	dst := filepath.Join(d.dir, name)
	if filepath.Clean(path) != filepath.Clean(dst) {
		if err := os.Rename(path, dst); err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
	}
	if _, err := os.Stat(dst); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return d.baseURL + "/uploads/" + url.PathEscape(name), nil
}
