package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrObjectExists is returned by Bucket.Put when the path is already taken.
var ErrObjectExists = errors.New("object already exists")

// Bucket is the physical object backend.
type Bucket interface {
	// Put writes data at path and fails with ErrObjectExists instead of overwriting.
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
}

// FileBucket stores objects below a root directory.
type FileBucket struct {
	root string
}

// NewFileBucket creates the root directory if needed.
func NewFileBucket(root string) (*FileBucket, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("blobstore: bucket root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: ensure bucket root: %w", err)
	}
	return &FileBucket{root: root}, nil
}

// Root returns the bucket directory.
func (b *FileBucket) Root() string { return b.root }

func (b *FileBucket) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blobstore: invalid object path %q", path)
	}
	return filepath.Join(b.root, clean), nil
}

// Put streams data into a temp file, verifies size and hash, then links it
// into place without replacing an existing object.
func (b *FileBucket) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("blobstore: ensure object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".caseflow-blob-*.tmp")
	if err != nil {
		return fmt.Errorf("blobstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	want := sha256.Sum256(data)
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), bytes.NewReader(data))
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("blobstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: close temp: %w", err)
	}
	if written != int64(len(data)) {
		return fmt.Errorf("blobstore: size mismatch: expected %d bytes, wrote %d", len(data), written)
	}
	if !bytes.Equal(hasher.Sum(nil), want[:]) {
		return errors.New("blobstore: hash mismatch writing object")
	}
	// os.Link fails with EEXIST rather than replacing, which makes the final
	// step a compare-and-create on the path.
	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrObjectExists, path)
		}
		return fmt.Errorf("blobstore: place object: %w", err)
	}
	return nil
}

// Get reads an object. Missing objects return an error wrapping fs.ErrNotExist.
func (b *FileBucket) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read object: %w", err)
	}
	return data, nil
}

// Remove deletes an object; a missing object is not an error.
func (b *FileBucket) Remove(_ context.Context, path string) error {
	target, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blobstore: remove object: %w", err)
	}
	return nil
}
