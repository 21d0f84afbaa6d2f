package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/molpadia/molparelay/internal/domain/entity"
)

// Holds uploads on the local disk until they are archived.
type DiskStager struct {
	dir string
	now func() time.Time
}

// Create the stager, making the staging directory if it does not exist yet.
func NewDiskStager(dir string) (*DiskStager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cannot create staging directory %s: %w", dir, err)
	}
	return &DiskStager{dir: dir, now: time.Now}, nil
}

func (s *DiskStager) Dir() string { return s.dir }

// Write the body to a new file named after the upload time and the original name.
// An existing file with the same name is never overwritten.
func (s *DiskStager) Stage(ctx context.Context, body io.Reader, originalName string) (*entity.StagedFile, error) {
	name := entity.UniqueName(s.now(), originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, &entity.StageError{Name: name, Err: err}
	}
	written, err := io.Copy(f, &ctxReader{ctx: ctx, r: body})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, &entity.StageError{Name: name, Err: err}
	}
	return &entity.StagedFile{Name: name, Path: path, Size: written}, nil
}

// Remove the staged file. A file that no longer exists is not an error.
func (s *DiskStager) Unstage(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &entity.CleanupError{Path: path, Err: err}
	}
	return nil
}

// Stops copying once the request is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
