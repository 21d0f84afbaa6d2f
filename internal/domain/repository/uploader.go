package repository

import (
	"context"
	"io"

	"github.com/molpadia/molparelay/internal/domain/entity"
)

type Stager interface {
	// Write the upload into the staging directory under a unique name.
	Stage(ctx context.Context, body io.Reader, originalName string) (*entity.StagedFile, error)
	// Remove a staged file. Removing a file that is already gone succeeds.
	Unstage(path string) error
}

type Archiver interface {
	// Upload the staged file to the durable archive and return its public URL.
	Archive(ctx context.Context, path, key, contentType string) (string, error)
}
