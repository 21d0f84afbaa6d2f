package repository

import (
	"context"

	"github.com/molpadia/molparelay/internal/domain/entity"
)

type JobInitiator interface {
	// Ask the remote service to fetch the video at the given URL and transcode it.
	Initiate(ctx context.Context, sourceURL, name string) (*entity.Job, error)
}

type JobReader interface {
	// Get the current record of a job from the remote service.
	GetJob(ctx context.Context, id string) (*entity.Job, error)
	// List every job the remote service knows about.
	ListJobs(ctx context.Context) ([]*entity.Job, error)
}
