// Package pipeline runs a single upload through staging, archiving and the
// remote transcoding trigger, and guarantees the staged file is removed on
// every path that created it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/molpadia/molparelay/internal/domain/entity"
	"github.com/molpadia/molparelay/internal/domain/repository"
	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/metrics"
)

type Orchestrator struct {
	stager  repository.Stager
	archive repository.Archiver
	jobs    repository.JobInitiator
	logger  logging.Logger
}

func New(stager repository.Stager, archive repository.Archiver, jobs repository.JobInitiator, logger logging.Logger) *Orchestrator {
	return &Orchestrator{stager: stager, archive: archive, jobs: jobs, logger: logger}
}

// The outcome of one upload. Fields are filled up to the state reached.
type Result struct {
	Name    string // Unique name of the staged file and archived object.
	URL     string // Public URL of the archived object.
	Job     *entity.Job
	History []entity.State
}

// Last state the upload reached.
func (r *Result) State() entity.State {
	return r.History[len(r.History)-1]
}

// Upload stages the file, archives it, asks the remote service to copy it and
// removes the staged file. A nil upload is rejected with entity.ErrNoFile
// before anything is written.
//
// The archived object is kept when the remote service refuses the job.
func (o *Orchestrator) Upload(ctx context.Context, up *entity.Upload) (*Result, error) {
	if up == nil || up.Body == nil {
		return nil, entity.ErrNoFile
	}
	r := &run{
		logger: logging.FromContext(ctx, o.logger).With("filename", up.Filename),
		result: &Result{History: []entity.State{entity.StateReceived}},
	}

	var staged *entity.StagedFile
	err := r.step("stage", func() (err error) {
		staged, err = o.stager.Stage(ctx, up.Body, up.Filename)
		return err
	})
	if err != nil {
		r.move(ctx, entity.StateStageFailed)
		return r.fail(ctx, entity.StateStageFailed, asStageError(err, up.Filename))
	}
	r.result.Name = staged.Name
	r.logger = r.logger.With("name", staged.Name)
	r.move(ctx, entity.StateStaged)
	r.logger.Info(ctx, "file staged", "size", staged.Size)
	metrics.StagedBytes.Add(float64(staged.Size))

	contentType := up.ArchiveContentType()
	err = r.step("archive", func() (err error) {
		r.result.URL, err = o.archive.Archive(ctx, staged.Path, staged.Name, contentType)
		return err
	})
	if err != nil {
		r.move(ctx, entity.StateArchiveFailed)
		o.unstage(ctx, r, staged)
		r.move(ctx, entity.StateCleanupAttempted)
		return r.fail(ctx, entity.StateArchiveFailed, asArchiveError(err, staged.Name))
	}
	r.move(ctx, entity.StateArchived)
	r.logger.Info(ctx, "file archived", "url", r.result.URL, "content_type", contentType)

	err = r.step("initiate", func() (err error) {
		r.result.Job, err = o.jobs.Initiate(ctx, r.result.URL, up.Filename)
		return err
	})
	if err != nil {
		r.move(ctx, entity.StateInitiateFailed)
		o.unstage(ctx, r, staged)
		r.move(ctx, entity.StateCleanupAttempted)
		return r.fail(ctx, entity.StateInitiateFailed, asInitiationError(err))
	}
	r.move(ctx, entity.StateJobInitiated)
	r.logger.Info(ctx, "transcoding job initiated", "job_id", r.result.Job.ID)

	o.unstage(ctx, r, staged)
	r.move(ctx, entity.StateCleaned)
	metrics.UploadsTotal.WithLabelValues(entity.StateCleaned.String()).Inc()
	return r.result, nil
}

// Remove the staged file. A failure is logged and never replaces the error
// being reported for the upload.
func (o *Orchestrator) unstage(ctx context.Context, r *run, staged *entity.StagedFile) {
	err := r.step("unstage", func() error {
		return o.stager.Unstage(staged.Path)
	})
	if err != nil {
		var cleanupErr *entity.CleanupError
		if !errors.As(err, &cleanupErr) {
			err = &entity.CleanupError{Path: staged.Path, Err: err}
		}
		r.logger.Error(ctx, "cannot remove staged file", "path", staged.Path, "error", err)
	}
}

// The bookkeeping of one upload.
type run struct {
	logger logging.Logger
	result *Result
}

func (r *run) move(ctx context.Context, next entity.State) {
	cur := r.result.State()
	if !cur.CanTransition(next) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", cur, next))
	}
	r.result.History = append(r.result.History, next)
	r.logger.Debug(ctx, "upload state changed", "from", cur.String(), "to", next.String())
}

func (r *run) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// Report the failure, labelled with the state in which the upload failed.
func (r *run) fail(ctx context.Context, failed entity.State, err error) (*Result, error) {
	metrics.UploadsTotal.WithLabelValues(failed.String()).Inc()
	r.logger.Error(ctx, "upload failed", "state", failed.String(), "error", err)
	return r.result, err
}

func asStageError(err error, name string) error {
	var target *entity.StageError
	if errors.As(err, &target) {
		return err
	}
	return &entity.StageError{Name: name, Err: err}
}

func asArchiveError(err error, key string) error {
	var target *entity.ArchiveError
	if errors.As(err, &target) {
		return err
	}
	return &entity.ArchiveError{Key: key, Err: err}
}

func asInitiationError(err error) error {
	var target *entity.InitiationError
	if errors.As(err, &target) {
		return err
	}
	return &entity.InitiationError{Err: err}
}
