package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/molpadia/molparelay/internal/domain/entity"
	"github.com/molpadia/molparelay/internal/domain/repository"
	"github.com/molpadia/molparelay/internal/pipeline"
)

// Name of the multipart field carrying the video file.
const videoField = "video"

type uploadPipeline interface {
	Upload(ctx context.Context, up *entity.Upload) (*pipeline.Result, error)
}

type controller struct {
	uploads       uploadPipeline
	jobs          repository.JobReader
	maxUploadSize int64
}

// Upload a video file, archive it and start transcoding it.
func (c *controller) uploadVideo(w http.ResponseWriter, r *http.Request) error {
	if c.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadSize)
	}
	up, err := videoPart(r)
	if err != nil {
		return uploadError(err)
	}
	res, err := c.uploads.Upload(r.Context(), up)
	if errors.Is(err, entity.ErrNoFile) {
		return &AppError{Code: http.StatusBadRequest, Message: "No file uploaded"}
	}
	if err != nil {
		return uploadError(err)
	}
	return replyJSON(w, UploadResponse{
		Success:   true,
		Message:   "Video uploaded and processing",
		VideoID:   res.Job.ID,
		VideoData: res.Job,
	}, http.StatusOK)
}

// Get the current record of a transcoding job.
func (c *controller) getVideo(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["videoId"]
	if id == "" {
		return &AppError{Code: http.StatusBadRequest, Message: "video ID must be required"}
	}
	job, err := c.jobs.GetJob(r.Context(), id)
	if err != nil {
		return &AppError{Code: http.StatusInternalServerError, Message: "Failed to get video info", Err: err}
	}
	return replyJSON(w, VideoResponse{Success: true, Video: job}, http.StatusOK)
}

// List every transcoding job.
func (c *controller) listVideos(w http.ResponseWriter, r *http.Request) error {
	jobs, err := c.jobs.ListJobs(r.Context())
	if err != nil {
		return &AppError{Code: http.StatusInternalServerError, Message: "Failed to get videos", Err: err}
	}
	return replyJSON(w, VideosResponse{Success: true, Videos: jobs}, http.StatusOK)
}

// Find the video file in the multipart body. The part is returned unread so
// it streams straight into the staging directory. A request that is not
// multipart or has no video file yields nil.
func videoPart(r *http.Request) (*entity.Upload, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if p.FormName() == videoField && p.FileName() != "" {
			return &entity.Upload{
				Filename:    p.FileName(),
				ContentType: p.Header.Get("Content-Type"),
				Body:        p,
			}, nil
		}
	}
}

func uploadError(err error) error {
	code := http.StatusInternalServerError
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		code = http.StatusRequestEntityTooLarge
	}
	return &AppError{Code: code, Message: "Upload failed", Err: err}
}

// Respond the output with JSON format to the client.
func replyJSON(w http.ResponseWriter, data interface{}, code int) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return err
	}
	return nil
}
