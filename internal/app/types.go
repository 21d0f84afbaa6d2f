package app

import "github.com/molpadia/molparelay/internal/domain/entity"

type UploadResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	VideoID   string      `json:"videoId"`
	VideoData *entity.Job `json:"videoData"`
}

type VideoResponse struct {
	Success bool        `json:"success"`
	Video   *entity.Job `json:"video"`
}

type VideosResponse struct {
	Success bool          `json:"success"`
	Videos  []*entity.Job `json:"videos"`
}

type FailureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
