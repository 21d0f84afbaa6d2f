package entity

import (
	"encoding/json"
	"errors"
	"io"
)

// DefaultContentType is declared on archived objects when the client did not
// name a usable content type.
const DefaultContentType = "video/mp4"

// The upload request of a video file.
type Upload struct {
	Filename    string    // Original file name as sent by the client.
	ContentType string    // Content type declared by the client.
	Body        io.Reader // Payload of the file, read once.
}

// Get the content type the archived object should be stored with.
func (u *Upload) ArchiveContentType() string {
	switch u.ContentType {
	case "", "application/octet-stream":
		return DefaultContentType
	}
	return u.ContentType
}

// The video file written to the staging directory.
type StagedFile struct {
	Name string // Unique name, also the key of the archived object.
	Path string // Location on the local disk.
	Size int64  // Number of bytes written.
}

// The transcoding job owned by the remote processing service.
// Only the identifier is interpreted, the rest of the record is kept verbatim.
type Job struct {
	ID  string
	Raw json.RawMessage
}

// Decode a job record and pick the identifier out of it.
func NewJob(raw json.RawMessage) (*Job, error) {
	var head struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	if head.UID == "" {
		return nil, errors.New("job record has no uid")
	}
	return &Job{ID: head.UID, Raw: raw}, nil
}

func (j *Job) MarshalJSON() ([]byte, error) {
	if len(j.Raw) == 0 {
		return json.Marshal(map[string]string{"uid": j.ID})
	}
	return j.Raw, nil
}

func (j *Job) UnmarshalJSON(b []byte) error {
	job, err := NewJob(append(json.RawMessage(nil), b...))
	if err != nil {
		return err
	}
	*j = *job
	return nil
}
