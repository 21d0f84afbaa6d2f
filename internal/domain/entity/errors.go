package entity

import (
	"errors"
	"fmt"
)

// The request carried no video file.
var ErrNoFile = errors.New("no file uploaded")

// Writing the upload to the staging directory failed.
type StageError struct {
	Name string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("failed to stage file %q: %v", e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// The durable archive rejected the write.
type ArchiveError struct {
	Key string
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to archive object %q: %v", e.Key, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// The remote service refused to start the transcoding job.
type InitiationError struct {
	StatusCode int    // HTTP status of the remote response, 0 without a response.
	Body       []byte // Raw body of the remote response.
	Err        error
}

func (e *InitiationError) Error() string {
	return remoteMessage("failed to initiate transcoding job", e.StatusCode, e.Body, e.Err)
}

func (e *InitiationError) Unwrap() error { return e.Err }

// A read-only query against the remote service failed.
type RemoteQueryError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *RemoteQueryError) Error() string {
	return remoteMessage("failed to query remote service", e.StatusCode, e.Body, e.Err)
}

func (e *RemoteQueryError) Unwrap() error { return e.Err }

// Removing a staged file failed. It is logged, never reported to the client.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("failed to remove staged file %q: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

func remoteMessage(prefix string, status int, body []byte, err error) string {
	msg := prefix
	if status != 0 {
		msg += fmt.Sprintf(": status %d", status)
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	if len(body) > 0 {
		msg += ": " + string(body)
	}
	return msg
}
