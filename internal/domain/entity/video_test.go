package entity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	raw := json.RawMessage(`{"uid":"abc","status":{"state":"queued"},"unknownField":[1,2]}`)

	job, err := NewJob(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", job.ID)

	out, err := json.Marshal(struct {
		Video *Job `json:"video"`
	}{job})
	require.NoError(t, err)
	assert.JSONEq(t, `{"video":{"uid":"abc","status":{"state":"queued"},"unknownField":[1,2]}}`, string(out))
}

func TestNewJob_Invalid(t *testing.T) {
	for _, raw := range []string{`{"status":{}}`, `[]`, `"abc"`} {
		_, err := NewJob(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestJob_Unmarshal(t *testing.T) {
	var jobs []*Job
	require.NoError(t, json.Unmarshal([]byte(`[{"uid":"a"},{"uid":"b","meta":{"name":"x"}}]`), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[1].ID)
	assert.JSONEq(t, `{"uid":"b","meta":{"name":"x"}}`, string(jobs[1].Raw))
}

func TestJob_MarshalWithoutRaw(t *testing.T) {
	out, err := json.Marshal(&Job{ID: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"uid":"abc"}`, string(out))
}

func TestUpload_ArchiveContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", (&Upload{}).ArchiveContentType())
	assert.Equal(t, "video/mp4", (&Upload{ContentType: "application/octet-stream"}).ArchiveContentType())
	assert.Equal(t, "video/quicktime", (&Upload{ContentType: "video/quicktime"}).ArchiveContentType())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	for _, err := range []error{
		&StageError{Name: "n", Err: cause},
		&ArchiveError{Key: "k", Err: cause},
		&InitiationError{Err: cause},
		&RemoteQueryError{Err: cause},
		&CleanupError{Path: "p", Err: cause},
	} {
		assert.ErrorIs(t, err, cause)
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteQueryError{StatusCode: 404, Body: []byte(`{"success":false}`)}
	assert.Equal(t, `failed to query remote service: status 404: {"success":false}`, err.Error())

	err2 := &InitiationError{Err: errors.New("timeout")}
	assert.Equal(t, "failed to initiate transcoding job: timeout", err2.Error())
}
