package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molpadia/molparelay/internal/domain/entity"
	"github.com/molpadia/molparelay/internal/infrastructure/persistence"
	"github.com/molpadia/molparelay/internal/infrastructure/stream"
	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/pipeline"
)

type mockS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	err     error
	objects map[string]int
}

func (m *mockS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	n, err := io.Copy(io.Discard, in.Body)
	if err != nil {
		return nil, err
	}
	if m.objects == nil {
		m.objects = map[string]int{}
	}
	m.objects[aws.StringValue(in.Key)] = int(n)
	return &s3.PutObjectOutput{}, nil
}

// A fake of the remote transcoding API.
type remote struct {
	mu       sync.Mutex
	calls    []string
	copyURLs []string
	status   int
	body     string
}

func (s *remote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, r.Method+" "+r.URL.Path)
	if r.URL.Path == "/accounts/acct/stream/copy" {
		var req struct {
			URL string `json:"url"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		s.copyURLs = append(s.copyURLs, req.URL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	io.WriteString(w, s.body)
}

func (s *remote) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type env struct {
	handler    http.Handler
	stagingDir string
	s3         *mockS3
	remote     *remote
}

func newEnv(t *testing.T, maxUploadSize int64) *env {
	t.Helper()
	e := &env{
		stagingDir: filepath.Join(t.TempDir(), "uploads"),
		s3:         &mockS3{},
		remote: &remote{
			status: http.StatusOK,
			body:   `{"success":true,"errors":[],"messages":[],"result":{"uid":"ea95132c","status":{"state":"downloading"},"meta":{"name":"clip.mp4"}}}`,
		},
	}
	srv := httptest.NewServer(e.remote)
	t.Cleanup(srv.Close)

	stager, err := persistence.NewDiskStager(e.stagingDir)
	require.NoError(t, err)
	archive := persistence.NewArchiveWithClient(e.s3, persistence.ArchiveOptions{Bucket: "videos", PublicDomain: "pub.example.com"})
	client := stream.NewClient(stream.Options{BaseURL: srv.URL, AccountID: "acct", APIToken: "token", Timeout: 5 * time.Second})
	logger := logging.Discard()

	e.handler = NewHandler(Options{
		Uploads:        pipeline.New(stager, archive, client, logger),
		Jobs:           client,
		Logger:         logger,
		MaxUploadSize:  maxUploadSize,
		AllowedOrigins: []string{"*"},
	})
	return e
}

func (e *env) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	require.NoError(t, mw.WriteField("title", "holiday"))
	if field != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", "video/mp4")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *env) post(t *testing.T, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/upload", body)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestUploadVideo_Success(t *testing.T) {
	e := newEnv(t, 0)
	content := bytes.Repeat([]byte{0x42}, 10<<20)
	body, ct := multipartBody(t, "video", "clip.mp4", content)

	w := e.post(t, body, ct)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Video uploaded and processing", out["message"])
	assert.Equal(t, "ea95132c", out["videoId"])
	assert.Equal(t, map[string]any{
		"uid":    "ea95132c",
		"status": map[string]any{"state": "downloading"},
		"meta":   map[string]any{"name": "clip.mp4"},
	}, out["videoData"])

	require.Len(t, e.s3.objects, 1)
	for key, size := range e.s3.objects {
		assert.True(t, strings.HasSuffix(key, "-clip.mp4"), key)
		assert.Equal(t, 10<<20, size)
		assert.Equal(t, []string{"https://pub.example.com/" + key}, e.remote.copyURLs)
	}
	e.assertStagingEmpty(t)
}

func TestUploadVideo_NoFile(t *testing.T) {
	tests := []struct {
		name string
		body func(t *testing.T) (io.Reader, string)
	}{
		{"json body", func(t *testing.T) (io.Reader, string) {
			return strings.NewReader(`{}`), "application/json"
		}},
		{"empty body", func(t *testing.T) (io.Reader, string) {
			return nil, ""
		}},
		{"multipart without video", func(t *testing.T) (io.Reader, string) {
			return multipartBody(t, "", "", nil)
		}},
		{"video field without file", func(t *testing.T) (io.Reader, string) {
			buf := &bytes.Buffer{}
			mw := multipart.NewWriter(buf)
			require.NoError(t, mw.WriteField("video", "not a file"))
			require.NoError(t, mw.Close())
			return buf, mw.FormDataContentType()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, 0)
			body, ct := tt.body(t)

			w := e.post(t, body, ct)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"success":false,"message":"No file uploaded"}`, w.Body.String())
			assert.Empty(t, e.s3.objects)
			assert.Zero(t, e.remote.callCount())
			e.assertStagingEmpty(t)
		})
	}
}

func TestUploadVideo_ArchiveRejected(t *testing.T) {
	e := newEnv(t, 0)
	e.s3.err = awserr.NewRequestFailure(awserr.New("InvalidAccessKeyId", "The access key ID you provided does not exist", nil), http.StatusForbidden, "req-1")
	body, ct := multipartBody(t, "video", "clip.mp4", []byte("video"))

	w := e.post(t, body, ct)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Upload failed", out["message"])
	assert.Contains(t, out["error"], "InvalidAccessKeyId")
	assert.Zero(t, e.remote.callCount(), "the transcoding service must not be called")
	e.assertStagingEmpty(t)
}

func TestUploadVideo_InitiationRejected(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.status = http.StatusBadRequest
	e.remote.body = `{"success":false,"errors":[{"code":10010,"message":"URL is not reachable"}]}`
	body, ct := multipartBody(t, "video", "clip.mp4", []byte("video"))

	w := e.post(t, body, ct)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, "Upload failed", out["message"])
	assert.Contains(t, out["error"], "URL is not reachable")
	assert.Len(t, e.s3.objects, 1, "the archived object stays")
	e.assertStagingEmpty(t)
}

func TestUploadVideo_TooLarge(t *testing.T) {
	e := newEnv(t, 1024)
	body, ct := multipartBody(t, "video", "clip.mp4", bytes.Repeat([]byte{1}, 4096))

	w := e.post(t, body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["success"])
	assert.Empty(t, e.s3.objects)
	e.assertStagingEmpty(t)
}

func TestGetVideo(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.body = `{"success":true,"result":{"uid":"ea95132c","readyToStream":true,"status":{"state":"ready"}}}`

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/video/ea95132c", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"video":{"uid":"ea95132c","readyToStream":true,"status":{"state":"ready"}}}`, w.Body.String())
	assert.Equal(t, []string{"GET /accounts/acct/stream/ea95132c"}, e.remote.calls)
}

func TestGetVideo_Unknown(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.status = http.StatusNotFound
	e.remote.body = `{"success":false,"errors":[{"code":10003,"message":"Not Found"}],"result":null}`

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/video/nope", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Failed to get video info", out["message"])
	assert.Contains(t, out["error"], `"message":"Not Found"`)
}

func TestListVideos(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.body = `{"success":true,"result":[{"uid":"a","status":{"state":"ready"}},{"uid":"b","status":{"state":"queued"}}]}`

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"videos":[{"uid":"a","status":{"state":"ready"}},{"uid":"b","status":{"state":"queued"}}]}`, w.Body.String())

	// No cache: every call goes to the remote service.
	e.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/videos", nil))
	assert.Equal(t, 2, e.remote.callCount())
}

func TestListVideos_RemoteFailure(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.status = http.StatusUnauthorized
	e.remote.body = `{"success":false,"errors":[{"code":10000,"message":"Authentication error"}]}`

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, "Failed to get videos", out["message"])
	assert.Contains(t, out["error"], "Authentication error")
}

func TestRequestIDAndCORS(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.body = `{"success":true,"result":[]}`

	r := httptest.NewRequest(http.MethodGet, "/videos", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, 0)
	e.remote.body = `{"success":true,"result":[]}`
	e.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/videos", nil))

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `relay_http_requests_total{`)
	assert.Contains(t, w.Body.String(), `path="/videos"`)
}

func TestAppHandler_PlainError(t *testing.T) {
	h := appHandler(func(w http.ResponseWriter, r *http.Request) error {
		return io.ErrUnexpectedEOF
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Internal server error","error":"unexpected EOF"}`, w.Body.String())
}

type mockJobReader struct {
	job *entity.Job
	err error
	ids []string
}

func (m *mockJobReader) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	m.ids = append(m.ids, id)
	return m.job, m.err
}

func (m *mockJobReader) ListJobs(ctx context.Context) ([]*entity.Job, error) {
	return []*entity.Job{m.job}, m.err
}

func TestController_GetVideo(t *testing.T) {
	tests := []struct {
		name     string
		vars     map[string]string
		err      error
		wantCode int
		wantIDs  []string
	}{
		{"found", map[string]string{"videoId": "abc"}, nil, http.StatusOK, []string{"abc"}},
		{"missing id", map[string]string{}, nil, http.StatusBadRequest, nil},
		{"remote failure", map[string]string{"videoId": "abc"}, &entity.RemoteQueryError{StatusCode: 404}, http.StatusInternalServerError, []string{"abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &mockJobReader{job: &entity.Job{ID: "abc"}, err: tt.err}
			c := &controller{jobs: jobs}
			r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/video/abc", nil), tt.vars)
			w := httptest.NewRecorder()

			appHandler(c.getVideo).ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantIDs, jobs.ids)
		})
	}
}
