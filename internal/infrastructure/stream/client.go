// Package stream talks to the Cloudflare Stream API: it starts copy jobs that
// pull a video from a URL and reads the state of existing jobs.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/molpadia/molparelay/internal/domain/entity"
	"github.com/molpadia/molparelay/internal/metrics"
)

// Largest response body kept in memory.
const maxResponseSize = 16 << 20

type Options struct {
	BaseURL           string // API root, e.g. https://api.cloudflare.com/client/v4.
	AccountID         string
	APIToken          string
	RequireSignedURLs bool          // Ask for signed playback URLs on new jobs.
	Timeout           time.Duration // Bound of every call, zero for none.
	HTTPClient        *http.Client  // Optional, overrides Timeout.
}

type Client struct {
	http              *http.Client
	baseURL           string
	accountID         string
	token             string
	requireSignedURLs bool
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		http:              hc,
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		accountID:         opts.AccountID,
		token:             opts.APIToken,
		requireSignedURLs: opts.RequireSignedURLs,
	}
}

type copyRequest struct {
	URL               string   `json:"url"`
	Meta              copyMeta `json:"meta"`
	RequireSignedURLs bool     `json:"requireSignedURLs"`
}

type copyMeta struct {
	Name string `json:"name"`
}

// The envelope wrapping every API response.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiMessage    `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// A failed call, before it is classified as an initiation or query error.
type callError struct {
	status int
	body   []byte
	err    error
}

// Ask the service to fetch the video at sourceURL and start transcoding it.
// The payload itself is never sent, the service downloads it.
func (c *Client) Initiate(ctx context.Context, sourceURL, name string) (*entity.Job, error) {
	req := copyRequest{
		URL:               sourceURL,
		Meta:              copyMeta{Name: name},
		RequireSignedURLs: c.requireSignedURLs,
	}
	result, cerr := c.call(ctx, http.MethodPost, "/stream/copy", req)
	if cerr != nil {
		observe("initiate", false)
		return nil, &entity.InitiationError{StatusCode: cerr.status, Body: cerr.body, Err: cerr.err}
	}
	job, err := entity.NewJob(result)
	if err != nil {
		observe("initiate", false)
		return nil, &entity.InitiationError{StatusCode: http.StatusOK, Body: result, Err: err}
	}
	observe("initiate", true)
	return job, nil
}

// Get the current record of a single job.
func (c *Client) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	result, cerr := c.call(ctx, http.MethodGet, "/stream/"+url.PathEscape(id), nil)
	if cerr != nil {
		observe("get", false)
		return nil, &entity.RemoteQueryError{StatusCode: cerr.status, Body: cerr.body, Err: cerr.err}
	}
	job, err := entity.NewJob(result)
	if err != nil {
		observe("get", false)
		return nil, &entity.RemoteQueryError{StatusCode: http.StatusOK, Body: result, Err: err}
	}
	observe("get", true)
	return job, nil
}

// List every job of the account. Each call fetches the full list again.
func (c *Client) ListJobs(ctx context.Context) ([]*entity.Job, error) {
	result, cerr := c.call(ctx, http.MethodGet, "/stream", nil)
	if cerr != nil {
		observe("list", false)
		return nil, &entity.RemoteQueryError{StatusCode: cerr.status, Body: cerr.body, Err: cerr.err}
	}
	var records []json.RawMessage
	if err := json.Unmarshal(result, &records); err != nil {
		observe("list", false)
		return nil, &entity.RemoteQueryError{StatusCode: http.StatusOK, Body: result, Err: err}
	}
	jobs := make([]*entity.Job, 0, len(records))
	for _, raw := range records {
		job, err := entity.NewJob(raw)
		if err != nil {
			observe("list", false)
			return nil, &entity.RemoteQueryError{StatusCode: http.StatusOK, Body: raw, Err: err}
		}
		jobs = append(jobs, job)
	}
	observe("list", true)
	return jobs, nil
}

// Send a request to the account's API and return the result of the envelope.
func (c *Client) call(ctx context.Context, method, path string, in any) (json.RawMessage, *callError) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &callError{err: err}
		}
		body = bytes.NewReader(b)
	}
	u := fmt.Sprintf("%s/accounts/%s%s", c.baseURL, url.PathEscape(c.accountID), path)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &callError{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &callError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &callError{status: resp.StatusCode, err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &callError{status: resp.StatusCode, body: raw}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &callError{status: resp.StatusCode, body: raw, err: fmt.Errorf("cannot decode response: %w", err)}
	}
	if !env.Success {
		return nil, &callError{status: resp.StatusCode, body: raw, err: envelopeError(env.Errors)}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, &callError{status: resp.StatusCode, body: raw, err: errors.New("response has no result")}
	}
	return env.Result, nil
}

func envelopeError(msgs []apiMessage) error {
	if len(msgs) == 0 {
		return errors.New("request was not successful")
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("%d: %s", m.Code, m.Message))
	}
	return errors.New(strings.Join(parts, "; "))
}

func observe(op string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	metrics.RemoteRequestsTotal.WithLabelValues(op, result).Inc()
}
