package client

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

	"vatproof/internal/api"
	"vatproof/internal/config"
	"vatproof/internal/status"

	"github.com/sirupsen/logrus"
)

// ErrTransport marks failures to obtain a usable HTTP response from the
// backend: network errors and non-2xx statuses alike.
var ErrTransport = errors.New("transport error")

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 4 << 20

// HTTPError is returned when the backend answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Unwrap() error {
	return ErrTransport
}

// Client talks to the VATProof backend API.
type Client struct {
	baseURL  string
	http     *http.Client
	retryCfg config.RetryConfig
}

// New builds a Client for the API rooted at baseURL (e.g. http://host/api).
// A nil httpClient selects http.DefaultClient.
func New(baseURL string, retryCfg config.RetryConfig, httpClient *http.Client) *Client {
	if retryCfg.Attempts < 1 {
		retryCfg.Attempts = 1
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		retryCfg: retryCfg,
	}
}

// Dial builds a Client and checks that the backend is reachable, retrying
// according to retryCfg. A reachable backend reporting a degraded status is
// not an error; it is logged.
func Dial(ctx context.Context, baseURL string, retryCfg config.RetryConfig) (*Client, error) {
	c := New(baseURL, retryCfg, nil)
	st, err := c.SystemStatus(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Healthy() {
		logrus.WithFields(logrus.Fields{"status": st.Status, "services": st.Services}).Warn("backend reachable but not fully available")
	}
	return c, nil
}

// FetchStatus performs a single GET /jobs/{id}/status and returns the raw
// body. There is no retry here; the poller owns the retry schedule.
func (c *Client) FetchStatus(ctx context.Context, jobID status.JobID) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(string(jobID))+"/status", nil)
}

// JobStatus fetches and decodes the status of a job.
func (c *Client) JobStatus(ctx context.Context, jobID status.JobID) (*status.Payload, error) {
	body, err := c.FetchStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return status.Parse(body)
}

// SystemStatus queries GET /status with retry logic.
func (c *Client) SystemStatus(ctx context.Context) (*api.SystemStatus, error) {
	var st api.SystemStatus
	err := c.withRetry(ctx, "SystemStatus", func() error {
		body, err := c.do(ctx, http.MethodGet, "/status", nil)
		if err != nil {
			return err
		}
		return decode(body, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// VerifyPaste submits a pasted VAT list and returns the created job.
func (c *Client) VerifyPaste(ctx context.Context, content string) (*api.PasteResponse, error) {
	reqBody, err := json.Marshal(api.PasteRequest{Content: content})
	if err != nil {
		return nil, err
	}

	var res api.PasteResponse
	err = c.withRetry(ctx, "VerifyPaste", func() error {
		body, err := c.do(ctx, http.MethodPost, "/verify-paste", reqBody)
		if err != nil {
			return err
		}
		return decode(body, &res)
	})
	if err != nil {
		return nil, err
	}
	if res.JobID == "" {
		return nil, fmt.Errorf("%w: verify-paste response carries no job_id", status.ErrMalformedResponse)
	}
	return &res, nil
}

// CancelJob asks the backend to stop a job (DELETE /jobs/{id}).
func (c *Client) CancelJob(ctx context.Context, jobID status.JobID) error {
	_, err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(string(jobID)), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", ErrTransport, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := &HTTPError{StatusCode: resp.StatusCode}
		var er api.ErrorResponse
		if json.Unmarshal(data, &er) == nil {
			he.Message = er.Error
		}
		return nil, he
	}
	return data, nil
}

// withRetry runs fn up to the configured number of attempts, waiting the
// configured delay in between. Client errors (4xx) and decoding failures
// are returned immediately.
func (c *Client) withRetry(ctx context.Context, name string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.retryCfg.Attempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}

		logrus.Warnf("%s failed (attempt %d/%d): %v", name, attempt, c.retryCfg.Attempts, err)

		// Don't wait after the final attempt
		if attempt < c.retryCfg.Attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryCfg.Delay()):
			}
		}
	}
	return err
}

func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500 || he.StatusCode == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrTransport)
}

func decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedResponse, err)
	}
	return nil
}
