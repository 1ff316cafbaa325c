package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vatproof/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, step time.Duration) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(Options{Step: step, PreviewSize: 2})
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hs.Close()
		s.Close()
	})
	return s, hs
}

func paste(t *testing.T, hs *httptest.Server, content string) (*http.Response, PasteResponse) {
	t.Helper()
	body, err := json.Marshal(PasteRequest{Content: content})
	require.NoError(t, err)
	resp, err := http.Post(hs.URL+"/api/verify-paste", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var res PasteResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	}
	return resp, res
}

func jobStatus(t *testing.T, hs *httptest.Server, id status.JobID) (int, JobStatusResponse) {
	t.Helper()
	resp, err := http.Get(hs.URL + "/api/jobs/" + string(id) + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var res JobStatusResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	}
	return resp.StatusCode, res
}

type vatTestCase struct {
	in    string
	valid bool
}

var vatTestCases = []vatTestCase{
	{in: "FR12345678901", valid: true},
	{in: "fr 123 456 789 01", valid: true},
	{in: "FRAB123456789", valid: true},
	{in: "DE123456789", valid: true},
	{in: "DE12345678", valid: false},
	{in: "NL123456789B01", valid: true},
	{in: "ATU12345678", valid: true},
	{in: "XX123456789", valid: false},
	{in: "FR", valid: false},
	{in: "", valid: false},
}

func TestValidVATFormat(t *testing.T) {
	for _, c := range vatTestCases {
		assert.Equal(t, c.valid, validVATFormat(c.in), "vat %q", c.in)
	}
}

func TestJobEntryAdvance(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := newJobEntry("j", []string{"FR12345678901", "XX1", "DE123456789"}, now)

	res := e.statusResponse(now, time.Second)
	assert.Equal(t, status.StatusPending, res.Status)
	assert.Equal(t, status.Progress{Total: 3}, res.Progress)
	require.NotNil(t, res.EstimatedCompletion)
	assert.Equal(t, "2024-05-01T10:00:03Z", *res.EstimatedCompletion)
	assert.Equal(t, "2024-05-01T10:00:00Z", res.CreatedAt)

	assert.False(t, e.advance())
	res = e.statusResponse(now, time.Second)
	assert.Equal(t, status.StatusInProgress, res.Status)
	assert.Equal(t, status.Progress{Total: 3, InProgress: 1}, res.Progress)

	assert.False(t, e.advance())
	assert.Equal(t, status.Progress{Total: 3, Completed: 1, InProgress: 1}, e.statusResponse(now, time.Second).Progress)

	assert.False(t, e.advance())
	assert.Equal(t, status.Progress{Total: 3, Completed: 1, Failed: 1, InProgress: 1}, e.statusResponse(now, time.Second).Progress)

	assert.False(t, e.advance())
	res = e.statusResponse(now, time.Second)
	assert.Equal(t, status.StatusCompleted, res.Status)
	assert.Equal(t, status.Progress{Total: 3, Completed: 2, Failed: 1}, res.Progress)
	assert.Nil(t, res.EstimatedCompletion)

	assert.True(t, e.advance())
}

func TestJobEntryAllInvalidFails(t *testing.T) {
	e := newJobEntry("j", []string{"XX1", "YY2"}, time.Now())
	for !e.advance() {
	}
	res := e.statusResponse(time.Now(), time.Second)
	assert.Equal(t, status.StatusFailed, res.Status)
	assert.Equal(t, 2, res.Progress.Failed)
}

func TestSystemStatus(t *testing.T) {
	_, hs := newTestServer(t, time.Hour)

	resp, err := http.Get(hs.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st SystemStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Healthy())
	assert.Equal(t, Version, st.Version)

	w := httptest.NewRecorder()
	NewServer(Options{}).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPasteValidation(t *testing.T) {
	_, hs := newTestServer(t, time.Hour)

	resp, _ := paste(t, hs, "  \n ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(hs.URL+"/api/verify-paste", "application/json", strings.NewReader(`{"content":`))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)

	r, err = http.Post(hs.URL+"/api/verify-paste", "application/json", strings.NewReader(`null`))
	require.NoError(t, err)
	var er ErrorResponse
	require.NoError(t, json.NewDecoder(r.Body).Decode(&er))
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.Equal(t, "content is missing", er.Error)

	r, err = http.Get(hs.URL + "/api/verify-paste")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestPasteCreatesJob(t *testing.T) {
	_, hs := newTestServer(t, time.Hour)

	resp, res := paste(t, hs, "FR12345678901\nDE123456789;Acme\nIT12345678901\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 3, res.LinesCount)
	assert.Equal(t, []string{"FR12345678901", "DE123456789"}, res.Preview)
	assert.Equal(t, "parsed", res.Status)

	code, st := jobStatus(t, hs, res.JobID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, res.JobID, st.JobID)
	assert.Equal(t, status.StatusPending, st.Status)
	assert.Equal(t, 3, st.Progress.Total)
}

func TestJobRunsToCompletion(t *testing.T) {
	_, hs := newTestServer(t, time.Millisecond)

	_, res := paste(t, hs, "FR12345678901\nnot-a-vat\nDE123456789")
	require.Eventually(t, func() bool {
		_, st := jobStatus(t, hs, res.JobID)
		return st.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	_, st := jobStatus(t, hs, res.JobID)
	assert.Equal(t, status.StatusCompleted, st.Status)
	assert.Equal(t, status.Progress{Total: 3, Completed: 2, Failed: 1}, st.Progress)
}

func TestCancelJob(t *testing.T) {
	_, hs := newTestServer(t, time.Hour)
	_, res := paste(t, hs, "FR12345678901")

	req, err := http.NewRequest(http.MethodDelete, hs.URL+"/api/jobs/"+string(res.JobID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, st := jobStatus(t, hs, res.JobID)
	assert.Equal(t, status.StatusFailed, st.Status)
	assert.Nil(t, st.EstimatedCompletion)
}

func TestJobRoutes(t *testing.T) {
	s := NewServer(Options{Step: time.Hour})
	defer s.Close()
	h := s.Handler()

	cases := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/api/jobs/unknown/status", http.StatusNotFound},
		{http.MethodDelete, "/api/jobs/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/jobs/", http.StatusBadRequest},
		{http.MethodPost, "/api/jobs/abc/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/jobs/abc/results", http.StatusNotFound},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(c.method, c.path, nil))
		assert.Equal(t, c.code, w.Code, "%s %s", c.method, c.path)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := NewServer(Options{})
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
