package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotTestCase struct {
	name         string
	in           Progress
	pending      int
	percentage   int
	inconsistent bool
}

var snapshotTestCases = []snapshotTestCase{
	{name: "zero total", in: Progress{}, pending: 0, percentage: 0},
	{name: "zero total with counters", in: Progress{Completed: 2, Failed: 1}, pending: -3, percentage: 0, inconsistent: true},
	{name: "mid run", in: Progress{Total: 10, Completed: 3, Failed: 1, InProgress: 2}, pending: 4, percentage: 40},
	{name: "all done", in: Progress{Total: 5, Completed: 5}, pending: 0, percentage: 100},
	{name: "half rounds up", in: Progress{Total: 8, Completed: 1}, pending: 7, percentage: 13},
	{name: "below half rounds down", in: Progress{Total: 3, Completed: 1}, pending: 2, percentage: 33},
	{name: "above half rounds up", in: Progress{Total: 3, Completed: 2}, pending: 1, percentage: 67},
	{name: "failures count as done", in: Progress{Total: 4, Failed: 2, InProgress: 1}, pending: 1, percentage: 50},
	{name: "over accounted", in: Progress{Total: 4, Completed: 3, Failed: 2}, pending: -1, percentage: 100, inconsistent: true},
	{name: "negative pending only", in: Progress{Total: 4, Completed: 1, InProgress: 5}, pending: -2, percentage: 25, inconsistent: true},
}

func TestNewSnapshot(t *testing.T) {
	for _, c := range snapshotTestCases {
		t.Run(c.name, func(t *testing.T) {
			s := NewSnapshot(c.in)
			assert.Equal(t, c.in.Total-c.in.Completed-c.in.Failed-c.in.InProgress, s.Pending, "pending formula")
			assert.Equal(t, c.pending, s.Pending)
			assert.Equal(t, c.percentage, s.Percentage)
			assert.Equal(t, c.inconsistent, s.Inconsistent)
		})
	}
}

func TestRoundHalfUpMatchesFormula(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for done := 0; done <= total; done++ {
			got := NewSnapshot(Progress{Total: total, Completed: done}).Percentage
			// 100*done/total has a fractional part of exactly .5 only when
			// 200*done is an odd multiple of total.
			want := (200*done + total) / (2 * total)
			require.Equal(t, want, got, "total=%d done=%d", total, done)
		}
	}
}

func TestParseInProgress(t *testing.T) {
	p, err := Parse([]byte(`{"status":"in_progress","progress":{"total":10,"completed":3,"failed":1,"in_progress":2}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, p.Status)
	assert.False(t, p.Status.Terminal())

	s := p.Snapshot()
	assert.Equal(t, 4, s.Pending)
	assert.Equal(t, 40, s.Percentage)
}

func TestParseCompleted(t *testing.T) {
	body := `{"job_id":"abc","status":"completed","progress":{"total":5,"completed":5,"failed":0,"in_progress":0},"extra":true}`
	p, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, JobID("abc"), p.JobID)
	assert.True(t, p.Status.Terminal())
	assert.JSONEq(t, body, string(p.Raw), "raw body should be kept untouched")

	s := p.Snapshot()
	assert.Equal(t, 0, s.Pending)
	assert.Equal(t, 100, s.Percentage)
}

func TestParseMissingFieldsDefaultToZero(t *testing.T) {
	p, err := Parse([]byte(`{"status":"pending"}`))
	require.NoError(t, err)
	assert.Equal(t, Progress{}, p.Progress)

	p, err = Parse([]byte(`{"progress":{"total":3}}`))
	require.NoError(t, err)
	assert.Equal(t, JobStatus(""), p.Status)
	assert.False(t, p.Status.Terminal())
	assert.Equal(t, 3, p.Snapshot().Pending)

	p, err = Parse([]byte(`{"status":"pending","progress":null}`))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Snapshot().Total)
}

func TestParseUnknownStatusIsNotTerminal(t *testing.T) {
	p, err := Parse([]byte(`{"status":"queued"}`))
	require.NoError(t, err)
	assert.False(t, p.Status.Terminal())
}

func TestParseMalformed(t *testing.T) {
	bodies := []string{
		``,
		`not json`,
		`null`,
		`[1,2,3]`,
		`"completed"`,
		`{"status":42}`,
		`{"progress":"lots"}`,
		`{"progress":{"total":"ten"}}`,
	}
	for _, b := range bodies {
		p, err := Parse([]byte(b))
		assert.Nil(t, p, "body %q", b)
		require.Error(t, err, "body %q", b)
		assert.True(t, errors.Is(err, ErrMalformedResponse), "body %q should be a malformed response", b)
	}
}
