package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/pipeline"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockPipeline struct {
	result       *pipeline.RunResult
	err          error
	calls        int
	lastQuestion string
}

func (m *mockPipeline) Run(ctx context.Context, question string) (*pipeline.RunResult, error) {
	m.calls++
	m.lastQuestion = question
	return m.result, m.err
}

type mockHistory struct {
	runs        []*history.Run
	run         *history.Run
	getErr      error
	feedbackErr error

	feedbackID      string
	feedbackScore   int
	feedbackComment string
}

func (m *mockHistory) Recent(ctx context.Context, limit int) ([]*history.Run, error) {
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *mockHistory) Get(ctx context.Context, id string) (*history.Run, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.run, nil
}

func (m *mockHistory) UpdateFeedback(ctx context.Context, id string, score int, comment string) error {
	m.feedbackID = id
	m.feedbackScore = score
	m.feedbackComment = comment
	return m.feedbackErr
}

func newTestServer(t *testing.T, pl Pipeline, hist History, ready func(context.Context) bool) *Server {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	srv, err := New(Config{
		Logger:       testLogger(t),
		HTTPListener: listener,
		Pipeline:     pl,
		History:      hist,
		Ready:        ready,
	})
	require.NoError(t, err)
	return srv
}

func TestAskHandler(t *testing.T) {
	pl := &mockPipeline{
		result: &pipeline.RunResult{
			RunID:     "run-1",
			Question:  "What were total deposits in January?",
			FinalText: "**Answer:** Total deposits were 1,234.50 USD.",
		},
	}
	srv := newTestServer(t, pl, &mockHistory{}, nil)

	body := bytes.NewBufferString(`{"question": "What were total deposits in January?"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, pl.calls)
	assert.Equal(t, "What were total deposits in January?", pl.lastQuestion)

	var got pipeline.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Contains(t, got.FinalText, "1,234.50 USD")
}

func TestAskHandlerRedactsBoundary(t *testing.T) {
	pl := &mockPipeline{
		result: &pipeline.RunResult{
			FinalText: "Contact 123-45-6789 for details.",
		},
	}
	srv := newTestServer(t, pl, &mockHistory{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"question": "q"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[SSN REDACTED]")
	assert.NotContains(t, rec.Body.String(), "123-45-6789")
}

func TestAskHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty question", body: `{"question": ""}`},
		{name: "malformed json", body: `{`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := &mockPipeline{}
			srv := newTestServer(t, pl, &mockHistory{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, pl.calls)
		})
	}
}

func TestAskHandlerPipelineError(t *testing.T) {
	pl := &mockPipeline{err: fmt.Errorf("model unavailable")}
	srv := newTestServer(t, pl, &mockHistory{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"question": "q"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "model unavailable")
}

func TestHistoryHandler(t *testing.T) {
	hist := &mockHistory{runs: []*history.Run{
		{ID: "run-1", Question: "q1"},
		{ID: "run-2", Question: "q2"},
	}}
	srv := newTestServer(t, &mockPipeline{}, hist, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Runs  []*history.Run `json:"runs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Runs, 2)
	assert.Equal(t, "run-1", got.Runs[0].ID)
}

func TestHistoryHandlerLimit(t *testing.T) {
	hist := &mockHistory{runs: []*history.Run{
		{ID: "run-1"}, {ID: "run-2"}, {ID: "run-3"},
	}}
	srv := newTestServer(t, &mockPipeline{}, hist, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	req = httptest.NewRequest(http.MethodGet, "/v1/history?limit=zero", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryShowHandler(t *testing.T) {
	hist := &mockHistory{run: &history.Run{ID: "run-1", Question: "q1"}}
	srv := newTestServer(t, &mockPipeline{}, hist, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/history/run-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"run-1"`)
}

func TestHistoryShowHandlerNotFound(t *testing.T) {
	hist := &mockHistory{getErr: history.ErrNotFound}
	srv := newTestServer(t, &mockPipeline{}, hist, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/history/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackHandler(t *testing.T) {
	hist := &mockHistory{}
	srv := newTestServer(t, &mockPipeline{}, hist, nil)

	body := `{"run_id": "run-1", "score": 4, "comment": "useful"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "run-1", hist.feedbackID)
	assert.Equal(t, 4, hist.feedbackScore)
	assert.Equal(t, "useful", hist.feedbackComment)
}

func TestFeedbackHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "missing run id", body: `{"score": 4}`, code: http.StatusBadRequest},
		{name: "score too low", body: `{"run_id": "x", "score": 0}`, code: http.StatusBadRequest},
		{name: "score too high", body: `{"run_id": "x", "score": 6}`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockPipeline{}, &mockHistory{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestFeedbackHandlerNotFound(t *testing.T) {
	hist := &mockHistory{feedbackErr: history.ErrNotFound}
	srv := newTestServer(t, &mockPipeline{}, hist, nil)

	body := `{"run_id": "missing", "score": 3}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &mockPipeline{}, &mockHistory{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestReadyz(t *testing.T) {
	ready := false
	srv := newTestServer(t, &mockPipeline{}, &mockHistory{}, func(ctx context.Context) bool {
		return ready
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigValidation(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	_, err = New(Config{Logger: testLogger(t), HTTPListener: listener, Pipeline: &mockPipeline{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history store is required")

	_, err = New(Config{Logger: testLogger(t), HTTPListener: listener, History: &mockHistory{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline is required")
}

func TestRunServesAndShutsDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := New(Config{
		Logger:       testLogger(t),
		HTTPListener: listener,
		Pipeline:     &mockPipeline{result: &pipeline.RunResult{}},
		History:      &mockHistory{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	addr := listener.Addr().String()
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get(fmt.Sprintf("http://%s/healthz", addr))
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cancel()
	select {
	case err := <-serverErrCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}
