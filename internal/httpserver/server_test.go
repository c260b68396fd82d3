package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticStats struct {
	stats model.PipelineStats
}

func (s staticStats) Stats() model.PipelineStats { return s.stats }
func (s staticStats) SourceName() string         { return "file" }

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	srv := NewServer("", staticStats{stats: model.PipelineStats{
		LinesRead:  10,
		Candidates: 6,
		Events:     4,
		Suppressed: 1,
		Delivered:  2,
		Failed:     1,
		SeenKeys:   3,
	}})
	srv.startTime = time.Now()
	return srv, srv.routes()
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["source"] != "file" {
		t.Errorf("health source = %v, want file", body["source"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d", w.Code, http.StatusOK)
	}

	var got model.PipelineStats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if got.LinesRead != 10 || got.Delivered != 2 || got.Failed != 1 || got.SeenKeys != 3 {
		t.Errorf("stats = %+v", got)
	}
}

func TestStartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", staticStats{})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/health", srv.Addr()))
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
