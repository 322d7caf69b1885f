package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drewpri411/kaathumaaa/pkg/agent"
	llmfake "github.com/drewpri411/kaathumaaa/pkg/ai/llm/fake"
	sttfake "github.com/drewpri411/kaathumaaa/pkg/ai/stt/fake"
	ttsfake "github.com/drewpri411/kaathumaaa/pkg/ai/tts/fake"
	vadfake "github.com/drewpri411/kaathumaaa/pkg/ai/vad/fake"
	"github.com/drewpri411/kaathumaaa/pkg/backchannel"
	"github.com/drewpri411/kaathumaaa/pkg/config"
)

func fakeFactory() (agent.Collaborators, error) {
	return agent.Collaborators{
		VAD: vadfake.NewFakeVAD(0),
		STT: sttfake.NewFakeSTT(),
		LLM: llmfake.NewFakeLLM(""),
		TTS: ttsfake.NewFakeTTS(1),
	}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(config.Default(), fakeFactory, backchannel.NewStaticLibrary(), nil)
}

func newSession(t *testing.T, id string) *agent.Session {
	t.Helper()
	c, err := fakeFactory()
	if err != nil {
		t.Fatal(err)
	}
	s, err := agent.NewSession(id, config.Default(), c, backchannel.NewStaticLibrary(), nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestSessionListAndLookup(t *testing.T) {
	srv := testServer(t)
	srv.registry.Add(newSession(t, "abc"))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"abc"`) {
		t.Errorf("list body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d", rec.Code)
	}
	var snap agent.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.ID != "abc" || snap.State != "IDLE" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kaathumaaa_sessions_active") {
		t.Error("metrics output missing session gauge")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatal("new registry should be empty")
	}

	s := newSession(t, "one")
	r.Add(s)
	if got, ok := r.Get("one"); !ok || got != s {
		t.Error("Get should return the added session")
	}
	if snaps := r.Snapshots(); len(snaps) != 1 || snaps[0].ID != "one" {
		t.Errorf("snapshots = %+v", snaps)
	}

	r.Remove("one")
	if _, ok := r.Get("one"); ok || r.Len() != 0 {
		t.Error("Remove should drop the session")
	}
}
