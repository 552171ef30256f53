package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/config"
	"github.com/ahump20/Sandlot-Sluggers/internal/dispatch"
	"github.com/ahump20/Sandlot-Sluggers/internal/model/modeltest"
	"github.com/ahump20/Sandlot-Sluggers/internal/runner"
	"github.com/ahump20/Sandlot-Sluggers/internal/session"
)

func newTestHandler(cfg config.ServerConfig) http.Handler {
	fake := modeltest.NewFake(4)
	sessions := dispatch.NewRegistry(func() (*session.Session, error) {
		return session.New(fake, fake, fake, session.Config{Window: 2}), nil
	})
	seed := func() ([]codec.Frame, error) {
		return []codec.Frame{codec.NewFrame(fake.FrameW, fake.FrameH), codec.NewFrame(fake.FrameW, fake.FrameH)}, nil
	}
	return New(cfg, runner.NewRegistry(), sessions, seed)
}

func TestHealthz(t *testing.T) {
	var cfg config.ServerConfig
	cfg.SetDefaults()
	srv := httptest.NewServer(newTestHandler(cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestStateEndpoint(t *testing.T) {
	var cfg config.ServerConfig
	cfg.SetDefaults()
	srv := httptest.NewServer(newTestHandler(cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st StateSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Runners != 0 || st.Sessions != 0 {
		t.Fatalf("snapshot = %+v; want zero runners and sessions", st)
	}
}

func TestMetricsOnSharedPort(t *testing.T) {
	var cfg config.ServerConfig
	cfg.SetDefaults()
	srv := httptest.NewServer(newTestHandler(cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestPlayRequiresClientKey(t *testing.T) {
	var cfg config.ServerConfig
	cfg.SetDefaults()
	cfg.ClientKey = "secret"
	srv := httptest.NewServer(newTestHandler(cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/play")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without key = %d; want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/play?key=secret", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("correct key rejected")
	}
}
