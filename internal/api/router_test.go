package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/config"
	"yuzu/voicechat/internal/health"
	"yuzu/voicechat/internal/history"
	"yuzu/voicechat/internal/orchestrator"
	"yuzu/voicechat/internal/store"
)

type mockLLM struct{}

func (mockLLM) Complete(ctx context.Context, text string, _ []history.Entry) (string, error) {
	return "echo: " + text, nil
}

type mockTTS struct{}

func (mockTTS) Synthesize(ctx context.Context, text, voice string) (audio.Clip, error) {
	return audio.Clip{Encoding: audio.RawPCM16LE, SampleRate: 24000, Channels: 1, Data: make([]byte, 4)}, nil
}

type closedBridges struct{ ids []string }

func (c *closedBridges) CloseSession(id string) { c.ids = append(c.ids, id) }

func newTestServer(t *testing.T) (*httptest.Server, *Handlers, *closedBridges) {
	t.Helper()
	var cfg config.Config
	cfg.Session.DefaultVoice = "alloy"
	cfg.Bridge.TokenSecret = "s3cret"
	cfg.Bridge.TokenTTLMin = 10
	mgr := orchestrator.NewManager(orchestrator.Options{
		RemoteTimeout: time.Second,
		LLM:           mockLLM{},
		TTS:           mockTTS{},
	})
	t.Cleanup(mgr.CloseAll)
	br := &closedBridges{}
	h := NewHandlers(cfg, store.New(), mgr, br, nil)
	srv := httptest.NewServer(NewRouter(h, ""))
	t.Cleanup(srv.Close)
	return srv, h, br
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestUnknownSession404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/end", "/turns", "/ai-turn", "/bridge-token"} {
		resp := post(t, srv.URL+"/sessions/unknown"+path, `{"text":"hi"}`)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
	for _, path := range []string{"/events", "/state"} {
		resp, err := http.Get(srv.URL + "/sessions/unknown" + path)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _, br := newTestServer(t)

	var created struct {
		SessionID   string `json:"session_id"`
		Voice       string `json:"voice"`
		BridgeToken string `json:"bridge_token"`
	}
	resp := post(t, srv.URL+"/sessions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	decode(t, resp, &created)
	if created.SessionID == "" || created.BridgeToken == "" || created.Voice != "alloy" {
		t.Fatalf("unexpected create response: %+v", created)
	}
	base := srv.URL + "/sessions/" + created.SessionID

	if resp := post(t, base+"/turns", `{"text":"   "}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank turn: expected 400, got %d", resp.StatusCode)
	}
	if resp := post(t, base+"/turns", `{"text":"hello"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("turn: expected 202, got %d", resp.StatusCode)
	}

	// Without a bridge, playback completes immediately and the turn finishes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(base + "/state")
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		var snap orchestrator.Snapshot
		decode(t, resp, &snap)
		resp.Body.Close()
		if snap.State == orchestrator.Idle && len(snap.History) == 2 {
			if snap.History[1].Text != "echo: hello" {
				t.Fatalf("unexpected history: %+v", snap.History)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn did not finish: %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var tok struct{ BridgeToken string `json:"bridge_token"` }
	resp = post(t, base+"/bridge-token", "")
	decode(t, resp, &tok)
	if tok.BridgeToken == "" {
		t.Fatalf("expected a fresh bridge token")
	}

	if resp := post(t, base+"/end", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("end: %d", resp.StatusCode)
	}
	if len(br.ids) != 1 || br.ids[0] != created.SessionID {
		t.Fatalf("bridge not closed: %v", br.ids)
	}
	if resp := post(t, base+"/turns", `{"text":"again"}`); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("turn after end: expected 404, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(base + "/events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var ev struct {
		Events []struct{ Type string `json:"type"` } `json:"events"`
	}
	decode(t, resp2, &ev)
	resp2.Body.Close()
	if len(ev.Events) == 0 || ev.Events[0].Type != "session_created" || ev.Events[len(ev.Events)-1].Type != "session_ended" {
		t.Fatalf("unexpected events: %+v", ev.Events)
	}
}

func TestReadyz(t *testing.T) {
	srv, h, _ := newTestServer(t)

	h.Ready = func(ctx context.Context) health.HealthStatus {
		return health.HealthStatus{OK: false, Checks: []health.CheckResult{{Name: "openai", Error: "down"}}}
	}
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
