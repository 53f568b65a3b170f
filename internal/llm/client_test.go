package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/history"
)

type chatReq struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestServer(t *testing.T, reply string, status int, seen *chatReq) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
		})
	}))
}

func TestCompleteFramesHistory(t *testing.T) {
	var seen chatReq
	srv := newTestServer(t, "  Sunny and warm.  ", http.StatusOK, &seen)
	defer srv.Close()

	c, err := New(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o", MaxReplyChars: 100})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	hist := []history.Entry{{Speaker: history.Human, Text: "hi"}, {Speaker: history.AI, Text: "hello"}}
	got, err := c.Complete(context.Background(), "What's the weather?", hist)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "Sunny and warm." {
		t.Fatalf("unexpected reply %q", got)
	}
	if seen.Model != "gpt-4o" {
		t.Fatalf("unexpected model %q", seen.Model)
	}
	roles := make([]string, len(seen.Messages))
	for i, m := range seen.Messages {
		roles[i] = m.Role
	}
	if strings.Join(roles, ",") != "system,user,assistant,user" {
		t.Fatalf("unexpected roles %v", roles)
	}
	if !strings.Contains(seen.Messages[0].Content, "100 characters") {
		t.Fatalf("expected reply limit in system message, got %q", seen.Messages[0].Content)
	}
	if last := seen.Messages[len(seen.Messages)-1].Content; last != "What's the weather?" {
		t.Fatalf("expected utterance last, got %q", last)
	}
}

func TestCompleteHTTPErrorIsRemote(t *testing.T) {
	srv := newTestServer(t, "", http.StatusInternalServerError, nil)
	defer srv.Close()
	c, _ := New(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})

	_, err := c.Complete(context.Background(), "hello", nil)
	var re *apperr.RemoteServiceError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteServiceError, got %v", err)
	}
	if re.Service != "llm" || re.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected error fields %+v", re)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c, _ := New(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, "hello", nil)
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{})
	var ce *apperr.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestClampReply(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"Short.", 100, "Short."},
		{"First one. Second one is long.", 15, "First one."},
		{"no boundary here at all", 8, "no bound"},
		{"안녕하세요. 반갑습니다.", 7, "안녕하세요."},
		{"anything", 0, "anything"},
	}
	for _, tc := range cases {
		if got := clampReply(tc.in, tc.max); got != tc.want {
			t.Errorf("clampReply(%q,%d)=%q want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
