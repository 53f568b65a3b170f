package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yuzu/voicechat/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Client is used for every check; tests swap it.
var Client = &http.Client{Timeout: 10 * time.Second}

// CheckAll checks the chat/speech API and, when selected, ElevenLabs.
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{checkOpenAI(ctx, cfg)}
	if cfg.TTS.Provider == "elevenlabs" {
		checks = append(checks, checkElevenLabs(ctx, cfg))
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

// checkOpenAI lists models, the cheapest authenticated call.
func checkOpenAI(ctx context.Context, cfg config.Config) CheckResult {
	if cfg.OpenAI.APIKey == "" {
		return CheckResult{Name: "openai", Error: "OPENAI_API_KEY not set"}
	}
	base := strings.TrimRight(cfg.OpenAI.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return checkEndpoint(ctx, "openai", base+"/models", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
	}, nil)
}

// checkElevenLabs looks up the configured voice, which also validates the key.
func checkElevenLabs(ctx context.Context, cfg config.Config) CheckResult {
	if cfg.Eleven.APIKey == "" {
		return CheckResult{Name: "elevenlabs", Error: "ELEVENLABS_API_KEY not set"}
	}
	if cfg.Eleven.VoiceID == "" {
		return CheckResult{Name: "elevenlabs", Error: "ELEVENLABS_VOICE_ID not set"}
	}
	base := strings.TrimRight(cfg.Eleven.BaseURL, "/")
	if base == "" {
		base = "https://api.elevenlabs.io/v1"
	}
	return checkEndpoint(ctx, "elevenlabs", base+"/voices/"+cfg.Eleven.VoiceID, func(r *http.Request) {
		r.Header.Set("xi-api-key", cfg.Eleven.APIKey)
	}, map[int]string{http.StatusNotFound: fmt.Sprintf("voice ID %q not found", cfg.Eleven.VoiceID)})
}

func checkEndpoint(ctx context.Context, name, url string, authorize func(*http.Request), known map[int]string) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	authorize(req)

	resp, err := Client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()
	result.Latency = time.Since(start)

	if msg, ok := known[resp.StatusCode]; ok {
		result.Error = msg
		return result
	}
	switch resp.StatusCode {
	case http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		result.OK = true
	case http.StatusUnauthorized:
		result.Error = "invalid API key (401)"
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return result
}
