package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/logging"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

type ElevenLabsOptions struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	DefaultVoice string // ElevenLabs voice id
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
}

// ElevenLabs synthesizes through the non-streaming REST endpoint and asks for WAV.
type ElevenLabs struct {
	httpc   *http.Client
	baseURL string
	apiKey  string
	modelID string
	voice   string
	log     zerolog.Logger
}

func NewElevenLabs(o ElevenLabsOptions) (*ElevenLabs, error) {
	if o.APIKey == "" {
		return nil, apperr.MissingConfig("ELEVENLABS_API_KEY")
	}
	base := o.BaseURL
	if base == "" {
		base = elevenLabsBaseURL
	}
	httpc := o.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	lg := logging.Nop()
	if o.Logger != nil {
		lg = logging.Component(*o.Logger, "tts")
	}
	return &ElevenLabs{httpc: httpc, baseURL: strings.TrimRight(base, "/"), apiKey: o.APIKey, modelID: o.ModelID, voice: o.DefaultVoice, log: lg}, nil
}

// Synthesize maps OpenAI voice names to the configured default voice id, since
// ElevenLabs ids are opaque.
func (c *ElevenLabs) Synthesize(ctx context.Context, text, voice string) (audio.Clip, error) {
	if voice == "" || KnownVoice(voice) {
		voice = c.voice
	}
	if voice == "" {
		return audio.Clip{}, apperr.MissingConfig("ELEVENLABS_VOICE_ID")
	}
	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, voice)
	body := map[string]any{"text": text}
	if c.modelID != "" {
		body["model_id"] = c.modelID
	}
	reqBytes, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return audio.Clip{}, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("accept", "audio/wav")
	req.Header.Set("content-type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("elevenlabs", "error").Inc()
		return audio.Clip{}, remoteError(ctx, "elevenlabs", err)
	}
	defer resp.Body.Close()
	ttsElevenLabsLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		ttsSynthesisTotal.WithLabelValues("elevenlabs", "http").Inc()
		return audio.Clip{}, apperr.Remote("tts", "synthesize/elevenlabs", resp.StatusCode, fmt.Errorf("body=%s", string(b)))
	}
	data, err := io.ReadAll(resp.Body)
	ttsTotalDurationMS.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("elevenlabs", "error").Inc()
		return audio.Clip{}, remoteError(ctx, "elevenlabs", err)
	}
	ttsSynthesisTotal.WithLabelValues("elevenlabs", "ok").Inc()
	c.log.Debug().Str("voice", voice).Int("bytes", len(data)).Dur("took", time.Since(start)).Msg("synthesized")

	// The API may ignore accept and answer with MP3.
	if audio.IsWAV(data) {
		return audio.ParseWAV(data)
	}
	return audio.Clip{Encoding: audio.Compressed, Data: data}, nil
}
