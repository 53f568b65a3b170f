package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/logging"
)

// OpenAI speech returns 24kHz mono for the pcm format.
const openAIPCMRate = 24000

type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	Format       string // mp3 | pcm
	DefaultVoice string
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
}

// OpenAI synthesizes through /audio/speech.
type OpenAI struct {
	api    *openai.Client
	model  string
	format string
	voice  string
	log    zerolog.Logger
}

func NewOpenAI(o OpenAIOptions) (*OpenAI, error) {
	if o.APIKey == "" {
		return nil, apperr.MissingConfig("OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(o.APIKey)
	if o.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.BaseURL, "/")
	}
	if o.HTTPClient != nil {
		cfg.HTTPClient = o.HTTPClient
	}
	format := strings.ToLower(o.Format)
	if format == "" {
		format = "mp3"
	}
	if format != "mp3" && format != "pcm" {
		return nil, &apperr.ConfigurationError{Key: "TTS_FORMAT", Reason: fmt.Sprintf("unsupported format %q", o.Format)}
	}
	model := o.Model
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	voice := o.DefaultVoice
	if voice == "" {
		voice = "alloy"
	}
	lg := logging.Nop()
	if o.Logger != nil {
		lg = logging.Component(*o.Logger, "tts")
	}
	return &OpenAI{api: openai.NewClientWithConfig(cfg), model: model, format: format, voice: voice, log: lg}, nil
}

func (c *OpenAI) Synthesize(ctx context.Context, text, voice string) (audio.Clip, error) {
	if voice == "" {
		voice = c.voice
	}
	start := time.Now()
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormat(c.format),
	})
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("openai", "error").Inc()
		return audio.Clip{}, remoteError(ctx, "openai", err)
	}
	defer resp.Close()
	body, err := io.ReadAll(resp)
	ttsTotalDurationMS.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("openai", "error").Inc()
		return audio.Clip{}, remoteError(ctx, "openai", err)
	}
	ttsSynthesisTotal.WithLabelValues("openai", "ok").Inc()
	c.log.Debug().Str("voice", voice).Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("synthesized")
	if c.format == "pcm" {
		return audio.Clip{Encoding: audio.RawPCM16LE, SampleRate: openAIPCMRate, Channels: 1, Data: body}, nil
	}
	return audio.Clip{Encoding: audio.Compressed, Data: body}, nil
}

func remoteError(ctx context.Context, provider string, err error) error {
	op := "synthesize/" + provider
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Remote("tts", op, 0, fmt.Errorf("%w: %v", apperr.ErrTimeout, err))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Remote("tts", op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperr.Remote("tts", op, reqErr.HTTPStatusCode, err)
	}
	return apperr.Remote("tts", op, 0, err)
}
