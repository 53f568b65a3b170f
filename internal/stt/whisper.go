// Package stt transcribes recorded microphone clips into human turns.
package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/logging"
)

// ErrEmptyTranscript is returned when the recognizer heard nothing.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// Transcriber converts a WAV clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string // ISO-639-1, empty lets the service detect
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Whisper is a Transcriber backed by /audio/transcriptions.
type Whisper struct {
	api      *openai.Client
	model    string
	language string
	log      zerolog.Logger
}

func NewWhisper(o Options) (*Whisper, error) {
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
	model := o.Model
	if model == "" {
		model = openai.Whisper1
	}
	lg := logging.Nop()
	if o.Logger != nil {
		lg = logging.Component(*o.Logger, "stt")
	}
	return &Whisper{api: openai.NewClientWithConfig(cfg), model: model, language: o.Language, log: lg}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if !audio.IsWAV(wav) {
		return "", apperr.Protocolf("stt: expected WAV payload (%d bytes)", len(wav))
	}
	metricAudioBytes.Add(float64(len(wav)))
	start := time.Now()
	tr, err := w.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: w.language,
	})
	metricFinalLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricTranscriptions.WithLabelValues("error").Inc()
		return "", remoteError(ctx, err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		metricEmptyFinalSkipped.Inc()
		return "", ErrEmptyTranscript
	}
	metricTranscriptions.WithLabelValues("ok").Inc()
	w.log.Debug().Int("chars", len(text)).Dur("took", time.Since(start)).Msg("transcribed")
	return text, nil
}

// WrapPCM accepts either a WAV file or raw 16-bit mono PCM at rate and returns WAV.
func WrapPCM(b []byte, rate int) []byte {
	if audio.IsWAV(b) {
		return b
	}
	return audio.EncodeWAV(audio.Clip{Encoding: audio.RawPCM16LE, SampleRate: rate, Channels: 1, Data: b})
}

func remoteError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Remote("stt", "transcribe", 0, fmt.Errorf("%w: %v", apperr.ErrTimeout, err))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Remote("stt", "transcribe", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperr.Remote("stt", "transcribe", reqErr.HTTPStatusCode, err)
	}
	return apperr.Remote("stt", "transcribe", 0, err)
}
