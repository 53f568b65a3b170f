// Package app builds the remote clients and session manager from Config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"yuzu/voicechat/internal/config"
	"yuzu/voicechat/internal/llm"
	"yuzu/voicechat/internal/orchestrator"
	"yuzu/voicechat/internal/prompt"
	"yuzu/voicechat/internal/stt"
	"yuzu/voicechat/internal/tts"
)

// Deps are the long-lived collaborators shared by every session.
type Deps struct {
	Persona *prompt.Persona
	LLM     llm.Client
	TTS     tts.Client
	STT     stt.Transcriber
	Manager *orchestrator.Manager
}

// Build wires a validated Config into clients and a session manager.
func Build(cfg config.Config, lg *zerolog.Logger, rec orchestrator.Recorder) (*Deps, error) {
	persona := prompt.Default()
	if cfg.Session.PromptFile != "" {
		p, err := prompt.Load(cfg.Session.PromptFile)
		if err != nil {
			return nil, err
		}
		persona = p
	}

	chat, err := llm.New(llm.Options{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		Model:           cfg.OpenAI.ChatModel,
		AzureEndpoint:   cfg.OpenAI.AzureEndpoint,
		AzureAPIVersion: cfg.OpenAI.AzureAPIVersion,
		MaxReplyChars:   cfg.Session.MaxReplyChars,
		Persona:         persona,
		Logger:          lg,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	speech, err := NewTTS(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}

	whisper, err := stt.NewWhisper(stt.Options{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.STTModel,
		Language: cfg.OpenAI.Language,
		Logger:   lg,
	})
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}

	welcome := cfg.Session.WelcomeText
	if cfg.Session.PromptFile != "" && persona.Welcome != "" {
		welcome = persona.Welcome
	}
	mgr := orchestrator.NewManager(orchestrator.Options{
		DefaultVoice:      cfg.Session.DefaultVoice,
		AIVoice:           cfg.Session.AIVoice,
		WelcomeText:       welcome,
		HistoryCap:        cfg.Session.HistoryCap,
		ContextWindow:     cfg.Session.ContextWindow,
		RemoteTimeout:     cfg.RemoteTimeout(),
		BridgeTimeout:     cfg.BridgeTimeout(),
		HeartbeatDelay:    time.Duration(cfg.Session.HeartbeatDelaySeconds) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Session.RefreshIntervalSeconds) * time.Second,
		LLM:               chat,
		TTS:               speech,
		Recorder:          rec,
		OnTick:            refreshHook(lg),
		Logger:            lg,
	})
	return &Deps{Persona: persona, LLM: chat, TTS: speech, STT: whisper, Manager: mgr}, nil
}

// NewTTS selects the speech provider named by cfg.TTS.Provider.
func NewTTS(cfg config.Config, lg *zerolog.Logger) (tts.Client, error) {
	switch cfg.TTS.Provider {
	case "", "openai":
		return tts.NewOpenAI(tts.OpenAIOptions{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.TTSModel,
			Format:       cfg.TTS.Format,
			DefaultVoice: cfg.Session.DefaultVoice,
			Logger:       lg,
		})
	case "elevenlabs":
		return tts.NewElevenLabs(tts.ElevenLabsOptions{
			APIKey:       cfg.Eleven.APIKey,
			BaseURL:      cfg.Eleven.BaseURL,
			ModelID:      cfg.Eleven.ModelID,
			DefaultVoice: cfg.Eleven.VoiceID,
			Logger:       lg,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.TTS.Provider)
	}
}

// refreshHook only logs; autonomous pushes would start from here.
func refreshHook(lg *zerolog.Logger) orchestrator.TickFunc {
	if lg == nil {
		return nil
	}
	l := lg.With().Str("component", "refresh").Logger()
	return func(ctx context.Context, sessionID string) {
		l.Debug().Str("sid", sessionID).Msg("idle tick")
	}
}
