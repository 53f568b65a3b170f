package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"yuzu/voicechat/internal/apperr"
)

type Config struct {
	Server struct {
		Port        string
		LogLevel    string
		LogFormat   string
		MetricsAddr string
	}
	OpenAI struct {
		APIKey          string
		BaseURL         string
		ChatModel       string
		TTSModel        string
		STTModel        string
		Language        string
		AzureEndpoint   string
		AzureAPIVersion string
	}
	Eleven struct {
		APIKey  string
		VoiceID string
		ModelID string
		BaseURL string
	}
	TTS struct {
		Provider string // openai | elevenlabs
		Format   string // mp3 | pcm
	}
	Session struct {
		DefaultVoice           string
		AIVoice                string
		MaxReplyChars          int
		HistoryCap             int
		ContextWindow          int
		RefreshIntervalSeconds int
		HeartbeatDelaySeconds  int
		RemoteTimeoutSeconds   int
		BridgeTimeoutSeconds   int
		WelcomeText            string
		PromptFile             string
	}
	Bridge struct {
		TokenSecret     string
		TokenSkewSecs   int
		TokenTTLMin     int
		MaxMessageBytes int64
		AllowedOrigin   string
		InputSampleRate int
	}
	GRPC struct {
		Addr string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.metrics_addr", ":8082")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.chat_model", "gpt-4o")
	v.SetDefault("openai.tts_model", "gpt-4o-mini-tts")
	v.SetDefault("openai.stt_model", "whisper-1")
	v.SetDefault("openai.azure_api_version", "2024-02-15-preview")

	v.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io/v1")

	v.SetDefault("tts.provider", "openai")
	v.SetDefault("tts.format", "mp3")

	v.SetDefault("session.default_voice", "alloy")
	v.SetDefault("session.ai_voice", "nova")
	v.SetDefault("session.max_reply_chars", 200)
	v.SetDefault("session.history_cap", 100)
	v.SetDefault("session.context_window", 20)
	v.SetDefault("session.refresh_interval_seconds", 30)
	v.SetDefault("session.heartbeat_delay_seconds", 10)
	v.SetDefault("session.remote_timeout_seconds", 30)
	v.SetDefault("session.bridge_timeout_seconds", 5)
	v.SetDefault("session.welcome_text", "Hello! I'm listening. What would you like to talk about?")

	v.SetDefault("bridge.token_skew_secs", 60)
	v.SetDefault("bridge.token_ttl_min", 720)
	v.SetDefault("bridge.max_message_bytes", 1024*1024)
	v.SetDefault("bridge.allowed_origin", "*")
	v.SetDefault("bridge.input_sample_rate", 16000)

	v.SetDefault("grpc.addr", ":9090")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")
	v.BindEnv("server.metrics_addr", "METRICS_ADDR")

	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("openai.chat_model", "OPENAI_MODEL")
	v.BindEnv("openai.tts_model", "OPENAI_TTS_MODEL")
	v.BindEnv("openai.stt_model", "OPENAI_STT_MODEL")
	v.BindEnv("openai.language", "OPENAI_STT_LANGUAGE")
	v.BindEnv("openai.azure_endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("openai.azure_api_version", "AZURE_OPENAI_API_VERSION")

	v.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	v.BindEnv("elevenlabs.voice_id", "ELEVENLABS_VOICE_ID")
	v.BindEnv("elevenlabs.model_id", "ELEVENLABS_MODEL_ID")
	v.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")

	v.BindEnv("tts.provider", "TTS_PROVIDER")
	v.BindEnv("tts.format", "TTS_FORMAT")

	v.BindEnv("session.default_voice", "SESSION_DEFAULT_VOICE")
	v.BindEnv("session.ai_voice", "SESSION_AI_VOICE")
	v.BindEnv("session.max_reply_chars", "SESSION_MAX_REPLY_CHARS")
	v.BindEnv("session.history_cap", "SESSION_HISTORY_CAP")
	v.BindEnv("session.context_window", "SESSION_CONTEXT_WINDOW")
	v.BindEnv("session.refresh_interval_seconds", "SESSION_REFRESH_INTERVAL_SECONDS")
	v.BindEnv("session.heartbeat_delay_seconds", "SESSION_HEARTBEAT_DELAY_SECONDS")
	v.BindEnv("session.remote_timeout_seconds", "SESSION_REMOTE_TIMEOUT_SECONDS")
	v.BindEnv("session.bridge_timeout_seconds", "SESSION_BRIDGE_TIMEOUT_SECONDS")
	v.BindEnv("session.welcome_text", "SESSION_WELCOME_TEXT")
	v.BindEnv("session.prompt_file", "SESSION_PROMPT_FILE")

	v.BindEnv("bridge.token_secret", "BRIDGE_TOKEN_SECRET")
	v.BindEnv("bridge.token_skew_secs", "BRIDGE_TOKEN_SKEW_SECS")
	v.BindEnv("bridge.token_ttl_min", "BRIDGE_TOKEN_TTL_MIN")
	v.BindEnv("bridge.max_message_bytes", "BRIDGE_MAX_MESSAGE_BYTES")
	v.BindEnv("bridge.allowed_origin", "ALLOWED_ORIGIN")
	v.BindEnv("bridge.input_sample_rate", "BRIDGE_INPUT_SAMPLE_RATE")

	v.BindEnv("grpc.addr", "GRPC_ADDR")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")
	c.Server.MetricsAddr = v.GetString("server.metrics_addr")

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.BaseURL = v.GetString("openai.base_url")
	c.OpenAI.ChatModel = v.GetString("openai.chat_model")
	c.OpenAI.TTSModel = v.GetString("openai.tts_model")
	c.OpenAI.STTModel = v.GetString("openai.stt_model")
	c.OpenAI.Language = v.GetString("openai.language")
	c.OpenAI.AzureEndpoint = v.GetString("openai.azure_endpoint")
	c.OpenAI.AzureAPIVersion = v.GetString("openai.azure_api_version")

	c.Eleven.APIKey = v.GetString("elevenlabs.api_key")
	c.Eleven.VoiceID = v.GetString("elevenlabs.voice_id")
	c.Eleven.ModelID = v.GetString("elevenlabs.model_id")
	c.Eleven.BaseURL = v.GetString("elevenlabs.base_url")

	c.TTS.Provider = strings.ToLower(v.GetString("tts.provider"))
	c.TTS.Format = strings.ToLower(v.GetString("tts.format"))

	c.Session.DefaultVoice = v.GetString("session.default_voice")
	c.Session.AIVoice = v.GetString("session.ai_voice")
	c.Session.MaxReplyChars = v.GetInt("session.max_reply_chars")
	c.Session.HistoryCap = v.GetInt("session.history_cap")
	c.Session.ContextWindow = v.GetInt("session.context_window")
	c.Session.RefreshIntervalSeconds = v.GetInt("session.refresh_interval_seconds")
	c.Session.HeartbeatDelaySeconds = v.GetInt("session.heartbeat_delay_seconds")
	c.Session.RemoteTimeoutSeconds = v.GetInt("session.remote_timeout_seconds")
	c.Session.BridgeTimeoutSeconds = v.GetInt("session.bridge_timeout_seconds")
	c.Session.WelcomeText = v.GetString("session.welcome_text")
	c.Session.PromptFile = v.GetString("session.prompt_file")

	c.Bridge.TokenSecret = v.GetString("bridge.token_secret")
	c.Bridge.TokenSkewSecs = v.GetInt("bridge.token_skew_secs")
	c.Bridge.TokenTTLMin = v.GetInt("bridge.token_ttl_min")
	c.Bridge.MaxMessageBytes = v.GetInt64("bridge.max_message_bytes")
	c.Bridge.AllowedOrigin = v.GetString("bridge.allowed_origin")
	c.Bridge.InputSampleRate = v.GetInt("bridge.input_sample_rate")

	c.GRPC.Addr = v.GetString("grpc.addr")

	return c
}

// Validate reports the first missing credential. Callers treat it as fatal.
func (c Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return apperr.MissingConfig("OPENAI_API_KEY")
	}
	switch c.TTS.Provider {
	case "openai":
	case "elevenlabs":
		if c.Eleven.APIKey == "" {
			return apperr.MissingConfig("ELEVENLABS_API_KEY")
		}
	default:
		return &apperr.ConfigurationError{Key: "TTS_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.TTS.Provider)}
	}
	if c.TTS.Format != "mp3" && c.TTS.Format != "pcm" {
		return &apperr.ConfigurationError{Key: "TTS_FORMAT", Reason: fmt.Sprintf("unsupported format %q", c.TTS.Format)}
	}
	if c.Session.RemoteTimeoutSeconds <= 0 {
		return &apperr.ConfigurationError{Key: "SESSION_REMOTE_TIMEOUT_SECONDS", Reason: "must be positive"}
	}
	return nil
}

// RemoteTimeout bounds every LLM/TTS/STT call.
func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Session.RemoteTimeoutSeconds) * time.Second
}

// BridgeTimeout bounds a single push to the playback bridge.
func (c Config) BridgeTimeout() time.Duration {
	return time.Duration(c.Session.BridgeTimeoutSeconds) * time.Second
}

func toString(v any) string { return fmt.Sprint(v) }
