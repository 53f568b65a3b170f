package bridge

import (
	"context"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/history"
	"yuzu/voicechat/internal/orchestrator"
)

// Outbound is a message pushed to the playback client.
type Outbound struct {
	Type         string          `json:"type"`
	Speaker      history.Speaker `json:"speaker,omitempty"`
	Text         string          `json:"text,omitempty"`
	Samples      []float32       `json:"samples,omitempty"`
	SampleRate   int             `json:"sample_rate,omitempty"`
	Channels     int             `json:"channels,omitempty"`
	PlaybackRate float64         `json:"playback_rate,omitempty"`
	TurnKind     int             `json:"turn_kind,omitempty"`
}

// Inbound is a message sent by the playback client.
type Inbound struct {
	Type     string `json:"type"`
	TurnKind int    `json:"turn_kind,omitempty"`
	Text     string `json:"text,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

const (
	TypeAddMessage        = "add_message"
	TypePlayAudio         = "play_audio"
	TypePlaybackCompleted = "playback_completed"
	TypeHumanTurn         = "human_turn"
	TypeAiTurn            = "ai_turn"
)

// Conn is one playback client. It satisfies orchestrator.Bridge.
type Conn struct {
	sid string
	ws  *ws.Conn
	log zerolog.Logger
}

var _ orchestrator.Bridge = (*Conn)(nil)

func newConn(sid string, c *ws.Conn, lg zerolog.Logger) *Conn {
	return &Conn{sid: sid, ws: c, log: lg}
}

func (c *Conn) AddMessage(ctx context.Context, speaker history.Speaker, text string) error {
	return c.send(ctx, Outbound{Type: TypeAddMessage, Speaker: speaker, Text: text})
}

func (c *Conn) PlayAudio(ctx context.Context, s audio.Samples, rate float64, kind orchestrator.TurnKind) error {
	return c.send(ctx, Outbound{
		Type:         TypePlayAudio,
		Samples:      s.Samples,
		SampleRate:   s.SampleRate,
		Channels:     s.Channels,
		PlaybackRate: rate,
		TurnKind:     int(kind),
	})
}

func (c *Conn) send(ctx context.Context, m Outbound) error {
	if err := wsjson.Write(ctx, c.ws, m); err != nil {
		metricMessages.WithLabelValues("out", "error").Inc()
		return err
	}
	metricMessages.WithLabelValues("out", m.Type).Inc()
	c.log.Debug().Str("type", m.Type).Int("turn_kind", m.TurnKind).Msg("pushed")
	return nil
}

func (c *Conn) close(code ws.StatusCode, reason string) {
	_ = c.ws.Close(code, reason)
}
