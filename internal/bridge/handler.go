// Package bridge carries transcript lines and audio clips to a playback client
// over a websocket and feeds its completions and utterances back to the session.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/auth"
	"yuzu/voicechat/internal/config"
	"yuzu/voicechat/internal/logging"
	"yuzu/voicechat/internal/orchestrator"
	"yuzu/voicechat/internal/store"
	"yuzu/voicechat/internal/stt"
)

const detachTimeout = 2 * time.Second

// Sessions looks up live sessions. *orchestrator.Manager satisfies it.
type Sessions interface {
	Get(id string) (*orchestrator.Session, bool)
}

type Server struct {
	Cfg      config.Config
	Store    *store.Store
	Sessions Sessions
	Reg      *Registry
	STT      stt.Transcriber // nil disables binary frames
	log      zerolog.Logger
}

func NewServer(cfg config.Config, st *store.Store, sessions Sessions, reg *Registry, tr stt.Transcriber, logger *zerolog.Logger) *Server {
	lg := logging.Nop()
	if logger != nil {
		lg = logging.Component(*logger, "bridge")
	}
	return &Server{Cfg: cfg, Store: st, Sessions: sessions, Reg: reg, STT: tr, log: lg}
}

// HandleBridgeWS serves GET /ws/bridge?session_id=…
func (s *Server) HandleBridgeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	sess, ok := s.Sessions.Get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if _, _, err := auth.ValidateBridgeToken(s.Cfg.Bridge.TokenSecret, token, sessionID, time.Now(), s.Cfg.Bridge.TokenSkewSecs); err != nil {
		s.log.Warn().Err(err).Str("sid", sessionID).Msg("bridge auth rejected")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var opts *ws.AcceptOptions
	if o := s.Cfg.Bridge.AllowedOrigin; o != "" {
		opts = &ws.AcceptOptions{OriginPatterns: strings.Split(o, ",")}
	}
	c, err := ws.Accept(w, r, opts)
	if err != nil {
		s.log.Error().Err(err).Str("sid", sessionID).Msg("ws accept")
		return
	}
	if n := s.Cfg.Bridge.MaxMessageBytes; n > 0 {
		c.SetReadLimit(n)
	}

	lg := s.log.With().Str("sid", sessionID).Logger()
	conn := newConn(sessionID, c, lg)
	metricConnections.Inc()
	defer metricConnections.Dec()

	if s.Reg.Replace(sessionID, conn) {
		s.event(sessionID, "bridge_replaced", nil)
	}
	s.event(sessionID, "bridge_connected", nil)
	if s.Store != nil {
		s.Store.SetBridgeAttached(sessionID, true)
	}

	ctx := r.Context()
	if err := sess.Send(ctx, orchestrator.RegisterBridge{Sink: conn}); err != nil {
		lg.Error().Err(err).Msg("register bridge")
		conn.close(ws.StatusInternalError, "session unavailable")
		s.Reg.Remove(sessionID, conn)
		return
	}
	lg.Info().Msg("bridge connected")

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if st := ws.CloseStatus(err); st != ws.StatusNormalClosure && st != ws.StatusGoingAway && st != ws.StatusPolicyViolation {
				lg.Debug().Err(err).Msg("bridge read ended")
			}
			break
		}
		switch typ {
		case ws.MessageText:
			s.dispatch(ctx, sess, lg, data)
		case ws.MessageBinary:
			s.transcribe(ctx, sess, lg, data)
		}
	}

	conn.close(ws.StatusNormalClosure, "done")
	if s.Reg.Remove(sessionID, conn) && s.Store != nil {
		s.Store.SetBridgeAttached(sessionID, false)
	}
	dctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	if err := sess.Send(dctx, orchestrator.DetachBridge{Sink: conn}); err != nil && !errors.Is(err, orchestrator.ErrStopped) {
		lg.Warn().Err(err).Msg("detach bridge")
	}
	s.event(sessionID, "bridge_disconnected", nil)
	lg.Info().Msg("bridge disconnected")
}

func (s *Server) dispatch(ctx context.Context, sess *orchestrator.Session, lg zerolog.Logger, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		metricMessages.WithLabelValues("in", "invalid").Inc()
		lg.Warn().Err(apperr.Protocolf("bridge message: %v", err)).Msg("ignored")
		s.event(sess.ID(), "bridge_msg_invalid", map[string]any{"error": err.Error()})
		return
	}
	var cmd orchestrator.Command
	switch in.Type {
	case TypePlaybackCompleted:
		cmd = orchestrator.PlaybackCompleted{Kind: orchestrator.TurnKind(in.TurnKind)}
	case TypeHumanTurn:
		cmd = orchestrator.HumanTurn{Text: in.Text, Voice: in.Voice}
	case TypeAiTurn:
		cmd = orchestrator.AiTurn{Voice: in.Voice}
	default:
		metricMessages.WithLabelValues("in", "unknown").Inc()
		lg.Warn().Err(apperr.Protocolf("unknown bridge message type %q", in.Type)).Msg("ignored")
		return
	}
	metricMessages.WithLabelValues("in", in.Type).Inc()
	if err := sess.Send(ctx, cmd); err != nil {
		lg.Warn().Err(err).Str("type", in.Type).Msg("forward failed")
	}
}

// transcribe runs speech recognition off the read loop so completions keep flowing.
func (s *Server) transcribe(ctx context.Context, sess *orchestrator.Session, lg zerolog.Logger, data []byte) {
	metricMessages.WithLabelValues("in", "audio").Inc()
	if s.STT == nil {
		lg.Warn().Err(apperr.Protocolf("binary frame without speech recognition")).Msg("ignored")
		return
	}
	wav := stt.WrapPCM(data, s.Cfg.Bridge.InputSampleRate)
	go func() {
		text, err := s.STT.Transcribe(ctx, wav)
		switch {
		case errors.Is(err, stt.ErrEmptyTranscript):
			lg.Debug().Msg("empty transcript skipped")
			return
		case err != nil:
			lg.Error().Err(err).Msg("transcription failed")
			s.event(sess.ID(), "transcription_failed", map[string]any{"error": err.Error()})
			return
		}
		s.event(sess.ID(), "transcribed", map[string]any{"text": text})
		if err := sess.Send(ctx, orchestrator.HumanTurn{Text: text}); err != nil {
			lg.Warn().Err(err).Msg("forward transcript failed")
		}
	}()
}

func (s *Server) event(sessionID, typ string, payload map[string]any) {
	if s.Store != nil {
		s.Store.AppendEvent(sessionID, typ, payload)
	}
}
