package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yuzu/voicechat/internal/auth"
	"yuzu/voicechat/internal/config"
	"yuzu/voicechat/internal/health"
	"yuzu/voicechat/internal/logging"
	"yuzu/voicechat/internal/orchestrator"
	"yuzu/voicechat/internal/store"
	"yuzu/voicechat/internal/types"
)

const readyTimeout = 5 * time.Second

// BridgeCloser drops the playback connection of an ended session.
type BridgeCloser interface {
	CloseSession(sessionID string)
}

type Handlers struct {
	cfg     config.Config
	store   *store.Store
	mgr     *orchestrator.Manager
	bridges BridgeCloser
	log     zerolog.Logger

	// Ready backs /readyz; defaults to health.CheckAll.
	Ready func(ctx context.Context) health.HealthStatus
}

func NewHandlers(cfg config.Config, st *store.Store, mgr *orchestrator.Manager, bridges BridgeCloser, logger *zerolog.Logger) *Handlers {
	lg := logging.Nop()
	if logger != nil {
		lg = logging.Component(*logger, "api")
	}
	h := &Handlers{cfg: cfg, store: st, mgr: mgr, bridges: bridges, log: lg}
	h.Ready = func(ctx context.Context) health.HealthStatus { return health.CheckAll(ctx, cfg) }
	return h
}

type createSessionRequest struct {
	Voice string `json:"voice"`
}

type turnRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	id := uuid.New().String()
	token, exp, err := h.mintToken(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := h.mgr.Open(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = h.cfg.Session.DefaultVoice
	}
	sess := &types.Session{
		ID:          id,
		Voice:       voice,
		BridgeToken: token,
		CreatedAt:   time.Now().UTC(),
		Status:      types.StatusActive,
	}
	_ = h.store.CreateSession(sess)
	h.store.AppendEvent(id, "session_created", map[string]any{"voice": voice})
	h.log.Info().Str("sid", id).Msg("session created")

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   id,
		"voice":        voice,
		"bridge_token": token,
		"bridge_url":   "/ws/bridge?session_id=" + id,
		"expires_at":   exp,
	})
}

func (h *Handlers) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := h.store.GetSession(id)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	if sess.Status == types.StatusEnded {
		h.store.AppendEvent(id, "session_end_requested", map[string]any{"noop": true})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": sess.Status})
		return
	}
	h.mgr.Close(id)
	if h.bridges != nil {
		h.bridges.CloseSession(id)
	}
	_ = h.store.EndSession(id, time.Now().UTC())
	h.store.AppendEvent(id, "session_ended", nil)
	h.log.Info().Str("sid", id).Msg("session ended")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": types.StatusEnded})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     h.store.ListEvents(id),
	})
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.live(w, r)
	if !ok {
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) HandleHumanTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.live(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.Voice == "" {
		req.Voice = h.sessionVoice(sess.ID())
	}
	if err := sess.Send(r.Context(), orchestrator.HumanTurn{Text: req.Text, Voice: req.Voice}); err != nil {
		sendError(w, err)
		return
	}
	h.store.AppendEvent(sess.ID(), "human_turn_submitted", map[string]any{"chars": len(req.Text)})
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *Handlers) HandleAiTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.live(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if err := sess.Send(r.Context(), orchestrator.AiTurn{Voice: req.Voice}); err != nil {
		sendError(w, err)
		return
	}
	h.store.AppendEvent(sess.ID(), "ai_turn_submitted", nil)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *Handlers) HandleMintBridgeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := h.store.GetSession(id)
	if sess == nil || sess.Status == types.StatusEnded {
		http.NotFound(w, r)
		return
	}
	token, exp, err := h.mintToken(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.store.SetBridgeToken(id, token)
	h.store.AppendEvent(id, "bridge_token_minted", map[string]any{"expires_at": exp})
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "bridge_token": token, "expires_at": exp})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	st := h.Ready(ctx)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

// mintToken returns an empty token when bridge auth is not configured.
func (h *Handlers) mintToken(id string) (string, time.Time, error) {
	if h.cfg.Bridge.TokenSecret == "" {
		return "", time.Time{}, nil
	}
	ttl := time.Duration(h.cfg.Bridge.TokenTTLMin) * time.Minute
	return auth.IssueBridgeToken(h.cfg.Bridge.TokenSecret, id, time.Now(), ttl)
}

func (h *Handlers) live(w http.ResponseWriter, r *http.Request) (*orchestrator.Session, bool) {
	sess, ok := h.mgr.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
	}
	return sess, ok
}

func (h *Handlers) sessionVoice(id string) string {
	if s := h.store.GetSession(id); s != nil {
		return s.Voice
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrStopped):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
