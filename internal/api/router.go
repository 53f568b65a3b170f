package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter wires the REST surface. Callers mount the bridge websocket and
// metrics on the returned mux.
func NewRouter(h *Handlers, allowedOrigin string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.HandleReady)

	r.Post("/sessions", h.HandleCreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/end", h.HandleEndSession)
		r.Get("/events", h.HandleListEvents)
		r.Get("/state", h.HandleState)
		r.Post("/turns", h.HandleHumanTurn)
		r.Post("/ai-turn", h.HandleAiTurn)
		r.Post("/bridge-token", h.HandleMintBridgeToken)
	})
	return r
}

func requestLogger(lg zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			lg.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("req_id", middleware.GetReqID(r.Context())).
				Msg("http")
		})
	}
}
