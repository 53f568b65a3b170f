package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yuzu/voicechat/internal/api"
	"yuzu/voicechat/internal/app"
	"yuzu/voicechat/internal/bridge"
	"yuzu/voicechat/internal/config"
	"yuzu/voicechat/internal/logging"
	"yuzu/voicechat/internal/store"
	"yuzu/voicechat/internal/types"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	lg := logging.New(logging.Config{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	if err := cfg.Validate(); err != nil {
		lg.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Bridge.TokenSecret == "" {
		lg.Warn().Msg("BRIDGE_TOKEN_SECRET not set; playback bridges will be rejected")
	}

	st := store.New()
	deps, err := app.Build(cfg, &lg, st)
	if err != nil {
		lg.Fatal().Err(err).Msg("build")
	}

	reg := bridge.NewRegistry()
	bs := bridge.NewServer(cfg, st, deps.Manager, reg, deps.STT, &lg)
	h := api.NewHandlers(cfg, st, deps.Manager, reg, &lg)

	r := api.NewRouter(h, cfg.Bridge.AllowedOrigin)
	r.Get("/ws/bridge", bs.HandleBridgeWS)
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		lg.Info().Msg("shutdown signal received; stopping server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	lg.Info().Str("addr", addr).Str("tts", cfg.TTS.Provider).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lg.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	// Shutdown does not track hijacked websockets; close them with their sessions.
	lg.Info().Int("bridges", reg.Len()).Int("actors", len(deps.Manager.IDs())).Msg("closing sessions")
	for _, id := range st.ListSessionIDs() {
		if sess := st.GetSession(id); sess == nil || sess.Status != types.StatusActive {
			continue
		}
		reg.CloseSession(id)
		_ = st.EndSession(id, time.Now().UTC())
	}
	deps.Manager.CloseAll()
	lg.Info().Msg("server stopped")
}
