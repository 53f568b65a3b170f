package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"yuzu/voicechat/internal/app"
	"yuzu/voicechat/internal/config"
	"yuzu/voicechat/internal/health"
	"yuzu/voicechat/internal/logging"
	orch "yuzu/voicechat/internal/orchestrator"
	"yuzu/voicechat/internal/store"
)

var (
	addr = flag.String("addr", "", "orchestrator listen addr (default GRPC_ADDR)")
)

func main(){
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	lg := logging.New(logging.Config{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	if err := cfg.Validate(); err != nil {
		lg.Fatal().Err(err).Msg("invalid configuration")
	}
	listen := *addr
	if listen == "" {
		listen = cfg.GRPC.Addr
	}

	deps, err := app.Build(cfg, &lg, store.New())
	if err != nil {
		lg.Fatal().Err(err).Msg("build")
	}
	defer deps.Manager.CloseAll()

	s := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 10 * time.Second,
	}))
	orch.Register(s, orch.NewServer(deps.Manager, &lg))

	// health endpoints
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok\n")) })
		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			st := health.CheckAll(ctx, cfg)
			if !st.OK {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			w.Write([]byte(st.String()))
		})
		mux.Handle("/metrics", promhttp.Handler())
		lg.Info().Str("addr", cfg.Server.MetricsAddr).Msg("orchestrator health and metrics")
		_ = http.ListenAndServe(cfg.Server.MetricsAddr, mux)
	}()

	l, err := net.Listen("tcp", listen)
	if err != nil {
		lg.Fatal().Err(err).Msg("listen")
	}
	lg.Info().Str("addr", listen).Msg("orchestrator listening")
	if err := s.Serve(l); err != nil {
		lg.Fatal().Err(err).Msg("serve")
	}
}
