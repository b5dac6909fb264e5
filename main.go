package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tokenroom-relay/config"
	"tokenroom-relay/hub"
	"tokenroom-relay/metrics"
	"tokenroom-relay/protocol"
	"tokenroom-relay/reaction"
	ws "tokenroom-relay/websocket"
)

func main() {
	configPath, err := resolveConfigPath(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log, os.Stdout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rooms := hub.New()
	reactions := reaction.NewStore()
	handler := protocol.NewHandler(rooms, reactions, metrics.New(reg))
	wsServer := ws.NewServer(handler, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, ws.Options{
		SendBufferSize: cfg.WebSocket.SendBufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	})

	var metricsHandler http.Handler
	if cfg.MetricsEnabled() {
		metricsHandler = metrics.Handler(reg)
	}

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: newRouter(wsServer, rooms, reactions, cfg.Metrics.Path, metricsHandler),
	}

	go func() {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wsServer.CloseAll()
}

// resolveConfigPath loads .env before reading flags so RELAY_CONFIG from the
// file serves as the -config default.
func resolveConfigPath(args []string, envFiles ...string) (string, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	path := fs.String("config", os.Getenv("RELAY_CONFIG"), "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}

func setupLogger(cfg config.LogConfig, w io.Writer) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func newRouter(wsServer http.Handler, rooms *hub.Registry, reactions *reaction.Store, metricsPath string, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", wsServer).Methods(http.MethodGet)
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(rooms, reactions)).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle(metricsPath, metricsHandler).Methods(http.MethodGet)
	}
	// Load balancers probe arbitrary paths on the same port.
	r.NotFoundHandler = http.HandlerFunc(rootHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(rootHandler)
	return r
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "WebSocket server is running.\n")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(rooms *hub.Registry, reactions *reaction.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomCount, clients := rooms.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"rooms":   roomCount,
			"clients": clients,
			"tokens":  reactions.Tokens(),
		})
	}
}
