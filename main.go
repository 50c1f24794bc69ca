package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"racearena/config"
	"racearena/notify"
	"racearena/server"
)

// RaceArena 入口：加载配置，启动对局协调器、WebSocket 网关与管理接口
func main() {
	var (
		addr       string
		configPath string
	)
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :3000 (overrides config)")
	flag.StringVar(&configPath, "config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	// zap 日志写入文件（带滚动）
	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()
	server.Log.Infof("game server instance starting (ID: %s)", cfg.InstanceID)

	metrics := &server.Metrics{}
	hub := server.NewHub(metrics)

	opts := server.Options{
		InstanceID: cfg.InstanceID,
		Rules:      cfg.Match,
		Metrics:    metrics,
	}
	// NATS 可选：未配置时不推送生命周期事件
	if cfg.NATS.URL != "" {
		pub, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject, cfg.InstanceID)
		if err != nil {
			server.Log.Fatalf("nats: %v", err)
		}
		defer pub.Close()
		opts.Notifier = pub
		server.Log.Infof("publishing match events to %s", pub.Subject(cfg.InstanceID))
	}

	coord := server.NewCoordinator(hub, opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	gw := server.NewGateway(coord, hub, cfg.Server)
	api := server.NewAPI(coord, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	api.Routes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		server.Log.Infof("game server %s listening on %s", cfg.InstanceID, cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Log.Warnf("http shutdown: %v", err)
	}
	cancel()
	<-coord.Done()
}
