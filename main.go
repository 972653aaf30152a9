package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triarena/config"
	"triarena/server"
)

// TriArena 入口：启动 HTTP + WebSocket 服务，并初始化房间目录
func main() {
	var (
		cfgPath string
		addr    string
	)
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to YAML config (optional)")
	flag.StringVar(&addr, "addr", "", "override listen address, e.g. :8787")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	// 使用 zap 日志库写入滚动文件
	if err := server.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger()

	sink, closeSinks := buildSinks(cfg)
	defer closeSinks()

	dir := server.NewDirectory(server.RoomOptions{
		Capacity:       cfg.Room.Capacity,
		MaxHP:          cfg.Room.MaxHP,
		AimOffsetLimit: cfg.Room.AimOffsetLimit,
		NewPolicy:      policyFactory(cfg),
		Sink:           sink,
	}, cfg.Room.IdleTTL)
	// 先预创建默认房间，便于快速试跑
	_ = dir.GetOrCreateRoom(cfg.Room.DefaultName)
	dir.StartJanitor(janitorInterval(cfg.Room.IdleTTL))

	gw := server.NewGateway(dir, cfg.Room.DefaultName)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		server.Log.Infof("TriArena listening on %s policy=%s capacity=%d tick=%s", cfg.Addr, cfg.Room.Policy, cfg.Room.Capacity, cfg.TickInterval())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnf("http shutdown: %v", err)
	}
	dir.Close()
}

// policyFactory 每个房间一个独立的策略实例
func policyFactory(cfg config.Config) func() server.SimulationPolicy {
	if cfg.Room.Policy == config.PolicyAuthoritative {
		return func() server.SimulationPolicy { return server.NewAuthoritativePolicy(cfg.Sim) }
	}
	return func() server.SimulationPolicy { return server.NewRelayPolicy(cfg.Relay.Interval) }
}

// buildSinks 日志 + 可选的 NATS / Redis；外部系统不可用时仅告警，不影响对局
func buildSinks(cfg config.Config) (server.LifecycleSink, func()) {
	sinks := server.MultiSink{server.LogSink{}}
	var closers []func() error

	if cfg.NATS.URL != "" {
		ns, err := server.NewNATSSink(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			server.Log.Warnf("nats disabled: %v", err)
		} else {
			sinks = append(sinks, ns)
			closers = append(closers, ns.Close)
		}
	}
	if cfg.Redis.Addr != "" {
		rp, err := server.NewRedisPresence(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			server.Log.Warnf("redis disabled: %v", err)
		} else {
			sinks = append(sinks, rp)
			closers = append(closers, rp.Close)
		}
	}

	async := server.NewAsyncSink(sinks, 1024)
	return async, func() {
		async.Close()
		for _, c := range closers {
			if err := c(); err != nil {
				server.Log.Warnf("close sink: %v", err)
			}
		}
		if n := async.Dropped(); n > 0 {
			server.Log.Warnf("lifecycle events dropped: %d", n)
		}
	}
}

func janitorInterval(ttl time.Duration) time.Duration {
	iv := ttl / 4
	if iv < time.Second {
		iv = time.Second
	}
	if iv > 30*time.Second {
		iv = 30 * time.Second
	}
	return iv
}
