package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RTGateway/config"
	"RTGateway/logger"
	"RTGateway/service/auth"
	"RTGateway/service/bus"
	"RTGateway/service/gateway"
	"RTGateway/service/registry"
	"RTGateway/service/storage"
	redisx "RTGateway/service/storage/redis"
	"RTGateway/tools/ids"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("[boot] config: %v", err)
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)

	// Presence store.
	if err := redisx.Init(redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Errorf("[boot] redis: %v", err)
		os.Exit(1)
	}
	presence := storage.NewRedisPresence(redisx.Client())

	// Pub/sub bridge.
	var bridge bus.Bridge
	switch cfg.BusDriver {
	case "nats":
		bridge, err = bus.NewNatsBridge(bus.NatsConfig{
			Servers: []string{cfg.NatsURL},
			Name:    "rtgateway",
		})
	default:
		bridge, err = bus.NewRedisBridge(bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	if err != nil {
		logger.Errorf("[boot] bus bridge (%s): %v", cfg.BusDriver, err)
		os.Exit(1)
	}

	// Auth collaborator: HTTP service when configured, local JWT
	// verification otherwise.
	var checker auth.Checker
	if cfg.AuthURL != "" {
		checker = auth.NewHTTPChecker(cfg.AuthURL, cfg.AuthTimeout)
	} else {
		checker = auth.NewJWTChecker([]byte(cfg.JWTSecret))
	}

	// Startup-time service routes; a duplicate name is fatal here rather
	// than running with ambiguous routing.
	reg := registry.New()
	routes, err := cfg.Routes()
	if err != nil {
		logger.Errorf("[boot] service routes: %v", err)
		os.Exit(1)
	}
	for _, r := range routes {
		if err := reg.Register(r[0], r[1]); err != nil {
			logger.Errorf("[boot] service routes: %v", err)
			os.Exit(1)
		}
	}

	gw := gateway.New(gateway.Config{
		IncomingChannel: cfg.IncomingChannel,
		OutgoingChannel: cfg.OutgoingChannel,
	}, presence, checker, bridge, reg)
	if err := gw.Start(); err != nil {
		logger.Errorf("[boot] gateway start: %v", err)
		os.Exit(1)
	}

	srv := gateway.NewServer(gw, cfg.Port)
	go func() {
		if err := srv.Run(); err != nil {
			logger.Errorf("[server] %v", err)
			os.Exit(1)
		}
	}()
	logger.Infof("[boot] up port=%d bus=%s incoming=%s outgoing=%s routes=%d",
		cfg.Port, cfg.BusDriver, cfg.IncomingChannel, cfg.OutgoingChannel, len(routes))

	// Scoped shutdown: stop accepting, close live connections, then
	// release the bridge and redis clients.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("[boot] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("[boot] server shutdown: %v", err)
	}
	if err := bridge.Close(); err != nil {
		logger.Errorf("[boot] bridge close: %v", err)
	}
	if err := redisx.Close(); err != nil {
		logger.Errorf("[boot] redis close: %v", err)
	}
	logger.Infof("[boot] bye")
}
