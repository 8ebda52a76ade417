package main

import (
	"context"
	"flag"
	"log"
	"time"

	"gnest/internal/app"
	"gnest/internal/config"
	"gnest/internal/pkg/port"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	grace := flag.Duration("grace", 15*time.Second, "graceful shutdown timeout")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	// 配置端口被占用时向后顺延
	aPort, err := port.FindAvailablePort(cfg.Server.Port, 20)
	if err != nil {
		log.Fatalf("no available port from %d: %v", cfg.Server.Port, err)
	}
	cfg.Server.Port = aPort

	a, err := app.Setup(context.Background(), cfg)
	if err != nil {
		log.Fatalf("service setup failed: %v", err)
	}
	if err := a.Run(*grace); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
