package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/relaymesh/backend/internal/api"
	"github.com/relaymesh/backend/internal/cli"
	"github.com/relaymesh/backend/internal/config"
	"github.com/relaymesh/backend/internal/events"
	"github.com/relaymesh/backend/internal/hooks"
	"github.com/relaymesh/backend/internal/machine"
	"github.com/relaymesh/backend/internal/metrics"
	"github.com/relaymesh/backend/internal/relayer"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load(getEnv("CONFIG_PATH", "config.yaml"))

	bus := events.NewBus()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	rel := relayer.New(relayer.Options{
		ReadBufferSize:    cfg.Relay.ReadBufferSize,
		OutboundQueueSize: cfg.Relay.OutboundQueueSize,
		RegisterQueueSize: cfg.Relay.RegisterQueueSize,
		CompatFraming:     cfg.Relay.CompatFraming,
		Metrics:           m,
		Bus:               bus,
	})
	rel.Launch()
	if !rel.IsReady() {
		slog.Error("launch relayer failed")
		os.Exit(1)
	}

	mach := machine.New(cfg, hooks.Defaults())

	g, ctx := errgroup.WithContext(context.Background())
	if cfg.Admin.Enabled {
		admin := api.NewServer(mach, rel, bus, registry)
		g.Go(func() error {
			return admin.Start(cfg.Admin.Port)
		})
	}
	g.Go(func() error {
		runLoop(ctx, mach, rel)
		mach.Shutdown()
		rel.Shutdown()
		os.Exit(0)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

// runLoop reads operator commands from stdin until Shutdown or EOF.
func runLoop(ctx context.Context, mach *machine.Machine, rel *relayer.Relayer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		command, err := cli.Parse(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}
		switch c := command.(type) {
		case cli.AddClient:
			if err := mach.RegisterNode(ctx, rel, c.Name, c.Group, c.Addr); err != nil {
				fmt.Printf("add client failed,error=%s\n", err)
			}
		case cli.SendMsg:
			if err := mach.SendMessage(ctx, c.From, c.To, c.Content); err != nil {
				fmt.Printf("send msg failed,error=%s\n", err)
			}
		case cli.Shutdown:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("read error %s\n", err)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
