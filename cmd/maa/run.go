package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"maa/internal/adapter/console"
	"maa/internal/domain"
	"maa/internal/infra/config"
	"maa/internal/infra/logger"
	"maa/internal/infra/metrics"
	"maa/internal/infra/tracer"
	"maa/internal/usecase/eventbus"
)

func run(ctx context.Context, flags *cliFlags, in io.Reader, out io.Writer) error {
	// 1. Config
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, tracer.WithVersion(version))
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(promReg)
	if err := startMetrics(ctx, cfg.Metrics, promReg, log); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// 5. Event bus
	bus := eventbus.New(logger.Component(log, "eventbus"), 0)
	defer bus.Close()
	bus.SubscribeAll(func(ctx context.Context, e domain.Event) {
		log.DebugContext(ctx, "event", "type", e.Type, "conversation", e.ConversationID)
	})

	// 6. LLM providers
	registry, err := initLLM(cfg, m, log)
	if err != nil {
		return err
	}
	if registry == nil && !flags.Offline {
		return errNoProvider
	}

	// 7. Agents, strategies, group chat
	chat, err := initChat(chatDeps{
		Config:   cfg,
		Registry: registry,
		Bus:      bus,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	log.Info("maa starting",
		"provider", cfg.LLM.DefaultProvider,
		"offline", flags.Offline,
		"agents", domain.AgentNames(chat.Agents()),
		"selection", cfg.Chat.Selection.Strategy,
		"termination", cfg.Chat.Termination.Strategy,
	)

	// 8. Console
	renderer := console.NewRenderer(out)
	renderer.Ready(chat.Agents())
	if flags.Offline {
		renderer.Notice("Offline mode: agents reply with canned text.")
	}
	repl := console.NewREPL(chat, console.NewReader(in, out), renderer, logger.Component(log, "console"))
	return repl.Run(ctx)
}

func startMetrics(ctx context.Context, cfg config.MetricsConfig, g prometheus.Gatherer, log *slog.Logger) error {
	if !cfg.Enabled || cfg.Addr == "" {
		return nil
	}
	srv, err := metrics.Listen(cfg.Addr, g, logger.Component(log, "metrics"))
	if err != nil {
		return err
	}
	go func() {
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return nil
}
