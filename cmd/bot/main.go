package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-insight-lab/internal/analysis"
	"github.com/discord-insight-lab/internal/bot"
	"github.com/discord-insight-lab/internal/config"
	"github.com/discord-insight-lab/internal/logging"
	"github.com/discord-insight-lab/internal/publish"
	"github.com/discord-insight-lab/internal/session"
	"github.com/discord-insight-lab/internal/settings"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		logging.Init()
		logging.Fatalw("config load failed", "path", *configPath, "err", err)
	}
	if cfg.LogLevel != "" {
		os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}
	logging.Init()
	defer logging.Sync()

	for _, w := range warnings {
		logging.Warnw("config warning", "msg", w)
	}
	if cfg.DiscordToken == "" || cfg.GeminiAPIKey == "" {
		logging.Fatalw("missing required secrets, cannot start")
	}

	store, err := settings.Open(cfg.DBPath)
	if err != nil {
		logging.Fatalw("settings store open failed", "path", cfg.DBPath, "err", err)
	}
	defer store.Close()

	ctx := context.Background()
	analyzer, err := analysis.NewGeminiAnalyzer(ctx, analysis.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		logging.Fatalw("analyzer init failed", "err", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logging.Fatalw("discord session create failed", "err", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	pipeline := analysis.NewPipeline(analyzer, publish.NewDiscordPublisher(dg), analysis.Config{
		TempDir:           cfg.TempAudioDir,
		AnalyzeTimeout:    cfg.ParsedAnalyzeTimeout(),
		UploadParallelism: cfg.UploadParallelism,
	})

	registry := session.NewRegistry()
	b := bot.New(dg, registry, store, pipeline)

	if err := dg.Open(); err != nil {
		logging.Fatalw("discord gateway open failed", "err", err)
	}
	logging.Infow("gateway connected", "user.id", dg.State.User.ID)

	if err := b.Register(); err != nil {
		_ = dg.Close()
		logging.Fatalw("command registration failed", "err", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logging.Infow("shutdown signal received, closing resources")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	b.StopAll(shutdownCtx)

	if err := dg.Close(); err != nil {
		logging.Warnw("discord session close error", "err", err)
	}
	logging.Infow("shutdown complete")
}
