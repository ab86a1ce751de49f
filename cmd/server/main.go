package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Durss/streamerRaider/internal/alert"
	"github.com/Durss/streamerRaider/internal/bus"
	"github.com/Durss/streamerRaider/internal/discord"
	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/eventsub"
	"github.com/Durss/streamerRaider/internal/httpserver"
	"github.com/Durss/streamerRaider/internal/platform/config"
	"github.com/Durss/streamerRaider/internal/platform/logging"
	"github.com/Durss/streamerRaider/internal/store"
	"github.com/Durss/streamerRaider/internal/twitch"
)

type stores struct {
	roster       *store.Roster
	descriptions *store.Descriptions
	watchlist    *store.WatchList
	profiles     *store.Profiles
	alerts       *store.AlertConfig
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStores(cfg *config.Config) *stores {
	roster, err := store.NewRoster(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to load roster", "error", err)
		os.Exit(1)
	}
	descriptions, err := store.NewDescriptions(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to load descriptions", "error", err)
		os.Exit(1)
	}
	watchlist, err := store.NewWatchList(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to load watch list", "error", err)
		os.Exit(1)
	}
	profiles, err := store.NewProfiles(cfg.ProfilesPath)
	if err != nil {
		slog.Error("Failed to load profile catalog", "error", err)
		os.Exit(1)
	}

	return &stores{
		roster:       roster,
		descriptions: descriptions,
		watchlist:    watchlist,
		profiles:     profiles,
		alerts:       store.NewAlertConfig(profiles, watchlist),
	}
}

func setupDiscord(cfg *config.Config, events *bus.Bus, client *twitch.Client, st *stores) *discord.Bot {
	if cfg.DiscordBotToken == "" {
		slog.Warn("No Discord bot token configured, chat commands and alert cards are disabled")
		return nil
	}

	bot, err := discord.New(cfg.DiscordBotToken, events, client, st.profiles, st.roster, st.descriptions, st.watchlist)
	if err != nil {
		slog.Error("Failed to create Discord bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bot.Start(ctx); err != nil {
		slog.Error("Failed to connect to Discord", "error", err)
		os.Exit(1)
	}
	return bot
}

// logMessenger keeps the alert engine functional without a Discord bot:
// cards are logged instead of posted.
type logMessenger struct{}

func (logMessenger) PostCard(_ context.Context, channelID string, card domain.Card) (domain.MessageRef, error) {
	slog.Info("Live alert", "channel", channelID, "streamer", card.StreamerName, "title", card.Title)
	return domain.MessageRef{ChannelID: channelID, MessageID: "log"}, nil
}

func (logMessenger) EditCard(_ context.Context, _ domain.MessageRef, card domain.Card) error {
	slog.Debug("Live alert update", "streamer", card.StreamerName, "viewers", card.ViewerCount, "offline", card.Offline)
	return nil
}

func runGracefulShutdown(srv *httpserver.Server, engine *alert.Engine, bot *discord.Bot) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		engine.Shutdown()

		if bot != nil {
			closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelClose()
			bot.Close(closeCtx)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	events := bus.New()
	st := setupStores(cfg)

	twitchClient := twitch.New(cfg.TwitchClientID, cfg.TwitchClientSecret)

	bot := setupDiscord(cfg, events, twitchClient, st)

	manager := eventsub.NewManager(twitchClient, events, clock, cfg.EventSubCallback, cfg.EventSubSecret)

	var messenger alert.Messenger
	if bot != nil {
		messenger = bot.Messenger()
	} else {
		messenger = logMessenger{}
	}
	engine := alert.NewEngine(clock, twitchClient, messenger, st.alerts, st.roster, events)

	srv := httpserver.NewServer(cfg, twitchClient, st.roster, st.descriptions, st.profiles, events, manager.HandleWebhook)

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.Initialize(startupCtx); err != nil {
		slog.Error("EventSub startup reconcile failed", "error", err)
	}
	engine.Resync(startupCtx)
	cancel()

	done := runGracefulShutdown(srv, engine, bot)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
