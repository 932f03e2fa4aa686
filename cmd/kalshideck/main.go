package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/kalshideck/internal/backend"
	"github.com/rewired-gh/kalshideck/internal/config"
	"github.com/rewired-gh/kalshideck/internal/dashboard"
	"github.com/rewired-gh/kalshideck/internal/ledger"
	"github.com/rewired-gh/kalshideck/internal/logger"
	"github.com/rewired-gh/kalshideck/internal/notify"
	"github.com/rewired-gh/kalshideck/internal/server"
	"github.com/rewired-gh/kalshideck/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(
		cfg.Storage.MaxNotifications,
		cfg.Storage.DBPath,
	)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	botClient := backend.NewClient(
		cfg.Backend.BaseURL,
		cfg.Backend.Timeout,
		backend.ClientConfig{
			MaxRetries:     cfg.Backend.MaxRetries,
			RetryDelayBase: cfg.Backend.RetryDelayBase,
		},
	)

	var telegramClient *notify.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = notify.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	hub := dashboard.New()
	defer hub.Close()

	srv := server.New(cfg.Server.ListenAddr, hub, botClient, store)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Dashboard server failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Dashboard server shutdown failed: %v", err)
		}
		cancel()
	}()

	logger.Info("Starting poll loops (status: %v, trades: %v)",
		cfg.Backend.StatusPollInterval,
		cfg.Backend.TradesPollInterval,
	)

	go runPollLoop(ctx, "status", cfg.Backend.StatusPollInterval, cfg, telegramClient, func(ctx context.Context) error {
		return runStatusCycle(ctx, botClient, hub)
	})

	runPollLoop(ctx, "trades", cfg.Backend.TradesPollInterval, cfg, telegramClient, func(ctx context.Context) error {
		return runTradesCycle(ctx, botClient, hub, store, telegramClient, cfg)
	})

	logger.Info("Service stopped")
}

// runPollLoop drives one cycle function on a fixed ticker until ctx is
// cancelled, notifying on the first failure of a consecutive sequence and
// on recovery.
func runPollLoop(
	ctx context.Context,
	name string,
	interval time.Duration,
	cfg *config.Config,
	telegramClient *notify.Client,
	cycle func(ctx context.Context) error,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("%s cycle failed: %v", name, err)
			if consecutiveFailures == 1 && cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial %s cycle", name)
	handleCycleResult(cycle(ctx))

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled %s cycle", name)
			handleCycleResult(cycle(ctx))
		}
	}
}

// runStatusCycle polls the bot status snapshot and feeds it to the hub.
func runStatusCycle(ctx context.Context, botClient *backend.Client, hub *dashboard.Hub) error {
	snap, err := botClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll status: %w", err)
	}
	hub.UpdateSnapshot(snap)
	return nil
}

// runTradesCycle polls the trade feed, feeds it to the hub, and sends a
// Telegram notification for each newly settled group.
func runTradesCycle(
	ctx context.Context,
	botClient *backend.Client,
	hub *dashboard.Hub,
	store *storage.Storage,
	telegramClient *notify.Client,
	cfg *config.Config,
) error {
	startTime := time.Now()

	feed, err := botClient.Trades(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll trades: %w", err)
	}
	hub.UpdateFeed(feed)

	groups := ledger.Group(feed.Trades)
	logger.Debug("Trade feed processed: %d entries, %d groups, %d open",
		len(feed.Trades), len(groups), ledger.OpenCount(groups))

	if !cfg.Telegram.Enabled || telegramClient == nil {
		return nil
	}

	for _, group := range groups {
		if group.Settled == nil {
			continue
		}
		notified, err := store.WasNotified(group.MarketID, group.Settled.TS)
		if err != nil {
			logger.Warn("Failed to check notification state for %s: %v", group.MarketID, err)
			continue
		}
		if notified {
			continue
		}

		if err := telegramClient.SendSettlement(group); err != nil {
			logger.Error("Failed to send settlement notification for %s: %v", group.MarketID, err)
			continue
		}

		rec := storage.NotifiedSettlement{
			MarketID:  group.MarketID,
			Action:    group.Settled.Action,
			SettledTS: group.Settled.TS,
		}
		if group.Settled.PnL != nil {
			rec.PnL = group.Settled.PnL.StringFixed(2)
		}
		if err := store.MarkNotified(rec); err != nil {
			logger.Warn("Failed to record notification for %s: %v", group.MarketID, err)
		} else {
			logger.Info("Sent settlement notification for %s", group.MarketID)
		}
	}

	logger.Debug("Trades cycle completed in %v", time.Since(startTime))
	return nil
}
