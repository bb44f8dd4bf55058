package main

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"BetSentinel/internal/account"
	"BetSentinel/internal/api"
	"BetSentinel/internal/config"
	"BetSentinel/internal/dispatch"
	"BetSentinel/internal/logger"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/retry"
	"BetSentinel/internal/scheduler"
	"BetSentinel/internal/store"
	"BetSentinel/internal/update"
	"BetSentinel/internal/wager"
	"BetSentinel/internal/worker"
)

// dryRunBalance seeds simulated sites.
var dryRunBalance = decimal.NewFromInt(1_000_000)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load settings: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid settings: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("BetSentinel stopped with error", zap.Error(err))
	}
	log.Info("BetSentinel stopped")
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("BetSentinel starting", zap.String("app", cfg.App.Name), zap.Bool("dry_run", cfg.App.DryRun))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := config.NewResolver(cfg.Paths.Shared, config.WithStrict(cfg.App.Strict), config.WithLogger(log))
	shared, sharedPath, err := resolver.LoadShared()
	if err != nil {
		return err
	}
	log.Info("shared config loaded", zap.String("path", sharedPath))

	registry, err := account.Discover(cfg.Paths.UsersDir, resolver, shared, log)
	if err != nil {
		return err
	}
	if registry.Len() == 0 {
		log.Warn("no accounts found", zap.String("users_dir", cfg.Paths.UsersDir))
	}

	rec := openRecorder(cfg, log)
	defer rec.Close()

	bot, global := buildNotifier(cfg, log)

	locks := store.NewKeyedLock(cfg.Worker.LockTimeout)
	states := store.NewStateStore(cfg.Paths.TemplateDir, locks, log)
	presets := store.NewPresetRegistry(cfg.Paths.TemplateDir, locks, log)

	var (
		workers []*worker.Worker
		targets []dispatch.Account
	)
	for _, acc := range registry.All() {
		w, err := worker.New(acc, worker.Deps{
			Site:     buildSite(cfg, acc, log),
			States:   states,
			Presets:  presets,
			Notifier: accountNotifier(cfg, acc, bot, global, log),
			Recorder: rec,
			Log:      log,
			Interval: cfg.Worker.CycleInterval,
		})
		if err != nil {
			log.Error("account skipped", zap.String("account", acc.Name), zap.Error(err))
			continue
		}
		workers = append(workers, w)
		targets = append(targets, w)
	}

	updater, err := buildUpdater(cfg, rec, log)
	if err != nil {
		log.Warn("updates disabled", zap.Error(err))
	}

	opts := []dispatch.Option{
		dispatch.WithBinding(func(chatID string) (string, bool) {
			if a, ok := registry.ByChat(chatID); ok {
				return a.Name, true
			}
			return "", false
		}),
		dispatch.WithAllowedChats(append(registry.ChatIDs(), cfg.Telegram.ChatID)...),
		dispatch.WithRecorder(rec),
		dispatch.WithLogger(log.Named("dispatch")),
	}
	if updater != nil {
		opts = append(opts, dispatch.WithUpdater(updater))
	}
	dispatcher := dispatch.New(dispatch.NewDefaultRegistry(), targets, opts...)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}

	if bot != nil {
		g.Go(func() error { return bot.StartPolling(gctx, dispatcher.HandleMessage) })
		log.Info("telegram polling started")
	}

	if cfg.Schedule.Enabled {
		sched := scheduler.New(gctx, global, log.Named("scheduler"))
		var releases scheduler.ReleaseChecker
		if updater != nil {
			releases = updater
		}
		if err := sched.Register(cfg.Schedule, releases, dispatcher.Lines); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Server.HTTPAddr != "" {
		deps := api.Dependencies{Accounts: dispatcher, Log: log.Named("api")}
		if updater != nil {
			deps.Releases = updater
		}
		g.Go(func() error { return api.Serve(gctx, cfg.Server.HTTPAddr, api.SetupRoutes(deps), log) })
	}

	log.Info("BetSentinel running", zap.Int("accounts", len(workers)))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openRecorder(cfg config.Config, log *zap.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	return sr
}

// buildNotifier returns the Telegram bot (nil when not configured) and the
// process-wide notifier used for shared announcements.
func buildNotifier(cfg config.Config, log *zap.Logger) (*notifier.TelegramNotifier, notifier.Notifier) {
	var (
		bot   *notifier.TelegramNotifier
		multi notifier.Multi
	)
	if cfg.Telegram.BotToken != "" {
		bot = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log.Named("telegram"))
		multi = append(multi, bot)
	}
	if cfg.Webhook.URL != "" {
		multi = append(multi, notifier.NewWebhookNotifier(cfg.Webhook.URL, cfg.App.Name))
	}
	if len(multi) == 0 {
		log.Warn("no notification channel configured")
		return nil, notifier.Nop{}
	}
	return bot, notifier.Retrying{Next: multi, Config: retry.DefaultConfig(), Log: log}
}

// accountNotifier sends to the account's own chat and webhook when set,
// falling back to the process-wide channels.
func accountNotifier(cfg config.Config, acc *account.Account, bot *notifier.TelegramNotifier, global notifier.Notifier, log *zap.Logger) notifier.Notifier {
	var multi notifier.Multi
	chat := acc.Config.Notification.ChatID
	if chat == "" {
		chat = acc.Config.Telegram.ChatID
	}
	if bot != nil && chat != "" && chat != cfg.Telegram.ChatID {
		multi = append(multi, notifier.Chat{Bot: bot, ChatID: chat})
	}
	if hook := acc.Config.Notification.Webhook; hook != "" && hook != cfg.Webhook.URL {
		multi = append(multi, notifier.NewWebhookNotifier(hook, acc.Name))
	}
	if len(multi) == 0 {
		return global
	}
	return notifier.Retrying{Next: multi, Config: retry.DefaultConfig(), Log: logger.ForAccount(log, acc.Name)}
}

func buildSite(cfg config.Config, acc *account.Account, log *zap.Logger) wager.Site {
	var site wager.Site
	if cfg.App.DryRun || acc.Config.Site.DryRun || acc.Config.Site.BaseURL == "" {
		h := fnv.New64a()
		_, _ = h.Write([]byte(acc.ID))
		site = wager.NewDryRunSite(dryRunBalance, 0.5, int64(h.Sum64()^uint64(time.Now().UnixNano())))
	} else {
		timeout := acc.Config.Site.Timeout
		if timeout <= 0 {
			timeout = cfg.Worker.SiteTimeout
		}
		site = wager.NewHTTPSite(acc.Config.Site.BaseURL, acc.Config.Site.Cookie, acc.Config.Site.Token, acc.Config.ProxyURL(), timeout)
	}
	rc := retry.DefaultConfig()
	if cfg.Worker.SiteRetries > 0 {
		rc.MaxAttempts = cfg.Worker.SiteRetries
	}
	return wager.NewRetryingSite(site, rc, logger.ForAccount(log, acc.Name))
}

func buildUpdater(cfg config.Config, rec recorder.Recorder, log *zap.Logger) (*update.Manager, error) {
	root := cfg.Paths.RepoRoot
	return update.NewManager(update.Options{
		Root:         root,
		LockFile:     cfg.Update.LockFile,
		StateFile:    cfg.Update.StateFile,
		RollbackFile: cfg.Update.RollbackFile,
		Source:       update.NewGitSource(root, cfg.Update.Remote, cfg.Update.Repo),
		Installer:    &update.CommandInstaller{Args: cfg.Update.InstallCmd},
		Restarter:    update.NewRestarter(cfg.Update.ServiceEnv, cfg.Update.RestartDelay, log.Named("restart")),
		Recorder:     rec,
		Log:          log.Named("update"),
	})
}
