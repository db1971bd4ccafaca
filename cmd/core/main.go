// Command core runs the Knowbase sync core as a daemon: it owns the
// local cache and offline databases, drains queued writes, refreshes
// the feature stores, and folds realtime events into local state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/ohartl/knowbase/internal/api"
	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/config"
	"github.com/ohartl/knowbase/internal/connectivity"
	"github.com/ohartl/knowbase/internal/logging"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/offline"
	"github.com/ohartl/knowbase/internal/realtime"
	"github.com/ohartl/knowbase/internal/storage"
	"github.com/ohartl/knowbase/internal/stores"
	"github.com/ohartl/knowbase/internal/syncer"
	"github.com/ohartl/knowbase/internal/writequeue"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("knowbase-core v%s\n", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logging.Get()
	log.WithField("version", Version).Info("starting knowbase core")

	db, err := storage.OpenAndMigrate(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := connectivity.NewMonitor(cfg.Connectivity.FlipThreshold, log)
	client := api.New(cfg.API.BaseURL, cfg.API.GetTimeout(), monitor, log)

	queue := writequeue.New(db.DB, client, monitor.IsNetworkAvailable, writequeue.Options{
		MaxPendingWrites: cfg.Queue.MaxPendingWrites,
		MaxAttempts:      cfg.Queue.MaxAttempts,
	}, log)

	offlineStore := offline.NewStore(db.DB)
	deps := stores.Deps{
		Cache:   cache.NewSQLite(db.DB),
		Offline: offlineStore,
		Queue:   queue,
		Monitor: monitor,
		Log:     log,
	}

	notes := stores.NewNotesStore(deps, stores.NotesConfig{
		ListTTL:        cfg.Cache.GetDefaultTTL(),
		DetailTTL:      cfg.Cache.GetDetailTTL(),
		ArchivedWindow: cfg.Retention.GetArchivedWindow(),
	}, client.Notes)
	websites := stores.NewWebsitesStore(deps, cfg.Cache.GetDefaultTTL(), cfg.Cache.GetDetailTTL(), client.Websites)
	tasks := stores.NewTasksStore(deps, cfg.Cache.GetDefaultTTL(), client.Tasks)
	conversations := stores.NewConversationsStore(deps, cfg.Cache.GetDefaultTTL(), client.Conversations)
	fileJobs := stores.NewFileJobsStore(deps, cfg.Cache.GetDefaultTTL(), client.FileJobs, client.FileJob)

	coordinator := syncer.New(queue, monitor, nil, log)
	coordinator.Register(notes)
	coordinator.Register(websites)
	coordinator.Register(tasks)
	coordinator.Register(conversations)
	coordinator.Register(fileJobs)
	coordinator.Start(ctx)
	defer coordinator.Stop()

	dispatcher := realtime.NewDispatcher(log)
	notes.RegisterRealtime(dispatcher)
	websites.RegisterRealtime(dispatcher)
	tasks.RegisterRealtime(dispatcher)
	conversations.RegisterRealtime(dispatcher)
	fileJobs.RegisterRealtime(dispatcher)

	if cfg.Realtime.URL != "" {
		feed := realtime.NewFeed(realtime.FeedConfig{
			URL:              cfg.Realtime.URL,
			ReconnectBackoff: cfg.Realtime.GetReconnectBackoff(),
			MaxBackoff:       cfg.Realtime.GetMaxBackoff(),
		}, dispatcher, monitor, log)
		feed.Start(ctx)
		defer feed.Stop()
	}

	scheduler := syncer.NewScheduler(coordinator, cfg.Sync.GetRefreshInterval(), log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	retention := buildRetentionPolicy(cfg)
	cleanup := cron.New()
	if _, err := cleanup.AddFunc(cfg.Retention.CleanupSchedule, func() {
		removed, err := offlineStore.CleanupSnapshots(retention)
		if err != nil {
			log.WithError(err).Warn("snapshot cleanup failed")
			return
		}
		if removed > 0 {
			log.WithField("removed", removed).Info("pruned offline snapshots")
		}
	}); err != nil {
		log.WithError(err).Fatal("invalid cleanup schedule")
	}
	cleanup.Start()
	defer cleanup.Stop()

	// Initial load: cached and offline tiers serve immediately, remote
	// refreshes follow in the background.
	loads := map[string]func(context.Context) error{
		"notes":         notes.Load,
		"websites":      websites.Load,
		"tasks":         tasks.Load,
		"conversations": conversations.Load,
		"file_jobs":     fileJobs.Load,
	}
	for name, load := range loads {
		if err := load(ctx); err != nil {
			log.WithField("store", name).WithError(err).Warn("initial load failed")
		}
	}

	<-ctx.Done()
	log.Info("shutting down knowbase core")
}

// buildRetentionPolicy maps the retention config onto the offline
// store's cleanup policy.
func buildRetentionPolicy(cfg *config.Config) offline.RetentionPolicy {
	return offline.RetentionPolicy{
		ArchivedWindow: cfg.Retention.GetArchivedWindow(),
		MaxSnapshots: map[models.EntityType]int{
			models.EntityNote:    cfg.Retention.MaxNoteSnapshots,
			models.EntityWebsite: cfg.Retention.MaxWebsiteSnapshots,
		},
	}
}
