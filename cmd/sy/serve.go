package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/db"
	"github.com/zulandar/switchyard/internal/input"
	"github.com/zulandar/switchyard/internal/metrics"
	"github.com/zulandar/switchyard/internal/notify"
	"github.com/zulandar/switchyard/internal/pty"
	"github.com/zulandar/switchyard/internal/server"
	"github.com/zulandar/switchyard/internal/stream"
	"github.com/zulandar/switchyard/internal/supervisor"
	"github.com/zulandar/switchyard/internal/trigger"
)

const defaultConfigPath = "switchyard.yaml"

// loadConfig reads the config file, falling back to defaults when the file
// does not exist so `sy serve` works out of the box.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildNotifier assembles the configured chat notifiers, nil when none are
// configured.
func buildNotifier(cfg config.NotifyConfig) notify.Notifier {
	var targets notify.Multi
	if cfg.Slack.BotToken != "" && cfg.Slack.ChannelID != "" {
		targets = append(targets, notify.NewSlack(cfg.Slack.BotToken, cfg.Slack.ChannelID))
	}
	if cfg.Discord.BotToken != "" && cfg.Discord.ChannelID != "" {
		d, err := notify.NewDiscord(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			log.Printf("sy: discord notifier disabled: %v", err)
		} else {
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return targets
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Switchyard server",
		Long:  "Starts the HTTP server: session lifecycle, WebSocket/SSE streaming,\ninput routing, metrics, and the automation dispatch endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchyard config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	// Rows left live by a previous process are stale by definition: sessions
	// do not survive a server restart.
	if marked, err := supervisor.MarkStaleSessions(gdb); err != nil {
		log.Printf("sy: mark stale sessions: %v", err)
	} else if marked > 0 {
		fmt.Fprintf(out, "Marked %d stale session(s) from a previous run\n", marked)
	}

	promReg := prometheus.NewRegistry()
	collector := metrics.New(promReg)
	mux := stream.New(cfg.Stream.HistorySize, cfg.Stream.SubscriberBuffer, collector)
	sup := supervisor.New(supervisor.Opts{
		DB:      gdb,
		Spawner: &pty.RealSpawner{},
		Mux:     mux,
		Agent:   cfg.Agent,
	})
	pending := trigger.NewStore(gdb, cfg.Automation.FallbackFile)
	router := input.New(input.Opts{
		Registry: sup.Registry(),
		Mux:      mux,
		Pending:  pending,
		Hook:     collector,
		DB:       gdb,
	})
	notifier := buildNotifier(cfg.Notify)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := cron.New()
	sched.AddFunc(cfg.Automation.SweepSchedule, func() {
		if n, err := trigger.SweepLocks(gdb, cfg.Automation.LockTTL.Std()); err != nil {
			log.Printf("sy: sweep locks: %v", err)
		} else if n > 0 {
			log.Printf("sy: reclaimed %d expired automation lock(s)", n)
		}
		if n := sup.SweepStale(); n > 0 {
			log.Printf("sy: reaped %d dead session(s)", n)
		}
	})

	if cfg.Automation.GitHub.Enabled {
		gh := cfg.Automation.GitHub
		poller := trigger.NewGitHubPoller(gh.Token, gh.Owner, gh.Repo, gh.ProjectDir)
		pipeline := trigger.NewPipeline(trigger.PipelineOpts{
			DB:                gdb,
			Dispatcher:        trigger.NewHTTPDispatcher(cfg.Automation.DispatchURL, cfg.Automation.DispatchTimeout.Std()),
			Store:             pending,
			Command:           cfg.Automation.Command,
			ProtectedBranches: cfg.Automation.ProtectedBranches,
			SkipMarker:        cfg.Automation.SkipMarker,
			Notifier:          notifier,
		})
		sched.AddFunc(gh.PollSchedule, func() {
			events, err := poller.Poll(ctx)
			if err != nil {
				log.Printf("sy: github poll: %v", err)
				return
			}
			for _, ev := range events {
				pipeline.Run(ctx, ev)
			}
		})
		fmt.Fprintf(out, "Polling github.com/%s/%s for pushes\n", gh.Owner, gh.Repo)
	}

	sched.Start()
	defer sched.Stop()

	return server.Start(ctx, server.StartOpts{
		Supervisor:  sup,
		Router:      router,
		Mux:         mux,
		Collector:   collector,
		Pending:     pending,
		Gatherer:    promReg,
		Command:     cfg.Automation.Command,
		SettleDelay: cfg.Agent.SettleDelay.Std(),
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Out:         out,
	})
}
