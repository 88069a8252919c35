package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/db"
	"github.com/zulandar/switchyard/internal/trigger"
)

func newTriggerCmd() *cobra.Command {
	var (
		configPath string
		action     string
		branch     string
		message    string
		projectDir string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run the automation pipeline for a git event",
		Long: `Entry point for git hooks (post-push, post-merge). Detects whether the
event qualifies, takes the per-project lock, and dispatches the configured
slash command to the running server. Always exits zero so a hook invocation
can never block the git operation itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(cmd, configPath, action, branch, message, projectDir)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchyard config file")
	cmd.Flags().StringVar(&action, "action", "push", "git action (push, merge, pull)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name (default: current branch)")
	cmd.Flags().StringVar(&message, "message", "", "commit message (default: latest commit)")
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "project directory (default: current directory)")
	return cmd
}

func runTrigger(cmd *cobra.Command, configPath, action, branch, message, projectDir string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}
	if branch == "" {
		branch = gitOutput(projectDir, "rev-parse", "--abbrev-ref", "HEAD")
	}
	if message == "" {
		message = gitOutput(projectDir, "log", "-1", "--pretty=%B")
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		// No DB means no lock; queue the command durably and get out of the
		// hook's way.
		fmt.Fprintf(out, "Database unavailable (%v); queuing to %s\n", err, cfg.Automation.FallbackFile)
		if ferr := trigger.AppendFallback(cfg.Automation.FallbackFile, projectDir, cfg.Automation.Command); ferr != nil {
			fmt.Fprintf(out, "Fallback write failed: %v\n", ferr)
		}
		return nil
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	pipeline := trigger.NewPipeline(trigger.PipelineOpts{
		DB:                gdb,
		Dispatcher:        trigger.NewHTTPDispatcher(cfg.Automation.DispatchURL, cfg.Automation.DispatchTimeout.Std()),
		Store:             trigger.NewStore(gdb, cfg.Automation.FallbackFile),
		Command:           cfg.Automation.Command,
		ProtectedBranches: cfg.Automation.ProtectedBranches,
		SkipMarker:        cfg.Automation.SkipMarker,
		Notifier:          buildNotifier(cfg.Notify),
	})

	outcome := pipeline.Run(cmd.Context(), trigger.Event{
		Action:        action,
		Branch:        branch,
		CommitMessage: message,
		ProjectDir:    projectDir,
	})

	switch outcome.State {
	case trigger.StateCompleted:
		fmt.Fprintf(out, "Dispatched %s to session %s (%s)\n",
			cfg.Automation.Command, outcome.Result.SessionID, outcome.Result.Mode)
	case trigger.StateSkipped:
		fmt.Fprintf(out, "Skipped: %s\n", outcome.Reason)
	case trigger.StateFallback:
		fmt.Fprintf(out, "Dispatch failed (%s); command queued for the next interaction\n", outcome.Reason)
	}
	// A hook must never fail the git operation it is attached to.
	return nil
}

// gitOutput runs a git command in dir, returning trimmed stdout or "" on
// failure.
func gitOutput(dir string, args ...string) string {
	c := exec.Command("git", args...)
	c.Dir = dir
	out, err := c.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
