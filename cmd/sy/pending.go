package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/db"
	"github.com/zulandar/switchyard/internal/trigger"
)

func newPendingCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List queued automation commands",
		Long:  "Shows pending-command markers waiting for the next session interaction,\nplus anything queued in the plain-text fallback file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchyard config file")
	return cmd
}

func runPending(cmd *cobra.Command, configPath string) error {
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

	markers, err := trigger.NewStore(gdb, cfg.Automation.FallbackFile).List()
	if err != nil {
		return err
	}
	if len(markers) == 0 {
		fmt.Fprintln(out, "No pending markers.")
	} else {
		fmt.Fprintf(out, "%d pending marker(s):\n", len(markers))
		for _, m := range markers {
			fmt.Fprintf(out, "  %s  %s  %s  (%s)\n",
				m.CreatedAt.Format("2006-01-02 15:04:05"), m.ProjectDir, m.Command, m.Reason)
		}
	}

	entries, err := trigger.ReadFallback(cfg.Automation.FallbackFile)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		fmt.Fprintf(out, "%d entry(ies) in fallback file %s:\n", len(entries), cfg.Automation.FallbackFile)
		for _, e := range entries {
			fmt.Fprintf(out, "  %s  %s  %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.ProjectDir, e.Command)
		}
	}
	return nil
}
