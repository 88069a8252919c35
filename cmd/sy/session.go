package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Sessions live inside the server process, so the session commands talk to a
// running `sy serve` over its HTTP API.

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage agent sessions on a running server",
	}

	cmd.AddCommand(newSessionLaunchCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionStopCmd())
	return cmd
}

func serverURLFlag(cmd *cobra.Command, serverURL *string) {
	cmd.Flags().StringVar(serverURL, "server", "", "server base URL (default from config)")
}

func resolveServerURL(configPath, flagValue string) (string, error) {
	if flagValue != "" {
		return strings.TrimRight(flagValue, "/"), nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(cfg.Automation.DispatchURL, "/"), nil
}

func apiCall(method, url string, body any) (map[string]json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		if msg, ok := fields["error"]; ok {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.Trim(string(msg), `"`))
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return fields, nil
}

func newSessionLaunchCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		taskID     string
		workDir    string
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch an agent session (or reuse the task's existing one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveServerURL(configPath, serverURL)
			if err != nil {
				return err
			}
			if workDir == "" {
				workDir, _ = os.Getwd()
			}
			fields, err := apiCall(http.MethodPost, base+"/api/sessions", map[string]string{
				"task_id":     taskID,
				"working_dir": workDir,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			reused := string(fields["reused"]) == "true"
			verb := "Launched"
			if reused {
				verb = "Reusing"
			}
			fmt.Fprintf(out, "%s session %s (pid %s) in %s\n",
				verb, strings.Trim(string(fields["session_id"]), `"`),
				string(fields["pid"]), workDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchyard config file")
	serverURLFlag(cmd, &serverURL)
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "task ID to bind the session to")
	cmd.Flags().StringVarP(&workDir, "dir", "d", "", "working directory (default: current directory)")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveServerURL(configPath, serverURL)
			if err != nil {
				return err
			}
			fields, err := apiCall(http.MethodGet, base+"/api/sessions", nil)
			if err != nil {
				return err
			}
			var sessions []struct {
				SessionID   string `json:"session_id"`
				TaskID      string `json:"task_id"`
				PID         int    `json:"pid"`
				WorkDir     string `json:"working_dir"`
				Status      string `json:"status"`
				Subscribers int    `json:"subscribers"`
			}
			if err := json.Unmarshal(fields["sessions"], &sessions); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No live sessions.")
				return nil
			}
			fmt.Fprintf(out, "%-14s %-12s %-8s %-10s %-5s %s\n",
				"SESSION", "TASK", "PID", "STATUS", "SUBS", "DIR")
			for _, s := range sessions {
				task := s.TaskID
				if task == "" {
					task = "-"
				}
				fmt.Fprintf(out, "%-14s %-12s %-8d %-10s %-5d %s\n",
					s.SessionID, task, s.PID, s.Status, s.Subscribers, s.WorkDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchyard config file")
	serverURLFlag(cmd, &serverURL)
	return cmd
}

func newSessionStopCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
	)

	cmd := &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveServerURL(configPath, serverURL)
			if err != nil {
				return err
			}
			if _, err := apiCall(http.MethodDelete, base+"/api/sessions/"+args[0], nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped session %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchyard config file")
	serverURLFlag(cmd, &serverURL)
	return cmd
}
