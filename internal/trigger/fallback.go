package trigger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// AppendFallback appends one pending command line to the durable fallback
// queue file. Format: RFC3339 timestamp, project dir, command, tab-separated.
func AppendFallback(path, projectDir, command string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("trigger: open fallback file %s: %w", path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339), projectDir, command)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("trigger: append to fallback file %s: %w", path, err)
	}
	return nil
}

// FallbackEntry is one line of the fallback queue file.
type FallbackEntry struct {
	Timestamp  time.Time
	ProjectDir string
	Command    string
}

// ReadFallback parses the fallback queue file. A missing file yields an
// empty list. Malformed lines are skipped.
func ReadFallback(path string) ([]FallbackEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("trigger: open fallback file %s: %w", path, err)
	}
	defer f.Close()

	var entries []FallbackEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			continue
		}
		entries = append(entries, FallbackEntry{
			Timestamp:  ts,
			ProjectDir: parts[1],
			Command:    parts[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trigger: read fallback file %s: %w", path, err)
	}
	return entries, nil
}
