package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// TagResult describes what a run did for one tag.
type TagResult struct {
	Tag          types.Tag            `json:"tag"`
	Discovered   int                  `json:"discovered"`
	Added        int                  `json:"added"`
	Failed       int                  `json:"failed"`
	Deferred     int                  `json:"deferred"`
	Locked       []types.CollectionID `json:"locked,omitempty"`
	SyncFailures []types.CollectionID `json:"sync_failures,omitempty"`
	// Drift lists collections whose re-sync disagreed with the expected
	// count by more than the revalidate threshold.
	Drift []types.CollectionID `json:"drift,omitempty"`
	// Abandoned is set when cancellation stopped the tag early.
	Abandoned bool `json:"abandoned,omitempty"`
}

// Summary describes a whole run.
type Summary struct {
	RunID       string      `json:"run_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Tags        []TagResult `json:"tags"`
	Additions   []Addition  `json:"additions"`
	Total       int         `json:"total"`
	Message     string      `json:"message,omitempty"`
	Published   bool        `json:"published"`
	Interrupted bool        `json:"interrupted"`
	Errors      []string    `json:"errors,omitempty"`
}

// Duration returns how long the run took.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// WriteReport stores summary as indented JSON in dir and returns the path.
func WriteReport(dir string, summary *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	name := summary.StartedAt.UTC().Format("20060102T150405Z")
	if summary.RunID != "" {
		name += "-" + summary.RunID
	}
	path := filepath.Join(dir, name+".json")

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize report: %w", err)
	}
	return path, nil
}

// ErrNoReport is returned by LatestReport when dir holds no run reports.
var ErrNoReport = errors.New("no run report found")

// LatestReport loads the most recent report in dir. Report names start
// with a UTC timestamp so the lexically last one is the newest.
func LatestReport(dir string) (*Summary, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNoReport
		}
		return nil, "", fmt.Errorf("failed to read report directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, "", ErrNoReport
	}
	sort.Strings(names)

	path := filepath.Join(dir, names[len(names)-1])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read report: %w", err)
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, path, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &summary, path, nil
}
