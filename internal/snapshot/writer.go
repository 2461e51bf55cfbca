package snapshot

import (
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/session"
	"NetSpectraIDS/internal/stats"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	summaryFile    = "summary.json"
	topSourcesFile = "top_sources.gob"
)

// Report summarizes a finished capture session.
type Report struct {
	SessionID   string                  `json:"session_id"`
	Interface   string                  `json:"interface"`
	Statistics  model.SessionStatistics `json:"statistics"`
	AttackRatio float64                 `json:"attack_ratio"`
	TopSources  []stats.SourceCount     `json:"top_sources"`
	Error       string                  `json:"error,omitempty"`
	Timestamp   string                  `json:"timestamp"`
}

// NewReport builds a report from the controller status captured after the
// session ended. sessionErr is the error that terminated it, if any.
func NewReport(status session.Status, iface string, sessionErr error) Report {
	r := Report{
		SessionID:   status.SessionID,
		Interface:   iface,
		Statistics:  status.Statistics,
		AttackRatio: status.AttackRatio,
		TopSources:  status.TopSources,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if sessionErr != nil {
		r.Error = sessionErr.Error()
	}
	return r
}

// Writer handles writing session reports to disk.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Write stores the report under <root>/<timestamp>/<session id>/ and returns
// that directory. The top sources are also written as gob so that they can be
// merged by later tooling without re-parsing JSON.
func (w *Writer) Write(report Report, timestamp string) (string, error) {
	if report.SessionID == "" {
		return "", errors.New("report has no session id")
	}
	dir := filepath.Join(w.root, timestamp, report.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if len(report.TopSources) > 0 {
		if err := writeFile(filepath.Join(dir, topSourcesFile), func(f *os.File) error {
			return gob.NewEncoder(f).Encode(report.TopSources)
		}); err != nil {
			return "", err
		}
	}

	err := writeFile(filepath.Join(dir, summaryFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

func writeFile(path string, encode func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot file '%s': %w", path, err)
	}
	return f.Close()
}

// ReadSummary loads the summary.json in dir.
func ReadSummary(dir string) (Report, error) {
	var r Report
	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode summary: %w", err)
	}
	return r, nil
}
