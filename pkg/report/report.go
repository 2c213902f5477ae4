// Package report writes suite results as JSON documents that other tools
// can consume.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/geoprobe/pkg/core"
)

// Document is the on-disk report format.
type Document struct {
	RunID       string              `json:"runId"`
	Version     string              `json:"version"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Server      string              `json:"server,omitempty"`
	Browser     string              `json:"browser,omitempty"`
	Status      core.CheckStatus    `json:"status"`
	Suites      []*core.SuiteResult `json:"suites"`
}

// Meta describes the environment a suite ran against.
type Meta struct {
	RunID   string // generated when empty
	Version string
	Server  string
	Browser string
}

// New wraps suite results in a report document. The document status is the
// worst suite status: errored, then failed, then passed.
func New(results []*core.SuiteResult, meta Meta) *Document {
	status := core.StatusPassed
	for _, r := range results {
		switch {
		case r.Status == core.StatusErrored:
			status = core.StatusErrored
		case r.Status == core.StatusFailed && status != core.StatusErrored:
			status = core.StatusFailed
		}
	}
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Document{
		RunID:       runID,
		Version:     meta.Version,
		GeneratedAt: time.Now(),
		Server:      meta.Server,
		Browser:     meta.Browser,
		Status:      status,
		Suites:      results,
	}
}

// WriteJSON writes the document to path. The file is written to a temporary
// sibling first and renamed so readers never observe a partial report.
func WriteJSON(path string, doc *Document) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is a user-provided report file
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &doc, nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	return nil
}
