package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/ecochamber/config"
)

// OutputManager writes window statistics to trace.csv and a config snapshot.
type OutputManager struct {
	dir       string
	traceFile *os.File

	// Track if the header has been written
	traceHeaderWritten bool
}

// NewOutputManager creates the output directory and opens trace.csv.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "trace.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating trace.csv: %w", err)
	}

	return &OutputManager{dir: dir, traceFile: f}, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteWindow appends a window stats record to trace.csv.
func (om *OutputManager) WriteWindow(stats WindowStats) error {
	if om == nil {
		return nil
	}

	records := []WindowStats{stats}

	if !om.traceHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, om.traceFile); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		om.traceHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.traceFile); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes trace.csv.
func (om *OutputManager) Close() error {
	if om == nil || om.traceFile == nil {
		return nil
	}
	return om.traceFile.Close()
}
