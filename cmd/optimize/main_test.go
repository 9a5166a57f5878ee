package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEvalLogRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optimize_log.csv")
	l, err := newEvalLog(path, NewParamVector())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.append(1, -1.5, 0.5, []float64{20, 0.5, 400}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + 1 row", len(lines))
	}
	if lines[0] != "eval,fitness,quality,plants,light_duty,initial_co2" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,-1.500000,0.500000,20.000000") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteResults(t *testing.T) {
	fe := newTestEvaluator(t, 3, 5)
	fe.Evaluate(fe.params.DefaultVector())

	dir := t.TempDir()
	opts := options{hours: 3, snails: 5, outputDir: dir}
	best := fe.params.Scenario(fe.params.DefaultVector(), 5)
	if err := writeResults(opts, fe.cfg, best, fe); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"best_scenario.lua", "best_config.yaml", "best_trace.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
