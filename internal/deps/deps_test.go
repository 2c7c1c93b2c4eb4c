package deps

import (
	"os"
	"path/filepath"
	"testing"

	"spool/internal/config"
)

func TestCheckResolvesAndReportsMissing(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := Check([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Errorf("present tool = %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Errorf("missing tool = %#v", results[1])
	}
}

func TestCheckEmptyCommand(t *testing.T) {
	results := Check([]Requirement{{Name: "Blank", Command: "   "}})
	if results[0].Available {
		t.Fatal("blank command reported available")
	}
	if results[0].Detail != "command not configured" {
		t.Errorf("detail = %q", results[0].Detail)
	}
}

func TestFromConfigCoversPipelineTools(t *testing.T) {
	cfg := config.Default()
	reqs := FromConfig(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != cfg.Fetcher.Binary || reqs[1].Command != cfg.Transcoder.Binary {
		t.Errorf("requirements = %+v", reqs)
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Name: "A", Available: false, Optional: true},
		{Name: "B", Available: false},
		{Name: "C", Available: true},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "B" {
		t.Errorf("missing = %+v", missing)
	}
}
