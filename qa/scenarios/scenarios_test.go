package scenarios

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenarios found")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(":"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected unmarshal error")
	}
	mode := filepath.Join(dir, "mode.yaml")
	if err := os.WriteFile(mode, []byte("name: x\nfail_agents:\n  1: flaky\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(mode); err == nil {
		t.Fatal("expected unknown failure mode error")
	}
}

func TestAgentDefDefaultsToAvailable(t *testing.T) {
	rec := AgentDef{ID: 4, X: 1, Y: 2}.ToModel()
	if rec.Status != "available" {
		t.Fatalf("expected available, got %s", rec.Status)
	}
	if !rec.Address.Valid() {
		t.Fatalf("expected a dialable address, got %s", rec.Address)
	}
}
