package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dd0wney/gridflow/pkg/scenario"
)

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadParsesAndValidatesAWellFormedSpec(t *testing.T) {
	path := writeSpec(t, `
version: "1"
defaults:
  load_scale: 1.0
  renewable_scale: 1.0
  weight: 1.0
scenarios:
  - scenario_id: base
  - scenario_id: branch-2-out
    outages:
      - type: branch
        id: 2
    load_scale: 1.1
`)

	spec, err := scenario.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spec.Scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(spec.Scenarios))
	}

	resolved := spec.Resolve(spec.Scenarios[0])
	if resolved.LoadScale != 1.0 {
		t.Errorf("expected base scenario to inherit default load_scale 1.0, got %v", resolved.LoadScale)
	}

	overridden := spec.Resolve(spec.Scenarios[1])
	if overridden.LoadScale != 1.1 {
		t.Errorf("expected overridden load_scale 1.1, got %v", overridden.LoadScale)
	}
}

func TestLoadRejectsDuplicateScenarioIDs(t *testing.T) {
	path := writeSpec(t, `
version: "1"
scenarios:
  - scenario_id: dup
  - scenario_id: dup
`)

	if _, err := scenario.Load(path); err == nil {
		t.Fatal("expected duplicate scenario_id to be rejected")
	}
}

func TestLoadRejectsNegativeScale(t *testing.T) {
	path := writeSpec(t, `
version: "1"
scenarios:
  - scenario_id: bad
    load_scale: -1
`)

	if _, err := scenario.Load(path); err == nil {
		t.Fatal("expected negative load_scale to be rejected")
	}
}

func TestLoadRejectsUnparseableTimeSlice(t *testing.T) {
	path := writeSpec(t, `
version: "1"
scenarios:
  - scenario_id: bad-time
    time_slices:
      - "not-a-timestamp"
`)

	if _, err := scenario.Load(path); err == nil {
		t.Fatal("expected unparseable time slice to be rejected")
	}
}

func TestLoadRejectsEmptyScenarioList(t *testing.T) {
	path := writeSpec(t, `
version: "1"
scenarios: []
`)

	if _, err := scenario.Load(path); err == nil {
		t.Fatal("expected empty scenario list to be rejected")
	}
}
