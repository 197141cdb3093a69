// Package scenario parses and validates spec.md §6's scenario-specification
// document: a declarative YAML file enumerating named network variants for
// pkg/batch to materialize and fan out. The loader follows the teacher
// pack's battery-backtest config loader (internal/config/config.go) — read
// the whole file with gopkg.in/yaml.v3, apply document-level defaults, then
// validate — adapted from single-struct configs to a document with a
// defaults block and a list of per-scenario overrides.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/gridflow/pkg/gridvalidation"
)

// OutageType names what kind of entity an Outage targets.
type OutageType string

const (
	OutageBranch OutageType = "branch"
	OutageGen    OutageType = "gen"
	OutageBus    OutageType = "bus"
)

// Outage is one entity taken out of service by a scenario.
type Outage struct {
	Type OutageType `yaml:"type"`
	ID   int64      `yaml:"id"`
}

// Defaults is the document-level block every scenario inherits from unless
// it sets its own override.
type Defaults struct {
	LoadScale      float64  `yaml:"load_scale"`
	RenewableScale float64  `yaml:"renewable_scale"`
	TimeSlices     []string `yaml:"time_slices"`
	Weight         float64  `yaml:"weight"`
}

// Scenario is one named network variant. Zero-value LoadScale/RenewableScale
// mean "inherit the document default" — Resolve fills them in.
type Scenario struct {
	ScenarioID     string         `yaml:"scenario_id"`
	Description    string         `yaml:"description"`
	Tags           []string       `yaml:"tags"`
	Outages        []Outage       `yaml:"outages"`
	LoadScale      float64        `yaml:"load_scale"`
	RenewableScale float64        `yaml:"renewable_scale"`
	TimeSlices     []string       `yaml:"time_slices"`
	Weight         float64        `yaml:"weight"`
	Metadata       map[string]any `yaml:"metadata"`
}

// Spec is the full scenario document: a version tag, document-level
// defaults, and the list of named scenarios.
type Spec struct {
	Version  string     `yaml:"version"`
	Defaults Defaults   `yaml:"defaults"`
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load reads and parses a scenario document from path, then validates it.
func Load(path string) (*Spec, error) {
	s, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadUnchecked reads and parses a scenario document without validating it,
// for callers that want to inspect a malformed spec before rejecting it.
func LoadUnchecked(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: reading %s: %w", path, err)
	}
	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("scenario: parsing %s: %w", path, err)
	}
	return &s, nil
}

// Resolve returns scenario's effective load_scale/renewable_scale/
// time_slices/weight, falling back to the document defaults wherever the
// scenario left them at their zero value.
func (s *Spec) Resolve(sc Scenario) Scenario {
	out := sc
	if out.LoadScale == 0 {
		out.LoadScale = s.Defaults.LoadScale
	}
	if out.RenewableScale == 0 {
		out.RenewableScale = s.Defaults.RenewableScale
	}
	if len(out.TimeSlices) == 0 {
		out.TimeSlices = s.Defaults.TimeSlices
	}
	if out.Weight == 0 {
		out.Weight = s.Defaults.Weight
	}
	return out
}

// Validate enforces spec.md §6's scenario-specification invariants:
// scenario IDs unique, scales non-negative, timestamps parseable. Outage
// target resolution against a concrete NetworkModel happens later, in
// pkg/batch.Materialize, since Validate has no model to resolve against.
func (s *Spec) Validate() error {
	cv := gridvalidation.NewConfigValidator("scenario.Spec")
	seen := make(map[string]bool, len(s.Scenarios))

	if len(s.Scenarios) == 0 {
		cv.Custom("scenarios", func() error { return fmt.Errorf("at least one scenario is required") })
	}

	for _, sc := range s.Scenarios {
		cv.Required("scenario_id", sc.ScenarioID)
		if sc.ScenarioID != "" {
			if seen[sc.ScenarioID] {
				cv.Custom("scenario_id", func() error {
					return fmt.Errorf("duplicate scenario_id %q", sc.ScenarioID)
				})
			}
			seen[sc.ScenarioID] = true
		}

		resolved := s.Resolve(sc)
		cv.NonNegative(fmt.Sprintf("%s.load_scale", sc.ScenarioID), resolved.LoadScale)
		cv.NonNegative(fmt.Sprintf("%s.renewable_scale", sc.ScenarioID), resolved.RenewableScale)

		for _, o := range sc.Outages {
			o := o
			cv.OneOf(fmt.Sprintf("%s.outages[].type", sc.ScenarioID), string(o.Type),
				[]string{string(OutageBranch), string(OutageGen), string(OutageBus)})
		}

		for _, ts := range resolved.TimeSlices {
			ts := ts
			cv.Custom(fmt.Sprintf("%s.time_slices", sc.ScenarioID), func() error {
				if _, err := time.Parse(time.RFC3339, ts); err != nil {
					return fmt.Errorf("time slice %q not RFC3339: %w", ts, err)
				}
				return nil
			})
		}
	}

	return cv.Validate()
}
