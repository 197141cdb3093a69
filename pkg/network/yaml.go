package network

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRecords reads a YAML-encoded Records document from path — the plain
// serialization of the import-time data contract Records already defines,
// not a stand-in for a format-specific importer (spec.md's Non-goals
// explicitly place PSS/E-, MATPOWER- and CSV-style parsers out of scope;
// this just lets cmd/gridflow-solve and cmd/gridflow-batch read the
// contract directly off disk, the same way pkg/scenario.Load reads a
// scenario document).
func LoadRecords(path string) (*Records, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("network: reading %s: %w", path, err)
	}
	var records Records
	if err := yaml.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("network: parsing %s: %w", path, err)
	}
	return &records, nil
}

// LoadModel reads Records from path and constructs a validated Model.
func LoadModel(path string) (*Model, error) {
	records, err := LoadRecords(path)
	if err != nil {
		return nil, err
	}
	return New(*records)
}
