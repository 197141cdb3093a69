package batch_test

import (
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/batch"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/scenario"
)

func TestMaterializeAppliesOutagesAndScaling(t *testing.T) {
	base := testfixtures.ThreeBusRing()
	spec := &scenario.Spec{
		Version:  "1",
		Defaults: scenario.Defaults{LoadScale: 1.0, RenewableScale: 1.0},
		Scenarios: []scenario.Scenario{
			{ScenarioID: "base"},
			{ScenarioID: "branch-2-out", Outages: []scenario.Outage{{Type: scenario.OutageBranch, ID: 2}}},
			{ScenarioID: "load-up", LoadScale: 1.2},
		},
	}

	artifacts, err := batch.Materialize(base, spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(artifacts))
	}

	byID := map[string]batch.ScenarioArtifact{}
	for _, a := range artifacts {
		byID[a.ScenarioID] = a
	}

	outageModel := byID["branch-2-out"].Model
	bi, ok := outageModel.BranchIndex(2)
	if !ok {
		t.Fatal("expected branch 2 to still exist in the clone")
	}
	if outageModel.Branch(bi).InService {
		t.Fatal("expected branch 2 to be out of service in the branch-2-out scenario")
	}

	baseModel := byID["base"].Model
	baseBi, _ := baseModel.BranchIndex(2)
	if !baseModel.Branch(baseBi).InService {
		t.Fatal("expected the base scenario's clone to leave branch 2 in service")
	}

	loadModel := byID["load-up"].Model
	var totalLoad float64
	for li := 0; li < loadModel.NumLoads(); li++ {
		totalLoad += loadModel.Load(li).PMW
	}
	var baseTotalLoad float64
	for li := 0; li < baseModel.NumLoads(); li++ {
		baseTotalLoad += baseModel.Load(li).PMW
	}
	if totalLoad <= baseTotalLoad {
		t.Fatalf("expected load-up scenario total load %v to exceed base %v", totalLoad, baseTotalLoad)
	}
}

func TestMaterializeRejectsBusOutage(t *testing.T) {
	base := testfixtures.ThreeBusRing()
	spec := &scenario.Spec{
		Scenarios: []scenario.Scenario{
			{ScenarioID: "bad", Outages: []scenario.Outage{{Type: scenario.OutageBus, ID: 2}}},
		},
	}

	_, err := batch.Materialize(base, spec)
	if err == nil {
		t.Fatal("expected a bus outage to be rejected")
	}
	var modelErr *network.ModelError
	if !asModelError(err, &modelErr) {
		t.Fatalf("expected a *network.ModelError, got %T: %v", err, err)
	}
	if modelErr.Kind != network.UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %v", modelErr.Kind)
	}
}

func asModelError(err error, target **network.ModelError) bool {
	for err != nil {
		if me, ok := err.(*network.ModelError); ok {
			*target = me
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestPartitionerBucketsAreStableAndInRange(t *testing.T) {
	p := batch.NewPartitioner(4)
	b1 := p.Bucket("scenario-a")
	b2 := p.Bucket("scenario-a")
	if b1 != b2 {
		t.Fatalf("expected stable bucket assignment, got %d then %d", b1, b2)
	}
	if b1 < 0 || b1 >= 4 {
		t.Fatalf("bucket %d out of range [0,4)", b1)
	}

	dir := p.Dir("pf-dc", "scenario-a", "")
	if dir == "" {
		t.Fatal("expected a non-empty partition directory")
	}
}

func TestManifestRecordsResultsAndComputesDigest(t *testing.T) {
	m := batch.NewManifest("pf-dc", []byte("spec-bytes"), []byte("model-bytes"))
	if m.InputDigest == "" {
		t.Fatal("expected a non-empty input digest")
	}

	m.RecordResult(batch.JobResult{ID: "job-1"}, "scenario-a", "", "in/a", "out/a")
	m.RecordResult(batch.JobResult{ID: "job-2", Err: errTest{}}, "scenario-b", "", "in/b", "out/b")

	if m.Succeeded != 1 || m.Failed != 1 {
		t.Fatalf("expected 1 succeeded and 1 failed, got %d/%d", m.Succeeded, m.Failed)
	}

	raw, err := m.JSON()
	if err != nil {
		t.Fatalf("unexpected JSON error: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty manifest JSON")
	}
}

func TestSignAndVerifyManifestToken(t *testing.T) {
	m := batch.NewManifest("pf-dc", []byte("spec"), []byte("model"))
	m.Succeeded = 3
	m.Failed = 1
	secret := "a-sufficiently-long-manifest-signing-secret"

	token, err := batch.SignManifest(m, secret)
	if err != nil {
		t.Fatalf("unexpected signing error: %v", err)
	}

	claims, err := batch.VerifyManifestToken(token, secret)
	if err != nil {
		t.Fatalf("unexpected verification error: %v", err)
	}
	if claims.InputDigest != m.InputDigest || claims.Succeeded != 3 || claims.Failed != 1 {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	if _, err := batch.VerifyManifestToken(token, "a-completely-different-secret-value"); err == nil {
		t.Fatal("expected verification with the wrong secret to fail")
	}
}

type errTest struct{}

func (errTest) Error() string { return "synthetic test error" }
