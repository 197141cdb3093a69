package batch

import (
	"fmt"

	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/scenario"
)

// ScenarioArtifact is the materialized model for one scenario plus the
// resolved parameters that produced it, per spec.md §6's "write the
// derived model and emit a scenario-artifact record".
type ScenarioArtifact struct {
	ScenarioID string
	Model      *network.Model
	Resolved   scenario.Scenario
}

// Materialize clones base once per scenario in spec, applying each
// scenario's outages and load/renewable scaling per spec.md §6. Bus
// outages are rejected outright — removing a bus (as opposed to a branch
// or generator) has no NetworkModel.Mutation representation, since a bus
// outage would change the model's bus count rather than just an
// in-service flag, and spec.md's decision here (SPEC_FULL §10, "Bus
// outages") is to reject rather than invent a bus-removal mutation kind.
func Materialize(base *network.Model, spec *scenario.Spec, opts ...logging.Logger) ([]ScenarioArtifact, error) {
	logger := logging.NewNopLogger()
	if len(opts) > 0 && opts[0] != nil {
		logger = opts[0]
	}
	logger.Info("materializing scenario batch", logging.Component("batch"), logging.Count(len(spec.Scenarios)))

	out := make([]ScenarioArtifact, 0, len(spec.Scenarios))
	for _, sc := range spec.Scenarios {
		resolved := spec.Resolve(sc)

		muts, err := outageMutations(resolved.Outages)
		if err != nil {
			logger.Warn("materialize failed", logging.Component("batch"), logging.ScenarioID(resolved.ScenarioID), logging.Error(err))
			return nil, fmt.Errorf("scenario %s: %w", resolved.ScenarioID, err)
		}
		muts = append(muts, scalingMutations(resolved)...)

		clone, err := base.CloneWithMutations(muts)
		if err != nil {
			logger.Warn("materialize failed", logging.Component("batch"), logging.ScenarioID(resolved.ScenarioID), logging.Error(err))
			return nil, fmt.Errorf("scenario %s: %w", resolved.ScenarioID, err)
		}

		out = append(out, ScenarioArtifact{ScenarioID: resolved.ScenarioID, Model: clone, Resolved: resolved})
	}
	logger.Info("materialize complete", logging.Component("batch"), logging.Count(len(out)))
	return out, nil
}

func outageMutations(outages []scenario.Outage) ([]network.Mutation, error) {
	muts := make([]network.Mutation, 0, len(outages))
	for _, o := range outages {
		switch o.Type {
		case scenario.OutageBranch:
			muts = append(muts, network.Mutation{Kind: network.SetBranchStatus, ExternalID: o.ID, InService: false})
		case scenario.OutageGen:
			muts = append(muts, network.Mutation{Kind: network.SetGenStatus, ExternalID: o.ID, InService: false})
		case scenario.OutageBus:
			return nil, &network.ModelError{Kind: network.UnsupportedFeature, Op: "materialize", Entity: "bus", ID: o.ID,
				Context: "bus outages are not supported; outage the bus's branches and generators instead"}
		default:
			return nil, fmt.Errorf("unrecognized outage type %q", o.Type)
		}
	}
	return muts, nil
}

// scalingMutations applies load_scale to every load and renewable_scale to
// every generator — spec.md §10's "Renewable scaling scope" decision: v0
// has no per-generator is-renewable flag wired through scaling, so the
// factor is applied uniformly, the same simplification ScaleGen already
// makes.
func scalingMutations(resolved scenario.Scenario) []network.Mutation {
	var muts []network.Mutation
	if resolved.LoadScale != 0 && resolved.LoadScale != 1.0 {
		muts = append(muts, network.Mutation{Kind: network.ScaleLoad, Factor: resolved.LoadScale})
	}
	if resolved.RenewableScale != 0 && resolved.RenewableScale != 1.0 {
		muts = append(muts, network.Mutation{Kind: network.ScaleGen, Factor: resolved.RenewableScale})
	}
	return muts
}
