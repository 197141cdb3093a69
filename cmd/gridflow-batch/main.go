// Command gridflow-batch runs a scenario batch end-to-end: materialize a
// scenario specification against a base network model, fan every scenario
// out over a worker pool for one solver stage, write partitioned result
// rows, and emit a run manifest (optionally signed and uploaded) — spec.md
// §6/§7's BatchRunner. Flag
// parsing mirrors the teacher's cmd/graphdb-server/main.go (flag.String/
// flag.Int, not a cobra/urfave subcommand tree), generalized from an HTTP
// server's listen address/data-dir flags to a batch run's model/scenario/
// stage/worker flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/batch"
	"github.com/dd0wney/gridflow/pkg/contingency"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/powerflow"
	"github.com/dd0wney/gridflow/pkg/resultio"
	"github.com/dd0wney/gridflow/pkg/scenario"
)

func main() {
	modelPath := flag.String("model", "", "path to a YAML network.Records document (the base model)")
	scenariosPath := flag.String("scenarios", "", "path to a YAML scenario.Spec document")
	stage := flag.String("stage", "pf-dc", "batch task kind: pf-dc, pf-ac, nminus1-dc")
	workers := flag.Int("workers", 4, "worker pool concurrency")
	outDir := flag.String("out", "./out", "output directory for partitioned result rows")
	bucketCount := flag.Int("buckets", 4, "partition bucket count per stage/scenario directory")
	manifestPath := flag.String("manifest-out", "./manifest.json", "path to write the run manifest")
	signSecret := flag.String("sign-secret", "", "if set, sign the manifest as a JWT using this HS256 secret (min 32 bytes)")
	s3Bucket := flag.String("s3-bucket", "", "if set, upload the manifest to this S3 bucket after the run completes")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(*logLevel))

	if *modelPath == "" || *scenariosPath == "" {
		logger.Error("gridflow-batch: -model and -scenarios are required", logging.Component("gridflow-batch"))
		os.Exit(2)
	}

	if err := run(context.Background(), logger, runArgs{
		modelPath:     *modelPath,
		scenariosPath: *scenariosPath,
		stage:         *stage,
		workers:       *workers,
		outDir:        *outDir,
		bucketCount:   *bucketCount,
		manifestPath:  *manifestPath,
		signSecret:    *signSecret,
		s3Bucket:      *s3Bucket,
	}); err != nil {
		logger.Error("gridflow-batch failed", logging.Component("gridflow-batch"), logging.Error(err))
		os.Exit(1)
	}
}

type runArgs struct {
	modelPath, scenariosPath, stage string
	workers, bucketCount            int
	outDir, manifestPath            string
	signSecret, s3Bucket            string
}

func run(ctx context.Context, logger logging.Logger, a runArgs) error {
	specBytes, err := os.ReadFile(a.scenariosPath)
	if err != nil {
		return fmt.Errorf("reading scenario spec: %w", err)
	}
	modelBytes, err := os.ReadFile(a.modelPath)
	if err != nil {
		return fmt.Errorf("reading base model: %w", err)
	}

	base, err := network.LoadModel(a.modelPath)
	if err != nil {
		return fmt.Errorf("loading base model: %w", err)
	}
	spec, err := scenario.Load(a.scenariosPath)
	if err != nil {
		return fmt.Errorf("loading scenario spec: %w", err)
	}

	reg := metrics.NewRegistry()
	artifacts, err := batch.Materialize(base, spec, logger)
	if err != nil {
		return fmt.Errorf("materializing scenarios: %w", err)
	}

	writer := resultio.NewWriter(a.outDir, a.bucketCount, logger)
	defer writer.Close()

	manifest := batch.NewManifest(a.stage, specBytes, modelBytes)
	reg.SetBatchQueueDepth(len(artifacts))

	jobs := make([]batch.Job, len(artifacts))
	for i, artifact := range artifacts {
		artifact := artifact
		jobs[i] = batch.Job{
			ID:  artifact.ScenarioID,
			Run: func() (any, error) { return runStage(a.stage, artifact, writer, reg) },
		}
	}

	results, err := batch.RunAll(a.workers, jobs)
	reg.SetBatchQueueDepth(0)
	if err != nil {
		return fmt.Errorf("running batch: %w", err)
	}

	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "error"
		}
		reg.RecordBatchJob(a.stage, status, r.Duration)
		manifest.RecordResult(r, r.ID, "", a.modelPath, a.outDir)
	}

	logger.Info("batch run complete", logging.Component("gridflow-batch"),
		logging.Count(manifest.Succeeded+manifest.Failed), logging.Int("succeeded", manifest.Succeeded), logging.Int("failed", manifest.Failed))

	raw, err := manifest.JSON()
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}
	if err := os.WriteFile(a.manifestPath, raw, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	if a.signSecret != "" {
		token, err := batch.SignManifest(manifest, a.signSecret)
		if err != nil {
			return fmt.Errorf("signing manifest: %w", err)
		}
		if err := os.WriteFile(a.manifestPath+".jwt", []byte(token), 0o644); err != nil {
			return fmt.Errorf("writing manifest token: %w", err)
		}
	}

	if a.s3Bucket != "" {
		sink, err := batch.NewS3SinkFromEnv(ctx, a.s3Bucket)
		if err != nil {
			return fmt.Errorf("configuring S3 sink: %w", err)
		}
		if err := sink.Upload(ctx, "manifest.json", raw); err != nil {
			return fmt.Errorf("uploading manifest: %w", err)
		}
		logger.Info("manifest uploaded", logging.Component("gridflow-batch"), logging.String("bucket", a.s3Bucket))
	}

	return nil
}

// runStage solves one materialized scenario under the requested stage and
// writes its result rows, returning a value batch.JobResult carries through
// RunAll. nminus1-dc screens the scenario's own derived model with one
// contingency per in-service branch (a scenario's model already encodes its
// own outage set via Materialize; N-1 screening on top of that answers "is
// this scenario still secure against one more contingency").
func runStage(stage string, artifact batch.ScenarioArtifact, w *resultio.Writer, reg *metrics.Registry) (any, error) {
	adm, err := admittance.Build(artifact.Model)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: building admittance assembly: %w", artifact.ScenarioID, err)
	}

	switch stage {
	case "pf-dc":
		sol, err := powerflow.SolveDC(artifact.Model, adm, powerflow.DCOptions{Metrics: reg})
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", artifact.ScenarioID, err)
		}
		return nil, writePowerFlowRows(w, resultio.StagePFDC, artifact, sol)

	case "pf-ac":
		acOpts := powerflow.DefaultACOptions()
		acOpts.Metrics = reg
		sol, err := powerflow.SolveAC(artifact.Model, adm, acOpts)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", artifact.ScenarioID, err)
		}
		return nil, writePowerFlowRows(w, resultio.StagePFAC, artifact, sol)

	case "nminus1-dc":
		contingencies := allBranchContingencies(artifact.Model)
		copts := contingency.DefaultOptions()
		copts.Metrics = reg
		results, err := contingency.ScreenNMinus1(artifact.Model, contingencies, copts)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", artifact.ScenarioID, err)
		}
		return nil, writeContingencyRows(w, artifact, results)

	default:
		return nil, fmt.Errorf("unrecognized batch stage %q", stage)
	}
}

// allBranchContingencies builds one N-1 contingency per in-service branch,
// the default screening set when the caller names no explicit contingency
// list.
func allBranchContingencies(nm *network.Model) []contingency.Contingency {
	out := make([]contingency.Contingency, 0, nm.NumBranches())
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		out = append(out, contingency.Contingency{
			ID:              fmt.Sprintf("branch-%d", br.ExternalID),
			OutageBranchIDs: []int64{br.ExternalID},
		})
	}
	return out
}

func writePowerFlowRows(w *resultio.Writer, stage resultio.Stage, artifact batch.ScenarioArtifact, sol *powerflow.Solution) error {
	nm := artifact.Model
	for bi := 0; bi < nm.NumBuses(); bi++ {
		row := resultio.PowerFlowRow{
			BusExternalID: nm.BusExternalID(bi),
			VM:            sol.Buses[bi].VM,
			VA:            sol.Buses[bi].VA,
			Converged:     sol.Converged,
			Iterations:    sol.Iterations,
			LossesMW:      sol.LossesMW,
			LossesMVAr:    sol.LossesMVAr,
		}
		if err := w.WriteRow(resultio.Row{Stage: stage, ScenarioID: artifact.ScenarioID, Payload: row}); err != nil {
			return err
		}
	}
	return nil
}

func writeContingencyRows(w *resultio.Writer, artifact batch.ScenarioArtifact, results []contingency.Result) error {
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if len(r.Violations) == 0 {
			row := resultio.ContingencyRow{ContingencyID: r.ContingencyID, Converged: r.Converged, Islanded: r.Islanded}
			if err := w.WriteRow(resultio.Row{Stage: resultio.StageNMinus1DC, ScenarioID: artifact.ScenarioID, Payload: row}); err != nil {
				return err
			}
			continue
		}
		for _, v := range r.Violations {
			row := resultio.ContingencyRow{
				ContingencyID:    r.ContingencyID,
				BranchExternalID: v.BranchExternalID,
				Converged:        r.Converged,
				Islanded:         r.Islanded,
				FlowMVA:          v.FlowMVA,
				LimitMVA:         v.LimitMVA,
				PercentLoading:   v.PercentLoading,
				Violated:         v.Violated,
			}
			if err := w.WriteRow(resultio.Row{Stage: resultio.StageNMinus1DC, ScenarioID: artifact.ScenarioID, Payload: row}); err != nil {
				return err
			}
		}
	}
	return nil
}
