// Command gridflow-solve runs a single solver stage against one network
// model and writes its result rows through pkg/resultio, the single-network
// counterpart to cmd/gridflow-batch's scenario fan-out. Flag parsing and
// startup logging follow the teacher's flag-based CLI shape (cmd/graphdb-
// server/main.go's flag.String/flag.Int entry point), swapped from the
// teacher's log.Printf startup messages to an injected pkg/logging logger
// so a solve run logs the same way the library code it calls does.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/acnlp"
	"github.com/dd0wney/gridflow/pkg/opf/dcopf"
	"github.com/dd0wney/gridflow/pkg/opf/ed"
	"github.com/dd0wney/gridflow/pkg/opf/socp"
	"github.com/dd0wney/gridflow/pkg/powerflow"
	"github.com/dd0wney/gridflow/pkg/resultio"
)

func main() {
	modelPath := flag.String("model", "", "path to a YAML network.Records document")
	stage := flag.String("stage", "pf-dc", "solver stage: pf-dc, pf-ac, opf-ed, opf-dcopf, opf-socp, opf-acnlp")
	outDir := flag.String("out", "./out", "output directory for partitioned result rows")
	scenarioID := flag.String("scenario-id", "default", "scenario_id partition key for the written rows")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(*logLevel))

	if *modelPath == "" {
		logger.Error("gridflow-solve: -model is required", logging.Component("gridflow-solve"))
		os.Exit(2)
	}

	if err := run(logger, *modelPath, *stage, *outDir, *scenarioID); err != nil {
		logger.Error("gridflow-solve failed", logging.Component("gridflow-solve"), logging.Error(err))
		os.Exit(1)
	}
}

func run(logger logging.Logger, modelPath, stage, outDir, scenarioID string) error {
	logger.Info("loading network model", logging.Component("gridflow-solve"), logging.Path(modelPath))
	nm, err := network.LoadModel(modelPath)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	adm, err := admittance.Build(nm)
	if err != nil {
		return fmt.Errorf("building admittance assembly: %w", err)
	}

	reg := metrics.NewRegistry()
	writer := resultio.NewWriter(outDir, 1, logger)
	defer writer.Close()

	switch stage {
	case "pf-dc":
		sol, err := powerflow.SolveDC(nm, adm, powerflow.DCOptions{Logger: logger, Metrics: reg})
		if err != nil {
			return err
		}
		return writePowerFlowRows(writer, resultio.StagePFDC, scenarioID, nm, sol)

	case "pf-ac":
		acOpts := powerflow.DefaultACOptions()
		acOpts.Logger, acOpts.Metrics = logger, reg
		sol, err := powerflow.SolveAC(nm, adm, acOpts)
		if err != nil {
			return err
		}
		return writePowerFlowRows(writer, resultio.StagePFAC, scenarioID, nm, sol)

	case "opf-ed":
		opts := opf.DefaultOptions()
		opts.Logger, opts.Metrics = logger, reg
		sol, err := ed.Solve(nm, opts)
		if err != nil {
			return err
		}
		return writeOPFRows(writer, resultio.StageOPFED, scenarioID, nm, sol)

	case "opf-dcopf":
		opts := opf.DefaultOptions()
		opts.Logger, opts.Metrics = logger, reg
		sol, err := dcopf.Solve(nm, adm, opts)
		if err != nil {
			return err
		}
		return writeOPFRows(writer, resultio.StageOPFDC, scenarioID, nm, sol)

	case "opf-socp":
		opts := opf.DefaultOptions()
		opts.Logger, opts.Metrics = logger, reg
		sol, err := socp.Solve(nm, opts)
		if err != nil {
			return err
		}
		return writeOPFRows(writer, resultio.StageOPFSOCP, scenarioID, nm, sol)

	case "opf-acnlp":
		opts := opf.DefaultOptions()
		opts.Logger, opts.Metrics = logger, reg
		sol, err := acnlp.Solve(nm, adm, opts)
		if err != nil {
			return err
		}
		return writeOPFRows(writer, resultio.StageOPFACNLP, scenarioID, nm, sol)

	case "nminus1-dc":
		return fmt.Errorf("stage %q requires a contingency list; use cmd/gridflow-batch instead", stage)

	default:
		return fmt.Errorf("unrecognized stage %q", stage)
	}
}

// writePowerFlowRows flattens a powerflow.Solution into one resultio.Row
// per bus.
func writePowerFlowRows(w *resultio.Writer, stage resultio.Stage, scenarioID string, nm *network.Model, sol *powerflow.Solution) error {
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
		if err := w.WriteRow(resultio.Row{Stage: stage, ScenarioID: scenarioID, Payload: row}); err != nil {
			return err
		}
	}
	return nil
}

// writeOPFRows flattens an opf.Solution into one resultio.Row per
// generator dispatch.
func writeOPFRows(w *resultio.Writer, stage resultio.Stage, scenarioID string, nm *network.Model, sol *opf.Solution) error {
	for gi, g := range sol.Gens {
		externalID := int64(gi)
		if gi < nm.NumGens() {
			externalID = nm.Gen(gi).ExternalID
		}
		row := resultio.OPFRow{
			GenExternalID: externalID,
			PMW:           g.PMW,
			QMVAr:         g.QMVAr,
			QPopulated:    g.QPopulated,
			Objective:     sol.Objective,
			LossesMW:      sol.LossesMW,
			Iterations:    sol.Iterations,
		}
		if err := w.WriteRow(resultio.Row{Stage: stage, ScenarioID: scenarioID, Payload: row}); err != nil {
			return err
		}
	}
	return nil
}
