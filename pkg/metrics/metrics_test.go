package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.SolveTotal == nil {
		t.Error("SolveTotal not initialized")
	}
	if r.SolveDuration == nil {
		t.Error("SolveDuration not initialized")
	}
	if r.BatchJobsTotal == nil {
		t.Error("BatchJobsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordSolve(t *testing.T) {
	r := NewRegistry()

	r.RecordSolve("pf-ac", "ok", 10*time.Millisecond, 4)
	r.RecordSolve("pf-ac", "diverged", 50*time.Millisecond, 30)

	counter, err := r.SolveTotal.GetMetricWithLabelValues("pf-ac", "ok")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.(prometheus.Metric).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("expected SolveTotal{pf-ac,ok}=1, got %v", metric.Counter.GetValue())
	}

	failures, err := r.SolveFailuresTotal.GetMetricWithLabelValues("pf-ac", "diverged")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var fm dto.Metric
	if err := failures.(prometheus.Metric).Write(&fm); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if fm.Counter.GetValue() != 1 {
		t.Errorf("expected SolveFailuresTotal{pf-ac,diverged}=1, got %v", fm.Counter.GetValue())
	}
}

func TestRecordSolveOKDoesNotIncrementFailures(t *testing.T) {
	r := NewRegistry()
	r.RecordSolve("opf-dcopf", "ok", time.Millisecond, 1)

	families, err := r.registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "gridflow_solve_failures_total" {
			continue
		}
		for _, m := range fam.Metric {
			for _, l := range m.Label {
				if l.GetName() == "stage" && l.GetValue() == "opf-dcopf" {
					t.Fatalf("did not expect a failures sample for a status=ok solve")
				}
			}
		}
	}
}

func TestRecordBatchJobAndQueueDepth(t *testing.T) {
	r := NewRegistry()
	r.RecordBatchJob("pf-dc", "ok", 5*time.Millisecond)
	r.SetBatchQueueDepth(7)

	counter, err := r.BatchJobsTotal.GetMetricWithLabelValues("pf-dc", "ok")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.(prometheus.Metric).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("expected BatchJobsTotal{pf-dc,ok}=1, got %v", metric.Counter.GetValue())
	}

	var gauge dto.Metric
	if err := r.BatchQueueDepth.Write(&gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 7 {
		t.Errorf("expected BatchQueueDepth=7, got %v", gauge.Gauge.GetValue())
	}
}

func TestGetPrometheusRegistryExposesMetricNames(t *testing.T) {
	r := NewRegistry()
	r.RecordSolve("se-wls", "ok", time.Millisecond, 2)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	var names []string
	for _, fam := range families {
		names = append(names, fam.GetName())
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "gridflow_solve_total") {
		t.Errorf("expected gridflow_solve_total among gathered families, got %s", joined)
	}
}
