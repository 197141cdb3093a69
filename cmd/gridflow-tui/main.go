// Command gridflow-tui is a live monitor over a scenario batch's worker-pool
// fan-out, adapted from the teacher's cmd/tui (a bubbletea/bubbles/lipgloss
// console for interactively querying a GraphStorage). Where the teacher's
// model held a *storage.GraphStorage and a *query.Executor and refreshed a
// dashboard view on a one-second tea.Tick, this one holds a *batch.WorkerPool
// and refreshes a job table as JobResults arrive on its Results channel —
// the same tick-driven model/update/view shape, pointed at a different
// subsystem.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/batch"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/powerflow"
	"github.com/dd0wney/gridflow/pkg/scenario"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginLeft(2)

	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
)

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type resultMsg batch.JobResult
type poolDoneMsg struct{}
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForResult(ch <-chan batch.JobResult) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return poolDoneMsg{}
		}
		return resultMsg(r)
	}
}

type model struct {
	pool      *batch.WorkerPool
	results   <-chan batch.JobResult
	total     int
	completed int
	succeeded int
	failed    int
	startTime time.Time
	jobTable  table.Model
	help      help.Model
	width     int
	done      bool
}

func initialModel(pool *batch.WorkerPool, total int) model {
	columns := []table.Column{
		{Title: "Scenario", Width: 24},
		{Title: "Status", Width: 10},
		{Title: "Duration", Width: 14},
	}
	t := table.New(table.WithColumns(columns), table.WithHeight(15))
	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#00FFFF")).BorderBottom(true).Bold(true)
	t.SetStyles(s)

	return model{
		pool:      pool,
		results:   pool.Results(),
		total:     total,
		startTime: time.Now(),
		jobTable:  t,
		help:      help.New(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForResult(m.results), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case resultMsg:
		r := batch.JobResult(msg)
		m.completed++
		status := "ok"
		style := okStyle
		if r.Err != nil {
			m.failed++
			status = "error"
			style = failStyle
		} else {
			m.succeeded++
		}
		rows := append(m.jobTable.Rows(), table.Row{r.ID, style.Render(status), r.Duration.Round(time.Millisecond).String()})
		m.jobTable.SetRows(rows)

		if m.completed >= m.total {
			m.done = true
			m.pool.Close()
			return m, nil
		}
		return m, waitForResult(m.results)

	case poolDoneMsg:
		m.done = true
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	elapsed := time.Since(m.startTime).Round(time.Millisecond)
	status := "running"
	if m.done {
		status = "done"
	}
	header := titleStyle.Render(fmt.Sprintf("gridflow-tui — fan-out monitor (%s)", status))
	stats := statsBoxStyle.Render(fmt.Sprintf(
		"completed: %d/%d\nsucceeded: %d\nfailed: %d\nelapsed: %s",
		m.completed, m.total, m.succeeded, m.failed, elapsed))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		stats,
		m.jobTable.View(),
		"\n"+m.help.View(helpKeys{}),
	)
}

type helpKeys struct{}

func (helpKeys) ShortHelp() []key.Binding { return []key.Binding{keys.Quit} }
func (helpKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{keys.Quit}}
}

func main() {
	modelPath := flag.String("model", "", "path to a YAML network.Records document (the base model)")
	scenariosPath := flag.String("scenarios", "", "path to a YAML scenario.Spec document")
	stage := flag.String("stage", "pf-dc", "batch task kind: pf-dc, pf-ac")
	workers := flag.Int("workers", 4, "worker pool concurrency")
	logFile := flag.String("log-file", "gridflow-tui.log", "file to write structured logs to (stdout is reserved for the TUI)")
	flag.Parse()

	if *modelPath == "" || *scenariosPath == "" {
		fmt.Fprintln(os.Stderr, "gridflow-tui: -model and -scenarios are required")
		os.Exit(2)
	}

	logf, err := os.Create(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridflow-tui: opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logf.Close()
	logger := logging.NewJSONLogger(logf, logging.InfoLevel)

	base, err := network.LoadModel(*modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridflow-tui: loading base model: %v\n", err)
		os.Exit(1)
	}
	spec, err := scenario.Load(*scenariosPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridflow-tui: loading scenario spec: %v\n", err)
		os.Exit(1)
	}

	artifacts, err := batch.Materialize(base, spec, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridflow-tui: materializing scenarios: %v\n", err)
		os.Exit(1)
	}

	reg := metrics.NewRegistry()
	pool, err := batch.NewWorkerPool(*workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridflow-tui: %v\n", err)
		os.Exit(1)
	}

	go func() {
		for _, artifact := range artifacts {
			artifact := artifact
			pool.Submit(batch.Job{
				ID: artifact.ScenarioID,
				Run: func() (any, error) {
					adm, err := admittance.Build(artifact.Model)
					if err != nil {
						return nil, err
					}
					switch *stage {
					case "pf-ac":
						opts := powerflow.DefaultACOptions()
						opts.Metrics = reg
						return powerflow.SolveAC(artifact.Model, adm, opts)
					default:
						return powerflow.SolveDC(artifact.Model, adm, powerflow.DCOptions{Metrics: reg})
					}
				},
			})
		}
	}()

	p := tea.NewProgram(initialModel(pool, len(artifacts)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "gridflow-tui: %v\n", err)
		os.Exit(1)
	}
}
