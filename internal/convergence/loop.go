package convergence

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ShayCichocki/waggle/internal/research"
	"github.com/ShayCichocki/waggle/internal/state"
	"github.com/ShayCichocki/waggle/pkg/models"
)

// Default loop parameters.
const (
	DefaultMaxIterations = 10
	DefaultTargetRate    = 5.0
	DefaultSearchLimit   = 5
)

// Event types published by the loop.
const (
	EventIterationCompleted = "iteration_completed"
	EventLoopPaused         = "loop_paused"
	EventLoopResumed        = "loop_resumed"
	EventLoopCompleted      = "loop_completed"
	EventLoopFailed         = "loop_failed"
)

// Retriever finds research artifacts relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]*research.Artifact, error)
}

// EventSink receives loop lifecycle events.
type EventSink interface {
	Publish(projectID string, eventType string, payload map[string]any)
}

// Config wires a convergence loop.
type Config struct {
	// ProjectID identifies the project. Required.
	ProjectID string
	// Spec is the initial specification text.
	Spec string
	// Plan is the initial plan text.
	Plan string
	// MaxIterations caps the loop. Defaults to DefaultMaxIterations.
	MaxIterations int
	// TargetRate is the failure rate the loop converges toward.
	// Defaults to DefaultTargetRate.
	TargetRate float64
	// SearchLimit bounds research results per query. Defaults to
	// DefaultSearchLimit.
	SearchLimit int
	// Retriever supplies research evidence. Optional.
	Retriever Retriever
	// States persists loop state between runs. Optional.
	States state.ConvergenceStore
	// Checkpoints records per-iteration snapshots. Optional.
	Checkpoints *CheckpointStore
	// Events receives lifecycle events. Optional.
	Events EventSink
	// Resume continues from a previously persisted state instead of
	// starting fresh. Optional.
	Resume *models.ConvergenceState
}

// Loop drives the iterative risk-convergence cycle: research the spec and
// plan, premortem them from three perspectives, score the surviving
// scenarios, fold mitigations back into the texts, and repeat until the
// failure rate meets the target or the iteration budget runs out.
type Loop struct {
	projectID   string
	searchLimit int

	retriever   Retriever
	states      state.ConvergenceStore
	checkpoints *CheckpointStore
	events      EventSink

	mu    sync.RWMutex
	state *models.ConvergenceState

	pause *PauseController

	// assess runs one premortem over the texts. Overridable in tests.
	assess func(spec, plan string, artifacts []*research.Artifact) []*models.FailureScenario
}

// New builds a Loop from cfg. A fresh loop starts at a failure rate of 100
// (unknown is treated as worst case) so at least one iteration always runs.
func New(cfg Config) (*Loop, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("convergence: project id is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = DefaultTargetRate
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}

	var st *models.ConvergenceState
	if cfg.Resume != nil {
		st = cloneState(cfg.Resume)
		if st.MaxIterations <= 0 {
			st.MaxIterations = cfg.MaxIterations
		}
		if st.TargetRate <= 0 {
			st.TargetRate = cfg.TargetRate
		}
		if st.Status == models.ConvergencePaused {
			st.Status = models.ConvergenceRunning
		}
	} else {
		st = &models.ConvergenceState{
			ProjectID:     cfg.ProjectID,
			MaxIterations: cfg.MaxIterations,
			FailureRate:   100,
			TargetRate:    cfg.TargetRate,
			Status:        models.ConvergenceRunning,
			Spec:          cfg.Spec,
			Plan:          cfg.Plan,
		}
	}

	l := &Loop{
		projectID:   cfg.ProjectID,
		searchLimit: cfg.SearchLimit,
		retriever:   cfg.Retriever,
		states:      cfg.States,
		checkpoints: cfg.Checkpoints,
		events:      cfg.Events,
		state:       st,
		pause:       NewPauseController(),
	}
	l.assess = func(spec, plan string, artifacts []*research.Artifact) []*models.FailureScenario {
		return runPremortem(spec, plan, len(artifacts))
	}
	return l, nil
}

// Execute runs the loop until the failure rate converges, the iteration
// budget is exhausted, the loop is stopped, or the context is canceled.
// Reaching the cap above target is a terminal outcome, not an error: the
// returned state carries status failed.
func (l *Loop) Execute(ctx context.Context) (*models.ConvergenceState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if l.pause.IsStopped() {
			return l.park()
		}

		if l.pause.IsPaused() {
			l.setStatus(models.ConvergencePaused)
			if err := l.persist(); err != nil {
				return nil, err
			}
			l.publish(EventLoopPaused, map[string]any{"iteration": l.GetState().Iteration})
			if err := l.pause.WaitIfPaused(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return l.park()
			}
			l.setStatus(models.ConvergenceRunning)
			l.publish(EventLoopResumed, map[string]any{"iteration": l.GetState().Iteration})
		}

		snap := l.GetState()
		if snap.Status != models.ConvergenceRunning {
			return snap, nil
		}
		if snap.FailureRate <= snap.TargetRate {
			return l.finish(models.ConvergenceCompleted, EventLoopCompleted)
		}
		if snap.Iteration >= snap.MaxIterations {
			return l.finish(models.ConvergenceFailed, EventLoopFailed)
		}

		if err := l.iterate(ctx); err != nil {
			return nil, err
		}
	}
}

// iterate runs one full cycle: research, premortem, score, mitigate, and
// re-assess. The recorded failure rate is the post-mitigation one.
func (l *Loop) iterate(ctx context.Context) error {
	l.mu.RLock()
	spec, plan := l.state.Spec, l.state.Plan
	l.mu.RUnlock()

	artifacts := l.research(ctx, spec, plan)
	scenarios := MergeScenarios(l.assess(spec, plan, artifacts))
	for _, s := range scenarios {
		s.Mitigation = mitigationFor(s)
	}
	preRate := FailureRate(RiskScore(scenarios))

	spec = appendMitigations(spec, scenarios)
	plan = appendMitigations(plan, scenarios)

	artifacts = l.research(ctx, spec, plan)
	final := MergeScenarios(l.assess(spec, plan, artifacts))
	for _, s := range final {
		s.Mitigation = mitigationFor(s)
	}
	rate := FailureRate(RiskScore(final))

	l.mu.Lock()
	l.state.Iteration++
	l.state.Spec = spec
	l.state.Plan = plan
	l.state.History = append(l.state.History, rate)
	l.state.FailureRate = rate
	l.state.Scenarios = final
	iteration := l.state.Iteration
	l.mu.Unlock()

	log.Printf("[convergence] project %s iteration %d: failure rate %.1f%% (was %.1f%%, %d scenarios)",
		l.projectID, iteration, rate, preRate, len(final))
	l.publish(EventIterationCompleted, map[string]any{
		"iteration":    iteration,
		"failure_rate": rate,
		"scenarios":    len(final),
	})
	return l.persist()
}

// research queries the retriever for evidence on the current texts. A nil
// retriever or a failed search degrades to no evidence rather than killing
// the loop; the insufficient-evidence premortem flag picks up the slack.
func (l *Loop) research(ctx context.Context, spec, plan string) []*research.Artifact {
	if l.retriever == nil {
		return nil
	}
	artifacts, err := l.retriever.Search(ctx, spec+" "+plan, l.searchLimit)
	if err != nil {
		log.Printf("[convergence] project %s research failed: %v", l.projectID, err)
		return nil
	}
	return artifacts
}

// appendMitigations folds each scenario's remediation into the text as a
// trailing bullet list, one line per scenario.
func appendMitigations(text string, scenarios []*models.FailureScenario) string {
	for _, s := range scenarios {
		if s.Mitigation == "" {
			continue
		}
		text += fmt.Sprintf("\n- Mitigation (%s): %s", s.Perspective, s.Mitigation)
	}
	return text
}

// park records a paused status so a later run can resume, then returns the
// state without error.
func (l *Loop) park() (*models.ConvergenceState, error) {
	l.setStatus(models.ConvergencePaused)
	if err := l.persist(); err != nil {
		return nil, err
	}
	log.Printf("[convergence] project %s parked at iteration %d", l.projectID, l.GetState().Iteration)
	return l.GetState(), nil
}

// finish records a terminal status, persists it, and publishes the
// matching event.
func (l *Loop) finish(status models.ConvergenceStatus, event string) (*models.ConvergenceState, error) {
	l.setStatus(status)
	if err := l.persist(); err != nil {
		log.Printf("[convergence] project %s failed to persist final state: %v", l.projectID, err)
	}
	snap := l.GetState()
	l.publish(event, map[string]any{
		"iterations":   snap.Iteration,
		"failure_rate": snap.FailureRate,
	})
	log.Printf("[convergence] project %s %s after %d iterations at %.1f%%",
		l.projectID, snap.Status, snap.Iteration, snap.FailureRate)
	return snap, nil
}

// Pause requests a pause at the next iteration boundary.
func (l *Loop) Pause() {
	l.pause.Pause()
}

// Resume releases a paused loop.
func (l *Loop) Resume() {
	l.pause.Resume()
}

// Stop halts the loop permanently; the state parks as paused so a fresh
// loop can resume it later.
func (l *Loop) Stop() {
	l.pause.Stop()
}

// GetState returns a snapshot of the loop state.
func (l *Loop) GetState() *models.ConvergenceState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneState(l.state)
}

func (l *Loop) setStatus(status models.ConvergenceStatus) {
	l.mu.Lock()
	l.state.Status = status
	l.mu.Unlock()
}

// persist writes the current state to the configured stores.
func (l *Loop) persist() error {
	snap := l.GetState()
	if l.states != nil {
		if err := l.states.SaveConvergence(snap); err != nil {
			return fmt.Errorf("convergence: save state: %w", err)
		}
	}
	if l.checkpoints != nil {
		if err := l.checkpoints.Save(snap); err != nil {
			return fmt.Errorf("convergence: save checkpoint: %w", err)
		}
	}
	return nil
}

func (l *Loop) publish(eventType string, payload map[string]any) {
	if l.events == nil {
		return
	}
	l.events.Publish(l.projectID, eventType, payload)
}

// cloneState deep-copies the mutable parts of a state. Scenario pointers
// are shared; scenarios are never mutated once produced.
func cloneState(s *models.ConvergenceState) *models.ConvergenceState {
	out := *s
	out.History = append([]float64(nil), s.History...)
	out.Scenarios = append([]*models.FailureScenario(nil), s.Scenarios...)
	return &out
}
