package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/waggle/internal/audit"
	"github.com/ShayCichocki/waggle/internal/graph"
	"github.com/ShayCichocki/waggle/internal/state"
	"github.com/ShayCichocki/waggle/pkg/models"
)

const (
	// DefaultMaxParallel bounds concurrent delegations within one phase.
	DefaultMaxParallel = 4
	// DefaultPassRateThreshold is the audit gate: the fraction of audited
	// tasks that must pass for the run to complete.
	DefaultPassRateThreshold = 0.8
)

// ErrNoDelegator indicates the orchestrator was built without a hive.
var ErrNoDelegator = errors.New("orchestrator requires a delegator")

// ErrNoAuditor indicates the orchestrator was built without an audit pipeline.
var ErrNoAuditor = errors.New("orchestrator requires an auditor")

// Delegator routes tasks through the queen -> princess -> drone hierarchy.
// The hive satisfies it; tests substitute fakes.
type Delegator interface {
	QueenToPrincess(category models.Category) string
	PrincessToDrone(princessID string, category models.Category) string
	CreateSession(droneID, parentID string, sctx models.SessionContext) *models.AgentSession
	ExecuteA2A(ctx context.Context, req *models.DelegationRequest) (*models.DelegationResponse, error)
}

// Auditor runs the audit pipeline over one task's work product.
type Auditor interface {
	ExecuteWithRetry(ctx context.Context, taskID, code, path string) ([]*models.AuditResult, error)
}

// Config holds the dependencies and tuning for an Orchestrator.
type Config struct {
	// ProjectID identifies the project the run belongs to. Required.
	ProjectID string
	// WorkDir is the project directory handed to drones and the analyzer.
	WorkDir string
	// Hive routes and executes delegations. Required.
	Hive Delegator
	// Auditor audits completed work products. Required.
	Auditor Auditor
	// Runs persists run state transitions. Optional.
	Runs state.RunStore
	// Events receives lifecycle events. Optional.
	Events EventSink
	// Logger receives debug diagnostics. Optional.
	Logger *DebugLogger
	// MaxParallel bounds concurrent delegations within one phase.
	// Zero means DefaultMaxParallel.
	MaxParallel int
	// PassRateThreshold is the audit gate. Zero means DefaultPassRateThreshold.
	PassRateThreshold float64
	// TargetPhases overrides the phase count Divide aims for. Zero keeps
	// the builder default.
	TargetPhases int
	// TaskTimeout bounds each delegation. Zero defers to the hive default.
	TaskTimeout time.Duration
}

// Orchestrator coordinates one run: divide -> execute phases -> audit -> gate.
type Orchestrator struct {
	projectID string
	runID     string
	workDir   string

	hive    Delegator
	auditor Auditor
	runs    state.RunStore
	events  EventSink
	logger  *DebugLogger
	builder *graph.Builder

	maxParallel int
	passRate    float64
	taskTimeout time.Duration

	// mu protects run and started.
	mu      sync.RWMutex
	run     *models.RunState
	started bool
}

// New creates an Orchestrator from the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("orchestrator requires a project id")
	}
	if cfg.Hive == nil {
		return nil, ErrNoDelegator
	}
	if cfg.Auditor == nil {
		return nil, ErrNoAuditor
	}

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	passRate := cfg.PassRateThreshold
	if passRate <= 0 {
		passRate = DefaultPassRateThreshold
	}

	builder := graph.New()
	if cfg.TargetPhases > 0 {
		builder.SetTargetPhases(cfg.TargetPhases)
	}
	if cfg.Logger != nil {
		builder.SetDebugLog(cfg.Logger.Log)
	}

	runID := uuid.New().String()[:8]
	return &Orchestrator{
		projectID:   cfg.ProjectID,
		runID:       runID,
		workDir:     cfg.WorkDir,
		hive:        cfg.Hive,
		auditor:     cfg.Auditor,
		runs:        cfg.Runs,
		events:      cfg.Events,
		logger:      cfg.Logger,
		builder:     builder,
		maxParallel: maxParallel,
		passRate:    passRate,
		taskTimeout: cfg.TaskTimeout,
		run: &models.RunState{
			ProjectID:    cfg.ProjectID,
			RunID:        runID,
			Status:       models.RunPending,
			CurrentPhase: -1,
		},
	}, nil
}

// RunID returns the short identifier of this run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// GetState returns a snapshot of the run state.
func (o *Orchestrator) GetState() *models.RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run := *o.run
	return &run
}

// Start opens the run: it persists the initial pending record so a broken
// state store surfaces before any work is delegated. Execute calls Start
// itself; calling it separately first is optional and idempotent.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	snapshot := *o.run
	o.mu.Unlock()

	if o.runs != nil {
		if err := o.runs.SaveRun(&snapshot); err != nil {
			return fmt.Errorf("state store rejected run %s: %w", o.runID, err)
		}
	}

	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	return nil
}

// Execute runs the full workflow over the given tasks: divide them into
// phases, execute each phase through the hive with bounded parallelism,
// audit every work product, and gate completion on the aggregate audit
// pass rate. The returned graph reflects final task states.
//
// An Orchestrator is single-use: Execute on a run that already ran errors
// without touching the recorded outcome. The run aborts on the first failed
// or timed-out delegation; the error names the task. Audit-stage failures
// do not abort: they lower the pass rate, and the gate decides.
func (o *Orchestrator) Execute(ctx context.Context, tasks []*models.Task) (*models.DependencyGraph, error) {
	if err := o.Start(ctx); err != nil {
		return nil, o.fail(err)
	}

	o.mu.Lock()
	if o.run.Status != models.RunPending {
		status := o.run.Status
		o.mu.Unlock()
		return nil, fmt.Errorf("run %s already %s", o.runID, status)
	}
	o.run.Status = models.RunDividing
	o.run.TotalTasks = len(tasks)
	o.run.StartedAt = time.Now()
	o.mu.Unlock()
	o.persistRun()
	o.publish(EventRunStarted, map[string]any{"run_id": o.runID, "tasks": len(tasks)})
	o.logger.Log("[orchestrator] run %s started with %d tasks", o.runID, len(tasks))

	g, err := o.builder.Divide(tasks)
	if err != nil {
		return nil, o.fail(fmt.Errorf("divide tasks: %w", err))
	}

	o.setRun(func(r *models.RunState) {
		r.Status = models.RunExecuting
		r.TotalPhases = len(g.Phases)
	})
	o.persistRun()

	for _, phase := range g.Phases {
		if err := o.runPhase(ctx, phase); err != nil {
			return g, o.fail(err)
		}
	}

	passRate, err := o.auditAll(ctx, tasks)
	if err != nil {
		return g, o.fail(err)
	}

	if passRate < o.passRate {
		failed := 0
		for _, task := range tasks {
			if task.Status == models.TaskStatusFailed {
				failed++
			}
		}
		return g, o.fail(fmt.Errorf("audit pass rate %.2f below threshold %.2f: %d of %d tasks failed the audit",
			passRate, o.passRate, failed, len(tasks)))
	}

	now := time.Now()
	o.setRun(func(r *models.RunState) {
		r.Status = models.RunCompleted
		r.FinishedAt = &now
	})
	o.persistRun()
	o.publish(EventRunCompleted, map[string]any{
		"run_id":          o.runID,
		"completed_tasks": o.GetState().CompletedTasks,
		"audit_pass_rate": passRate,
	})
	o.logger.Log("[orchestrator] run %s completed, pass rate %.2f", o.runID, passRate)
	return g, nil
}

// runPhase executes one phase: all tasks fan out through the hive, bounded
// by maxParallel. Completing the phase requires every task to complete;
// the first failed task in phase order aborts the run.
func (o *Orchestrator) runPhase(ctx context.Context, phase *models.Phase) error {
	phase.Status = models.PhaseStatusInProgress
	o.setRun(func(r *models.RunState) { r.CurrentPhase = phase.Index })
	o.persistRun()
	o.publish(EventPhaseStarted, map[string]any{"phase": phase.Index, "tasks": len(phase.Tasks)})
	o.logger.Log("[orchestrator] phase %d started with %d tasks", phase.Index, len(phase.Tasks))

	sem := make(chan struct{}, o.maxParallel)
	var wg sync.WaitGroup
	for _, task := range phase.Tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)
		go func(t *models.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runTask(ctx, t)
		}(task)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, task := range phase.Tasks {
		if task.Status == models.TaskStatusFailed {
			return fmt.Errorf("phase %d aborted: task %s failed: %s", phase.Index, task.ID, task.Error)
		}
	}

	phase.Status = models.PhaseStatusCompleted
	o.publish(EventPhaseCompleted, map[string]any{"phase": phase.Index})
	o.logger.Log("[orchestrator] phase %d completed", phase.Index)
	return nil
}

// runTask delegates one task through the hive and records the outcome on
// the task. Each task is owned by exactly one goroutine, so task fields
// need no locking; only shared counters do.
func (o *Orchestrator) runTask(ctx context.Context, task *models.Task) {
	task.Status = models.TaskStatusInProgress
	o.publish(EventTaskStarted, map[string]any{"task": task.ID, "category": string(task.Category)})

	target := o.hive.QueenToPrincess(task.Category)
	droneID := o.hive.PrincessToDrone(target, task.Category)
	session := o.hive.CreateSession(droneID, target, models.SessionContext{
		WorkDir:   o.workDir,
		ProjectID: o.projectID,
		TaskID:    task.ID,
	})

	resp, err := o.hive.ExecuteA2A(ctx, &models.DelegationRequest{
		Target:   target,
		TaskID:   task.ID,
		Category: task.Category,
		Payload:  task.Description,
		Session:  session,
		Timeout:  o.taskTimeout,
	})
	if err != nil {
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
		o.publish(EventTaskFailed, map[string]any{"task": task.ID, "error": task.Error})
		return
	}

	if resp.Status != models.DelegationCompleted {
		task.Status = models.TaskStatusFailed
		task.Error = resp.Error
		if task.Error == "" {
			task.Error = fmt.Sprintf("delegation %s", resp.Status)
		}
		o.publish(EventTaskFailed, map[string]any{
			"task":   task.ID,
			"drone":  resp.Drone,
			"status": string(resp.Status),
			"error":  task.Error,
		})
		return
	}

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.AssignedTo = resp.Drone
	task.Result = resp.Result
	task.CompletedAt = &now

	o.setRun(func(r *models.RunState) { r.CompletedTasks++ })
	o.publish(EventTaskCompleted, map[string]any{
		"task":    task.ID,
		"drone":   resp.Drone,
		"elapsed": resp.Elapsed.String(),
	})
}

// auditAll runs the audit pipeline over every task's work product and
// returns the aggregate pass rate. A task whose retry budget runs out
// counts as an audit failure rather than aborting the run. Auditing no
// tasks passes vacuously.
func (o *Orchestrator) auditAll(ctx context.Context, tasks []*models.Task) (float64, error) {
	o.setRun(func(r *models.RunState) { r.Status = models.RunAuditing })
	o.persistRun()
	o.publish(EventAuditStarted, map[string]any{"tasks": len(tasks)})

	if len(tasks) == 0 {
		o.setRun(func(r *models.RunState) { r.AuditPassRate = 1 })
		o.publish(EventAuditCompleted, map[string]any{"passed": 0, "failed": 0, "pass_rate": 1.0})
		return 1, nil
	}

	passed := 0
	for _, task := range tasks {
		_, err := o.auditor.ExecuteWithRetry(ctx, task.ID, task.Result, o.workDir)
		switch {
		case err == nil:
			passed++
		case errors.Is(err, audit.ErrRetriesExhausted):
			task.Status = models.TaskStatusFailed
			task.Error = err.Error()
			o.logger.Log("[orchestrator] task %s failed the audit: %v", task.ID, err)
		default:
			return 0, fmt.Errorf("audit task %s: %w", task.ID, err)
		}
	}

	passRate := float64(passed) / float64(len(tasks))
	o.setRun(func(r *models.RunState) { r.AuditPassRate = passRate })
	o.persistRun()
	o.publish(EventAuditCompleted, map[string]any{
		"passed":    passed,
		"failed":    len(tasks) - passed,
		"pass_rate": passRate,
	})
	return passRate, nil
}

// fail records a terminal failed state and returns the error.
func (o *Orchestrator) fail(err error) error {
	now := time.Now()
	o.setRun(func(r *models.RunState) {
		r.Status = models.RunFailed
		r.Error = err.Error()
		r.FinishedAt = &now
	})
	o.persistRun()
	o.publish(EventRunFailed, map[string]any{"run_id": o.runID, "error": err.Error()})
	o.logger.Log("[orchestrator] run %s failed: %v", o.runID, err)
	return err
}

func (o *Orchestrator) setRun(mutate func(*models.RunState)) {
	o.mu.Lock()
	mutate(o.run)
	o.mu.Unlock()
}

// persistRun saves the run state. Persistence is best effort: a failed
// save is logged, not fatal, so a state-store hiccup cannot kill a run
// mid-phase.
func (o *Orchestrator) persistRun() {
	if o.runs == nil {
		return
	}
	if err := o.runs.SaveRun(o.GetState()); err != nil {
		log.Printf("[orchestrator] failed to persist run state: %v", err)
	}
}

func (o *Orchestrator) publish(eventType EventType, payload map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(o.projectID, string(eventType), payload)
}
