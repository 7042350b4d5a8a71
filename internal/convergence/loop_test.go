package convergence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/waggle/internal/research"
	"github.com/ShayCichocki/waggle/pkg/models"
)

type fakeRetriever struct {
	artifacts []*research.Artifact
	err       error
}

func (f *fakeRetriever) Search(ctx context.Context, query string, limit int) ([]*research.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.artifacts, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) Publish(projectID, eventType string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeSink) count(eventType string) int {
	n := 0
	for _, e := range f.types() {
		if e == eventType {
			n++
		}
	}
	return n
}

func (f *fakeSink) waitFor(t *testing.T, eventType string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.count(eventType) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %q never published; saw %v", eventType, f.types())
}

type fakeConvergenceStore struct {
	mu       sync.Mutex
	saves    int
	statuses []models.ConvergenceStatus
	last     *models.ConvergenceState
	err      error
}

func (f *fakeConvergenceStore) SaveConvergence(state *models.ConvergenceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves++
	f.statuses = append(f.statuses, state.Status)
	f.last = state
	return nil
}

func (f *fakeConvergenceStore) LoadConvergence(projectID string) (*models.ConvergenceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, nil
}

// scenariosForRate builds a scenario set whose failure rate is exactly
// rate: P2 scenarios at full likelihood and impact contribute 10 points
// each, plus one fractional scenario for the remainder.
func scenariosForRate(rate float64) []*models.FailureScenario {
	var out []*models.FailureScenario
	full := int(rate / 10)
	for i := 0; i < full; i++ {
		out = append(out, &models.FailureScenario{
			ID:          fmt.Sprintf("full-%d", i),
			Description: fmt.Sprintf("synthetic scenario %d", i),
			Priority:    models.PriorityP2,
			Likelihood:  1,
			Impact:      1,
		})
	}
	if frac := rate - float64(full)*10; frac > 1e-9 {
		out = append(out, &models.FailureScenario{
			ID:          "frac",
			Description: "synthetic fractional scenario",
			Priority:    models.PriorityP2,
			Likelihood:  frac / 10,
			Impact:      1,
		})
	}
	return out
}

// rateSequence overrides the assess hook so that iteration i records
// rates[i]. Assess runs twice per iteration; the recorded rate is the
// second call's, so paired calls map to one sequence entry.
func rateSequence(t *testing.T, l *Loop, rates []float64) *int {
	t.Helper()
	calls := new(int)
	var mu sync.Mutex
	l.assess = func(spec, plan string, artifacts []*research.Artifact) []*models.FailureScenario {
		mu.Lock()
		defer mu.Unlock()
		*calls++
		idx := (*calls - 1) / 2
		if idx >= len(rates) {
			idx = len(rates) - 1
		}
		return scenariosForRate(rates[idx])
	}
	return calls
}

func TestNew_RequiresProjectID(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() accepted an empty project id")
	}
}

func TestNew_FreshStateDefaults(t *testing.T) {
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	st := l.GetState()
	if st.Status != models.ConvergenceRunning {
		t.Errorf("status = %s, want running", st.Status)
	}
	if st.FailureRate != 100 {
		t.Errorf("initial failure rate = %v, want 100 (unknown is worst case)", st.FailureRate)
	}
	if st.MaxIterations != DefaultMaxIterations {
		t.Errorf("max iterations = %d, want %d", st.MaxIterations, DefaultMaxIterations)
	}
	if st.TargetRate != DefaultTargetRate {
		t.Errorf("target rate = %v, want %v", st.TargetRate, DefaultTargetRate)
	}
	if st.Iteration != 0 || len(st.History) != 0 {
		t.Errorf("fresh state carries history: iteration %d, %d entries", st.Iteration, len(st.History))
	}
}

func TestLoop_HeuristicConvergence(t *testing.T) {
	spec := "We will rewrite from scratch using an experimental event-sourced core."
	plan := "Ship the replacement asap, ahead of the conference."

	store := &fakeConvergenceStore{}
	sink := &fakeSink{}
	l, err := New(Config{
		ProjectID: "proj",
		Spec:      spec,
		Plan:      plan,
		States:    store,
		Events:    sink,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if final.Status != models.ConvergenceCompleted {
		t.Fatalf("status = %s, want completed (history %v)", final.Status, final.History)
	}
	if final.FailureRate > final.TargetRate {
		t.Errorf("final rate %v above target %v", final.FailureRate, final.TargetRate)
	}
	if final.Iteration < 1 {
		t.Error("loop completed without running a single iteration")
	}
	for i := 1; i < len(final.History); i++ {
		if final.History[i] >= final.History[i-1] {
			t.Errorf("history not strictly decreasing: %v", final.History)
		}
	}
	if !strings.Contains(final.Spec, "prototype spike") {
		t.Error("spec text missing the folded-in prototype-spike mitigation")
	}
	if !strings.Contains(final.Plan, "incremental migration") {
		t.Error("plan text missing the folded-in incremental-migration mitigation")
	}
	for _, s := range final.Scenarios {
		if s.Mitigation == "" {
			t.Errorf("scenario %q has no mitigation", s.Description)
		}
	}
	if store.saves < final.Iteration {
		t.Errorf("store saw %d saves for %d iterations", store.saves, final.Iteration)
	}
	if sink.count(EventLoopCompleted) != 1 {
		t.Errorf("loop_completed published %d times, want 1", sink.count(EventLoopCompleted))
	}
}

func TestLoop_CompletesWhenRateMeetsTarget(t *testing.T) {
	store := &fakeConvergenceStore{}
	sink := &fakeSink{}
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p", States: store, Events: sink})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rates := []float64{60, 40, 25, 15, 8, 4}
	rateSequence(t, l, rates)

	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if final.Status != models.ConvergenceCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.Iteration != 6 {
		t.Errorf("completed at iteration %d, want 6", final.Iteration)
	}
	if len(final.History) != len(rates) {
		t.Fatalf("history has %d entries, want %d: %v", len(final.History), len(rates), final.History)
	}
	for i, want := range rates {
		if math.Abs(final.History[i]-want) > 1e-6 {
			t.Errorf("history[%d] = %v, want %v", i, final.History[i], want)
		}
	}
	if got := sink.count(EventIterationCompleted); got != 6 {
		t.Errorf("iteration_completed published %d times, want 6", got)
	}
	if store.last == nil || store.last.Status != models.ConvergenceCompleted {
		t.Error("final persisted state is not completed")
	}
}

func TestLoop_FailsAtIterationCap(t *testing.T) {
	sink := &fakeSink{}
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p", Events: sink})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rateSequence(t, l, []float64{50})

	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if final.Status != models.ConvergenceFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Iteration != DefaultMaxIterations {
		t.Errorf("stopped at iteration %d, want %d", final.Iteration, DefaultMaxIterations)
	}
	if len(final.History) != DefaultMaxIterations {
		t.Errorf("history has %d entries, want %d", len(final.History), DefaultMaxIterations)
	}
	if sink.count(EventLoopFailed) != 1 {
		t.Errorf("loop_failed published %d times, want 1", sink.count(EventLoopFailed))
	}
}

func TestLoop_PauseParksAtBoundaryAndResumes(t *testing.T) {
	store := &fakeConvergenceStore{}
	sink := &fakeSink{}
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p", States: store, Events: sink})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rateSequence(t, l, []float64{4})

	l.Pause()
	done := make(chan struct{})
	var final *models.ConvergenceState
	var execErr error
	go func() {
		final, execErr = l.Execute(context.Background())
		close(done)
	}()

	sink.waitFor(t, EventLoopPaused)
	if st := l.GetState(); st.Status != models.ConvergencePaused {
		t.Errorf("status while parked = %s, want paused", st.Status)
	}

	l.Resume()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute() did not return after resume")
	}
	if execErr != nil {
		t.Fatalf("Execute() error: %v", execErr)
	}
	if final.Status != models.ConvergenceCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}

	want := []string{EventLoopPaused, EventLoopResumed, EventIterationCompleted, EventLoopCompleted}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestLoop_StopParksState(t *testing.T) {
	store := &fakeConvergenceStore{}
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p", States: store})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rateSequence(t, l, []float64{50})

	l.Stop()
	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() after Stop error: %v", err)
	}
	if final.Status != models.ConvergencePaused {
		t.Errorf("status = %s, want paused so a later run can resume", final.Status)
	}
	if final.Iteration != 0 {
		t.Errorf("stopped loop ran %d iterations, want 0", final.Iteration)
	}
	if store.last == nil || store.last.Status != models.ConvergencePaused {
		t.Error("parked state not persisted")
	}
}

func TestLoop_ResumeRunsRemainingBudget(t *testing.T) {
	history := make([]float64, 9)
	for i := range history {
		history[i] = 50
	}
	resume := &models.ConvergenceState{
		ProjectID:     "proj",
		Iteration:     9,
		MaxIterations: 10,
		History:       history,
		FailureRate:   50,
		TargetRate:    5,
		Status:        models.ConvergencePaused,
		Spec:          "s",
		Plan:          "p",
	}

	sink := &fakeSink{}
	l, err := New(Config{ProjectID: "proj", Resume: resume, Events: sink})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if st := l.GetState(); st.Status != models.ConvergenceRunning {
		t.Fatalf("resumed paused state has status %s, want running", st.Status)
	}
	rateSequence(t, l, []float64{50})

	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if final.Status != models.ConvergenceFailed {
		t.Errorf("status = %s, want failed at the cap", final.Status)
	}
	if final.Iteration != 10 {
		t.Errorf("iteration = %d, want 10", final.Iteration)
	}
	if got := sink.count(EventIterationCompleted); got != 1 {
		t.Errorf("resumed loop ran %d iterations, want exactly 1", got)
	}
}

func TestLoop_ResumeTerminalStateReturnsImmediately(t *testing.T) {
	resume := &models.ConvergenceState{
		ProjectID:     "proj",
		Iteration:     4,
		MaxIterations: 10,
		FailureRate:   3,
		TargetRate:    5,
		Status:        models.ConvergenceCompleted,
	}
	l, err := New(Config{ProjectID: "proj", Resume: resume})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	calls := rateSequence(t, l, []float64{50})

	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if final.Status != models.ConvergenceCompleted {
		t.Errorf("status = %s, want completed untouched", final.Status)
	}
	if final.Iteration != 4 {
		t.Errorf("iteration = %d, want 4", final.Iteration)
	}
	if *calls != 0 {
		t.Errorf("assess ran %d times on a terminal state, want 0", *calls)
	}
}

func TestLoop_PersistFailureSurfaces(t *testing.T) {
	store := &fakeConvergenceStore{err: errors.New("disk full")}
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p", States: store})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rateSequence(t, l, []float64{50})

	if _, err := l.Execute(context.Background()); err == nil {
		t.Fatal("Execute() swallowed a persistence failure")
	} else if !strings.Contains(err.Error(), "save state") {
		t.Errorf("error = %v, want a save-state wrap", err)
	}
}

func TestLoop_CanceledContext(t *testing.T) {
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestLoop_ResearchFailureDegradesToNoEvidence(t *testing.T) {
	l, err := New(Config{
		ProjectID: "proj",
		Spec:      "s",
		Plan:      "p",
		Retriever: &fakeRetriever{err: errors.New("index offline")},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var artifactCounts []int
	l.assess = func(spec, plan string, artifacts []*research.Artifact) []*models.FailureScenario {
		artifactCounts = append(artifactCounts, len(artifacts))
		return nil
	}

	final, err := l.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if final.Status != models.ConvergenceCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	for i, n := range artifactCounts {
		if n != 0 {
			t.Errorf("assess call %d saw %d artifacts despite search failure", i, n)
		}
	}
}

func TestLoop_RetrieverEvidenceReachesAssess(t *testing.T) {
	ret := &fakeRetriever{artifacts: []*research.Artifact{{ID: "a-1"}, {ID: "a-2"}}}
	l, err := New(Config{ProjectID: "proj", Spec: "s", Plan: "p", Retriever: ret})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var got int
	l.assess = func(spec, plan string, artifacts []*research.Artifact) []*models.FailureScenario {
		got = len(artifacts)
		return nil
	}
	if _, err := l.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != 2 {
		t.Errorf("assess saw %d artifacts, want 2", got)
	}
}
