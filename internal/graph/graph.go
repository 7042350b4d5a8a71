// Package graph partitions a task set into dependency-aware execution phases.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// DefaultTargetPhases is the phase count Divide aims for when none is configured.
const DefaultTargetPhases = 5

// BottleneckThreshold is the dependent count at or above which a task is
// reported as a bottleneck.
const BottleneckThreshold = 3

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// CyclicDependencyError reports the tasks left unsorted after a topological
// sort. Kahn's algorithm consumes every task of an acyclic graph, so leftover
// tasks mean the dependency edges contain at least one cycle.
type CyclicDependencyError struct {
	// Remaining lists the task IDs that could not be ordered, in input order.
	Remaining []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %d tasks could not be ordered: %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// Unwrap lets errors.Is match ErrCycleDetected.
func (e *CyclicDependencyError) Unwrap() error {
	return ErrCycleDetected
}

// Builder divides task sets into ordered execution phases.
// The zero value is not usable; call New.
type Builder struct {
	// targetPhases is the number of phases Divide aims to produce.
	targetPhases int
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a Builder with the default target phase count.
func New() *Builder {
	return &Builder{
		targetPhases: DefaultTargetPhases,
		debugLog:     func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetTargetPhases overrides the number of phases Divide aims for.
// Values below 1 are ignored.
func (b *Builder) SetTargetPhases(n int) {
	if n >= 1 {
		b.targetPhases = n
	}
}

// SetDebugLog sets the debug logging function.
func (b *Builder) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		b.debugLog = fn
	}
}

// Divide builds the dependency graph for a task set: it orders tasks with
// Kahn's algorithm, assigns each a dependency level, partitions the levels
// into phases, and records dependency edges and bottleneck tasks.
// Tasks are mutated only by assigning their phase index.
// Returns a *CyclicDependencyError if the dependency edges contain a cycle.
func (b *Builder) Divide(tasks []*models.Task) (*models.DependencyGraph, error) {
	graph := &models.DependencyGraph{}
	if len(tasks) == 0 {
		b.debugLog("[graph.Divide] empty task list, returning empty graph")
		return graph, nil
	}

	b.debugLog("[graph.Divide] dividing %d tasks into ~%d phases", len(tasks), b.targetPhases)

	// First pass: register every task and reject malformed input.
	nodes := make(map[string]*models.Task, len(tasks))
	for i, task := range tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("task at index %d has an empty id", i)
		}
		if _, dup := nodes[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s", task.ID)
		}
		nodes[task.ID] = task
	}

	// Second pass: validate dependency references and record edges.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := nodes[depID]; !exists {
				return nil, fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			graph.Edges = append(graph.Edges, models.DependencyEdge{From: depID, To: task.ID})
		}
	}

	sorted, remaining := kahnSort(tasks)
	if len(remaining) > 0 {
		b.debugLog("[graph.Divide] %d tasks left unsorted: %v", len(remaining), remaining)
		return nil, &CyclicDependencyError{Remaining: remaining}
	}

	levels := assignLevels(sorted)
	graph.Nodes = tasks
	graph.Phases = b.partition(sorted, levels)
	graph.Bottlenecks = IdentifyBottlenecks(tasks)

	b.debugLog("[graph.Divide] produced %d phases, %d bottlenecks", len(graph.Phases), len(graph.Bottlenecks))
	return graph, nil
}

// kahnSort topologically orders tasks by repeatedly consuming zero-in-degree
// nodes. It returns the sorted tasks plus the IDs of any tasks it could not
// consume; a non-empty remainder means the graph is cyclic.
func kahnSort(tasks []*models.Task) (sorted []*models.Task, remaining []string) {
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	byID := make(map[string]*models.Task, len(tasks))

	for _, task := range tasks {
		byID[task.ID] = task
		inDegree[task.ID] = len(task.DependsOn)
		for _, depID := range task.DependsOn {
			dependents[depID] = append(dependents[depID], task.ID)
		}
	}

	// Seed the queue in input order so the output is deterministic.
	var queue []string
	for _, task := range tasks {
		if inDegree[task.ID] == 0 {
			queue = append(queue, task.ID)
		}
	}

	sorted = make([]*models.Task, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byID[id])

		for _, depID := range dependents[id] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if len(sorted) < len(tasks) {
		consumed := make(map[string]bool, len(sorted))
		for _, task := range sorted {
			consumed[task.ID] = true
		}
		for _, task := range tasks {
			if !consumed[task.ID] {
				remaining = append(remaining, task.ID)
			}
		}
	}
	return sorted, remaining
}

// assignLevels computes each task's dependency level: 0 for tasks with no
// dependencies, otherwise 1 + the maximum level among its dependencies.
// The input must be topologically sorted so dependency levels are known
// before their dependents are visited.
func assignLevels(sorted []*models.Task) map[string]int {
	levels := make(map[string]int, len(sorted))
	for _, task := range sorted {
		level := 0
		for _, depID := range task.DependsOn {
			if depLevel := levels[depID]; depLevel+1 > level {
				level = depLevel + 1
			}
		}
		levels[task.ID] = level
	}
	return levels
}

// partition groups topologically sorted tasks into phases. The level range
// [0, maxLevel] is split into targetPhases equal buckets, and each phase is
// capped at ceil(total/targetPhases) tasks; a task that lands in a full phase
// spills forward. A task never lands in an earlier phase than any of its
// dependencies.
func (b *Builder) partition(sorted []*models.Task, levels map[string]int) []*models.Phase {
	maxLevel := 0
	for _, level := range levels {
		if level > maxLevel {
			maxLevel = level
		}
	}

	total := len(sorted)
	capPerPhase := (total + b.targetPhases - 1) / b.targetPhases
	if capPerPhase < 1 {
		capPerPhase = 1
	}

	var phases []*models.Phase
	phaseOf := make(map[string]int, total)

	for _, task := range sorted {
		// Equal-width bucket over the level range.
		idx := levels[task.ID] * b.targetPhases / (maxLevel + 1)

		// Never land ahead of a dependency's phase.
		for _, depID := range task.DependsOn {
			if depPhase := phaseOf[depID]; depPhase > idx {
				idx = depPhase
			}
		}

		// Spill forward past full phases.
		for idx < len(phases) && len(phases[idx].Tasks) >= capPerPhase {
			idx++
		}

		for len(phases) <= idx {
			next := len(phases)
			phase := &models.Phase{
				Index:  next,
				Name:   fmt.Sprintf("Phase %d", next+1),
				Status: models.PhaseStatusPending,
			}
			for earlier := 0; earlier < next; earlier++ {
				phase.DependsOn = append(phase.DependsOn, earlier)
			}
			phases = append(phases, phase)
		}

		phase := phases[idx]
		phase.Tasks = append(phase.Tasks, task)
		phase.EstimatedHours += task.EstimatedHours
		phaseOf[task.ID] = idx

		assigned := idx
		task.Phase = &assigned
	}

	return phases
}

// IdentifyBottlenecks returns the IDs of tasks referenced as a dependency by
// BottleneckThreshold or more other tasks, in input order. Duplicate and
// self references within one task's dependency list are counted once.
func IdentifyBottlenecks(tasks []*models.Task) []string {
	dependentCount := make(map[string]int, len(tasks))
	for _, task := range tasks {
		seen := make(map[string]bool, len(task.DependsOn))
		for _, depID := range task.DependsOn {
			if depID == task.ID || seen[depID] {
				continue
			}
			seen[depID] = true
			dependentCount[depID]++
		}
	}

	var bottlenecks []string
	for _, task := range tasks {
		if dependentCount[task.ID] >= BottleneckThreshold {
			bottlenecks = append(bottlenecks, task.ID)
		}
	}
	return bottlenecks
}
