package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/waggle/internal/agent"
	"github.com/ShayCichocki/waggle/internal/analyzer"
	"github.com/ShayCichocki/waggle/internal/audit"
	"github.com/ShayCichocki/waggle/internal/config"
	"github.com/ShayCichocki/waggle/internal/graph"
	"github.com/ShayCichocki/waggle/internal/hive"
	"github.com/ShayCichocki/waggle/internal/orchestrator"
	"github.com/ShayCichocki/waggle/internal/sandbox"
	"github.com/ShayCichocki/waggle/internal/state"
	"github.com/ShayCichocki/waggle/pkg/models"
)

var (
	runProject  string
	runParallel int
	runPhases   int
	runPlanOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run <task-file>",
	Short: "Execute a task file through the delivery workflow",
	Long: `Execute the tasks in a YAML task file.

The tasks are divided into dependency-ordered phases, delegated through the
hive to Claude-backed drones phase by phase, and the completed work products
are audited through the theater/production/quality pipeline. The run fails
if any task fails or the aggregate audit pass rate falls below the gate.

Task file format:

  project: my-service
  tasks:
    - id: design-schema
      description: Design the database schema for orders
      category: planning
      estimated_hours: 2
    - id: build-api
      description: Implement the orders API on the schema
      category: coding
      depends_on: [design-schema]

Use --plan-only to print the phase partition without executing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&runProject, "project", "", "Project ID (defaults to the task file's project, then the directory name)")
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Max concurrent delegations per phase (default from config)")
	runCmd.Flags().IntVar(&runPhases, "phases", 0, "Target phase count for the divider (default from config)")
	runCmd.Flags().BoolVar(&runPlanOnly, "plan-only", false, "Divide into phases and print the plan without executing")
}

// taskFile is the YAML shape of a run's input.
type taskFile struct {
	Project string     `yaml:"project"`
	Tasks   []taskSpec `yaml:"tasks"`
}

type taskSpec struct {
	ID             string   `yaml:"id"`
	Description    string   `yaml:"description"`
	Category       string   `yaml:"category"`
	DependsOn      []string `yaml:"depends_on"`
	EstimatedHours float64  `yaml:"estimated_hours"`
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fileProject, tasks, err := loadTaskFile(args[0])
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("task file %s has no tasks", args[0])
	}

	projectID := runProject
	if projectID == "" {
		projectID = fileProject
	}
	if projectID == "" {
		projectID = filepath.Base(cwd)
	}

	targetPhases := runPhases
	if targetPhases <= 0 {
		targetPhases = cfg.Orchestrator.TargetPhases
	}

	if runPlanOnly {
		return printPhasePlan(tasks, targetPhases)
	}

	maxParallel := runParallel
	if maxParallel <= 0 {
		maxParallel = cfg.Orchestrator.MaxParallel
	}

	// Hive: routing table from the project if present, built-in otherwise;
	// drones are Claude-backed workers.
	table, err := loadRoutingTable(cwd)
	if err != nil {
		return err
	}

	client, err := agent.NewClient(agent.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Bedrock.Enabled,
		AWSRegion:     cfg.Bedrock.Region,
	})
	if err != nil {
		return fmt.Errorf("creating Claude client: %w", err)
	}
	worker, err := agent.NewWorker(client)
	if err != nil {
		return fmt.Errorf("creating drone worker: %w", err)
	}

	hv, err := hive.New(hive.Config{
		Table:          table,
		Work:           worker.Work,
		DefaultTimeout: cfg.Timeouts.Delegation,
	})
	if err != nil {
		return fmt.Errorf("creating hive: %w", err)
	}

	pipeline, err := audit.New(audit.Config{
		Sandbox:  sandbox.NewLocal(cfg.Sandbox.WorkDir),
		Analyzer: analyzer.NewHeuristic(),
		Breaker: audit.NewCircuitBreaker(
			cfg.Breaker.FailureThreshold,
			cfg.Breaker.Cooldown,
			cfg.Breaker.SuccessThreshold,
		),
		TheaterThreshold:      cfg.Audit.TheaterThreshold,
		MaxRetries:            cfg.Audit.MaxRetries,
		RetryBackoff:          cfg.Audit.RetryBackoff,
		ResumeFromFailedStage: cfg.Audit.ResumeFromFailedStage,
		SandboxTimeout:        cfg.Timeouts.Sandbox,
		SandboxMemory:         cfg.Sandbox.MemoryBytes,
	})
	if err != nil {
		return fmt.Errorf("creating audit pipeline: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating state database: %w", err)
	}

	// A run left non-terminal by a crash is closed out before starting fresh.
	recovery := state.NewRecoveryManager(db)
	if interrupted, err := recovery.CheckForInterrupted(projectID); err != nil {
		return fmt.Errorf("checking for interrupted runs: %w", err)
	} else if interrupted != nil {
		fmt.Printf("%s previous run %s was interrupted (%s); marking it failed\n",
			color.YellowString("⚠"), interrupted.RunID, interrupted.Status)
		if err := recovery.MarkInterrupted(projectID); err != nil {
			return fmt.Errorf("recovering interrupted run: %w", err)
		}
	}

	logger := orchestrator.NewDebugLoggerForProject(cwd)
	defer logger.Close()

	emitter := orchestrator.NewEventEmitter(256)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for event := range emitter.Events() {
			printRunEvent(event)
		}
	}()

	orch, err := orchestrator.New(orchestrator.Config{
		ProjectID:         projectID,
		WorkDir:           cwd,
		Hive:              hv,
		Auditor:           pipeline,
		Runs:              db,
		Events:            emitter,
		Logger:            logger,
		MaxParallel:       maxParallel,
		PassRateThreshold: cfg.Orchestrator.AuditPassRate,
		TargetPhases:      targetPhases,
		TaskTimeout:       cfg.Timeouts.Delegation,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running %d tasks for project %s (run %s)\n\n", len(tasks), projectID, orch.RunID())

	start := time.Now()
	g, runErr := orch.Execute(ctx, tasks)

	emitter.Close()
	<-progressDone

	tracker := client.Tracker()
	in, out := tracker.Total()

	fmt.Println()
	if runErr != nil {
		fmt.Printf("%s run failed after %s: %v\n", color.RedString("✗"), formatDuration(time.Since(start)), runErr)
		printTokenUsage(tracker.Calls(), in, out, tracker.Cost())
		return fmt.Errorf("run failed")
	}

	run := orch.GetState()
	fmt.Printf("%s run completed in %s\n", color.GreenString("✓"), formatDuration(time.Since(start)))
	fmt.Printf("  Phases: %d\n", len(g.Phases))
	fmt.Printf("  Tasks: %d completed\n", run.CompletedTasks)
	fmt.Printf("  Audit pass rate: %.0f%%\n", run.AuditPassRate*100)
	printTokenUsage(tracker.Calls(), in, out, tracker.Cost())

	return nil
}

// loadTaskFile parses a YAML task file into workflow tasks.
func loadTaskFile(path string) (string, []*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading task file: %w", err)
	}

	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", nil, fmt.Errorf("parsing task file %s: %w", path, err)
	}

	tasks := make([]*models.Task, 0, len(file.Tasks))
	for _, spec := range file.Tasks {
		category := models.Category(spec.Category)
		if spec.Category == "" {
			category = models.CategoryCoding
		}
		if !category.Valid() {
			return "", nil, fmt.Errorf("task %s has unknown category %q", spec.ID, spec.Category)
		}

		tasks = append(tasks, &models.Task{
			ID:             spec.ID,
			Description:    spec.Description,
			Category:       category,
			DependsOn:      spec.DependsOn,
			EstimatedHours: spec.EstimatedHours,
			Status:         models.TaskStatusPending,
			CreatedAt:      time.Now(),
		})
	}

	return file.Project, tasks, nil
}

// loadRoutingTable loads .waggle/routing.yaml if present, the built-in
// table otherwise.
func loadRoutingTable(projectRoot string) (*config.RoutingTable, error) {
	tablePath := filepath.Join(projectRoot, ".waggle", "routing.yaml")
	if _, err := os.Stat(tablePath); os.IsNotExist(err) {
		return config.DefaultRoutingTable(), nil
	}
	return config.LoadRoutingTable(tablePath)
}

// printPhasePlan divides the tasks and prints the partition without
// executing anything.
func printPhasePlan(tasks []*models.Task, targetPhases int) error {
	builder := graph.New()
	builder.SetTargetPhases(targetPhases)

	g, err := builder.Divide(tasks)
	if err != nil {
		return fmt.Errorf("divide tasks: %w", err)
	}

	fmt.Printf("Plan: %d tasks in %d phases\n\n", len(g.Nodes), len(g.Phases))
	for _, phase := range g.Phases {
		fmt.Printf("Phase %d:\n", phase.Index+1)
		for _, task := range phase.Tasks {
			line := fmt.Sprintf("  %s [%s]", task.ID, task.Category)
			if len(task.DependsOn) > 0 {
				line += fmt.Sprintf(" (after %v)", task.DependsOn)
			}
			fmt.Println(line)
		}
	}
	if len(g.Bottlenecks) > 0 {
		fmt.Printf("\nBottlenecks: %v\n", g.Bottlenecks)
	}
	return nil
}

// printRunEvent renders one orchestrator event as a progress line.
// Phase indices in payloads are zero-based; display is one-based.
func printRunEvent(event orchestrator.Event) {
	switch event.Type {
	case orchestrator.EventPhaseStarted:
		fmt.Printf("%s phase %v starting (%v tasks)\n",
			color.CyanString("▶"), displayPhase(event.Payload["phase"]), event.Payload["tasks"])
	case orchestrator.EventPhaseCompleted:
		fmt.Printf("%s phase %v completed\n", color.GreenString("✓"), displayPhase(event.Payload["phase"]))
	case orchestrator.EventTaskCompleted:
		fmt.Printf("  %s task %v (%v)\n", color.GreenString("✓"), event.Payload["task"], event.Payload["drone"])
	case orchestrator.EventTaskFailed:
		fmt.Printf("  %s task %v: %v\n", color.RedString("✗"), event.Payload["task"], event.Payload["error"])
	case orchestrator.EventAuditStarted:
		fmt.Printf("%s auditing %v tasks\n", color.CyanString("▶"), event.Payload["tasks"])
	case orchestrator.EventAuditCompleted:
		fmt.Printf("%s audit: %v passed, %v failed\n",
			color.CyanString("•"), event.Payload["passed"], event.Payload["failed"])
	}
}

func displayPhase(v any) any {
	if idx, ok := v.(int); ok {
		return idx + 1
	}
	return v
}

func printTokenUsage(calls int, input, output int64, cost float64) {
	if calls == 0 {
		return
	}
	fmt.Printf("  Tokens: %d calls, %d in / %d out (~$%.2f)\n", calls, input, output, cost)
}
