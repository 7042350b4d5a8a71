package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/waggle/internal/config"
	"github.com/ShayCichocki/waggle/internal/convergence"
	"github.com/ShayCichocki/waggle/internal/research"
	sig "github.com/ShayCichocki/waggle/internal/signal"
	"github.com/ShayCichocki/waggle/internal/state"
	"github.com/ShayCichocki/waggle/pkg/models"
)

var (
	loopSpecFile   string
	loopPlanFile   string
	loopProject    string
	loopIterations int
	loopTarget     float64
	loopResume     bool
)

// signalPollInterval is how often the loop command consults the signal
// monitor between fsnotify wakeups.
const signalPollInterval = 500 * time.Millisecond

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Converge a spec and plan below the target failure rate",
	Long: `Run the convergence loop over a specification and plan.

Each iteration researches the current documents, runs a three-perspective
premortem, folds the mitigations back into the spec and plan, and recomputes
the projected failure rate. The loop ends when the rate drops to the target
or the iteration budget runs out.

The loop is pausable from outside the process: dropping a file named pause,
resume, or kill into .waggle/signals pauses at the next iteration boundary,
resumes, or stops with state parked for a later --resume.

Examples:
  waggle loop --spec spec.md --plan plan.md
  waggle loop --spec spec.md --plan plan.md --target 3.0
  waggle loop --resume`,
	RunE: runLoop,
}

func init() {
	loopCmd.Flags().StringVar(&loopSpecFile, "spec", "", "Path to the specification document")
	loopCmd.Flags().StringVar(&loopPlanFile, "plan", "", "Path to the plan document")
	loopCmd.Flags().StringVar(&loopProject, "project", "", "Project ID (defaults to the directory name)")
	loopCmd.Flags().IntVar(&loopIterations, "iterations", 0, "Iteration budget (default from config)")
	loopCmd.Flags().Float64Var(&loopTarget, "target", 0, "Target failure rate percentage (default from config)")
	loopCmd.Flags().BoolVar(&loopResume, "resume", false, "Resume the latest paused or checkpointed loop")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	projectID := loopProject
	if projectID == "" {
		projectID = filepath.Base(cwd)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating state database: %w", err)
	}

	checkpoints, err := convergence.NewCheckpointStore(convergence.DefaultCheckpointPath(cwd))
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	loopCfg := convergence.Config{
		ProjectID:     projectID,
		MaxIterations: firstNonZero(loopIterations, cfg.Convergence.MaxIterations),
		TargetRate:    firstNonZeroFloat(loopTarget, cfg.Convergence.TargetFailureRate),
		SearchLimit:   cfg.Research.SearchLimit,
		States:        db,
		Checkpoints:   checkpoints,
		Events:        loopEventSink{},
	}

	if loopResume {
		resume, err := findResumeState(checkpoints, db, projectID)
		if err != nil {
			return err
		}
		loopCfg.Resume = resume
		fmt.Printf("Resuming loop for %s at iteration %d (failure rate %.1f%%)\n",
			projectID, resume.Iteration, resume.FailureRate)
	} else {
		if loopSpecFile == "" || loopPlanFile == "" {
			return fmt.Errorf("--spec and --plan are required (or use --resume)")
		}
		spec, err := os.ReadFile(loopSpecFile)
		if err != nil {
			return fmt.Errorf("reading spec: %w", err)
		}
		plan, err := os.ReadFile(loopPlanFile)
		if err != nil {
			return fmt.Errorf("reading plan: %w", err)
		}
		loopCfg.Spec = string(spec)
		loopCfg.Plan = string(plan)
	}

	// Research retrieval is optional: without an artifact store the loop
	// still converges on premortem heuristics alone.
	researchPath := cfg.Research.DBPath
	if researchPath == "" {
		researchPath = research.ProjectDBPath(cwd)
	}
	store, err := research.NewArtifactStore(researchPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: research store unavailable: %v\n", err)
	} else {
		defer store.Close()
		loopCfg.Retriever = research.NewRetriever(store)
	}

	loop, err := convergence.New(loopCfg)
	if err != nil {
		return fmt.Errorf("creating convergence loop: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal files drive cooperative pause/resume/stop; a second SIGINT
	// cancels outright.
	monitor, monErr := sig.NewMonitor(cwd)
	if monErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: signal monitor unavailable: %v\n", monErr)
	} else {
		defer monitor.Close()
		go driveLoopSignals(ctx, monitor, loop)
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		select {
		case <-interrupts:
			fmt.Fprintln(os.Stderr, "\nStopping at the next iteration boundary (interrupt again to abort)...")
			loop.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-interrupts:
			cancel()
		case <-ctx.Done():
		}
	}()

	final, err := loop.Execute(ctx)
	if err != nil {
		return fmt.Errorf("convergence loop: %w", err)
	}

	printLoopResult(final)

	if final.Status == models.ConvergenceFailed {
		return fmt.Errorf("loop did not converge: failure rate %.1f%% after %d iterations (target %.1f%%)",
			final.FailureRate, final.Iteration, final.TargetRate)
	}
	return nil
}

// findResumeState locates the most recent loop state: the checkpoint store
// first, the state database as fallback.
func findResumeState(checkpoints *convergence.CheckpointStore, db *state.DB, projectID string) (*models.ConvergenceState, error) {
	resume, err := checkpoints.Latest(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if resume == nil {
		resume, err = db.LoadConvergence(projectID)
		if err != nil {
			return nil, fmt.Errorf("loading convergence state: %w", err)
		}
	}
	if resume == nil {
		return nil, fmt.Errorf("no loop state found for project %s; run without --resume first", projectID)
	}
	return resume, nil
}

// driveLoopSignals polls the signal monitor and forwards pause/resume/stop
// to the loop. Polling keeps working when the fsnotify watcher could not be
// created.
func driveLoopSignals(ctx context.Context, monitor *sig.Monitor, loop *convergence.Loop) {
	ticker := time.NewTicker(signalPollInterval)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if monitor.ShouldStop() {
			loop.Stop()
			return
		}

		switch {
		case monitor.ShouldPause() && !paused:
			paused = true
			loop.Pause()
		case !monitor.ShouldPause() && paused:
			paused = false
			loop.Resume()
		}
	}
}

// loopEventSink prints loop lifecycle events as progress lines.
type loopEventSink struct{}

func (loopEventSink) Publish(_ string, eventType string, payload map[string]any) {
	switch eventType {
	case convergence.EventIterationCompleted:
		fmt.Printf("%s iteration %v: failure rate %.1f%% (%v scenarios)\n",
			color.CyanString("▶"), payload["iteration"], toFloat(payload["failure_rate"]), payload["scenarios"])
	case convergence.EventLoopPaused:
		fmt.Printf("%s paused\n", color.YellowString("⏸"))
	case convergence.EventLoopResumed:
		fmt.Printf("%s resumed\n", color.CyanString("▶"))
	}
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func printLoopResult(final *models.ConvergenceState) {
	fmt.Println()
	switch final.Status {
	case models.ConvergenceCompleted:
		fmt.Printf("%s converged in %d iterations: failure rate %.1f%% (target %.1f%%)\n",
			color.GreenString("✓"), final.Iteration, final.FailureRate, final.TargetRate)
	case models.ConvergencePaused:
		fmt.Printf("%s paused at iteration %d: failure rate %.1f%%. Resume with: waggle loop --resume\n",
			color.YellowString("⏸"), final.Iteration, final.FailureRate)
	case models.ConvergenceFailed:
		fmt.Printf("%s exhausted %d iterations: failure rate %.1f%% (target %.1f%%)\n",
			color.RedString("✗"), final.Iteration, final.FailureRate, final.TargetRate)
	}

	if len(final.History) > 0 {
		fmt.Print("  History: ")
		for i, rate := range final.History {
			if i > 0 {
				fmt.Print(" -> ")
			}
			fmt.Printf("%.1f%%", rate)
		}
		fmt.Println()
	}
	if len(final.Scenarios) > 0 {
		fmt.Printf("  Open scenarios: %d\n", len(final.Scenarios))
	}
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroFloat(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
