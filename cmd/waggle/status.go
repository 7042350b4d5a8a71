package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/waggle/internal/state"
	"github.com/ShayCichocki/waggle/pkg/models"
)

var statusProject string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run and convergence state",
	Long: `Display the persisted state of the current project.

Shows:
  - The latest orchestrated run (phase progress, task counts, audit rate)
  - The convergence loop state (iteration, failure rate history)`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "Project ID (defaults to the directory name)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	projectID := statusProject
	if projectID == "" {
		projectID = filepath.Base(cwd)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No waggle state found. Run 'waggle init' to set up this project.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	run, err := db.LoadRun(projectID)
	if err != nil {
		return fmt.Errorf("load run state: %w", err)
	}
	conv, err := db.LoadConvergence(projectID)
	if err != nil {
		return fmt.Errorf("load convergence state: %w", err)
	}

	if run == nil && conv == nil {
		fmt.Printf("No state recorded for project %s.\n", projectID)
		fmt.Println("Start with 'waggle loop' or 'waggle run'.")
		return nil
	}

	if run != nil {
		displayRun(run)
	}
	if conv != nil {
		if run != nil {
			fmt.Println()
		}
		displayConvergence(conv)
	}

	return nil
}

func displayRun(run *models.RunState) {
	fmt.Printf("Run %s (%s)\n", run.RunID, run.ProjectID)
	fmt.Printf("  Status: %s\n", colorRunStatus(run.Status))
	if run.TotalPhases > 0 {
		current := run.CurrentPhase + 1
		if current > run.TotalPhases {
			current = run.TotalPhases
		}
		if current < 1 {
			current = 1
		}
		fmt.Printf("  Phase: %d of %d\n", current, run.TotalPhases)
	}
	fmt.Printf("  Tasks: %d of %d completed\n", run.CompletedTasks, run.TotalTasks)
	if run.Status == models.RunCompleted || run.Status == models.RunFailed {
		fmt.Printf("  Audit pass rate: %.0f%%\n", run.AuditPassRate*100)
	}
	if run.Error != "" {
		fmt.Printf("  Error: %s\n", run.Error)
	}
	if !run.StartedAt.IsZero() {
		if run.FinishedAt != nil {
			fmt.Printf("  Duration: %s\n", formatDuration(run.FinishedAt.Sub(run.StartedAt)))
		} else {
			fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(run.StartedAt)))
		}
	}
}

func displayConvergence(conv *models.ConvergenceState) {
	fmt.Printf("Convergence loop (%s)\n", conv.ProjectID)
	fmt.Printf("  Status: %s\n", colorConvergenceStatus(conv.Status))
	fmt.Printf("  Iteration: %d of %d\n", conv.Iteration, conv.MaxIterations)
	fmt.Printf("  Failure rate: %.1f%% (target %.1f%%)\n", conv.FailureRate, conv.TargetRate)
	if len(conv.History) > 0 {
		fmt.Print("  History: ")
		for i, rate := range conv.History {
			if i > 0 {
				fmt.Print(" -> ")
			}
			fmt.Printf("%.1f%%", rate)
		}
		fmt.Println()
	}
	if len(conv.Scenarios) > 0 {
		fmt.Printf("  Open scenarios: %d\n", len(conv.Scenarios))
		for _, s := range conv.Scenarios {
			fmt.Printf("    [%s] %s\n", s.Priority, s.Description)
		}
	}
	if conv.Status == models.ConvergencePaused {
		fmt.Println("  Resume with: waggle loop --resume")
	}
}

func colorRunStatus(s models.RunStatus) string {
	switch s {
	case models.RunCompleted:
		return color.GreenString(string(s))
	case models.RunFailed:
		return color.RedString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func colorConvergenceStatus(s models.ConvergenceStatus) string {
	switch s {
	case models.ConvergenceCompleted:
		return color.GreenString(string(s))
	case models.ConvergenceFailed:
		return color.RedString(string(s))
	case models.ConvergencePaused:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
