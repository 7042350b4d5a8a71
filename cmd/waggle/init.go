package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/waggle/internal/config"
	"github.com/ShayCichocki/waggle/internal/research"
	"github.com/ShayCichocki/waggle/internal/state"
)

var (
	initForce      bool
	initSeedCorpus string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Waggle project",
	Long: `Initialize a directory for use with Waggle.

This command sets up everything needed to run Waggle:
  - Verifies prerequisites (API key, sandbox interpreters)
  - Creates the .waggle directory structure (signals/, logs/, state.db)
  - Writes a .waggle.yaml configuration template
  - Writes the default hive routing table to .waggle/routing.yaml

The directory argument is optional and defaults to the current directory.

Examples:
  waggle init                         # Initialize current directory
  waggle init ./myproject             # Initialize specific directory
  waggle init --force                 # Reinitialize even if already set up
  waggle init --seed-corpus seed.yaml # Load research artifacts during init`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().StringVar(&initSeedCorpus, "seed-corpus", "", "Seed the research artifact store from a YAML corpus file")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Waggle in %s...\n\n", absPath)

	waggleDir := filepath.Join(absPath, ".waggle")
	if _, err := os.Stat(waggleDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	// Prerequisite checks. Neither is fatal: the API key can be set later
	// and the audit pipeline degrades without an interpreter.
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	if _, err := exec.LookPath("python3"); err != nil {
		printStatus("⚠", "python3 not found in PATH (production audits of Python code will fail)", color.FgYellow)
	} else {
		printStatus("✓", "python3 found", color.FgGreen)
	}

	for _, dir := range []string{
		waggleDir,
		filepath.Join(waggleDir, "signals"),
		filepath.Join(waggleDir, "logs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .waggle directory structure", color.FgGreen)

	db, err := state.OpenProject(absPath)
	if err != nil {
		return fmt.Errorf("creating state database: %w", err)
	}
	migrateErr := db.Migrate()
	db.Close()
	if migrateErr != nil {
		return fmt.Errorf("migrating state database: %w", migrateErr)
	}
	printStatus("✓", "Created state database", color.FgGreen)

	if err := createProjectConfig(absPath); err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	printStatus("✓", "Created .waggle.yaml template", color.FgGreen)

	if err := createRoutingTable(absPath); err != nil {
		return fmt.Errorf("creating routing table: %w", err)
	}
	printStatus("✓", "Created default routing table in .waggle/routing.yaml", color.FgGreen)

	if initSeedCorpus != "" {
		count, err := seedResearchCorpus(absPath, initSeedCorpus)
		if err != nil {
			return fmt.Errorf("seeding research corpus: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Seeded %d research artifacts", count), color.FgGreen)
	}

	fmt.Printf("\n%s Waggle initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		fmt.Println("  1. Set your API key:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	fmt.Println("  2. Converge a plan:")
	fmt.Println("     waggle loop --spec spec.md --plan plan.md")
	fmt.Println()
	fmt.Println("  3. Run a task file:")
	fmt.Println("     waggle run tasks.yaml")
	fmt.Println()

	return nil
}

// createProjectConfig creates the .waggle.yaml template. An existing file is
// never overwritten, even with --force.
func createProjectConfig(repoPath string) error {
	configPath := filepath.Join(repoPath, ".waggle.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	template := `# Waggle Project Configuration
# This file overrides defaults from ~/.config/waggle/config.yaml

# anthropic:
#   model: claude-sonnet-4-20250514

# bedrock:
#   enabled: false
#   region: us-west-2

# orchestrator:
#   max_parallel: 4
#   target_phases: 5
#   audit_pass_rate: 0.8

# timeouts:
#   delegation: 10m
#   sandbox: 30s

# convergence:
#   max_iterations: 10
#   target_failure_rate: 5.0
`

	return os.WriteFile(configPath, []byte(template), 0644)
}

// createRoutingTable writes the built-in hive layout so operators have a
// concrete file to edit. An existing table is never overwritten.
func createRoutingTable(repoPath string) error {
	tablePath := filepath.Join(repoPath, ".waggle", "routing.yaml")

	if _, err := os.Stat(tablePath); err == nil {
		return nil
	}

	data, err := yaml.Marshal(config.DefaultRoutingTable())
	if err != nil {
		return fmt.Errorf("marshaling routing table: %w", err)
	}

	header := "# Hive routing table: queen maps categories to princesses,\n" +
		"# each princess maps categories to drones on her roster.\n"
	return os.WriteFile(tablePath, append([]byte(header), data...), 0644)
}

// seedResearchCorpus loads artifacts from a YAML corpus into the project's
// artifact store.
func seedResearchCorpus(repoPath, corpusPath string) (int, error) {
	store, err := research.NewArtifactStore(research.ProjectDBPath(repoPath))
	if err != nil {
		return 0, err
	}
	defer store.Close()

	return research.Seed(store, corpusPath)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
