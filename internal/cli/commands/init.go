package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftlake-labs/driftlake/internal/cli/output"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Driftlake project",
		Long: `Initialize a new Driftlake project with default directory structure and configuration.

This creates:
  - snapshots/ directory for snapshot definitions
  - seeds/ directory for seed data CSV files
  - driftlake.yaml configuration file

Use --example to create a full working demo project with sample seed
data and snapshot definitions covering both change detection strategies.`,
		Example: `  # Initialize in current directory
  driftlake init

  # Initialize with a full working example
  driftlake init --example

  # Initialize in a new directory
  driftlake init my-project --example

  # Force overwrite existing config
  driftlake init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			// Create renderer
			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create a full example project with seeds and snapshots")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := dir + "/driftlake.yaml"
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("driftlake.yaml already exists. Use --force to overwrite")
	}

	// Copy minimal template
	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	// List created files
	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("Driftlake project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Add your seed data to seeds/")
	r.Println("  2. Create snapshot definitions in snapshots/")
	r.Println("  3. Run 'driftlake seed' to load seed data")
	r.Println("  4. Run 'driftlake snapshot' to build history tables")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := dir + "/driftlake.yaml"
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("driftlake.yaml already exists. Use --force to overwrite")
	}

	// Copy example template
	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	// List created files by category
	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	// Display files by category
	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Seeds")
	for _, f := range groups["seeds"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Snapshots")
	for _, f := range groups["snapshots"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("Driftlake project initialized with example data!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  driftlake seed       Load CSV data into DuckDB")
	r.Println("  driftlake snapshot   Run all snapshots in dependency order")
	r.Println("  driftlake list       View snapshots and dependencies")
	r.Println("  driftlake runs       Inspect run history")

	return nil
}
