package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chess-vn/chessload/internal/config"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the built-in scenario to a YAML file",
		Long: `Write the built-in api_1000_users scenario to a file (default
scenario.yaml) as a starting point for run --config.

The base URL and token are left out; they come from BASE_URL and TOKEN.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "scenario.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			return writeDefaultScenario(root, path, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func writeDefaultScenario(root *rootOptions, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	data, err := yaml.Marshal(config.DefaultScenario())
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}

	fmt.Fprintf(root.out, "Scenario written to %s\n", path)
	return nil
}
