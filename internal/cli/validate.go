package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chess-vn/chessload/internal/config"
)

// errInvalidScenario is returned once every problem has been printed.
var errInvalidScenario = errors.New("scenario is invalid")

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a scenario file",
		Long: `Check a scenario file against the scenario schema, then check its
stages, checks and thresholds. Every problem found is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenario(root, args[0])
		},
	}
}

func validateScenario(root *rootOptions, path string) error {
	cfg, err := config.LoadScenario(path)
	if err == nil {
		config.ApplyDefaults(cfg)
		err = cfg.Validate()
	}
	if err == nil {
		fmt.Fprintf(root.out, "✓ %s is valid\n", path)
		return nil
	}

	var verrs *config.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fmt.Fprintf(root.out, "✗ %s has %d problem(s):\n", path, len(verrs.Errors))
	for _, e := range verrs.Errors {
		field := e.Field
		if field == "" {
			field = "(root)"
		}
		fmt.Fprintf(root.out, "  - %s: %s\n", field, e.Message)
	}
	return errInvalidScenario
}
