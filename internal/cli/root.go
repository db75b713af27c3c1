// Package cli implements the chessload command line.
package cli

import (
	"errors"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chess-vn/chessload/internal/logging"
)

var version = "0.1.0"

// Process exit codes.
const (
	ExitOK               = 0
	ExitError            = 1
	ExitThresholdsFailed = 99
)

// ErrThresholdsCrossed is returned by run when at least one threshold failed.
var ErrThresholdsCrossed = errors.New("some thresholds have been crossed")

// rootOptions are the flags shared by every command.
type rootOptions struct {
	logLevel string
	noColor  bool
	quiet    bool

	out    io.Writer
	errOut io.Writer
	logger *log.Logger
}

// NewRootCmd builds the command tree. Output goes to out, logs and errors to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:     "chessload",
		Short:   "Load test the chess API with ramping virtual users",
		Version: version,
		Long: `chessload drives a ramping population of virtual users against the
chess API read endpoints (/user, /userRatings, /matchResults, /activeMatches,
/friends), checks every response and evaluates pass/fail thresholds.

The base URL and token come from BASE_URL and TOKEN, or --base-url and --token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(opts.errOut, opts.logLevel, opts.noColor)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", logging.DefaultLevel, "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the final verdict")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newSummaryCmd(opts))
	cmd.AddCommand(newStubCmd(opts))
	cmd.AddCommand(newInitCmd(opts))

	return cmd
}

// Execute runs the command line with the process arguments.
func Execute() error {
	return NewRootCmd(os.Stdout, os.Stderr).Execute()
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrThresholdsCrossed):
		return ExitThresholdsFailed
	default:
		return ExitError
	}
}
