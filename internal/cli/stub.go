package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chess-vn/chessload/internal/stub"
)

type stubOptions struct {
	addr      string
	token     string
	latency   time.Duration
	errorRate float64
}

func newStubCmd(root *rootOptions) *cobra.Command {
	opts := &stubOptions{}

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a local stand-in for the chess API",
		Long: `Serve /user, /userRatings, /matchResults, /activeMatches and /friends
with canned JSON, for smoke runs without the real backend.

  chessload stub --addr :8080 --token "Bearer dev" --latency 50ms &
  BASE_URL=http://localhost:8080 TOKEN="Bearer dev" chessload run --stages "10s:5,10s:0"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.errorRate < 0 || opts.errorRate > 1 {
				return fmt.Errorf("--error-rate must be between 0 and 1, got %g", opts.errorRate)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveStub(ctx, root.logger, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8080", "Listen address")
	flags.StringVar(&opts.token, "token", "", "Require this exact Authorization header")
	flags.DurationVar(&opts.latency, "latency", 0, "Delay added to every response")
	flags.Float64Var(&opts.errorRate, "error-rate", 0, "Share of requests answered with 500 (0 to 1)")

	return cmd
}

// serveStub serves the stub API until ctx is done.
func serveStub(ctx context.Context, logger *log.Logger, opts *stubOptions) error {
	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.addr, err)
	}

	srv := &http.Server{
		Handler: stub.New(stub.Options{
			Token:     opts.token,
			Latency:   opts.latency,
			ErrorRate: opts.errorRate,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.WithFields(log.Fields{
		"addr":       ln.Addr().String(),
		"latency":    opts.latency,
		"error_rate": opts.errorRate,
		"auth":       opts.token != "",
	}).Info("stub chess API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down stub: %w", err)
	}
	logger.Info("stub chess API stopped")
	return nil
}
