package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Run executes the xcheck command line with args and returns the process
// exit code: 0 on success, 2 when compared hashes differ, 130 when
// interrupted and 1 for any other error.
func Run(ctx context.Context, args []string, opts ...Option) (int, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := applyOptions(opts...)
	cmd := NewRootCmd(deps)
	// Commands that fail skip PersistentPostRunE.
	defer func() { deps.Shutdown() }()
	cmd.SetArgs(args)
	cmd.SetIn(deps.In)
	cmd.SetOut(deps.Out)
	cmd.SetErr(deps.Err)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(deps.Err, "xcheck: %s\n", renderUserError(err, deps))

		var mismatch *MismatchError
		switch {
		case errors.As(err, &mismatch):
			return 2, err
		case errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded):
			return 130, err
		}
		return 1, err
	}
	return 0, nil
}
