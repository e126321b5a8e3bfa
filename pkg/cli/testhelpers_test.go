package cli_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/jlrickert/xcheck/pkg/cli"
	"github.com/jlrickert/xcheck/pkg/internal"
)

var epoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

const readingSchema = "testdata/reading.yaml"

// Result is the outcome of one command line run.
type Result struct {
	Code   int
	Err    error
	Stdout string
	Stderr string
}

// Runner runs command lines against a private hash log.
type Runner struct {
	t     *testing.T
	db    string
	clock *internal.FixedClock
}

func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{
		t:     t,
		db:    filepath.Join(t.TempDir(), "hashlog.db"),
		clock: internal.NewFixedClock(epoch),
	}
}

func (r *Runner) Run(args ...string) Result {
	return r.RunWithInput("", args...)
}

func (r *Runner) RunWithInput(stdin string, args ...string) Result {
	r.t.Helper()
	var in io.Reader = strings.NewReader(stdin)
	var out, errOut bytes.Buffer
	full := append([]string{"--db", r.db}, args...)
	code, err := cli.Run(context.Background(), full,
		cli.WithIO(in, &out, &errOut),
		cli.WithLogger(slogt.New(r.t)),
		cli.WithClock(r.clock),
	)
	return Result{Code: code, Err: err, Stdout: out.String(), Stderr: errOut.String()}
}

// hashOf returns the hex hash printed for the first value of a hash run.
func hashOf(t *testing.T, res Result) string {
	t.Helper()
	line, _, _ := strings.Cut(res.Stdout, "\n")
	h, _, ok := strings.Cut(line, "  ")
	if !ok || len(h) != 16 {
		t.Fatalf("unexpected hash output %q", res.Stdout)
	}
	return h
}
