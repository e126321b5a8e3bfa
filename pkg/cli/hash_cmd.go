package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jlrickert/xcheck/pkg/hashlog"
)

// NewHashCmd returns the `hash` cobra command.
//
// Usage examples:
//
//	xcheck -s packet.yaml hash -t Packet a.json b.yaml
//	cat a.cbor | xcheck -s packet.yaml hash -t Packet -f cbor -
func NewHashCmd(deps *Deps) *cobra.Command {
	var (
		flags   hashFlags
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "hash FILE...",
		Short: "print the cross-check hash of each value file",
		Long: `Decode each file as a value of the schema type and print its cross-check
hash. Use "-" to read one value from stdin (requires --format). With --verbose
every tagged check_value and check_raw contribution is listed too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := openSession(cmd.Context(), deps, deps.SchemaPath, flags, true)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range args {
				res, err := ss.hashSource(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%016x  %s\n", res.Hash, res.Source)
				if verbose {
					writeEntries(out, res.Entries)
				}
			}
			return nil
		},
	}

	bindHashFlags(cmd, &flags)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list tagged contributions")
	return cmd
}

// MismatchError reports that two compared values or runs hash differently.
type MismatchError struct {
	Left  string
	Right string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s and %s hash differently", e.Left, e.Right)
}

// NewCompareCmd returns the `compare` cobra command. It exits with status 2
// when the hashes differ.
func NewCompareCmd(deps *Deps) *cobra.Command {
	var flags hashFlags

	cmd := &cobra.Command{
		Use:   "compare LEFT RIGHT",
		Short: "compare the cross-check hashes of two value files",
		Long: `Hash two value files and report whether they agree. When they differ, the
first tagged contribution that differs is shown.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := openSession(cmd.Context(), deps, deps.SchemaPath, flags, true)
			if err != nil {
				return err
			}
			left, err := ss.hashSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			right, err := ss.hashSource(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%016x  %s\n%016x  %s\n", left.Hash, left.Source, right.Hash, right.Source)
			if left.Hash == right.Hash {
				fmt.Fprintln(out, "match")
				return nil
			}

			d := hashlog.Diff{
				Left:  hashlog.Run{Name: left.Source, Hash: left.Hash},
				Right: hashlog.Run{Name: right.Source, Hash: right.Hash},
			}
			d.Mismatches, d.Missing, d.Extra = hashlog.CompareEntries(left.Entries, right.Entries)
			writeDivergence(out, d)
			return &MismatchError{Left: left.Source, Right: right.Source}
		},
	}

	bindHashFlags(cmd, &flags)
	return cmd
}

// writeDivergence prints where two entry lists first disagree.
func writeDivergence(w io.Writer, d hashlog.Diff) {
	seq, ok := d.FirstDivergence()
	if !ok {
		fmt.Fprintln(w, "no tagged contribution differs; the difference is in untagged fields")
		return
	}
	for _, m := range d.Mismatches {
		if m.Seq == seq {
			fmt.Fprintf(w, "first divergence at #%d: %s %s=%016x, %s %s=%016x\n",
				seq, m.Left.Path, m.Left.Tag, m.Left.Value, m.Right.Path, m.Right.Tag, m.Right.Value)
			return
		}
	}
	for _, e := range d.Missing {
		if e.Seq == seq {
			fmt.Fprintf(w, "first divergence at #%d: %s %s only in %s\n", seq, e.Path, e.Tag, d.Left.Name)
			return
		}
	}
	for _, e := range d.Extra {
		if e.Seq == seq {
			fmt.Fprintf(w, "first divergence at #%d: %s %s only in %s\n", seq, e.Path, e.Tag, d.Right.Name)
			return
		}
	}
}
