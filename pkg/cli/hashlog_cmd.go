package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jlrickert/xcheck/pkg/hashlog"
	"github.com/jlrickert/xcheck/pkg/internal"
)

// NewRecordCmd returns the `record` cobra command. It hashes one value file
// and stores the hash and its tagged entries in the hash log under a name.
func NewRecordCmd(deps *Deps) *cobra.Command {
	var (
		flags hashFlags
		name  string
	)

	cmd := &cobra.Command{
		Use:   "record FILE",
		Short: "hash a value file and store the run in the hash log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ss, err := openSession(ctx, deps, deps.SchemaPath, flags, true)
			if err != nil {
				return err
			}
			res, err := ss.hashSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			store, err := openStore(ctx, deps)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			run, err := store.Record(ctx, hashlog.Run{
				Name:    name,
				Type:    ss.typeName,
				Hash:    res.Hash,
				AHasher: ss.a,
				SHasher: ss.s,
				Depth:   ss.depth,
			}, res.Entries)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%016x  %s (%d entries)\n", run.Hash, run.Name, len(res.Entries))
			return err
		},
	}

	bindHashFlags(cmd, &flags)
	cmd.Flags().StringVarP(&name, "name", "n", "", "name of the run")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// NewRunsCmd returns the `runs` cobra command listing recorded runs.
func NewRunsCmd(deps *Deps) *cobra.Command {
	var remove string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "list the runs in the hash log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, deps)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if remove != "" {
				return store.Delete(ctx, remove)
			}

			runs, err := store.Runs(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tHASH\tCHANNELS\tDEPTH\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%016x\t%s/%s\t%d\t%s\n",
					r.Name, r.Type, r.Hash, r.AHasher, r.SHasher, r.Depth, internal.FormatTimestamp(r.CreatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&remove, "delete", "", "delete the named run instead of listing")
	return cmd
}

// NewDiffCmd returns the `diff` cobra command comparing two recorded runs
// entry by entry. It exits with status 2 when the runs differ.
func NewDiffCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "diff LEFT RIGHT",
		Short: "compare two recorded runs entry by entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, deps)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			d, err := store.Diff(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%016x  %s\n%016x  %s\n%s\n", d.Left.Hash, d.Left.Name, d.Right.Hash, d.Right.Name, d)
			if d.Equal() {
				return nil
			}
			for _, m := range d.Mismatches {
				fmt.Fprintf(out, "~ #%d %s %s=%016x | %s %s=%016x\n",
					m.Seq, m.Left.Path, m.Left.Tag, m.Left.Value, m.Right.Path, m.Right.Tag, m.Right.Value)
			}
			for _, e := range d.Missing {
				fmt.Fprintf(out, "- #%d %s %s=%016x\n", e.Seq, e.Path, e.Tag, e.Value)
			}
			for _, e := range d.Extra {
				fmt.Fprintf(out, "+ #%d %s %s=%016x\n", e.Seq, e.Path, e.Tag, e.Value)
			}
			return &MismatchError{Left: d.Left.Name, Right: d.Right.Name}
		},
	}
}

// NewExportCmd returns the `export` cobra command writing a run as CBOR.
func NewExportCmd(deps *Deps) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "write a recorded run as a CBOR document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, deps)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if output == "" || output == "-" {
				return store.Export(ctx, args[0], cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := store.Export(ctx, args[0], f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// NewImportCmd returns the `import` cobra command reading a run exported by
// another hash log.
func NewImportCmd(deps *Deps) *cobra.Command {
	var rename string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "add an exported run to the hash log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			store, err := openStore(ctx, deps)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			run, err := store.Import(ctx, r, rename)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", run.Name)
			return err
		},
	}

	cmd.Flags().StringVar(&rename, "as", "", "store the run under a different name")
	return cmd
}
