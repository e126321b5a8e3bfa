package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jlrickert/xcheck/pkg/xcheck"
)

// NewExplainCmd returns the `explain` cobra command. It prints the resolved
// hashing configuration of schema types as markdown, or HTML with --html.
func NewExplainCmd(deps *Deps) *cobra.Command {
	var (
		flags hashFlags
		html  bool
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "show how each field of a schema type is hashed",
		Long: `Resolve the xcheck annotations of a schema type and print, for every field,
the policy that applies along with its tag, filter and function. Without --type
every type in the schema is explained.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := openSession(cmd.Context(), deps, deps.SchemaPath, flags, false)
			if err != nil {
				return err
			}
			md, err := ss.explain()
			if err != nil {
				return err
			}
			if !html {
				_, err = io.WriteString(cmd.OutOrStdout(), md)
				return err
			}
			return renderHTML(cmd.OutOrStdout(), md)
		},
	}

	bindHashFlags(cmd, &flags)
	cmd.Flags().BoolVar(&html, "html", false, "render the explanation as HTML")
	return cmd
}

// explain renders the session type, or every catalog type when none is
// selected, as a markdown document.
func (ss *session) explain() (string, error) {
	names := ss.cat.Names()
	if ss.typeName != "" {
		names = []string{ss.typeName}
	}

	e := ss.engine(nil)
	var b strings.Builder
	for i, name := range names {
		t, err := ss.cat.Type(name)
		if err != nil {
			return "", err
		}
		d, err := e.Describe(t)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString("\n")
		}
		ss.writeDescription(&b, d)
	}
	return b.String(), nil
}

func (ss *session) writeDescription(b *strings.Builder, d xcheck.TypeDescription) {
	fmt.Fprintf(b, "# %s\n\n", d.Type)
	fmt.Fprintf(b, "- A channel: `%s`\n", ss.channelLabel(d.Aggregate.AHasher))
	fmt.Fprintf(b, "- S channel: `%s`\n", ss.channelLabel(d.Aggregate.SHasher))
	fmt.Fprintf(b, "- field hasher: `%s`\n", ss.channelLabel(d.Aggregate.Hasher))
	fmt.Fprintf(b, "- depth: %d\n", ss.depth)
	if d.Aggregate.CustomHash != "" {
		fmt.Fprintf(b, "- custom hash: `%s`\n\nFields are not inspected.\n", d.Aggregate.CustomHash)
		return
	}
	if len(d.Fields) == 0 {
		b.WriteString("\nNo fields.\n")
		return
	}

	b.WriteString("\n| Field | Type | Policy | Tag | Filter | Function |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
	for _, f := range d.Fields {
		fmt.Fprintf(b, "| %s | `%s` | %s | %s | %s | %s |\n",
			f.Name, f.Type, f.Policy.Kind,
			cell(f.Policy.Tag), filterCell(f.Policy), cell(f.Policy.Function))
	}
}

// channelLabel resolves the channel placeholders to the session hashers.
func (ss *session) channelLabel(name string) string {
	switch name {
	case xcheck.DefaultAHasher:
		return ss.a
	case xcheck.DefaultSHasher:
		return ss.s
	}
	return name
}

func filterCell(p xcheck.FieldPolicy) string {
	switch p.Kind {
	case xcheck.PolicyByValue, xcheck.PolicyByRaw:
	default:
		return ""
	}
	switch p.Filter {
	case xcheck.FilterIdentity:
		return "identity"
	case xcheck.FilterAsIs:
		return "as is"
	}
	return "`" + p.Filter + "`"
}

func cell(s string) string {
	if s == "" {
		return ""
	}
	return "`" + strings.ReplaceAll(s, "|", `\|`) + "`"
}

func renderHTML(w io.Writer, md string) error {
	gm := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
