package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jlrickert/cli-toolkit/mylog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/jlrickert/xcheck/pkg/hashlog"
	"github.com/jlrickert/xcheck/pkg/schema"
)

// NewMCPCmd returns the `mcp` cobra command serving the hash and explain
// tools over stdio.
func NewMCPCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "serve xcheck tools over the model context protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mylog.LoggerFromContext(ctx).Info("serving mcp on stdio", "version", Version)
			return newMCPServer(deps).Run(ctx, &mcp.StdioTransport{})
		},
	}
}

// HashInput are the arguments of the xcheck_hash tool.
type HashInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"path to the schema file; defaults to the --schema flag"`
	Type   string `json:"type,omitempty" jsonschema:"schema type of the value; optional when the schema has one type"`
	Format string `json:"format" jsonschema:"value format: json, yaml, toml or cbor"`
	Data   string `json:"data" jsonschema:"the encoded value; base64 when format is cbor"`
	Depth  *int   `json:"depth,omitempty" jsonschema:"recursion depth; defaults to the schema depth"`
}

// HashOutput is the result of the xcheck_hash tool.
type HashOutput struct {
	Hash    string          `json:"hash" jsonschema:"the cross-check hash as 16 hex digits"`
	Entries []hashlog.Entry `json:"entries" jsonschema:"tagged contributions in visit order"`
}

// ExplainInput are the arguments of the xcheck_explain tool.
type ExplainInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"path to the schema file; defaults to the --schema flag"`
	Type   string `json:"type,omitempty" jsonschema:"type to explain; all types when empty"`
}

// ExplainOutput is the result of the xcheck_explain tool.
type ExplainOutput struct {
	Markdown string `json:"markdown" jsonschema:"the resolved configuration as markdown"`
}

func newMCPServer(deps *Deps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "xcheck", Version: Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "xcheck_hash",
		Description: "Compute the cross-check hash of a value described by an xcheck schema.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in HashInput) (*mcp.CallToolResult, HashOutput, error) {
		out, err := mcpHash(withDepsLogger(ctx, deps), deps, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "xcheck_explain",
		Description: "Explain how each field of an xcheck schema type contributes to its hash.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ExplainInput) (*mcp.CallToolResult, ExplainOutput, error) {
		out, err := mcpExplain(withDepsLogger(ctx, deps), deps, in)
		return nil, out, err
	})

	return server
}

func withDepsLogger(ctx context.Context, deps *Deps) context.Context {
	if deps.Logger == nil {
		return ctx
	}
	return mylog.WithLogger(ctx, deps.Logger)
}

func schemaOr(deps *Deps, path string) string {
	if path != "" {
		return path
	}
	return deps.SchemaPath
}

func mcpHash(ctx context.Context, deps *Deps, in HashInput) (HashOutput, error) {
	f := hashFlags{Type: in.Type, Format: in.Format, Depth: -1}
	if in.Depth != nil {
		if *in.Depth < 0 {
			return HashOutput{}, fmt.Errorf("depth must not be negative: %d", *in.Depth)
		}
		f.Depth = *in.Depth
	}
	if in.Format == "" {
		return HashOutput{}, errors.New("format is required")
	}

	ss, err := openSession(ctx, deps, schemaOr(deps, in.Schema), f, true)
	if err != nil {
		return HashOutput{}, err
	}
	data := []byte(in.Data)
	if ss.format == schema.FormatCBOR {
		if data, err = base64.StdEncoding.DecodeString(in.Data); err != nil {
			return HashOutput{}, fmt.Errorf("cbor data must be base64: %w", err)
		}
	}
	res, err := ss.hashBytes("data", ss.format, data)
	if err != nil {
		return HashOutput{}, err
	}
	entries := res.Entries
	if entries == nil {
		entries = []hashlog.Entry{}
	}
	return HashOutput{Hash: fmt.Sprintf("%016x", res.Hash), Entries: entries}, nil
}

func mcpExplain(ctx context.Context, deps *Deps, in ExplainInput) (ExplainOutput, error) {
	ss, err := openSession(ctx, deps, schemaOr(deps, in.Schema), hashFlags{Type: in.Type, Depth: -1}, false)
	if err != nil {
		return ExplainOutput{}, err
	}
	md, err := ss.explain()
	if err != nil {
		return ExplainOutput{}, err
	}
	return ExplainOutput{Markdown: md}, nil
}
