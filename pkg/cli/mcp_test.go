package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/jlrickert/cli-toolkit/mylog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeps(t *testing.T) (*Deps, context.Context) {
	t.Helper()
	deps := &Deps{SchemaPath: "testdata/reading.yaml", Logger: slogt.New(t)}
	deps.setDefaults()
	return deps, mylog.WithLogger(context.Background(), deps.Logger)
}

func fileHash(t *testing.T, ctx context.Context, deps *Deps, path string) string {
	t.Helper()
	ss, err := openSession(ctx, deps, deps.SchemaPath, hashFlags{Depth: -1}, true)
	require.NoError(t, err)
	res, err := ss.hashSource(nil, path)
	require.NoError(t, err)
	return fmt.Sprintf("%016x", res.Hash)
}

func TestMCPHash(t *testing.T) {
	t.Parallel()
	deps, ctx := newTestDeps(t)
	want := fileHash(t, ctx, deps, "testdata/a.json")

	out, err := mcpHash(ctx, deps, HashInput{Format: "json", Data: `{"station": "north", "celsius": 21}`})
	require.NoError(t, err)
	assert.Equal(t, want, out.Hash)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "Reading.Celsius", out.Entries[0].Path)
	assert.Equal(t, "C", out.Entries[0].Tag)

	raw, err := cbor.Marshal(map[string]any{"station": "north", "celsius": 21})
	require.NoError(t, err)
	out, err = mcpHash(ctx, deps, HashInput{Format: "cbor", Data: base64.StdEncoding.EncodeToString(raw)})
	require.NoError(t, err)
	assert.Equal(t, want, out.Hash)

	zero := 0
	shallow, err := mcpHash(ctx, deps, HashInput{Format: "yaml", Data: "celsius: 99\n", Depth: &zero})
	require.NoError(t, err)
	assert.Empty(t, shallow.Entries)
}

func TestMCPHash_Errors(t *testing.T) {
	t.Parallel()
	deps, ctx := newTestDeps(t)
	negative := -1

	tests := []struct {
		name        string
		in          HashInput
		expectedErr string
	}{
		{name: "missing_format", in: HashInput{Data: "{}"}, expectedErr: "format is required"},
		{name: "negative_depth", in: HashInput{Format: "json", Data: "{}", Depth: &negative}, expectedErr: "negative"},
		{name: "bad_base64", in: HashInput{Format: "cbor", Data: "%%%"}, expectedErr: "base64"},
		{name: "unknown_field", in: HashInput{Format: "json", Data: `{"humidity": 3}`}, expectedErr: "humidity"},
		{name: "missing_schema", in: HashInput{Schema: "testdata/none.yaml", Format: "json", Data: "{}"}, expectedErr: "none.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(innerT *testing.T) {
			innerT.Parallel()
			_, err := mcpHash(ctx, deps, tt.in)
			require.Error(innerT, err)
			assert.Contains(innerT, err.Error(), tt.expectedErr)
		})
	}
}

func TestMCPServer_Tools(t *testing.T) {
	t.Parallel()
	deps, ctx := newTestDeps(t)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := newMCPServer(deps).Connect(ctx, st, nil)
	require.NoError(t, err)
	defer func() { _ = ss.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "xcheck-test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer func() { _ = cs.Close() }()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"xcheck_hash", "xcheck_explain"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "xcheck_hash",
		Arguments: map[string]any{"format": "toml", "data": "station = \"north\"\ncelsius = 21\n"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out HashOutput
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.Equal(t, fileHash(t, ctx, deps, "testdata/a.json"), out.Hash)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "xcheck_explain",
		Arguments: map[string]any{"type": "Reading"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok = res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "# Reading")

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "xcheck_hash",
		Arguments: map[string]any{"format": "json", "data": "not json"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
