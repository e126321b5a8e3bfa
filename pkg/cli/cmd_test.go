package cli_test

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlrickert/xcheck/pkg/cli"
	"github.com/jlrickert/xcheck/pkg/hashlog"
	"github.com/jlrickert/xcheck/pkg/internal"
	"github.com/jlrickert/xcheck/pkg/xcheck"
)

func TestHashCommand(t *testing.T) {
	t.Parallel()
	r := NewRunner(t)

	res := r.Run("-s", readingSchema, "hash", "testdata/a.json", "testdata/b.yaml", "testdata/moved.toml")
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.Code)

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 3)
	for i, name := range []string{"a.json", "b.yaml", "moved.toml"} {
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}  testdata/`+regexp.QuoteMeta(name)+`$`), lines[i])
	}
	// The note field is excluded, so a and b agree.
	assert.Equal(t, lines[0][:16], lines[1][:16])
	assert.NotEqual(t, lines[0][:16], lines[2][:16])
}

func TestHashCommand_Verbose(t *testing.T) {
	t.Parallel()
	r := NewRunner(t)

	res := r.Run("-s", readingSchema, "hash", "-v", "testdata/a.json")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "  #1 check_value Reading.Celsius C=")
}

func TestHashCommand_Stdin(t *testing.T) {
	t.Parallel()
	r := NewRunner(t)

	file := r.Run("-s", readingSchema, "hash", "testdata/a.json")
	require.NoError(t, file.Err)

	piped := r.RunWithInput(`{"station": "north", "celsius": 21}`, "-s", readingSchema, "hash", "-f", "json", "-")
	require.NoError(t, piped.Err)
	assert.Equal(t, hashOf(t, file), hashOf(t, piped))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(piped.Stdout), "  -"))

	res := r.RunWithInput(`{}`, "-s", readingSchema, "hash", "-")
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "needs --format")
}

func TestHashCommand_ChannelAndDepthFlags(t *testing.T) {
	t.Parallel()
	r := NewRunner(t)

	base := r.Run("-s", readingSchema, "hash", "testdata/a.json")
	require.NoError(t, base.Err)

	other := r.Run("-s", readingSchema, "hash", "--ahasher", "blake3", "testdata/a.json")
	require.NoError(t, other.Err)
	assert.NotEqual(t, hashOf(t, base), hashOf(t, other))

	shallow := r.Run("-s", readingSchema, "hash", "-d", "0", "testdata/a.json")
	require.NoError(t, shallow.Err)
	warmer := r.Run("-s", readingSchema, "hash", "-d", "0", "testdata/warmer.json")
	require.NoError(t, warmer.Err)
	// At depth zero only the sentinel is hashed.
	assert.Equal(t, hashOf(t, shallow), hashOf(t, warmer))

	res := r.Run("-s", readingSchema, "hash", "--shasher", "md5", "testdata/a.json")
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Code)
}

func TestHashCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		expectedErr string
		configError bool
	}{
		{
			name:        "missing_schema",
			args:        []string{"hash", "testdata/a.json"},
			expectedErr: "a schema is required",
		},
		{
			name:        "missing_file",
			args:        []string{"-s", readingSchema, "hash", "testdata/nope.json"},
			expectedErr: "nope.json",
		},
		{
			name:        "unknown_type",
			args:        []string{"-s", readingSchema, "hash", "-t", "Nope", "testdata/a.json"},
			expectedErr: "Nope",
		},
		{
			name:        "bad_annotation",
			args:        []string{"-s", "testdata/bad.yaml", "hash", "testdata/a.json"},
			expectedErr: "bad xcheck annotation on Reading.Celsius",
			configError: true,
		},
		{
			name:        "non_string_literal",
			args:        []string{"-s", "testdata/bad_literal.yaml", "hash", "testdata/a.json"},
			expectedErr: "invalid schema: Reading.celsius: bad field annotation",
			configError: true,
		},
		{
			name:        "no_files",
			args:        []string{"-s", readingSchema, "hash"},
			expectedErr: "requires at least 1 arg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(innerT *testing.T) {
			innerT.Parallel()
			res := NewRunner(innerT).Run(tt.args...)
			require.Error(innerT, res.Err)
			assert.Equal(innerT, 1, res.Code)
			assert.Contains(innerT, res.Stderr, tt.expectedErr)
			assert.True(innerT, strings.HasPrefix(res.Stderr, "xcheck: "))
			assert.Equal(innerT, tt.configError, xcheck.IsConfigError(res.Err))
		})
	}
}

func TestCompareCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		right            string
		expectedCode     int
		expectedInStdout string
	}{
		{
			name:             "same_value_other_format",
			right:            "testdata/b.yaml",
			expectedCode:     0,
			expectedInStdout: "match",
		},
		{
			name:             "tagged_field_differs",
			right:            "testdata/warmer.json",
			expectedCode:     2,
			expectedInStdout: "first divergence at #1: Reading.Celsius C=",
		},
		{
			name:             "untagged_field_differs",
			right:            "testdata/moved.toml",
			expectedCode:     2,
			expectedInStdout: "difference is in untagged fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(innerT *testing.T) {
			innerT.Parallel()
			res := NewRunner(innerT).Run("-s", readingSchema, "compare", "testdata/a.json", tt.right)
			assert.Equal(innerT, tt.expectedCode, res.Code)
			assert.Contains(innerT, res.Stdout, tt.expectedInStdout)
			if tt.expectedCode == 0 {
				require.NoError(innerT, res.Err)
				return
			}
			var mismatch *cli.MismatchError
			require.ErrorAs(innerT, res.Err, &mismatch)
			assert.Equal(innerT, "testdata/a.json", mismatch.Left)
			assert.Equal(innerT, tt.right, mismatch.Right)
		})
	}
}

func TestExplainCommand(t *testing.T) {
	t.Parallel()
	r := NewRunner(t)

	res := r.Run("-s", readingSchema, "explain")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "# Reading\n")
	assert.Contains(t, res.Stdout, "- A channel: `xxh3`")
	assert.Contains(t, res.Stdout, "- S channel: `fnv1a`")
	assert.Contains(t, res.Stdout, "| Station | `string` | default |")
	assert.Contains(t, res.Stdout, "| Celsius | `int64` | check_value | `C` |")
	assert.Contains(t, res.Stdout, "| Note | `string` | skip |")

	res = r.Run("-s", readingSchema, "explain", "--html", "--shasher", "blake2b")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "<h1>Reading</h1>")
	assert.Contains(t, res.Stdout, "<table>")
	assert.Contains(t, res.Stdout, "<code>blake2b</code>")
}

func TestHashLogCommands(t *testing.T) {
	t.Parallel()
	r := NewRunner(t)
	s := []string{"-s", readingSchema}

	res := r.Run(append(s, "record", "-n", "base", "testdata/a.json")...)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "base (1 entries)")

	res = r.Run(append(s, "record", "-n", "same", "testdata/b.yaml")...)
	require.NoError(t, res.Err)
	res = r.Run(append(s, "record", "-n", "warm", "testdata/warmer.json")...)
	require.NoError(t, res.Err)

	res = r.Run(append(s, "record", "-n", "base", "testdata/b.yaml")...)
	require.ErrorIs(t, res.Err, hashlog.ErrRunExists)

	res = r.Run(append(s, "record", "testdata/a.json")...)
	require.Error(t, res.Err)
	assert.Contains(t, res.Stderr, `"name" not set`)

	res = r.Run("runs")
	require.NoError(t, res.Err)
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasPrefix(lines[1], "base "))
	assert.Contains(t, lines[1], "Reading")
	assert.Contains(t, lines[1], "xxh3/fnv1a")
	assert.Contains(t, lines[1], internal.FormatTimestamp(epoch))

	res = r.Run("diff", "base", "same")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "agree")

	res = r.Run("diff", "base", "warm")
	assert.Equal(t, 2, res.Code)
	var mismatch *cli.MismatchError
	require.ErrorAs(t, res.Err, &mismatch)
	assert.Contains(t, res.Stdout, "~ #1 Reading.Celsius C=")

	res = r.Run("diff", "base", "missing")
	assert.Equal(t, 1, res.Code)
	require.ErrorIs(t, res.Err, hashlog.ErrRunNotFound)

	exported := filepath.Join(t.TempDir(), "base.cbor")
	res = r.Run("export", "base", "-o", exported)
	require.NoError(t, res.Err)

	res = r.Run("import", exported, "--as", "copy")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "imported copy")

	res = r.Run("diff", "base", "copy")
	require.NoError(t, res.Err)

	res = r.Run("runs", "--delete", "copy")
	require.NoError(t, res.Err)
	res = r.Run("diff", "base", "copy")
	require.ErrorIs(t, res.Err, hashlog.ErrRunNotFound)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	res := NewRunner(t).Run("version")
	require.NoError(t, res.Err)
	assert.Equal(t, cli.Version+"\n", res.Stdout)
}
