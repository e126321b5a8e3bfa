package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jlrickert/cli-toolkit/mylog"
	"github.com/spf13/cobra"

	"github.com/jlrickert/xcheck/pkg/hashlog"
	"github.com/jlrickert/xcheck/pkg/internal"
	"github.com/jlrickert/xcheck/pkg/schema"
	"github.com/jlrickert/xcheck/pkg/xcheck"
)

// hashFlags are the per-command options selecting what to hash and how.
type hashFlags struct {
	Type    string
	Format  string
	Depth   int
	AHasher string
	SHasher string
}

func bindHashFlags(cmd *cobra.Command, f *hashFlags) {
	cmd.Flags().StringVarP(&f.Type, "type", "t", "", "schema type of the values (optional when the schema has one type)")
	cmd.Flags().StringVarP(&f.Format, "format", "f", "", "value format: json, yaml, toml or cbor (default from file extension)")
	cmd.Flags().IntVarP(&f.Depth, "depth", "d", -1, "recursion depth (default from schema)")
	cmd.Flags().StringVar(&f.AHasher, "ahasher", "", "A channel hasher (default from schema)")
	cmd.Flags().StringVar(&f.SHasher, "shasher", "", "S channel hasher (default from schema)")
}

// session is a compiled schema plus the resolved hashing parameters for one
// command invocation.
type session struct {
	cat      *schema.Catalog
	typeName string
	format   schema.Format
	depth    int
	a, s     string
	lg       *slog.Logger
}

// hashResult is the hash of one value and the tagged entries seen while
// computing it.
type hashResult struct {
	Source  string
	Hash    uint64
	Entries []hashlog.Entry
}

func loadCatalog(deps *Deps, path string) (*schema.Catalog, error) {
	if path == "" {
		return nil, errors.New("a schema is required (--schema)")
	}
	s, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	return schema.Compile(s, deps.NewRegistry())
}

// openSession loads the schema and resolves flags against its defaults. With
// needType false an empty type name is accepted.
func openSession(ctx context.Context, deps *Deps, schemaPath string, f hashFlags, needType bool) (*session, error) {
	lg := mylog.LoggerFromContext(ctx)
	cat, err := loadCatalog(deps, schemaPath)
	if err != nil {
		return nil, err
	}

	ss := &session{
		cat:      cat,
		typeName: f.Type,
		depth:    cat.Defaults.Depth,
		a:        cat.Defaults.AHasher,
		s:        cat.Defaults.SHasher,
		lg:       lg,
	}
	if f.Depth >= 0 {
		ss.depth = f.Depth
	}
	if f.AHasher != "" {
		ss.a = f.AHasher
	}
	if f.SHasher != "" {
		ss.s = f.SHasher
	}
	if _, _, err := cat.Registry().Channels(ss.a, ss.s); err != nil {
		return nil, err
	}
	if f.Format != "" {
		if ss.format, err = schema.ParseFormat(f.Format); err != nil {
			return nil, err
		}
	}

	names := cat.Names()
	if ss.typeName == "" && len(names) == 1 {
		ss.typeName = names[0]
	}
	if ss.typeName == "" {
		if needType {
			return nil, fmt.Errorf("a type is required (--type); the schema defines %s", strings.Join(names, ", "))
		}
	} else {
		t, err := cat.Type(ss.typeName)
		if err != nil {
			return nil, err
		}
		if err := ss.engine(nil).Compile(t); err != nil {
			return nil, err
		}
	}
	lg.Debug("loaded schema", "path", schemaPath, "types", len(names), "type", ss.typeName,
		"depth", ss.depth, "ahasher", ss.a, "shasher", ss.s)
	return ss, nil
}

func (ss *session) engine(obs xcheck.Observer) *xcheck.Engine {
	return xcheck.New(
		xcheck.WithRegistry(ss.cat.Registry()),
		xcheck.WithChannels(ss.a, ss.s),
		xcheck.WithLogger(ss.lg),
		xcheck.WithObserver(obs),
	)
}

// hashValue hashes an already decoded value.
func (ss *session) hashValue(source string, v any) (hashResult, error) {
	var rec hashlog.Recorder
	h, err := ss.engine(rec.Observe).Hash(v, ss.depth)
	if err != nil {
		return hashResult{}, fmt.Errorf("hash %s: %w", source, err)
	}
	return hashResult{Source: source, Hash: h, Entries: rec.Entries()}, nil
}

// hashBytes decodes data in the given format and hashes it.
func (ss *session) hashBytes(source string, format schema.Format, data []byte) (hashResult, error) {
	v, err := ss.cat.Decode(ss.typeName, format, data)
	if err != nil {
		return hashResult{}, fmt.Errorf("%s: %w", source, err)
	}
	return ss.hashValue(source, v)
}

// hashSource hashes the file at path, or stdin when path is "-". Stdin needs
// an explicit format.
func (ss *session) hashSource(in io.Reader, path string) (hashResult, error) {
	if path == "-" {
		if ss.format == "" {
			return hashResult{}, errors.New("reading stdin needs --format")
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return hashResult{}, fmt.Errorf("read stdin: %w", err)
		}
		return ss.hashBytes("-", ss.format, data)
	}
	if ss.format != "" {
		data, err := readFile(path)
		if err != nil {
			return hashResult{}, err
		}
		return ss.hashBytes(path, ss.format, data)
	}
	v, err := ss.cat.DecodeFile(ss.typeName, path)
	if err != nil {
		return hashResult{}, err
	}
	return ss.hashValue(path, v)
}

func openStore(ctx context.Context, deps *Deps) (*hashlog.Store, error) {
	path := deps.DBPath
	if path == "" {
		var err error
		if path, err = internal.DefaultHashLogPath(); err != nil {
			return nil, fmt.Errorf("locating hash log: %w", err)
		}
	}
	return hashlog.Open(ctx, path,
		hashlog.WithClock(deps.Clock),
		hashlog.WithLogger(mylog.LoggerFromContext(ctx)))
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return b, nil
}

func writeEntries(w io.Writer, entries []hashlog.Entry) {
	for _, e := range entries {
		fmt.Fprintf(w, "  #%d %s %s %s=%016x\n", e.Seq, e.Kind, e.Path, e.Tag, e.Value)
	}
}
