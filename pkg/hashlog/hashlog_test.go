package hashlog_test

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlrickert/xcheck/pkg/hashlog"
	"github.com/jlrickert/xcheck/pkg/internal"
	"github.com/jlrickert/xcheck/pkg/xcheck"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*hashlog.Store, *internal.FixedClock) {
	t.Helper()
	clock := internal.NewFixedClock(epoch)
	s, err := hashlog.Open(context.Background(), filepath.Join(t.TempDir(), "log", "hashlog.db"),
		hashlog.WithClock(clock), hashlog.WithLogger(slogt.New(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func entries(values ...uint64) []hashlog.Entry {
	out := make([]hashlog.Entry, len(values))
	for i, v := range values {
		out[i] = hashlog.Entry{Seq: i + 1, Path: "T.F", Tag: "TAG", Kind: "check_value", Value: v}
	}
	return out
}

func TestStore_RecordAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, clock := openStore(t)

	// High-bit values survive the signed INTEGER column.
	want := entries(1, 0xffff_ffff_ffff_fffe, 3)
	run, err := s.Record(ctx, hashlog.Run{
		Name: "baseline", Type: "Packet", Hash: 0x8000_0000_0000_0001,
		AHasher: "xxh3", SHasher: "fnv1a", Depth: 8,
	}, want)
	require.NoError(t, err)
	assert.True(t, run.CreatedAt.Equal(epoch))

	clock.Advance(time.Minute)
	_, err = s.Record(ctx, hashlog.Run{Name: "candidate", Type: "Packet"}, nil)
	require.NoError(t, err)

	got, err := s.Run(ctx, "baseline")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	es, err := s.Entries(ctx, "baseline")
	require.NoError(t, err)
	assert.Equal(t, want, es)

	es, err = s.Entries(ctx, "candidate")
	require.NoError(t, err)
	assert.Empty(t, es)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "baseline", runs[0].Name)
	assert.Equal(t, "candidate", runs[1].Name)
	assert.True(t, runs[1].CreatedAt.Equal(epoch.Add(time.Minute)))
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := openStore(t)

	_, err := s.Record(ctx, hashlog.Run{}, nil)
	require.Error(t, err)

	_, err = s.Record(ctx, hashlog.Run{Name: "a"}, entries(1))
	require.NoError(t, err)
	_, err = s.Record(ctx, hashlog.Run{Name: "a"}, nil)
	require.ErrorIs(t, err, hashlog.ErrRunExists)

	// A failed insert leaves nothing behind.
	dup := append(entries(1), hashlog.Entry{Seq: 1})
	_, err = s.Record(ctx, hashlog.Run{Name: "b"}, dup)
	require.Error(t, err)
	_, err = s.Run(ctx, "b")
	require.ErrorIs(t, err, hashlog.ErrRunNotFound)

	_, err = s.Entries(ctx, "missing")
	require.ErrorIs(t, err, hashlog.ErrRunNotFound)
	_, err = s.Diff(ctx, "a", "missing")
	require.ErrorIs(t, err, hashlog.ErrRunNotFound)

	require.NoError(t, s.Delete(ctx, "a"))
	require.ErrorIs(t, s.Delete(ctx, "a"), hashlog.ErrRunNotFound)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hashlog.db")

	s, err := hashlog.Open(ctx, path, hashlog.WithClock(internal.NewFixedClock(epoch)))
	require.NoError(t, err)
	_, err = s.Record(ctx, hashlog.Run{Name: "kept", Hash: 42}, entries(7))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = hashlog.Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, path, s.Path())

	run, err := s.Run(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), run.Hash)
}

func TestCompareEntries(t *testing.T) {
	t.Parallel()

	left := entries(1, 2, 3, 4)
	right := entries(1, 9, 3)
	right[2].Tag = "OTHER"

	mismatches, missing, extra := hashlog.CompareEntries(left, right)
	require.Len(t, mismatches, 2)
	assert.Equal(t, 2, mismatches[0].Seq)
	assert.Equal(t, uint64(2), mismatches[0].Left.Value)
	assert.Equal(t, uint64(9), mismatches[0].Right.Value)
	assert.Equal(t, 3, mismatches[1].Seq)
	assert.Equal(t, []hashlog.Entry{left[3]}, missing)
	assert.Empty(t, extra)

	_, missing, extra = hashlog.CompareEntries(right[:1], left)
	assert.Empty(t, missing)
	assert.Len(t, extra, 3)
}

func TestStore_Diff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := openStore(t)

	_, err := s.Record(ctx, hashlog.Run{Name: "a", Hash: 1}, entries(10, 20, 30))
	require.NoError(t, err)
	_, err = s.Record(ctx, hashlog.Run{Name: "same", Hash: 1}, entries(10, 20, 30))
	require.NoError(t, err)
	_, err = s.Record(ctx, hashlog.Run{Name: "b", Hash: 2}, entries(10, 21, 30, 40))
	require.NoError(t, err)

	d, err := s.Diff(ctx, "a", "same")
	require.NoError(t, err)
	assert.True(t, d.Equal())
	_, ok := d.FirstDivergence()
	assert.False(t, ok)
	assert.Contains(t, d.String(), "agree")

	d, err = s.Diff(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, d.Equal())
	require.Len(t, d.Mismatches, 1)
	assert.Len(t, d.Extra, 1)
	assert.Empty(t, d.Missing)
	first, ok := d.FirstDivergence()
	require.True(t, ok)
	assert.Equal(t, 2, first)
	assert.Contains(t, d.String(), "1 mismatched, 0 missing, 1 extra")
}

func TestStore_ExportImport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src, _ := openStore(t)
	dst, _ := openStore(t)

	recorded, err := src.Record(ctx, hashlog.Run{Name: "r", Type: "T", Hash: 5, Depth: 3}, entries(4, 5))
	require.NoError(t, err)

	var first, second bytes.Buffer
	require.NoError(t, src.Export(ctx, "r", &first))
	require.NoError(t, src.Export(ctx, "r", &second))
	assert.Equal(t, first.Bytes(), second.Bytes())

	imported, err := dst.Import(ctx, bytes.NewReader(first.Bytes()), "remote")
	require.NoError(t, err)
	assert.Equal(t, "remote", imported.Name)
	assert.True(t, imported.CreatedAt.Equal(recorded.CreatedAt))

	es, err := dst.Entries(ctx, "remote")
	require.NoError(t, err)
	assert.Equal(t, entries(4, 5), es)

	_, err = dst.Import(ctx, bytes.NewReader([]byte{0xff}), "")
	require.Error(t, err)

	require.ErrorIs(t, src.Export(ctx, "nope", &first), hashlog.ErrRunNotFound)
}

type reading struct {
	Celsius int64  `xcheck:"check_value(tag = \"C\")"`
	Station string `xcheck:"check_raw(tag = \"LEN\", filter = \"len\")"`
	Note    string
}

func TestRecorder_NumbersObservations(t *testing.T) {
	t.Parallel()

	var rec hashlog.Recorder
	e := xcheck.New(xcheck.WithRegistry(xcheck.NewRegistry()), xcheck.WithObserver(rec.Observe))

	_, err := e.Hash([]reading{{Celsius: 21, Station: "north"}, {Celsius: -3, Station: "s"}}, 4)
	require.NoError(t, err)

	got := rec.Entries()
	require.Len(t, got, 4)
	for i, en := range got {
		assert.Equal(t, i+1, en.Seq)
	}
	assert.Equal(t, "[]hashlog_test.reading[0].Celsius", got[0].Path)
	assert.Equal(t, "check_value", got[0].Kind)
	assert.Equal(t, hashlog.Entry{Seq: 4, Path: "[]hashlog_test.reading[1].Station", Tag: "LEN", Kind: "check_raw", Value: 1}, got[3])

	rec.Reset()
	assert.Empty(t, rec.Entries())
}

func TestRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	var rec hashlog.Recorder
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Observe(xcheck.Observation{Tag: "T", Kind: xcheck.PolicyByRaw})
		}()
	}
	wg.Wait()

	got := rec.Entries()
	require.Len(t, got, 16)
	for i, en := range got {
		assert.Equal(t, i+1, en.Seq)
	}
}
