package hashlog

import (
	"context"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// document is the exported form of one run.
type document struct {
	Run     Run     `cbor:"run"`
	Entries []Entry `cbor:"entries"`
}

var exportMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Export writes the named run and its entries to w as canonical CBOR. The
// same run always exports to the same bytes.
func (s *Store) Export(ctx context.Context, name string, w io.Writer) error {
	run, err := s.Run(ctx, name)
	if err != nil {
		return err
	}
	entries, err := s.Entries(ctx, name)
	if err != nil {
		return err
	}
	b, err := exportMode.Marshal(document{Run: run, Entries: entries})
	if err != nil {
		return fmt.Errorf("export run %q: %w", name, err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("export run %q: %w", name, err)
	}
	return nil
}

// Import records a run read from an Export document. A non-empty rename
// replaces the run's name, which lets a run exported elsewhere sit next to a
// local run of the same name.
func (s *Store) Import(ctx context.Context, r io.Reader, rename string) (Run, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Run{}, fmt.Errorf("import run: %w", err)
	}
	var doc document
	if err := cbor.Unmarshal(b, &doc); err != nil {
		return Run{}, fmt.Errorf("import run: %w", err)
	}
	if rename != "" {
		doc.Run.Name = rename
	}
	for i, e := range doc.Entries {
		if e.Seq != i+1 {
			return Run{}, fmt.Errorf("import run %q: entry %d has sequence number %d", doc.Run.Name, i+1, e.Seq)
		}
	}
	return s.Record(ctx, doc.Run, doc.Entries)
}
