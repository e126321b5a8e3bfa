package hashlog

import (
	"context"
	"fmt"
)

// Mismatch is a sequence number both runs reached with different entries.
type Mismatch struct {
	Seq   int
	Left  Entry
	Right Entry
}

// Diff compares two runs entry by entry, aligned on sequence numbers.
// Missing holds entries only the left run has; Extra holds entries only the
// right run has.
type Diff struct {
	Left       Run
	Right      Run
	Mismatches []Mismatch
	Missing    []Entry
	Extra      []Entry
}

// Equal reports whether the runs agree on the top-level hash and on every
// entry.
func (d Diff) Equal() bool {
	return d.Left.Hash == d.Right.Hash &&
		len(d.Mismatches) == 0 && len(d.Missing) == 0 && len(d.Extra) == 0
}

// FirstDivergence returns the lowest sequence number at which the runs
// disagree.
func (d Diff) FirstDivergence() (int, bool) {
	first := 0
	consider := func(seq int) {
		if first == 0 || seq < first {
			first = seq
		}
	}
	for _, m := range d.Mismatches {
		consider(m.Seq)
	}
	for _, e := range d.Missing {
		consider(e.Seq)
	}
	for _, e := range d.Extra {
		consider(e.Seq)
	}
	return first, first != 0
}

// CompareEntries aligns two entry lists on sequence number. Both lists must
// be sorted by Seq.
func CompareEntries(left, right []Entry) (mismatches []Mismatch, missing, extra []Entry) {
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		l, r := left[i], right[j]
		switch {
		case l.Seq < r.Seq:
			missing = append(missing, l)
			i++
		case l.Seq > r.Seq:
			extra = append(extra, r)
			j++
		default:
			if l != r {
				mismatches = append(mismatches, Mismatch{Seq: l.Seq, Left: l, Right: r})
			}
			i++
			j++
		}
	}
	missing = append(missing, left[i:]...)
	extra = append(extra, right[j:]...)
	return mismatches, missing, extra
}

// Diff loads and compares two runs.
func (s *Store) Diff(ctx context.Context, left, right string) (Diff, error) {
	var d Diff
	var err error
	if d.Left, err = s.Run(ctx, left); err != nil {
		return Diff{}, err
	}
	if d.Right, err = s.Run(ctx, right); err != nil {
		return Diff{}, err
	}
	le, err := s.Entries(ctx, left)
	if err != nil {
		return Diff{}, err
	}
	re, err := s.Entries(ctx, right)
	if err != nil {
		return Diff{}, err
	}
	d.Mismatches, d.Missing, d.Extra = CompareEntries(le, re)
	s.lg.Debug("diffed runs", "left", left, "right", right,
		"mismatches", len(d.Mismatches), "missing", len(d.Missing), "extra", len(d.Extra))
	return d, nil
}

// String renders a one-line summary.
func (d Diff) String() string {
	if d.Equal() {
		return fmt.Sprintf("%s and %s agree (%016x)", d.Left.Name, d.Right.Name, d.Left.Hash)
	}
	return fmt.Sprintf("%s (%016x) and %s (%016x) differ: %d mismatched, %d missing, %d extra",
		d.Left.Name, d.Left.Hash, d.Right.Name, d.Right.Hash,
		len(d.Mismatches), len(d.Missing), len(d.Extra))
}
