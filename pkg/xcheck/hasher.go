package xcheck

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"
)

// Hasher is a running hash accumulator. Accumulators are order sensitive and
// never shared between hash computations.
type Hasher interface {
	WriteU64(v uint64)
	Write(p []byte) (int, error)
	Sum64() uint64
}

// HasherKind is a named accumulator constructor. Two kinds are threaded
// through every structural hash: the A channel for aggregates and the S
// channel for scalars.
type HasherKind struct {
	Name string
	New  func() Hasher
}

// Built-in accumulator kinds.
var (
	XXH3    = HasherKind{Name: "xxh3", New: func() Hasher { return &hash64Hasher{h: xxh3.New()} }}
	FNV1a   = HasherKind{Name: "fnv1a", New: func() Hasher { return &hash64Hasher{h: fnv.New64a()} }}
	Blake2b = HasherKind{Name: "blake2b", New: newBlake2b}
	Blake3  = HasherKind{Name: "blake3", New: func() Hasher { return &truncHasher{h: blake3.New(8, nil)} }}
)

// hash64Hasher adapts a hash.Hash64. Integers are appended little-endian.
type hash64Hasher struct {
	h   hash.Hash64
	buf [8]byte
}

func (a *hash64Hasher) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(a.buf[:], v)
	_, _ = a.h.Write(a.buf[:])
}

func (a *hash64Hasher) Write(p []byte) (int, error) { return a.h.Write(p) }
func (a *hash64Hasher) Sum64() uint64               { return a.h.Sum64() }

// truncHasher adapts a hash.Hash with at least 8 bytes of output by taking the
// first 8 bytes of the digest.
type truncHasher struct {
	h   hash.Hash
	buf [8]byte
}

func newBlake2b() Hasher {
	// blake2b.New only fails for a bad size or an oversized key.
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(err)
	}
	return &truncHasher{h: h}
}

func (a *truncHasher) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(a.buf[:], v)
	_, _ = a.h.Write(a.buf[:])
}

func (a *truncHasher) Write(p []byte) (int, error) { return a.h.Write(p) }

func (a *truncHasher) Sum64() uint64 {
	return binary.LittleEndian.Uint64(a.h.Sum(nil)[:8])
}

var (
	_ Hasher = (*hash64Hasher)(nil)
	_ Hasher = (*truncHasher)(nil)
)
