// Package xcheck computes deterministic cross-check hashes of Go values so two
// independently produced implementations of the same data can be compared by
// hash equality.
//
// Hashing is configured with `xcheck` struct tags. The type-level annotation
// lives on a blank field:
//
//	type Packet struct {
//		_       struct{} `xcheck:"ahasher_override = \"blake3\""`
//		Seq     uint32   `xcheck:"check_value(tag = \"SEQ\")"`
//		Payload []byte   `xcheck:"check_value(filter = \"len\")"`
//		Cache   *Cache   `xcheck:"no"`
//		Owner   *Owner   `xcheck:"check_raw()"`
//		Extra   Extra    `xcheck:"custom_hash = \"hashExtra\""`
//		Next    *Packet
//	}
//
// Field keys are checked in a fixed order and the first present one wins:
// no/never/disable, check_value(...), check_raw(...), custom_hash. Fields with
// none of them are hashed structurally at depth-1. Type-level keys are
// ahasher_override, shasher_override, hasher and custom_hash; a type-level
// custom_hash replaces field hashing entirely.
//
// Names used in annotations are bound against a Registry when a type is first
// compiled, and any configuration problem is reported then as an error
// wrapping ErrConfig.
package xcheck
