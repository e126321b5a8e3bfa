package xcheck

// Observation is one tagged contribution made by a check_value or check_raw
// field. Value is the structural hash for check_value and the raw 64-bit
// pattern for check_raw.
type Observation struct {
	Path  string
	Tag   string
	Kind  PolicyKind
	Value uint64
}

// Observer receives observations in hashing order. It is called
// synchronously from the goroutine computing the hash.
type Observer func(Observation)
