package xcheck

import "fmt"

// Annotation keys recognized by the resolver.
const (
	KeyNo             = "no"
	KeyNever          = "never"
	KeyDisable        = "disable"
	KeyCheckValue     = "check_value"
	KeyCheckRaw       = "check_raw"
	KeyCustomHash     = "custom_hash"
	KeyTag            = "tag"
	KeyFilter         = "filter"
	KeyAHasher        = "ahasher_override"
	KeySHasher        = "shasher_override"
	KeyHasher         = "hasher"
	DefaultAHasher    = "__XCHA"
	DefaultSHasher    = "__XCHS"
	UnknownTag        = "UNKNOWN_TAG"
	FilterIdentity    = ""
	FilterAsIs        = "*"
	annotationTagName = "xcheck"
)

// PolicyKind selects how a single field contributes to its aggregate hash.
type PolicyKind int

const (
	PolicyDefault PolicyKind = iota
	PolicySkip
	PolicyByValue
	PolicyByRaw
	PolicyCustom
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyDefault:
		return "default"
	case PolicySkip:
		return "skip"
	case PolicyByValue:
		return "check_value"
	case PolicyByRaw:
		return "check_raw"
	case PolicyCustom:
		return "custom_hash"
	default:
		return fmt.Sprintf("PolicyKind(%d)", int(k))
	}
}

// FieldPolicy is the resolved decision for one field. Tag and Filter are only
// set for PolicyByValue and PolicyByRaw, Function only for PolicyCustom.
type FieldPolicy struct {
	Kind     PolicyKind
	Tag      string
	Filter   string
	Function string
}

// AggregatePolicy is the resolved decision for a whole struct type.
type AggregatePolicy struct {
	AHasher    string
	SHasher    string
	Hasher     string
	CustomHash string
}

// DirectItemConfig extracts the tag and filter of a check_value or check_raw
// list. A missing tag resolves to UnknownTag and a missing filter to
// defaultFilter.
func DirectItemConfig(args ArgMap, defaultFilter string) (tag, filter string, err error) {
	tag, err = args.StrOr(KeyTag, UnknownTag)
	if err != nil {
		return "", "", err
	}
	filter, err = args.StrOr(KeyFilter, defaultFilter)
	if err != nil {
		return "", "", err
	}
	return tag, filter, nil
}

// ResolveField turns a field's arguments into its policy. Keys are checked in
// a fixed order and the first present one wins:
//
//	no | never | disable  -> skip
//	check_value(...)      -> by value
//	check_raw(...)        -> by raw bits
//	custom_hash = "fn"    -> custom function
//
// Anything else, including a nil map, is the default structural policy.
func ResolveField(args ArgMap) (FieldPolicy, error) {
	if args.Has(KeyNo) || args.Has(KeyNever) || args.Has(KeyDisable) {
		return FieldPolicy{Kind: PolicySkip}, nil
	}
	if a, ok := args.Get(KeyCheckValue); ok {
		sub, err := a.List()
		if err != nil {
			return FieldPolicy{}, err
		}
		tag, filter, err := DirectItemConfig(sub, FilterIdentity)
		if err != nil {
			return FieldPolicy{}, err
		}
		return FieldPolicy{Kind: PolicyByValue, Tag: tag, Filter: filter}, nil
	}
	if a, ok := args.Get(KeyCheckRaw); ok {
		sub, err := a.List()
		if err != nil {
			return FieldPolicy{}, err
		}
		tag, filter, err := DirectItemConfig(sub, FilterAsIs)
		if err != nil {
			return FieldPolicy{}, err
		}
		return FieldPolicy{Kind: PolicyByRaw, Tag: tag, Filter: filter}, nil
	}
	if a, ok := args.Get(KeyCustomHash); ok {
		fn, err := a.Str()
		if err != nil {
			return FieldPolicy{}, err
		}
		return FieldPolicy{Kind: PolicyCustom, Function: fn}, nil
	}
	return FieldPolicy{Kind: PolicyDefault}, nil
}

// ResolveAggregate reads the type-level arguments. The hasher used for the
// field accumulator falls back to the A-channel override.
func ResolveAggregate(args ArgMap) (AggregatePolicy, error) {
	var (
		p   AggregatePolicy
		err error
	)
	if p.AHasher, err = args.StrOr(KeyAHasher, DefaultAHasher); err != nil {
		return AggregatePolicy{}, err
	}
	if p.SHasher, err = args.StrOr(KeySHasher, DefaultSHasher); err != nil {
		return AggregatePolicy{}, err
	}
	if p.CustomHash, err = args.StrOr(KeyCustomHash, ""); err != nil {
		return AggregatePolicy{}, err
	}
	if p.Hasher, err = args.StrOr(KeyHasher, p.AHasher); err != nil {
		return AggregatePolicy{}, err
	}
	return p, nil
}
