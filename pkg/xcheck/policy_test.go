package xcheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want FieldPolicy
	}{
		{name: "absent", text: "", want: FieldPolicy{Kind: PolicyDefault}},
		{name: "unrelated_key", text: `tag = "X"`, want: FieldPolicy{Kind: PolicyDefault}},
		{name: "no", text: "no", want: FieldPolicy{Kind: PolicySkip}},
		{name: "never", text: "never", want: FieldPolicy{Kind: PolicySkip}},
		{name: "disable", text: "disable", want: FieldPolicy{Kind: PolicySkip}},
		{
			name: "skip_beats_check_value",
			text: `check_value(tag = "X"), no`,
			want: FieldPolicy{Kind: PolicySkip},
		},
		{
			name: "check_value_default_tag",
			text: "check_value()",
			want: FieldPolicy{Kind: PolicyByValue, Tag: UnknownTag, Filter: FilterIdentity},
		},
		{
			name: "check_value_beats_check_raw",
			text: `check_raw(tag = "RAW"), check_value(tag = "VAL")`,
			want: FieldPolicy{Kind: PolicyByValue, Tag: "VAL", Filter: FilterIdentity},
		},
		{
			name: "check_raw_default_filter",
			text: `check_raw(tag = "RAW")`,
			want: FieldPolicy{Kind: PolicyByRaw, Tag: "RAW", Filter: FilterAsIs},
		},
		{
			name: "check_raw_beats_custom_hash",
			text: `custom_hash = "fn", check_raw(filter = "len")`,
			want: FieldPolicy{Kind: PolicyByRaw, Tag: UnknownTag, Filter: "len"},
		},
		{
			name: "custom_hash",
			text: `custom_hash = "fn"`,
			want: FieldPolicy{Kind: PolicyCustom, Function: "fn"},
		},
		{
			// Shape errors in keys that lose the precedence race are never
			// looked at.
			name: "skip_hides_malformed_check_value",
			text: "disable, check_value",
			want: FieldPolicy{Kind: PolicySkip},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(innerT *testing.T) {
			innerT.Parallel()

			args, err := ParseAnnotation(tc.text)
			require.NoError(innerT, err)
			got, err := ResolveField(args)
			require.NoError(innerT, err)
			require.Equal(innerT, tc.want, got)
		})
	}
}

func TestResolveField_NilArgs(t *testing.T) {
	t.Parallel()

	got, err := ResolveField(nil)
	require.NoError(t, err)
	require.Equal(t, PolicyDefault, got.Kind)
}

func TestResolveField_ShapeErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		key  string
		want string
	}{
		{name: "check_value_flag", text: "check_value", key: KeyCheckValue, want: "list"},
		{name: "check_value_string", text: `check_value = "x"`, key: KeyCheckValue, want: "list"},
		{name: "check_raw_flag", text: "check_raw", key: KeyCheckRaw, want: "list"},
		{name: "custom_hash_flag", text: "custom_hash", key: KeyCustomHash, want: "string"},
		{name: "custom_hash_list", text: "custom_hash(fn)", key: KeyCustomHash, want: "string"},
		{name: "tag_flag", text: "check_value(tag)", key: KeyTag, want: "string"},
		{name: "filter_list", text: "check_raw(filter(x))", key: KeyFilter, want: "string"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(innerT *testing.T) {
			innerT.Parallel()

			args, err := ParseAnnotation(tc.text)
			require.NoError(innerT, err)
			_, err = ResolveField(args)

			var shape *ConfigShapeError
			require.ErrorAs(innerT, err, &shape)
			require.Equal(innerT, tc.key, shape.Key)
			require.Equal(innerT, tc.want, shape.Want)
			require.ErrorIs(innerT, err, ErrConfig)
		})
	}
}

func TestResolveAggregate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want AggregatePolicy
	}{
		{
			name: "defaults",
			text: "",
			want: AggregatePolicy{AHasher: DefaultAHasher, SHasher: DefaultSHasher, Hasher: DefaultAHasher},
		},
		{
			name: "hasher_follows_ahasher_override",
			text: `ahasher_override = "blake3"`,
			want: AggregatePolicy{AHasher: "blake3", SHasher: DefaultSHasher, Hasher: "blake3"},
		},
		{
			name: "explicit_hasher",
			text: `ahasher_override = "blake3", shasher_override = "fnv1a", hasher = "xxh3"`,
			want: AggregatePolicy{AHasher: "blake3", SHasher: "fnv1a", Hasher: "xxh3"},
		},
		{
			name: "custom_hash",
			text: `custom_hash = "hashWhole"`,
			want: AggregatePolicy{AHasher: DefaultAHasher, SHasher: DefaultSHasher, Hasher: DefaultAHasher, CustomHash: "hashWhole"},
		},
		{
			name: "field_keys_ignored",
			text: "no, check_value()",
			want: AggregatePolicy{AHasher: DefaultAHasher, SHasher: DefaultSHasher, Hasher: DefaultAHasher},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(innerT *testing.T) {
			innerT.Parallel()

			args, err := ParseAnnotation(tc.text)
			require.NoError(innerT, err)
			got, err := ResolveAggregate(args)
			require.NoError(innerT, err)
			require.Equal(innerT, tc.want, got)
		})
	}
}

func TestResolveAggregate_ShapeErrors(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"ahasher_override", "shasher_override(x)", "hasher", "custom_hash"} {
		args, err := ParseAnnotation(text)
		require.NoError(t, err)
		_, err = ResolveAggregate(args)
		require.ErrorIs(t, err, ErrConfig, text)
	}
}

func TestDirectItemConfig(t *testing.T) {
	t.Parallel()

	tag, filter, err := DirectItemConfig(ArgMap{}, "*")
	require.NoError(t, err)
	require.Equal(t, UnknownTag, tag)
	require.Equal(t, "*", filter)

	tag, filter, err = DirectItemConfig(ArgMap{"tag": Str("T"), "filter": Str("len")}, "")
	require.NoError(t, err)
	require.Equal(t, "T", tag)
	require.Equal(t, "len", filter)
}
