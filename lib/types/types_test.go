package types

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		kind uint16
		want PersistenceClass
	}{
		{0, Replaceable},
		{1, Regular},
		{2, Regular},
		{3, Replaceable},
		{4, Regular},
		{9999, Regular},
		{10000, Replaceable},
		{19999, Replaceable},
		{20000, Ephemeral},
		{29999, Ephemeral},
		{30000, ParameterizedReplaceable},
		{39999, ParameterizedReplaceable},
		{40000, Regular},
		{65535, Regular},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.kind), "kind %d", tt.kind)
	}
}

func TestEffectiveDTag(t *testing.T) {
	assert.Equal(t, "", EffectiveDTag(nil))
	assert.Equal(t, "", EffectiveDTag(Tags{{"e", "x"}}))
	assert.Equal(t, "", EffectiveDTag(Tags{{"d"}}))
	assert.Equal(t, "", EffectiveDTag(Tags{{"d", ""}}))
	assert.Equal(t, "slug", EffectiveDTag(Tags{{"e", "x"}, {"d", "slug"}, {"d", "other"}}))
}

func TestEventDecodingNormalisesNullTags(t *testing.T) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	var event Event
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","pubkey":"b","created_at":1,"kind":1,"tags":null,"content":"","sig":"c"}`), &event))
	assert.NotNil(t, event.Tags)

	data, err := json.Marshal(Event{ID: "a"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tags":[]`)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":-1}`), &event))
}

func TestFilterDecoding(t *testing.T) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"ids":[],"kinds":[1,7],"since":10,"limit":0,"#e":["x","y"],"search":"ignored"}`), &f))
	assert.NotNil(t, f.IDs)
	assert.Empty(t, f.IDs)
	assert.Nil(t, f.Authors)
	assert.Equal(t, []uint16{1, 7}, f.Kinds)
	require.NotNil(t, f.Since)
	assert.Equal(t, int64(10), *f.Since)
	require.NotNil(t, f.Limit)
	assert.Equal(t, 0, *f.Limit)
	assert.Equal(t, map[string][]string{"e": {"x", "y"}}, f.Tags)
	assert.False(t, f.IsEmpty())

	var empty Filter
	require.NoError(t, json.Unmarshal([]byte(`{"limit":5}`), &empty))
	assert.True(t, empty.IsEmpty())

	for _, bad := range []string{`{"#ee":["x"]}`, `{"#":["x"]}`, `{"limit":-1}`, `{"kinds":["1"]}`, `[]`} {
		var f Filter
		assert.Error(t, json.Unmarshal([]byte(bad), &f), bad)
	}
}

func TestFilterEncodingRoundTrip(t *testing.T) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	since := int64(5)
	limit := 10
	f := Filter{Authors: []string{"a"}, Since: &since, Limit: &limit, Tags: map[string][]string{"p": {"b"}}}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded Filter
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, f, decoded)
}

func TestFilterMatches(t *testing.T) {
	event := &Event{
		ID:        "id1",
		PubKey:    "alice",
		CreatedAt: 100,
		Kind:      1,
		Tags:      Tags{{"e", "root"}, {"t", "go"}, {"x"}},
	}

	since := func(v int64) *int64 { return &v }

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"id", Filter{IDs: []string{"other", "id1"}}, true},
		{"empty ids", Filter{IDs: []string{}}, false},
		{"author", Filter{Authors: []string{"bob"}}, false},
		{"kind", Filter{Kinds: []uint16{1, 2}}, true},
		{"wrong kind", Filter{Kinds: []uint16{7}}, false},
		{"since exclusive", Filter{Since: since(100)}, false},
		{"since", Filter{Since: since(99)}, true},
		{"until exclusive", Filter{Until: since(100)}, false},
		{"until", Filter{Until: since(101)}, true},
		{"tag any value", Filter{Tags: map[string][]string{"t": {"rust", "go"}}}, true},
		{"tags and", Filter{Tags: map[string][]string{"t": {"go"}, "e": {"other"}}}, false},
		{"valueless tag", Filter{Tags: map[string][]string{"x": {""}}}, false},
		{"all predicates", Filter{Authors: []string{"alice"}, Kinds: []uint16{1}, Tags: map[string][]string{"e": {"root"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}

	assert.False(t, Filters{}.Match(event))
	assert.True(t, Filters{{Kinds: []uint16{7}}, {}}.Match(event))
}

func TestEnvelopeEncoding(t *testing.T) {
	frame, err := EncodeEventFrame("sub", []byte(`{"id":"a"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `["EVENT","sub",{"id":"a"}]`, string(frame))

	frame, err = EncodeOK("a", false, "duplicate: event already received")
	require.NoError(t, err)
	assert.JSONEq(t, `["OK","a",false,"duplicate: event already received"]`, string(frame))

	frame, err = EncodeEOSE("sub")
	require.NoError(t, err)
	assert.JSONEq(t, `["EOSE","sub"]`, string(frame))

	frame, err = EncodeNotice("hi")
	require.NoError(t, err)
	assert.JSONEq(t, `["NOTICE","hi"]`, string(frame))
}
