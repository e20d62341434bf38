package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	doc := `{"b":true,"a":[1,2.5,"x",null],"c":{"nested":"y"},"n":42}`

	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, Object, v.Kind())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2.5,"x",null],"b":true,"c":{"nested":"y"},"n":42}`, string(out))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"open":`))
	assert.Error(t, err)
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{name: "string", value: StringValue("hello"), want: "hello"},
		{name: "integer number", value: NumberValue(42), want: "42"},
		{name: "decimal number", value: NumberValue(1.5), want: "1.5"},
		{name: "bool true", value: BoolValue(true), want: "true"},
		{name: "bool false", value: BoolValue(false), want: "false"},
		{name: "null", value: NullValue(), want: ""},
		{
			name:  "object as compact json",
			value: ObjectValue(map[string]Value{"b": NumberValue(2), "a": StringValue("x")}),
			want:  `{"a":"x","b":2}`,
		},
		{
			name:  "array as compact json",
			value: ArrayValue(StringValue("a"), NumberValue(1)),
			want:  `["a",1]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Text())
		})
	}
}

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{
		"name":  "Ada",
		"count": 3,
		"ratio": 0.25,
		"ok":    true,
		"tags":  []any{"a", "b"},
		"meta":  map[string]string{"k": "v"},
		"none":  nil,
	})

	require.Equal(t, Object, v.Kind())

	name, ok := v.Field("name")
	require.True(t, ok)
	assert.Equal(t, "Ada", name.Str())

	count, ok := v.Field("count")
	require.True(t, ok)
	assert.Equal(t, float64(3), count.Num())

	tags, ok := v.Field("tags")
	require.True(t, ok)
	assert.Equal(t, 2, tags.Len())

	meta, ok := v.Field("meta")
	require.True(t, ok)
	mk, ok := meta.Field("k")
	require.True(t, ok)
	assert.Equal(t, "v", mk.Str())

	none, ok := v.Field("none")
	require.True(t, ok)
	assert.True(t, none.IsNull())
}

func TestValue_Accessors(t *testing.T) {
	arr := ArrayValue(StringValue("first"), StringValue("second"))

	el, ok := arr.Index(1)
	require.True(t, ok)
	assert.Equal(t, "second", el.Str())

	_, ok = arr.Index(2)
	assert.False(t, ok)
	_, ok = arr.Index(-1)
	assert.False(t, ok)

	obj := ObjectValue(map[string]Value{"z": NullValue(), "a": NullValue(), "m": NullValue()})
	assert.Equal(t, []string{"a", "m", "z"}, obj.Keys())

	_, ok = StringValue("x").Field("a")
	assert.False(t, ok)
	assert.Equal(t, 0, StringValue("x").Len())
}
