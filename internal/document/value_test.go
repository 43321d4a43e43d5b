package document

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_PreservesOrderAndNumbers(t *testing.T) {
	input := `{"zeta":1.50,"alpha":{"b":[1,2e3,-0.0],"a":null},"big":12345678901234567890,"ok":true}`

	v, err := Parse([]byte(input), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "big", "ok"}, v.Keys())
	assert.Equal(t, input, v.String())

	lit, ok := v.Get("big").NumberLiteral()
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", lit)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "truncated", input: `{"a":`},
		{name: "trailing data", input: `{} {}`},
		{name: "bare word", input: `services`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), FormatJSON)
			assert.Error(t, err)
		})
	}
}

func TestParseJSON_DuplicateKeyLastWins(t *testing.T) {
	v := MustParseJSON(`{"a":1,"b":2,"a":3}`)
	assert.Equal(t, `{"a":3,"b":2}`, v.String())
}

func TestParseYAML(t *testing.T) {
	input := `
services:
  - serviceGuid: old-1
    serviceType: HypernodeCameraService
    port: 8080
    ratio: 0.5
    enabled: true
    note: ~
`
	v, err := Parse([]byte(input), FormatYAML)
	require.NoError(t, err)

	want := MustParseJSON(`{"services":[{"serviceGuid":"old-1","serviceType":"HypernodeCameraService","port":8080,"ratio":0.5,"enabled":true,"note":null}]}`)
	assert.True(t, want.Equal(v), "got %s", v)
}

func TestParseAuto(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		v, err := Parse([]byte(`{"a":"b"}`), FormatAuto)
		require.NoError(t, err)
		assert.Equal(t, `{"a":"b"}`, v.String())
	})

	t.Run("yaml fallback", func(t *testing.T) {
		v, err := Parse([]byte("a: b\n"), FormatAuto)
		require.NoError(t, err)
		assert.Equal(t, `{"a":"b"}`, v.String())
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Parse([]byte(`{}`), Format("toml"))
		assert.Error(t, err)
	})
}

func TestClone_IsDeep(t *testing.T) {
	orig := MustParseJSON(`{"a":{"b":["x"]}}`)
	cp := orig.Clone()

	cp.Get("a").Get("b").Items()[0] = String("y")
	cp.Get("a").Set("c", Bool(true))

	assert.Equal(t, `{"a":{"b":["x"]}}`, orig.String())
	assert.Equal(t, `{"a":{"b":["y"],"c":true}}`, cp.String())
}

func TestObjectMutation(t *testing.T) {
	obj := NewObject()
	obj.Set("a", String("1"))
	obj.Set("b", String("2"))
	obj.Set("a", String("3"))
	obj.Set("nil", nil)

	assert.Equal(t, `{"a":"3","b":"2","nil":null}`, obj.String())

	obj.Delete("a")
	obj.Delete("missing")
	assert.Equal(t, []string{"b", "nil"}, obj.Keys())
	assert.False(t, obj.Has("a"))
}

func TestNilValueReadsAsNull(t *testing.T) {
	var v *Value
	assert.Equal(t, KindNull, v.Kind())
	assert.Nil(t, v.Get("x"))
	assert.Nil(t, v.Lookup("a", "b"))
	assert.Equal(t, 0, v.Len())
	assert.False(t, v.Truthy())
}

func TestLookup(t *testing.T) {
	v := MustParseJSON(`{"root":{"access_token":"tok"}}`)
	s, ok := v.Lookup("root", "access_token").Str()
	assert.True(t, ok)
	assert.Equal(t, "tok", s)
	assert.Nil(t, v.Lookup("root", "missing"))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "key order ignored", a: `{"a":1,"b":2}`, b: `{"b":2,"a":1}`, want: true},
		{name: "array order matters", a: `[1,2]`, b: `[2,1]`, want: false},
		{name: "kinds differ", a: `"1"`, b: `1`, want: false},
		{name: "missing key", a: `{"a":1}`, b: `{"b":1}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseJSON(tt.a).Equal(MustParseJSON(tt.b)))
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`null`, false},
		{`false`, false},
		{`true`, true},
		{`0`, false},
		{`0.0`, false},
		{`7`, true},
		{`""`, false},
		{`"x"`, true},
		{`[]`, true},
		{`{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseJSON(tt.input).Truthy())
		})
	}
}

func TestEncode_Indent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MustParseJSON(`{"a":["<b>"]}`).Encode(&buf, "  "))
	assert.Equal(t, "{\n  \"a\": [\n    \"<b>\"\n  ]\n}\n", buf.String())
}

func TestUnmarshalJSON(t *testing.T) {
	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte(`{"x":[true]}`)))
	assert.Equal(t, `{"x":[true]}`, v.String())
}

func TestNumber(t *testing.T) {
	_, err := Number("1e3")
	assert.NoError(t, err)

	_, err = Number("0x10")
	assert.Error(t, err)

	_, err = Number(`"1"`)
	assert.Error(t, err)
}
