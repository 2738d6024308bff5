package wjson

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// stringCmp lets go-cmp compare String values without reaching into the
// unexported representation.
var stringCmp = cmp.Comparer(func(a, b String) bool { return a == b })

func TestUnmarshal(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  any
	}{
		{"null", `null`, nil},
		{"true", `true`, true},
		{"false", `false`, false},
		{"integer", `42`, float64(42)},
		{"negative", `-7`, float64(-7)},
		{"zero", `0`, float64(0)},
		{"fraction", `0.25`, 0.25},
		{"exponent", `-0.5e2`, float64(-50)},
		{"big exponent", `1e21`, 1e21},
		{"underflow to zero", `1e-400`, float64(0)},
		{"string", `"hello"`, NewString("hello")},
		{"empty string", `""`, NewString("")},
		{"hex escape", `"` + escUnit(0x0041) + `"`, NewString("A")},
		{"pair escape", `"` + escUnit(0xD83D) + escUnit(0xDE00) + `"`, NewString("😀")},
		{"lonely high", `"\ud800"`, StringFromUTF16([]uint16{0xD800})},
		{"lonely low", `"a\udc00b"`, StringFromUTF16([]uint16{'a', 0xDC00, 'b'})},
		{"empty array", `[]`, []any{}},
		{"array", `[1,"two",null]`, []any{float64(1), NewString("two"), nil}},
		{"empty object", `{}`, map[String]any{}},
		{"object", `{"a":1}`, map[String]any{NewString("a"): float64(1)}},
		{"surrogate key", `{"\udc00":1}`, map[String]any{StringFromUTF16([]uint16{0xDC00}): float64(1)}},
		{"whitespace", " { \"a\" : [ true ,\r\n null ] }\t", map[String]any{NewString("a"): []any{true, nil}}},
		{"nested", `{"a":{"b":[[],{}]}}`, map[String]any{
			NewString("a"): map[String]any{NewString("b"): []any{[]any{}, map[String]any{}}},
		}},
		{"duplicate key last wins", `{"a":1,"a":2}`, map[String]any{NewString("a"): float64(2)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tc.input))
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got, stringCmp); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", ``, "No value found in document"},
		{"blank", " \n\t ", "No value found in document"},
		{"bare word", `hello`, "Unexpected character"},
		{"bad null", `nul`, `Expected "null"`},
		{"bad true", `tru`, `Expected "true"`},
		{"bad false", `fals`, `Expected "false"`},
		{"trailing data", `true x`, "Unexpected trailing data"},
		{"leading plus", `+1`, "Unexpected character"},
		{"lonely minus", `-`, "Invalid number"},
		{"leading zero", `01`, "Unexpected trailing data"},
		{"leading zero in array", `[01]`, `Expected "," or "]"`},
		{"trailing dot", `1.`, "Invalid number"},
		{"bare exponent", `1e`, "Invalid number"},
		{"signed bare exponent", `1e+`, "Invalid number"},
		{"overflow", `1e400`, "Number out of range"},
		{"negative overflow", `-1e309`, "Number out of range"},
		{"unterminated string", `"abc`, "Unterminated string"},
		{"bad escape", `"\x"`, "Bad escaped character"},
		{"truncated escape", `"\`, "Unterminated string"},
		{"bad hex", `"\u12g4"`, "Bad Unicode escape"},
		{"truncated hex", `"\u12`, "Unterminated string"},
		{"raw control", "\"a\nb\"", "Illegal control character in string"},
		{"invalid utf8", "\"\xff\"", "Invalid UTF-8 in string"},
		{"unclosed array", `[1`, `Expected "," or "]"`},
		{"array bad separator", `[1 2]`, `Expected "," or "]"`},
		{"array trailing comma", `[1,]`, "Unexpected character"},
		{"unclosed object", `{"a":1`, `Expected "," or "}"`},
		{"object bare key", `{a:1}`, "Expected object key"},
		{"object missing colon", `{"a" 1}`, `Expected ":" after object key`},
		{"object trailing comma", `{"a":1,}`, "Expected object key"},
		{"lone brace", `{`, "Expected object key"},
		{"lone bracket", `[`, "Unexpected end of input"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tc.input))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr))
			require.Positive(t, syntaxErr.Line)
			require.Positive(t, syntaxErr.Col)
		})
	}
}

func TestUnmarshalFilePosition(t *testing.T) {
	input := "{\n  \"a\": nul\n}"
	_, err := UnmarshalFile([]byte(input), "doc.json")
	require.Error(t, err)
	require.Equal(t, `Expected "null" at 2:8 of <doc.json>`, err.Error())

	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	require.Equal(t, 2, syntaxErr.Line)
	require.Equal(t, 8, syntaxErr.Col)
	require.Equal(t, "doc.json", syntaxErr.File)

	// Without a filename the suffix carries only the position.
	_, err = Unmarshal([]byte(input))
	require.EqualError(t, err, `Expected "null" at 2:8`)
}

func TestMarshal(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, `null`},
		{"true", true, `true`},
		{"false", false, `false`},
		{"integer float", float64(1), `1`},
		{"fraction", 0.5, `0.5`},
		{"negative", float64(-3), `-3`},
		{"big", 1e21, `1e+21`},
		{"small", 1e-7, `1e-7`},
		{"int", 42, `42`},
		{"int64", int64(-9), `-9`},
		{"float32", float32(1.5), `1.5`},
		{"native string", "hi", `"hi"`},
		{"String", NewString(`a"b`), `"a\"b"`},
		{"escapes", "\b\f\n\r\t", `"\b\f\n\r\t"`},
		{"control", "\x01", `"` + escUnit(0x0001) + `"`},
		{"array", []any{float64(1), true, nil}, `[1,true,null]`},
		{"empty array", []any{}, `[]`},
		{"empty object", map[String]any{}, `{}`},
		{"string map", map[string]any{"b": float64(2), "a": float64(1)}, `{"a":1,"b":2}`},
		{"lonely surrogate", StringFromUTF16([]uint16{'a', 0xDC00, 'b'}), `"a\udc00b"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Marshal(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarshalSortsKeysByCodePoint(t *testing.T) {
	obj := make(map[String]any)
	obj[NewString("b")] = float64(2)
	obj[NewString("a")] = float64(1)
	obj[NewString("퟿")] = float64(3)
	obj[StringFromUTF16([]uint16{0xD800})] = float64(4)
	obj[NewString("")] = float64(5)

	got, err := Marshal(obj)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2,"`+"퟿"+`":3,"\ud800":4,"`+""+`":5}`, string(got))
}

func TestMarshalErrors(t *testing.T) {
	cases := []struct {
		name  string
		input any
	}{
		{"NaN", math.NaN()},
		{"positive Inf", math.Inf(1)},
		{"negative Inf", math.Inf(-1)},
		{"struct", struct{}{}},
		{"nested channel", []any{make(chan int)}},
		{"non-finite in object", map[String]any{NewString("x"): math.Inf(1)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Marshal(tc.input)
			require.Error(t, err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	docs := []string{
		`null`,
		`[1,2.5,-3e-2,true,false,null]`,
		`"plain"`,
		`"\ud800"`,
		`"\udfff"`,
		`"a\udc00b😀c"`,
		`{"\ud800":["\udc00",{"k":"𝄞"}],"deep":{"er":[[[]]]}}`,
		`{"鑅":"😀","":null}`,
		`[{"a":1},{"a":2}]`,
	}

	for _, doc := range docs {
		v1, err := Unmarshal([]byte(doc))
		require.NoError(t, err, "doc %s", doc)

		out, err := Marshal(v1)
		require.NoError(t, err, "doc %s", doc)

		v2, err := Unmarshal(out)
		require.NoError(t, err, "doc %s re-encoded as %s", doc, out)

		if diff := cmp.Diff(v1, v2, stringCmp); diff != "" {
			t.Errorf("round trip of %s via %s (-first +second):\n%s", doc, out, diff)
		}
	}
}

func TestMarshalIsStable(t *testing.T) {
	// Once serialized, a document re-encodes to identical bytes.
	doc := `{"\ud800":1,"a":[true,"\udc00"],"z":0.5}`
	v, err := Unmarshal([]byte(doc))
	require.NoError(t, err)
	first, err := Marshal(v)
	require.NoError(t, err)

	v2, err := Unmarshal(first)
	require.NoError(t, err)
	second, err := Marshal(v2)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestNestingDepthGuard(t *testing.T) {
	deep := strings.Repeat("[", maxDepth+1)
	_, err := Unmarshal([]byte(deep))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Exceeded maximum nesting depth")

	ok := strings.Repeat("[", 100) + strings.Repeat("]", 100)
	_, err = Unmarshal([]byte(ok))
	require.NoError(t, err)
}
