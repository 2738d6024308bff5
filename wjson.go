// Package wjson implements encoding and decoding of JSON documents without
// assuming their strings are well-formed Unicode.
//
// JSON producers, notably JavaScript engines, can legally emit string
// literals that escape lonely UTF-16 surrogate halves, such as "\ud800".
// Such text has no well-formed Unicode representation, so conventional
// libraries either reject it or silently substitute replacement characters.
// Package wjson parses any syntactically valid JSON text, carries lonely
// surrogates through the String type without loss, and serializes them back
// to identical escape sequences. For documents containing only well-formed
// strings, decoding and encoding behave like any ordinary JSON library.
//
// # Fidelity
//
// Nothing in the decode/encode round trip loses data. Conversions that can
// lose information, such as String.StdString, are explicit operations that
// fail or substitute only when the caller asks them to.
package wjson

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ============================================================================
// Public API
// ============================================================================

// Unmarshal parses JSON-encoded data and returns the result.
//
// The mapping between JSON and Go values is:
//   - null -> nil
//   - boolean -> bool
//   - number -> float64
//   - string -> String
//   - array -> []any
//   - object -> map[String]any
//
// Grammar errors are reported as *SyntaxError with a position. Duplicate
// object keys are permitted; the last occurrence wins.
func Unmarshal(data []byte) (any, error) {
	return unmarshal(data, "")
}

// UnmarshalFile parses JSON-encoded data with a filename for error messages.
func UnmarshalFile(data []byte, filename string) (any, error) {
	return unmarshal(data, filename)
}

// Marshal returns the minimal JSON encoding of v.
//
// It accepts the Unmarshal value family plus a few conveniences: string
// (converted via NewString), map[string]any, int, int64, and float32.
// Object keys are written in code point order (String.Compare). Non-finite
// numbers and unsupported types are errors.
func Marshal(v any) ([]byte, error) {
	return appendValue(nil, v)
}

// ============================================================================
// Error Reporting
// ============================================================================

// parseContext carries the filename for error reporting through the parse.
type parseContext struct {
	filename string
}

// SyntaxError reports malformed JSON grammar. It is always fatal to the
// current parse; there is no recovery and no partial result.
type SyntaxError struct {
	Msg  string
	Line int    // 1-based
	Col  int    // 1-based byte column
	File string // filename given to UnmarshalFile, or empty
}

func (e *SyntaxError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s at %d:%d", e.Msg, e.Line, e.Col)
	}
	return fmt.Sprintf("%s at %d:%d of <%s>", e.Msg, e.Line, e.Col, e.File)
}

// ============================================================================
// Reader
// ============================================================================
//
// A single forward pass over the input buffer. The reader tracks line and
// column only so that errors carry a human-readable position; parsing itself
// never backtracks past a byte it has consumed.

// maxDepth bounds array/object nesting so that adversarial input cannot
// exhaust the stack.
const maxDepth = 10000

type reader struct {
	ctx   *parseContext
	data  []byte
	pos   int
	line  int // zero-based, rendered 1-based in errors
	col   int
	depth int
}

func (r *reader) peek() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	return r.data[r.pos], true
}

func (r *reader) next() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	b := r.data[r.pos]
	r.pos++
	if b == '\n' {
		r.line++
		r.col = 0
	} else {
		r.col++
	}
	return b, true
}

// advance skips n bytes already inspected via the underlying buffer. The
// caller guarantees none of them is a newline.
func (r *reader) advance(n int) {
	r.pos += n
	r.col += n
}

func (r *reader) skipWhitespace() {
	for {
		b, ok := r.peek()
		if !ok || (b != ' ' && b != '\t' && b != '\n' && b != '\r') {
			return
		}
		r.next()
	}
}

func (r *reader) push() error {
	r.depth++
	if r.depth > maxDepth {
		return r.errHere("Exceeded maximum nesting depth")
	}
	return nil
}

func (r *reader) pop() {
	r.depth--
}

func (r *reader) errAt(line, col int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Msg:  fmt.Sprintf(format, args...),
		Line: line + 1,
		Col:  col + 1,
		File: r.ctx.filename,
	}
}

func (r *reader) errHere(format string, args ...any) *SyntaxError {
	return r.errAt(r.line, r.col, format, args...)
}

// ============================================================================
// Value Parsing
// ============================================================================
//
// Standard recursive descent over the RFC 8259 value grammar. Strings are
// the only place surrogate fidelity matters; see readString in string.go.

func unmarshal(data []byte, filename string) (any, error) {
	r := &reader{data: data, ctx: &parseContext{filename: filename}}

	r.skipWhitespace()
	if _, ok := r.peek(); !ok {
		return nil, r.errHere("No value found in document")
	}

	v, err := readValue(r)
	if err != nil {
		return nil, err
	}

	r.skipWhitespace()
	if _, ok := r.peek(); ok {
		return nil, r.errHere("Unexpected trailing data")
	}
	return v, nil
}

func readValue(r *reader) (any, error) {
	r.skipWhitespace()

	b, ok := r.peek()
	if !ok {
		return nil, r.errHere("Unexpected end of input")
	}

	switch {
	case b == 'n':
		return readLiteral(r, "null", nil)
	case b == 't':
		return readLiteral(r, "true", true)
	case b == 'f':
		return readLiteral(r, "false", false)
	case b == '-' || (b >= '0' && b <= '9'):
		f, err := readNumber(r)
		if err != nil {
			return nil, err
		}
		return f, nil
	case b == '"':
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return s, nil
	case b == '[':
		arr, err := readArray(r)
		if err != nil {
			return nil, err
		}
		return arr, nil
	case b == '{':
		obj, err := readObject(r)
		if err != nil {
			return nil, err
		}
		return obj, nil
	}
	return nil, r.errHere("Unexpected character %q", b)
}

// readLiteral matches one of the keywords null, true, or false exactly.
func readLiteral(r *reader, lit string, v any) (any, error) {
	line, col := r.line, r.col
	for i := 0; i < len(lit); i++ {
		b, ok := r.next()
		if !ok || b != lit[i] {
			return nil, r.errAt(line, col, "Expected %q", lit)
		}
	}
	return v, nil
}

// ============================================================================
// Number Parsing
// ============================================================================

// readNumber parses a number with the strict RFC 8259 grammar: no leading
// zeros, no leading plus, a fraction or exponent must carry digits. Values
// that overflow float64 to infinity are an error; JSON cannot represent
// them, so accepting one would break the round trip.
func readNumber(r *reader) (float64, error) {
	start := r.pos
	line, col := r.line, r.col

	if b, ok := r.peek(); ok && b == '-' {
		r.next()
	}

	b, ok := r.peek()
	switch {
	case !ok:
		return 0, r.errHere("Invalid number")
	case b == '0':
		r.next()
	case b >= '1' && b <= '9':
		r.next()
		skipDigits(r)
	default:
		return 0, r.errHere("Invalid number")
	}

	if b, ok := r.peek(); ok && b == '.' {
		r.next()
		if !skipDigits(r) {
			return 0, r.errHere("Invalid number")
		}
	}

	if b, ok := r.peek(); ok && (b == 'e' || b == 'E') {
		r.next()
		if b, ok := r.peek(); ok && (b == '+' || b == '-') {
			r.next()
		}
		if !skipDigits(r) {
			return 0, r.errHere("Invalid number")
		}
	}

	f, err := strconv.ParseFloat(string(r.data[start:r.pos]), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, r.errAt(line, col, "Invalid number")
	}
	if math.IsInf(f, 0) {
		return 0, r.errAt(line, col, "Number out of range")
	}
	return f, nil
}

func skipDigits(r *reader) bool {
	found := false
	for {
		b, ok := r.peek()
		if !ok || b < '0' || b > '9' {
			return found
		}
		r.next()
		found = true
	}
}

// ============================================================================
// Array and Object Parsing
// ============================================================================

func readArray(r *reader) ([]any, error) {
	if err := r.push(); err != nil {
		return nil, err
	}
	r.next() // consume '['

	arr := []any{}
	r.skipWhitespace()
	if b, ok := r.peek(); ok && b == ']' {
		r.next()
		r.pop()
		return arr, nil
	}

	for {
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)

		r.skipWhitespace()
		b, ok := r.peek()
		if !ok {
			return nil, r.errHere(`Expected "," or "]"`)
		}
		switch b {
		case ',':
			r.next()
		case ']':
			r.next()
			r.pop()
			return arr, nil
		default:
			return nil, r.errHere(`Expected "," or "]"`)
		}
	}
}

func readObject(r *reader) (map[String]any, error) {
	if err := r.push(); err != nil {
		return nil, err
	}
	r.next() // consume '{'

	obj := map[String]any{}
	r.skipWhitespace()
	if b, ok := r.peek(); ok && b == '}' {
		r.next()
		r.pop()
		return obj, nil
	}

	for {
		r.skipWhitespace()
		if b, ok := r.peek(); !ok || b != '"' {
			return nil, r.errHere("Expected object key")
		}
		key, err := readString(r)
		if err != nil {
			return nil, err
		}

		r.skipWhitespace()
		if b, ok := r.peek(); !ok || b != ':' {
			return nil, r.errHere(`Expected ":" after object key`)
		}
		r.next()

		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		obj[key] = v // duplicate keys: last occurrence wins

		r.skipWhitespace()
		b, ok := r.peek()
		if !ok {
			return nil, r.errHere(`Expected "," or "}"`)
		}
		switch b {
		case ',':
			r.next()
		case '}':
			r.next()
			r.pop()
			return obj, nil
		default:
			return nil, r.errHere(`Expected "," or "}"`)
		}
	}
}

// ============================================================================
// Serialization
// ============================================================================

func appendValue(dst []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case bool:
		if v {
			return append(dst, "true"...), nil
		}
		return append(dst, "false"...), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("Cannot marshal non-finite number %v", v)
		}
		return appendFloat(dst, v), nil
	case float32:
		return appendValue(dst, float64(v))
	case int:
		return strconv.AppendInt(dst, int64(v), 10), nil
	case int64:
		return strconv.AppendInt(dst, v, 10), nil
	case String:
		return appendQuoted(dst, v), nil
	case string:
		return appendQuoted(dst, NewString(v)), nil
	case []any:
		return appendArray(dst, v)
	case map[String]any:
		return appendObject(dst, v)
	case map[string]any:
		m := make(map[String]any, len(v))
		for k, val := range v {
			m[NewString(k)] = val
		}
		return appendObject(dst, m)
	}
	return nil, fmt.Errorf("Cannot marshal value of type %T", v)
}

func appendArray(dst []byte, arr []any) ([]byte, error) {
	dst = append(dst, '[')
	for i, v := range arr {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		dst, err = appendValue(dst, v)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

// appendObject writes keys in code point order so that output is
// deterministic; see String.Compare for where lonely surrogates land.
func appendObject(dst []byte, obj map[String]any) ([]byte, error) {
	keys := make([]String, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Compare(keys[j]) < 0
	})

	dst = append(dst, '{')
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendQuoted(dst, k)
		dst = append(dst, ':')
		var err error
		dst, err = appendValue(dst, obj[k])
		if err != nil {
			return nil, err
		}
	}
	return append(dst, '}'), nil
}

// appendFloat writes the shortest representation that parses back to the
// same float64, switching to exponent form outside [1e-6, 1e21) the way
// encoding/json does.
func appendFloat(dst []byte, f float64) []byte {
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	dst = strconv.AppendFloat(dst, f, format, -1, 64)
	if format == 'e' {
		// strconv pads single-digit negative exponents: e-09 -> e-9.
		n := len(dst)
		if n >= 4 && dst[n-4] == 'e' && dst[n-3] == '-' && dst[n-2] == '0' {
			dst[n-2] = dst[n-1]
			dst = dst[:n-1]
		}
	}
	return dst
}
