package wjson

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ============================================================================
// Surrogate Classification
// ============================================================================
//
// A JSON string literal is a sequence of 16-bit code units, and a producer
// (notably a JavaScript engine) can legally escape a surrogate half that has
// no partner. These primitives classify 16-bit values and convert between a
// surrogate pair and the supplementary-plane scalar it denotes.

const (
	// 0xd800-0xdc00 encodes the high 10 bits of a pair.
	// 0xdc00-0xe000 encodes the low 10 bits of a pair.
	// The scalar is those 20 bits plus 0x10000.
	surr1 = 0xd800
	surr2 = 0xdc00
	surr3 = 0xe000

	surrSelf = 0x10000

	replacementChar = '�' // U+FFFD
)

func isHighSurrogate(r rune) bool {
	return surr1 <= r && r < surr2
}

func isLowSurrogate(r rune) bool {
	return surr2 <= r && r < surr3
}

func isSurrogate(r rune) bool {
	return surr1 <= r && r < surr3
}

// combineSurrogates returns the scalar value denoted by a high/low pair.
func combineSurrogates(hi, lo rune) rune {
	return (hi-surr1)<<10 | (lo - surr2) + surrSelf
}

// splitSurrogates is the inverse of combineSurrogates for scalars >= 0x10000.
func splitSurrogates(r rune) (hi, lo rune) {
	r -= surrSelf
	return surr1 + (r>>10)&0x3ff, surr2 + r&0x3ff
}

// ============================================================================
// String
// ============================================================================

// String is a JSON string value: an immutable sequence of Unicode code
// points that, unlike a well-formed Go string, may include lonely surrogates
// (U+D800 through U+DFFF). It preserves exactly what a JSON string literal
// denoted, even when that text has no well-formed Unicode representation.
//
// The sequence is held in WTF-8, a superset of UTF-8 that admits three-byte
// encodings of surrogates. WTF-8 is canonical: a high surrogate is never
// immediately followed by its matching low surrogate, since such a pair is
// stored as the single supplementary-plane scalar it denotes. Two Strings
// are therefore == exactly when their code point sequences are identical,
// String is usable as a map key, and an ordinary well-formed string never
// equals a string containing a lonely surrogate. The zero String is empty.
type String struct {
	wtf8 string
}

// NewString returns the String for a native Go string. Go cannot promise
// well-formed contents in the type system, so each maximal run of invalid
// UTF-8 bytes is replaced with a single U+FFFD. Data that must survive
// byte-for-byte belongs in StringFromUTF16 instead.
func NewString(s string) String {
	if utf8.ValidString(s) {
		return String{wtf8: s}
	}
	return String{wtf8: strings.ToValidUTF8(s, string(replacementChar))}
}

// StringFromUTF16 returns the String for a potentially ill-formed UTF-16
// sequence. Each high surrogate immediately followed by a low surrogate is
// combined into one scalar; unpaired surrogates are kept as they are. The
// conversion is lossless: s.UTF16() reproduces the input exactly.
func StringFromUTF16(units []uint16) String {
	buf := make([]byte, 0, len(units))
	for i := 0; i < len(units); i++ {
		r := rune(units[i])
		if isHighSurrogate(r) && i+1 < len(units) && isLowSurrogate(rune(units[i+1])) {
			r = combineSurrogates(r, rune(units[i+1]))
			i++
		}
		buf = appendCodePoint(buf, r)
	}
	return String{wtf8: string(buf)}
}

// StdString converts to a native Go string. It fails with a
// *LossyConversionError if the String contains a lonely surrogate, which has
// no well-formed representation; callers that can tolerate loss use
// StdStringLossy instead.
func (s String) StdString() (string, error) {
	if utf8.ValidString(s.wtf8) {
		return s.wtf8, nil
	}
	for i := 0; i < len(s.wtf8); {
		r, n := decodeCodePoint(s.wtf8[i:])
		if isSurrogate(r) {
			return "", &LossyConversionError{Unit: uint16(r)}
		}
		i += n
	}
	return s.wtf8, nil
}

// StdStringLossy converts to a native Go string, replacing each lonely
// surrogate with U+FFFD. The replacement is not reversible.
func (s String) StdStringLossy() string {
	if utf8.ValidString(s.wtf8) {
		return s.wtf8
	}
	buf := make([]byte, 0, len(s.wtf8))
	for i := 0; i < len(s.wtf8); {
		r, n := decodeCodePoint(s.wtf8[i:])
		i += n
		if isSurrogate(r) {
			r = replacementChar
		}
		buf = appendCodePoint(buf, r)
	}
	return string(buf)
}

// IsWellFormed reports whether the String contains no lonely surrogates,
// that is, whether StdString would succeed.
func (s String) IsWellFormed() bool {
	return utf8.ValidString(s.wtf8)
}

// UTF16 returns the code point sequence as potentially ill-formed UTF-16.
// Supplementary-plane scalars become surrogate pairs; lonely surrogates
// appear as themselves.
func (s String) UTF16() []uint16 {
	units := make([]uint16, 0, len(s.wtf8))
	for i := 0; i < len(s.wtf8); {
		r, n := decodeCodePoint(s.wtf8[i:])
		i += n
		if r >= surrSelf {
			hi, lo := splitSurrogates(r)
			units = append(units, uint16(hi), uint16(lo))
		} else {
			units = append(units, uint16(r))
		}
	}
	return units
}

// CodePoints returns the code point sequence. Lonely surrogates appear as
// rune values in U+D800 through U+DFFF.
func (s String) CodePoints() []rune {
	points := make([]rune, 0, len(s.wtf8))
	for i := 0; i < len(s.wtf8); {
		r, n := decodeCodePoint(s.wtf8[i:])
		i += n
		points = append(points, r)
	}
	return points
}

// Len returns the number of code points, not bytes.
func (s String) Len() int {
	n := 0
	for i := 0; i < len(s.wtf8); {
		_, size := decodeCodePoint(s.wtf8[i:])
		i += size
		n++
	}
	return n
}

// Compare orders two Strings by code point value, returning -1, 0, or +1.
// Lonely surrogates take their raw values, so they sort between U+D7FF and
// U+E000. WTF-8 is order-preserving, so this is a byte comparison. Marshal
// uses this order for object keys.
func (s String) Compare(t String) int {
	return strings.Compare(s.wtf8, t.wtf8)
}

// String returns the JSON string literal form, quotes included.
func (s String) String() string {
	return string(appendQuoted(nil, s))
}

// ============================================================================
// WTF-8
// ============================================================================
//
// Same bit layout as UTF-8, except that a code point in the surrogate range
// is admitted and takes the ordinary three-byte form. The decoder trusts its
// input: a String's payload is only ever produced by appendCodePoint from a
// validated source, so every sequence it sees is well formed.

// appendCodePoint appends the WTF-8 encoding of r, which must be a valid
// code point (including surrogates), to dst.
func appendCodePoint(dst []byte, r rune) []byte {
	switch {
	case r < 0x80:
		return append(dst, byte(r))
	case r < 0x800:
		return append(dst, 0xC0|byte(r>>6), 0x80|byte(r)&0x3F)
	case r < 0x10000:
		return append(dst, 0xE0|byte(r>>12), 0x80|byte(r>>6)&0x3F, 0x80|byte(r)&0x3F)
	default:
		return append(dst, 0xF0|byte(r>>18), 0x80|byte(r>>12)&0x3F, 0x80|byte(r>>6)&0x3F, 0x80|byte(r)&0x3F)
	}
}

// decodeCodePoint decodes the first code point of a trusted WTF-8 sequence,
// returning the code point and its encoded size.
func decodeCodePoint(s string) (rune, int) {
	b := s[0]
	switch {
	case b < 0x80:
		return rune(b), 1
	case b < 0xE0:
		return rune(b&0x1F)<<6 | rune(s[1]&0x3F), 2
	case b < 0xF0:
		return rune(b&0x0F)<<12 | rune(s[1]&0x3F)<<6 | rune(s[2]&0x3F), 3
	default:
		return rune(b&0x07)<<18 | rune(s[1]&0x3F)<<12 | rune(s[2]&0x3F)<<6 | rune(s[3]&0x3F), 4
	}
}

// ============================================================================
// String Literal Decoding
// ============================================================================

// readString consumes an entire string literal, opening quote through
// closing quote, and returns its value.
//
// A \uXXXX escape contributes a 16-bit code unit. A high surrogate escape
// immediately followed by a low surrogate escape combines into one scalar;
// any other surrogate escape is kept as a lonely code point. Raw bytes must
// be valid UTF-8 (JSON text cannot carry raw surrogates), so they always
// contribute scalars.
func readString(r *reader) (String, error) {
	if b, ok := r.peek(); !ok || b != '"' {
		return String{}, r.errHere("Expected string")
	}
	r.next()

	var buf []byte
	for {
		line, col := r.line, r.col
		b, ok := r.next()
		if !ok {
			return String{}, r.errAt(line, col, "Unterminated string")
		}

		switch {
		case b == '"':
			return String{wtf8: string(buf)}, nil

		case b == '\\':
			esc, ok := r.next()
			if !ok {
				return String{}, r.errHere("Unterminated string")
			}
			switch esc {
			case '"', '\\', '/':
				buf = append(buf, esc)
			case 'b':
				buf = append(buf, 0x08)
			case 'f':
				buf = append(buf, 0x0C)
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'u':
				u, err := readHex4(r)
				if err != nil {
					return String{}, err
				}
				cp := rune(u)
				if isHighSurrogate(cp) {
					if lo, ok := peekLowSurrogateEscape(r); ok {
						r.advance(6)
						cp = combineSurrogates(cp, lo)
					}
				}
				buf = appendCodePoint(buf, cp)
			default:
				return String{}, r.errAt(line, col, "Bad escaped character %q", esc)
			}

		case b < 0x20:
			return String{}, r.errAt(line, col, "Illegal control character in string")

		case b < 0x80:
			buf = append(buf, b)

		default:
			// Start of a multi-byte UTF-8 sequence.
			cp, size := utf8.DecodeRune(r.data[r.pos-1:])
			if cp == utf8.RuneError && size <= 1 {
				return String{}, r.errAt(line, col, "Invalid UTF-8 in string")
			}
			buf = append(buf, r.data[r.pos-1:r.pos-1+size]...)
			r.advance(size - 1)
		}
	}
}

// readHex4 consumes the four hex digits of a \uXXXX escape.
func readHex4(r *reader) (uint16, error) {
	var v uint16
	for i := 0; i < 4; i++ {
		line, col := r.line, r.col
		b, ok := r.next()
		if !ok {
			return 0, r.errAt(line, col, "Unterminated string")
		}
		d, ok := hexDigit(b)
		if !ok {
			return 0, r.errAt(line, col, "Bad Unicode escape")
		}
		v = v<<4 | uint16(d)
	}
	return v, nil
}

// peekLowSurrogateEscape reports whether the next six bytes are a \uXXXX
// escape denoting a low surrogate, without consuming anything. A malformed
// lookahead is not an error here; the main loop reports it when reached.
func peekLowSurrogateEscape(r *reader) (rune, bool) {
	if r.pos+6 > len(r.data) || r.data[r.pos] != '\\' || r.data[r.pos+1] != 'u' {
		return 0, false
	}
	var v rune
	for _, b := range r.data[r.pos+2 : r.pos+6] {
		d, ok := hexDigit(b)
		if !ok {
			return 0, false
		}
		v = v<<4 | rune(d)
	}
	if !isLowSurrogate(v) {
		return 0, false
	}
	return v, true
}

func hexDigit(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// ============================================================================
// String Literal Encoding
// ============================================================================

const hexDigits = "0123456789abcdef"

// appendQuoted appends the JSON string literal form of s to dst, quotes
// included. Scalar runs are written as raw UTF-8 with only the escaping JSON
// requires (quote, backslash, controls below U+0020); each lonely surrogate
// is written as a \uXXXX escape of its own value, never as raw bytes.
// Feeding the result back through readString reconstructs s exactly.
func appendQuoted(dst []byte, s String) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s.wtf8); {
		cp, n := decodeCodePoint(s.wtf8[i:])
		switch {
		case cp == '"':
			dst = append(dst, '\\', '"')
		case cp == '\\':
			dst = append(dst, '\\', '\\')
		case cp == 0x08:
			dst = append(dst, '\\', 'b')
		case cp == 0x0C:
			dst = append(dst, '\\', 'f')
		case cp == '\n':
			dst = append(dst, '\\', 'n')
		case cp == '\r':
			dst = append(dst, '\\', 'r')
		case cp == '\t':
			dst = append(dst, '\\', 't')
		case cp < 0x20 || isSurrogate(cp):
			dst = append(dst, '\\', 'u',
				hexDigits[cp>>12&0xF], hexDigits[cp>>8&0xF],
				hexDigits[cp>>4&0xF], hexDigits[cp&0xF])
		default:
			dst = append(dst, s.wtf8[i:i+n]...)
		}
		i += n
	}
	return append(dst, '"')
}

// ============================================================================
// Lossy Conversion Errors
// ============================================================================

// LossyConversionError reports that a String could not be converted to a
// well-formed native string because it contains a lonely surrogate. Callers
// choose how to proceed: reject the value, take StdStringLossy, or keep
// working with the String itself.
type LossyConversionError struct {
	Unit uint16 // the first lonely surrogate encountered
}

func (e *LossyConversionError) Error() string {
	return fmt.Sprintf("Lonely surrogate U+%04X has no well-formed string representation", e.Unit)
}
