package parser

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidText is returned when a map file is not valid UTF-8.
var ErrInvalidText = errors.New("file is not valid UTF-8 text")

// FieldError reports a numeric field that could not be parsed.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: invalid value %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ParseUint8 parses a trimmed base-10 integer in [0, 255].
func ParseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// ParseFloat parses a trimmed decimal floating-point number. Hexadecimal
// forms such as "0x1p4", which strconv would accept, are a syntax error.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimLeft(s, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, &strconv.NumError{Func: "ParseFloat", Num: s, Err: strconv.ErrSyntax}
	}
	return strconv.ParseFloat(s, 64)
}

// ReadFileString reads a whole file and checks that it is valid UTF-8.
// Errors from opening the file are returned unwrapped so callers can use os.IsNotExist.
func ReadFileString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", path, ErrInvalidText)
	}
	return string(data), nil
}

// fieldReader parses a fixed list of comma-separated fields in order and
// keeps the first failure, so a row parser can read every field and check
// the error once.
type fieldReader struct {
	fields []string
	names  []string
	i      int
	err    error
}

func (r *fieldReader) float() float64 {
	s, name := r.next()
	if r.err != nil {
		return 0
	}
	v, err := ParseFloat(s)
	if err != nil {
		r.err = &FieldError{Field: name, Value: strings.TrimSpace(s), Err: err}
	}
	return v
}

func (r *fieldReader) u8() uint8 {
	s, name := r.next()
	if r.err != nil {
		return 0
	}
	v, err := ParseUint8(s)
	if err != nil {
		r.err = &FieldError{Field: name, Value: strings.TrimSpace(s), Err: err}
	}
	return v
}

func (r *fieldReader) text() string {
	s, _ := r.next()
	return strings.TrimSpace(s)
}

func (r *fieldReader) next() (string, string) {
	s, name := r.fields[r.i], r.names[r.i]
	r.i++
	return s, name
}
