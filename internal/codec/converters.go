// Package codec maps export columns onto typed destination fields.
package codec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidValue is wrapped by every converter failure.
var ErrInvalidValue = errors.New("invalid value")

// Converter turns a raw cell into a typed value. A nil value with a nil error
// means the cell was blank.
type Converter func(raw string) (any, error)

var (
	digitsPattern     = regexp.MustCompile(`^[0-9]+$`)
	frenchDatePattern = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
)

// String is the identity conversion.
func String(raw string) (any, error) {
	return raw, nil
}

// OptionalInt converts a digits-only cell to int64; blank yields nil.
func OptionalInt(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if !digitsPattern.MatchString(raw) {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is out of range", ErrInvalidValue, raw)
	}
	return v, nil
}

// OptionalBool converts "0" and "1"; blank yields nil.
func OptionalBool(raw string) (any, error) {
	switch raw {
	case "":
		return nil, nil
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, raw)
	}
}

// PhoneIndicator converts an international dialling prefix such as "+33".
func PhoneIndicator(raw string) (any, error) {
	if len(raw) > 1 && raw[0] == '+' {
		raw = raw[1:]
	}
	return OptionalInt(raw)
}

// FrenchDate converts a DD/MM/YYYY date; blank yields nil.
func FrenchDate(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if !frenchDatePattern.MatchString(raw) {
		return nil, fmt.Errorf("%w: %q is not a DD/MM/YYYY date", ErrInvalidValue, raw)
	}
	d, err := time.Parse("2/1/2006", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid date", ErrInvalidValue, raw)
	}
	return d, nil
}
