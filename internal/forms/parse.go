package forms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrParse marks submitted field values that do not coerce to their
// declared type.
var ErrParse = errors.New("invalid form input")

// MaxUInt is the largest UInt a script receives exactly; Lua numbers are
// float64.
const MaxUInt = 1 << 53

// ParseField reads fields[key] as a value of type ft.
func ParseField(ft FormType, fields map[string]string, key string) (Value, error) {
	switch ft {
	case TypeEmpty:
		return EmptyValue(), nil
	case TypeUInt, TypeDate:
	default:
		return Value{}, fmt.Errorf("%w: unknown form type %q", ErrParse, ft)
	}

	raw, ok := fields[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: missing field %q", ErrParse, key)
	}
	raw = strings.TrimSpace(raw)

	if ft == TypeUInt {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer %q", ErrParse, raw)
		}
		if n > MaxUInt {
			return Value{}, fmt.Errorf("%w: integer %s exceeds %d", ErrParse, raw, uint64(MaxUInt))
		}
		return UIntValue(n), nil
	}

	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", ErrParse, raw)
	}
	return DateValue(d), nil
}
