package scoper

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// ValueKind identifies which variant a Value holds.
type ValueKind uint8

const (
	// ValueUint is an unsigned integer. It's the kind of the zero Value.
	ValueUint ValueKind = iota
	// ValueInt is a signed integer.
	ValueInt
	// ValueFloat is a 64-bit float.
	ValueFloat
)

// String implements fmt.Stringer.
func (k ValueKind) String() string {
	switch k {
	case ValueUint:
		return "uint"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is a counter sample: exactly one of an unsigned integer, a signed
// integer, or a float. The zero Value is Uint(0).
type Value struct {
	kind ValueKind
	bits uint64
}

// Uint returns an unsigned integer Value.
func Uint(v uint64) Value { return Value{kind: ValueUint, bits: v} }

// Int returns a signed integer Value.
func Int(v int64) Value { return Value{kind: ValueInt, bits: uint64(v)} }

// Float returns a float Value.
func Float(v float64) Value { return Value{kind: ValueFloat, bits: math.Float64bits(v)} }

// Number is the set of Go types which convert to a Value.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// ValueOf converts any integer or float to the matching Value variant.
func ValueOf[T Number](v T) Value {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint(rv.Uint())
	default:
		return Float(rv.Float())
	}
}

// Kind returns the variant held by the value.
func (v Value) Kind() ValueKind { return v.kind }

// Uint64 returns the unsigned integer, and true if the value is a ValueUint.
func (v Value) Uint64() (uint64, bool) { return v.bits, v.kind == ValueUint }

// Int64 returns the signed integer, and true if the value is a ValueInt.
func (v Value) Int64() (int64, bool) { return int64(v.bits), v.kind == ValueInt }

// Float64 returns the float, and true if the value is a ValueFloat.
func (v Value) Float64() (float64, bool) { return math.Float64frombits(v.bits), v.kind == ValueFloat }

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case ValueUint:
		return strconv.FormatUint(v.bits, 10)
	case ValueInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case ValueFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	default:
		return fmt.Sprintf("Value(%d:%d)", v.kind, v.bits)
	}
}

// jsonValue returns the value as the Go type it should be encoded from. JSON
// has no representation for NaN or infinities, so they become null.
func (v Value) jsonValue() any {
	switch v.kind {
	case ValueInt:
		return int64(v.bits)
	case ValueFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	default:
		return v.bits
	}
}
