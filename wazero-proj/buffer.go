package proj

import (
	"fmt"
	"io"
	"math"
)

// ByteSequence is a cursor-based byte source with an explicit position and
// limit, the shape of a byte buffer handed over by an embedding host.
type ByteSequence interface {
	Position() int
	SetPosition(pos int)
	Limit() int
	Get() byte
}

// byteSlicer is a binary buffer exposing its contents directly.
type byteSlicer interface {
	Bytes() []byte
}

// converter tries one input shape. ok is false when the shape does not match.
type converter func(v any) (b []byte, ok bool, err error)

// converters are tried in order, stopping at the first matching shape.
var converters = []converter{
	fromByteSlice,
	fromByteSlicer,
	fromIntegers,
	fromByteSequence,
	fromReadSeeker,
}

// ToBytes normalizes a buffer-like value into an unsigned byte slice.
//
// Accepted shapes are []byte and string, types with a Bytes() []byte method,
// slices of integers holding signed or unsigned byte values, ByteSequence and
// io.ReadSeeker. Sequential sources are left at their original position.
// Any other value fails with a *ConversionError.
func ToBytes(v any) ([]byte, error) {
	if v == nil {
		return nil, &ConversionError{Type: "nil"}
	}
	for _, conv := range converters {
		b, ok, err := conv(v)
		if err != nil {
			return nil, err
		}
		if ok {
			return b, nil
		}
	}
	return nil, &ConversionError{Type: fmt.Sprintf("%T", v)}
}

func fromByteSlice(v any) ([]byte, bool, error) {
	switch t := v.(type) {
	case []byte:
		return t, true, nil
	case string:
		return []byte(t), true, nil
	}
	return nil, false, nil
}

func fromByteSlicer(v any) ([]byte, bool, error) {
	bs, ok := v.(byteSlicer)
	if !ok {
		return nil, false, nil
	}
	src := bs.Bytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, true, nil
}

func fromIntegers(v any) ([]byte, bool, error) {
	switch t := v.(type) {
	case []int8:
		out := make([]byte, len(t))
		for i, x := range t {
			out[i] = byte(x)
		}
		return out, true, nil
	case []int:
		return intsToBytes(v, len(t), func(i int) (int64, bool) { return int64(t[i]), true })
	case []int16:
		return intsToBytes(v, len(t), func(i int) (int64, bool) { return int64(t[i]), true })
	case []int32:
		return intsToBytes(v, len(t), func(i int) (int64, bool) { return int64(t[i]), true })
	case []int64:
		return intsToBytes(v, len(t), func(i int) (int64, bool) { return t[i], true })
	case []any:
		return intsToBytes(v, len(t), func(i int) (int64, bool) { return anyToInt(t[i]) })
	}
	return nil, false, nil
}

// intsToBytes maps signed byte values in [-128, 255] to unsigned bytes.
func intsToBytes(v any, n int, at func(i int) (int64, bool)) ([]byte, bool, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		x, ok := at(i)
		if !ok {
			return nil, false, &ConversionError{
				Type:   fmt.Sprintf("%T", v),
				Detail: fmt.Sprintf("element %d is not an integer", i),
			}
		}
		if x < -128 || x > 255 {
			return nil, false, &ConversionError{
				Type:   fmt.Sprintf("%T", v),
				Detail: fmt.Sprintf("element %d out of byte range: %d", i, x),
			}
		}
		if x < 0 {
			x += 256
		}
		out[i] = byte(x)
	}
	return out, true, nil
}

func anyToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func fromByteSequence(v any) ([]byte, bool, error) {
	seq, ok := v.(ByteSequence)
	if !ok {
		return nil, false, nil
	}
	saved := seq.Position()
	defer seq.SetPosition(saved)

	limit := seq.Limit()
	if limit < 0 {
		return nil, false, &ConversionError{Type: fmt.Sprintf("%T", v), Detail: "negative limit"}
	}
	out := make([]byte, limit)
	seq.SetPosition(0)
	for i := range out {
		out[i] = seq.Get()
	}
	return out, true, nil
}

func fromReadSeeker(v any) ([]byte, bool, error) {
	rs, ok := v.(io.ReadSeeker)
	if !ok {
		return nil, false, nil
	}
	saved, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, false, &ConversionError{Type: fmt.Sprintf("%T", v), Detail: err.Error()}
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, false, &ConversionError{Type: fmt.Sprintf("%T", v), Detail: err.Error()}
	}
	out, readErr := io.ReadAll(rs)
	if _, err := rs.Seek(saved, io.SeekStart); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return nil, false, &ConversionError{Type: fmt.Sprintf("%T", v), Detail: readErr.Error()}
	}
	return out, true, nil
}
