// Package rmarshal writes Ruby Marshal 4.8 streams.
//
// Only the subset needed by legacy RubyGems index files is supported:
// nil, booleans, fixnums, strings, symbols, arrays, hashes, plain objects
// and classes with marshal_dump (type 'U') or _dump (type 'u'). Repeated
// symbols are written as symbol links; object links are never emitted, so
// every value is written out in full.
package rmarshal

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

const (
	majorVersion = 4
	minorVersion = 8
)

// Symbol is a Ruby symbol.
type Symbol string

// Binary is a string with no encoding (ASCII-8BIT).
type Binary []byte

// Pair is one entry of a Hash.
type Pair struct {
	Key   any
	Value any
}

// Hash is an insertion-ordered Ruby hash.
type Hash []Pair

// Ivar is an instance variable of an Object. Name includes the leading "@".
type Ivar struct {
	Name  string
	Value any
}

// Object is a plain Ruby object written field by field.
type Object struct {
	Class string
	Ivars []Ivar
}

// UserMarshal is an instance of a class implementing marshal_dump. Data is
// the value marshal_dump returns.
type UserMarshal struct {
	Class string
	Data  any
}

// UserDefined is an instance of a class implementing _dump. Data is the
// byte string _dump returns.
type UserDefined struct {
	Class string
	Data  []byte
}

// Marshal encodes v as a complete Marshal stream, header included.
func Marshal(v any) ([]byte, error) {
	e := &encoder{symbols: make(map[string]int)}
	e.buf.WriteByte(majorVersion)
	e.buf.WriteByte(minorVersion)
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Time returns the _dump form of a UTC Ruby Time with microsecond precision.
func Time(t time.Time) UserDefined {
	t = t.UTC()
	p := uint32(1)<<31 |
		uint32(1)<<30 |
		uint32(t.Year()-1900)<<14 |
		uint32(t.Month()-1)<<10 |
		uint32(t.Day())<<5 |
		uint32(t.Hour())
	s := uint32(t.Minute())<<26 |
		uint32(t.Second())<<20 |
		uint32(t.Nanosecond()/1000)

	data := make([]byte, 8)
	for i := 0; i < 4; i++ {
		data[i] = byte(p >> (8 * i))
		data[4+i] = byte(s >> (8 * i))
	}
	return UserDefined{Class: "Time", Data: data}
}

type encoder struct {
	buf     bytes.Buffer
	symbols map[string]int
}

func (e *encoder) value(v any) error {
	switch v := v.(type) {
	case nil:
		e.buf.WriteByte('0')
	case bool:
		if v {
			e.buf.WriteByte('T')
		} else {
			e.buf.WriteByte('F')
		}
	case int:
		return e.fixnum(int64(v))
	case int64:
		return e.fixnum(v)
	case string:
		e.buf.WriteByte('I')
		e.buf.WriteByte('"')
		e.bytes([]byte(v))
		e.long(1)
		e.symbol("E")
		e.buf.WriteByte('T')
	case Binary:
		e.buf.WriteByte('"')
		e.bytes(v)
	case Symbol:
		e.symbol(string(v))
	case []string:
		e.buf.WriteByte('[')
		e.long(len(v))
		for _, s := range v {
			if err := e.value(s); err != nil {
				return err
			}
		}
	case []any:
		e.buf.WriteByte('[')
		e.long(len(v))
		for _, item := range v {
			if err := e.value(item); err != nil {
				return err
			}
		}
	case Hash:
		e.buf.WriteByte('{')
		e.long(len(v))
		for _, p := range v {
			if err := e.value(p.Key); err != nil {
				return err
			}
			if err := e.value(p.Value); err != nil {
				return err
			}
		}
	case Object:
		e.buf.WriteByte('o')
		e.symbol(v.Class)
		e.long(len(v.Ivars))
		for _, iv := range v.Ivars {
			e.symbol(iv.Name)
			if err := e.value(iv.Value); err != nil {
				return fmt.Errorf("%s%s: %w", v.Class, iv.Name, err)
			}
		}
	case UserMarshal:
		e.buf.WriteByte('U')
		e.symbol(v.Class)
		if err := e.value(v.Data); err != nil {
			return fmt.Errorf("%s: %w", v.Class, err)
		}
	case UserDefined:
		e.buf.WriteByte('u')
		e.symbol(v.Class)
		e.bytes(v.Data)
	default:
		return fmt.Errorf("rmarshal: unsupported type %T", v)
	}
	return nil
}

func (e *encoder) fixnum(n int64) error {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return fmt.Errorf("rmarshal: integer %d out of fixnum range", n)
	}
	e.buf.WriteByte('i')
	e.long(int(n))
	return nil
}

func (e *encoder) symbol(name string) {
	if idx, ok := e.symbols[name]; ok {
		e.buf.WriteByte(';')
		e.long(idx)
		return
	}
	e.symbols[name] = len(e.symbols)
	e.buf.WriteByte(':')
	e.bytes([]byte(name))
}

func (e *encoder) bytes(b []byte) {
	e.long(len(b))
	e.buf.Write(b)
}

// long writes n in Marshal's variable-length integer form.
func (e *encoder) long(n int) {
	switch {
	case n == 0:
		e.buf.WriteByte(0)
		return
	case n > 0 && n < 123:
		e.buf.WriteByte(byte(n + 5))
		return
	case n < 0 && n > -124:
		e.buf.WriteByte(byte(int8(n - 5)))
		return
	}

	var out [5]byte
	x := int64(n)
	for i := 1; i <= 4; i++ {
		out[i] = byte(x)
		x >>= 8
		if x == 0 {
			out[0] = byte(i)
			e.buf.Write(out[:i+1])
			return
		}
		if x == -1 {
			out[0] = byte(int8(-i))
			e.buf.Write(out[:i+1])
			return
		}
	}
}
