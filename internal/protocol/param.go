// Package protocol implements the typed message registry and its
// binary serialization: fixed-width parameter codecs packed into a
// per-type header in network byte order, followed by variable-length
// trailers (length-prefixed text) in declared field order.
package protocol

import (
	"fmt"
	"io"
	"math"

	"github.com/pydsigner/coregent/internal/byteorder"
	"github.com/pydsigner/coregent/internal/debug"
	"github.com/x448/float16"
)

// Code identifies a fixed-width primitive encoding.
type Code uint8

const (
	Bool Code = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float16
	Float32
	Float64
)

func (c Code) String() string {
	switch c {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

func (c Code) size() int {
	switch c {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	debug.Assert(false, fmt.Sprintf("unknown code: %d", c))
	return 0
}

func packTypeError(c Code, v any) error {
	return fmt.Errorf("cannot pack %T value as %s", v, c)
}

// appendValue appends the network-byte-order encoding of v, which must
// hold the code's concrete Go type (Float16 carries float32 values).
func (c Code) appendValue(dst []byte, v any) ([]byte, error) {
	switch c {
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, packTypeError(c, v)
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case Int8:
		n, ok := v.(int8)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byte(n)), nil
	case Uint8:
		n, ok := v.(uint8)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, n), nil
	case Int16:
		n, ok := v.(int16)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htons(uint16(n))...), nil
	case Uint16:
		n, ok := v.(uint16)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htons(n)...), nil
	case Int32:
		n, ok := v.(int32)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htonl(uint32(n))...), nil
	case Uint32:
		n, ok := v.(uint32)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htonl(n)...), nil
	case Int64:
		n, ok := v.(int64)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htonll(uint64(n))...), nil
	case Uint64:
		n, ok := v.(uint64)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htonll(n)...), nil
	case Float16:
		f, ok := v.(float32)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htons(float16.Fromfloat32(f).Bits())...), nil
	case Float32:
		f, ok := v.(float32)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htonl(math.Float32bits(f))...), nil
	case Float64:
		f, ok := v.(float64)
		if !ok {
			return nil, packTypeError(c, v)
		}
		return append(dst, byteorder.Htonll(math.Float64bits(f))...), nil
	}
	debug.Assert(false, fmt.Sprintf("unknown code: %d", c))
	return nil, nil
}

// takeValue decodes the code's next slot from the header cursor.
func (c Code) takeValue(cur *cursor) any {
	buf := cur.take(c.size())
	switch c {
	case Bool:
		return buf[0] != 0
	case Int8:
		return int8(buf[0])
	case Uint8:
		return buf[0]
	case Int16:
		return int16(byteorder.Ntohs(buf))
	case Uint16:
		return byteorder.Ntohs(buf)
	case Int32:
		return int32(byteorder.Ntohl(buf))
	case Uint32:
		return byteorder.Ntohl(buf)
	case Int64:
		return int64(byteorder.Ntohll(buf))
	case Uint64:
		return byteorder.Ntohll(buf)
	case Float16:
		return float16.Frombits(byteorder.Ntohs(buf)).Float32()
	case Float32:
		return math.Float32frombits(byteorder.Ntohl(buf))
	case Float64:
		return math.Float64frombits(byteorder.Ntohll(buf))
	}
	debug.Assert(false, fmt.Sprintf("unknown code: %d", c))
	return nil
}

// prefixMax returns the largest length representable by an unsigned
// prefix of code c.
func prefixMax(c Code) uint64 {
	switch c {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	case Uint64:
		return math.MaxUint64
	}
	debug.Assert(false, fmt.Sprintf("code %s cannot prefix a length", c))
	return 0
}

// appendUint appends n encoded as unsigned code c.
func (c Code) appendUint(dst []byte, n uint64) []byte {
	switch c {
	case Uint8:
		return append(dst, byte(n))
	case Uint16:
		return append(dst, byteorder.Htons(uint16(n))...)
	case Uint32:
		return append(dst, byteorder.Htonl(uint32(n))...)
	case Uint64:
		return append(dst, byteorder.Htonll(n)...)
	}
	debug.Assert(false, fmt.Sprintf("code %s cannot prefix a length", c))
	return nil
}

// takeUint decodes unsigned code c from the header cursor.
func (c Code) takeUint(cur *cursor) uint64 {
	switch c {
	case Uint8:
		return uint64(cur.take(1)[0])
	case Uint16:
		return uint64(byteorder.Ntohs(cur.take(2)))
	case Uint32:
		return uint64(byteorder.Ntohl(cur.take(4)))
	case Uint64:
		return byteorder.Ntohll(cur.take(8))
	}
	debug.Assert(false, fmt.Sprintf("code %s cannot prefix a length", c))
	return 0
}

// cursor walks the already-read fixed-width header of one frame. Each
// parameter consumes its own slots explicitly rather than sharing
// implicit iteration state.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) take(n int) []byte {
	// the header buffer is sized exactly from the compiled type, so
	// running past it is a programmer error
	debug.Assert(c.off+n <= len(c.buf))
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out
}

// Param describes how one field value maps to bytes: a fixed-width
// slice of the message header plus, for some kinds, a variable-length
// block trailing the header.
type Param interface {
	// size is the number of bytes the parameter occupies in the
	// fixed-width header.
	size() int
	// pack appends the fixed-width encoding of v to head and returns
	// any variable-length bytes to be appended after the header.
	pack(head []byte, v any) (newHead []byte, tail []byte, err error)
	// parse decodes the parameter's value, consuming its header
	// slots from cur and any trailing bytes from r.
	parse(cur *cursor, r io.Reader) (any, error)
}

type fixedParam struct {
	code Code
}

// Fixed returns a parameter holding a single fixed-width primitive.
func Fixed(code Code) Param {
	return fixedParam{code: code}
}

func (p fixedParam) size() int {
	return p.code.size()
}

func (p fixedParam) pack(head []byte, v any) ([]byte, []byte, error) {
	head, err := p.code.appendValue(head, v)
	return head, nil, err
}

func (p fixedParam) parse(cur *cursor, _ io.Reader) (any, error) {
	return p.code.takeValue(cur), nil
}

type multiParam struct {
	code  Code
	count int
}

// Multi returns a parameter holding count values of one fixed-width
// primitive, decoded as a short fixed-length list.
func Multi(code Code, count int) Param {
	debug.Assert(count > 0)
	return multiParam{code: code, count: count}
}

func (p multiParam) size() int {
	return p.code.size() * p.count
}

func (p multiParam) pack(head []byte, v any) ([]byte, []byte, error) {
	vs, ok := v.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("cannot pack %T value as %d x %s", v, p.count, p.code)
	}
	if len(vs) != p.count {
		return nil, nil, fmt.Errorf("want %d values, got %d", p.count, len(vs))
	}
	for _, el := range vs {
		var err error
		head, err = p.code.appendValue(head, el)
		if err != nil {
			return nil, nil, err
		}
	}
	return head, nil, nil
}

func (p multiParam) parse(cur *cursor, _ io.Reader) (any, error) {
	vs := make([]any, p.count)
	for i := range vs {
		vs[i] = p.code.takeValue(cur)
	}
	return vs, nil
}

type textParam struct {
	code Code
	max  uint64
}

// Text returns a length-prefixed UTF-8 parameter whose maximum byte
// length is everything the prefix width can represent. The prefix code
// must be one of the unsigned integer codes.
func Text(code Code) Param {
	return textParam{code: code, max: prefixMax(code)}
}

// TextMax is Text with an explicit maximum byte length. The cap must
// fit the prefix width; a smaller cap binds.
func TextMax(code Code, max uint64) (Param, error) {
	limit := prefixMax(code)
	if max > limit {
		return nil, fmt.Errorf("targeted maximum text length (%d) greater than permitted by prefix %s (%d)", max, code, limit)
	}
	if max == 0 {
		max = limit
	}
	return textParam{code: code, max: max}, nil
}

// Ready-made text parameters named for their length-prefix width.
var (
	Text8  = Text(Uint8)
	Text16 = Text(Uint16)
	Text32 = Text(Uint32)
	Text64 = Text(Uint64)
)

func (p textParam) size() int {
	return p.code.size()
}

func (p textParam) pack(head []byte, v any) ([]byte, []byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, nil, fmt.Errorf("cannot pack %T value as text", v)
	}
	raw := []byte(s)
	if uint64(len(raw)) > p.max {
		return nil, nil, &LengthExceededError{Length: uint64(len(raw)), Max: p.max}
	}
	return p.code.appendUint(head, uint64(len(raw))), raw, nil
}

func (p textParam) parse(cur *cursor, r io.Reader) (any, error) {
	n := p.code.takeUint(cur)
	// reject before touching the stream so an oversized prefix never
	// triggers an unbounded read
	if n > p.max {
		return nil, &LengthExceededError{Length: n, Max: p.max}
	}
	raw := make([]byte, n)
	if err := readExact(r, raw); err != nil {
		return nil, err
	}
	return string(raw), nil
}
