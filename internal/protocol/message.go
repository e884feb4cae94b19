package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pydsigner/coregent/internal/debug"
)

// readExact fills buf from r, looping until every byte has arrived; a
// single receive on a streaming socket may return fewer bytes than
// requested. By the time readExact runs, at least the id of the
// current frame has been consumed, so an early end is a truncation.
func readExact(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return &TruncatedFrameError{Wanted: len(buf), Got: n}
		}
		return err
	}
	return nil
}

// Field names one parameter of a message type.
type Field struct {
	Name  string
	Param Param
}

// F is shorthand for declaring a Field.
func F(name string, p Param) Field {
	return Field{Name: name, Param: p}
}

// Type is one named, numerically-identified entry of a registry: a
// fixed ordered list of parameters compiled into a fixed-size header
// format plus variable-length trailer rules. Types are constructed
// once at program start and immutable thereafter.
type Type struct {
	id         uint64
	name       string
	fields     []Field
	headerSize int
}

func NewType(id uint64, name string, fields ...Field) *Type {
	t := &Type{id: id, name: name, fields: fields}
	for _, f := range fields {
		t.headerSize += f.Param.size()
	}
	return t
}

func (t *Type) ID() uint64 {
	return t.id
}

func (t *Type) Name() string {
	return t.name
}

// HeaderSize is the fixed number of bytes covering all fixed-width
// fields of one frame, excluding the message id.
func (t *Type) HeaderSize() int {
	return t.headerSize
}

// New builds an instance carrying values in declared field order.
func (t *Type) New(values ...any) (*Message, error) {
	if len(values) != len(t.fields) {
		return nil, fmt.Errorf("%s: want %d field values, got %d", t.name, len(t.fields), len(values))
	}
	vals := make([]any, len(values))
	copy(vals, values)
	return &Message{t: t, values: vals}, nil
}

// MustNew is New for argument lists known correct at compile time.
func (t *Type) MustNew(values ...any) *Message {
	m, err := t.New(values...)
	debug.Assert(err == nil)
	return m
}

// Serialize packs all fields in declared order: fixed-width outputs
// concatenated into one header buffer, variable blocks appended after
// the header in field order.
func (t *Type) Serialize(m *Message) ([]byte, error) {
	if m.t.id != t.id {
		return nil, fmt.Errorf("cannot serialize %s instance as %s", m.Name(), t.name)
	}
	head := make([]byte, 0, t.headerSize)
	var tail []byte
	for i, f := range t.fields {
		var block []byte
		var err error
		head, block, err = f.Param.pack(head, m.values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.name, f.Name, err)
		}
		tail = append(tail, block...)
	}
	debug.Assert(len(head) == t.headerSize)
	return append(head, tail...), nil
}

// Deserialize reads exactly the fixed header size from r, then lets
// each field consume its slots from the header cursor (and, for text
// fields, read further bytes directly from r) in declared order.
func (t *Type) Deserialize(r io.Reader) (*Message, error) {
	head := make([]byte, t.headerSize)
	if err := readExact(r, head); err != nil {
		return nil, err
	}
	cur := &cursor{buf: head}
	values := make([]any, len(t.fields))
	for i, f := range t.fields {
		v, err := f.Param.parse(cur, r)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.name, f.Name, err)
		}
		values[i] = v
	}
	return &Message{t: t, values: values}, nil
}

// Message is an immutable instance of a Type: the message id plus
// field values in declared order. Produced by decoding a frame or by
// Type.New.
type Message struct {
	t      *Type
	values []any
}

func (m *Message) ID() uint64 {
	return m.t.id
}

func (m *Message) Name() string {
	return m.t.name
}

// Is reports type equality, compared by id.
func (m *Message) Is(t *Type) bool {
	return m.t.id == t.id
}

// Len returns the number of field values.
func (m *Message) Len() int {
	return len(m.values)
}

// Value returns the i-th field value in declared order.
func (m *Message) Value(i int) any {
	return m.values[i]
}

// Get returns the value of the named field.
func (m *Message) Get(field string) (any, bool) {
	for i, f := range m.t.fields {
		if f.Name == field {
			return m.values[i], true
		}
	}
	return nil, false
}

func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.t.name)
	sb.WriteByte('{')
	for i, f := range m.t.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", f.Name, m.values[i])
	}
	sb.WriteByte('}')
	return sb.String()
}
