package protocol

import (
	"fmt"
	"math"

	"github.com/pydsigner/coregent/internal/byteorder"
	"github.com/pydsigner/coregent/internal/debug"
)

// idWidths are the header id widths considered, narrowest first.
var idWidths = []int{1, 2, 4, 8}

// IDWidth selects the narrowest unsigned-integer byte width whose
// range strictly exceeds maxID.
func IDWidth(maxID uint64) (int, error) {
	for _, w := range idWidths {
		if w == 8 {
			// 2^64 > maxID holds for every uint64 except MaxUint64
			// itself, for which no configured width suffices.
			if maxID < math.MaxUint64 {
				return 8, nil
			}
			break
		}
		if maxID < uint64(1)<<(8*w) {
			return w, nil
		}
	}
	return 0, &WidthUnavailableError{MaxID: maxID}
}

// Registry is the fixed, mutually-agreed catalogue of message types
// two peers must share to interoperate. Both ends of a connection must
// be built from registries with identical ids, field layouts and max
// id: there is no negotiation, and a mismatch corrupts silently rather
// than failing a handshake.
type Registry struct {
	types   map[uint64]*Type
	maxID   uint64
	idWidth int
}

// RegistryOption adjusts registry construction.
type RegistryOption func(*Registry)

// WithMaxID supplies an explicit id ceiling, widening the header id
// field beyond what the registered types alone would require. Peers
// reserving id space for future types set the same ceiling on both
// ends.
func WithMaxID(max uint64) RegistryOption {
	return func(r *Registry) {
		r.maxID = max
	}
}

// NewRegistry compiles the message type catalogue. Ids must be unique;
// the header id width is the narrowest of 1/2/4/8 bytes whose range
// strictly exceeds the largest id (or the WithMaxID ceiling).
func NewRegistry(types []*Type, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{types: make(map[uint64]*Type, len(types))}

	var largest uint64
	for _, t := range types {
		if prev, ok := r.types[t.id]; ok {
			return nil, fmt.Errorf("duplicate message id %d (%s and %s)", t.id, prev.name, t.name)
		}
		r.types[t.id] = t
		if t.id > largest {
			largest = t.id
		}
	}
	r.maxID = largest

	for _, opt := range opts {
		opt(r)
	}
	if len(types) == 0 && r.maxID == 0 {
		return nil, fmt.Errorf("registry needs at least one message type or an explicit max id")
	}
	if r.maxID < largest {
		return nil, fmt.Errorf("explicit max id %d below largest registered id %d", r.maxID, largest)
	}

	w, err := IDWidth(r.maxID)
	if err != nil {
		return nil, err
	}
	r.idWidth = w

	return r, nil
}

// Lookup returns the type registered under id.
func (r *Registry) Lookup(id uint64) (*Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// MaxID returns the id ceiling the header width was computed from.
func (r *Registry) MaxID() uint64 {
	return r.maxID
}

// IDWidth returns the number of bytes encoding a message id on the
// wire. Fixed per registry and identical between peers.
func (r *Registry) IDWidth() int {
	return r.idWidth
}

// AppendID appends id in the registry's header width, network byte
// order.
func (r *Registry) AppendID(dst []byte, id uint64) []byte {
	switch r.idWidth {
	case 1:
		return append(dst, byte(id))
	case 2:
		return append(dst, byteorder.Htons(uint16(id))...)
	case 4:
		return append(dst, byteorder.Htonl(uint32(id))...)
	default:
		return append(dst, byteorder.Htonll(id)...)
	}
}

// DecodeID decodes a header id read off the wire.
func (r *Registry) DecodeID(buf []byte) uint64 {
	debug.Assert(len(buf) == r.idWidth)
	switch r.idWidth {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(byteorder.Ntohs(buf))
	case 4:
		return uint64(byteorder.Ntohl(buf))
	default:
		return byteorder.Ntohll(buf)
	}
}
