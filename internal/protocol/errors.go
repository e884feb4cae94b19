package protocol

import "fmt"

// LengthExceededError reports a text whose encoded or declared length
// exceeds the parameter's configured maximum. The frame it belongs to
// cannot be recovered mid-message.
type LengthExceededError struct {
	Length uint64
	Max    uint64
}

func (e *LengthExceededError) Error() string {
	return fmt.Sprintf("text length %d exceeds maximum %d for this parameter", e.Length, e.Max)
}

// UnknownMessageTypeError reports a decoded id with no registry entry.
// Fatal to the connection: the byte stream cannot be realigned past an
// unrecognized frame.
type UnknownMessageTypeError struct {
	ID uint64
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type %d", e.ID)
}

// TruncatedFrameError reports a stream that ended after at least one
// byte of the current frame had been read. Distinct from clean
// end-of-stream, which surfaces as io.EOF.
type TruncatedFrameError struct {
	Wanted int
	Got    int
}

func (e *TruncatedFrameError) Error() string {
	if e.Wanted > 0 {
		return fmt.Sprintf("stream ended mid-frame (wanted %d bytes, got %d)", e.Wanted, e.Got)
	}
	return "stream ended mid-frame"
}

// WidthUnavailableError reports that no configured id width can
// represent ids up to MaxID.
type WidthUnavailableError struct {
	MaxID uint64
}

func (e *WidthUnavailableError) Error() string {
	return fmt.Sprintf("no header id width covers max id %d", e.MaxID)
}
