// Package message defines the fixed-size record clients place in channel
// queues and its little-endian wire layout.
package message

import (
	"encoding/binary"
	"errors"
	"fmt"

	"tangled.org/atscan.net/perfhint/internal/types"
)

// Size is the encoded size of every message
const Size = 48

// Field offsets
const (
	offTimestamp = 0
	offSession   = 8
	offTag       = 12
	offPayload   = 16

	offWorkDuration = offPayload
	offWorkStart    = offPayload + 8
	offWorkCPU      = offPayload + 16
	offWorkGPU      = offPayload + 24

	offModeEnabled = offPayload + 4
)

// Tag selects which payload a message carries
type Tag int32

const (
	TagHint Tag = iota + 1
	TagTargetDuration
	TagWorkDuration
	TagMode
)

func (t Tag) String() string {
	switch t {
	case TagHint:
		return "hint"
	case TagTargetDuration:
		return "target_duration"
	case TagWorkDuration:
		return "work_duration"
	case TagMode:
		return "mode"
	default:
		return fmt.Sprintf("tag(%d)", int32(t))
	}
}

var (
	// ErrUnknownTag is returned when decoding a message with an unrecognized tag
	ErrUnknownTag = errors.New("unknown message tag")

	// ErrShortBuffer is returned when a buffer is smaller than Size
	ErrShortBuffer = errors.New("buffer shorter than message size")
)

// Message is one client request. Only the fields selected by Tag are meaningful.
type Message struct {
	TimestampNanos int64
	SessionID      int32
	Tag            Tag

	Hint                types.SessionHint
	TargetDurationNanos int64
	WorkDuration        types.WorkDuration
	Mode                types.SessionMode
	Enabled             bool
}

// NewHint builds a hint message
func NewHint(sessionID int32, ts int64, hint types.SessionHint) Message {
	return Message{TimestampNanos: ts, SessionID: sessionID, Tag: TagHint, Hint: hint}
}

// NewTargetDuration builds a target-duration update
func NewTargetDuration(sessionID int32, ts int64, targetNanos int64) Message {
	return Message{TimestampNanos: ts, SessionID: sessionID, Tag: TagTargetDuration, TargetDurationNanos: targetNanos}
}

// NewWorkDuration builds a work-duration report. The message timestamp is
// taken from wd.TimestampNanos.
func NewWorkDuration(sessionID int32, wd types.WorkDuration) Message {
	return Message{TimestampNanos: wd.TimestampNanos, SessionID: sessionID, Tag: TagWorkDuration, WorkDuration: wd}
}

// NewMode builds a mode toggle
func NewMode(sessionID int32, ts int64, mode types.SessionMode, enabled bool) Message {
	return Message{TimestampNanos: ts, SessionID: sessionID, Tag: TagMode, Mode: mode, Enabled: enabled}
}

// Encode writes m into the first Size bytes of buf
func (m *Message) Encode(buf []byte) error {
	if len(buf) < Size {
		return ErrShortBuffer
	}
	clear(buf[:Size])

	le := binary.LittleEndian
	le.PutUint64(buf[offTimestamp:], uint64(m.TimestampNanos))
	le.PutUint32(buf[offSession:], uint32(m.SessionID))
	le.PutUint32(buf[offTag:], uint32(m.Tag))

	switch m.Tag {
	case TagHint:
		le.PutUint32(buf[offPayload:], uint32(m.Hint))
	case TagTargetDuration:
		le.PutUint64(buf[offPayload:], uint64(m.TargetDurationNanos))
	case TagWorkDuration:
		le.PutUint64(buf[offWorkDuration:], uint64(m.WorkDuration.DurationNanos))
		le.PutUint64(buf[offWorkStart:], uint64(m.WorkDuration.WorkPeriodStartNanos))
		le.PutUint64(buf[offWorkCPU:], uint64(m.WorkDuration.CPUDurationNanos))
		le.PutUint64(buf[offWorkGPU:], uint64(m.WorkDuration.GPUDurationNanos))
	case TagMode:
		le.PutUint32(buf[offPayload:], uint32(m.Mode))
		if m.Enabled {
			buf[offModeEnabled] = 1
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTag, int32(m.Tag))
	}

	return nil
}

// Decode reads a message from the first Size bytes of buf
func Decode(buf []byte) (Message, error) {
	if len(buf) < Size {
		return Message{}, ErrShortBuffer
	}

	le := binary.LittleEndian
	m := Message{
		TimestampNanos: int64(le.Uint64(buf[offTimestamp:])),
		SessionID:      int32(le.Uint32(buf[offSession:])),
		Tag:            Tag(int32(le.Uint32(buf[offTag:]))),
	}

	switch m.Tag {
	case TagHint:
		m.Hint = types.SessionHint(int32(le.Uint32(buf[offPayload:])))
	case TagTargetDuration:
		m.TargetDurationNanos = int64(le.Uint64(buf[offPayload:]))
	case TagWorkDuration:
		m.WorkDuration = types.WorkDuration{
			TimestampNanos:       m.TimestampNanos,
			DurationNanos:        int64(le.Uint64(buf[offWorkDuration:])),
			WorkPeriodStartNanos: int64(le.Uint64(buf[offWorkStart:])),
			CPUDurationNanos:     int64(le.Uint64(buf[offWorkCPU:])),
			GPUDurationNanos:     int64(le.Uint64(buf[offWorkGPU:])),
		}
	case TagMode:
		m.Mode = types.SessionMode(int32(le.Uint32(buf[offPayload:])))
		m.Enabled = buf[offModeEnabled] != 0
	default:
		return m, fmt.Errorf("%w: %d", ErrUnknownTag, int32(m.Tag))
	}

	return m, nil
}

// EncodeAll encodes msgs back to back into a new buffer
func EncodeAll(msgs []Message) ([]byte, error) {
	buf := make([]byte, len(msgs)*Size)
	for i := range msgs {
		if err := msgs[i].Encode(buf[i*Size:]); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	return buf, nil
}
