package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 6

	// DefaultMaxFrameSize bounds payloads read from the network (16MB).
	DefaultMaxFrameSize = 16 * 1024 * 1024
)

// ErrFrameTooLarge is returned when a frame's declared payload exceeds the reader's limit.
var ErrFrameTooLarge = errors.New("protocol: frame payload too large")

// ErrReservedFlags is returned when a frame sets flag bits this version does not define.
var ErrReservedFlags = errors.New("protocol: reserved frame flags set")

// Encode serializes env into a complete frame.
//
// Wire format (6 bytes header + variable payload):
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Type        │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte, 0)  │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//	│  Payload (Length bytes, layout depends on Type)             │
//	└─────────────────────────────────────────────────────────────┘
func Encode(env Envelope) ([]byte, error) {
	payload, err := MarshalPayload(env)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, FrameHeaderSize+len(payload))
	buf[0] = byte(env.Type)
	buf[1] = 0
	binary.BigEndian.PutUint32(buf[2:FrameHeaderSize], uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	return buf, nil
}

// Decode parses one complete frame held in data.
func Decode(data []byte, maxSize int) (Envelope, error) {
	if len(data) < FrameHeaderSize {
		return Envelope{}, io.ErrUnexpectedEOF
	}
	t, length, err := parseHeader(data[:FrameHeaderSize], maxSize)
	if err != nil {
		return Envelope{}, err
	}
	if len(data)-FrameHeaderSize != length {
		return Envelope{}, fmt.Errorf("protocol: frame declares %d payload bytes, got %d", length, len(data)-FrameHeaderSize)
	}
	return UnmarshalPayload(t, data[FrameHeaderSize:])
}

// WriteEnvelope encodes env and writes it to w in a single Write call.
func WriteEnvelope(w io.Writer, env Envelope) error {
	buf, err := Encode(env)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadEnvelope reads exactly one frame from r and decodes it.
// A clean end of stream before any header byte is reported as io.EOF.
func ReadEnvelope(r io.Reader, maxSize int) (Envelope, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Envelope{}, err
	}
	t, length, err := parseHeader(header, maxSize)
	if err != nil {
		return Envelope{}, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Envelope{}, err
	}
	return UnmarshalPayload(t, payload)
}

func parseHeader(header []byte, maxSize int) (Type, int, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	t := Type(header[0])
	if header[1] != 0 {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrReservedFlags, header[1])
	}
	length := binary.BigEndian.Uint32(header[2:FrameHeaderSize])
	if uint64(length) > uint64(maxSize) {
		return 0, 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}
	return t, int(length), nil
}
