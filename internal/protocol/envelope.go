package protocol

import (
	"errors"
	"fmt"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/palette"
)

// Type is the envelope discriminant.
type Type uint8

const (
	TypeLogin        Type = 0x01 // Client → Server: identity
	TypeLoginSuccess Type = 0x02 // Server → Client: handshake accepted
	TypeError        Type = 0x03 // Either direction: fatal error text
	TypeBoard        Type = 0x04 // Server → Client: full board snapshot
	TypeChangeTile   Type = 0x05 // Client → Server: proposed cell
	TypeTileChanged  Type = 0x06 // Server → Client: accepted, stamped cell
)

// LoginFailure is the ERROR text sent when a login is refused.
const LoginFailure = "LOGIN_FAILURE"

// Payload errors.
var (
	ErrUnknownType  = errors.New("protocol: unknown envelope type")
	ErrInvalidColor = errors.New("protocol: color outside palette")
	ErrTrailingData = errors.New("protocol: trailing bytes after payload")
	ErrBadDimension = errors.New("protocol: board dimension does not fit payload")
)

// String returns the wire name of the type.
func (t Type) String() string {
	switch t {
	case TypeLogin:
		return "LOGIN"
	case TypeLoginSuccess:
		return "LOGIN_SUCCESS"
	case TypeError:
		return "ERROR"
	case TypeBoard:
		return "BOARD"
	case TypeChangeTile:
		return "CHANGE_TILE"
	case TypeTileChanged:
		return "TILE_CHANGED"
	default:
		return fmt.Sprintf("Type(0x%02x)", uint8(t))
	}
}

// Envelope is one protocol message. Which payload field is meaningful depends on Type:
//
//	LOGIN, LOGIN_SUCCESS, ERROR → Text
//	BOARD                       → Board
//	CHANGE_TILE, TILE_CHANGED   → Cell
type Envelope struct {
	Type  Type
	Text  string
	Board board.Snapshot
	Cell  board.Cell
}

// Login builds a LOGIN envelope carrying the requested identity.
func Login(name string) Envelope {
	return Envelope{Type: TypeLogin, Text: name}
}

// LoginSuccess builds the LOGIN_SUCCESS envelope.
func LoginSuccess() Envelope {
	return Envelope{Type: TypeLoginSuccess, Text: "LOGIN_SUCCESS"}
}

// Error builds an ERROR envelope.
func Error(message string) Envelope {
	return Envelope{Type: TypeError, Text: message}
}

// Board builds a BOARD envelope carrying a full snapshot.
func Board(s board.Snapshot) Envelope {
	return Envelope{Type: TypeBoard, Board: s}
}

// ChangeTile builds a CHANGE_TILE request.
func ChangeTile(c board.Cell) Envelope {
	return Envelope{Type: TypeChangeTile, Cell: c}
}

// TileChanged builds a TILE_CHANGED broadcast.
func TileChanged(c board.Cell) Envelope {
	return Envelope{Type: TypeTileChanged, Cell: c}
}

// MarshalPayload encodes the payload of env (without the frame header).
//
// Payload layouts:
//
//	text:  string
//	cell:  svarint row, svarint col, byte color, string owner, svarint timestamp
//	board: uvarint dimension, then dimension² × (byte color, string owner, svarint timestamp)
//
// Board cells omit coordinates; they are implied by row-major order.
func MarshalPayload(env Envelope) ([]byte, error) {
	switch env.Type {
	case TypeLogin, TypeLoginSuccess, TypeError:
		e := NewEncoder(len(env.Text) + 2)
		e.WriteString(env.Text)
		return e.Bytes(), nil
	case TypeChangeTile, TypeTileChanged:
		e := NewEncoder(32 + len(env.Cell.Owner))
		writeCell(e, env.Cell)
		return e.Bytes(), nil
	case TypeBoard:
		s := env.Board
		if s.Dimension < 1 || len(s.Cells) != s.Dimension*s.Dimension {
			return nil, fmt.Errorf("%w: dimension %d with %d cells", ErrBadDimension, s.Dimension, len(s.Cells))
		}
		e := NewEncoder(8 + len(s.Cells)*4)
		e.WriteUvarint(uint64(s.Dimension))
		for _, c := range s.Cells {
			e.PutByte(byte(c.Color))
			e.WriteString(c.Owner)
			e.WriteSvarint(c.Timestamp)
		}
		return e.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
}

// UnmarshalPayload decodes a payload of the given type.
func UnmarshalPayload(t Type, payload []byte) (Envelope, error) {
	d := NewDecoder(payload)
	env := Envelope{Type: t}

	switch t {
	case TypeLogin, TypeLoginSuccess, TypeError:
		text, err := d.ReadString()
		if err != nil {
			return Envelope{}, fmt.Errorf("decode %s: %w", t, err)
		}
		env.Text = text
	case TypeChangeTile, TypeTileChanged:
		c, err := readCell(d)
		if err != nil {
			return Envelope{}, fmt.Errorf("decode %s: %w", t, err)
		}
		env.Cell = c
	case TypeBoard:
		s, err := readBoard(d)
		if err != nil {
			return Envelope{}, fmt.Errorf("decode %s: %w", t, err)
		}
		env.Board = s
	default:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	if d.Remaining() != 0 {
		return Envelope{}, fmt.Errorf("decode %s: %w", t, ErrTrailingData)
	}
	return env, nil
}

func writeCell(e *Encoder, c board.Cell) {
	e.WriteSvarint(int64(c.Row))
	e.WriteSvarint(int64(c.Col))
	e.PutByte(byte(c.Color))
	e.WriteString(c.Owner)
	e.WriteSvarint(c.Timestamp)
}

func readCell(d *Decoder) (board.Cell, error) {
	row, err := d.ReadSvarint()
	if err != nil {
		return board.Cell{}, err
	}
	col, err := d.ReadSvarint()
	if err != nil {
		return board.Cell{}, err
	}
	color, err := readColor(d)
	if err != nil {
		return board.Cell{}, err
	}
	owner, err := d.ReadString()
	if err != nil {
		return board.Cell{}, err
	}
	ts, err := d.ReadSvarint()
	if err != nil {
		return board.Cell{}, err
	}
	return board.Cell{Row: int(row), Col: int(col), Color: color, Owner: owner, Timestamp: ts}, nil
}

func readBoard(d *Decoder) (board.Snapshot, error) {
	dim, err := d.ReadUvarint()
	if err != nil {
		return board.Snapshot{}, err
	}
	// Each cell needs at least 3 bytes (color, empty owner, zero timestamp),
	// so a dimension the payload cannot hold is rejected before allocating.
	if dim == 0 || dim > uint64(d.Remaining()) || dim*dim > uint64(d.Remaining())/3 {
		return board.Snapshot{}, fmt.Errorf("%w: %d", ErrBadDimension, dim)
	}
	n := int(dim)
	cells := make([]board.Cell, n*n)
	for i := range cells {
		color, err := readColor(d)
		if err != nil {
			return board.Snapshot{}, err
		}
		owner, err := d.ReadString()
		if err != nil {
			return board.Snapshot{}, err
		}
		ts, err := d.ReadSvarint()
		if err != nil {
			return board.Snapshot{}, err
		}
		cells[i] = board.Cell{Row: i / n, Col: i % n, Color: color, Owner: owner, Timestamp: ts}
	}
	return board.Snapshot{Dimension: n, Cells: cells}, nil
}

func readColor(d *Decoder) (palette.Color, error) {
	b, err := d.ReadByte()
	if err != nil {
		return 0, err
	}
	c := palette.Color(b)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidColor, b)
	}
	return c, nil
}
