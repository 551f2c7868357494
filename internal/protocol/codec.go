package protocol

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/skobkin/menulink/internal/commands"
)

// Converter turns one command type into tag fields and back.
type Converter struct {
	Encode func(w *TagWriter, cmd commands.MenuCommand) error
	Decode func(t TagValues) (commands.MenuCommand, error)
}

// TagValCodec encodes commands into tag-value frames. The zero value has no
// converters; use NewTagValCodec for the full set.
type TagValCodec struct {
	mu         sync.RWMutex
	converters map[commands.CommandType]Converter
}

func NewTagValCodec() *TagValCodec {
	c := &TagValCodec{converters: make(map[commands.CommandType]Converter)}
	registerDefaults(c)

	return c
}

// Register adds or replaces the converter for a command type.
func (c *TagValCodec) Register(ct commands.CommandType, conv Converter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.converters == nil {
		c.converters = make(map[commands.CommandType]Converter)
	}
	c.converters[ct] = conv
}

func (c *TagValCodec) converter(ct commands.CommandType) (Converter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.converters[ct]

	return conv, ok
}

// Encode produces a complete frame, start and end markers included.
func (c *TagValCodec) Encode(cmd commands.MenuCommand, protocol byte) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrUnencodable)
	}
	if protocol != ProtocolTagVal {
		return nil, fmt.Errorf("%w: protocol %d", ErrNoConverter, protocol)
	}
	ct := cmd.CommandType()
	conv, ok := c.converter(ct)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoConverter, ct)
	}

	var w TagWriter
	if err := conv.Encode(&w, cmd); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ct, err)
	}
	body := w.Bytes()
	out := make([]byte, 0, headerLen+len(body)+1)
	out = append(out, StartOfMessage, protocol)
	out = binary.BigEndian.AppendUint16(out, uint16(ct))
	out = append(out, body...)
	out = append(out, EndOfMessage)

	return out, nil
}

// Decode parses one frame as returned by FrameBuffer.Next.
func (c *TagValCodec) Decode(frame []byte) (commands.MenuCommand, error) {
	if len(frame) < headerLen+1 || frame[0] != StartOfMessage || frame[len(frame)-1] != EndOfMessage {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, DescribeFrame(frame))
	}
	if frame[1] != ProtocolTagVal {
		return nil, fmt.Errorf("%w: protocol %d", ErrUnknownMessage, frame[1])
	}
	ct := commands.CommandType(binary.BigEndian.Uint16(frame[2:headerLen]))
	conv, ok := c.converter(ct)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, ct)
	}
	tags, err := ParseTags(frame[headerLen : len(frame)-1])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ct, err)
	}
	cmd, err := conv.Decode(tags)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ct, err)
	}

	return cmd, nil
}

// typedConverter adapts a pair of functions over a concrete command type.
func typedConverter[C commands.MenuCommand](enc func(*TagWriter, C) error, dec func(TagValues) (C, error)) Converter {
	return Converter{
		Encode: func(w *TagWriter, cmd commands.MenuCommand) error {
			typed, ok := cmd.(C)
			if !ok {
				return fmt.Errorf("%w: unexpected %T", ErrUnencodable, cmd)
			}
			return enc(w, typed)
		},
		Decode: func(t TagValues) (commands.MenuCommand, error) {
			cmd, err := dec(t)
			if err != nil {
				return nil, err
			}
			return cmd, nil
		},
	}
}
