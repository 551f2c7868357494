package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	StartOfMessage byte = 0x01
	EndOfMessage   byte = 0x02

	// ProtocolTagVal is the only protocol id this codec speaks.
	ProtocolTagVal byte = 1

	headerLen = 4

	DefaultMaxFrameSize = 2048
)

// findFrameStart returns the index of the first start marker whose
// protocol byte matches, or has not arrived yet.
func findFrameStart(buf []byte, protocol byte) int {
	offset := 0
	for offset < len(buf) {
		idx := bytes.IndexByte(buf[offset:], StartOfMessage)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		if start+1 >= len(buf) || buf[start+1] == protocol {
			return start
		}
		offset = start + 1
	}

	return -1
}

// FindFrameEnd reports the index of the end marker of the first complete
// frame in buf, or -1 when there is none. Bytes before the first start
// marker are ignored. buf is not modified.
func FindFrameEnd(buf []byte, protocol byte) int {
	start := findFrameStart(buf, protocol)
	if start < 0 {
		return -1
	}
	end := bytes.IndexByte(buf[start+1:], EndOfMessage)
	if end < 0 {
		return -1
	}

	return start + 1 + end
}

// FrameBuffer accumulates raw transport bytes and hands out whole frames.
type FrameBuffer struct {
	protocol byte
	max      int
	buf      []byte
}

func NewFrameBuffer(protocol byte, maxSize int) *FrameBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	return &FrameBuffer{protocol: protocol, max: maxSize, buf: make([]byte, 0, maxSize)}
}

// Write appends bytes read from the transport.
func (b *FrameBuffer) Write(p []byte) error {
	b.buf = append(b.buf, p...)
	if len(b.buf) <= b.max {
		return nil
	}
	if FindFrameEnd(b.buf, b.protocol) >= 0 {
		return nil
	}
	b.buf = b.buf[:0]

	return fmt.Errorf("%w: more than %d bytes without a frame end", ErrFrameTooLarge, b.max)
}

// Next removes and returns the first complete frame, including markers.
func (b *FrameBuffer) Next() ([]byte, bool) {
	end := FindFrameEnd(b.buf, b.protocol)
	if end < 0 {
		if findFrameStart(b.buf, b.protocol) < 0 {
			b.buf = b.buf[:0]
		}
		return nil, false
	}
	start := findFrameStart(b.buf, b.protocol)
	frame := append([]byte(nil), b.buf[start:end+1]...)
	remaining := copy(b.buf, b.buf[end+1:])
	b.buf = b.buf[:remaining]

	return frame, true
}

// Len is the number of buffered bytes not yet returned as frames.
func (b *FrameBuffer) Len() int {
	return len(b.buf)
}

func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
}

// DescribeFrame renders a raw frame for logs with control bytes spelled out.
func DescribeFrame(frame []byte) string {
	var sb strings.Builder
	body := frame
	if len(frame) >= headerLen && frame[0] == StartOfMessage {
		fmt.Fprintf(&sb, "<START p=%d type=%c%c>", frame[1], printable(frame[2]), printable(frame[3]))
		body = frame[headerLen:]
	}
	for _, ch := range body {
		switch {
		case ch == StartOfMessage:
			sb.WriteString("<START>")
		case ch == EndOfMessage:
			sb.WriteString("<END>")
		case ch < 0x20 || ch > 0x7E:
			fmt.Fprintf(&sb, "\\x%02x", ch)
		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String()
}

func printable(ch byte) byte {
	if ch < 0x20 || ch > 0x7E {
		return '?'
	}

	return ch
}
