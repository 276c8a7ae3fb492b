// Package cursor implements the primitive reads over the in-memory byte
// views that the container index and typed decoder consume.
package cursor

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	leb128 "github.com/filecoin-project/go-leb128"
)

// maxLEB128Bytes caps LEB128 scanning so a corrupt stream with no
// terminating byte fails fast instead of consuming the whole buffer.
const maxLEB128Bytes = 10

// Cursor is a seekable read-only view over a byte buffer. It never copies
// buf; callers own buf for the lifetime of the Cursor.
type Cursor struct {
	buf []byte
	pos int
}

// New wraps buf in a Cursor positioned at offset 0.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Tell returns the current read offset.
func (c *Cursor) Tell() int { return c.pos }

// Len returns the total size of the underlying buffer.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Reset seeks back to offset 0.
func (c *Cursor) Reset() { c.pos = 0 }

// Skip advances the cursor by n bytes without reading them.
func (c *Cursor) Skip(n int) error {
	if n < 0 || c.pos+n > len(c.buf) {
		return fmt.Errorf("cursor: skip %d bytes at offset %d: %w", n, c.pos, ErrUnderflow)
	}
	c.pos += n
	return nil
}

// ErrUnderflow is returned when a read would run past the end of the buffer.
var ErrUnderflow = fmt.Errorf("read past end of buffer")

// ReadByte reads a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, fmt.Errorf("cursor: read byte at offset %d: %w", c.pos, ErrUnderflow)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadBytes reads and returns a copy of the next n bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("cursor: read %d bytes at offset %d: %w", n, c.pos, ErrUnderflow)
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// ReadBool reads one byte; 0 is false, anything else is true.
func (c *Cursor) ReadBool() (bool, error) {
	b, err := c.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadFloat32 reads a little-endian IEEE-754 single.
func (c *Cursor) ReadFloat32() (float32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadFloat64 reads a little-endian IEEE-754 double.
func (c *Cursor) ReadFloat64() (float64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadUint32BE reads a big-endian uint32.
func (c *Cursor) ReadUint32BE() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadInt32BE reads a big-endian int32.
func (c *Cursor) ReadInt32BE() (int32, error) {
	v, err := c.ReadUint32BE()
	return int32(v), err
}

// ReadUint64BE reads a big-endian uint64.
func (c *Cursor) ReadUint64BE() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadInt64BE reads a big-endian int64.
func (c *Cursor) ReadInt64BE() (int64, error) {
	v, err := c.ReadUint64BE()
	return int64(v), err
}

// ReadULEB128 reads a little-endian base-128 varint: 7 payload bits per
// byte, high bit set means "more bytes follow". The cursor itself locates
// the terminating byte (enforcing the EOF/overflow checks spec.md
// requires); the actual bit assembly is delegated to go-leb128, the same
// routine the rest of this module's corpus round-trips against when
// encoding.
func (c *Cursor) ReadULEB128() (uint64, error) {
	start := c.pos
	for i := 0; ; i++ {
		if i >= maxLEB128Bytes {
			return 0, fmt.Errorf("cursor: uleb128 at offset %d exceeds %d bytes", start, maxLEB128Bytes)
		}
		b, err := c.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("cursor: uleb128 at offset %d: %w", start, ErrUnderflow)
		}
		if b&0x80 == 0 {
			break
		}
	}
	return leb128.ToUInt64(c.buf[start:c.pos]), nil
}

// ReadSLEB128Zigzag reads a uleb128 value and zigzag-decodes it as a
// 64-bit signed integer: (v >> 1) ^ -(v & 1). Despite the name this spec
// inherits from the source, it is not canonical signed LEB128.
func (c *Cursor) ReadSLEB128Zigzag() (int64, error) {
	v, err := c.ReadULEB128()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// ReadHash reads a uleb128 value v and folds it as int32((v&1) ^ (v>>1)).
// This is a distinct, bespoke folding from ReadSLEB128Zigzag's; the
// source applies it verbatim and this cursor preserves it exactly.
func (c *Cursor) ReadHash() (int32, error) {
	v, err := c.ReadULEB128()
	if err != nil {
		return 0, err
	}
	folded := (v & 1) ^ (v >> 1)
	return int32(folded), nil
}

// ReadArrayLen reads a uleb128 value and floor-divides it by two. The low
// bit is reserved/ignored; an odd wire value is tolerated.
func (c *Cursor) ReadArrayLen() (int, error) {
	v, err := c.ReadULEB128()
	if err != nil {
		return 0, err
	}
	return int(v / 2), nil
}

// ReadString reads a uleb128 length prefix followed by that many UTF-8 bytes.
func (c *Cursor) ReadString() (string, error) {
	n, err := c.ReadULEB128()
	if err != nil {
		return "", fmt.Errorf("cursor: string length: %w", err)
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return "", fmt.Errorf("cursor: string body: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("cursor: string at offset %d: invalid utf-8", c.pos-len(b))
	}
	return string(b), nil
}
