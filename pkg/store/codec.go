package store

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"math"
)

// encoder appends little-endian values to a section payload.
type encoder struct {
	b []byte
}

func (e *encoder) u8(v uint8)    { e.b = append(e.b, v) }
func (e *encoder) u32(v uint32)  { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *encoder) i64(v int64)   { e.b = binary.LittleEndian.AppendUint64(e.b, uint64(v)) }
func (e *encoder) f64(v float64) { e.b = binary.LittleEndian.AppendUint64(e.b, math.Float64bits(v)) }
func (e *encoder) count(n int)   { e.u32(uint32(n)) }
func (e *encoder) flag(v bool)   { e.u8(boolByte(v)) }

func (e *encoder) str(s string) {
	e.count(len(s))
	e.b = append(e.b, s...)
}

func (e *encoder) point(p [2]float64) {
	e.f64(p[0])
	e.f64(p[1])
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// decoder reads a section payload. The first failure sticks; later reads
// return zero values so callers can check err once per section.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > len(d.b) {
		d.fail("need %d bytes, have %d", n, len(d.b))
		return nil
	}
	out := d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) i64() int64 {
	if b := d.take(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) f64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// count reads an element count and rejects it if the remaining payload
// cannot hold that many elements of at least minSize bytes.
func (d *decoder) count(minSize int) int {
	n := int(d.u32())
	if d.err == nil && n*minSize > len(d.b) {
		d.fail("count %d exceeds remaining %d bytes", n, len(d.b))
		return 0
	}
	return n
}

func (d *decoder) str() string {
	return string(d.take(d.count(1)))
}

func (d *decoder) flag() bool {
	switch d.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("bad flag byte")
		return false
	}
}

func (d *decoder) point() [2]float64 {
	return [2]float64{d.f64(), d.f64()}
}

// done reports the sticky error or leftover bytes.
func (d *decoder) done() error {
	if d.err == nil && len(d.b) != 0 {
		d.fail("%d trailing bytes", len(d.b))
	}
	return d.err
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash hash.Hash32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash hash.Hash32
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
