package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	wcferrors "wcferry/pkg/errors"
)

// Writer accumulates schema fields into a payload buffer. Fields are written
// in declared order with fixed widths; there is no field tagging on the wire.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with a small preallocated buffer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded payload.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) Uint64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

func (w *Writer) Int64(v int64) *Writer {
	return w.Uint64(uint64(v))
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

// String writes a uint32 byte length followed by the UTF-8 bytes.
func (w *Writer) String(v string) *Writer {
	w.Uint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

// Bytes32 writes a uint32 length followed by the raw bytes.
func (w *Writer) Bytes32(v []byte) *Writer {
	w.Uint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

// Count writes a uint32 element count ahead of a list.
func (w *Writer) Count(n int) *Writer {
	return w.Uint32(uint32(n))
}

// Reader consumes schema fields from a payload buffer. The first failed read
// sets a sticky error; subsequent reads return zero values. Extra bytes left
// after the fields a decoder knows about are not an error.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over the given payload.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the sticky decode error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int {
	if r.err != nil {
		return 0
	}
	return len(r.buf) - r.off
}

func (r *Reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s at offset %d", wcferrors.ErrFormat, what, r.off)
	}
}

func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.fail(what)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1, "uint8")
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2, "uint16")
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4, "uint32")
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8, "uint64")
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) String() string {
	n := r.Uint32()
	if r.err != nil {
		return ""
	}
	if n > math.MaxInt32 || int(n) > len(r.buf)-r.off {
		r.fail("string")
		return ""
	}
	return string(r.take(int(n), "string"))
}

func (r *Reader) Bytes32() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if n > math.MaxInt32 || int(n) > len(r.buf)-r.off {
		r.fail("bytes")
		return nil
	}
	b := r.take(int(n), "bytes")
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Count reads a uint32 element count ahead of a list. It rejects counts that
// could not possibly fit in the remaining bytes so a corrupt prefix cannot
// drive huge allocations.
func (r *Reader) Count() int {
	n := r.Uint32()
	if r.err != nil {
		return 0
	}
	if int64(n) > int64(len(r.buf)-r.off) {
		r.fail("count")
		return 0
	}
	return int(n)
}
