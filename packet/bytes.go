package packet

import "encoding/binary"

var le = binary.LittleEndian

type writer struct {
	b []byte
}

func (w *writer) u8(v uint8) {
	w.b = append(w.b, v)
}

func (w *writer) u16(v uint16) {
	w.b = le.AppendUint16(w.b, v)
}

func (w *writer) i16(v int16) {
	w.u16(uint16(v))
}

func (w *writer) u32(v uint32) {
	w.b = le.AppendUint32(w.b, v)
}

func (w *writer) i32(v int32) {
	w.u32(uint32(v))
}

func (w *writer) u48(v int64) {
	w.b = append(w.b,
		byte(v), byte(v>>8), byte(v>>16),
		byte(v>>24), byte(v>>32), byte(v>>40))
}

func (w *writer) bytes(b []byte) {
	w.b = append(w.b, b...)
}

// reader never panics on short input: reads past the end return zero and
// set short.
type reader struct {
	b     []byte
	off   int
	short bool
}

func (r *reader) next(n int) []byte {
	if r.short || r.off+n > len(r.b) {
		r.short = true
		return make([]byte, n)
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	return r.next(1)[0]
}

func (r *reader) u16() uint16 {
	return le.Uint16(r.next(2))
}

func (r *reader) i16() int16 {
	return int16(r.u16())
}

func (r *reader) u32() uint32 {
	return le.Uint32(r.next(4))
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) u48() int64 {
	b := r.next(6)
	return int64(b[0]) | int64(b[1])<<8 | int64(b[2])<<16 |
		int64(b[3])<<24 | int64(b[4])<<32 | int64(b[5])<<40
}

func (r *reader) skip(n int) {
	r.next(n)
}

func (r *reader) bytes(n int) []byte {
	b := r.next(n)
	out := make([]byte, n)
	copy(out, b)
	return out
}
