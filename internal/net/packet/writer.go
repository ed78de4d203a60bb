package packet

import (
	"encoding/binary"
	"math"
)

// Writer builds an outbound packet. All multi-byte writes are little-endian.
// The final Bytes() output is padded to a 4-byte boundary, matching the
// framing the teacher's wire protocol uses.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteC(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteI8 writes 1 signed byte.
func (w *Writer) WriteI8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI16 writes 2 bytes little-endian signed.
func (w *Writer) WriteI16(v int16) {
	w.WriteH(uint16(v))
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteDU writes 4 bytes little-endian unsigned.
func (w *Writer) WriteDU(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteF32 writes a 4-byte little-endian IEEE-754 float.
func (w *Writer) WriteF32(v float32) {
	w.WriteDU(math.Float32bits(v))
}

// WriteS writes a null-terminated UTF-8 string.
func (w *Writer) WriteS(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// SetOpcode overwrites the first byte already reserved by WriteC, letting a
// caller decide a message's identity after it has written the message's
// payload (the witness delta encoder doesn't know which of the 24 messages
// it's producing until it has computed the update-flag combination).
func (w *Writer) SetOpcode(op byte) {
	if len(w.buf) > 0 {
		w.buf[0] = op
	}
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the packet content padded to a 4-byte boundary.
func (w *Writer) Bytes() []byte {
	size := len(w.buf)
	padding := size % 4
	if padding != 0 {
		for i := padding; i < 4; i++ {
			w.buf = append(w.buf, 0)
		}
	}
	return w.buf
}

// RawBytes returns the packet content without padding (for the init packet).
func (w *Writer) RawBytes() []byte {
	return w.buf
}

// Len returns the current unpadded length.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset truncates the writer for reuse from a pool.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}
