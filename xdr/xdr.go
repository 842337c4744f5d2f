/*
Package xdr implements the primitive layer of the xtc/trr codecs: fixed
width big-endian integers, floats and doubles, opaque byte blocks padded
to a 4-byte boundary, and counted strings, read from and written to a
sequential byte stream.

Truncation is reported the way encoding/binary reports it: io.EOF when the
stream ends exactly at a value boundary, io.ErrUnexpectedEOF when it ends
inside a value. The format packages rely on that distinction to separate
a clean end of trajectory from a truncated frame.
*/
package xdr

import (
	"encoding/binary"
	"io"
)

// Reader decodes XDR primitives from an io.Reader.
type Reader struct {
	r   io.Reader
	pad [4]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Int reads one big-endian int32.
func (r *Reader) Int() (int32, error) {
	var v int32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

// Ints fills p with big-endian int32 values.
func (r *Reader) Ints(p []int32) error {
	return binary.Read(r.r, binary.BigEndian, p)
}

// Float reads one big-endian IEEE float32.
func (r *Reader) Float() (float32, error) {
	var v float32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

// Floats fills p with big-endian float32 values.
func (r *Reader) Floats(p []float32) error {
	return binary.Read(r.r, binary.BigEndian, p)
}

// Vecs fills p with big-endian float32 triples.
func (r *Reader) Vecs(p [][3]float32) error {
	return binary.Read(r.r, binary.BigEndian, p)
}

// Double reads one big-endian IEEE float64.
func (r *Reader) Double() (float64, error) {
	var v float64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

// Doubles fills p with big-endian float64 values.
func (r *Reader) Doubles(p []float64) error {
	return binary.Read(r.r, binary.BigEndian, p)
}

// Opaque fills p from the stream and discards the zero padding that
// aligns the block to a 4-byte boundary.
func (r *Reader) Opaque(p []byte) error {
	if _, err := io.ReadFull(r.r, p); err != nil {
		return err
	}
	if n := pad4(len(p)); n > 0 {
		if _, err := io.ReadFull(r.r, r.pad[:n]); err != nil {
			return err
		}
	}
	return nil
}

// String reads an XDR counted string: an int32 byte count followed by the
// bytes, padded to a 4-byte boundary.
func (r *Reader) String() (string, error) {
	n, err := r.Int()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if err := r.Opaque(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Writer encodes XDR primitives to an io.Writer.
type Writer struct {
	w   io.Writer
	pad [4]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Int writes one big-endian int32.
func (w *Writer) Int(v int32) error {
	return binary.Write(w.w, binary.BigEndian, v)
}

// Ints writes big-endian int32 values.
func (w *Writer) Ints(p []int32) error {
	return binary.Write(w.w, binary.BigEndian, p)
}

// Float writes one big-endian IEEE float32.
func (w *Writer) Float(v float32) error {
	return binary.Write(w.w, binary.BigEndian, v)
}

// Floats writes big-endian float32 values.
func (w *Writer) Floats(p []float32) error {
	return binary.Write(w.w, binary.BigEndian, p)
}

// Vecs writes big-endian float32 triples.
func (w *Writer) Vecs(p [][3]float32) error {
	return binary.Write(w.w, binary.BigEndian, p)
}

// Double writes one big-endian IEEE float64.
func (w *Writer) Double(v float64) error {
	return binary.Write(w.w, binary.BigEndian, v)
}

// Doubles writes big-endian float64 values.
func (w *Writer) Doubles(p []float64) error {
	return binary.Write(w.w, binary.BigEndian, p)
}

// Opaque writes p followed by zero padding up to a 4-byte boundary.
func (w *Writer) Opaque(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return err
	}
	if n := pad4(len(p)); n > 0 {
		w.pad = [4]byte{}
		if _, err := w.w.Write(w.pad[:n]); err != nil {
			return err
		}
	}
	return nil
}

// String writes an XDR counted string.
func (w *Writer) String(s string) error {
	if err := w.Int(int32(len(s))); err != nil {
		return err
	}
	return w.Opaque([]byte(s))
}

// pad4 returns how many padding bytes follow a block of n bytes.
func pad4(n int) int {
	if r := n % 4; r != 0 {
		return 4 - r
	}
	return 0
}
