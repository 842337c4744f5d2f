package xdr

import (
	"bytes"
	"io"
	"testing"
)

func TestIntFloatRoundTrip(t *testing.T) {
	var b bytes.Buffer
	w := NewWriter(&b)
	ints := []int32{0, 1, -1, 1995, 1993, -2147483648, 2147483647}
	for _, v := range ints {
		if err := w.Int(v); err != nil {
			t.Fatal(err)
		}
	}
	floats := []float32{0, 1.5, -0.001, 3.4e38}
	if err := w.Floats(floats); err != nil {
		t.Fatal(err)
	}
	if err := w.Double(-1.0000000001); err != nil {
		t.Fatal(err)
	}
	r := NewReader(&b)
	for _, want := range ints {
		got, err := r.Int()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("int round trip: got %d, want %d", got, want)
		}
	}
	got := make([]float32, len(floats))
	if err := r.Floats(got); err != nil {
		t.Fatal(err)
	}
	for i, want := range floats {
		if got[i] != want {
			t.Errorf("float round trip: got %v, want %v", got[i], want)
		}
	}
	d, err := r.Double()
	if err != nil {
		t.Fatal(err)
	}
	if d != -1.0000000001 {
		t.Errorf("double round trip: got %v", d)
	}
}

func TestBigEndianLayout(t *testing.T) {
	var b bytes.Buffer
	w := NewWriter(&b)
	if err := w.Int(1995); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x00, 0x07, 0xcb}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("int32 1995 encoded as % x, want % x", b.Bytes(), want)
	}
}

func TestOpaquePadding(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 12} {
		var b bytes.Buffer
		w := NewWriter(&b)
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		if err := w.Opaque(data); err != nil {
			t.Fatal(err)
		}
		if b.Len()%4 != 0 {
			t.Errorf("opaque of %d bytes wrote %d bytes, not 4-aligned", n, b.Len())
		}
		r := NewReader(&b)
		back := make([]byte, n)
		if err := r.Opaque(back); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(back, data) {
			t.Errorf("opaque round trip of %d bytes failed", n)
		}
		if b.Len() != 0 {
			t.Errorf("opaque of %d bytes left %d bytes unread", n, b.Len())
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	var b bytes.Buffer
	w := NewWriter(&b)
	if err := w.String("GMX_trn_file"); err != nil {
		t.Fatal(err)
	}
	//4 length bytes plus 12 content bytes, already aligned
	if b.Len() != 16 {
		t.Errorf("counted string wrote %d bytes, want 16", b.Len())
	}
	r := NewReader(&b)
	s, err := r.String()
	if err != nil {
		t.Fatal(err)
	}
	if s != "GMX_trn_file" {
		t.Errorf("string round trip: got %q", s)
	}
}

func TestTruncation(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, err := r.Int(); err != io.EOF {
		t.Errorf("empty stream: got %v, want io.EOF", err)
	}
	r = NewReader(bytes.NewReader([]byte{0x00, 0x01}))
	if _, err := r.Int(); err != io.ErrUnexpectedEOF {
		t.Errorf("partial int: got %v, want io.ErrUnexpectedEOF", err)
	}
	r = NewReader(bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03, 0x04}))
	if _, err := r.Double(); err != io.ErrUnexpectedEOF {
		t.Errorf("partial double: got %v, want io.ErrUnexpectedEOF", err)
	}
}
