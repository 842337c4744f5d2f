package xdrfile

import (
	"bytes"
	"io"
	"testing"
)

func TestIsCompressed(t *testing.T) {
	yes := []string{"a.xtc.gz", "b.trr.zst", "c.xtc.zstd", "D.XTC.GZ"}
	no := []string{"a.xtc", "b.trr", "gz", "a.gz.xtc"}
	for _, n := range yes {
		if !IsCompressed(n) {
			t.Errorf("IsCompressed(%q) = false", n)
		}
	}
	for _, n := range no {
		if IsCompressed(n) {
			t.Errorf("IsCompressed(%q) = true", n)
		}
	}
}

func roundTripContainer(t *testing.T, name string, payload []byte) {
	t.Helper()
	var b bytes.Buffer
	w, err := NewCompressor(name, &b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := NewDecompressor(name, &b)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("%s: payload did not survive the container", name)
	}
}

func TestContainers(t *testing.T) {
	payload := bytes.Repeat([]byte("atom coordinates "), 100)
	for _, name := range []string{"t.xtc", "t.xtc.gz", "t.xtc.zst", "t.xtc.zstd"} {
		roundTripContainer(t, name, payload)
	}
}

func TestPlainPassthrough(t *testing.T) {
	var b bytes.Buffer
	w, err := NewCompressor("plain.xtc", &b)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("raw"))
	w.Close()
	if b.String() != "raw" {
		t.Errorf("uncompressed name must pass bytes through, got %q", b.String())
	}
}
