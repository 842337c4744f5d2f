package xdrfile

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestResize(t *testing.T) {
	f := WithCapacity(4)
	for i := range f.Coords {
		f.Coords[i] = [3]float32{float32(i), 0, 0}
	}
	f.Resize(2)
	if f.Len() != 2 {
		t.Fatalf("Len = %d after shrinking to 2", f.Len())
	}
	kept := f.Coords
	f.Resize(4)
	if f.Len() != 4 {
		t.Fatalf("Len = %d after growing back to 4", f.Len())
	}
	if &f.Coords[0] != &kept[0] {
		t.Error("growing within capacity must not reallocate")
	}
	if f.Coords[2] != ([3]float32{}) || f.Coords[3] != ([3]float32{}) {
		t.Error("regrown entries must be zeroed")
	}
	if f.Velocities != nil {
		t.Error("Resize must not conjure velocities")
	}
	f.Velocities = make([][3]float32, 4)
	f.Resize(6)
	if len(f.Velocities) != 6 {
		t.Errorf("velocities length %d after Resize(6)", len(f.Velocities))
	}
}

func TestClone(t *testing.T) {
	f := WithCapacity(3)
	f.Step = 10
	f.Time = 0.5
	f.Coords[1] = [3]float32{1, 2, 3}
	f.Velocities = make([][3]float32, 3)
	f.Velocities[0] = [3]float32{9, 9, 9}
	c := f.Clone()
	c.Coords[1] = [3]float32{7, 7, 7}
	c.Velocities[0] = [3]float32{0, 0, 0}
	if f.Coords[1] != ([3]float32{1, 2, 3}) {
		t.Error("clone shares coordinate storage with the original")
	}
	if f.Velocities[0] != ([3]float32{9, 9, 9}) {
		t.Error("clone shares velocity storage with the original")
	}
	if c.Step != 10 || c.Time != 0.5 {
		t.Error("clone lost the scalar fields")
	}
	f2 := NewFrame()
	c2 := f2.Clone()
	if c2.Velocities != nil || c2.Forces != nil {
		t.Error("cloning a bare frame must not allocate optional arrays")
	}
}

func TestDenseRoundTrip(t *testing.T) {
	f := WithCapacity(2)
	f.Coords[0] = [3]float32{1, 2, 3}
	f.Coords[1] = [3]float32{-4, 5.5, 0}
	d := f.Dense()
	if r, c := d.Dims(); r != 2 || c != 3 {
		t.Fatalf("Dense dims = %dx%d, want 2x3", r, c)
	}
	if d.At(1, 1) != 5.5 {
		t.Errorf("Dense[1,1] = %v, want 5.5", d.At(1, 1))
	}
	g := NewFrame()
	if err := g.SetDense(d); err != nil {
		t.Fatal(err)
	}
	if g.Len() != 2 {
		t.Fatalf("SetDense left %d atoms, want 2", g.Len())
	}
	for i := range f.Coords {
		if g.Coords[i] != f.Coords[i] {
			t.Errorf("atom %d: got %v, want %v", i, g.Coords[i], f.Coords[i])
		}
	}
	if err := g.SetDense(mat.NewDense(2, 4, nil)); err == nil {
		t.Error("SetDense accepted a matrix with 4 columns")
	}
}
