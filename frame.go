package xdrfile

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Frame holds the atomic state of one trajectory step. It is created once
// by the caller and overwritten in place by successive reads; the arrays
// are only reallocated when the atom count changes between frames.
//
// Velocities and Forces are nil unless the frame carries them (trr only).
// A zero Box matrix stands for "no box": trr writes no box block for it,
// and reading a boxless trr frame leaves it zeroed.
type Frame struct {
	Step       int
	Time       float32
	Lambda     float32 //trr coupling parameter, zero for xtc
	Box        [3][3]float32
	Coords     [][3]float32
	Velocities [][3]float32
	Forces     [][3]float32
}

// NewFrame returns an empty frame holding no atoms.
func NewFrame() *Frame {
	return new(Frame)
}

// WithCapacity returns a frame with coordinates allocated, and zeroed,
// for natoms atoms.
func WithCapacity(natoms int) *Frame {
	f := new(Frame)
	f.Coords = make([][3]float32, natoms)
	return f
}

// Len returns the number of atoms in the frame.
func (f *Frame) Len() int {
	return len(f.Coords)
}

// Resize grows or shrinks the frame to exactly natoms atoms. New entries
// are zeroed. Velocities and Forces follow only if already present.
// It does nothing when the size already matches, which is the common case
// of a constant atom count along a trajectory.
func (f *Frame) Resize(natoms int) {
	f.Coords = resizeVecs(f.Coords, natoms)
	if f.Velocities != nil {
		f.Velocities = resizeVecs(f.Velocities, natoms)
	}
	if f.Forces != nil {
		f.Forces = resizeVecs(f.Forces, natoms)
	}
}

func resizeVecs(v [][3]float32, n int) [][3]float32 {
	if n <= cap(v) {
		old := len(v)
		v = v[:n]
		for i := old; i < n; i++ {
			v[i] = [3]float32{}
		}
		return v
	}
	w := make([][3]float32, n)
	copy(w, v)
	return w
}

// Clone returns a deep copy of the frame. Needed by callers that keep
// frames around while iterating, since the iteration buffer is reused.
func (f *Frame) Clone() *Frame {
	c := new(Frame)
	*c = *f
	c.Coords = append([][3]float32(nil), f.Coords...)
	if f.Velocities != nil {
		c.Velocities = append([][3]float32(nil), f.Velocities...)
	}
	if f.Forces != nil {
		c.Forces = append([][3]float32(nil), f.Forces...)
	}
	return c
}

// Dense copies the coordinates into a new gonum natoms x 3 matrix, the
// container the analysis libraries work with.
func (f *Frame) Dense() *mat.Dense {
	n := f.Len()
	d := mat.NewDense(n, 3, nil)
	for i, v := range f.Coords {
		d.Set(i, 0, float64(v[0]))
		d.Set(i, 1, float64(v[1]))
		d.Set(i, 2, float64(v[2]))
	}
	return d
}

// SetDense overwrites the frame coordinates from a natoms x 3 gonum
// matrix, resizing the frame to match.
func (f *Frame) SetDense(d *mat.Dense) error {
	r, c := d.Dims()
	if c != 3 {
		return fmt.Errorf("xdrfile: coordinate matrix must have 3 columns, got %d", c)
	}
	f.Resize(r)
	for i := 0; i < r; i++ {
		f.Coords[i][0] = float32(d.At(i, 0))
		f.Coords[i][1] = float32(d.At(i, 1))
		f.Coords[i][2] = float32(d.At(i, 2))
	}
	return nil
}
