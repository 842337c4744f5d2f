package xdrfile

// Iter walks a trajectory frame by frame in the manner of bufio.Scanner.
// All frames are decoded into one shared buffer: the frame returned by
// Frame is valid only until the next call to Next, and callers that keep
// frames must Clone them. The sequence is finite and not restartable.
type Iter struct {
	traj  Trajectory
	frame *Frame
	err   error
	done  bool
}

// NewIter returns an iterator over traj, starting at its current
// position. The trajectory is still owned by the caller and must be
// closed by it.
func NewIter(traj Trajectory) *Iter {
	return &Iter{traj: traj, frame: NewFrame()}
}

// Next advances to the next frame. It returns false when the trajectory
// ends, either cleanly or on error; Err tells the two apart.
func (it *Iter) Next() bool {
	if it.done {
		return false
	}
	if err := it.traj.Read(it.frame); err != nil {
		it.done = true
		if !IsLastFrame(err) {
			it.err = err
		}
		return false
	}
	return true
}

// Frame returns the shared frame holding the last decoded step.
func (it *Iter) Frame() *Frame {
	return it.frame
}

// Err returns the error that terminated the iteration, or nil if it ended
// at a clean end of trajectory (or has not ended yet).
func (it *Iter) Err() error {
	return it.err
}
