/*
Package xdrfile reads and writes GROMACS trajectory files in the xtc
(compressed, lossy) and trr (full precision, lossless) formats, both built
on the XDR big-endian binary encoding.

The format codecs live in the subpackages xtc and trr. This package holds
what they share: the Frame container, the Trajectory interface, the frame
scanner, and the error interfaces.

Basic usage:

	traj, err := xtc.Open("md.xtc")
	if err != nil {
		// handle
	}
	defer traj.Close()
	natoms, _ := traj.NumAtoms()
	frame := xdrfile.WithCapacity(natoms)
	for {
		err := traj.Read(frame)
		if xdrfile.IsLastFrame(err) {
			break
		}
		if err != nil {
			// handle
		}
		// use frame; it is overwritten by the next Read
	}

Or with the scanner:

	it := xdrfile.NewIter(traj)
	for it.Next() {
		frame := it.Frame() // valid until the next call to it.Next
	}
	if err := it.Err(); err != nil {
		// handle
	}

The frame yielded by the scanner is reused between advances. Callers that
keep frames around must Clone them.
*/
package xdrfile
