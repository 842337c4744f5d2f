package xdrfile

// Trajectory is the interface shared by the xtc and trr file handles.
// A handle owns its file exclusively and reads or writes frames
// sequentially; it is not safe for concurrent use.
type Trajectory interface {

	//Is the trajectory ready to be read from or written to?
	Readable() bool

	//Read decodes the next frame of the trajectory into frame, resizing
	//it if the atom count differs. When the trajectory ends cleanly at a
	//frame boundary it returns an error satisfying LastFrameError, which
	//is a termination signal, not a failure.
	Read(frame *Frame) error

	//Write encodes frame and appends it to the trajectory.
	Write(frame *Frame) error

	//NumAtoms returns the number of atoms per frame without consuming
	//any frame.
	NumAtoms() (int, error)

	//Flush pushes buffered writes down to the file.
	Flush() error

	//Close releases the underlying file. It is safe to call more than once.
	Close() error
}

// ErrKind classifies trajectory errors beyond their message, so callers
// can react to the category without string matching.
type ErrKind int

const (
	KindNone       ErrKind = iota
	KindIO                 //the underlying file operation failed
	KindFormat             //magic number or structural mismatch, file unusable
	KindTruncated          //the file ends in the middle of a record
	KindCorrupt            //declared lengths or decode invariants violated
	KindOutOfRange         //coordinate too large to compress at this precision
	KindPrecision          //trr element width other than 4 or 8 bytes
)

// Error is the interface all errors of this library implement. The Decorate
// method adds information (normally, the name of a function in the calling
// stack) to the error without changing its type, and returns the current
// decoration slice.
type Error interface {
	error
	Decorate(string) []string
}

// TrajError is the interface for trajectory errors.
type TrajError interface {
	Error
	Critical() bool
	FileName() string
	Format() string
	Kind() ErrKind
}

// LastFrameError signals that the previous frame was the last one in the
// trajectory. It is not an actual error, and its only extra method does
// nothing; it exists so the signal can be filtered in a type switch.
type LastFrameError interface {
	TrajError
	NormalLastFrameTermination()
}

// IsLastFrame returns true if err is the clean end-of-trajectory signal.
func IsLastFrame(err error) bool {
	_, ok := err.(LastFrameError)
	return ok
}

// KindOf returns the ErrKind of a trajectory error, or KindNone if err is
// nil or comes from outside this library.
func KindOf(err error) ErrKind {
	if te, ok := err.(TrajError); ok {
		return te.Kind()
	}
	return KindNone
}
