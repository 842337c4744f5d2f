/*
Package xtc reads and writes GROMACS xtc trajectory files: XDR encoded,
with coordinates compressed by scaling to integers at a fixed precision
and bit-packing per-frame bounding boxes and small inter-atom deltas.

The compression is lossy: coordinates come back rounded to the frame's
precision (1/1000 nm by default). Frames of nine atoms or fewer are
stored uncompressed, as the historical format dictates.
*/
package xtc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/dnlbauer/xdrfile"
	"github.com/dnlbauer/xdrfile/xdr"
)

// Magic leads every xtc frame.
const Magic = 1995

// DefaultPrecision is the coordinate scale factor used for writing unless
// SetPrecision is called: 1000 means 1/1000 nm resolution.
const DefaultPrecision float32 = 1000.0

// XTC is a handle to an open xtc trajectory file. It owns the file
// exclusively and reads or writes frames sequentially. Filenames ending
// in a compression extension (.gz, .zst, .zstd) are (de)compressed
// transparently.
type XTC struct {
	f         *os.File
	zr        io.ReadCloser
	br        *bufio.Reader
	r         *xdr.Reader
	zw        io.WriteCloser
	bw        *bufio.Writer
	w         *xdr.Writer
	filename  string
	natoms    int //-1 until known
	precision float32
	readable  bool
	writable  bool
	state     codecState
}

// Open opens an xtc file for reading and validates its leading magic
// number. The atom count of the trajectory is available immediately via
// NumAtoms, without consuming any frame.
func Open(name string) (*XTC, error) {
	x := new(XTC)
	if err := x.initRead(name); err != nil {
		return nil, errDecorate(err, "Open")
	}
	return x, nil
}

func (x *XTC) initRead(name string) error {
	x.filename = name
	x.natoms = -1
	x.precision = DefaultPrecision
	f, err := os.Open(name)
	if err != nil {
		return Error{UnableToOpen + ": " + err.Error(), name, nil, true, xdrfile.KindIO}
	}
	zr, err := xdrfile.NewDecompressor(name, f)
	if err != nil {
		f.Close()
		return Error{WrongFormat + ": " + err.Error(), name, nil, true, xdrfile.KindFormat}
	}
	x.f = f
	x.zr = zr
	x.br = bufio.NewReader(zr)
	x.r = xdr.NewReader(x.br)
	head, err := x.br.Peek(8)
	if err != nil {
		x.closeRaw()
		return Error{WrongFormat + ": file shorter than one header", name, nil, true, xdrfile.KindFormat}
	}
	if int32(binary.BigEndian.Uint32(head)) != Magic {
		x.closeRaw()
		return Error{WrongFormat, name, nil, true, xdrfile.KindFormat}
	}
	x.natoms = int(int32(binary.BigEndian.Uint32(head[4:])))
	if x.natoms < 0 {
		x.closeRaw()
		return Error{WrongFormat + ": negative atom count", name, nil, true, xdrfile.KindFormat}
	}
	runtime.SetFinalizer(x, func(x *XTC) {
		x.Close()
	})
	x.readable = true
	return nil
}

// Create opens an xtc file for writing, truncating it if it exists.
func Create(name string) (*XTC, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"Create"}, true, xdrfile.KindIO}
	}
	x, err := initWrite(name, f)
	if err != nil {
		return nil, errDecorate(err, "Create")
	}
	return x, nil
}

// Append opens an xtc file for writing without truncation; frames are
// added after the existing ones. Compressed containers cannot be
// appended to.
func Append(name string) (*XTC, error) {
	if xdrfile.IsCompressed(name) {
		return nil, Error{"cannot append to a compressed trajectory", name, []string{"Append"}, true, xdrfile.KindIO}
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"Append"}, true, xdrfile.KindIO}
	}
	x, err := initWrite(name, f)
	if err != nil {
		return nil, errDecorate(err, "Append")
	}
	return x, nil
}

func initWrite(name string, f *os.File) (*XTC, error) {
	x := new(XTC)
	x.filename = name
	x.natoms = -1
	x.precision = DefaultPrecision
	zw, err := xdrfile.NewCompressor(name, f)
	if err != nil {
		f.Close()
		return nil, Error{UnableToOpen + ": " + err.Error(), name, nil, true, xdrfile.KindIO}
	}
	x.f = f
	x.zw = zw
	x.bw = bufio.NewWriter(zw)
	x.w = xdr.NewWriter(x.bw)
	runtime.SetFinalizer(x, func(x *XTC) {
		x.Close()
	})
	x.writable = true
	return x, nil
}

// Readable returns true if the handle is open for reading or writing.
// It does not guarantee that another frame remains.
func (x *XTC) Readable() bool {
	return x.readable || x.writable
}

// NumAtoms returns the number of atoms per frame. On a read handle it is
// known from the first header; on a write handle only after the first
// frame has been written.
func (x *XTC) NumAtoms() (int, error) {
	if x.natoms < 0 {
		return 0, Error{"atom count not known yet", x.filename, []string{"NumAtoms"}, true, xdrfile.KindFormat}
	}
	return x.natoms, nil
}

// Precision returns the precision of the last frame read, or the one
// frames are being written with.
func (x *XTC) Precision() float32 {
	return x.precision
}

// SetPrecision changes the coordinate precision used for writing.
func (x *XTC) SetPrecision(p float32) {
	x.precision = p
}

// Read decodes the next frame into frame, resizing it if the atom count
// differs. A clean end of trajectory returns a LastFrameError; an end of
// file inside a frame is a truncation error.
func (x *XTC) Read(frame *xdrfile.Frame) error {
	if !x.readable {
		return Error{TrajUnIniRead, x.filename, []string{"Read"}, true, xdrfile.KindIO}
	}
	magic, err := x.r.Int()
	if err == io.EOF {
		x.readable = false
		return newlastFrameError(x.filename, "Read")
	}
	if err != nil {
		return x.readErr(err, "Read")
	}
	if magic != Magic {
		return Error{WrongFormat, x.filename, []string{"Read"}, true, xdrfile.KindFormat}
	}
	natoms, err := x.r.Int()
	if err != nil {
		return x.readErr(err, "Read")
	}
	if natoms < 0 {
		return Error{"negative atom count", x.filename, []string{"Read"}, true, xdrfile.KindCorrupt}
	}
	if x.natoms >= 0 && int(natoms) != x.natoms {
		return Error{fmt.Sprintf("frame has %d atoms, trajectory started with %d", natoms, x.natoms), x.filename, []string{"Read"}, true, xdrfile.KindCorrupt}
	}
	x.natoms = int(natoms)
	step, err := x.r.Int()
	if err != nil {
		return x.readErr(err, "Read")
	}
	time, err := x.r.Float()
	if err != nil {
		return x.readErr(err, "Read")
	}
	frame.Step = int(step)
	frame.Time = time
	frame.Lambda = 0
	for i := 0; i < 3; i++ {
		if err := x.r.Floats(frame.Box[i][:]); err != nil {
			return x.readErr(err, "Read")
		}
	}
	lsize, err := x.r.Int()
	if err != nil {
		return x.readErr(err, "Read")
	}
	if lsize != natoms {
		return Error{"coordinate block disagrees with header on atom count", x.filename, []string{"Read"}, true, xdrfile.KindCorrupt}
	}
	frame.Resize(int(natoms))
	frame.Velocities = nil
	frame.Forces = nil
	if int(natoms) <= rawAtomLimit {
		if err := readRawCoords(x.r, frame.Coords); err != nil {
			return x.readErr(err, "Read")
		}
		return nil
	}
	prec, err := decompressCoords(x.r, frame.Coords, &x.state)
	if err != nil {
		return x.readErr(err, "Read")
	}
	x.precision = prec
	return nil
}

// readErr classifies an error raised while inside a frame: running out of
// bytes there means truncation, never a clean end of trajectory.
func (x *XTC) readErr(err error, caller string) error {
	switch e := err.(type) {
	case corruptError:
		return Error{e.Error(), x.filename, []string{caller}, true, xdrfile.KindCorrupt}
	default:
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Error{TruncatedFrame, x.filename, []string{caller}, true, xdrfile.KindTruncated}
		}
		return Error{ReadError + ": " + err.Error(), x.filename, []string{caller}, true, xdrfile.KindIO}
	}
}

// Write encodes frame and appends it to the trajectory.
func (x *XTC) Write(frame *xdrfile.Frame) error {
	if !x.writable {
		return Error{TrajUnIniWrite, x.filename, []string{"Write"}, true, xdrfile.KindIO}
	}
	natoms := frame.Len()
	if x.natoms >= 0 && natoms != x.natoms {
		return Error{fmt.Sprintf("frame has %d atoms, trajectory started with %d", natoms, x.natoms), x.filename, []string{"Write"}, true, xdrfile.KindFormat}
	}
	if err := x.w.Int(Magic); err != nil {
		return x.writeErr(err, "Write")
	}
	if err := x.w.Int(int32(natoms)); err != nil {
		return x.writeErr(err, "Write")
	}
	if err := x.w.Int(int32(frame.Step)); err != nil {
		return x.writeErr(err, "Write")
	}
	if err := x.w.Float(frame.Time); err != nil {
		return x.writeErr(err, "Write")
	}
	for i := 0; i < 3; i++ {
		if err := x.w.Floats(frame.Box[i][:]); err != nil {
			return x.writeErr(err, "Write")
		}
	}
	if err := x.w.Int(int32(natoms)); err != nil {
		return x.writeErr(err, "Write")
	}
	if natoms <= rawAtomLimit {
		if err := writeRawCoords(x.w, frame.Coords); err != nil {
			return x.writeErr(err, "Write")
		}
	} else {
		if err := compressCoords(x.w, frame.Coords, x.precision, &x.state); err != nil {
			return x.writeErr(err, "Write")
		}
	}
	x.natoms = natoms
	return nil
}

func (x *XTC) writeErr(err error, caller string) error {
	if err == errOutOfRange {
		return Error{err.Error(), x.filename, []string{caller}, true, xdrfile.KindOutOfRange}
	}
	return Error{WriteError + ": " + err.Error(), x.filename, []string{caller}, true, xdrfile.KindIO}
}

// Flush pushes buffered frames down to the file.
func (x *XTC) Flush() error {
	if x.bw == nil {
		return nil
	}
	if err := x.bw.Flush(); err != nil {
		return x.writeErr(err, "Flush")
	}
	if fl, ok := x.zw.(interface{ Flush() error }); ok {
		if err := fl.Flush(); err != nil {
			return x.writeErr(err, "Flush")
		}
	}
	return nil
}

func (x *XTC) closeRaw() {
	if x.zr != nil {
		x.zr.Close()
		x.zr = nil
	}
	if x.f != nil {
		x.f.Close()
		x.f = nil
	}
}

// Close flushes pending writes and releases the file. Calling it more
// than once is harmless.
func (x *XTC) Close() error {
	if x.f == nil {
		return nil
	}
	var err error
	if x.bw != nil {
		err = x.bw.Flush()
	}
	if x.zw != nil {
		if e := x.zw.Close(); err == nil {
			err = e
		}
		x.zw = nil
	}
	if x.zr != nil {
		x.zr.Close()
		x.zr = nil
	}
	if e := x.f.Close(); err == nil {
		err = e
	}
	x.f = nil
	x.readable = false
	x.writable = false
	if err != nil {
		return Error{err.Error(), x.filename, []string{"Close"}, true, xdrfile.KindIO}
	}
	return nil
}

//Errors

//errDecorate asserts that err implements xdrfile.Error and adds the
//caller's name to it before passing it up.
func errDecorate(err error, caller string) error {
	err2 := err.(xdrfile.Error)
	err2.Decorate(caller)
	return err2
}

// Error is the general structure for xtc trajectory errors. It fulfills
// xdrfile.Error and xdrfile.TrajError.
type Error struct {
	message  string
	filename string //the input file that has problems, or empty string if none.
	deco     []string
	critical bool
	kind     xdrfile.ErrKind
}

func (err Error) Error() string {
	return fmt.Sprintf("xtc file %s error: %s", err.filename, err.message)
}

// Decorate adds new information to the error
func (E Error) Decorate(deco string) []string {
	//Even though this method does not use a pointer as a receiver, and tries to alter the receiver,
	//it should work, since E.deco is a slice, and hence a pointer itself.
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

// FileName returns the file to which the failing trajectory was associated
func (err Error) FileName() string { return err.filename }

// Format returns the format of the file (always "xtc") associated to the error
func (err Error) Format() string { return "xtc" }

// Critical returns true if the error is critical, false otherwise
func (err Error) Critical() bool { return err.critical }

// Kind returns the category of the error
func (err Error) Kind() xdrfile.ErrKind { return err.kind }

const (
	TrajUnIniRead  = "Traj object uninitialized to read"
	TrajUnIniWrite = "Traj object uninitialized to write"
	ReadError      = "Error reading frame"
	WriteError     = "Error writing frame"
	UnableToOpen   = "Unable to open file"
	WrongFormat    = "Wrong magic number in the XTC file"
	TruncatedFrame = "File ends in the middle of a frame"
)

//lastFrameError implements xdrfile.LastFrameError
type lastFrameError struct {
	deco     []string
	fileName string
}

//lastFrameError does nothing
func (E lastFrameError) NormalLastFrameTermination() {}

func (E lastFrameError) FileName() string { return E.fileName }

func (E lastFrameError) Error() string { return "EOF" }

func (E lastFrameError) Critical() bool { return false }

func (E lastFrameError) Format() string { return "xtc" }

func (E lastFrameError) Kind() xdrfile.ErrKind { return xdrfile.KindNone }

func (E lastFrameError) Decorate(deco string) []string {
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

func newlastFrameError(filename string, caller string) *lastFrameError {
	e := new(lastFrameError)
	e.fileName = filename
	e.deco = []string{caller}
	return e
}
