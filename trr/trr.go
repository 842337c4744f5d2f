/*
Package trr reads and writes GROMACS trr trajectory files: the lossless,
full precision XDR format. Each frame carries a header declaring which
blocks follow (box, virial, pressure, coordinates, velocities, forces)
and at which element width, four or eight bytes; the blocks themselves
are plain big-endian arrays.

Velocity and force blocks map to the optional arrays of xdrfile.Frame;
an all-zero box matrix stands for a frame without a box block. Virial
and pressure blocks are consumed and discarded on read and never
written.
*/
package trr

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

// Magic leads every trr frame.
const Magic = 1993

//the version tag all trr files carry, a fossil of the original
//implementation
const version = "GMX_trn_file"

// header mirrors the on-disk frame header. The six sizes that are always
// zero in files written today (ir, e, top, sym) are kept so the layout
// stays byte-exact.
type header struct {
	double   bool
	irSize   int32
	eSize    int32
	boxSize  int32
	virSize  int32
	presSize int32
	topSize  int32
	symSize  int32
	xSize    int32
	vSize    int32
	fSize    int32
	natoms   int32
	step     int32
	nre      int32
	time     float64
	lambda   float64
}

// TRR is a handle to an open trr trajectory file. It owns the file
// exclusively and reads or writes frames sequentially. Filenames ending
// in a compression extension (.gz, .zst, .zstd) are (de)compressed
// transparently.
type TRR struct {
	f        *os.File
	zr       io.ReadCloser
	br       *bufio.Reader
	r        *xdr.Reader
	zw       io.WriteCloser
	bw       *bufio.Writer
	w        *xdr.Writer
	filename string
	natoms   int //-1 until known
	double   bool
	readable bool
	writable bool
	f64      []float64 //scratch for double width blocks
}

// Open opens a trr file for reading and validates its leading magic
// number. The atom count is available immediately via NumAtoms.
func Open(name string) (*TRR, error) {
	t := new(TRR)
	if err := t.initRead(name); err != nil {
		return nil, errDecorate(err, "Open")
	}
	return t, nil
}

func (t *TRR) initRead(name string) error {
	t.filename = name
	t.natoms = -1
	f, err := os.Open(name)
	if err != nil {
		return Error{UnableToOpen + ": " + err.Error(), name, nil, true, xdrfile.KindIO}
	}
	zr, err := xdrfile.NewDecompressor(name, f)
	if err != nil {
		f.Close()
		return Error{WrongFormat + ": " + err.Error(), name, nil, true, xdrfile.KindFormat}
	}
	t.f = f
	t.zr = zr
	t.br = bufio.NewReader(zr)
	t.r = xdr.NewReader(t.br)
	//natoms sits at a fixed offset: magic, tag length, tag string,
	//ten block sizes
	head, err := t.br.Peek(68)
	if err != nil {
		t.closeRaw()
		return Error{WrongFormat + ": file shorter than one header", name, nil, true, xdrfile.KindFormat}
	}
	if int32(binary.BigEndian.Uint32(head)) != Magic {
		t.closeRaw()
		return Error{WrongFormat, name, nil, true, xdrfile.KindFormat}
	}
	t.natoms = int(int32(binary.BigEndian.Uint32(head[64:])))
	if t.natoms < 0 {
		t.closeRaw()
		return Error{WrongFormat + ": negative atom count", name, nil, true, xdrfile.KindFormat}
	}
	runtime.SetFinalizer(t, func(t *TRR) {
		t.Close()
	})
	t.readable = true
	return nil
}

// Create opens a trr file for writing, truncating it if it exists. The
// optional trailing argument selects double precision (eight byte
// elements) for all written frames; the default is single.
func Create(name string, double ...bool) (*TRR, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"Create"}, true, xdrfile.KindIO}
	}
	t, err := initWrite(name, f)
	if err != nil {
		return nil, errDecorate(err, "Create")
	}
	if len(double) > 0 {
		t.double = double[0]
	}
	return t, nil
}

// Append opens a trr file for writing without truncation. Compressed
// containers cannot be appended to.
func Append(name string, double ...bool) (*TRR, error) {
	if xdrfile.IsCompressed(name) {
		return nil, Error{"cannot append to a compressed trajectory", name, []string{"Append"}, true, xdrfile.KindIO}
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"Append"}, true, xdrfile.KindIO}
	}
	t, err := initWrite(name, f)
	if err != nil {
		return nil, errDecorate(err, "Append")
	}
	if len(double) > 0 {
		t.double = double[0]
	}
	return t, nil
}

func initWrite(name string, f *os.File) (*TRR, error) {
	t := new(TRR)
	t.filename = name
	t.natoms = -1
	zw, err := xdrfile.NewCompressor(name, f)
	if err != nil {
		f.Close()
		return nil, Error{UnableToOpen + ": " + err.Error(), name, nil, true, xdrfile.KindIO}
	}
	t.f = f
	t.zw = zw
	t.bw = bufio.NewWriter(zw)
	t.w = xdr.NewWriter(t.bw)
	runtime.SetFinalizer(t, func(t *TRR) {
		t.Close()
	})
	t.writable = true
	return t, nil
}

// Readable returns true if the handle is open for reading or writing.
func (t *TRR) Readable() bool {
	return t.readable || t.writable
}

// NumAtoms returns the number of atoms per frame. On a read handle it is
// known from the first header; on a write handle only after the first
// frame has been written.
func (t *TRR) NumAtoms() (int, error) {
	if t.natoms < 0 {
		return 0, Error{"atom count not known yet", t.filename, []string{"NumAtoms"}, true, xdrfile.KindFormat}
	}
	return t.natoms, nil
}

//midFrame reclassifies a clean EOF hit after the start of a frame:
//inside a frame it always means truncation.
func midFrame(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// readHeader parses one frame header. An io.EOF at the magic number is
// passed through for the caller to turn into the last-frame signal;
// everything after it reports truncation.
func (t *TRR) readHeader(h *header) error {
	magic, err := t.r.Int()
	if err != nil {
		return err
	}
	if magic != Magic {
		return Error{WrongFormat, t.filename, []string{"readHeader"}, true, xdrfile.KindFormat}
	}
	slen, err := t.r.Int()
	if err != nil {
		return midFrame(err)
	}
	if slen != int32(len(version)+1) {
		return Error{"version tag has the wrong length", t.filename, []string{"readHeader"}, true, xdrfile.KindCorrupt}
	}
	if _, err := t.r.String(); err != nil {
		return midFrame(err)
	}
	var sizes [10]int32
	if err := t.r.Ints(sizes[:]); err != nil {
		return midFrame(err)
	}
	h.irSize, h.eSize, h.boxSize, h.virSize, h.presSize = sizes[0], sizes[1], sizes[2], sizes[3], sizes[4]
	h.topSize, h.symSize, h.xSize, h.vSize, h.fSize = sizes[5], sizes[6], sizes[7], sizes[8], sizes[9]
	if h.natoms, err = t.r.Int(); err != nil {
		return midFrame(err)
	}
	if h.natoms < 0 {
		return Error{"negative atom count", t.filename, []string{"readHeader"}, true, xdrfile.KindCorrupt}
	}
	elem, err := t.elemSize(h)
	if err != nil {
		return err
	}
	h.double = elem == 8
	if h.step, err = t.r.Int(); err != nil {
		return midFrame(err)
	}
	if h.nre, err = t.r.Int(); err != nil {
		return midFrame(err)
	}
	if h.double {
		if h.time, err = t.r.Double(); err != nil {
			return midFrame(err)
		}
		if h.lambda, err = t.r.Double(); err != nil {
			return midFrame(err)
		}
	} else {
		tf, err := t.r.Float()
		if err != nil {
			return midFrame(err)
		}
		lf, err := t.r.Float()
		if err != nil {
			return midFrame(err)
		}
		h.time, h.lambda = float64(tf), float64(lf)
	}
	return nil
}

// elemSize derives the element width from the first block the header
// declares present, the way the original format does.
func (t *TRR) elemSize(h *header) (int32, error) {
	var elem int32
	if h.natoms == 0 && (h.xSize != 0 || h.vSize != 0 || h.fSize != 0) {
		return 0, Error{"frame declares atom blocks but no atoms", t.filename, []string{"elemSize"}, true, xdrfile.KindCorrupt}
	}
	switch {
	case h.boxSize != 0:
		elem = h.boxSize / 9
	case h.xSize != 0:
		elem = h.xSize / (h.natoms * 3)
	case h.vSize != 0:
		elem = h.vSize / (h.natoms * 3)
	case h.fSize != 0:
		elem = h.fSize / (h.natoms * 3)
	default:
		return 0, Error{"frame declares no data blocks", t.filename, []string{"elemSize"}, true, xdrfile.KindFormat}
	}
	if elem != 4 && elem != 8 {
		return 0, Error{fmt.Sprintf("unsupported element width %d, want 4 or 8", elem), t.filename, []string{"elemSize"}, true, xdrfile.KindPrecision}
	}
	return elem, nil
}

// Read decodes the next frame into frame, resizing it if the atom count
// differs. Velocities and Forces are populated, or nilled, according to
// what the frame carries.
func (t *TRR) Read(frame *xdrfile.Frame) error {
	if !t.readable {
		return Error{TrajUnIniRead, t.filename, []string{"Read"}, true, xdrfile.KindIO}
	}
	var h header
	if err := t.readHeader(&h); err != nil {
		if err == io.EOF {
			t.readable = false
			return newlastFrameError(t.filename, "Read")
		}
		return t.readErr(err, "Read")
	}
	if t.natoms >= 0 && int(h.natoms) != t.natoms {
		return Error{fmt.Sprintf("frame has %d atoms, trajectory started with %d", h.natoms, t.natoms), t.filename, []string{"Read"}, true, xdrfile.KindCorrupt}
	}
	t.natoms = int(h.natoms)
	natoms := int(h.natoms)
	frame.Step = int(h.step)
	frame.Time = float32(h.time)
	frame.Lambda = float32(h.lambda)
	frame.Resize(natoms)

	if h.boxSize != 0 {
		for i := 0; i < 3; i++ {
			if err := t.readVec(frame.Box[i][:], h.double); err != nil {
				return t.readErr(err, "Read")
			}
		}
	} else {
		frame.Box = [3][3]float32{}
	}
	//virial and pressure tensors are not part of the Frame; skip them
	if h.virSize != 0 {
		if err := t.skipMatrix(h.double); err != nil {
			return t.readErr(err, "Read")
		}
	}
	if h.presSize != 0 {
		if err := t.skipMatrix(h.double); err != nil {
			return t.readErr(err, "Read")
		}
	}
	if h.xSize != 0 {
		if err := t.readVecs(frame.Coords, h.double); err != nil {
			return t.readErr(err, "Read")
		}
	} else {
		for i := range frame.Coords {
			frame.Coords[i] = [3]float32{}
		}
	}
	if h.vSize != 0 {
		frame.Velocities = ensureVecs(frame.Velocities, natoms)
		if err := t.readVecs(frame.Velocities, h.double); err != nil {
			return t.readErr(err, "Read")
		}
	} else {
		frame.Velocities = nil
	}
	if h.fSize != 0 {
		frame.Forces = ensureVecs(frame.Forces, natoms)
		if err := t.readVecs(frame.Forces, h.double); err != nil {
			return t.readErr(err, "Read")
		}
	} else {
		frame.Forces = nil
	}
	return nil
}

func ensureVecs(v [][3]float32, n int) [][3]float32 {
	if cap(v) >= n {
		return v[:n]
	}
	return make([][3]float32, n)
}

func (t *TRR) readVec(dst []float32, double bool) error {
	if !double {
		return t.r.Floats(dst)
	}
	t.f64 = t.f64[:0]
	for range dst {
		t.f64 = append(t.f64, 0)
	}
	if err := t.r.Doubles(t.f64); err != nil {
		return err
	}
	for i, v := range t.f64 {
		dst[i] = float32(v)
	}
	return nil
}

func (t *TRR) readVecs(dst [][3]float32, double bool) error {
	if !double {
		return t.r.Vecs(dst)
	}
	n3 := len(dst) * 3
	if cap(t.f64) < n3 {
		t.f64 = make([]float64, n3)
	}
	t.f64 = t.f64[:n3]
	if err := t.r.Doubles(t.f64); err != nil {
		return err
	}
	for i := range dst {
		dst[i][0] = float32(t.f64[3*i])
		dst[i][1] = float32(t.f64[3*i+1])
		dst[i][2] = float32(t.f64[3*i+2])
	}
	return nil
}

func (t *TRR) skipMatrix(double bool) error {
	var m [9]float32
	return t.readVec(m[:], double)
}

// readErr classifies an error raised while inside a frame: running out of
// bytes there means truncation, never a clean end of trajectory.
func (t *TRR) readErr(err error, caller string) error {
	if te, ok := err.(Error); ok {
		te.Decorate(caller)
		return te
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return Error{TruncatedFrame, t.filename, []string{caller}, true, xdrfile.KindTruncated}
	}
	return Error{ReadError + ": " + err.Error(), t.filename, []string{caller}, true, xdrfile.KindIO}
}

// Write encodes frame and appends it to the trajectory. Box, velocity
// and force blocks are written only when present on the frame.
func (t *TRR) Write(frame *xdrfile.Frame) error {
	if !t.writable {
		return Error{TrajUnIniWrite, t.filename, []string{"Write"}, true, xdrfile.KindIO}
	}
	natoms := frame.Len()
	if t.natoms >= 0 && natoms != t.natoms {
		return Error{fmt.Sprintf("frame has %d atoms, trajectory started with %d", natoms, t.natoms), t.filename, []string{"Write"}, true, xdrfile.KindFormat}
	}
	if frame.Velocities != nil && len(frame.Velocities) != natoms {
		return Error{"velocity array length disagrees with coordinates", t.filename, []string{"Write"}, true, xdrfile.KindFormat}
	}
	if frame.Forces != nil && len(frame.Forces) != natoms {
		return Error{"force array length disagrees with coordinates", t.filename, []string{"Write"}, true, xdrfile.KindFormat}
	}
	elem := int32(4)
	if t.double {
		elem = 8
	}
	var h header
	h.double = t.double
	if frame.Box != ([3][3]float32{}) {
		h.boxSize = 9 * elem
	}
	if natoms > 0 {
		h.xSize = int32(natoms) * 3 * elem
		if frame.Velocities != nil {
			h.vSize = h.xSize
		}
		if frame.Forces != nil {
			h.fSize = h.xSize
		}
	}
	h.natoms = int32(natoms)
	h.step = int32(frame.Step)
	h.time = float64(frame.Time)
	h.lambda = float64(frame.Lambda)

	if err := t.writeHeader(&h); err != nil {
		return t.writeErr(err, "Write")
	}
	if h.boxSize != 0 {
		for i := 0; i < 3; i++ {
			if err := t.writeVec(frame.Box[i][:], h.double); err != nil {
				return t.writeErr(err, "Write")
			}
		}
	}
	if h.xSize != 0 {
		if err := t.writeVecs(frame.Coords, h.double); err != nil {
			return t.writeErr(err, "Write")
		}
	}
	if h.vSize != 0 {
		if err := t.writeVecs(frame.Velocities, h.double); err != nil {
			return t.writeErr(err, "Write")
		}
	}
	if h.fSize != 0 {
		if err := t.writeVecs(frame.Forces, h.double); err != nil {
			return t.writeErr(err, "Write")
		}
	}
	t.natoms = natoms
	return nil
}

func (t *TRR) writeHeader(h *header) error {
	if err := t.w.Int(Magic); err != nil {
		return err
	}
	if err := t.w.Int(int32(len(version) + 1)); err != nil {
		return err
	}
	if err := t.w.String(version); err != nil {
		return err
	}
	sizes := [10]int32{h.irSize, h.eSize, h.boxSize, h.virSize, h.presSize,
		h.topSize, h.symSize, h.xSize, h.vSize, h.fSize}
	if err := t.w.Ints(sizes[:]); err != nil {
		return err
	}
	if err := t.w.Int(h.natoms); err != nil {
		return err
	}
	if err := t.w.Int(h.step); err != nil {
		return err
	}
	if err := t.w.Int(h.nre); err != nil {
		return err
	}
	if h.double {
		if err := t.w.Double(h.time); err != nil {
			return err
		}
		return t.w.Double(h.lambda)
	}
	if err := t.w.Float(float32(h.time)); err != nil {
		return err
	}
	return t.w.Float(float32(h.lambda))
}

func (t *TRR) writeVec(src []float32, double bool) error {
	if !double {
		return t.w.Floats(src)
	}
	t.f64 = t.f64[:0]
	for _, v := range src {
		t.f64 = append(t.f64, float64(v))
	}
	return t.w.Doubles(t.f64)
}

func (t *TRR) writeVecs(src [][3]float32, double bool) error {
	if !double {
		return t.w.Vecs(src)
	}
	n3 := len(src) * 3
	if cap(t.f64) < n3 {
		t.f64 = make([]float64, n3)
	}
	t.f64 = t.f64[:n3]
	for i, v := range src {
		t.f64[3*i] = float64(v[0])
		t.f64[3*i+1] = float64(v[1])
		t.f64[3*i+2] = float64(v[2])
	}
	return t.w.Doubles(t.f64)
}

func (t *TRR) writeErr(err error, caller string) error {
	if te, ok := err.(Error); ok {
		te.Decorate(caller)
		return te
	}
	return Error{WriteError + ": " + err.Error(), t.filename, []string{caller}, true, xdrfile.KindIO}
}

// Flush pushes buffered frames down to the file.
func (t *TRR) Flush() error {
	if t.bw == nil {
		return nil
	}
	if err := t.bw.Flush(); err != nil {
		return t.writeErr(err, "Flush")
	}
	if fl, ok := t.zw.(interface{ Flush() error }); ok {
		if err := fl.Flush(); err != nil {
			return t.writeErr(err, "Flush")
		}
	}
	return nil
}

func (t *TRR) closeRaw() {
	if t.zr != nil {
		t.zr.Close()
		t.zr = nil
	}
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}

// Close flushes pending writes and releases the file. Calling it more
// than once is harmless.
func (t *TRR) Close() error {
	if t.f == nil {
		return nil
	}
	var err error
	if t.bw != nil {
		err = t.bw.Flush()
	}
	if t.zw != nil {
		if e := t.zw.Close(); err == nil {
			err = e
		}
		t.zw = nil
	}
	if t.zr != nil {
		t.zr.Close()
		t.zr = nil
	}
	if e := t.f.Close(); err == nil {
		err = e
	}
	t.f = nil
	t.readable = false
	t.writable = false
	if err != nil {
		return Error{err.Error(), t.filename, []string{"Close"}, true, xdrfile.KindIO}
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

// Error is the general structure for trr trajectory errors. It fulfills
// xdrfile.Error and xdrfile.TrajError.
type Error struct {
	message  string
	filename string //the input file that has problems, or empty string if none.
	deco     []string
	critical bool
	kind     xdrfile.ErrKind
}

func (err Error) Error() string {
	return fmt.Sprintf("trr file %s error: %s", err.filename, err.message)
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

// Format returns the format of the file (always "trr") associated to the error
func (err Error) Format() string { return "trr" }

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
	WrongFormat    = "Wrong magic number in the TRR file"
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

func (E lastFrameError) Format() string { return "trr" }

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
