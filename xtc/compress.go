package xtc

import (
	"errors"
	"math"

	"github.com/dnlbauer/xdrfile/xdr"
)

//The coordinate compression scheme is the historical GROMACS one: scale
//floats to integers, shift them against the per-frame minimum, and pack
//them with the minimal number of bits per axis. Consecutive atoms that sit
//close together (bonded neighbours, water molecules) are folded into runs
//of small deltas. The constants below are part of the file format and must
//not be changed.

const (
	// rawAtomLimit is the atom count at and below which frames skip
	// compression and store plain floats.
	rawAtomLimit = 9

	firstIdx = 9
	maxAbs   = math.MaxInt32 - 2
)

// magicints[i] is the largest delta representable in i bits under the
// multi-radix packing. Indices below firstIdx are unused.
var magicints = [...]int32{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 8,
	10, 12, 16, 20, 25, 32, 40, 50, 64, 80,
	101, 128, 161, 203, 256, 322, 406, 512, 645, 812,
	1024, 1290, 1625, 2048, 2580, 3250, 4096, 5060, 6501, 8192,
	10321, 13003, 16384, 20642, 26007, 32768, 41285, 52015, 65536, 82570,
	104031, 131072, 165140, 208063, 262144, 330280, 416127, 524287, 660561, 832255,
	1048576, 1321122, 1664510, 2097152, 2642245, 3329021, 4194304, 5284491, 6658042, 8388607,
	10568983, 13316085, 16777216,
}

const lastIdx = len(magicints)

// errOutOfRange marks coordinates too large to scale into 31-bit integers
// at the requested precision.
var errOutOfRange = errors.New("coordinate out of compressible range")

// corruptError marks a compressed block that violates its own invariants.
type corruptError string

func (e corruptError) Error() string { return string(e) }

// codecState holds the reusable scratch buffers of one trajectory handle,
// so that streaming thousands of frames does not allocate per frame.
type codecState struct {
	ints []int32
	bits bitBuf
}

func iabs(a int32) int32 {
	if a < 0 {
		return -a
	}
	return a
}

// sizeOfInt returns the number of bits needed to represent size.
func sizeOfInt(size uint32) int {
	num := uint64(1)
	bits := 0
	for uint64(size) >= num && bits < 32 {
		bits++
		num <<= 1
	}
	return bits
}

// sizeOfInts returns the number of bits needed for three values packed
// with the multi-radix scheme, where value i lies in [0, sizes[i]).
func sizeOfInts(sizes *[3]uint32) int {
	var bytes [32]byte
	nbytes := 1
	bytes[0] = 1
	for _, s := range sizes {
		tmp := uint64(0)
		bcnt := 0
		for ; bcnt < nbytes; bcnt++ {
			tmp += uint64(bytes[bcnt]) * uint64(s)
			bytes[bcnt] = byte(tmp)
			tmp >>= 8
		}
		for tmp != 0 {
			bytes[bcnt] = byte(tmp)
			bcnt++
			tmp >>= 8
		}
		nbytes = bcnt
	}
	num := uint32(1)
	bits := 0
	for uint32(bytes[nbytes-1]) >= num {
		bits++
		num *= 2
	}
	return bits + (nbytes-1)*8
}

// bitBuf is a bitstream over a byte slice, MSB first, with the exact
// carry behavior of the historical codec. Reads past the end set the
// overflow flag and return zeros instead of failing midway; callers check
// the flag once after decoding a frame.
type bitBuf struct {
	data     []byte
	cnt      int
	lastbits uint
	lastbyte uint32
	overflow bool
}

func (b *bitBuf) reset(data []byte) {
	b.data = data
	b.cnt = 0
	b.lastbits = 0
	b.lastbyte = 0
	b.overflow = false
}

// writeBits appends the low nbits of num to the stream.
func (b *bitBuf) writeBits(nbits int, num uint32) {
	lastbyte := b.lastbyte
	lastbits := b.lastbits
	for nbits >= 8 {
		lastbyte = (lastbyte << 8) | ((num >> (nbits - 8)) & 0xff)
		b.data = append(b.data, byte(lastbyte>>lastbits))
		nbits -= 8
	}
	if nbits > 0 {
		lastbyte = (lastbyte << nbits) | (num & (1<<nbits - 1))
		lastbits += uint(nbits)
		if lastbits >= 8 {
			lastbits -= 8
			b.data = append(b.data, byte(lastbyte>>lastbits))
		}
	}
	b.lastbyte = lastbyte
	b.lastbits = lastbits
}

// bytes flushes any pending partial byte and returns the whole stream.
func (b *bitBuf) bytes() []byte {
	if b.lastbits > 0 {
		b.data = append(b.data, byte(b.lastbyte<<(8-b.lastbits)))
		b.lastbits = 0
	}
	return b.data
}

// writeInts packs three values, each in [0, sizes[i]), into nbits bits
// using base-sizes positional arithmetic.
func (b *bitBuf) writeInts(nbits int, sizes *[3]uint32, nums *[3]uint32) {
	var bytes [32]byte
	nbytes := 0
	tmp := nums[0]
	for {
		bytes[nbytes] = byte(tmp)
		nbytes++
		tmp >>= 8
		if tmp == 0 {
			break
		}
	}
	for i := 1; i < 3; i++ {
		t := uint64(nums[i])
		bcnt := 0
		for ; bcnt < nbytes; bcnt++ {
			t += uint64(bytes[bcnt]) * uint64(sizes[i])
			bytes[bcnt] = byte(t)
			t >>= 8
		}
		for t != 0 {
			bytes[bcnt] = byte(t)
			bcnt++
			t >>= 8
		}
		nbytes = bcnt
	}
	if nbits >= nbytes*8 {
		for i := 0; i < nbytes; i++ {
			b.writeBits(8, uint32(bytes[i]))
		}
		b.writeBits(nbits-nbytes*8, 0)
	} else {
		for i := 0; i < nbytes-1; i++ {
			b.writeBits(8, uint32(bytes[i]))
		}
		b.writeBits(nbits-(nbytes-1)*8, uint32(bytes[nbytes-1]))
	}
}

// readBits consumes nbits from the stream and returns them as an integer.
func (b *bitBuf) readBits(nbits int) uint32 {
	mask := uint32(1)<<nbits - 1
	cnt, lastbits, lastbyte := b.cnt, b.lastbits, b.lastbyte
	var num uint32
	for nbits >= 8 {
		if cnt >= len(b.data) {
			b.overflow = true
			return 0
		}
		lastbyte = (lastbyte << 8) | uint32(b.data[cnt])
		cnt++
		num |= (lastbyte >> lastbits) << (nbits - 8)
		nbits -= 8
	}
	if nbits > 0 {
		if lastbits < uint(nbits) {
			if cnt >= len(b.data) {
				b.overflow = true
				return 0
			}
			lastbits += 8
			lastbyte = (lastbyte << 8) | uint32(b.data[cnt])
			cnt++
		}
		lastbits -= uint(nbits)
		num |= (lastbyte >> lastbits) & (uint32(1)<<nbits - 1)
	}
	num &= mask
	b.cnt, b.lastbits, b.lastbyte = cnt, lastbits, lastbyte
	return num
}

// readInts is the inverse of writeInts.
func (b *bitBuf) readInts(nbits int, sizes *[3]uint32, nums *[3]int32) {
	var bytes [32]uint32
	nbytes := 0
	for nbits > 8 {
		bytes[nbytes] = b.readBits(8)
		nbytes++
		nbits -= 8
	}
	if nbits > 0 {
		bytes[nbytes] = b.readBits(nbits)
		nbytes++
	}
	for i := 2; i > 0; i-- {
		num := uint64(0)
		for j := nbytes - 1; j >= 0; j-- {
			num = num<<8 | uint64(bytes[j])
			p := num / uint64(sizes[i])
			bytes[j] = uint32(p)
			num -= p * uint64(sizes[i])
		}
		nums[i] = int32(num)
	}
	nums[0] = int32(bytes[0] | bytes[1]<<8 | bytes[2]<<16 | bytes[3]<<24)
}

// writeRawCoords stores coordinates as plain floats, the layout used for
// frames at or below rawAtomLimit atoms.
func writeRawCoords(w *xdr.Writer, coords [][3]float32) error {
	return w.Vecs(coords)
}

func readRawCoords(r *xdr.Reader, dst [][3]float32) error {
	return r.Vecs(dst)
}

// compressCoords scales coords by precision, packs them, and writes the
// compressed block: precision, integer bounding box, initial delta index,
// byte count, bitstream. The caller has already written the atom count.
func compressCoords(w *xdr.Writer, coords [][3]float32, precision float32, s *codecState) error {
	size := len(coords)
	size3 := size * 3
	if cap(s.ints) < size3 {
		s.ints = make([]int32, size3)
	}
	ints := s.ints[:size3]

	minint := [3]int32{maxAbs, maxAbs, maxAbs}
	maxint := [3]int32{-maxAbs, -maxAbs, -maxAbs}
	mindiff := int32(maxAbs)
	var oldl [3]int32
	for i, c := range coords {
		var l [3]int32
		for j := 0; j < 3; j++ {
			var lf float32
			if c[j] >= 0 {
				lf = c[j]*precision + 0.5
			} else {
				lf = c[j]*precision - 0.5
			}
			if lf > maxAbs || lf < -maxAbs {
				return errOutOfRange
			}
			l[j] = int32(lf)
			if l[j] < minint[j] {
				minint[j] = l[j]
			}
			if l[j] > maxint[j] {
				maxint[j] = l[j]
			}
			ints[3*i+j] = l[j]
		}
		if i > 0 {
			diff := iabs(oldl[0]-l[0]) + iabs(oldl[1]-l[1]) + iabs(oldl[2]-l[2])
			if diff < mindiff {
				mindiff = diff
			}
		}
		oldl = l
	}
	for j := 0; j < 3; j++ {
		if float64(maxint[j])-float64(minint[j]) >= maxAbs {
			return errOutOfRange
		}
	}

	var sizeint [3]uint32
	for j := 0; j < 3; j++ {
		sizeint[j] = uint32(maxint[j] - minint[j] + 1)
	}
	var bitsizeint [3]int
	bitsize := 0
	if (sizeint[0]|sizeint[1]|sizeint[2])&0xff000000 != 0 {
		for j := 0; j < 3; j++ {
			bitsizeint[j] = sizeOfInt(sizeint[j])
		}
	} else {
		bitsize = sizeOfInts(&sizeint)
	}

	smallidx := firstIdx
	for smallidx < lastIdx-1 && magicints[smallidx] < mindiff {
		smallidx++
	}

	if err := w.Float(precision); err != nil {
		return err
	}
	if err := w.Ints(minint[:]); err != nil {
		return err
	}
	if err := w.Ints(maxint[:]); err != nil {
		return err
	}
	if err := w.Int(int32(smallidx)); err != nil {
		return err
	}

	maxidx := smallidx + 8
	if maxidx > lastIdx-1 {
		maxidx = lastIdx - 1
	}
	minidx := maxidx - 8
	tmpIdx := smallidx - 1
	if tmpIdx < firstIdx {
		tmpIdx = firstIdx
	}
	smaller := magicints[tmpIdx] / 2
	smallnum := magicints[smallidx] / 2
	sizesmall := [3]uint32{uint32(magicints[smallidx]), uint32(magicints[smallidx]), uint32(magicints[smallidx])}
	larger := magicints[maxidx] / 2

	b := &s.bits
	b.reset(b.data[:0])
	prevrun := -1
	var prevcoord, this [3]int32
	var runbuf [24]uint32
	i := 0
	for i < size {
		isSmall := false
		isSmaller := 0
		copy(this[:], ints[i*3:i*3+3])
		if smallidx < maxidx && i >= 1 &&
			iabs(this[0]-prevcoord[0]) < larger &&
			iabs(this[1]-prevcoord[1]) < larger &&
			iabs(this[2]-prevcoord[2]) < larger {
			isSmaller = 1
		} else if smallidx > minidx {
			isSmaller = -1
		}
		if i+1 < size {
			next := ints[(i+1)*3 : (i+1)*3+3]
			if iabs(this[0]-next[0]) < smallnum &&
				iabs(this[1]-next[1]) < smallnum &&
				iabs(this[2]-next[2]) < smallnum {
				//swap the atom with its neighbour, so that runs over
				//water molecules start at the oxygen
				this[0], next[0] = next[0], this[0]
				this[1], next[1] = next[1], this[1]
				this[2], next[2] = next[2], this[2]
				isSmall = true
			}
		}
		tmp3 := [3]uint32{
			uint32(this[0] - minint[0]),
			uint32(this[1] - minint[1]),
			uint32(this[2] - minint[2]),
		}
		if bitsize == 0 {
			b.writeBits(bitsizeint[0], tmp3[0])
			b.writeBits(bitsizeint[1], tmp3[1])
			b.writeBits(bitsizeint[2], tmp3[2])
		} else {
			b.writeInts(bitsize, &sizeint, &tmp3)
		}
		prevcoord = this
		i++

		run := 0
		if !isSmall && isSmaller == -1 {
			isSmaller = 0
		}
		for isSmall && run < 8*3 {
			copy(this[:], ints[i*3:i*3+3])
			if isSmaller == -1 {
				d0 := int64(this[0] - prevcoord[0])
				d1 := int64(this[1] - prevcoord[1])
				d2 := int64(this[2] - prevcoord[2])
				if d0*d0+d1*d1+d2*d2 >= int64(smaller)*int64(smaller) {
					isSmaller = 0
				}
			}
			runbuf[run] = uint32(this[0] - prevcoord[0] + smallnum)
			runbuf[run+1] = uint32(this[1] - prevcoord[1] + smallnum)
			runbuf[run+2] = uint32(this[2] - prevcoord[2] + smallnum)
			run += 3
			prevcoord = this
			i++
			isSmall = false
			if i < size {
				next := ints[i*3 : i*3+3]
				if iabs(next[0]-prevcoord[0]) < smallnum &&
					iabs(next[1]-prevcoord[1]) < smallnum &&
					iabs(next[2]-prevcoord[2]) < smallnum {
					isSmall = true
				}
			}
		}
		if run != prevrun || isSmaller != 0 {
			prevrun = run
			b.writeBits(1, 1)
			b.writeBits(5, uint32(run+isSmaller+1))
		} else {
			b.writeBits(1, 0)
		}
		for k := 0; k < run; k += 3 {
			t := [3]uint32{runbuf[k], runbuf[k+1], runbuf[k+2]}
			b.writeInts(smallidx, &sizesmall, &t)
		}
		if isSmaller != 0 {
			smallidx += isSmaller
			if isSmaller < 0 {
				smallnum = smaller
				smaller = magicints[smallidx-1] / 2
			} else {
				smaller = smallnum
				smallnum = magicints[smallidx] / 2
			}
			sizesmall[0] = uint32(magicints[smallidx])
			sizesmall[1] = sizesmall[0]
			sizesmall[2] = sizesmall[0]
		}
	}

	data := b.bytes()
	if err := w.Int(int32(len(data))); err != nil {
		return err
	}
	return w.Opaque(data)
}

// decompressCoords is the exact inverse of compressCoords. It returns the
// precision the frame was written with.
func decompressCoords(r *xdr.Reader, dst [][3]float32, s *codecState) (float32, error) {
	size := len(dst)
	precision, err := r.Float()
	if err != nil {
		return 0, err
	}
	var minint, maxint [3]int32
	if err := r.Ints(minint[:]); err != nil {
		return 0, err
	}
	if err := r.Ints(maxint[:]); err != nil {
		return 0, err
	}
	var sizeint [3]uint32
	for j := 0; j < 3; j++ {
		if maxint[j] < minint[j] {
			return 0, corruptError("integer bounding box inverted")
		}
		sizeint[j] = uint32(maxint[j] - minint[j] + 1)
	}
	var bitsizeint [3]int
	bitsize := 0
	if (sizeint[0]|sizeint[1]|sizeint[2])&0xff000000 != 0 {
		for j := 0; j < 3; j++ {
			bitsizeint[j] = sizeOfInt(sizeint[j])
		}
	} else {
		bitsize = sizeOfInts(&sizeint)
	}
	idx, err := r.Int()
	if err != nil {
		return 0, err
	}
	smallidx := int(idx)
	if smallidx < firstIdx || smallidx >= lastIdx {
		return 0, corruptError("initial delta index outside the magic table")
	}
	tmpIdx := smallidx - 1
	if tmpIdx < firstIdx {
		tmpIdx = firstIdx
	}
	smaller := magicints[tmpIdx] / 2
	smallnum := magicints[smallidx] / 2
	sizesmall := [3]uint32{uint32(magicints[smallidx]), uint32(magicints[smallidx]), uint32(magicints[smallidx])}

	nbytes, err := r.Int()
	if err != nil {
		return 0, err
	}
	//16 bytes per atom is well above the worst case of the packing scheme
	if nbytes <= 0 || int(nbytes) > size*16+64 {
		return 0, corruptError("declared bitstream length implausible")
	}
	b := &s.bits
	if cap(b.data) < int(nbytes) {
		b.data = make([]byte, nbytes)
	}
	b.reset(b.data[:nbytes])
	if err := r.Opaque(b.data); err != nil {
		return 0, err
	}

	invPrecision := float32(1.0) / precision
	var prevcoord, this [3]int32
	run := 0
	out := 0
	i := 0
	for i < size {
		if bitsize == 0 {
			this[0] = int32(b.readBits(bitsizeint[0]))
			this[1] = int32(b.readBits(bitsizeint[1]))
			this[2] = int32(b.readBits(bitsizeint[2]))
		} else {
			b.readInts(bitsize, &sizeint, &this)
		}
		i++
		this[0] += minint[0]
		this[1] += minint[1]
		this[2] += minint[2]
		prevcoord = this

		isSmaller := 0
		if b.readBits(1) == 1 {
			rr := int(b.readBits(5))
			isSmaller = rr % 3
			run = rr - isSmaller
			isSmaller--
		}
		if run > 0 {
			if i+run/3 > size {
				return 0, corruptError("delta run longer than the frame")
			}
			for k := 0; k < run; k += 3 {
				var t [3]int32
				b.readInts(smallidx, &sizesmall, &t)
				i++
				t[0] += prevcoord[0] - smallnum
				t[1] += prevcoord[1] - smallnum
				t[2] += prevcoord[2] - smallnum
				if k == 0 {
					//the first atom of a run was stored after its
					//neighbour; undo the swap
					t, prevcoord = prevcoord, t
					dst[out][0] = float32(prevcoord[0]) * invPrecision
					dst[out][1] = float32(prevcoord[1]) * invPrecision
					dst[out][2] = float32(prevcoord[2]) * invPrecision
					out++
				} else {
					prevcoord = t
				}
				dst[out][0] = float32(t[0]) * invPrecision
				dst[out][1] = float32(t[1]) * invPrecision
				dst[out][2] = float32(t[2]) * invPrecision
				out++
			}
		} else {
			dst[out][0] = float32(this[0]) * invPrecision
			dst[out][1] = float32(this[1]) * invPrecision
			dst[out][2] = float32(this[2]) * invPrecision
			out++
		}
		smallidx += isSmaller
		if isSmaller < 0 {
			smallnum = smaller
			if smallidx > firstIdx {
				smaller = magicints[smallidx-1] / 2
			} else {
				smaller = 0
			}
		} else if isSmaller > 0 {
			smaller = smallnum
			smallnum = magicints[smallidx] / 2
		}
		if smallidx < firstIdx || smallidx >= lastIdx {
			return 0, corruptError("delta index drifted outside the magic table")
		}
		sizesmall[0] = uint32(magicints[smallidx])
		sizesmall[1] = sizesmall[0]
		sizesmall[2] = sizesmall[0]
	}
	if b.overflow {
		return 0, corruptError("bitstream shorter than its declared length")
	}
	return precision, nil
}
