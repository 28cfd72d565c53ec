package protocol

// Opcodes of the delta stream, two bits each
const (
	opUnchanged = 0 // word equals its previous value
	opRun       = 1 // run ladder follows
	opToggle    = 2 // 0 becomes 1, anything else becomes 0
	opLiteral   = 3 // 16 bit value follows
)

// Run ladder limits
const (
	runShort  = 4    // 2 bit field, runs 2..4
	runMedium = 19   // 4 bit field, runs 5..19
	runLong   = 274  // 8 bit field, runs 20..274
	runChunk  = 4370 // 16 bit field capped at 4095, runs 275..4370
)

// InitialResponseCRC is the checksum a fresh session assumes for the
// previous compressed response
const InitialResponseCRC uint32 = 0x628EBB05

// DeltaEncoder compresses fixed length word frames against the previous
// frame sent on the same stream. Runs never span frames.
type DeltaEncoder struct {
	prev []uint16
	bits *BitWriter
	crc  *CRC32
	run  int
}

// NewDeltaEncoder creates an encoder for frames of n words
func NewDeltaEncoder(n int) *DeltaEncoder {
	return &DeltaEncoder{
		prev: make([]uint16, n),
		bits: NewBitWriter(2 * n),
		crc:  NewCRC32(),
	}
}

// Reset forgets the previous frame
func (e *DeltaEncoder) Reset() {
	clear(e.prev)
}

// Encode compresses words and returns the payload together with the
// checksum over the actual word values. The returned slice is reused by
// the next call.
func (e *DeltaEncoder) Encode(words []uint16) ([]byte, uint32, error) {
	if len(words) != len(e.prev) {
		return nil, 0, Errorf(ClassProtocol, "delta encode", "frame has %d words, want %d: %w", len(words), len(e.prev), ErrFrameDecode)
	}
	e.bits.Reset()
	e.crc.Reset()
	e.run = 0

	for i, v := range words {
		e.crc.Add16(v)
		prev := e.prev[i]
		if v == prev {
			e.run++
			continue
		}
		e.flushRun()
		if (prev == 0 && v == 1) || (prev != 0 && v == 0) {
			e.bits.WriteBits(2, opToggle)
		} else {
			e.bits.WriteBits(2, opLiteral)
			e.bits.WriteBits(16, uint32(v))
		}
		e.prev[i] = v
	}
	e.flushRun()
	e.bits.Flush()
	return e.bits.Bytes(), e.crc.Sum(), nil
}

func (e *DeltaEncoder) flushRun() {
	w := e.bits
	for e.run > 0 {
		n := e.run
		switch {
		case n == 1:
			w.WriteBits(2, opUnchanged)
		case n <= runShort:
			w.WriteBits(2, opRun)
			w.WriteBits(2, uint32(n-2))
		case n <= runMedium:
			w.WriteBits(2, opRun)
			w.WriteBits(2, 3)
			w.WriteBits(4, uint32(n-5))
		case n <= runLong:
			w.WriteBits(2, opRun)
			w.WriteBits(2, 3)
			w.WriteBits(4, 15)
			w.WriteBits(8, uint32(n-20))
		default:
			if n > runChunk {
				n = runChunk
			}
			w.WriteBits(2, opRun)
			w.WriteBits(2, 3)
			w.WriteBits(4, 15)
			w.WriteBits(8, 255)
			w.WriteBits(16, uint32(n-275))
		}
		e.run -= n
	}
}

// DeltaDecoder expands frames produced by a DeltaEncoder on the other end
type DeltaDecoder struct {
	prev       []uint16
	lastCRC    uint32
	initialCRC uint32
}

// NewDeltaDecoder creates a decoder for frames of n words. initialCRC is
// the checksum treated as already received.
func NewDeltaDecoder(n int, initialCRC uint32) *DeltaDecoder {
	return &DeltaDecoder{
		prev:       make([]uint16, n),
		lastCRC:    initialCRC,
		initialCRC: initialCRC,
	}
}

// Reset forgets all previously received state
func (d *DeltaDecoder) Reset() {
	clear(d.prev)
	d.lastCRC = d.initialCRC
}

// Words returns the most recently decoded frame
func (d *DeltaDecoder) Words() []uint16 {
	return d.prev
}

// Decode applies a received payload. When crc repeats the previous
// checksum the payload is not looked at and changed is false. State is
// left untouched when the payload is truncated.
func (d *DeltaDecoder) Decode(crc uint32, payload []byte) (words []uint16, changed bool, err error) {
	if crc == d.lastCRC {
		return d.prev, false, nil
	}

	out := make([]uint16, len(d.prev))
	r := NewBitReader(payload)
	run := 0
	for i := range out {
		prev := d.prev[i]
		if run > 0 {
			out[i] = prev
			run--
			continue
		}
		op, err := r.ReadBits(2)
		if err != nil {
			return d.prev, false, Wrap(ClassProtocol, "delta decode", err)
		}
		switch op {
		case opUnchanged:
			out[i] = prev
		case opRun:
			n, err := readRun(r)
			if err != nil {
				return d.prev, false, Wrap(ClassProtocol, "delta decode", err)
			}
			out[i] = prev
			run = n - 1
		case opToggle:
			if prev == 0 {
				out[i] = 1
			}
		case opLiteral:
			v, err := r.ReadBits(16)
			if err != nil {
				return d.prev, false, Wrap(ClassProtocol, "delta decode", err)
			}
			out[i] = uint16(v)
		}
	}

	copy(d.prev, out)
	d.lastCRC = crc
	return d.prev, true, nil
}

func readRun(r *BitReader) (int, error) {
	steps := []struct {
		width uint
		base  int
	}{{2, 2}, {4, 5}, {8, 20}, {16, 275}}
	for _, s := range steps {
		c, err := r.ReadBits(s.width)
		if err != nil {
			return 0, err
		}
		if s.width == 16 || c < 1<<s.width-1 {
			return int(c) + s.base, nil
		}
	}
	return 0, ErrFrameDecode
}
