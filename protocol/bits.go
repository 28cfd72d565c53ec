package protocol

// BitWriter packs variable width fields least significant bit first.
// Whole bytes are flushed to the output as soon as they are complete.
type BitWriter struct {
	out   []byte
	acc   uint32
	count uint
}

// NewBitWriter creates a writer with room for capacity bytes
func NewBitWriter(capacity int) *BitWriter {
	return &BitWriter{out: make([]byte, 0, capacity)}
}

// WriteBits appends the low n bits of v (n <= 16)
func (w *BitWriter) WriteBits(n uint, v uint32) {
	w.acc |= (v & (1<<n - 1)) << w.count
	w.count += n
	for w.count >= 8 {
		w.out = append(w.out, byte(w.acc))
		w.acc >>= 8
		w.count -= 8
	}
}

// Flush pads the pending bits with zeros up to a byte boundary
func (w *BitWriter) Flush() {
	if w.count > 0 {
		w.WriteBits(8-w.count, 0)
	}
}

// Bytes returns the completed bytes
func (w *BitWriter) Bytes() []byte {
	return w.out
}

// Reset empties the writer, keeping its buffer
func (w *BitWriter) Reset() {
	w.out = w.out[:0]
	w.acc = 0
	w.count = 0
}

// BitReader unpacks fields written by BitWriter
type BitReader struct {
	data  []byte
	acc   uint32
	count uint
}

// NewBitReader reads from data
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBits returns the next n bits (n <= 16)
func (r *BitReader) ReadBits(n uint) (uint32, error) {
	for r.count < n {
		if len(r.data) == 0 {
			return 0, ErrFrameDecode
		}
		r.acc |= uint32(r.data[0]) << r.count
		r.data = r.data[1:]
		r.count += 8
	}
	v := r.acc & (1<<n - 1)
	r.acc >>= n
	r.count -= n
	return v, nil
}
