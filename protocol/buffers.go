package protocol

// FrameAssembler collects the body of one camera frame from stream reads
// of arbitrary size. Its capacity is fixed by the frame header.
type FrameAssembler struct {
	header CameraHeader
	buf    []byte
}

// NewFrameAssembler creates an idle assembler
func NewFrameAssembler() *FrameAssembler {
	return &FrameAssembler{}
}

// Begin starts a frame announced by h, dropping any partial frame
func (f *FrameAssembler) Begin(h CameraHeader) {
	f.header = h
	size := int(h.SizeCompressed)
	if size < 0 {
		size = 0
	}
	if cap(f.buf) < size {
		f.buf = make([]byte, 0, size)
	}
	f.buf = f.buf[:0]
}

// Write appends data and returns how many bytes were accepted. Bytes past
// the announced size are not accepted.
func (f *FrameAssembler) Write(data []byte) int {
	n := f.Free()
	if len(data) < n {
		n = len(data)
	}
	f.buf = append(f.buf, data[:n]...)
	return n
}

// Available returns the number of bytes collected so far
func (f *FrameAssembler) Available() int {
	return len(f.buf)
}

// Free returns the number of bytes still missing
func (f *FrameAssembler) Free() int {
	return int(f.header.SizeCompressed) - len(f.buf)
}

// NextRead is the size of the next stream read, capped at the chunk limit
func (f *FrameAssembler) NextRead() int {
	n := f.Free()
	if n > CameraChunkLimit {
		n = CameraChunkLimit
	}
	return n
}

// Complete reports whether the announced number of bytes arrived
func (f *FrameAssembler) Complete() bool {
	return f.Free() <= 0
}

// Frame returns a copy of the assembled frame
func (f *FrameAssembler) Frame() CameraFrame {
	return CameraFrame{
		Header: f.header,
		Data:   append([]byte(nil), f.buf...),
	}
}

// Reset drops the partial frame
func (f *FrameAssembler) Reset() {
	f.header = CameraHeader{}
	f.buf = f.buf[:0]
}
