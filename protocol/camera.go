package protocol

// CameraHeaderSize is the size of the header preceding every frame
const CameraHeaderSize = 20

// CameraHeader announces one frame on the camera channel
type CameraHeader struct {
	ID             uint32
	FramesReady    int32
	Width          int16
	Height         int16
	SizeRaw        int32
	SizeCompressed int32
}

// CameraFrame is one fully received JPEG frame
type CameraFrame struct {
	Header CameraHeader
	Data   []byte
}

// DecodeCameraHeader parses a frame header. A foreign id is reported but
// the fields are still returned, since the stream stays in step.
func DecodeCameraHeader(data []byte) (CameraHeader, error) {
	var h CameraHeader
	if len(data) != CameraHeaderSize {
		return h, Errorf(ClassProtocol, "camera frame", "header has %d bytes: %w", len(data), ErrFrameDecode)
	}
	h = CameraHeader{
		ID:             le.Uint32(data),
		FramesReady:    int32(le.Uint32(data[4:])),
		Width:          int16(le.Uint16(data[8:])),
		Height:         int16(le.Uint16(data[10:])),
		SizeRaw:        int32(le.Uint32(data[12:])),
		SizeCompressed: int32(le.Uint32(data[16:])),
	}
	if h.ID != IDCameraFrame {
		return h, Errorf(ClassProtocol, "camera frame", "id 0x%08X: %w", h.ID, ErrProtocolMismatch)
	}
	return h, nil
}

// EncodeCameraHeader builds a frame header; used by test controllers
func EncodeCameraHeader(h CameraHeader) []byte {
	buf := make([]byte, 0, CameraHeaderSize)
	buf = le.AppendUint32(buf, h.ID)
	buf = le.AppendUint32(buf, uint32(h.FramesReady))
	buf = le.AppendUint16(buf, uint16(h.Width))
	buf = le.AppendUint16(buf, uint16(h.Height))
	buf = le.AppendUint32(buf, uint32(h.SizeRaw))
	return le.AppendUint32(buf, uint32(h.SizeCompressed))
}
