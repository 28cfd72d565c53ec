package protocol

import "encoding/binary"

// Register channel frame sizes
const (
	RegisterReadRequestSize   = 17
	RegisterWriteRequestSize  = 18
	RegisterBytesHeaderSize   = 16
	RegisterReadResponseHead  = 12
	RegisterWriteResponseSize = 12
)

var be = binary.BigEndian

// EncodeRegisterRead builds a request to read n bytes starting at reg
func EncodeRegisterRead(device uint32, reg uint16, n uint16) []byte {
	buf := make([]byte, 0, RegisterReadRequestSize)
	buf = be.AppendUint32(buf, IDRegister)
	buf = append(buf, RegisterCmdRead)
	buf = be.AppendUint32(buf, device)
	buf = be.AppendUint32(buf, 1)
	buf = be.AppendUint16(buf, n)
	return be.AppendUint16(buf, reg)
}

// DecodeRegisterRead extracts the data of a read response
func DecodeRegisterRead(data []byte, n int) ([]byte, error) {
	if len(data) != RegisterReadResponseHead+n {
		return nil, Errorf(ClassProtocol, "register read", "response has %d bytes, want %d: %w", len(data), RegisterReadResponseHead+n, ErrFrameDecode)
	}
	if got := be.Uint32(data); got != AckRegister {
		return nil, Errorf(ClassProtocol, "register read", "ack 0x%08X: %w", got, ErrProtocolMismatch)
	}
	return data[len(data)-n:], nil
}

// EncodeRegisterWrite builds a request to write one byte to reg
func EncodeRegisterWrite(device uint32, reg uint32, value byte) []byte {
	buf := make([]byte, 0, RegisterWriteRequestSize)
	buf = be.AppendUint32(buf, IDRegister)
	buf = append(buf, RegisterCmdWrite)
	buf = be.AppendUint32(buf, device)
	buf = be.AppendUint32(buf, 2)
	buf = be.AppendUint32(buf, reg)
	return append(buf, value)
}

// EncodeRegisterBytes builds a request writing a raw byte string to the
// device. The string usually starts with the register address.
func EncodeRegisterBytes(device uint32, data []byte) []byte {
	buf := make([]byte, 0, RegisterBytesHeaderSize+len(data))
	buf = be.AppendUint32(buf, IDRegister)
	buf = append(buf, byte(len(data)))
	buf = be.AppendUint32(buf, device)
	buf = be.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, 0, 0, 0)
	return append(buf, data...)
}

// CheckRegisterWrite validates a write response
func CheckRegisterWrite(data []byte) error {
	if len(data) != RegisterWriteResponseSize {
		return Errorf(ClassProtocol, "register write", "response has %d bytes, want %d: %w", len(data), RegisterWriteResponseSize, ErrFrameDecode)
	}
	if got := be.Uint32(data); got != AckRegister {
		return Errorf(ClassProtocol, "register write", "ack 0x%08X: %w", got, ErrProtocolMismatch)
	}
	return nil
}

// RegisterRequest is a parsed register channel request; used by test controllers
type RegisterRequest struct {
	Cmd    byte
	Device uint32
	Reg    uint32
	Count  int
	Data   []byte
}

// DecodeRegisterRequest parses any register channel request
func DecodeRegisterRequest(data []byte) (RegisterRequest, error) {
	var r RegisterRequest
	if len(data) < RegisterBytesHeaderSize || be.Uint32(data) != IDRegister {
		return r, Errorf(ClassProtocol, "register request", "malformed request: %w", ErrFrameDecode)
	}
	r.Cmd = data[4]
	r.Device = be.Uint32(data[5:])
	switch {
	case r.Cmd == RegisterCmdRead && len(data) == RegisterReadRequestSize:
		r.Count = int(be.Uint16(data[13:]))
		r.Reg = uint32(be.Uint16(data[15:]))
	case r.Cmd == RegisterCmdWrite && len(data) == RegisterWriteRequestSize:
		r.Reg = be.Uint32(data[13:])
		r.Data = data[17:18]
		r.Count = 1
	default:
		r.Data = data[RegisterBytesHeaderSize:]
		r.Count = len(r.Data)
	}
	return r, nil
}

// EncodeRegisterReadResponse builds a read response; used by test controllers
func EncodeRegisterReadResponse(data []byte) []byte {
	buf := make([]byte, 0, RegisterReadResponseHead+len(data))
	buf = be.AppendUint32(buf, AckRegister)
	buf = append(buf, RegisterCmdRead)
	buf = be.AppendUint32(buf, 0)
	buf = be.AppendUint16(buf, uint16(len(data)))
	buf = append(buf, 0)
	return append(buf, data...)
}

// EncodeRegisterWriteResponse builds a write response; used by test controllers
func EncodeRegisterWriteResponse() []byte {
	buf := be.AppendUint32(make([]byte, 0, RegisterWriteResponseSize), AckRegister)
	return append(buf, make([]byte, 8)...)
}
