package protocol

import (
	"bytes"
	"encoding/binary"
)

// Control frame sizes
const (
	IDFrameSize           = 4
	StatusResponseSize    = 24
	StartOnlineFrameSize  = 68
	ConfigFrameSize       = 96
	StartCameraFrameSize  = 20
	deviceNameFieldLength = 16
)

var le = binary.LittleEndian

// EncodeID builds a request that consists of a bare id
func EncodeID(id uint32) []byte {
	return le.AppendUint32(make([]byte, 0, IDFrameSize), id)
}

// CheckAck verifies a response that consists of a bare ack id
func CheckAck(op string, data []byte, want uint32) error {
	if len(data) != IDFrameSize {
		return Errorf(ClassProtocol, op, "response has %d bytes, want %d: %w", len(data), IDFrameSize, ErrFrameDecode)
	}
	if got := le.Uint32(data); got != want {
		return Errorf(ClassProtocol, op, "ack 0x%08X, want 0x%08X: %w", got, want, ErrProtocolMismatch)
	}
	return nil
}

// Status is the controller identity returned by a status query
type Status struct {
	Name    string
	Version uint32
}

// Firmware renders the version as a dotted string
func (s Status) Firmware() string {
	return FirmwareString(s.Version)
}

// DecodeStatus parses a status query response
func DecodeStatus(data []byte) (Status, error) {
	if len(data) != StatusResponseSize {
		return Status{}, Errorf(ClassProtocol, "query status", "response has %d bytes, want %d: %w", len(data), StatusResponseSize, ErrFrameDecode)
	}
	if got := le.Uint32(data); got != AckQueryStatus {
		return Status{}, Errorf(ClassProtocol, "query status", "ack 0x%08X: %w", got, ErrProtocolMismatch)
	}
	name := data[4 : 4+deviceNameFieldLength]
	return Status{
		Name:    string(bytes.TrimRight(name, "\x00")),
		Version: le.Uint32(data[20:]),
	}, nil
}

// EncodeStatus builds a status query response; used by test controllers
func EncodeStatus(s Status) []byte {
	buf := le.AppendUint32(make([]byte, 0, StatusResponseSize), AckQueryStatus)
	var name [deviceNameFieldLength]byte
	copy(name[:], s.Name)
	buf = append(buf, name[:]...)
	return le.AppendUint32(buf, s.Version)
}

// EncodeStartOnline builds the start-session request. The 64 byte name
// field is left empty.
func EncodeStartOnline() []byte {
	buf := make([]byte, StartOnlineFrameSize)
	le.PutUint32(buf, IDStartOnline)
	return buf
}

// InputConfig configures one universal input
type InputConfig struct {
	Mode    uint8
	Digital bool
}

// UnitConfig is the IO configuration of one unit
type UnitConfig struct {
	Motor [NumMotors]uint8
	Input [NumInputs]InputConfig
}

// DefaultUnitConfig has all outputs paired as motors and all inputs as
// digital switches
func DefaultUnitConfig() UnitConfig {
	var c UnitConfig
	for i := range c.Motor {
		c.Motor[i] = OutputMotor
	}
	for i := range c.Input {
		c.Input[i] = InputConfig{Mode: InputSwitch, Digital: true}
	}
	return c
}

// EncodeConfig builds the update-config request for one unit
func EncodeConfig(configID int16, unit int, cfg UnitConfig) []byte {
	buf := make([]byte, 0, ConfigFrameSize)
	buf = le.AppendUint32(buf, IDUpdateConfig)
	buf = le.AppendUint16(buf, uint16(configID))
	buf = le.AppendUint16(buf, uint16(unit))
	// program state request, old transfer flag, 2 reserved
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, cfg.Motor[:]...)
	for _, in := range cfg.Input {
		d := byte(0)
		if in.Digital {
			d = 1
		}
		buf = append(buf, in.Mode, d, 0, 0)
	}
	for i := 0; i < NumCounters; i++ {
		buf = append(buf, 1, 0, 0, 0)
	}
	// 16 motor config words, unused by the firmware
	return append(buf, make([]byte, 32)...)
}

// DecodeConfig parses an update-config request; used by test controllers
func DecodeConfig(data []byte) (configID int16, unit int, cfg UnitConfig, err error) {
	if len(data) != ConfigFrameSize || le.Uint32(data) != IDUpdateConfig {
		return 0, 0, cfg, Errorf(ClassProtocol, "update config", "malformed request: %w", ErrFrameDecode)
	}
	configID = int16(le.Uint16(data[4:]))
	unit = int(le.Uint16(data[6:]))
	copy(cfg.Motor[:], data[12:16])
	for i := range cfg.Input {
		b := data[16+4*i:]
		cfg.Input[i] = InputConfig{Mode: b[0], Digital: b[1] != 0}
	}
	return configID, unit, cfg, nil
}

// CameraConfig selects the stream format of the camera channel
type CameraConfig struct {
	Width     int32
	Height    int32
	Framerate int32
	// Powerline is 0 for auto, 1 for 50Hz, 2 for 60Hz
	Powerline int32
}

// DefaultCameraConfig is 320x240 at 15 frames per second
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Width: 320, Height: 240, Framerate: 15}
}

// EncodeStartCamera builds the camera start request
func EncodeStartCamera(c CameraConfig) []byte {
	buf := le.AppendUint32(make([]byte, 0, StartCameraFrameSize), IDStartCamera)
	for _, v := range []int32{c.Width, c.Height, c.Framerate, c.Powerline} {
		buf = le.AppendUint32(buf, uint32(v))
	}
	return buf
}
