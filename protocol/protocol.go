// Package protocol implements the wire formats spoken by the fischertechnik TXT controller
package protocol

import "fmt"

// Version is the txtlink library version
const Version = "0.1.0"

// Network layout
const (
	DefaultPort        = 65000
	CameraPortOffset   = 1
	RegisterPortOffset = 2

	// MinFirmwareVersion is the oldest firmware that speaks this protocol
	MinFirmwareVersion = 0x04010500
)

// Control and exchange ids (little-endian on the wire)
const (
	IDQueryStatus  uint32 = 0xDC21219A
	AckQueryStatus uint32 = 0xBAC9723E

	IDStartOnline  uint32 = 0x163FF61D
	AckStartOnline uint32 = 0xCA689F75

	IDStopOnline  uint32 = 0x9BE5082C
	AckStopOnline uint32 = 0xFBF600D2

	IDUpdateConfig  uint32 = 0x060EF27E
	AckUpdateConfig uint32 = 0x9689A68C

	IDExchangeData  uint32 = 0xCC3597BA
	AckExchangeData uint32 = 0x4EEFAC41

	IDExchangeDataCmpr  uint32 = 0xFBC56F98
	AckExchangeDataCmpr uint32 = 0x6F3B54E6

	IDStartCamera  uint32 = 0x882A40A6
	AckStartCamera uint32 = 0xCF41B24E

	IDStopCamera  uint32 = 0x17C31F2F
	AckStopCamera uint32 = 0x4B3C1EB6

	IDCameraFrame    uint32 = 0xBDC2D7A1
	AckCameraFrame   uint32 = 0xADA09FBA
	CameraChunkLimit        = 1500
)

// Register channel ids (big-endian on the wire)
const (
	IDRegister  uint32 = 0xB9DB3B39
	AckRegister uint32 = 0x87FD0D90

	RegisterCmdRead  = 0x01
	RegisterCmdWrite = 0x02
)

// Unit addressing
const (
	UnitMaster    = 0
	UnitExtension = 1
	MaxUnits      = 2

	NumInputs   = 8
	NumOutputs  = 8
	NumMotors   = 4
	NumCounters = 4
	NumRemotes  = 5
)

// Input modes as understood by the controller firmware
const (
	InputVoltage    = 0
	InputSwitch     = 1
	InputResistor   = 1
	InputResistor2  = 2
	InputUltrasonic = 3

	InputAnalog  = 0
	InputDigital = 1
)

// Output modes
const (
	OutputSingle = 0
	OutputMotor  = 1
)

// CmdIDMask limits motor and counter command ids to their 3 bit wire fields
const CmdIDMask = 0x07

// SoundCmdIDMask limits the sound command id
const SoundCmdIDMask = 0x0F

// FirmwareString renders a packed firmware version like 0x04010500 as "4.1.5".
// Each hex digit pair is read as a decimal number.
func FirmwareString(version uint32) string {
	v1 := (version >> 24) & 0xF
	v2 := ((version>>20)&0xF)*10 + (version>>16)&0xF
	v3 := ((version>>12)&0xF)*10 + (version>>8)&0xF
	return fmt.Sprintf("%d.%d.%d", v1, v2, v3)
}
