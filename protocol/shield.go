package protocol

// Direct mode talks to the motor shield over a serial line with fixed 44
// byte frames. PWM values are halved to fit a byte.

// Shield command codes
const (
	ShieldCmdConfigIO     = 0x51
	ShieldCmdExchangeData = 0x54

	ShieldConfigSize   = 15
	ShieldExchangeSize = 44
	shieldCycleMask    = 0x0F
)

// Shield input modes
const (
	ShieldInputDigitalVoltage = 0
	ShieldInputDigital5K      = 1
	ShieldInputAnalogVoltage  = 2
	ShieldInputAnalog5K       = 3
	ShieldInputUltrasonic     = 4
)

// DirectDeviceName and DirectVersion stand in for the status query in direct mode
const (
	DirectDeviceName        = "TXT direct"
	DirectVersion    uint32 = MinFirmwareVersion
)

// ShieldInputMode maps a network input configuration onto the shield's mode nibble
func ShieldInputMode(c InputConfig) uint8 {
	switch {
	case c.Mode == InputUltrasonic:
		return ShieldInputUltrasonic
	case c.Mode == InputSwitch && c.Digital:
		return ShieldInputDigital5K
	case c.Mode == InputVoltage && c.Digital:
		return ShieldInputDigitalVoltage
	case c.Mode == InputResistor && !c.Digital:
		return ShieldInputAnalog5K
	default:
		return ShieldInputAnalogVoltage
	}
}

// NextCycle advances the 4 bit frame cycle counter
func NextCycle(c uint8) uint8 {
	return (c + 1) & shieldCycleMask
}

// EncodeShieldConfig builds the IO configuration frame
func EncodeShieldConfig(cycle uint8, cfg UnitConfig) []byte {
	buf := make([]byte, ShieldConfigSize)
	buf[0] = ShieldCmdConfigIO
	buf[1] = cycle
	for k, in := range cfg.Input {
		buf[3+k/2] |= (ShieldInputMode(in) & 0x0F) << (4 * (k % 2))
	}
	return buf
}

// PackCmdIDs packs four counter and four motor command ids into 3 bytes
func PackCmdIDs(counter, motor [4]int16) [3]byte {
	c := func(i int) byte { return byte(counter[i]) & CmdIDMask }
	m := func(i int) byte { return byte(motor[i]) & CmdIDMask }
	var b [3]byte
	b[0] = c(0) | c(1)<<3 | (c(2)&0x03)<<6
	b[1] = (c(2)&0x04)>>2 | c(3)<<1 | m(0)<<4 | (m(1)&0x01)<<7
	b[2] = (m(1)&0x06)>>1 | m(2)<<2 | m(3)<<5
	return b
}

// UnpackCmdIDs is the inverse of PackCmdIDs
func UnpackCmdIDs(b [3]byte) (counter, motor [4]int16) {
	counter[0] = int16(b[0] & 0x07)
	counter[1] = int16(b[0] >> 3 & 0x07)
	counter[2] = int16(b[0]>>6&0x03 | b[1]<<2&0x04)
	counter[3] = int16(b[1] >> 1 & 0x07)
	motor[0] = int16(b[1] >> 4 & 0x07)
	motor[1] = int16(b[1]>>7&0x01 | b[2]<<1&0x06)
	motor[2] = int16(b[2] >> 2 & 0x07)
	motor[3] = int16(b[2] >> 5 & 0x07)
	return counter, motor
}

// EncodeShieldExchange builds the direct mode exchange request
func EncodeShieldExchange(cycle uint8, o *UnitOutputs) []byte {
	buf := make([]byte, ShieldExchangeSize)
	buf[0] = ShieldCmdExchangeData
	buf[1] = ShieldExchangeSize
	buf[2] = cycle
	for k, p := range o.Pwm {
		if p >= 512 {
			buf[4+k] = 255
		} else {
			buf[4+k] = byte(p / 2)
		}
	}
	s := o.MotorSync
	buf[12] = byte(s[0]&0x0F) | byte(s[1]&0x0F)<<4
	buf[13] = byte(s[2]&0x0F) | byte(s[3]&0x0F)<<4
	ids := PackCmdIDs(o.CounterCmdID, o.MotorCmdID)
	copy(buf[14:17], ids[:])
	for k, d := range o.MotorDistance {
		le.PutUint16(buf[18+2*k:], uint16(d))
	}
	return buf
}

// ShieldResponse is a decoded direct mode exchange response
type ShieldResponse struct {
	Cycle   uint8
	Inputs  UnitInputs
	Remotes [NumRemotes]Remote
}

// analog14 joins a low byte with 6 high bits taken from a shared byte group
func analog14(low byte, high uint16) int16 {
	return int16(uint16(low) + 256*high)
}

// DecodeShieldExchange parses the direct mode exchange response. Inputs
// configured as digital read their bit, all others the 14 bit analog value.
func DecodeShieldExchange(data []byte, cfg UnitConfig, sound uint16) (ShieldResponse, error) {
	var r ShieldResponse
	if len(data) != ShieldExchangeSize {
		return r, Errorf(ClassProtocol, "shield exchange", "response has %d bytes, want %d: %w", len(data), ShieldExchangeSize, ErrFrameDecode)
	}
	r.Cycle = data[2]
	in := &r.Inputs

	analog := func(lo, hi []byte) [4]int16 {
		h0, h1, h2 := uint16(hi[0]), uint16(hi[1]), uint16(hi[2])
		return [4]int16{
			analog14(lo[0], h0&0x3F),
			analog14(lo[1], (h0>>6&0x03)+(h1<<2&0x3C)),
			analog14(lo[2], (h1>>4&0x0F)+(h2<<4&0x30)),
			analog14(lo[3], h2>>2&0x3F),
		}
	}
	lowBank := analog(data[5:9], data[9:12])
	highBank := analog(data[12:16], data[16:19])
	for k := range in.Input {
		switch {
		case cfg.Input[k].Digital:
			in.Input[k] = int16(data[4] >> k & 1)
		case k < 4:
			in.Input[k] = lowBank[k]
		default:
			in.Input[k] = highBank[k-4]
		}
	}

	in.Power = uint16(data[19]) + 256*uint16(data[21]&0x3F)
	in.Temperature = uint16(data[20]) + 256*uint16(data[21]>>6&0x03)
	in.ReferencePower = uint16(data[22]) + 256*uint16(data[24]&0x0F)
	in.ExtensionPower = uint16(data[23]) + 256*uint16(data[24]>>4&0x0F)

	for k := 0; k < NumCounters; k++ {
		in.Counter[k] = int16(data[25] >> k & 1)
		in.CounterValue[k] = int16(le.Uint16(data[26+2*k:]))
	}

	r.Remotes[RemoteSlotAny] = decodeShieldIR(data[34], data[35], data[36])
	r.Remotes[int(data[34]>>6&0x03)+1] = r.Remotes[RemoteSlotAny]

	in.CounterCmdID, in.MotorCmdID = UnpackCmdIDs([3]byte{data[38], data[39], data[40]})
	in.SoundCmdID = sound
	return r, nil
}

func decodeShieldIR(flags, right, left byte) Remote {
	axis := func(v byte, positive bool) int8 {
		if positive {
			return int8(v & 0x0F)
		}
		return -int8(v & 0x0F)
	}
	return Remote{
		RightLR: axis(right, flags&0x01 != 0),
		RightUD: axis(right>>4, flags&0x02 != 0),
		LeftLR:  axis(left, flags&0x04 != 0),
		LeftUD:  axis(left>>4, flags&0x08 != 0),
		Buttons: flags >> 4 & 0x03,
		Dip:     flags >> 6 & 0x03,
	}
}
