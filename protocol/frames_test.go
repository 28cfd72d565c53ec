package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirmwareString(t *testing.T) {
	tests := []struct {
		version uint32
		want    string
	}{
		{0x04010500, "4.1.5"},
		{0x04020400, "4.2.4"},
		{0x04061206, "4.6.12"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirmwareString(tt.version))
	}
}

func TestStatusFrames(t *testing.T) {
	assert.Equal(t, []byte{0x9A, 0x21, 0x21, 0xDC}, EncodeID(IDQueryStatus))

	s, err := DecodeStatus(EncodeStatus(Status{Name: "TXT-1234", Version: 0x04060600}))
	require.NoError(t, err)
	assert.Equal(t, "TXT-1234", s.Name)
	assert.Equal(t, uint32(0x04060600), s.Version)
	assert.Equal(t, "4.6.6", s.Firmware())

	bad := EncodeStatus(s)
	bad[0] ^= 0xFF
	_, err = DecodeStatus(bad)
	assert.ErrorIs(t, err, ErrProtocolMismatch)

	_, err = DecodeStatus(bad[:10])
	assert.ErrorIs(t, err, ErrFrameDecode)
}

func TestCheckAck(t *testing.T) {
	assert.NoError(t, CheckAck("start", EncodeID(AckStartOnline), AckStartOnline))
	assert.ErrorIs(t, CheckAck("start", EncodeID(AckStopOnline), AckStartOnline), ErrProtocolMismatch)
	assert.ErrorIs(t, CheckAck("start", []byte{1, 2}, AckStartOnline), ErrFrameDecode)
}

func TestConfigFrame(t *testing.T) {
	cfg := DefaultUnitConfig()
	cfg.Motor[2] = OutputSingle
	cfg.Input[0] = InputConfig{Mode: InputUltrasonic}
	cfg.Input[7] = InputConfig{Mode: InputVoltage, Digital: false}

	buf := EncodeConfig(3, UnitExtension, cfg)
	require.Len(t, buf, ConfigFrameSize)
	assert.Equal(t, EncodeID(IDUpdateConfig), buf[:4])
	assert.Equal(t, []byte{1, 1, 0, 1}, buf[12:16])
	// counter config
	assert.Equal(t, byte(1), buf[48])
	assert.Equal(t, byte(1), buf[60])

	id, unit, got, err := DecodeConfig(buf)
	require.NoError(t, err)
	assert.Equal(t, int16(3), id)
	assert.Equal(t, UnitExtension, unit)
	assert.Equal(t, cfg, got)
}

func TestStartFrames(t *testing.T) {
	assert.Len(t, EncodeStartOnline(), StartOnlineFrameSize)

	cam := EncodeStartCamera(DefaultCameraConfig())
	require.Len(t, cam, StartCameraFrameSize)
	assert.Equal(t, []byte{0x40, 0x01, 0, 0}, cam[4:8])
	assert.Equal(t, []byte{15, 0, 0, 0}, cam[12:16])
}

func TestSimpleExchange(t *testing.T) {
	var out UnitOutputs
	out.Pwm[0] = 512
	out.Pwm[7] = 100
	out.MotorSync[1] = 3
	out.MotorDistance[3] = 1000
	out.MotorCmdID[0] = 5
	out.CounterCmdID[2] = 7
	out.Sound, out.SoundIndex, out.SoundRepeat = 1, 4, 2

	req := EncodeSimpleRequest(&out)
	require.Len(t, req, SimpleRequestSize)
	back, err := DecodeSimpleRequest(req)
	require.NoError(t, err)
	assert.Equal(t, out, back)

	in := UnitInputs{SoundCmdID: 9}
	in.Input[2] = 1234
	in.CounterValue[1] = -2
	in.MotorCmdID[3] = 6
	var ir [irBytes]byte
	ir[0], ir[1], ir[4] = 15, 0xF1, 0x03|2<<2 // any slot, dip 2
	ir[15], ir[19] = 7, 0x01|2<<2             // remote 3

	resp := EncodeSimpleResponse(&in, ir)
	require.Len(t, resp, SimpleResponseSize)

	var got UnitInputs
	var remotes [NumRemotes]Remote
	require.NoError(t, DecodeSimpleResponse(resp, &got, &remotes))
	assert.Equal(t, in, got)
	assert.Equal(t, Remote{LeftLR: 15, LeftUD: -15, Buttons: 3, Dip: 2}, remotes[RemoteSlotAny])
	assert.Equal(t, Remote{LeftLR: 7, Buttons: 1, Dip: 2}, remotes[3])

	assert.ErrorIs(t, DecodeSimpleResponse(resp[:79], &got, &remotes), ErrFrameDecode)
	resp[0] = 0
	assert.ErrorIs(t, DecodeSimpleResponse(resp, &got, &remotes), ErrProtocolMismatch)
}

func TestCompressedFrames(t *testing.T) {
	var outs [MaxUnits]UnitOutputs
	outs[UnitMaster].Pwm[1] = 300
	outs[UnitExtension].MotorCmdID[2] = 4
	words := RequestWordsOf(&outs)
	require.Len(t, words, RequestWords)
	assert.Equal(t, outs, OutputsFromRequestWords(words))

	frame := EncodeCompressed(IDExchangeDataCmpr, 0xDEADBEEF, []byte{253, 34})
	h, payload, err := DecodeCompressed(frame, IDExchangeDataCmpr)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h.Size)
	assert.Equal(t, uint32(0xDEADBEEF), h.CRC)
	assert.Equal(t, uint16(1), h.Extensions)
	assert.Equal(t, []byte{253, 34}, payload)

	_, _, err = DecodeCompressed(frame, AckExchangeDataCmpr)
	assert.ErrorIs(t, err, ErrProtocolMismatch)

	var ins [MaxUnits]UnitInputs
	ins[UnitMaster].Input[0] = 1
	ins[UnitMaster].SoundCmdID = 2
	ins[UnitExtension].CounterValue[3] = 77
	var got [MaxUnits]UnitInputs
	ApplyResponseWords(ResponseWordsOf(&ins), &got)
	assert.Equal(t, ins, got)
}

func TestCmdIDPacking(t *testing.T) {
	counter := [4]int16{1, 2, 5, 7}
	motor := [4]int16{3, 6, 4, 2}
	b := PackCmdIDs(counter, motor)
	// c3 c3 c2 c2 c2 c1 c1 c1
	assert.Equal(t, byte(0b01_010_001), b[0])
	// m2 m1 m1 m1 c4 c4 c4 c3
	assert.Equal(t, byte(0b0_011_111_1), b[1])
	// m4 m4 m4 m3 m3 m3 m2 m2
	assert.Equal(t, byte(0b010_100_11), b[2])

	c, m := UnpackCmdIDs(b)
	assert.Equal(t, counter, c)
	assert.Equal(t, motor, m)
}

func TestCmdIDPackingMasksHighBits(t *testing.T) {
	b := PackCmdIDs([4]int16{8, 9, 15, 16}, [4]int16{7 + 8, 0, 0, 0})
	c, m := UnpackCmdIDs(b)
	assert.Equal(t, [4]int16{0, 1, 7, 0}, c)
	assert.Equal(t, [4]int16{7, 0, 0, 0}, m)
}

func TestShieldConfigFrame(t *testing.T) {
	cfg := DefaultUnitConfig()
	cfg.Input[1] = InputConfig{Mode: InputUltrasonic}
	cfg.Input[2] = InputConfig{Mode: InputResistor}
	cfg.Input[5] = InputConfig{Mode: InputVoltage, Digital: true}
	cfg.Input[6] = InputConfig{Mode: InputVoltage}

	buf := EncodeShieldConfig(7, cfg)
	require.Len(t, buf, ShieldConfigSize)
	assert.Equal(t, byte(ShieldCmdConfigIO), buf[0])
	assert.Equal(t, byte(7), buf[1])
	assert.Equal(t, byte(ShieldInputDigital5K|ShieldInputUltrasonic<<4), buf[3])
	assert.Equal(t, byte(ShieldInputAnalog5K|ShieldInputDigital5K<<4), buf[4])
	assert.Equal(t, byte(ShieldInputDigital5K|ShieldInputDigitalVoltage<<4), buf[5])
	assert.Equal(t, byte(ShieldInputAnalogVoltage|ShieldInputDigital5K<<4), buf[6])
}

func TestShieldExchangeRequest(t *testing.T) {
	var out UnitOutputs
	out.Pwm[0] = 512
	out.Pwm[1] = 511
	out.Pwm[2] = 2
	out.MotorSync = [4]int16{2, 1, 4, 3}
	out.MotorDistance[1] = 0x1234

	buf := EncodeShieldExchange(15, &out)
	require.Len(t, buf, ShieldExchangeSize)
	assert.Equal(t, []byte{ShieldCmdExchangeData, ShieldExchangeSize, 15, 0}, buf[:4])
	assert.Equal(t, []byte{255, 255, 1}, buf[4:7])
	assert.Equal(t, []byte{0x12, 0x34}, buf[12:14])
	assert.Equal(t, []byte{0x34, 0x12}, buf[20:22])
	assert.Equal(t, uint8(0), NextCycle(15))
}

func TestShieldExchangeResponse(t *testing.T) {
	data := make([]byte, ShieldExchangeSize)
	data[2] = 3
	data[4] = 0b0000_0010 // I2 digital high
	// I1 = 0x3FFF, I4 = 0x0101
	data[5] = 0xFF
	data[8] = 0x01
	data[9] = 0x3F
	data[11] = 0x01 << 2
	// I6 = 0x0205
	data[13] = 0x05
	data[16] = 0x02 << 6
	// power 0x123, temperature 0x245
	data[19], data[20], data[21] = 0x23, 0x45, 0x01|0x02<<6
	data[22], data[23], data[24] = 0x10, 0x20, 0x3|0x4<<4
	data[25] = 0b1001
	data[28] = 0x10
	// IR: positive right LR 5, negative left UD 2, buttons 1, dip 3
	data[34] = 0x01 | 1<<4 | 3<<6
	data[35] = 0x05
	data[36] = 0x20
	ids := PackCmdIDs([4]int16{1, 2, 3, 4}, [4]int16{5, 6, 7, 0})
	copy(data[38:], ids[:])

	cfg := DefaultUnitConfig()
	for _, k := range []int{0, 3, 5} {
		cfg.Input[k] = InputConfig{Mode: InputVoltage}
	}

	r, err := DecodeShieldExchange(data, cfg, 4)
	require.NoError(t, err)
	in := r.Inputs
	assert.Equal(t, uint8(3), r.Cycle)
	assert.Equal(t, int16(0x3FFF), in.Input[0])
	assert.Equal(t, int16(1), in.Input[1])
	assert.Equal(t, int16(0), in.Input[2])
	assert.Equal(t, int16(0x0101), in.Input[3])
	assert.Equal(t, int16(0x0205), in.Input[5])
	assert.Equal(t, uint16(0x123), in.Power)
	assert.Equal(t, uint16(0x245), in.Temperature)
	assert.Equal(t, uint16(0x310), in.ReferencePower)
	assert.Equal(t, uint16(0x420), in.ExtensionPower)
	assert.Equal(t, [4]int16{1, 0, 0, 1}, in.Counter)
	assert.Equal(t, int16(0x10), in.CounterValue[1])
	assert.Equal(t, [4]int16{1, 2, 3, 4}, in.CounterCmdID)
	assert.Equal(t, [4]int16{5, 6, 7, 0}, in.MotorCmdID)
	assert.Equal(t, uint16(4), in.SoundCmdID)

	want := Remote{RightLR: 5, LeftUD: -2, Buttons: 1, Dip: 3}
	assert.Equal(t, want, r.Remotes[RemoteSlotAny])
	assert.Equal(t, want, r.Remotes[4])

	_, err = DecodeShieldExchange(data[:40], cfg, 0)
	assert.ErrorIs(t, err, ErrFrameDecode)
	assert.True(t, IsFatal(err))
}

func TestRegisterFrames(t *testing.T) {
	req := EncodeRegisterRead(0x39, 0x92, 1)
	require.Len(t, req, RegisterReadRequestSize)
	assert.Equal(t, []byte{0xB9, 0xDB, 0x3B, 0x39, 0x01, 0, 0, 0, 0x39, 0, 0, 0, 1, 0, 1, 0, 0x92}, req)

	r, err := DecodeRegisterRequest(req)
	require.NoError(t, err)
	assert.Equal(t, RegisterRequest{Cmd: RegisterCmdRead, Device: 0x39, Reg: 0x92, Count: 1}, r)

	data, err := DecodeRegisterRead(EncodeRegisterReadResponse([]byte{0xAB, 0xCD}), 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xCD}, data)

	_, err = DecodeRegisterRead(EncodeRegisterReadResponse([]byte{0xAB}), 2)
	assert.ErrorIs(t, err, ErrFrameDecode)
	assert.False(t, IsFatal(nil))

	wr := EncodeRegisterWrite(0x39, 0x80, 0x05)
	require.Len(t, wr, RegisterWriteRequestSize)
	r, err = DecodeRegisterRequest(wr)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80), r.Reg)
	assert.Equal(t, []byte{0x05}, r.Data)

	assert.NoError(t, CheckRegisterWrite(EncodeRegisterWriteResponse()))
	bad := EncodeRegisterWriteResponse()
	bad[3] = 0
	assert.ErrorIs(t, CheckRegisterWrite(bad), ErrProtocolMismatch)

	raw := EncodeRegisterBytes(0x39, []byte{0xFC, 1, 2})
	require.Len(t, raw, RegisterBytesHeaderSize+3)
	assert.Equal(t, byte(3), raw[4])
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err   error
		class ErrorClass
		fatal bool
	}{
		{ErrProtocolMismatch, ClassProtocol, true},
		{ErrUnsupportedFirmware, ClassConfiguration, true},
		{Wrap(ClassAlgorithmic, "ratio", ErrFrameDecode), ClassAlgorithmic, false},
		{Wrap(ClassIntegrity, "crc", ErrFrameDecode), ClassIntegrity, false},
		{ErrClosed, ClassTransport, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, Classify(tt.err), tt.err.Error())
		assert.Equal(t, tt.fatal, IsFatal(tt.err), tt.err.Error())
	}
	assert.Nil(t, Wrap(ClassTransport, "x", nil))
	assert.Equal(t, "configuration", ClassConfiguration.String())
}
