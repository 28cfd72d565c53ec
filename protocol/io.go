package protocol

// UnitOutputs is the actuator side of one unit's IO frame
type UnitOutputs struct {
	Pwm           [NumOutputs]int16
	MotorSync     [NumMotors]int16
	MotorDistance [NumMotors]int16
	MotorCmdID    [NumMotors]int16
	CounterCmdID  [NumCounters]int16
	Sound         uint16
	SoundIndex    uint16
	SoundRepeat   uint16
}

// Remote is the state of one IR remote control slot
type Remote struct {
	LeftLR  int8
	LeftUD  int8
	RightLR int8
	RightUD int8
	Buttons uint8
	Dip     uint8
}

// UnitInputs is the sensor side of one unit's IO frame
type UnitInputs struct {
	Input        [NumInputs]int16
	Counter      [NumCounters]int16
	CounterValue [NumCounters]int16
	CounterCmdID [NumCounters]int16
	MotorCmdID   [NumMotors]int16
	SoundCmdID   uint16

	// Only filled by direct mode
	Power          uint16
	Temperature    uint16
	ReferencePower uint16
	ExtensionPower uint16
}

// RemoteSlotAny is the slot mirroring whichever remote sent last
const RemoteSlotAny = 0

// outputWords is the number of words a unit contributes to a compressed request
const outputWords = NumOutputs + 4*NumMotors + 3

// Words flattens the outputs in compressed request order
func (o *UnitOutputs) Words() []uint16 {
	w := make([]uint16, 0, outputWords)
	for _, v := range o.Pwm {
		w = append(w, uint16(v))
	}
	for _, v := range o.MotorSync {
		w = append(w, uint16(v))
	}
	for _, v := range o.MotorDistance {
		w = append(w, uint16(v))
	}
	for _, v := range o.MotorCmdID {
		w = append(w, uint16(v))
	}
	for _, v := range o.CounterCmdID {
		w = append(w, uint16(v))
	}
	return append(w, o.Sound, o.SoundIndex, o.SoundRepeat)
}

// applyWords loads the compressed response words of one unit block
func (in *UnitInputs) applyWords(w []uint16, withSound bool) {
	for i := range in.Input {
		in.Input[i] = int16(w[i])
	}
	for i := 0; i < NumCounters; i++ {
		in.Counter[i] = int16(w[8+i])
		in.CounterValue[i] = int16(w[12+i])
		in.CounterCmdID[i] = int16(w[16+i])
		in.MotorCmdID[i] = int16(w[20+i])
	}
	if withSound {
		in.SoundCmdID = w[24]
	}
}

// remotesFromIR splits the 26 IR bytes of a simple exchange response into
// remote slots. Slot 0 always mirrors the last sender; slots 1-4 are
// addressed by the sender's dip switch.
func remotesFromIR(ir []byte, remotes *[NumRemotes]Remote) {
	slot := func(k int) Remote {
		b := ir[k*5:]
		return Remote{
			LeftLR:  int8(b[0]),
			LeftUD:  int8(b[1]),
			RightLR: int8(b[2]),
			RightUD: int8(b[3]),
			Buttons: b[4] & 3,
			Dip:     (b[4] >> 2) & 3,
		}
	}
	remotes[RemoteSlotAny] = slot(0)
	nr := int((ir[4]>>2)&3) + 1
	remotes[nr] = slot(nr)
}
