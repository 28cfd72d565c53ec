package txt

import (
	"sync"
	"time"

	"txtlink/protocol"
)

// Frame is the IO state shared between callers and the exchange loop.
// Its methods do not lock: use them on the Frame returned by
// Session.SyncDataBegin or inside Session.Sync. Indexes are zero based
// and panic when out of range.
type Frame struct {
	mu sync.Mutex

	units   int
	out     [protocol.MaxUnits]protocol.UnitOutputs
	in      [protocol.MaxUnits]protocol.UnitInputs
	remotes [protocol.NumRemotes]protocol.Remote

	config   [protocol.MaxUnits]protocol.UnitConfig
	configID [protocol.MaxUnits]int16

	round     uint64
	roundDone chan struct{}
	updated   time.Time
}

func newFrame(units int) *Frame {
	f := &Frame{units: units, roundDone: make(chan struct{})}
	for u := range f.config {
		f.config[u] = protocol.DefaultUnitConfig()
	}
	return f
}

// SetPwm sets the duty of output idx. A value of 1 is sent as 0.
func (f *Frame) SetPwm(idx int, value int16, unit int) {
	if value == 1 {
		value = 0
	}
	f.out[unit].Pwm[idx] = value
}

func (f *Frame) Pwm(idx, unit int) int16 {
	return f.out[unit].Pwm[idx]
}

// StopAll zeroes the duty of every output of every active unit
func (f *Frame) StopAll() {
	for u := 0; u < f.units; u++ {
		clear(f.out[u].Pwm[:])
	}
}

// SetMotorSyncMaster pairs motor idx with master, encoded as
// 4*unit + output. Zero clears the pairing.
func (f *Frame) SetMotorSyncMaster(idx int, master int16, unit int) {
	f.out[unit].MotorSync[idx] = master
}

func (f *Frame) MotorSyncMaster(idx, unit int) int16 {
	return f.out[unit].MotorSync[idx]
}

// SetMotorDistance sets the counter steps motor idx runs before stopping
func (f *Frame) SetMotorDistance(idx int, distance int16, unit int) {
	f.out[unit].MotorDistance[idx] = distance
}

func (f *Frame) MotorDistance(idx, unit int) int16 {
	return f.out[unit].MotorDistance[idx]
}

// IncrMotorCmdID asks the controller to apply new distance and sync settings
func (f *Frame) IncrMotorCmdID(idx, unit int) {
	f.out[unit].MotorCmdID[idx] = (f.out[unit].MotorCmdID[idx] + 1) & protocol.CmdIDMask
}

func (f *Frame) MotorCmdID(idx, unit int) int16 {
	return f.out[unit].MotorCmdID[idx]
}

// IncrCounterCmdID asks the controller to reset counter idx
func (f *Frame) IncrCounterCmdID(idx, unit int) {
	f.out[unit].CounterCmdID[idx] = (f.out[unit].CounterCmdID[idx] + 1) & protocol.CmdIDMask
}

func (f *Frame) CounterCmdID(idx, unit int) int16 {
	return f.out[unit].CounterCmdID[idx]
}

// IncrSoundCmdID asks the controller to start the staged sound
func (f *Frame) IncrSoundCmdID(unit int) {
	f.out[unit].Sound = (f.out[unit].Sound + 1) & protocol.SoundCmdIDMask
}

func (f *Frame) SoundCmdID(unit int) uint16 {
	return f.out[unit].Sound
}

func (f *Frame) SetSoundIndex(index uint16, unit int) {
	f.out[unit].SoundIndex = index
}

func (f *Frame) SoundIndex(unit int) uint16 {
	return f.out[unit].SoundIndex
}

func (f *Frame) SetSoundRepeat(repeat uint16, unit int) {
	f.out[unit].SoundRepeat = repeat
}

func (f *Frame) SoundRepeat(unit int) uint16 {
	return f.out[unit].SoundRepeat
}

// PlaySound stages sound index with repeat count and triggers it
func (f *Frame) PlaySound(index, repeat uint16, unit int) {
	f.SetSoundIndex(index, unit)
	f.SetSoundRepeat(repeat, unit)
	f.IncrSoundCmdID(unit)
}

// StopSound triggers the silent sound 0
func (f *Frame) StopSound(unit int) {
	f.PlaySound(0, 1, unit)
}

// SoundFinished reports whether the controller caught up with the last sound command
func (f *Frame) SoundFinished(unit int) bool {
	return f.out[unit].Sound == f.in[unit].SoundCmdID
}

func (f *Frame) CurrentInput(idx, unit int) int16 {
	return f.in[unit].Input[idx]
}

// CurrentCounterInput is 1 when counter idx changed in the last round
func (f *Frame) CurrentCounterInput(idx, unit int) int16 {
	return f.in[unit].Counter[idx]
}

func (f *Frame) CurrentCounterValue(idx, unit int) int16 {
	return f.in[unit].CounterValue[idx]
}

func (f *Frame) CurrentCounterCmdID(idx, unit int) int16 {
	return f.in[unit].CounterCmdID[idx]
}

func (f *Frame) CurrentMotorCmdID(idx, unit int) int16 {
	return f.in[unit].MotorCmdID[idx]
}

func (f *Frame) CurrentSoundCmdID(unit int) uint16 {
	return f.in[unit].SoundCmdID
}

// IR returns remote slot n; slot 0 mirrors whichever remote sent last
func (f *Frame) IR(n int) protocol.Remote {
	return f.remotes[n]
}

// Power, Temperature, ReferencePower and ExtensionPower are only reported
// in direct mode

func (f *Frame) Power() uint16 {
	return f.in[protocol.UnitMaster].Power
}

func (f *Frame) Temperature() uint16 {
	return f.in[protocol.UnitMaster].Temperature
}

func (f *Frame) ReferencePower() uint16 {
	return f.in[protocol.UnitMaster].ReferencePower
}

func (f *Frame) ExtensionPower() uint16 {
	return f.in[protocol.UnitMaster].ExtensionPower
}

// SetConfig stages the output and input modes of unit and bumps its
// config generation
func (f *Frame) SetConfig(unit int, motors [protocol.NumMotors]uint8, inputs [protocol.NumInputs]protocol.InputConfig) {
	f.config[unit] = protocol.UnitConfig{Motor: motors, Input: inputs}
	f.configID[unit]++
}

func (f *Frame) Config(unit int) protocol.UnitConfig {
	return f.config[unit]
}

func (f *Frame) ConfigID(unit int) int16 {
	return f.configID[unit]
}

// Round is the number of completed exchange rounds
func (f *Frame) Round() uint64 {
	return f.round
}

// completeRound wakes everyone waiting for the end of the current round
func (f *Frame) completeRound(now time.Time) {
	f.round++
	f.updated = now
	close(f.roundDone)
	f.roundDone = make(chan struct{})
}

// Snapshot is an immutable copy of the IO state after one exchange round
type Snapshot struct {
	Round   uint64
	Time    time.Time
	Outputs [protocol.MaxUnits]protocol.UnitOutputs
	Inputs  [protocol.MaxUnits]protocol.UnitInputs
	Remotes [protocol.NumRemotes]protocol.Remote
}

func (f *Frame) snapshot() *Snapshot {
	return &Snapshot{
		Round:   f.round,
		Time:    f.updated,
		Outputs: f.out,
		Inputs:  f.in,
		Remotes: f.remotes,
	}
}

// Input returns input idx of unit as of this snapshot
func (s *Snapshot) Input(idx, unit int) int16 {
	return s.Inputs[unit].Input[idx]
}

// SyncDataBegin locks the IO state. Writes made through the returned Frame
// until SyncDataEnd go out together in one exchange round.
func (s *Session) SyncDataBegin() *Frame {
	s.frame.mu.Lock()
	return s.frame
}

// SyncDataEnd releases the lock taken by SyncDataBegin
func (s *Session) SyncDataEnd() {
	s.frame.mu.Unlock()
}

// Sync runs fn with the IO state locked
func (s *Session) Sync(fn func(f *Frame)) {
	s.frame.mu.Lock()
	defer s.frame.mu.Unlock()
	fn(s.frame)
}

func read[T any](s *Session, fn func(f *Frame) T) T {
	s.frame.mu.Lock()
	defer s.frame.mu.Unlock()
	return fn(s.frame)
}

// Snapshot copies the current IO state
func (s *Session) Snapshot() *Snapshot {
	return read(s, (*Frame).snapshot)
}

func (s *Session) SetPwm(idx int, value int16, unit int) {
	s.Sync(func(f *Frame) { f.SetPwm(idx, value, unit) })
}

func (s *Session) Pwm(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.Pwm(idx, unit) })
}

// StopAll zeroes every output duty
func (s *Session) StopAll() {
	s.Sync((*Frame).StopAll)
}

func (s *Session) SetMotorSyncMaster(idx int, master int16, unit int) {
	s.Sync(func(f *Frame) { f.SetMotorSyncMaster(idx, master, unit) })
}

func (s *Session) SetMotorDistance(idx int, distance int16, unit int) {
	s.Sync(func(f *Frame) { f.SetMotorDistance(idx, distance, unit) })
}

func (s *Session) IncrMotorCmdID(idx, unit int) {
	s.Sync(func(f *Frame) { f.IncrMotorCmdID(idx, unit) })
}

func (s *Session) MotorCmdID(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.MotorCmdID(idx, unit) })
}

func (s *Session) IncrCounterCmdID(idx, unit int) {
	s.Sync(func(f *Frame) { f.IncrCounterCmdID(idx, unit) })
}

func (s *Session) CounterCmdID(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.CounterCmdID(idx, unit) })
}

func (s *Session) IncrSoundCmdID(unit int) {
	s.Sync(func(f *Frame) { f.IncrSoundCmdID(unit) })
}

func (s *Session) SetSoundIndex(index uint16, unit int) {
	s.Sync(func(f *Frame) { f.SetSoundIndex(index, unit) })
}

func (s *Session) SetSoundRepeat(repeat uint16, unit int) {
	s.Sync(func(f *Frame) { f.SetSoundRepeat(repeat, unit) })
}

func (s *Session) PlaySound(index, repeat uint16, unit int) {
	s.Sync(func(f *Frame) { f.PlaySound(index, repeat, unit) })
}

func (s *Session) StopSound(unit int) {
	s.Sync(func(f *Frame) { f.StopSound(unit) })
}

func (s *Session) SoundFinished(unit int) bool {
	return read(s, func(f *Frame) bool { return f.SoundFinished(unit) })
}

func (s *Session) CurrentInput(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.CurrentInput(idx, unit) })
}

func (s *Session) CurrentCounterInput(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.CurrentCounterInput(idx, unit) })
}

func (s *Session) CurrentCounterValue(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.CurrentCounterValue(idx, unit) })
}

func (s *Session) CurrentCounterCmdID(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.CurrentCounterCmdID(idx, unit) })
}

func (s *Session) CurrentMotorCmdID(idx, unit int) int16 {
	return read(s, func(f *Frame) int16 { return f.CurrentMotorCmdID(idx, unit) })
}

func (s *Session) CurrentSoundCmdID(unit int) uint16 {
	return read(s, func(f *Frame) uint16 { return f.CurrentSoundCmdID(unit) })
}

func (s *Session) IR(n int) protocol.Remote {
	return read(s, func(f *Frame) protocol.Remote { return f.IR(n) })
}

// directOnly reads a value the network protocol does not carry
func (s *Session) directOnly(op string, fn func(f *Frame) uint16) (uint16, error) {
	if !s.Direct() {
		return 0, protocol.Errorf(protocol.ClassConfiguration, op, "network mode: %w", protocol.ErrNotSupported)
	}
	return read(s, fn), nil
}

// Power returns the supply voltage in millivolts
func (s *Session) Power() (uint16, error) {
	return s.directOnly("power", (*Frame).Power)
}

func (s *Session) Temperature() (uint16, error) {
	return s.directOnly("temperature", (*Frame).Temperature)
}

func (s *Session) ReferencePower() (uint16, error) {
	return s.directOnly("reference power", (*Frame).ReferencePower)
}

func (s *Session) ExtensionPower() (uint16, error) {
	return s.directOnly("extension power", (*Frame).ExtensionPower)
}
