package protocol

// Exchange frame sizes
const (
	SimpleRequestSize  = 60
	SimpleResponseSize = 80
	CompressedHeader   = 16

	irBytes = 26

	// RequestWords is the word count of a compressed request: two unit blocks
	RequestWords = 2 * outputWords
	// ResponseWords is the word count of a compressed response
	ResponseWords = 77

	extensionResponseOffset = 52
)

// EncodeSimpleRequest builds the uncompressed exchange request of the master unit
func EncodeSimpleRequest(o *UnitOutputs) []byte {
	buf := le.AppendUint32(make([]byte, 0, SimpleRequestSize), IDExchangeData)
	for _, w := range o.Words() {
		buf = le.AppendUint16(buf, w)
	}
	// two reserved bytes
	return append(buf, 0, 0)
}

// DecodeSimpleRequest parses a simple request; used by test controllers
func DecodeSimpleRequest(data []byte) (UnitOutputs, error) {
	var o UnitOutputs
	if len(data) != SimpleRequestSize || le.Uint32(data) != IDExchangeData {
		return o, Errorf(ClassProtocol, "exchange data", "malformed request: %w", ErrFrameDecode)
	}
	w := make([]uint16, outputWords)
	for i := range w {
		w[i] = le.Uint16(data[4+2*i:])
	}
	o.setWords(w)
	return o, nil
}

func (o *UnitOutputs) setWords(w []uint16) {
	for i := range o.Pwm {
		o.Pwm[i] = int16(w[i])
	}
	for i := 0; i < NumMotors; i++ {
		o.MotorSync[i] = int16(w[8+i])
		o.MotorDistance[i] = int16(w[12+i])
		o.MotorCmdID[i] = int16(w[16+i])
		o.CounterCmdID[i] = int16(w[20+i])
	}
	o.Sound, o.SoundIndex, o.SoundRepeat = w[24], w[25], w[26]
}

// DecodeSimpleResponse parses the uncompressed exchange response
func DecodeSimpleResponse(data []byte, in *UnitInputs, remotes *[NumRemotes]Remote) error {
	if len(data) != SimpleResponseSize {
		return Errorf(ClassProtocol, "exchange data", "response has %d bytes, want %d: %w", len(data), SimpleResponseSize, ErrFrameDecode)
	}
	if got := le.Uint32(data); got != AckExchangeData {
		return Errorf(ClassProtocol, "exchange data", "ack 0x%08X: %w", got, ErrProtocolMismatch)
	}
	w := make([]uint16, 25)
	for i := range w {
		w[i] = le.Uint16(data[4+2*i:])
	}
	in.applyWords(w, true)
	remotesFromIR(data[54:54+irBytes], remotes)
	return nil
}

// EncodeSimpleResponse builds a simple response; used by test controllers
func EncodeSimpleResponse(in *UnitInputs, ir [irBytes]byte) []byte {
	buf := le.AppendUint32(make([]byte, 0, SimpleResponseSize), AckExchangeData)
	for _, w := range in.responseWords() {
		buf = le.AppendUint16(buf, w)
	}
	return append(buf, ir[:]...)
}

func (in *UnitInputs) responseWords() []uint16 {
	w := make([]uint16, 0, 25)
	for _, v := range in.Input {
		w = append(w, uint16(v))
	}
	for _, arr := range [][NumCounters]int16{in.Counter, in.CounterValue, in.CounterCmdID, in.MotorCmdID} {
		for _, v := range arr {
			w = append(w, uint16(v))
		}
	}
	return append(w, in.SoundCmdID)
}

// CompressedHeaderFields is the uncompressed head of a compressed exchange
type CompressedHeaderFields struct {
	ID         uint32
	Size       uint32
	CRC        uint32
	Extensions uint16
}

// EncodeCompressed builds a compressed exchange request around a delta payload
func EncodeCompressed(id uint32, crc uint32, payload []byte) []byte {
	buf := make([]byte, 0, CompressedHeader+len(payload))
	buf = le.AppendUint32(buf, id)
	buf = le.AppendUint32(buf, uint32(len(payload)))
	buf = le.AppendUint32(buf, crc)
	buf = le.AppendUint16(buf, 1)
	buf = le.AppendUint16(buf, 0)
	return append(buf, payload...)
}

// DecodeCompressed splits a compressed exchange frame into header and payload
func DecodeCompressed(data []byte, wantID uint32) (CompressedHeaderFields, []byte, error) {
	var h CompressedHeaderFields
	if len(data) < CompressedHeader {
		return h, nil, Errorf(ClassProtocol, "exchange compressed", "frame has %d bytes: %w", len(data), ErrFrameDecode)
	}
	h = CompressedHeaderFields{
		ID:         le.Uint32(data),
		Size:       le.Uint32(data[4:]),
		CRC:        le.Uint32(data[8:]),
		Extensions: le.Uint16(data[12:]),
	}
	if h.ID != wantID {
		return h, nil, Errorf(ClassProtocol, "exchange compressed", "id 0x%08X, want 0x%08X: %w", h.ID, wantID, ErrProtocolMismatch)
	}
	payload := data[CompressedHeader:]
	if int(h.Size) < len(payload) {
		payload = payload[:h.Size]
	}
	return h, payload, nil
}

// RequestWordsOf lays out master and extension outputs in compressed request order
func RequestWordsOf(units *[MaxUnits]UnitOutputs) []uint16 {
	return append(units[UnitMaster].Words(), units[UnitExtension].Words()...)
}

// ApplyResponseWords loads a decoded compressed response into both units
func ApplyResponseWords(w []uint16, units *[MaxUnits]UnitInputs) {
	units[UnitMaster].applyWords(w, true)
	units[UnitExtension].applyWords(w[extensionResponseOffset:], false)
}

// ResponseWordsOf lays out both units in compressed response order; used
// by test controllers
func ResponseWordsOf(units *[MaxUnits]UnitInputs) []uint16 {
	w := make([]uint16, ResponseWords)
	copy(w, units[UnitMaster].responseWords())
	copy(w[extensionResponseOffset:], units[UnitExtension].responseWords()[:24])
	return w
}

// OutputsFromRequestWords is the inverse of RequestWordsOf
func OutputsFromRequestWords(w []uint16) [MaxUnits]UnitOutputs {
	var units [MaxUnits]UnitOutputs
	units[UnitMaster].setWords(w[:outputWords])
	units[UnitExtension].setWords(w[outputWords:])
	return units
}
