package txt

import "txtlink/protocol"

// SoundLink is the SPI connection to the sound processor in direct mode.
// Transfer clocks tx out and returns the bytes clocked in.
type SoundLink interface {
	Transfer(tx []byte) ([]byte, error)
}

// Sound processor commands and replies
const (
	soundCmdReset   = 0x90
	soundMsgCmdMode = 0xBB // reply while in command mode
)

// resetSound puts the sound processor back into command mode
func resetSound(link SoundLink) error {
	rx, err := link.Transfer([]byte{soundCmdReset, 0, 0})
	if err != nil {
		return protocol.Wrap(protocol.ClassTransport, "sound reset", err)
	}
	if len(rx) == 0 || rx[0] != soundMsgCmdMode {
		return protocol.Errorf(protocol.ClassProtocol, "sound reset", "reply % X: %w", rx, protocol.ErrProtocolMismatch)
	}
	return nil
}
