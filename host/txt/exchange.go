package txt

import (
	"context"
	"time"

	"txtlink/protocol"
)

// exchanger performs one request/response round against the IO frame
type exchanger interface {
	round(ctx context.Context) error
}

func (s *Session) newExchanger(c *connection) exchanger {
	switch {
	case c.direct:
		return &shieldExchanger{s: s, tr: c.control, sound: s.opts.SoundLink}
	case s.frame.units > 1:
		return &compressedExchanger{
			s:   s,
			tr:  c.control,
			enc: protocol.NewDeltaEncoder(protocol.RequestWords),
			dec: protocol.NewDeltaDecoder(protocol.ResponseWords, protocol.InitialResponseCRC),
		}
	default:
		return &simpleExchanger{s: s, tr: c.control}
	}
}

// exchangeLoop runs rounds separated by the update interval until ctx ends.
// Any round error ends the loop and, through the errgroup, the period.
func (s *Session) exchangeLoop(ctx context.Context, ex exchanger) error {
	timer := time.NewTimer(s.opts.UpdateInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		start := time.Now()
		if err := ex.round(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.metrics.recordRound(time.Since(start))
		s.completeRound(time.Now())

		timer.Reset(s.opts.UpdateInterval)
	}
}

// completeRound publishes the state left by a finished round
func (s *Session) completeRound(now time.Time) {
	snap := read(s, func(f *Frame) *Snapshot {
		f.completeRound(now)
		return f.snapshot()
	})
	s.broker.TryPub(snap, TopicIO)
	if s.opts.OnData != nil {
		s.opts.OnData(snap)
	}
}

// simpleExchanger speaks the uncompressed protocol of a single unit
type simpleExchanger struct {
	s  *Session
	tr *protocol.Transport
}

func (x *simpleExchanger) round(ctx context.Context) error {
	f := x.s.frame
	f.mu.Lock()
	req := protocol.EncodeSimpleRequest(&f.out[protocol.UnitMaster])
	remotes := f.remotes
	f.mu.Unlock()

	resp, err := x.tr.Exchange(ctx, req, protocol.ReadFixed(protocol.SimpleResponseSize))
	if err != nil {
		return err
	}
	var in protocol.UnitInputs
	if err := protocol.DecodeSimpleResponse(resp, &in, &remotes); err != nil {
		return err
	}

	f.mu.Lock()
	f.in[protocol.UnitMaster] = in
	f.remotes = remotes
	f.mu.Unlock()
	return nil
}

// compressedExchanger speaks the delta compressed protocol carrying the
// master and the extension. IR remotes are not reported in this mode.
type compressedExchanger struct {
	s   *Session
	tr  *protocol.Transport
	enc *protocol.DeltaEncoder
	dec *protocol.DeltaDecoder
}

func (x *compressedExchanger) round(ctx context.Context) error {
	f := x.s.frame
	f.mu.Lock()
	words := protocol.RequestWordsOf(&f.out)
	f.mu.Unlock()

	payload, crc, err := x.enc.Encode(words)
	if err != nil {
		return err
	}
	req := protocol.EncodeCompressed(protocol.IDExchangeDataCmpr, crc, payload)

	resp, err := x.tr.Exchange(ctx, req, protocol.ReadCompressed)
	if err != nil {
		return err
	}
	head, body, err := protocol.DecodeCompressed(resp, protocol.AckExchangeDataCmpr)
	if err != nil {
		return err
	}
	w, changed, err := x.dec.Decode(head.CRC, body)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	f.mu.Lock()
	protocol.ApplyResponseWords(w, &f.in)
	f.mu.Unlock()
	return nil
}

// shieldExchanger drives the motor shield of direct mode. The IO
// configuration goes out in the round after its generation changed.
type shieldExchanger struct {
	s     *Session
	tr    *protocol.Transport
	sound SoundLink

	cycle      uint8
	configured bool
	configID   int16
}

func (x *shieldExchanger) round(ctx context.Context) error {
	f := x.s.frame
	x.cycle = protocol.NextCycle(x.cycle)

	f.mu.Lock()
	var cfgReq []byte
	if !x.configured || f.configID[protocol.UnitMaster] != x.configID {
		cfgReq = protocol.EncodeShieldConfig(x.cycle, f.config[protocol.UnitMaster])
		x.configID = f.configID[protocol.UnitMaster]
		x.configured = true
	}
	cfg := f.config[protocol.UnitMaster]
	req := protocol.EncodeShieldExchange(x.cycle, &f.out[protocol.UnitMaster])
	wantSound := f.out[protocol.UnitMaster].Sound
	sound := f.in[protocol.UnitMaster].SoundCmdID
	remotes := f.remotes
	f.mu.Unlock()

	if cfgReq != nil {
		if _, err := x.tr.Exchange(ctx, cfgReq, protocol.ReadFixed(protocol.ShieldConfigSize)); err != nil {
			return err
		}
		x.s.log.WithField("config_id", x.configID).Debug("shield configured")
	}

	// sound commands complete at once; only the processor reset is sent
	if wantSound != sound {
		if x.sound != nil {
			if err := resetSound(x.sound); err != nil {
				x.s.log.WithError(err).Warn("sound command dropped")
			}
		}
		sound = wantSound
	}

	resp, err := x.tr.Exchange(ctx, req, protocol.ReadFixed(protocol.ShieldExchangeSize))
	if err != nil {
		return err
	}
	r, err := protocol.DecodeShieldExchange(resp, cfg, sound)
	if err != nil {
		return err
	}
	remotes[protocol.RemoteSlotAny] = r.Remotes[protocol.RemoteSlotAny]
	sender := int(r.Remotes[protocol.RemoteSlotAny].Dip) + 1
	remotes[sender] = r.Remotes[sender]

	f.mu.Lock()
	f.in[protocol.UnitMaster] = r.Inputs
	f.remotes = remotes
	f.mu.Unlock()
	return nil
}
