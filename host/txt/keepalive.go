package txt

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"txtlink/protocol"
)

// keepAlive probes the controller with a status query whenever the control
// link was idle for longer than Options.KeepAliveIdle. A failed or
// malformed probe ends the online period.
func (s *Session) keepAlive(ctx context.Context, tr *protocol.Transport) error {
	idle := s.opts.KeepAliveIdle
	limiter := rate.NewLimiter(rate.Every(idle), 1)
	log := s.log.WithField("component", "keepalive")

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		if time.Since(tr.LastExchange()) <= idle {
			continue
		}

		s.metrics.recordProbe()
		resp, err := tr.Exchange(ctx, protocol.EncodeID(protocol.IDQueryStatus), protocol.ReadFixed(protocol.StatusResponseSize))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := protocol.DecodeStatus(resp); err != nil {
			return err
		}
		log.Debug("probe answered")
	}
}
