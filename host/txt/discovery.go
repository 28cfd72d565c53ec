package txt

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"txtlink/protocol"
)

// controlProcess is the firmware process serving the network protocol
const controlProcess = "TxtControlMain"

// Addresses of the controller on its USB, WLAN and Bluetooth links
var candidateHosts = []string{"192.168.7.2", "192.168.8.2", "192.168.9.2"}

// endpoint is the resolved target of a session
type endpoint struct {
	direct bool
	host   string
}

// onController reports whether this process runs on the controller itself
func onController(hostname func() (string, error)) bool {
	name, err := hostname()
	if err != nil {
		return false
	}
	return strings.Contains(name, "FT-txt") || strings.Contains(name, "ft-txt")
}

// controlProcessRunning scans the process table for the control process
func controlProcessRunning() bool {
	matches, err := filepath.Glob("/proc/[0-9]*/cmdline")
	if err != nil {
		return false
	}
	for _, m := range matches {
		cmdline, err := os.ReadFile(m)
		if err != nil {
			continue // process exited
		}
		if bytes.Contains(cmdline, []byte(controlProcess)) {
			return true
		}
	}
	return false
}

// probe reports whether host accepts a connection on the control port
func (s *Session) probe(ctx context.Context, host string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	conn, err := s.opts.Dial(ctx, "tcp", s.controlAddr(host))
	if err != nil {
		s.log.WithField("host", host).WithError(err).Debug("probe failed")
		return false
	}
	conn.Close()
	return true
}

func (s *Session) controlAddr(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(s.opts.Port))
}

// resolve applies the endpoint policy to Options.Host
func (s *Session) resolve(ctx context.Context) (endpoint, error) {
	host := s.opts.Host
	local := host == HostAuto || host == HostDirect || host == "localhost" || host == "127.0.0.1"

	if local && onController(s.opts.Hostname) {
		alive := s.opts.ControlAlive()
		switch {
		case host == HostDirect && alive:
			return endpoint{}, protocol.Errorf(protocol.ClassConfiguration, "resolve",
				"direct mode while %s is running: %w", controlProcess, protocol.ErrNotSupported)
		case host == HostDirect || !alive:
			return endpoint{direct: true}, nil
		}
		if s.probe(ctx, "127.0.0.1") {
			return endpoint{host: "127.0.0.1"}, nil
		}
		return endpoint{}, protocol.Errorf(protocol.ClassTransport, "resolve",
			"%s not answering on loopback: %w", controlProcess, protocol.ErrNoDeviceFound)
	}

	switch host {
	case HostDirect:
		return endpoint{}, protocol.Errorf(protocol.ClassConfiguration, "resolve",
			"direct mode outside the controller: %w", protocol.ErrNotSupported)
	case HostAuto:
		candidates := append([]string(nil), candidateHosts...)
		if s.opts.Fallback != "" {
			candidates = append(candidates, s.opts.Fallback)
		}
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return endpoint{}, err
			}
			if s.probe(ctx, c) {
				return endpoint{host: c}, nil
			}
		}
		return endpoint{}, protocol.Errorf(protocol.ClassTransport, "resolve",
			"tried %s: %w", strings.Join(candidates, ", "), protocol.ErrNoDeviceFound)
	}
	return endpoint{host: host}, nil
}
