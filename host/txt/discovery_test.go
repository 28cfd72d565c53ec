package txt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txtlink/protocol"
)

// prober accepts connections from the hosts in answering and records the
// order in which hosts were tried
type prober struct {
	mu        sync.Mutex
	answering map[string]bool
	tried     []string
}

func (p *prober) dial(_ context.Context, _, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tried = append(p.tried, host)
	if !p.answering[host] {
		return nil, fmt.Errorf("dial %s: connection refused", addr)
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func TestResolve(t *testing.T) {
	offController := func() (string, error) { return "workstation", nil }
	onTXT := func() (string, error) { return "FT-txt-0815", nil }

	tests := []struct {
		name      string
		host      string
		fallback  string
		hostname  func() (string, error)
		alive     bool
		answering []string

		want      endpoint
		wantErr   error
		wantTried []string
	}{
		{
			name:     "explicit host is not probed",
			host:     "10.1.1.1",
			hostname: offController,
			want:     endpoint{host: "10.1.1.1"},
		},
		{
			name:      "auto takes first answering candidate",
			host:      HostAuto,
			hostname:  offController,
			answering: []string{"192.168.8.2", "192.168.9.2"},
			want:      endpoint{host: "192.168.8.2"},
			wantTried: []string{"192.168.7.2", "192.168.8.2"},
		},
		{
			name:      "auto ends with fallback",
			host:      HostAuto,
			fallback:  "10.9.9.9",
			hostname:  offController,
			answering: []string{"10.9.9.9"},
			want:      endpoint{host: "10.9.9.9"},
			wantTried: []string{"192.168.7.2", "192.168.8.2", "192.168.9.2", "10.9.9.9"},
		},
		{
			name:      "auto finds nothing",
			host:      HostAuto,
			hostname:  offController,
			wantErr:   protocol.ErrNoDeviceFound,
			wantTried: []string{"192.168.7.2", "192.168.8.2", "192.168.9.2"},
		},
		{
			name:     "direct outside the controller",
			host:     HostDirect,
			hostname: offController,
			wantErr:  protocol.ErrNotSupported,
		},
		{
			name:     "hostname failure counts as outside",
			host:     HostDirect,
			hostname: func() (string, error) { return "", errors.New("no hostname") },
			wantErr:  protocol.ErrNotSupported,
		},
		{
			name:      "on controller uses loopback",
			host:      HostAuto,
			hostname:  onTXT,
			alive:     true,
			answering: []string{"127.0.0.1"},
			want:      endpoint{host: "127.0.0.1"},
			wantTried: []string{"127.0.0.1"},
		},
		{
			name:      "on controller loopback silent",
			host:      "localhost",
			hostname:  onTXT,
			alive:     true,
			wantErr:   protocol.ErrNoDeviceFound,
			wantTried: []string{"127.0.0.1"},
		},
		{
			name:     "on controller without control process",
			host:     HostAuto,
			hostname: onTXT,
			want:     endpoint{direct: true},
		},
		{
			name:     "localhost without control process",
			host:     "127.0.0.1",
			hostname: func() (string, error) { return "ft-txt", nil },
			want:     endpoint{direct: true},
		},
		{
			name:     "direct while control process runs",
			host:     HostDirect,
			hostname: onTXT,
			alive:    true,
			wantErr:  protocol.ErrNotSupported,
		},
		{
			name:     "direct requested on controller",
			host:     HostDirect,
			hostname: onTXT,
			want:     endpoint{direct: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &prober{answering: map[string]bool{}}
			for _, h := range tt.answering {
				p.answering[h] = true
			}
			logger, _ := logtest.NewNullLogger()
			s, err := New(Options{
				Host:         tt.host,
				Fallback:     tt.fallback,
				Logger:       logrus.NewEntry(logger),
				Hostname:     tt.hostname,
				ControlAlive: func() bool { return tt.alive },
				Dial:         p.dial,
			})
			require.NoError(t, err)

			got, err := s.resolve(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.wantTried, p.tried)
		})
	}
}

func TestResolveCanceled(t *testing.T) {
	p := &prober{}
	s, err := New(Options{Host: HostAuto, Hostname: func() (string, error) { return "pc", nil }, Dial: p.dial})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.tried)
}

func TestControlProcessNotRunning(t *testing.T) {
	assert.False(t, controlProcessRunning())
}
