package txt

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"txtlink/host/serial"
	"txtlink/protocol"
)

// Host selectors understood by Options.Host
const (
	HostAuto   = "auto"
	HostDirect = "direct"
)

// Defaults applied to zero Options fields
const (
	DefaultUpdateInterval = 10 * time.Millisecond
	DefaultTimeout        = 5 * time.Second
	DefaultProbeTimeout   = 500 * time.Millisecond
	DefaultKeepAliveIdle  = time.Second
)

// Options configures a Session
type Options struct {
	// Host is HostAuto, HostDirect or a controller address
	Host string
	// Port is the control port; camera and register channels follow it
	Port int
	// Fallback is probed last by HostAuto
	Fallback string
	// UseExtension enables the compressed exchange carrying a second unit
	UseExtension bool

	UpdateInterval time.Duration
	Timeout        time.Duration
	ProbeTimeout   time.Duration
	KeepAliveIdle  time.Duration

	// Serial configures the motor shield line of direct mode
	Serial *serial.Config
	// SoundLink is the optional sound processor of direct mode
	SoundLink SoundLink

	Logger *logrus.Entry
	// Registerer receives the session metrics; nil disables them
	Registerer prometheus.Registerer

	// OnData runs after every completed exchange round. It must not call
	// SyncDataBegin.
	OnData func(*Snapshot)
	// OnError receives the error that took the session offline and every
	// failed register channel transaction
	OnError func(error)

	// Environment seams, replaced by tests
	Hostname     func() (string, error)
	ControlAlive func() bool
	Dial         func(ctx context.Context, network, addr string) (net.Conn, error)
	OpenSerial   func(*serial.Config) (serial.Port, error)
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = HostAuto
	}
	if o.Port == 0 {
		o.Port = protocol.DefaultPort
	}
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = DefaultUpdateInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.KeepAliveIdle <= 0 {
		o.KeepAliveIdle = DefaultKeepAliveIdle
	}
	if o.Serial == nil {
		o.Serial = serial.DefaultConfig("")
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Hostname == nil {
		o.Hostname = os.Hostname
	}
	if o.ControlAlive == nil {
		o.ControlAlive = controlProcessRunning
	}
	if o.Dial == nil {
		o.Dial = (&net.Dialer{}).DialContext
	}
	if o.OpenSerial == nil {
		o.OpenSerial = serial.Open
	}
}
