package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"txtlink/host/config"
	"txtlink/host/txt"
)

type Options struct {
	Config      string `short:"c" long:"config" description:"YAML configuration file"`
	Host        string `long:"host" description:"Controller address, auto or direct (overrides the file)"`
	Extension   bool   `long:"extension" description:"Drive an extension unit as well"`
	LogLevel    string `long:"log-level" description:"Log level (overrides the file)"`
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics on this address"`

	Status  StatusCommand  `command:"status" description:"Connect and print the controller identity"`
	Monitor MonitorCommand `command:"monitor" description:"Print input values while online"`
	Motor   MotorCommand   `command:"motor" description:"Run a motor at a speed, optionally for a distance"`
	Gesture GestureCommand `command:"gesture" description:"Print gestures seen by an APDS-9960 on the register channel"`
	Camera  CameraCommand  `command:"camera" description:"Save camera frames as JPEG files"`
	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "txtctl - fischertechnik TXT controller client"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, applies the global flags and
// sets up the standard logger
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Extension {
		cfg.UseExtension = true
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ConfigureLogger(logrus.StandardLogger()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runSession loads the configuration, connects and hands the online session
// to fn. Interrupts cancel the context passed to fn.
func runSession(fn func(ctx context.Context, cfg *config.Config, s *txt.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logrus.WithField("component", "txtctl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg prometheus.Registerer
	if opts.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		reg = registry
		go serveMetrics(log, registry)
	}

	var s *txt.Session
	failed := make(chan error, 1)
	sopts := cfg.SessionOptions(log, reg)
	sopts.OnError = func(err error) {
		// register failures arrive while the session stays online
		if s.Online() {
			return
		}
		select {
		case failed <- err:
		default:
		}
		stop()
	}
	s, err = txt.New(sopts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Connect(ctx); err != nil {
		return err
	}
	err = fn(ctx, cfg, s)
	select {
	case ferr := <-failed:
		return ferr
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(log *logrus.Entry, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	log.WithField("addr", opts.MetricsAddr).Info("serving metrics")
	if err := http.ListenAndServe(opts.MetricsAddr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}
