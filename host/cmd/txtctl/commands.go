package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"txtlink/host/config"
	"txtlink/host/serial"
	"txtlink/host/txt"
	"txtlink/protocol"
	"txtlink/sensor/apds9960"
)

type StatusCommand struct{}

func (c *StatusCommand) Execute(args []string) error {
	return runSession(func(ctx context.Context, _ *config.Config, s *txt.Session) error {
		st := s.Status()
		fmt.Printf("Device:   %s\n", st.Name)
		fmt.Printf("Firmware: %s\n", st.Firmware())
		fmt.Printf("Host:     %s\n", s.Host())
		fmt.Printf("Direct:   %v\n", s.Direct())
		fmt.Printf("Units:    %d\n", s.Units())
		if p, err := s.Power(); err == nil {
			fmt.Printf("Power:    %d mV\n", p)
		}
		return nil
	})
}

type MonitorCommand struct {
	Every time.Duration `long:"every" default:"500ms" description:"Print interval"`
}

func (c *MonitorCommand) Execute(args []string) error {
	return runSession(func(ctx context.Context, _ *config.Config, s *txt.Session) error {
		ch := s.Subscribe(txt.TopicIO)
		defer s.Unsubscribe(ch)

		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				snap := msg.(*txt.Snapshot)
				if snap.Time.Sub(last) < c.Every {
					continue
				}
				last = snap.Time
				printSnapshot(s.Units(), snap)
			}
		}
	})
}

func printSnapshot(units int, snap *txt.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d", snap.Round)
	for u := 0; u < units; u++ {
		in := snap.Inputs[u]
		fmt.Fprintf(&b, " | unit %d I%v C%v", u, in.Input, in.CounterValue)
	}
	fmt.Println(b.String())
}

type MotorCommand struct {
	Output   int           `short:"m" long:"output" default:"1" description:"Motor output M1-M4"`
	Unit     int           `long:"unit" default:"0" description:"0 for the master, 1 for the extension"`
	Speed    int           `short:"s" long:"speed" default:"8" description:"Speed -8..8"`
	Distance int16         `short:"d" long:"distance" description:"Encoder steps to run, 0 to run until interrupted"`
	Timeout  time.Duration `long:"timeout" default:"30s" description:"Give up waiting for the distance after this long"`
}

func (c *MotorCommand) Execute(args []string) error {
	return runSession(func(ctx context.Context, _ *config.Config, s *txt.Session) error {
		m, err := s.Motor(ctx, c.Output, c.Unit, true)
		if err != nil {
			return err
		}
		defer m.Stop()

		if c.Distance > 0 {
			m.SetDistance(c.Distance, nil)
		}
		m.SetSpeed(c.Speed)
		if c.Distance <= 0 {
			<-ctx.Done()
			return ctx.Err()
		}

		ctx, cancel := context.WithTimeout(ctx, c.Timeout)
		defer cancel()
		// the command id reaches the controller with the next round
		if err := s.UpdateWait(ctx); err != nil {
			return err
		}
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for !m.Finished() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		fmt.Printf("M%d finished after %d steps\n", c.Output, m.CurrentDistance())
		return nil
	})
}

type GestureCommand struct{}

func (c *GestureCommand) Execute(args []string) error {
	return runSession(func(ctx context.Context, cfg *config.Config, s *txt.Session) error {
		ch, err := s.Registers()
		if err != nil {
			return err
		}
		dev := apds9960.New(ch, nil)
		if err := dev.Reset(); err != nil {
			return err
		}
		sensor := apds9960.NewGestureCapture(dev, cfg.Gesture.DecoderConfig, cfg.Gesture.Poll)
		if err := sensor.On(); err != nil {
			return err
		}
		defer sensor.Off()

		fmt.Println("Waiting for gestures, interrupt to stop")
		for {
			g, err := sensor.Read(ctx)
			if err != nil {
				return err
			}
			if g != apds9960.GestureNone {
				fmt.Println(g)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Gesture.Poll):
			}
		}
	})
}

type CameraCommand struct {
	Frames int    `short:"n" long:"frames" default:"1" description:"Number of frames to save"`
	Out    string `short:"o" long:"out" default:"." description:"Output directory"`
}

func (c *CameraCommand) Execute(args []string) error {
	return runSession(func(ctx context.Context, cfg *config.Config, s *txt.Session) error {
		if err := os.MkdirAll(c.Out, 0o755); err != nil {
			return err
		}
		if err := s.StartCamera(ctx, cfg.Camera.Protocol()); err != nil {
			return err
		}
		defer s.StopCamera(context.Background())

		for saved := 0; saved < c.Frames; {
			f, err := s.CameraFrame(ctx)
			if errors.Is(err, txt.ErrNoFrame) {
				if !s.CameraOnline() {
					fmt.Println("Waiting for the camera...")
				}
				continue
			}
			if err != nil {
				return err
			}
			name := filepath.Join(c.Out, fmt.Sprintf("frame-%03d.jpg", saved))
			if err := os.WriteFile(name, f.Data, 0o644); err != nil {
				return err
			}
			fmt.Printf("%s %dx%d %d bytes\n", name, f.Header.Width, f.Header.Height, len(f.Data))
			saved++
		}
		return nil
	})
}

type PortsCommand struct {
	Check string `long:"check" description:"Only report whether this device is present"`
}

func (c *PortsCommand) Execute(args []string) error {
	if c.Check != "" {
		ok, err := serial.Present(c.Check)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", c.Check, protocol.ErrDeviceNotFound)
		}
		fmt.Printf("%s present\n", c.Check)
		return nil
	}

	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%s  USB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
		} else {
			fmt.Println(p.Name)
		}
	}
	return nil
}
