package link

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is the byte stream a session runs over.
type Port interface {
	io.ReadWriteCloser
	// Flush discards data received but not read.
	Flush() error
}

// PortConfig holds serial port configuration.
type PortConfig struct {
	// Device path, e.g. /dev/ttyACM0 or COM3.
	Device string
	Baud   int
	// ReadTimeout bounds a single read, 0 blocks.
	ReadTimeout time.Duration
}

// DefaultPortConfig returns the configuration for device at the default baud
// rate.
func DefaultPortConfig(device string) *PortConfig {
	return &PortConfig{
		Device:      device,
		Baud:        9600,
		ReadTimeout: 100 * time.Millisecond,
	}
}

type nativePort struct {
	port        *serial.Port
	readTimeout bool
}

// Open opens a native serial port.
func Open(cfg *PortConfig) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, fmt.Errorf("serial device not specified")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &nativePort{port: port, readTimeout: cfg.ReadTimeout > 0}, nil
}

// Read implements io.Reader. An expired read timeout is reported as an empty
// read rather than io.EOF.
func (p *nativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if err == io.EOF && p.readTimeout {
		return n, nil
	}
	return n, err
}

func (p *nativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *nativePort) Close() error {
	return p.port.Close()
}

// Flush is a no-op, pending input is drained by Session.Resync.
func (p *nativePort) Flush() error {
	return nil
}
