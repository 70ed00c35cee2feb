package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"go.bug.st/serial"
)

// etx is the interrupt character (Ctrl-C) delivered in-band on a serial line.
const etx = 0x03

// serialReadTimeout bounds a single blocking read on the device. The session
// polls on top of this, so it stays short.
const serialReadTimeout = 50 * time.Millisecond

// Serial drives the commissioner CLI over a serial device, e.g. the console
// line of a border router.
type Serial struct {
	port   serial.Port
	name   string
	logger *slog.Logger

	closeMu sync.Mutex
	closed  bool
}

// OpenSerial opens the device at the given baud rate, 8N1.
func OpenSerial(name string, baud int, logger *slog.Logger) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial transport: open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial transport: set read timeout: %w", err)
	}
	logger.Info("serial transport opened", "port", name, "baud", baud)
	return &Serial{port: port, name: name, logger: logger}, nil
}

func (s *Serial) WriteLine(line string) error {
	if _, err := s.port.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (s *Serial) ReadAvailable(max int) (string, error) {
	buf := make([]byte, max)
	n, err := s.port.Read(buf)
	if err != nil {
		return "", fmt.Errorf("serial read: %w", err)
	}
	if n == 0 {
		// Read timeout elapsed with nothing pending.
		return "", nil
	}
	s.logger.Debug("serial read", "bytes", n)
	return ansi.Strip(string(buf[:n])), nil
}

func (s *Serial) Interrupt() error {
	if _, err := s.port.Write([]byte{etx}); err != nil {
		return fmt.Errorf("serial interrupt: %w", err)
	}
	return nil
}

// Close releases the device exactly once.
func (s *Serial) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("serial transport closed", "port", s.name)
	return s.port.Close()
}
