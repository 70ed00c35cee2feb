package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"
)

// PTY drives a locally spawned process (normally a shell that can reach the
// commissioner ctl script) through a pseudo-terminal.
type PTY struct {
	cmd    *exec.Cmd
	file   *os.File
	logger *slog.Logger

	closeMu sync.Mutex
	closed  bool
}

// SpawnPTY starts the given program with arguments on a fresh pty.
func SpawnPTY(program string, args []string, logger *slog.Logger) (*PTY, error) {
	cmd := exec.Command(program, args...)
	file, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("pty transport: spawn %s: %w", program, err)
	}
	logger.Info("pty transport spawned", "program", program, "pid", cmd.Process.Pid)
	return &PTY{cmd: cmd, file: file, logger: logger}, nil
}

func (p *PTY) WriteLine(line string) error {
	if _, err := p.file.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("pty write: %w", err)
	}
	return nil
}

func (p *PTY) ReadAvailable(max int) (string, error) {
	// A deadline in the immediate future makes the read non-blocking; a
	// would-block read surfaces as ErrDeadlineExceeded and maps to "".
	if err := p.file.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return "", fmt.Errorf("pty set deadline: %w", err)
	}
	buf := make([]byte, max)
	n, err := p.file.Read(buf)
	if n > 0 {
		p.logger.Debug("pty read", "bytes", n)
		return ansi.Strip(string(buf[:n])), nil
	}
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return "", fmt.Errorf("pty read: %w", err)
	}
	return "", nil
}

// Interrupt delivers SIGINT to the spawned process, aborting whatever the
// CLI is blocked on.
func (p *PTY) Interrupt() error {
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		return fmt.Errorf("pty interrupt: %w", err)
	}
	return nil
}

// Terminate force-kills the spawned process without waiting for a clean exit.
func (p *PTY) Terminate() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("pty terminate: %w", err)
	}
	_ = p.cmd.Wait()
	return nil
}

// Close tears down the pty and reaps the process exactly once.
func (p *PTY) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.file.Close()
	if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) && err == nil {
		err = kerr
	}
	_ = p.cmd.Wait()
	p.logger.Debug("pty transport closed", "pid", p.cmd.Process.Pid)
	return err
}
