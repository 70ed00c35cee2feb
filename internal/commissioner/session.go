package commissioner

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"thread-comm-bridge/internal/transport"
)

// State is the session lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateInitializing
	StateIdle
	StateExecuting
	StateAborted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateAborted:
		return "aborted"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// readChunk is how many bytes one transport poll asks for.
const readChunk = 512

// SessionConfig carries the prompt literal and timing knobs. Prompt has no
// process-wide default: every session names its own shell identity, so
// sessions with different credentials can coexist.
type SessionConfig struct {
	// Prompt is the literal the shell prints when idle. A response line is
	// a prompt line when it starts with this string.
	Prompt string

	// CommandTimeout caps one command's execution, echo wait included.
	CommandTimeout time.Duration

	// PollInterval is the sleep between transport polls.
	PollInterval time.Duration

	// AbortGrace is how long to wait for the prompt after an interrupt.
	AbortGrace time.Duration

	// MaxColumns is the terminal column budget a command line plus prompt
	// must stay under.
	MaxColumns int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.AbortGrace == 0 {
		c.AbortGrace = time.Second
	}
	if c.MaxColumns == 0 {
		c.MaxColumns = 4096
	}
	return c
}

// Session owns one Transport and runs the shell command/response exchange on
// it: echo detection, prompt-delimited responses, timeout abort. One command
// is in flight at a time; concurrent use requires independent sessions.
type Session struct {
	tr     transport.Transport
	cfg    SessionConfig
	logger *slog.Logger

	state State
	// lines holds split-but-unconsumed transport output. The last element
	// may be a partial line and is completed by the next read.
	lines []string
}

// NewSession wraps an open transport. The transport is exclusively owned by
// the session from here on and is released by Close.
func NewSession(tr transport.Transport, cfg SessionConfig, logger *slog.Logger) *Session {
	return &Session{
		tr:     tr,
		cfg:    cfg.withDefaults(),
		logger: logger,
		state:  StateIdle,
	}
}

// State reports the current lifecycle position.
func (s *Session) State() State { return s.state }

// Command writes one command line and returns the response lines between the
// command echo and the next idle prompt, using the configured timeout.
func (s *Session) Command(cmd string) ([]string, error) {
	return s.CommandTimeout(cmd, s.cfg.CommandTimeout)
}

// CommandTimeout is Command with an explicit execution budget.
func (s *Session) CommandTimeout(cmd string, timeout time.Duration) ([]string, error) {
	if s.state == StateClosed {
		return nil, &SessionClosedError{}
	}
	if length := len(cmd) + len(s.cfg.Prompt); length >= s.cfg.MaxColumns {
		return nil, &CommandTooLongError{Command: cmd, Length: length}
	}

	s.state = StateExecuting
	lines, err := s.run(cmd, timeout)
	if s.state != StateClosed {
		s.state = StateIdle
	}
	return lines, err
}

func (s *Session) run(cmd string, timeout time.Duration) ([]string, error) {
	if err := s.writeLine(cmd); err != nil {
		return nil, err
	}
	if err := s.expect(cmd, timeout); err != nil {
		return nil, err
	}

	var response []string
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, ok, err := s.readLine()
		if err != nil {
			return nil, s.fail(err)
		}
		if ok && line != "" {
			if strings.HasPrefix(line, s.cfg.Prompt) {
				s.logger.Debug("command done", "cmd", cmd, "lines", len(response))
				return response, nil
			}
			response = append(response, line)
			continue
		}
		if s.tailPrompt() {
			s.logger.Debug("command done", "cmd", cmd, "lines", len(response))
			return response, nil
		}
		time.Sleep(s.cfg.PollInterval)
	}

	return s.abort(cmd, response)
}

// abort interrupts the remote process after a command overran its budget and
// waits a grace window for the prompt to come back.
func (s *Session) abort(cmd string, drained []string) ([]string, error) {
	s.state = StateAborted
	s.logger.Warn("command timed out, sending interrupt", "cmd", cmd)
	if err := s.tr.Interrupt(); err != nil {
		return nil, s.fail(err)
	}

	deadline := time.Now().Add(s.cfg.AbortGrace)
	for time.Now().Before(deadline) {
		line, ok, err := s.readLine()
		if err != nil {
			return nil, s.fail(err)
		}
		if ok && line != "" {
			if strings.HasPrefix(line, s.cfg.Prompt) {
				result := append([]string{fmt.Sprintf("Timed out executing %q", cmd)}, drained...)
				s.logger.Warn("command aborted, session resynchronized", "cmd", cmd)
				return result, nil
			}
			drained = append(drained, line)
			continue
		}
		if s.tailPrompt() {
			result := append([]string{fmt.Sprintf("Timed out executing %q", cmd)}, drained...)
			s.logger.Warn("command aborted, session resynchronized", "cmd", cmd)
			return result, nil
		}
		time.Sleep(s.cfg.PollInterval)
	}

	return nil, &TimeoutError{Command: cmd}
}

// expect waits until the transport echoes the exact command line, discarding
// anything left over from an earlier exchange.
func (s *Session) expect(expected string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, ok, err := s.readLine()
		if err != nil {
			return s.fail(err)
		}
		if ok {
			s.logger.Debug("expect", "want", expected, "got", line)
			if line == expected {
				return nil
			}
			continue
		}
		time.Sleep(s.cfg.PollInterval)
	}
	return &ProtocolError{Expected: expected}
}

// writeLine drops buffered output, drains the transport and sends the line.
func (s *Session) writeLine(line string) error {
	s.lines = nil
	if _, err := s.tr.ReadAvailable(readChunk); err != nil {
		return s.fail(err)
	}
	s.logger.Debug("write line", "line", line)
	if err := s.tr.WriteLine(line); err != nil {
		return s.fail(err)
	}
	s.lines = nil
	return nil
}

// readLine pops one complete buffered line, refilling the buffer from the
// transport when fewer than two segments remain. The trailing segment may be
// a partial line and is kept for the next refill.
func (s *Session) readLine() (string, bool, error) {
	if len(s.lines) > 1 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		return line, true, nil
	}

	tail := ""
	if len(s.lines) > 0 {
		tail = s.lines[len(s.lines)-1]
		s.lines = s.lines[:len(s.lines)-1]
	}
	chunk, err := s.tr.ReadAvailable(readChunk)
	if err != nil {
		return "", false, err
	}
	s.lines = append(s.lines, splitLines(tail+chunk)...)

	if len(s.lines) > 1 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		return line, true, nil
	}
	return "", false, nil
}

// tailPrompt reports whether the unterminated trailing segment is the idle
// prompt, consuming it when so. Shells print the prompt without a newline,
// so it never completes into a line of its own.
func (s *Session) tailPrompt() bool {
	if len(s.lines) == 1 && strings.HasPrefix(s.lines[0], s.cfg.Prompt) {
		s.lines = nil
		return true
	}
	return false
}

// splitLines splits on CRLF or bare LF. The result always has at least one
// element; the last one is the unterminated remainder.
func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// fail marks the session dead after a transport error and releases the
// transport.
func (s *Session) fail(err error) error {
	s.state = StateClosed
	_ = s.tr.Close()
	return &TransportError{Err: err}
}

// Close releases the transport. Safe to call more than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	return s.tr.Close()
}
