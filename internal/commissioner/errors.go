package commissioner

import (
	"fmt"
	"strings"
)

// TransportError wraps an I/O failure on the underlying channel. Fatal to
// the session.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports that an expected string (command echo or idle
// prompt) was not observed within the expect timeout. The session stays
// usable; retrying is up to the caller.
type ProtocolError struct {
	Expected string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("expected string not found: %q", e.Expected)
}

// TimeoutError reports a command that exceeded its execution budget even
// after the abort attempt. The in-flight command is lost; the session
// remains usable once the prompt reappears.
type TimeoutError struct {
	Command string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out beyond recovery: %q", e.Command)
}

// CommandTooLongError is returned before anything touches the transport.
type CommandTooLongError struct {
	Command string
	Length  int
}

func (e *CommandTooLongError) Error() string {
	return fmt.Sprintf("command too long (%d columns): %q", e.Length, e.Command)
}

// SessionClosedError is returned by any call on a closed session.
type SessionClosedError struct{}

func (e *SessionClosedError) Error() string { return "session is closed" }

// CommandError carries the full response of a command the remote process
// reported as failed (no [done] marker).
type CommandError struct {
	Command  string
	Response []string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed:\n%s", e.Command, strings.Join(e.Response, "\n"))
}

// CodecError reports an unknown TLV key, malformed hex, or a JSON shape
// mismatch during dataset encode/decode.
type CodecError struct {
	Field  string
	Reason string
}

func (e *CodecError) Error() string {
	if e.Field == "" {
		return "codec: " + e.Reason
	}
	return fmt.Sprintf("codec: field %s: %s", e.Field, e.Reason)
}

// InitError reports a failed session initialization, preserving whatever the
// init command printed.
type InitError struct {
	Output []string
}

func (e *InitError) Error() string {
	return "failed to init commissioner:\n" + strings.Join(e.Output, "\n")
}
