// Package transport provides line-oriented I/O channels to the external
// commissioner CLI process: a serial device handler and a spawned
// pseudo-terminal handler sharing one contract.
package transport

// Transport is the narrow capability interface the session drives the
// external CLI process through. Exactly one session owns a Transport at a
// time; the owner closes it on every exit path.
type Transport interface {
	// WriteLine sends one CRLF-terminated command line.
	WriteLine(line string) error

	// ReadAvailable returns whatever input is pending, up to max bytes,
	// with terminal control sequences stripped. It never blocks beyond a
	// short OS-level timeout; when nothing is pending it returns "".
	ReadAvailable(max int) (string, error)

	// Interrupt asks the remote end to abort the in-flight command.
	Interrupt() error

	// Close releases the underlying OS resource. Idempotent.
	Close() error
}
