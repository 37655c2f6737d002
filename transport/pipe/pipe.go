// Package pipe provides the point-to-point pipe transport for metricflow.
// A pipe carries exactly one producer and one collector: the creating
// process keeps the receive end and moves the send end, once, to exactly one
// other process.
//
// Ownership of the send end is a move. Export detaches the descriptor from a
// Sender and yields a raw transferable handle; ImportHandle turns that raw
// value back into a usable Sender. A Sender whose descriptor has been
// exported rejects every further operation with ErrSenderExported.
package pipe

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/drblury/metricflow/logging"
	"github.com/drblury/metricflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "pipe"

var (
	// ErrSenderExported reports use of a send end after its descriptor was
	// exported to a raw handle.
	ErrSenderExported = errors.New("metricflow: pipe sender has been exported")

	// ErrSenderTaken reports a second attempt to take the send end from a
	// pipe listener. The sender is consumed by the first take.
	ErrSenderTaken = errors.New("metricflow: pipe sender already taken")
)

func init() {
	transport.Register(TransportName, Build, transport.Capabilities{
		Name:               TransportName,
		TransferableSender: true,
	})
}

// Build creates a pipe listener from transport config. The send end is
// retrieved through the transport.SenderSource capability.
func Build(cfg transport.Config, logger logging.Logger) (transport.Listener, error) {
	listener, _, err := New()
	return listener, err
}

// New creates a bound pipe pair: a listener owning the receive end and the
// sender meant to be handed to exactly one other process.
func New() (*Listener, *Sender, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	sender := &Sender{file: writer}
	return &Listener{reader: reader, sender: sender}, sender, nil
}

// Sender is the movable write end of a pipe. Writes are serialized; a
// sender is safe for concurrent use until it is exported or closed.
type Sender struct {
	mu   sync.Mutex
	file *os.File
}

// Write writes p to the pipe.
func (s *Sender) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, ErrSenderExported
	}
	return s.file.Write(p)
}

// Close closes the send end; the collector's read loop observes EOF and
// terminates normally.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Export consumes the sender and returns its descriptor as a raw
// transferable handle. The descriptor is duplicated out of the os.File so
// the handle stays valid independently of Go runtime finalization; the
// sender itself is left unusable.
func (s *Sender) Export() (transport.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, ErrSenderExported
	}

	fd, err := syscall.Dup(int(s.file.Fd()))
	if err != nil {
		return 0, err
	}

	closeErr := s.file.Close()
	s.file = nil
	if closeErr != nil {
		syscall.Close(fd)
		return 0, closeErr
	}
	return transport.Handle(fd), nil
}

// ImportHandle constructs a usable Sender from a raw transferable handle.
// The raw value is consumed: the returned Sender owns the descriptor and the
// caller must not use the handle again.
func ImportHandle(h transport.Handle) *Sender {
	return &Sender{file: os.NewFile(uintptr(h), "metricflow-pipe-sender")}
}

// Listener owns the receive end of a pipe. Its first Accept yields the one
// and only connection; later accepts report io.EOF so a shared accept loop
// terminates naturally.
type Listener struct {
	mu       sync.Mutex
	reader   *os.File
	sender   *Sender
	accepted bool
	closed   bool
}

// TakeSender hands out the send end exactly once.
func (l *Listener) TakeSender() (transport.Sender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sender == nil {
		return nil, ErrSenderTaken
	}
	sender := l.sender
	l.sender = nil
	return sender, nil
}

// Accept returns the pipe's single connection on the first call and io.EOF
// afterwards.
func (l *Listener) Accept() (transport.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, io.EOF
	}
	if l.accepted {
		return nil, io.EOF
	}
	l.accepted = true
	return &pipeConn{file: l.reader}, nil
}

// Close releases the receive end unless it has been handed out, in which
// case the connection's owner closes it.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if !l.accepted {
		return l.reader.Close()
	}
	return nil
}

// Path always returns "": pipes leave no filesystem footprint.
func (l *Listener) Path() string {
	return ""
}

type pipeConn struct {
	file *os.File
}

func (c *pipeConn) Read(p []byte) (int, error) {
	return c.file.Read(p)
}

func (c *pipeConn) Close() error {
	return c.file.Close()
}

func (c *pipeConn) RemoteDescription() string {
	return "pipe"
}
