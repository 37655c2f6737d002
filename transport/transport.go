// Package transport defines the contracts shared by metricflow transports.
// Each transport implementation (socket, pipe) lives in its own sub-package
// and registers itself with the transport registry.
package transport

import (
	"io"

	"github.com/drblury/metricflow/logging"
)

// Conn is one producer's ordered byte stream on the collector side. It is
// owned exclusively by the loop that services it.
type Conn interface {
	io.ReadCloser

	// RemoteDescription identifies the peer for log output. It carries no
	// protocol meaning.
	RemoteDescription() string
}

// Listener accepts producer connections for a collector.
type Listener interface {
	// Accept blocks until a producer connects or the listener is closed.
	// Single-connection transports report io.EOF once their only
	// connection has been handed out.
	Accept() (Conn, error)

	// Close releases the listener and removes any backing filesystem
	// resource. It is safe to call more than once.
	Close() error

	// Path returns the backing filesystem path, or "" when the transport
	// leaves no filesystem footprint.
	Path() string
}

// Handle is a raw transferable descriptor for a transport resource, passed
// between processes out-of-band (spawn inheritance, an fd-passing channel,
// or similar).
type Handle uintptr

// Sender is the writable end of a point-to-point transport. Ownership is
// movable: Export consumes the sender and yields the raw handle.
type Sender interface {
	io.WriteCloser

	// Export detaches the underlying descriptor and returns it as a raw
	// transferable handle. The sender is unusable afterwards.
	Export() (Handle, error)
}

// SenderSource is implemented by listeners whose transport hands a send end
// to exactly one producer. The sender can be taken once; it is consumed.
type SenderSource interface {
	TakeSender() (Sender, error)
}

// Config provides the configuration values needed by transport builders.
// This interface lets transports read only the keys they care about without
// depending on the collector package.
type Config interface {
	// GetSocketName returns the named-channel identity.
	GetSocketName() string

	// GetSocketFilesystem reports whether the socket must be backed by a
	// filesystem path even on platforms with an abstract namespace.
	GetSocketFilesystem() bool
}

// Builder is the function signature for creating a listener from config.
// Each transport package provides a Builder and registers it by name.
type Builder func(cfg Config, logger logging.Logger) (Listener, error)

// Capabilities describes what a transport backend supports.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// MultiProducer indicates any number of producers may connect
	// concurrently. When false the transport carries exactly one producer.
	MultiProducer bool

	// TransferableSender indicates the send end can be exported as a raw
	// handle and moved to another process.
	TransferableSender bool
}
