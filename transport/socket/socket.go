// Package socket provides the named local socket transport for metricflow.
// Any number of producer processes connect to one well-known name; the
// collector accepts one ordered stream per producer.
//
// On Linux the name resolves to an abstract-namespace address with no
// filesystem footprint. Elsewhere (or when the Filesystem option is set) it
// resolves to a path under the OS temp directory; a stale backing file is
// removed before binding and again when the listener closes.
package socket

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/drblury/metricflow/logging"
	"github.com/drblury/metricflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "socket"

// DefaultName is the socket name used when none is configured.
const DefaultName = "metrics_collector.sock"

var abstractSupported = runtime.GOOS == "linux"

func init() {
	transport.Register(TransportName, Build, transport.Capabilities{
		Name:          TransportName,
		MultiProducer: true,
	})
}

// Options configures the socket transport on either end.
type Options struct {
	// Name is the socket identity. Defaults to DefaultName.
	Name string

	// Filesystem forces a filesystem-backed socket even on platforms that
	// support the abstract namespace.
	Filesystem bool
}

func (o Options) name() string {
	if o.Name == "" {
		return DefaultName
	}
	return o.Name
}

// address resolves the socket name to a dialable/bindable unix address and
// the backing filesystem path ("" for abstract addresses).
func (o Options) address() (addr, path string) {
	if abstractSupported && !o.Filesystem {
		return "@" + o.name(), ""
	}
	path = filepath.Join(os.TempDir(), o.name())
	return path, path
}

// Build creates a socket listener from transport config.
func Build(cfg transport.Config, logger logging.Logger) (transport.Listener, error) {
	return Listen(Options{Name: cfg.GetSocketName(), Filesystem: cfg.GetSocketFilesystem()})
}

// Listen binds the named socket, removing a stale backing file first.
func Listen(opts Options) (*Listener, error) {
	addr, path := opts.address()

	if path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("metricflow: cannot remove stale socket file %s: %w", path, err)
		}
	}

	inner, err := net.Listen("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("metricflow: cannot listen on socket %q: %w", opts.name(), err)
	}

	return &Listener{inner: inner, name: opts.name(), path: path}, nil
}

// Dial connects a producer to the named socket. The returned connection is a
// single ordered byte stream; the caller owns it.
func Dial(opts Options) (net.Conn, error) {
	addr, _ := opts.address()
	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("metricflow: cannot connect to socket %q: %w", opts.name(), err)
	}
	return conn, nil
}

// Listener accepts producer connections on a named socket.
type Listener struct {
	inner net.Listener
	name  string
	path  string

	closeOnce sync.Once
	closeErr  error
}

// Accept waits for the next producer connection.
func (l *Listener) Accept() (transport.Conn, error) {
	conn, err := l.inner.Accept()
	if err != nil {
		return nil, err
	}
	return &socketConn{Conn: conn, name: l.name}, nil
}

// Close shuts the listener down and removes the backing file, if any.
// Cleanup runs exactly once regardless of how many times Close is called.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.inner.Close()
		if l.path != "" {
			if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) && l.closeErr == nil {
				l.closeErr = err
			}
		}
	})
	return l.closeErr
}

// Path returns the backing filesystem path, or "" for abstract sockets.
func (l *Listener) Path() string {
	return l.path
}

type socketConn struct {
	net.Conn
	name string
}

func (c *socketConn) RemoteDescription() string {
	return "socket:" + c.name
}
