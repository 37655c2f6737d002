// Package collector implements the receiving side of metricflow: it accepts
// producer connections from a transport listener, runs one framing-and-decode
// loop per connection, and applies every decoded event to a downstream
// facade.Recorder.
//
// Failure policy (the defensive one): accept errors are logged and skipped;
// a malformed frame is counted and dropped while its connection stays open;
// a read error terminates only the affected connection. The backing socket
// file, when one exists, is removed on every exit path of Run.
package collector

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/metricflow/facade"
	"github.com/drblury/metricflow/internal/ids"
	"github.com/drblury/metricflow/logging"
	"github.com/drblury/metricflow/transport"
	"github.com/drblury/metricflow/transport/pipe"
	"github.com/drblury/metricflow/transport/socket"
	"github.com/drblury/metricflow/wire"
)

// Config configures a Collector.
type Config struct {
	// Transport selects the listener backend: socket.TransportName
	// (default) or pipe.TransportName.
	Transport string

	// SocketName overrides the socket identity. Defaults to
	// socket.DefaultName. Ignored by the pipe transport.
	SocketName string

	// Filesystem forces a filesystem-backed socket address even where the
	// abstract namespace is available.
	Filesystem bool

	// Recorder receives every decoded event. Required.
	Recorder facade.Recorder

	// Logger receives diagnostics. Defaults to a nop logger.
	Logger logging.Logger

	// Registry resolves the transport name. Defaults to
	// transport.DefaultRegistry.
	Registry *transport.Registry
}

// GetSocketName implements transport.Config.
func (c Config) GetSocketName() string { return c.SocketName }

// GetSocketFilesystem implements transport.Config.
func (c Config) GetSocketFilesystem() bool { return c.Filesystem }

// Collector owns a transport listener and dispatches decoded events to the
// configured recorder.
type Collector struct {
	listener transport.Listener
	recorder facade.Recorder
	logger   logging.Logger

	malformed atomic.Uint64

	connMu sync.Mutex
	conns  map[transport.Conn]struct{}
}

// New builds a collector and its listener. Transport setup errors (stale
// socket file that cannot be removed, bind failure, unknown transport name)
// are returned synchronously.
func New(cfg Config) (*Collector, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("metricflow: collector recorder is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = transport.DefaultRegistry
	}

	name := cfg.Transport
	if name == "" {
		name = socket.TransportName
	}

	listener, err := registry.Build(name, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Collector{
		listener: listener,
		recorder: cfg.Recorder,
		logger:   logger,
		conns:    make(map[transport.Conn]struct{}),
	}, nil
}

// NewPipe builds a pipe-mode collector and returns the transferable send end
// along with it. The sender is meant to be exported and handed to exactly
// one child process.
func NewPipe(cfg Config) (*Collector, transport.Sender, error) {
	cfg.Transport = pipe.TransportName
	c, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}

	source, ok := c.listener.(transport.SenderSource)
	if !ok {
		c.listener.Close()
		return nil, nil, errors.New("metricflow: pipe listener does not expose a sender")
	}
	sender, err := source.TakeSender()
	if err != nil {
		c.listener.Close()
		return nil, nil, err
	}
	return c, sender, nil
}

// Malformed reports how many frames were discarded as undecodable.
func (c *Collector) Malformed() uint64 {
	return c.malformed.Load()
}

// Path returns the listener's backing filesystem path, or "".
func (c *Collector) Path() string {
	return c.listener.Path()
}

// Run accepts connections and services them until ctx is cancelled or the
// listener is closed. In pipe mode it returns once the single connection
// reaches end-of-stream. The backing socket file is removed no matter how
// Run exits.
func (c *Collector) Run(ctx context.Context) error {
	defer c.listener.Close()

	unhook := context.AfterFunc(ctx, func() {
		c.listener.Close()
		// Closing the listener only stops new connections; in pipe mode
		// the accept loop may already be done, so in-flight connections
		// must be abandoned here too.
		c.closeConns()
	})
	defer unhook()

	var group errgroup.Group

	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}
			c.logger.Error("failed to accept connection, skipping", err, nil)
			continue
		}

		c.track(conn)
		group.Go(func() error {
			defer c.untrack(conn)
			c.serve(conn)
			return nil
		})
	}

	if ctx.Err() != nil {
		// Covers the race where a connection was accepted after the
		// cancellation hook already ran.
		c.closeConns()
	}
	group.Wait()
	return ctx.Err()
}

// Start runs the collector in its own goroutine and returns a stop function
// that cancels it and waits for all connection loops to finish. Calling stop
// more than once is fine.
func (c *Collector) Start(ctx context.Context) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	go func() {
		done <- c.Run(ctx)
	}()

	var once sync.Once
	var stopErr error
	return func() error {
		once.Do(func() {
			cancel()
			if err := <-done; !errors.Is(err, context.Canceled) {
				stopErr = err
			}
		})
		return stopErr
	}
}

// serve is the per-connection loop, shared by both transports: read until
// the frame terminator, decode, dispatch. EOF ends the loop gracefully; any
// other read error ends this connection only.
func (c *Collector) serve(conn transport.Conn) {
	defer conn.Close()

	logger := c.logger.With(logging.Fields{
		"conn_id": ids.CreateULID(),
		"remote":  conn.RemoteDescription(),
	})
	logger.Debug("connection opened", nil)

	reader := bufio.NewReader(conn)
	for {
		frame, err := reader.ReadBytes(wire.Terminator)
		if len(frame) > 0 {
			c.dispatch(frame, logger)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("connection closed by producer", nil)
			} else if !errors.Is(err, net.ErrClosed) && !errors.Is(err, fs.ErrClosed) {
				logger.Error("read failed, dropping connection", err, nil)
			}
			return
		}
	}
}

func (c *Collector) dispatch(frame []byte, logger logging.Logger) {
	event, err := wire.Decode(frame)
	if err != nil {
		c.malformed.Add(1)
		logger.Debug("discarding malformed frame", logging.Fields{"error": err.Error()})
		return
	}
	applyEvent(c.recorder, event)
}

func (c *Collector) track(conn transport.Conn) {
	c.connMu.Lock()
	c.conns[conn] = struct{}{}
	c.connMu.Unlock()
}

func (c *Collector) untrack(conn transport.Conn) {
	c.connMu.Lock()
	delete(c.conns, conn)
	c.connMu.Unlock()
}

func (c *Collector) closeConns() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	for conn := range c.conns {
		conn.Close()
	}
}
