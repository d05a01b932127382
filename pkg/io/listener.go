package io

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ListenerConfig holds the socket and worker-pool configuration shared
// by UDPListener and TCPListener.
type ListenerConfig struct {
	// Address to listen on (e.g. ":53" or "0.0.0.0:53").
	Address string

	// NumWorkers is the number of UDP worker goroutines (ignored by
	// TCPListener, which accepts on a single goroutine and spawns one
	// handler per connection).
	NumWorkers int

	// ReusePort enables SO_REUSEPORT for per-core load distribution.
	ReusePort bool

	// ReadBufferSize is the socket receive buffer size.
	ReadBufferSize int

	// WriteBufferSize is the socket send buffer size.
	WriteBufferSize int

	// Logger receives non-fatal per-query errors (read/write failures,
	// handler errors). Defaults to log.Default() when nil.
	Logger *log.Logger
}

// DefaultListenerConfig returns a configuration with sensible defaults:
// one worker per CPU, SO_REUSEPORT enabled, and 4MB socket buffers
// sized to absorb traffic spikes without a listener-side queue.
func DefaultListenerConfig(address string) *ListenerConfig {
	return &ListenerConfig{
		Address:         address,
		NumWorkers:      runtime.NumCPU(),
		ReusePort:       true,
		ReadBufferSize:  4 * 1024 * 1024,
		WriteBufferSize: 4 * 1024 * 1024,
		Logger:          log.Default(),
	}
}

func (c *ListenerConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return log.Default()
}

// QueryHandler processes one decoded-on-the-wire DNS query and returns
// the packed response to send back, or an error if none should be
// sent.
type QueryHandler interface {
	HandleQuery(ctx context.Context, query []byte, addr net.Addr) ([]byte, error)
}

// UDPListener runs NumWorkers independent UDP sockets bound to the
// same address via SO_REUSEPORT, each pinned to its own OS thread, so
// inbound query load spreads across cores without a shared receive
// queue.
type UDPListener struct {
	config  *ListenerConfig
	conns   []*net.UDPConn
	handler QueryHandler
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewUDPListener builds a UDPListener. A nil config falls back to
// DefaultListenerConfig(":53").
func NewUDPListener(config *ListenerConfig, handler QueryHandler) (*UDPListener, error) {
	if config == nil {
		config = DefaultListenerConfig(":53")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &UDPListener{
		config:  config,
		conns:   make([]*net.UDPConn, 0, config.NumWorkers),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start opens one UDP socket per configured worker and begins
// processing queries. Socket creation failures abort startup and tear
// down any sockets already opened.
func (ul *UDPListener) Start() error {
	addr, err := net.ResolveUDPAddr("udp", ul.config.Address)
	if err != nil {
		return fmt.Errorf("resolve UDP address %q: %w", ul.config.Address, err)
	}

	for i := 0; i < ul.config.NumWorkers; i++ {
		conn, err := ul.openSocket(addr)
		if err != nil {
			_ = ul.Stop()

			return fmt.Errorf("open UDP socket %d/%d: %w", i+1, ul.config.NumWorkers, err)
		}

		ul.conns = append(ul.conns, conn)

		ul.wg.Add(1)
		go ul.worker(i, conn)
	}

	return nil
}

// openSocket binds a UDP socket with SO_REUSEPORT (when enabled) and
// the configured send/receive buffer sizes.
func (ul *UDPListener) openSocket(addr *net.UDPAddr) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: ul.setSocketOptions}

	packetConn, err := lc.ListenPacket(context.Background(), "udp", addr.String())
	if err != nil {
		return nil, err
	}

	return packetConn.(*net.UDPConn), nil
}

func (ul *UDPListener) setSocketOptions(_, _ string, c syscall.RawConn) error {
	return applySocketOptions(c, ul.config)
}

func applySocketOptions(c syscall.RawConn, cfg *ListenerConfig) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		if cfg.ReusePort {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				sockErr = fmt.Errorf("set SO_REUSEPORT: %w", err)

				return
			}
		}

		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.ReadBufferSize); err != nil {
			sockErr = fmt.Errorf("set SO_RCVBUF: %w", err)

			return
		}

		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.WriteBufferSize); err != nil {
			sockErr = fmt.Errorf("set SO_SNDBUF: %w", err)
		}
	})
	if err != nil {
		return err
	}

	return sockErr
}

// worker is one UDP socket's read/handle/write loop. It runs on its
// own locked OS thread so the kernel's per-socket SO_REUSEPORT
// scheduling stays aligned with a stable goroutine-to-core mapping.
func (ul *UDPListener) worker(id int, conn *net.UDPConn) {
	defer ul.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	bufferPool := NewBufferPool(DefaultBufferSize)
	logger := ul.config.logger()

	for {
		select {
		case <-ul.ctx.Done():
			return
		default:
		}

		buf := bufferPool.Get()

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			bufferPool.Put(buf)

			if ul.ctx.Err() != nil {
				return
			}

			logger.Printf("io: udp worker %d read error: %v", id, err)

			continue
		}

		response, err := ul.handler.HandleQuery(ul.ctx, buf[:n], addr)
		if err != nil {
			bufferPool.Put(buf)
			logger.Printf("io: udp worker %d handler error from %s: %v", id, addr, err)

			continue
		}

		if response != nil {
			if _, err := conn.WriteToUDP(response, addr); err != nil {
				logger.Printf("io: udp worker %d write error to %s: %v", id, addr, err)
			}
		}

		bufferPool.Put(buf)
	}
}

// Stop cancels the worker loops, closes every socket, and waits for
// all workers to exit.
func (ul *UDPListener) Stop() error {
	ul.cancel()

	for _, conn := range ul.conns {
		if conn != nil {
			conn.Close()
		}
	}

	ul.wg.Wait()

	return nil
}

// Addr returns the address of the first worker's socket, representative
// of all of them since they share one SO_REUSEPORT-bound address.
func (ul *UDPListener) Addr() net.Addr {
	if len(ul.conns) > 0 && ul.conns[0] != nil {
		return ul.conns[0].LocalAddr()
	}

	return nil
}

// tcpIdleTimeout is the RFC 7766-recommended minimum idle timeout for
// a persistent DNS-over-TCP connection.
const tcpIdleTimeout = 10 * time.Second

// defaultMaxTCPConnections is RFC 7766's suggested starting point for
// a server's concurrent-connection ceiling.
const defaultMaxTCPConnections = 1000

// TCPListener accepts DNS-over-TCP connections (RFC 7766): each
// connection is length-prefixed per RFC 1035 §4.2.2 and kept open
// across multiple queries until the client closes it or goes idle
// past tcpIdleTimeout.
type TCPListener struct {
	config   *ListenerConfig
	listener net.Listener
	handler  QueryHandler
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	maxConnections int
	activeConns    int
	connMutex      sync.Mutex
}

// NewTCPListener builds a TCPListener. A nil config falls back to
// DefaultListenerConfig(":53").
func NewTCPListener(config *ListenerConfig, handler QueryHandler) (*TCPListener, error) {
	if config == nil {
		config = DefaultListenerConfig(":53")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TCPListener{
		config:         config,
		handler:        handler,
		ctx:            ctx,
		cancel:         cancel,
		maxConnections: defaultMaxTCPConnections,
	}, nil
}

// Start binds the listening socket and begins accepting connections.
func (tl *TCPListener) Start() error {
	addr, err := net.ResolveTCPAddr("tcp", tl.config.Address)
	if err != nil {
		return fmt.Errorf("resolve TCP address %q: %w", tl.config.Address, err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return applySocketOptions(c, tl.config)
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", addr.String())
	if err != nil {
		return fmt.Errorf("create TCP listener on %q: %w", addr, err)
	}

	tl.listener = listener

	tl.wg.Add(1)
	go tl.acceptLoop()

	return nil
}

// acceptLoop accepts connections up to maxConnections, rejecting the
// rest, and hands each accepted connection to its own handler
// goroutine.
func (tl *TCPListener) acceptLoop() {
	defer tl.wg.Done()

	logger := tl.config.logger()

	for {
		select {
		case <-tl.ctx.Done():
			return
		default:
		}

		conn, err := tl.listener.Accept()
		if err != nil {
			if tl.ctx.Err() != nil {
				return
			}

			logger.Printf("io: tcp accept error: %v", err)

			continue
		}

		if !tl.admit() {
			conn.Close()

			continue
		}

		tl.wg.Add(1)
		go tl.handleConnection(conn)
	}
}

// admit reports whether a new connection may proceed, accounting it
// against maxConnections if so.
func (tl *TCPListener) admit() bool {
	tl.connMutex.Lock()
	defer tl.connMutex.Unlock()

	if tl.activeConns >= tl.maxConnections {
		return false
	}

	tl.activeConns++

	return true
}

func (tl *TCPListener) release() {
	tl.connMutex.Lock()
	tl.activeConns--
	tl.connMutex.Unlock()
}

// handleConnection serves queries from a single persistent TCP
// connection until it closes, errors, or idles past tcpIdleTimeout.
func (tl *TCPListener) handleConnection(conn net.Conn) {
	defer tl.wg.Done()
	defer conn.Close()
	defer tl.release()

	logger := tl.config.logger()
	bufferPool := NewBufferPool(DefaultBufferSize)

	for {
		select {
		case <-tl.ctx.Done():
			return
		default:
		}

		query, err := readPrefixedMessage(conn, bufferPool)
		if err != nil {
			return
		}

		response, err := tl.handler.HandleQuery(tl.ctx, query, conn.RemoteAddr())
		bufferPool.Put(query)

		if err != nil {
			logger.Printf("io: tcp handler error from %s: %v", conn.RemoteAddr(), err)

			return
		}

		if response == nil {
			continue
		}

		if err := writePrefixedMessage(conn, response); err != nil {
			logger.Printf("io: tcp write error to %s: %v", conn.RemoteAddr(), err)

			return
		}
	}
}

// readPrefixedMessage reads one RFC 1035 §4.2.2 two-byte-length-prefixed
// DNS message from conn, using buf (from pool) when it's large enough
// and allocating only when the message exceeds the pooled buffer size.
func readPrefixedMessage(conn net.Conn, pool *BufferPool) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(tcpIdleTimeout))

	var lengthBuf [2]byte
	if _, err := io.ReadFull(conn, lengthBuf[:]); err != nil {
		return nil, err
	}

	length := int(lengthBuf[0])<<8 | int(lengthBuf[1])
	if length == 0 || length > 65535 {
		return nil, fmt.Errorf("invalid TCP message length %d", length)
	}

	buf := pool.Get()
	if len(buf) < length {
		buf = make([]byte, length)
	}

	if _, err := io.ReadFull(conn, buf[:length]); err != nil {
		pool.Put(buf)

		return nil, err
	}

	return buf[:length], nil
}

// writePrefixedMessage writes msg to conn with its RFC 1035 §4.2.2
// two-byte big-endian length prefix.
func writePrefixedMessage(conn net.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(tcpIdleTimeout))

	framed := make([]byte, 2+len(msg))
	framed[0] = byte(len(msg) >> 8)
	framed[1] = byte(len(msg) & 0xFF)
	copy(framed[2:], msg)

	_, err := conn.Write(framed)

	return err
}

// Stop closes the listening socket and waits for every in-flight
// connection handler to exit.
func (tl *TCPListener) Stop() error {
	tl.cancel()

	if tl.listener != nil {
		tl.listener.Close()
	}

	tl.wg.Wait()

	return nil
}

// Addr returns the listener's bound address.
func (tl *TCPListener) Addr() net.Addr {
	if tl.listener != nil {
		return tl.listener.Addr()
	}

	return nil
}

// SetMaxConnections changes the concurrent-connection ceiling enforced
// by acceptLoop.
func (tl *TCPListener) SetMaxConnections(max int) {
	tl.connMutex.Lock()
	defer tl.connMutex.Unlock()
	tl.maxConnections = max
}
