// Package socket implements the unix-domain-socket connection server
// (spec.md §4.2): it accepts connections, reads length-prefixed frames, runs
// them through the protocol router and dispatcher, and writes framed
// responses back. One goroutine per connection does the reading; writes are
// serialized per connection so concurrently-completing requests (the
// general pool can finish out of submission order) never interleave bytes.
//
// Grounded on the teacher's API server's Start/Stop shape (stale-socket
// removal, net.Listen("unix", ...), a goroutine running Serve/Accept,
// context-bounded graceful Stop) generalized from net/http's request model
// to this module's own length-prefixed binary frames.
package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"goxeld/internal/dispatch"
	"goxeld/internal/router"
	"goxeld/internal/wire"
)

// Config configures a Server.
type Config struct {
	SocketPath     string
	MaxFrameBytes  uint32
	MaxConnections int
	Protocol       router.Mode
	Dispatcher     *dispatch.Dispatcher

	// OnProtocolDetect, if set, is called after each frame's protocol is
	// classified, with the kind router.Router.OnDetect reports.
	OnProtocolDetect func(kind string)
}

// Server listens on a unix socket and serves framed requests.
type Server struct {
	cfg Config
	rtr *router.Router

	ln net.Listener

	connSem chan struct{}

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool

	wg sync.WaitGroup
}

// New creates a Server. Call Start to begin listening.
func New(cfg Config) *Server {
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = 16 * 1024 * 1024
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 256
	}
	rtr := router.New(cfg.Protocol)
	if cfg.OnProtocolDetect != nil {
		rtr.OnDetect(cfg.OnProtocolDetect)
	}
	return &Server{
		cfg:     cfg,
		rtr:     rtr,
		connSem: make(chan struct{}, cfg.MaxConnections),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start removes any stale socket file, binds the listener, and begins
// accepting connections in a background goroutine.
func (s *Server) Start() error {
	os.Remove(s.cfg.SocketPath)

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("socket: listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.ln = ln

	log.Printf("socket: listening on %s", s.cfg.SocketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosing() {
				return
			}
			log.Printf("socket: accept error: %v", err)
			return
		}

		select {
		case s.connSem <- struct{}{}:
		default:
			log.Printf("socket: rejecting connection, at max_connections")
			conn.Close()
			continue
		}

		s.trackConn(conn, true)
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.connSem }()
	defer s.trackConn(conn, false)
	defer conn.Close()

	var writeMu sync.Mutex

	for {
		frame, err := wire.ReadFrame(conn, s.cfg.MaxFrameBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, wire.ErrFrameTooLarge) {
				s.writeError(conn, &writeMu, frame.ID, wire.CodeInvalidRequest, "frame payload exceeds maximum size")
				continue
			}
			return
		}

		s.wg.Add(1)
		go func(f wire.Frame) {
			defer s.wg.Done()
			s.handleFrame(conn, &writeMu, f)
		}(frame)
	}
}

func (s *Server) handleFrame(conn net.Conn, writeMu *sync.Mutex, frame wire.Frame) {
	proto := s.rtr.Classify(frame.Payload)

	switch proto {
	case router.ProtocolMCP:
		s.handleMCPFrame(conn, writeMu, frame)
	default:
		s.handleJSONRPCFrame(conn, writeMu, frame)
	}
}

func (s *Server) handleJSONRPCFrame(conn net.Conn, writeMu *sync.Mutex, frame wire.Frame) {
	requests, parseErrs, isBatch, topErr := wire.ParseBatchOrSingle(frame.Payload)
	if topErr != nil {
		s.writeError(conn, writeMu, frame.ID, topErr.Code, topErr.Message)
		return
	}

	ctx := context.Background()
	var responses []wire.Response
	for i, req := range requests {
		if parseErrs[i] != nil {
			responses = append(responses, wire.NewErrorResponse(wire.NullID, wire.NewRPCError(parseErrs[i].Code, parseErrs[i].Message, nil)))
			continue
		}
		resp, ok := s.cfg.Dispatcher.Dispatch(ctx, req)
		if ok {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		return
	}

	var payload []byte
	var err error
	if isBatch {
		payload, err = wire.SerializeBatch(responses)
	} else {
		payload, err = wire.Serialize(responses[0])
	}
	if err != nil {
		log.Printf("socket: serialize response: %v", err)
		return
	}

	s.writeFrame(conn, writeMu, wire.Frame{ID: frame.ID, Payload: payload})
}

func (s *Server) handleMCPFrame(conn net.Conn, writeMu *sync.Mutex, frame wire.Frame) {
	v, err := wire.ParseValue(frame.Payload)
	if err != nil {
		s.writeError(conn, writeMu, frame.ID, wire.CodeParseError, "invalid JSON: "+err.Error())
		return
	}
	mcpReq, perr := wire.ParseMCPRequest(v)
	if perr != nil {
		s.writeError(conn, writeMu, frame.ID, perr.Code, perr.Message)
		return
	}

	req := wire.Request{Method: mcpReq.Tool, Params: mcpReq.Arguments, ID: mcpReq.ID, IsNotification: mcpReq.IsNotification}
	resp, ok := s.cfg.Dispatcher.Dispatch(context.Background(), req)
	if !ok {
		return
	}

	mcpResp := wire.MCPResponse{Response: resp, Tool: mcpReq.Tool}
	payload, err := mcpResp.ToValue().MarshalJSON()
	if err != nil {
		log.Printf("socket: serialize mcp response: %v", err)
		return
	}
	s.writeFrame(conn, writeMu, wire.Frame{ID: frame.ID, Payload: payload})
}

func (s *Server) writeError(conn net.Conn, writeMu *sync.Mutex, frameID uint32, code int, message string) {
	resp := wire.NewErrorResponse(wire.NullID, wire.NewRPCError(code, message, nil))
	payload, err := wire.Serialize(resp)
	if err != nil {
		log.Printf("socket: serialize error response: %v", err)
		return
	}
	s.writeFrame(conn, writeMu, wire.Frame{ID: frameID, Payload: payload})
}

func (s *Server) writeFrame(conn net.Conn, writeMu *sync.Mutex, f wire.Frame) {
	writeMu.Lock()
	defer writeMu.Unlock()
	compress := len(f.Payload) > compressThreshold
	if err := wire.WriteFrame(conn, f, compress); err != nil {
		log.Printf("socket: write frame: %v", err)
	}
}

// compressThreshold is the payload size above which outgoing frames are
// offered gzip compression (bulk voxel reads and render listings are the
// common case worth the CPU).
const compressThreshold = 8 * 1024

// Stop closes the listener and waits (up to the context deadline) for every
// connection and its in-flight frames to finish. Open connections are not
// closed after their current frame: a connection ends when its client
// closes it, and any still open at the deadline are force-closed, dropping
// responses not yet written (spec.md §4.8's Stopping state drains
// connections before Shutdown completes).
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if s.ln != nil {
		s.ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.forceCloseConns()
		<-done
		return ctx.Err()
	}
}

func (s *Server) forceCloseConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// ActiveConnections reports the number of currently tracked connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
