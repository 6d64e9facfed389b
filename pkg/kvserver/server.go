// Package kvserver implements the TCP acceptor and per-connection worker
// loop described by spec.md §4.7 and §5: one goroutine per connection, all
// serialized through a single mutex gate over one *engine.Engine.
package kvserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goerzh/kvs/pkg/codec"
	"github.com/goerzh/kvs/pkg/engine"
	"github.com/goerzh/kvs/pkg/kverrors"
)

// Logger is the opaque logging sink the server is handed.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// Metrics is the optional connection/latency metrics sink.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	ObserveDuration(op string, d time.Duration)
}

// Server is the shared-engine TCP front end.
type Server struct {
	addr    string
	eng     *engine.Engine
	log     Logger
	metrics Metrics

	gate sync.Mutex // the single engine gate; every engine op is invoked while held

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Server fronting eng on addr ("host:port").
func New(addr string, eng *engine.Engine, log Logger, metrics Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		eng:     eng,
		log:     log,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return kverrors.NewIo(err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Infow("server listening", "addr", s.addr)

	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warnw("accept failed", "error", err)
				continue
			}
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection implements spec.md §4.7's per-connection loop: decode
// Requests until EOF or a decode error, dispatching each under the engine
// gate and writing exactly one Response per Request, in order.
func (s *Server) handleConnection(conn net.Conn) {
	connID := uuid.NewString()
	connFields := []interface{}{"conn", connID, "remote", conn.RemoteAddr().String()}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ConnectionOpened()
		defer s.metrics.ConnectionClosed()
	}

	s.log.Infow("connection opened", connFields...)

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	dec := codec.NewDecoder(reader)
	enc := codec.NewEncoder(writer)

	for {
		select {
		case <-s.ctx.Done():
			s.log.Infow("connection closing: server shutting down", connFields...)
			return
		default:
		}

		req, err := dec.DecodeRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warnw("decode error, closing connection", append(connFields, "error", err)...)
			}
			return
		}

		resp := s.dispatch(req)

		if err := enc.EncodeResponse(resp); err != nil {
			s.log.Warnw("encode error, closing connection", append(connFields, "error", err)...)
			return
		}
		if err := writer.Flush(); err != nil {
			s.log.Warnw("flush error, closing connection", append(connFields, "error", err)...)
			return
		}
	}
}

// dispatch acquires the engine gate, invokes the matching operation, and
// encodes its outcome as a Response. It never returns an error itself —
// engine failures become Err responses, per spec.md §4.7/§7.
func (s *Server) dispatch(req codec.Request) codec.Response {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveDuration(string(req.Op), time.Since(start))
		}
	}()

	s.gate.Lock()
	defer s.gate.Unlock()

	switch req.Op {
	case codec.OpSet:
		if err := s.eng.Set(req.Key, req.Value); err != nil {
			return codec.ErrResponse(err.Error())
		}
		return codec.OkEmpty()

	case codec.OpGet:
		value, ok, err := s.eng.Get(req.Key)
		if err != nil {
			return codec.ErrResponse(err.Error())
		}
		if !ok {
			return codec.OkAbsent()
		}
		return codec.OkValue(value)

	case codec.OpRemove:
		if err := s.eng.Remove(req.Key); err != nil {
			return codec.ErrResponse(err.Error())
		}
		return codec.OkEmpty()

	default:
		return codec.ErrResponse("unknown request op: " + string(req.Op))
	}
}

// Stop unblocks the acceptor and waits for in-flight connections to finish
// their current request and exit. Shutdown is best-effort, per spec.md §5:
// compaction in progress is not interrupted, and a connection mid-read only
// notices shutdown on its next loop iteration.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.conns.Wait()
	s.log.Infow("server stopped")
}
