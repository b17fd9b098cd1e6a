package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

const (
	DefaultWorkers        = 64
	DefaultRequestTimeout = 10 * time.Second
	DefaultWriteTimeout   = 30 * time.Second
)

type ServerConfig struct {
	// Addr is the TCP listen address, ":0" picks a free port.
	Addr string

	Workers        int
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	Logger         *logrus.Logger
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Addr == "" {
		c.Addr = ":0"
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogger()
	}
	return c
}

// Server streams shared files to other peers, one request per connection.
type Server struct {
	config   ServerConfig
	logger   *logrus.Logger
	shares   ShareTable
	listener net.Listener
	workers  *semaphore.Weighted
	wg       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func NewServer(cfg ServerConfig, shares ShareTable) (*Server, error) {
	cfg = cfg.withDefaults()

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	return &Server{
		config:   cfg,
		logger:   cfg.Logger,
		shares:   shares,
		listener: listener,
		workers:  semaphore.NewWeighted(int64(cfg.Workers)),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Port() int {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Serve accepts connections until ctx is done or Close is called. In-flight
// transfers are waited for before it returns.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.wg.Wait()

	s.logger.WithField("addr", s.Addr().String()).Info("Transfer server listening")

	for {
		if err := s.workers.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.workers.Release(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Warn("Failed to accept transfer connection")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.workers.Release(1)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.listener.Close()
	})
	return s.closeErr
}

func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("remote", remote).Errorf("Recovered from panic while serving file: %v", r)
		}
	}()

	log := s.logger.WithField("remote", remote)

	_ = conn.SetReadDeadline(time.Now().Add(s.config.RequestTimeout))
	frame, err := protocol.ReadFrame(conn, maxRequestSize)
	if err != nil {
		log.WithError(err).Debug("Failed to read transfer request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	name, err := unmarshalRequest(frame)
	if err != nil {
		log.WithError(err).Warn("Rejecting transfer request")
		s.writeHeader(conn, header{Status: StatusInternal})
		return
	}
	log = log.WithField("file", name)

	path, ok := s.shares.Lookup(name)
	if !ok {
		log.Warn("Requested file is not shared")
		s.writeHeader(conn, header{Status: StatusNotFound})
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Warn("Shared file is missing on disk")
		s.writeHeader(conn, header{Status: StatusNotFound})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		log.WithError(err).Warn("Shared file is not a regular file")
		s.writeHeader(conn, header{Status: StatusNotFound})
		return
	}

	w := &deadlineWriter{conn: conn, timeout: s.config.WriteTimeout}
	if err := protocol.WriteFrame(w, marshalHeader(header{Status: StatusOK, Size: info.Size()})); err != nil {
		log.WithError(err).Debug("Failed to write transfer header")
		return
	}

	start := time.Now()
	n, err := io.CopyN(w, f, info.Size())
	if err != nil {
		log.WithError(err).WithField("bytes", n).Warn("Transfer aborted")
		return
	}

	log.WithFields(logrus.Fields{
		"bytes":    n,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Sent file")
}

func (s *Server) writeHeader(conn net.Conn, h header) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := protocol.WriteFrame(conn, marshalHeader(h)); err != nil {
		s.logger.WithError(err).Debug("Failed to write transfer header")
	}
}

// deadlineWriter pushes the write deadline forward on every write, so a
// stalled reader is dropped while a slow but moving one is not.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.conn.Write(p)
}
