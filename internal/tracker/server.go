package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/registry"
)

type Server struct {
	config   Config
	logger   *logrus.Logger
	registry *registry.Registry
	handler  *Handler

	conn    *net.UDPConn
	packets *ipv4.PacketConn
	stream  net.Listener

	closeOnce sync.Once
	closeErr  error
}

func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolving tracker address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	var stream net.Listener
	if cfg.StreamAddr != "" {
		stream, err = net.Listen("tcp", cfg.StreamAddr)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("listening on %s: %w", cfg.StreamAddr, err)
		}
	}

	reg := registry.New()

	return &Server{
		config:   cfg,
		logger:   log,
		registry: reg,
		handler:  NewHandler(reg, cfg.Journal, log),
		conn:     conn,
		packets:  ipv4.NewPacketConn(conn),
		stream:   stream,
	}, nil
}

func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

// StreamAddr is empty when the stream channel is disabled.
func (s *Server) StreamAddr() string {
	if s.stream == nil {
		return ""
	}
	return s.stream.Addr().String()
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Shutdown() error {
	s.closeOnce.Do(func() {
		peers, files := s.registry.Len()
		s.logger.WithFields(logrus.Fields{"peers": peers, "files": files}).Info("Shutting down tracker server")
		s.closeErr = s.conn.Close()
		if s.stream != nil {
			if err := s.stream.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// Start serves until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	fields := logrus.Fields{"addr": s.Addr()}
	if s.stream != nil {
		fields["stream"] = s.StreamAddr()
	}
	s.logger.WithFields(fields).Info("Tracker server started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})
	g.Go(func() error {
		defer cancel()
		return s.serveDatagrams(gctx)
	})
	if s.stream != nil {
		g.Go(func() error {
			defer cancel()
			return s.serveStream(gctx)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Server) serveDatagrams(ctx context.Context) error {
	msgs := make([]ipv4.Message, s.config.BatchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, protocol.MaxDatagramSize)}
	}

	for {
		n, err := s.packets.ReadBatch(msgs, 0)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).Error("Failed to read datagrams")
			continue
		}

		for i := 0; i < n; i++ {
			payload := make([]byte, msgs[i].N)
			copy(payload, msgs[i].Buffers[0][:msgs[i].N])
			go s.handleDatagram(ctx, msgs[i].Addr, payload)
		}
	}
}

func (s *Server) handleDatagram(ctx context.Context, remote net.Addr, payload []byte) {
	defer s.recoverRequest(remote)

	reply := s.handler.HandlePayload(ctx, remote, payload)
	if reply == nil {
		return
	}
	if _, err := s.conn.WriteTo(reply, remote); err != nil {
		s.logger.WithError(err).WithField("remote", remote.String()).Warn("Failed to send reply")
	}
}

func (s *Server) serveStream(ctx context.Context) error {
	for {
		conn, err := s.stream.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr()
	s.logger.WithField("remote", remote.String()).Debug("Control connection opened")
	defer func() {
		_ = conn.Close()
		s.logger.WithField("remote", remote.String()).Debug("Control connection closed")
	}()
	defer s.recoverRequest(remote)

	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))

		payload, err := protocol.ReadFrame(conn, protocol.MaxFrameSize)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				s.logger.WithError(err).WithField("remote", remote.String()).Warn("Rejecting control message")
				s.writeFailure(conn, protocol.MsgMalformed)
			} else if !errors.Is(err, io.EOF) {
				s.logger.WithError(err).WithField("remote", remote.String()).Debug("Failed to read frame")
			}
			return
		}

		reply := s.handler.HandlePayload(ctx, remote, payload)
		if reply == nil {
			return
		}
		if err := protocol.WriteFrame(conn, reply); err != nil {
			s.logger.WithError(err).WithField("remote", remote.String()).Warn("Failed to send reply")
			return
		}
	}
}

func (s *Server) writeFailure(conn net.Conn, msg string) {
	data, err := s.handler.codec.EncodeReply(protocol.Failure(msg))
	if err != nil {
		return
	}
	_ = protocol.WriteFrame(conn, data)
}

func (s *Server) recoverRequest(remote net.Addr) {
	if r := recover(); r != nil {
		s.logger.WithField("remote", remote.String()).Errorf("Recovered from panic while handling request: %v", r)
	}
}
