package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultIdleTimeout = 30 * time.Second
)

var (
	ErrRemoteFileNotFound = errors.New("file not shared by remote peer")
	ErrRemoteFailure      = errors.New("remote peer failed to serve file")
)

// TransferError describes a failed fetch. Op is one of dial, send, read,
// write or rename.
type TransferError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

type FetcherConfig struct {
	DialTimeout time.Duration
	IdleTimeout time.Duration
	Logger      *logrus.Logger

	// NewProgress, when set, receives a copy of the bytes of every download.
	NewProgress func(name string, size int64) io.Writer
}

type Fetcher struct {
	config FetcherConfig
	logger *logrus.Logger
	dialer net.Dialer
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger()
	}

	return &Fetcher{
		config: cfg,
		logger: cfg.Logger,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Fetch downloads name from the transfer server at addr into dst. The file
// is written to a temporary sibling of dst and renamed into place only once
// every byte has arrived, so dst never holds a partial download.
func (f *Fetcher) Fetch(ctx context.Context, addr, name, dst string) (int64, error) {
	conn, err := f.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, &TransferError{Op: "dial", Addr: addr, Err: err}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	fail := func(op string, err error) (int64, error) {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return 0, &TransferError{Op: op, Addr: addr, Err: err}
	}

	if err := armDeadline(ctx, conn, f.config.IdleTimeout); err != nil {
		return fail("send", err)
	}
	if err := protocol.WriteFrame(conn, marshalRequest(name)); err != nil {
		return fail("send", err)
	}

	frame, err := protocol.ReadFrame(conn, maxHeaderSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fail("read", err)
	}
	h, err := unmarshalHeader(frame)
	if err != nil {
		return fail("read", err)
	}

	switch h.Status {
	case StatusOK:
	case StatusNotFound:
		return 0, ErrRemoteFileNotFound
	default:
		return 0, fmt.Errorf("%w: status %s", ErrRemoteFailure, h.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return fail("write", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	if f.config.NewProgress != nil {
		w = io.MultiWriter(tmp, f.config.NewProgress(name, h.Size))
	}

	r := &deadlineReader{ctx: ctx, conn: conn, timeout: f.config.IdleTimeout}
	n, err := io.CopyN(w, r, h.Size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return fail("write", err)
		}
		return fail("read", err)
	}

	if err := tmp.Close(); err != nil {
		return fail("write", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fail("rename", err)
	}
	committed = true

	f.logger.WithFields(logrus.Fields{
		"from":  addr,
		"file":  name,
		"bytes": n,
	}).Info("Downloaded file")

	return n, nil
}

// armDeadline moves the conn deadline timeout into the future. ctx is checked
// after the move, so a cancellation that already pushed the deadline into the
// past is reported instead of being overwritten.
func armDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) error {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return ctx.Err()
}

// deadlineReader extends the read deadline per read.
type deadlineReader struct {
	ctx     context.Context
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}
