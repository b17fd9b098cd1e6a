package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/registry"
)

var ErrRejected = errors.New("tracker rejected request")

// Client is the peer side of the control channel. Each call sends one
// request and waits for exactly one reply; nothing is retried.
type Client struct {
	config Config
	codec  *protocol.Codec
	logger *logrus.Logger
}

func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	if cfg.PeerID == "" {
		return nil, errors.New("peer id is required")
	}
	if cfg.TrackerAddr == "" {
		return nil, errors.New("tracker address is required")
	}
	if cfg.Control != ControlUDP && cfg.Control != ControlTCP {
		return nil, fmt.Errorf("unknown control transport %q", cfg.Control)
	}

	return &Client{
		config: cfg,
		codec:  protocol.NewCodec(),
		logger: cfg.Logger,
	}, nil
}

func (c *Client) PeerID() string {
	return c.config.PeerID
}

func (c *Client) Join(ctx context.Context, files []string, transferPort int) error {
	if files == nil {
		files = []string{}
	}
	return c.expectOK(ctx, &protocol.Join{PeerID: c.config.PeerID, Files: files, TransferPort: transferPort})
}

func (c *Client) ShareFile(ctx context.Context, name string) error {
	return c.expectOK(ctx, &protocol.ShareFile{PeerID: c.config.PeerID, File: name})
}

func (c *Client) GetPeers(ctx context.Context, name string) ([]protocol.PeerAddr, error) {
	req := &protocol.GetPeers{PeerID: c.config.PeerID, FileName: name}
	rep, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	switch r := rep.(type) {
	case *protocol.PeersReply:
		if r.Peers == nil {
			return []protocol.PeerAddr{}, nil
		}
		return r.Peers, nil
	case *protocol.StatusReply:
		return nil, replyError(req.Action(), r)
	default:
		return nil, fmt.Errorf("%w: unexpected reply %T", protocol.ErrMalformed, rep)
	}
}

func (c *Client) GotTheFile(ctx context.Context, name string) error {
	return c.expectOK(ctx, &protocol.GotTheFile{PeerID: c.config.PeerID, FileName: name})
}

func (c *Client) Leave(ctx context.Context) error {
	return c.expectOK(ctx, &protocol.Leave{PeerID: c.config.PeerID})
}

func (c *Client) expectOK(ctx context.Context, req protocol.Request) error {
	rep, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}

	status, ok := rep.(*protocol.StatusReply)
	if !ok {
		return fmt.Errorf("%w: unexpected reply %T to %s", protocol.ErrMalformed, rep, req.Action())
	}
	if !status.OK() {
		return replyError(req.Action(), status)
	}
	return nil
}

func replyError(action protocol.Action, r *protocol.StatusReply) error {
	if r.Message == protocol.MsgPeerNotFound {
		return fmt.Errorf("%s: %w", action, registry.ErrPeerNotFound)
	}
	return fmt.Errorf("%s: %w: %s", action, ErrRejected, r.Message)
}

func (c *Client) roundTrip(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	payload, err := c.codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"action":  req.Action().String(),
		"tracker": c.config.TrackerAddr,
	}).Debug("Sending control request")

	var data []byte
	if c.config.Control == ControlTCP {
		data, err = c.exchangeStream(ctx, payload)
	} else {
		data, err = c.exchangeDatagram(ctx, payload)
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%s to tracker %s: %w", req.Action(), c.config.TrackerAddr, err)
	}

	return c.codec.DecodeReply(data)
}

// exchangeDatagram uses a fresh socket per request so a late reply to an
// earlier call can never be mistaken for the current one.
func (c *Client) exchangeDatagram(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) > protocol.MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrMessageTooLarge, len(payload))
	}

	conn, err := c.dial(ctx, "udp4")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}

	buf := make([]byte, protocol.MaxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *Client) exchangeStream(ctx context.Context, payload []byte) ([]byte, error) {
	conn, err := c.dial(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, payload); err != nil {
		return nil, err
	}
	return protocol.ReadFrame(conn, protocol.MaxFrameSize)
}

// dial connects and bounds the whole exchange by the configured timeout or
// ctx, whichever ends first.
func (c *Client) dial(ctx context.Context, network string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, c.config.TrackerAddr)
	if err != nil {
		cancel()
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	return &boundConn{Conn: conn, release: func() {
		stop()
		cancel()
	}}, nil
}

type boundConn struct {
	net.Conn
	release func()
}

func (c *boundConn) Close() error {
	c.release()
	return c.Conn.Close()
}
