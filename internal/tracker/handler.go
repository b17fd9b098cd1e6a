package tracker

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-share/internal/journal"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/registry"
)

// Recorder receives one event per handled request.
type Recorder interface {
	Record(ctx context.Context, e journal.Event) error
}

// Handler turns control requests into registry calls. It keeps no state of
// its own, so one Handler serves every connection and datagram concurrently.
type Handler struct {
	codec    *protocol.Codec
	journal  Recorder
	logger   *logrus.Logger
	registry *registry.Registry
}

func NewHandler(reg *registry.Registry, rec Recorder, log *logrus.Logger) *Handler {
	return &Handler{
		codec:    protocol.NewCodec(),
		journal:  rec,
		logger:   log,
		registry: reg,
	}
}

// HandlePayload decodes one request sent by remote and returns the encoded
// reply. Malformed payloads are answered with an error reply.
func (h *Handler) HandlePayload(ctx context.Context, remote net.Addr, payload []byte) []byte {
	var rep protocol.Reply

	req, err := h.codec.DecodeRequest(payload)
	if err != nil {
		h.logger.WithError(err).WithField("remote", remote.String()).Warn("Rejecting control message")

		msg := protocol.MsgMalformed
		if errors.Is(err, protocol.ErrUnknownAction) {
			msg = protocol.MsgUnknownAction
		}
		rep = protocol.Failure(msg)
		h.record(ctx, journal.Event{Action: "invalid", Status: string(protocol.StatusError), Remote: remote.String()})
	} else {
		rep = h.Handle(ctx, remote, req)
	}

	data, err := h.codec.EncodeReply(rep)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode reply")
		return nil
	}
	return data
}

// Handle applies req to the registry and returns exactly one reply.
func (h *Handler) Handle(ctx context.Context, remote net.Addr, req protocol.Request) protocol.Reply {
	var rep protocol.Reply
	var file string

	switch r := req.(type) {
	case *protocol.Join:
		addr := protocol.PeerAddr{IP: hostOf(remote), Port: r.TransferPort}
		h.registry.Join(r.PeerID, addr, r.Files)
		h.logger.WithFields(logrus.Fields{"peer": r.PeerID, "addr": addr.String(), "files": len(r.Files)}).Info("Peer joined")
		h.logSize()
		rep = protocol.OK()

	case *protocol.ShareFile:
		file = r.File
		rep = h.statusOf(h.registry.AnnounceFile(r.PeerID, r.File))

	case *protocol.GetPeers:
		file = r.FileName
		rep = &protocol.PeersReply{Peers: h.registry.LocatePeers(r.FileName)}

	case *protocol.GotTheFile:
		file = r.FileName
		rep = h.statusOf(h.registry.RecordDownload(r.PeerID, r.FileName))

	case *protocol.Leave:
		h.registry.Leave(r.PeerID)
		h.logger.WithField("peer", r.PeerID).Info("Peer left the network")
		h.logSize()
		rep = protocol.OK()

	default:
		rep = protocol.Failure(protocol.MsgUnknownAction)
	}

	status := outcome(rep)
	h.logger.WithFields(logrus.Fields{
		"action": req.Action().String(),
		"peer":   req.Peer(),
		"file":   file,
		"status": status,
	}).Debug("Handled request")

	h.record(ctx, journal.Event{
		Action: req.Action().String(),
		PeerID: req.Peer(),
		File:   file,
		Status: status,
		Remote: remote.String(),
	})
	return rep
}

func (h *Handler) logSize() {
	peers, files := h.registry.Len()
	h.logger.WithFields(logrus.Fields{"peers": peers, "files": files}).Debug("Registry size")
}

func (h *Handler) statusOf(err error) protocol.Reply {
	switch {
	case err == nil:
		return protocol.OK()
	case errors.Is(err, registry.ErrPeerNotFound):
		return protocol.Failure(protocol.MsgPeerNotFound)
	default:
		return protocol.Failure(err.Error())
	}
}

func (h *Handler) record(ctx context.Context, e journal.Event) {
	if h.journal == nil {
		return
	}
	if err := h.journal.Record(ctx, e); err != nil {
		h.logger.WithError(err).Warn("Failed to record journal event")
	}
}

func outcome(rep protocol.Reply) string {
	switch r := rep.(type) {
	case *protocol.StatusReply:
		return string(r.Status)
	case *protocol.PeersReply:
		if len(r.Peers) == 0 {
			return "empty"
		}
		return string(protocol.StatusOK)
	default:
		return "unknown"
	}
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
