package protocol

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
)

// Request is one of Join, ShareFile, GetPeers, GotTheFile or Leave.
// The unexported method keeps the set closed to this package.
type Request interface {
	Action() Action
	Peer() string
	validate() error
}

type Join struct {
	PeerID       string
	Files        []string
	TransferPort int
}

func (*Join) Action() Action { return ActionJoin }
func (r *Join) Peer() string { return r.PeerID }
func (r *Join) validate() error {
	if r.PeerID == "" {
		return missing("peer_id")
	}
	if r.TransferPort <= 0 || r.TransferPort > 65535 {
		return fmt.Errorf("%w: transfer_port %d out of range", ErrMalformed, r.TransferPort)
	}
	for _, f := range r.Files {
		if f == "" {
			return fmt.Errorf("%w: empty file name", ErrMalformed)
		}
	}
	return nil
}

type ShareFile struct {
	PeerID string
	File   string
}

func (*ShareFile) Action() Action { return ActionShareFile }
func (r *ShareFile) Peer() string { return r.PeerID }
func (r *ShareFile) validate() error {
	if r.PeerID == "" {
		return missing("peer_id")
	}
	if r.File == "" {
		return missing("file")
	}
	return nil
}

type GetPeers struct {
	PeerID   string
	FileName string
}

func (*GetPeers) Action() Action { return ActionGetPeers }
func (r *GetPeers) Peer() string { return r.PeerID }
func (r *GetPeers) validate() error {
	if r.FileName == "" {
		return missing("file_name")
	}
	return nil
}

type GotTheFile struct {
	PeerID   string
	FileName string
}

func (*GotTheFile) Action() Action { return ActionGotTheFile }
func (r *GotTheFile) Peer() string { return r.PeerID }
func (r *GotTheFile) validate() error {
	if r.PeerID == "" {
		return missing("peer_id")
	}
	if r.FileName == "" {
		return missing("file_name")
	}
	return nil
}

type Leave struct {
	PeerID string
}

func (*Leave) Action() Action { return ActionLeave }
func (r *Leave) Peer() string { return r.PeerID }
func (r *Leave) validate() error {
	if r.PeerID == "" {
		return missing("peer_id")
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformed, field)
}

// Reply is either a StatusReply or a PeersReply.
type Reply interface {
	reply()
}

type StatusReply struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

func (*StatusReply) reply() {}

func (r *StatusReply) OK() bool { return r.Status == StatusOK }

func OK() *StatusReply {
	return &StatusReply{Status: StatusOK}
}

func Failure(msg string) *StatusReply {
	return &StatusReply{Status: StatusError, Message: msg}
}

type PeersReply struct {
	Peers []PeerAddr `json:"peers"`
}

func (*PeersReply) reply() {}

// PeerAddr is a peer's transfer endpoint. On the wire it is the two element
// array ["ip", port].
type PeerAddr struct {
	IP   string
	Port int
}

func (a PeerAddr) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

func (a PeerAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.IP, a.Port})
}

func (a *PeerAddr) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("peer address: expected [ip, port], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &a.IP); err != nil {
		return fmt.Errorf("peer address ip: %w", err)
	}
	if err := json.Unmarshal(raw[1], &a.Port); err != nil {
		return fmt.Errorf("peer address port: %w", err)
	}
	return nil
}
