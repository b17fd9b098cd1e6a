package protocol

const (
	// MaxDatagramSize is the largest UDP payload; datagram reads use buffers of
	// this size so no control message is ever truncated.
	MaxDatagramSize = 65507
	MaxFrameSize    = 1 << 20
	frameHeaderSize = 4
)

// Action names a control request kind on the wire.
type Action string

const (
	ActionGetPeers   Action = "get_peers"
	ActionGotTheFile Action = "got_the_file"
	ActionJoin       Action = "join"
	ActionLeave      Action = "leave"
	ActionShareFile  Action = "share_file"
)

func (a Action) String() string {
	switch a {
	case ActionGetPeers, ActionGotTheFile, ActionJoin, ActionLeave, ActionShareFile:
		return string(a)
	default:
		return "unknown"
	}
}

type Status string

const (
	StatusError Status = "error"
	StatusOK    Status = "ok"
)

// Reply messages the tracker sends with StatusError.
const (
	MsgMalformed     = "Malformed request"
	MsgPeerNotFound  = "Peer not found"
	MsgUnknownAction = "Unknown action"
)
