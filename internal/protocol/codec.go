package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownAction = errors.New("unknown action")
)

// envelope is the flat JSON record every request travels in.
type envelope struct {
	Action       Action    `json:"action"`
	PeerID       string    `json:"peer_id,omitempty"`
	Files        *[]string `json:"files,omitempty"`
	TransferPort int       `json:"transfer_port,omitempty"`
	TCPPort      int       `json:"tcp_port,omitempty"`
	File         string    `json:"file,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) EncodeRequest(req Request) ([]byte, error) {
	env := envelope{Action: req.Action(), PeerID: req.Peer()}

	switch r := req.(type) {
	case *Join:
		files := r.Files
		if files == nil {
			files = []string{}
		}
		env.Files = &files
		env.TransferPort = r.TransferPort
	case *ShareFile:
		env.File = r.File
	case *GetPeers:
		env.FileName = r.FileName
	case *GotTheFile:
		env.FileName = r.FileName
	case *Leave:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, req)
	}

	return json.Marshal(env)
}

// DecodeRequest parses and validates one request. Errors wrap ErrMalformed or
// ErrUnknownAction.
func (c *Codec) DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var req Request
	switch env.Action {
	case ActionJoin:
		port := env.TransferPort
		if port == 0 {
			port = env.TCPPort
		}
		files := []string{}
		if env.Files != nil {
			files = *env.Files
		}
		req = &Join{PeerID: env.PeerID, Files: files, TransferPort: port}
	case ActionShareFile:
		req = &ShareFile{PeerID: env.PeerID, File: env.File}
	case ActionGetPeers:
		req = &GetPeers{PeerID: env.PeerID, FileName: env.FileName}
	case ActionGotTheFile:
		req = &GotTheFile{PeerID: env.PeerID, FileName: env.FileName}
	case ActionLeave:
		req = &Leave{PeerID: env.PeerID}
	case "":
		return nil, missing("action")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, string(env.Action))
	}

	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Codec) EncodeReply(rep Reply) ([]byte, error) {
	switch r := rep.(type) {
	case *StatusReply:
		return json.Marshal(r)
	case *PeersReply:
		if r.Peers == nil {
			return json.Marshal(&PeersReply{Peers: []PeerAddr{}})
		}
		return json.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported reply type %T", rep)
	}
}

// DecodeReply returns a *PeersReply when the payload carries a peers list and
// a *StatusReply otherwise.
func (c *Codec) DecodeReply(data []byte) (Reply, error) {
	var env struct {
		Status  Status      `json:"status"`
		Message string      `json:"message"`
		Peers   *[]PeerAddr `json:"peers"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Peers != nil {
		return &PeersReply{Peers: *env.Peers}, nil
	}
	if env.Status == "" {
		return nil, fmt.Errorf("%w: reply has neither status nor peers", ErrMalformed)
	}
	return &StatusReply{Status: env.Status, Message: env.Message}, nil
}
