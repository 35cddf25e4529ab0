package node

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/p2poolv2/p2pool/src/shares"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAddShare is returned to callers of AddShare when the chain rejects
	// the share. The cause is logged by the actor.
	ErrAddShare = errors.New("error adding share to chain")

	// ErrStoreWorkbase is returned to callers of StoreWorkbase when the store
	// rejects the workbase. The cause is logged by the actor.
	ErrStoreWorkbase = errors.New("error storing workbase")
)

// GetPeersRequest asks for the peers currently connected. The response is a
// []peer.ID.
type GetPeersRequest struct{}

// SendGossipRequest publishes Data on the share topic.
type SendGossipRequest struct {
	Data []byte
}

// SendToPeerRequest delivers Message directly to Peer.
type SendToPeerRequest struct {
	Peer    peer.ID
	Message messages.Message
}

// AddShareRequest adds Share to the chain.
type AddShareRequest struct {
	Share *shares.ShareBlock
}

// StoreWorkbaseRequest persists Workbase.
type StoreWorkbaseRequest struct {
	Workbase *shares.MinerWorkbase
}

// ShutdownRequest disconnects every peer and stops the actor.
type ShutdownRequest struct{}

// CommandResponse captures both a response and a potential error.
type CommandResponse struct {
	Response interface{}
	Error    error
}

// Command encapsulates a request to the actor and provides a response
// mechanism. Args is one of the request types above.
type Command struct {
	Args     interface{}
	RespChan chan CommandResponse
}

// NewCommand creates a Command whose reply slot holds exactly one response.
func NewCommand(args interface{}) Command {
	return Command{
		Args:     args,
		RespChan: make(chan CommandResponse, 1),
	}
}

// Respond sends the response, error or both. It never blocks: if the reply
// slot is already used, or has no room because the caller built it without
// one, the response is dropped and logged.
func (c *Command) Respond(resp interface{}, err error, logger *logrus.Entry) {
	select {
	case c.RespChan <- CommandResponse{resp, err}:
	default:
		logger.WithField("command", kindOf(c.Args)).Warn("Dropping reply, nobody is waiting for it")
	}
}
