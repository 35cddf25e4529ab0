package messages

import (
	"fmt"

	"github.com/p2poolv2/p2pool/src/shares"
)

// MessageType tags the variants of Message on the wire. Values are part of
// the protocol; append new variants, never renumber.
type MessageType uint8

const (
	// InventoryType ...
	InventoryType MessageType = iota + 1
	// NotFoundType ...
	NotFoundType
	// GetDataType ...
	GetDataType
	// ShareBlockType ...
	ShareBlockType
	// WorkbaseType ...
	WorkbaseType
)

// String ...
func (t MessageType) String() string {
	switch t {
	case InventoryType:
		return "Inventory"
	case NotFoundType:
		return "NotFound"
	case GetDataType:
		return "GetData"
	case ShareBlockType:
		return "ShareBlock"
	case WorkbaseType:
		return "Workbase"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Message is an application payload exchanged over gossip or direct
// requests.
type Message interface {
	Type() MessageType
}

// InventoryMessage advertises the shares the sender currently has, best
// share first.
type InventoryMessage struct {
	HaveShares []shares.ShareID `codec:"have_shares"`
}

// Type implements Message.
func (m *InventoryMessage) Type() MessageType { return InventoryType }

// NotFoundMessage answers a GetData for data the sender does not have.
type NotFoundMessage struct{}

// Type implements Message.
func (m *NotFoundMessage) Type() MessageType { return NotFoundType }

// DataKind selects what a GetDataMessage asks for.
type DataKind uint8

const (
	// ShareData asks for a ShareBlock by ShareID.
	ShareData DataKind = iota + 1
	// WorkbaseData asks for a MinerWorkbase by workinfo id.
	WorkbaseData
)

// GetDataMessage requests a share or workbase from a peer.
type GetDataMessage struct {
	Kind DataKind `codec:"kind"`
	ID   string   `codec:"id"`
}

// Type implements Message.
func (m *GetDataMessage) Type() MessageType { return GetDataType }

// ShareBlockMessage carries a full share.
type ShareBlockMessage struct {
	Share shares.ShareBlock `codec:"share"`
}

// Type implements Message.
func (m *ShareBlockMessage) Type() MessageType { return ShareBlockType }

// WorkbaseMessage carries a miner workbase.
type WorkbaseMessage struct {
	Workbase shares.MinerWorkbase `codec:"workbase"`
}

// Type implements Message.
func (m *WorkbaseMessage) Type() MessageType { return WorkbaseType }

// NewInventory returns an InventoryMessage for the given shares.
func NewInventory(have ...shares.ShareID) *InventoryMessage {
	return &InventoryMessage{HaveShares: have}
}

func newMessage(t MessageType) (Message, error) {
	switch t {
	case InventoryType:
		return new(InventoryMessage), nil
	case NotFoundType:
		return new(NotFoundMessage), nil
	case GetDataType:
		return new(GetDataMessage), nil
	case ShareBlockType:
		return new(ShareBlockMessage), nil
	case WorkbaseType:
		return new(WorkbaseMessage), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, t)
	}
}
