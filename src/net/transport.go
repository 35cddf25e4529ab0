package net

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/p2poolv2/p2pool/src/messages"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrCapability wraps failures to assemble the protocol suite of a
	// transport (pubsub, routing table, discovery). It is distinct from
	// failing to bind the listen address.
	ErrCapability = errors.New("network capability")
)

// Transport is the peer-to-peer capability owned by a node. It offers
// discovery, a distributed routing table, identify, topic publish/subscribe
// and direct requests, and reports what happens on the network through the
// Events channel.
//
// Implementations are driven by a single owner; methods other than Events
// are not meant to be called concurrently.
type Transport interface {
	// LocalPeer returns the identity of this transport.
	LocalPeer() peer.ID

	// Listen binds the given multiaddr.
	Listen(addr string) error

	// ListenAddrs returns the addresses the transport is bound to.
	ListenAddrs() []ma.Multiaddr

	// ConnectedPeers returns a snapshot of the peers with at least one open
	// connection.
	ConnectedPeers() []peer.ID

	// IsConnected reports whether p has an open connection.
	IsConnected(p peer.ID) bool

	// Dial starts connecting to a peer. It returns once the attempt is
	// underway; the outcome is reported as a ConnectionEstablishedEvent or a
	// DialFailureEvent.
	Dial(info peer.AddrInfo) error

	// AddAddress records addr as a dial target for p in the routing table's
	// address book.
	AddAddress(p peer.ID, addr ma.Multiaddr)

	// RemovePeer purges p from the routing table and address book.
	RemovePeer(p peer.ID)

	// Subscribe joins a gossip topic. Messages on the topic are reported as
	// GossipMessageEvents.
	Subscribe(topic string) error

	// Publish sends data to the subscribers of topic.
	Publish(topic string, data []byte) error

	// SendRequest delivers msg to p over a direct stream. Delivery failures
	// are reported as OutboundFailureEvents.
	SendRequest(p peer.ID, msg messages.Message) error

	// Disconnect closes every connection to p.
	Disconnect(p peer.ID) error

	// Events returns the channel on which network events are delivered. The
	// channel is never closed; it simply goes quiet after Close.
	Events() <-chan Event

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
