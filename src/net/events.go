package net

import (
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/p2poolv2/p2pool/src/messages"
)

// Event is something that happened on the network. The set of events is
// closed: every concrete type is declared in this file.
type Event interface {
	isEvent()
}

// BehaviourEvent groups the events produced by the sub-protocols (discovery,
// identify, routing table, gossip, requests), as opposed to connection-level
// events.
type BehaviourEvent interface {
	Event
	isBehaviourEvent()
}

// NewListenAddrEvent reports a new local listen address.
type NewListenAddrEvent struct {
	Address ma.Multiaddr
}

// ConnectionEstablishedEvent reports the first connection to a peer.
type ConnectionEstablishedEvent struct {
	Peer     peer.ID
	Endpoint ma.Multiaddr
}

// ConnectionClosedEvent reports that the last connection to a peer closed.
type ConnectionClosedEvent struct {
	Peer peer.ID
}

// DialFailureEvent reports a failed outbound connection attempt.
type DialFailureEvent struct {
	Peer peer.ID
	Err  error
}

// DiscoveredPeer is a (peer, address) pair found by local discovery.
type DiscoveredPeer struct {
	Peer    peer.ID
	Address ma.Multiaddr
}

// MdnsDiscoveredEvent lists peers found on the local network.
type MdnsDiscoveredEvent struct {
	Peers []DiscoveredPeer
}

// IdentifyReceivedEvent carries the self-description a peer sent us.
type IdentifyReceivedEvent struct {
	Peer            peer.ID
	ProtocolVersion string
	AgentVersion    string
	ListenAddrs     []ma.Multiaddr
}

// IdentifyFailedEvent reports a failed identify exchange.
type IdentifyFailedEvent struct {
	Peer peer.ID
	Err  error
}

// RoutingUpdatedEvent reports a peer entering the routing table.
type RoutingUpdatedEvent struct {
	Peer      peer.ID
	IsNewPeer bool
	Addresses []ma.Multiaddr
}

// ClosestPeersEvent carries the result of a closest-peers query.
type ClosestPeersEvent struct {
	Key   string
	Peers []peer.ID
	Err   error
}

// GossipMessageEvent carries a message received on a subscribed topic.
type GossipMessageEvent struct {
	// From is the peer that forwarded the message to us.
	From peer.ID
	// Source is the peer that originally published it.
	Source peer.ID
	Topic  string
	ID     string
	Data   []byte
}

// RequestEvent carries a direct message received from a peer.
type RequestEvent struct {
	Peer    peer.ID
	Message messages.Message
}

// InboundFailureEvent reports an inbound request that could not be read or
// decoded. Only the offending stream is dropped.
type InboundFailureEvent struct {
	Peer peer.ID
	Err  error
}

// OutboundFailureEvent reports a direct message that could not be delivered.
type OutboundFailureEvent struct {
	Peer peer.ID
	Err  error
}

func (*NewListenAddrEvent) isEvent()         {}
func (*ConnectionEstablishedEvent) isEvent() {}
func (*ConnectionClosedEvent) isEvent()      {}
func (*DialFailureEvent) isEvent()           {}
func (*MdnsDiscoveredEvent) isEvent()        {}
func (*IdentifyReceivedEvent) isEvent()      {}
func (*IdentifyFailedEvent) isEvent()        {}
func (*RoutingUpdatedEvent) isEvent()        {}
func (*ClosestPeersEvent) isEvent()          {}
func (*GossipMessageEvent) isEvent()         {}
func (*RequestEvent) isEvent()               {}
func (*InboundFailureEvent) isEvent()        {}
func (*OutboundFailureEvent) isEvent()       {}

func (*MdnsDiscoveredEvent) isBehaviourEvent()   {}
func (*IdentifyReceivedEvent) isBehaviourEvent() {}
func (*IdentifyFailedEvent) isBehaviourEvent()   {}
func (*RoutingUpdatedEvent) isBehaviourEvent()   {}
func (*ClosestPeersEvent) isBehaviourEvent()     {}
func (*GossipMessageEvent) isBehaviourEvent()    {}
func (*RequestEvent) isBehaviourEvent()          {}
func (*InboundFailureEvent) isBehaviourEvent()   {}
func (*OutboundFailureEvent) isBehaviourEvent()  {}
