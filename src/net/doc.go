// Package net implements the peer-to-peer capability of a p2pool node.
//
// The Transport interface is what a node owns to talk to the network. It
// combines several protocols behind one set of methods and one stream of
// events:
//
// - local network discovery (mDNS)
//
// - a Kademlia routing table that doubles as an address book
//
// - identify, through which peers describe themselves and their listen
// addresses
//
// - GossipSub topics for broadcasting shares
//
// - a direct request protocol, /p2pool/req/1.0.0, carrying one CBOR encoded
// message per stream
//
// Everything that happens on the network is reported on the Events channel as
// one of the event types declared in events.go. Methods that start network
// activity (Dial, SendRequest) return immediately and report failures as
// events.
//
// There are two implementations:
//
// - LibP2PTransport: a libp2p host over TCP, secured with noise and
// multiplexed with yamux. A fresh ed25519 identity is generated every time a
// transport is created.
//
// - InmemTransport: an in-process transport used for testing. It records the
// calls made to it so that tests can assert on them.
package net
