package net

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/sirupsen/logrus"
)

// inmemEventBuffer is the capacity of an InmemTransport's event channel.
// Events that do not fit are dropped and logged.
const inmemEventBuffer = 1024

// inmem holds the state shared by every InmemTransport of the process. A
// single lock guards it so that operations touching two transports never
// deadlock.
var inmem = struct {
	sync.Mutex
	byID     map[peer.ID]*InmemTransport
	byAddr   map[string]*InmemTransport
	nextPort int
}{
	byID:     make(map[peer.ID]*InmemTransport),
	byAddr:   make(map[string]*InmemTransport),
	nextPort: 40000,
}

// SentRequest records a call to InmemTransport.SendRequest.
type SentRequest struct {
	Peer    peer.ID
	Message messages.Message
}

// Publication records a call to InmemTransport.Publish.
type Publication struct {
	Topic string
	Data  []byte
}

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Transports of the same
// process find each other by peer ID. Every call that affects the network is
// recorded so that tests can inspect it.
type InmemTransport struct {
	id      peer.ID
	eventCh chan Event
	logger  *logrus.Entry

	// fields below are guarded by inmem's lock
	listenAddrs []ma.Multiaddr
	connected   map[peer.ID]*InmemTransport
	topics      map[string]bool
	addressBook map[peer.ID][]ma.Multiaddr
	closed      bool

	sent        []SentRequest
	published   []Publication
	dials       []peer.AddrInfo
	disconnects []peer.ID
	removed     []peer.ID
}

// NewInmemTransport creates an in-memory transport with a fresh identity.
func NewInmemTransport(logger *logrus.Entry) (*InmemTransport, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generating identity: %v", ErrCapability, err)
	}

	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving peer id: %v", ErrCapability, err)
	}

	trans := &InmemTransport{
		id:          id,
		eventCh:     make(chan Event, inmemEventBuffer),
		logger:      logger.WithField("peer", id.String()),
		connected:   make(map[peer.ID]*InmemTransport),
		topics:      make(map[string]bool),
		addressBook: make(map[peer.ID][]ma.Multiaddr),
	}

	inmem.Lock()
	inmem.byID[id] = trans
	inmem.Unlock()

	return trans, nil
}

// LocalPeer implements the Transport interface.
func (i *InmemTransport) LocalPeer() peer.ID {
	return i.id
}

// Listen implements the Transport interface. A zero TCP port is replaced by
// a unique one. Listening on an address already taken by another transport
// fails.
func (i *InmemTransport) Listen(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parsing listen address %s: %v", addr, err)
	}

	inmem.Lock()
	defer inmem.Unlock()

	if i.closed {
		return ErrTransportShutdown
	}

	if port, err := maddr.ValueForProtocol(ma.P_TCP); err == nil && port == "0" {
		inmem.nextPort++
		maddr, err = ma.NewMultiaddr(fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", inmem.nextPort))
		if err != nil {
			return err
		}
	}

	if _, ok := inmem.byAddr[maddr.String()]; ok {
		return fmt.Errorf("binding %s: address already in use", maddr)
	}

	inmem.byAddr[maddr.String()] = i
	i.listenAddrs = append(i.listenAddrs, maddr)
	i.emit(&NewListenAddrEvent{Address: maddr})

	return nil
}

// ListenAddrs implements the Transport interface.
func (i *InmemTransport) ListenAddrs() []ma.Multiaddr {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]ma.Multiaddr{}, i.listenAddrs...)
}

// ConnectedPeers implements the Transport interface.
func (i *InmemTransport) ConnectedPeers() []peer.ID {
	inmem.Lock()
	defer inmem.Unlock()

	res := make([]peer.ID, 0, len(i.connected))
	for p := range i.connected {
		res = append(res, p)
	}
	return res
}

// IsConnected implements the Transport interface.
func (i *InmemTransport) IsConnected(p peer.ID) bool {
	inmem.Lock()
	defer inmem.Unlock()
	_, ok := i.connected[p]
	return ok
}

// Dial implements the Transport interface. The target must be another open
// InmemTransport that is listening.
func (i *InmemTransport) Dial(info peer.AddrInfo) error {
	inmem.Lock()
	defer inmem.Unlock()

	if i.closed {
		return ErrTransportShutdown
	}

	i.dials = append(i.dials, info)

	target, ok := inmem.byID[info.ID]
	if !ok || target.closed || len(target.listenAddrs) == 0 || target == i {
		i.emit(&DialFailureEvent{
			Peer: info.ID,
			Err:  fmt.Errorf("failed to dial %s: no reachable address", info.ID),
		})
		return nil
	}

	i.connect(target)
	return nil
}

// Connect establishes a connection between two in-memory transports, as if
// one had dialed the other.
func (i *InmemTransport) Connect(other *InmemTransport) {
	inmem.Lock()
	defer inmem.Unlock()
	i.connect(other)
}

func (i *InmemTransport) connect(other *InmemTransport) {
	if _, ok := i.connected[other.id]; ok {
		return
	}

	i.connected[other.id] = other
	other.connected[i.id] = i

	var endpoint ma.Multiaddr
	if len(other.listenAddrs) > 0 {
		endpoint = other.listenAddrs[0]
	}

	i.emit(&ConnectionEstablishedEvent{Peer: other.id, Endpoint: endpoint})
	other.emit(&ConnectionEstablishedEvent{Peer: i.id})
}

// AddAddress implements the Transport interface.
func (i *InmemTransport) AddAddress(p peer.ID, addr ma.Multiaddr) {
	inmem.Lock()
	defer inmem.Unlock()

	for _, a := range i.addressBook[p] {
		if a.Equal(addr) {
			return
		}
	}
	i.addressBook[p] = append(i.addressBook[p], addr)
}

// RemovePeer implements the Transport interface.
func (i *InmemTransport) RemovePeer(p peer.ID) {
	inmem.Lock()
	defer inmem.Unlock()

	delete(i.addressBook, p)
	i.removed = append(i.removed, p)
}

// Subscribe implements the Transport interface.
func (i *InmemTransport) Subscribe(topic string) error {
	inmem.Lock()
	defer inmem.Unlock()

	if i.closed {
		return ErrTransportShutdown
	}
	i.topics[topic] = true
	return nil
}

// Publish implements the Transport interface. The data is delivered to every
// connected peer subscribed to topic. Publishing without any such peer
// succeeds.
func (i *InmemTransport) Publish(topic string, data []byte) error {
	inmem.Lock()
	defer inmem.Unlock()

	if i.closed {
		return ErrTransportShutdown
	}

	i.published = append(i.published, Publication{Topic: topic, Data: data})

	for _, other := range i.connected {
		if !other.topics[topic] {
			continue
		}
		other.emit(&GossipMessageEvent{
			From:   i.id,
			Source: i.id,
			Topic:  topic,
			ID:     fmt.Sprintf("%s-%d", i.id, len(i.published)),
			Data:   append([]byte{}, data...),
		})
	}

	return nil
}

// SendRequest implements the Transport interface. The message goes through
// the wire codec before it reaches the target.
func (i *InmemTransport) SendRequest(p peer.ID, msg messages.Message) error {
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}

	inmem.Lock()
	defer inmem.Unlock()

	if i.closed {
		return ErrTransportShutdown
	}

	i.sent = append(i.sent, SentRequest{Peer: p, Message: msg})

	target, ok := i.connected[p]
	if !ok {
		i.emit(&OutboundFailureEvent{
			Peer: p,
			Err:  fmt.Errorf("peer %s not connected", p),
		})
		return nil
	}

	decoded, err := messages.Decode(data)
	if err != nil {
		target.emit(&InboundFailureEvent{Peer: i.id, Err: err})
		return nil
	}

	target.emit(&RequestEvent{Peer: i.id, Message: decoded})
	return nil
}

// Disconnect implements the Transport interface.
func (i *InmemTransport) Disconnect(p peer.ID) error {
	inmem.Lock()
	defer inmem.Unlock()

	i.disconnects = append(i.disconnects, p)
	i.disconnect(p)
	return nil
}

func (i *InmemTransport) disconnect(p peer.ID) {
	other, ok := i.connected[p]
	if !ok {
		return
	}

	delete(i.connected, p)
	delete(other.connected, i.id)

	i.emit(&ConnectionClosedEvent{Peer: p})
	other.emit(&ConnectionClosedEvent{Peer: i.id})
}

// Events implements the Transport interface.
func (i *InmemTransport) Events() <-chan Event {
	return i.eventCh
}

// Inject delivers ev on the event channel as if the network had produced it.
func (i *InmemTransport) Inject(ev Event) {
	inmem.Lock()
	defer inmem.Unlock()
	i.emit(ev)
}

// Close implements the Transport interface. Remote ends observe the closed
// connections; the calls are not recorded as disconnects.
func (i *InmemTransport) Close() error {
	inmem.Lock()
	defer inmem.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	for p, other := range i.connected {
		delete(i.connected, p)
		delete(other.connected, i.id)
		other.emit(&ConnectionClosedEvent{Peer: i.id})
	}

	for _, a := range i.listenAddrs {
		delete(inmem.byAddr, a.String())
	}
	delete(inmem.byID, i.id)

	return nil
}

// Closed reports whether Close was called.
func (i *InmemTransport) Closed() bool {
	inmem.Lock()
	defer inmem.Unlock()
	return i.closed
}

// SentRequests returns the requests passed to SendRequest.
func (i *InmemTransport) SentRequests() []SentRequest {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]SentRequest{}, i.sent...)
}

// Published returns the data passed to Publish.
func (i *InmemTransport) Published() []Publication {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]Publication{}, i.published...)
}

// Dials returns the targets passed to Dial.
func (i *InmemTransport) Dials() []peer.AddrInfo {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]peer.AddrInfo{}, i.dials...)
}

// Disconnects returns the peers passed to Disconnect.
func (i *InmemTransport) Disconnects() []peer.ID {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]peer.ID{}, i.disconnects...)
}

// RemovedPeers returns the peers passed to RemovePeer.
func (i *InmemTransport) RemovedPeers() []peer.ID {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]peer.ID{}, i.removed...)
}

// AddressBook returns the addresses recorded for p with AddAddress.
func (i *InmemTransport) AddressBook(p peer.ID) []ma.Multiaddr {
	inmem.Lock()
	defer inmem.Unlock()
	return append([]ma.Multiaddr{}, i.addressBook[p]...)
}

// emit must be called with inmem's lock held.
func (i *InmemTransport) emit(ev Event) {
	select {
	case i.eventCh <- ev:
	default:
		i.logger.WithField("event", fmt.Sprintf("%T", ev)).Warn("Event buffer full, dropping event")
	}
}
