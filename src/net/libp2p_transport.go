package net

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/sirupsen/logrus"
)

const (
	// RequestProtocol carries one CBOR encoded message per stream.
	RequestProtocol = protocol.ID("/p2pool/req/1.0.0")

	// ProtocolVersion is announced to peers through identify.
	ProtocolVersion = "/p2pool/1.0.0"

	// AgentVersion is announced to peers through identify.
	AgentVersion = "p2pool"

	// MdnsServiceName is the service tag of local discovery.
	MdnsServiceName = "p2pool"

	dhtProtocolPrefix = protocol.ID("/p2pool")
	eventBuffer       = 256
)

// LibP2PTransport implements the Transport interface on top of a libp2p host
// (TCP, noise, yamux) with GossipSub, a Kademlia routing table, mDNS
// discovery and identify.
type LibP2PTransport struct {
	host   host.Host
	kad    *dht.IpfsDHT
	ps     *pubsub.PubSub
	busSub event.Subscription
	mdns   mdns.Service

	enableMdns  bool
	dialTimeout time.Duration

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription
	announced map[string]bool
	closed    bool

	bootstrapped int32
	closeOnce    sync.Once

	logger *logrus.Entry
}

// NewLibP2PTransport creates a transport with a freshly generated identity.
// Nothing is bound until Listen is called. A failure to assemble any of the
// protocols is returned as an error wrapping ErrCapability.
func NewLibP2PTransport(enableMdns bool, dialTimeout time.Duration, logger *logrus.Entry) (*LibP2PTransport, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generating identity: %v", ErrCapability, err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.NoListenAddrs,
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ProtocolVersion(ProtocolVersion),
		libp2p.UserAgent(AgentVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating host: %v", ErrCapability, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	trans := &LibP2PTransport{
		host:        h,
		enableMdns:  enableMdns,
		dialTimeout: dialTimeout,
		eventCh:     make(chan Event, eventBuffer),
		ctx:         ctx,
		cancel:      cancel,
		topics:      make(map[string]*pubsub.Topic),
		subs:        make(map[string]*pubsub.Subscription),
		announced:   make(map[string]bool),
		logger:      logger.WithField("peer", h.ID().String()),
	}

	fail := func(what string, err error) (*LibP2PTransport, error) {
		cancel()
		if trans.kad != nil {
			trans.kad.Close()
		}
		if trans.busSub != nil {
			trans.busSub.Close()
		}
		h.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCapability, what, err)
	}

	trans.busSub, err = h.EventBus().Subscribe([]interface{}{
		new(event.EvtPeerConnectednessChanged),
		new(event.EvtPeerIdentificationCompleted),
		new(event.EvtPeerIdentificationFailed),
	})
	if err != nil {
		return fail("subscribing to host events", err)
	}

	trans.kad, err = dht.New(ctx, h,
		dht.Mode(dht.ModeServer),
		dht.ProtocolPrefix(dhtProtocolPrefix),
	)
	if err != nil {
		return fail("creating routing table", err)
	}

	rt := trans.kad.RoutingTable()
	prevAdded := rt.PeerAdded
	rt.PeerAdded = func(p peer.ID) {
		if prevAdded != nil {
			prevAdded(p)
		}
		trans.onPeerAdded(p)
	}

	trans.ps, err = pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return fail("creating gossipsub", err)
	}

	h.SetStreamHandler(RequestProtocol, trans.handleStream)

	trans.wg.Add(1)
	go trans.hostEventLoop()

	return trans, nil
}

// LocalPeer implements the Transport interface.
func (t *LibP2PTransport) LocalPeer() peer.ID {
	return t.host.ID()
}

// Listen implements the Transport interface. Bind errors are returned as
// is. Local discovery is started after the first successful bind; a
// discovery failure is logged and ignored.
func (t *LibP2PTransport) Listen(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parsing listen address %s: %v", addr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportShutdown
	}

	if err := t.host.Network().Listen(maddr); err != nil {
		return fmt.Errorf("binding %s: %v", addr, err)
	}

	var fresh []ma.Multiaddr
	for _, a := range t.host.Network().ListenAddresses() {
		if t.announced[a.String()] {
			continue
		}
		t.announced[a.String()] = true
		fresh = append(fresh, a)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for _, a := range fresh {
			t.emit(&NewListenAddrEvent{Address: a})
		}
	}()

	if t.enableMdns && t.mdns == nil {
		svc := mdns.NewMdnsService(t.host, MdnsServiceName, t)
		if err := svc.Start(); err != nil {
			t.logger.WithField("error", err).Warn("mDNS service failed to start")
		} else {
			t.mdns = svc
		}
	}

	return nil
}

// ListenAddrs implements the Transport interface.
func (t *LibP2PTransport) ListenAddrs() []ma.Multiaddr {
	return t.host.Network().ListenAddresses()
}

// ConnectedPeers implements the Transport interface.
func (t *LibP2PTransport) ConnectedPeers() []peer.ID {
	return t.host.Network().Peers()
}

// IsConnected implements the Transport interface.
func (t *LibP2PTransport) IsConnected(p peer.ID) bool {
	return t.host.Network().Connectedness(p) == network.Connected
}

// Dial implements the Transport interface.
func (t *LibP2PTransport) Dial(info peer.AddrInfo) error {
	if !t.track() {
		return ErrTransportShutdown
	}

	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, t.dialTimeout)
		defer cancel()

		if err := t.host.Connect(ctx, info); err != nil {
			t.emit(&DialFailureEvent{Peer: info.ID, Err: err})
		}
	}()

	return nil
}

// AddAddress implements the Transport interface.
func (t *LibP2PTransport) AddAddress(p peer.ID, addr ma.Multiaddr) {
	t.host.Peerstore().AddAddr(p, addr, peerstore.PermanentAddrTTL)
	if _, err := t.kad.RoutingTable().TryAddPeer(p, true, false); err != nil {
		t.logger.WithFields(logrus.Fields{
			"remote": p.String(),
			"error":  err,
		}).Debug("Routing table rejected peer")
	}
}

// RemovePeer implements the Transport interface.
func (t *LibP2PTransport) RemovePeer(p peer.ID) {
	t.kad.RoutingTable().RemovePeer(p)
	t.host.Peerstore().ClearAddrs(p)
}

// Subscribe implements the Transport interface.
func (t *LibP2PTransport) Subscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportShutdown
	}

	if _, ok := t.subs[topic]; ok {
		return nil
	}

	tp, err := t.joinLocked(topic)
	if err != nil {
		return err
	}

	sub, err := tp.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribing to %s: %v", topic, err)
	}
	t.subs[topic] = sub

	t.wg.Add(1)
	go t.readTopic(sub)

	return nil
}

// Publish implements the Transport interface.
func (t *LibP2PTransport) Publish(topic string, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportShutdown
	}
	tp, err := t.joinLocked(topic)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	return tp.Publish(t.ctx, data)
}

func (t *LibP2PTransport) joinLocked(topic string) (*pubsub.Topic, error) {
	if tp, ok := t.topics[topic]; ok {
		return tp, nil
	}

	tp, err := t.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("joining %s: %v", topic, err)
	}
	t.topics[topic] = tp

	return tp, nil
}

// SendRequest implements the Transport interface.
func (t *LibP2PTransport) SendRequest(p peer.ID, msg messages.Message) error {
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}

	if !t.track() {
		return ErrTransportShutdown
	}

	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, t.dialTimeout)
		defer cancel()

		s, err := t.host.NewStream(ctx, p, RequestProtocol)
		if err != nil {
			t.emit(&OutboundFailureEvent{Peer: p, Err: err})
			return
		}

		if _, err := s.Write(data); err != nil {
			s.Reset()
			t.emit(&OutboundFailureEvent{Peer: p, Err: err})
			return
		}

		s.Close()
	}()

	return nil
}

// Disconnect implements the Transport interface.
func (t *LibP2PTransport) Disconnect(p peer.ID) error {
	return t.host.Network().ClosePeer(p)
}

// Events implements the Transport interface.
func (t *LibP2PTransport) Events() <-chan Event {
	return t.eventCh
}

// Close implements the Transport interface.
func (t *LibP2PTransport) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		t.cancel()

		if t.mdns != nil {
			t.mdns.Close()
		}

		for _, sub := range t.subs {
			sub.Cancel()
		}
		for _, tp := range t.topics {
			tp.Close()
		}

		t.kad.Close()
		t.busSub.Close()
		err = t.host.Close()

		t.wg.Wait()
	})

	return err
}

// HandlePeerFound is called by local discovery.
func (t *LibP2PTransport) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == t.host.ID() {
		return
	}

	found := make([]DiscoveredPeer, 0, len(info.Addrs))
	for _, a := range info.Addrs {
		found = append(found, DiscoveredPeer{Peer: info.ID, Address: a})
	}

	t.emit(&MdnsDiscoveredEvent{Peers: found})
}

// track registers a background task unless the transport is closed.
func (t *LibP2PTransport) track() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *LibP2PTransport) emit(ev Event) {
	select {
	case t.eventCh <- ev:
	case <-t.ctx.Done():
	}
}

func (t *LibP2PTransport) hostEventLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case e, ok := <-t.busSub.Out():
			if !ok {
				return
			}
			t.handleHostEvent(e)
		}
	}
}

func (t *LibP2PTransport) handleHostEvent(e interface{}) {
	switch evt := e.(type) {
	case event.EvtPeerConnectednessChanged:
		switch evt.Connectedness {
		case network.Connected:
			var endpoint ma.Multiaddr
			if conns := t.host.Network().ConnsToPeer(evt.Peer); len(conns) > 0 {
				endpoint = conns[0].RemoteMultiaddr()
			}
			t.emit(&ConnectionEstablishedEvent{Peer: evt.Peer, Endpoint: endpoint})
		case network.NotConnected:
			t.emit(&ConnectionClosedEvent{Peer: evt.Peer})
		}
	case event.EvtPeerIdentificationCompleted:
		// identify records what the peer advertised in the peerstore
		ps := t.host.Peerstore()
		t.emit(&IdentifyReceivedEvent{
			Peer:            evt.Peer,
			ProtocolVersion: t.peerstoreString(evt.Peer, "ProtocolVersion"),
			AgentVersion:    t.peerstoreString(evt.Peer, "AgentVersion"),
			ListenAddrs:     ps.Addrs(evt.Peer),
		})
	case event.EvtPeerIdentificationFailed:
		t.emit(&IdentifyFailedEvent{Peer: evt.Peer, Err: evt.Reason})
	}
}

func (t *LibP2PTransport) peerstoreString(p peer.ID, key string) string {
	v, err := t.host.Peerstore().Get(p, key)
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

// onPeerAdded runs inside the routing table; the event is emitted from
// another goroutine.
func (t *LibP2PTransport) onPeerAdded(p peer.ID) {
	if !t.track() {
		return
	}

	first := atomic.CompareAndSwapInt32(&t.bootstrapped, 0, 1)

	go func() {
		defer t.wg.Done()

		t.emit(&RoutingUpdatedEvent{
			Peer:      p,
			IsNewPeer: true,
			Addresses: t.host.Peerstore().Addrs(p),
		})

		if first {
			t.findClosestPeers(string(t.host.ID()))
		}
	}()
}

// findClosestPeers looks up the peers closest to key and reports them as a
// ClosestPeersEvent.
func (t *LibP2PTransport) findClosestPeers(key string) {
	ctx, cancel := context.WithTimeout(t.ctx, time.Minute)
	defer cancel()

	peers, err := t.kad.GetClosestPeers(ctx, key)
	t.emit(&ClosestPeersEvent{Key: key, Peers: peers, Err: err})
}

func (t *LibP2PTransport) readTopic(sub *pubsub.Subscription) {
	defer t.wg.Done()

	for {
		msg, err := sub.Next(t.ctx)
		if err != nil {
			return
		}

		if msg.ReceivedFrom == t.host.ID() {
			continue
		}

		t.emit(&GossipMessageEvent{
			From:   msg.ReceivedFrom,
			Source: msg.GetFrom(),
			Topic:  msg.GetTopic(),
			ID:     msg.ID,
			Data:   msg.Data,
		})
	}
}

func (t *LibP2PTransport) handleStream(s network.Stream) {
	remote := s.Conn().RemotePeer()

	msg, err := messages.ReadMessage(s)
	if err != nil {
		s.Reset()
		t.emit(&InboundFailureEvent{Peer: remote, Err: err})
		return
	}
	s.Close()

	t.emit(&RequestEvent{Peer: remote, Message: msg})
}
