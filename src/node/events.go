package node

import (
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/p2poolv2/p2pool/src/net"
	"github.com/sirupsen/logrus"
)

// HandleEvent reacts to an event produced by the transport.
func (n *Node) HandleEvent(ev net.Event) {
	defer n.metrics.Events.WithLabelValues(kindOf(ev)).Inc()

	switch e := ev.(type) {
	case *net.NewListenAddrEvent:
		n.logger.WithField("addr", e.Address.String()).Info("Listening")
	case *net.ConnectionEstablishedEvent:
		n.logger.WithFields(logrus.Fields{
			"remote":   e.Peer.String(),
			"endpoint": e.Endpoint,
		}).Info("Connected to peer")
		n.metrics.ConnectedPeers.Set(float64(len(n.trans.ConnectedPeers())))
		n.sendInventory(e.Peer)
	case *net.ConnectionClosedEvent:
		n.logger.WithField("remote", e.Peer.String()).Info("Disconnected from peer")
		n.metrics.ConnectedPeers.Set(float64(len(n.trans.ConnectedPeers())))
		n.trans.RemovePeer(e.Peer)
	case *net.DialFailureEvent:
		n.logger.WithFields(logrus.Fields{
			"remote": e.Peer.String(),
			"error":  e.Err,
		}).Debug("Dial failed")
	case net.BehaviourEvent:
		n.handleBehaviourEvent(e)
	}
}

func (n *Node) handleBehaviourEvent(ev net.BehaviourEvent) {
	switch e := ev.(type) {
	case *net.MdnsDiscoveredEvent:
		n.handleMdnsDiscovered(e)
	case *net.IdentifyReceivedEvent:
		n.logger.WithFields(logrus.Fields{
			"remote":           e.Peer.String(),
			"protocol_version": e.ProtocolVersion,
		}).Info("Identified peer")
		for _, addr := range e.ListenAddrs {
			n.trans.AddAddress(e.Peer, addr)
		}
	case *net.IdentifyFailedEvent:
		n.logger.WithFields(logrus.Fields{
			"remote": e.Peer.String(),
			"error":  e.Err,
		}).Debug("Identify failed")
	case *net.RoutingUpdatedEvent:
		n.logger.WithFields(logrus.Fields{
			"remote":      e.Peer.String(),
			"is_new_peer": e.IsNewPeer,
			"addresses":   e.Addresses,
		}).Info("Routing updated")
	case *net.ClosestPeersEvent:
		if e.Err != nil {
			n.logger.WithField("error", e.Err).Debug("Closest peers query failed")
			return
		}
		n.logger.WithField("peers", e.Peers).Info("Closest peers")
	case *net.GossipMessageEvent:
		n.logger.WithFields(logrus.Fields{
			"from":   e.From.String(),
			"source": e.Source.String(),
			"topic":  e.Topic,
			"id":     e.ID,
			"size":   len(e.Data),
		}).Info("Received gossip message")
	case *net.RequestEvent:
		n.logger.WithFields(logrus.Fields{
			"remote":  e.Peer.String(),
			"message": messageKind(e.Message),
		}).Info("Received request")
	case *net.InboundFailureEvent:
		n.logger.WithFields(logrus.Fields{
			"remote": e.Peer.String(),
			"error":  e.Err,
		}).Debug("Inbound request failed")
	case *net.OutboundFailureEvent:
		n.logger.WithFields(logrus.Fields{
			"remote": e.Peer.String(),
			"error":  e.Err,
		}).Debug("Outbound request failed")
	}
}

// handleMdnsDiscovered dials discovered peers that are not connected yet and
// records their address on success. Failures are not retried.
func (n *Node) handleMdnsDiscovered(e *net.MdnsDiscoveredEvent) {
	for _, d := range e.Peers {
		if n.trans.IsConnected(d.Peer) {
			continue
		}

		n.logger.WithFields(logrus.Fields{
			"remote": d.Peer.String(),
			"addr":   d.Address,
		}).Info("Discovered peer")

		info := peer.AddrInfo{ID: d.Peer, Addrs: []ma.Multiaddr{d.Address}}
		if err := n.trans.Dial(info); err != nil {
			n.logger.WithFields(logrus.Fields{
				"remote": d.Peer.String(),
				"error":  err,
			}).Debug("Failed to dial discovered peer")
			continue
		}

		n.trans.AddAddress(d.Peer, d.Address)
	}
}

func messageKind(m messages.Message) string {
	if m == nil {
		return "nil"
	}
	return m.Type().String()
}
