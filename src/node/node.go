package node

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/p2poolv2/p2pool/src/config"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/p2poolv2/p2pool/src/net"
	"github.com/p2poolv2/p2pool/src/shares"
	"github.com/sirupsen/logrus"
)

// Node owns the network transport, the share topic and the chain. It turns
// outbound intents into transport calls and reacts to network events. A Node
// is not safe for concurrent use; it belongs to the Actor.
type Node struct {
	trans      net.Transport
	shareTopic string
	chain      *shares.Chain

	metrics *Metrics
	logger  *logrus.Entry
}

// NewNode binds the configured listen address, dials the configured peers and
// subscribes to the share topic. Only a bind failure is returned; bad or
// unreachable dial targets and a failed subscription are logged.
func NewNode(conf *config.Config, trans net.Transport, chain *shares.Chain, metrics *Metrics) (*Node, error) {
	if metrics == nil {
		metrics = NewMetrics()
	}

	n := &Node{
		trans:      trans,
		shareTopic: conf.Network.ShareTopic,
		chain:      chain,
		metrics:    metrics,
		logger:     conf.Logger().WithField("id", trans.LocalPeer().String()),
	}

	if err := trans.Listen(conf.Network.ListenAddress); err != nil {
		return nil, fmt.Errorf("listening on %s: %v", conf.Network.ListenAddress, err)
	}

	for _, addr := range conf.Network.DialPeers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"addr":  addr,
				"error": err,
			}).Debug("Invalid dial address")
			continue
		}

		if err := trans.Dial(*info); err != nil {
			n.logger.WithFields(logrus.Fields{
				"addr":  addr,
				"error": err,
			}).Debug("Failed to dial")
			continue
		}

		n.logger.WithField("addr", addr).Info("Dialed")
	}

	if err := trans.Subscribe(n.shareTopic); err != nil {
		n.logger.WithFields(logrus.Fields{
			"topic": n.shareTopic,
			"error": err,
		}).Error("Failed to subscribe to share topic")
	}

	return n, nil
}

// ID returns the identity of the node on the network.
func (n *Node) ID() peer.ID {
	return n.trans.LocalPeer()
}

// ConnectedPeers returns the peers currently connected.
func (n *Node) ConnectedPeers() []peer.ID {
	return n.trans.ConnectedPeers()
}

// SendGossip publishes data on the share topic. Failures are logged.
func (n *Node) SendGossip(data []byte) {
	if err := n.trans.Publish(n.shareTopic, data); err != nil {
		n.logger.WithField("error", err).Error("Failed to send share")
	}
}

// SendToPeer sends msg directly to p. Delivery is not confirmed.
func (n *Node) SendToPeer(p peer.ID, msg messages.Message) {
	n.logger.WithFields(logrus.Fields{
		"remote":  p.String(),
		"message": messageKind(msg),
	}).Info("Sending message to peer")

	if err := n.trans.SendRequest(p, msg); err != nil {
		n.logger.WithFields(logrus.Fields{
			"remote": p.String(),
			"error":  err,
		}).Error("Failed to send message")
	}
}

// Shutdown disconnects every connected peer, ignoring failures.
func (n *Node) Shutdown() {
	for _, p := range n.trans.ConnectedPeers() {
		if err := n.trans.Disconnect(p); err != nil {
			n.logger.WithFields(logrus.Fields{
				"remote": p.String(),
				"error":  err,
			}).Debug("Failed to disconnect")
		}
	}
}

// Close releases the transport and the chain.
func (n *Node) Close() {
	if err := n.trans.Close(); err != nil {
		n.logger.WithField("error", err).Error("Failed to close transport")
	}
	if err := n.chain.Close(); err != nil {
		n.logger.WithField("error", err).Error("Failed to close chain")
	}
}

// sendInventory sends the chain tip to p, if there is one.
func (n *Node) sendInventory(p peer.ID) {
	tip, ok := n.chain.Tip()
	if !ok {
		return
	}

	n.SendToPeer(p, messages.NewInventory(tip))
	n.metrics.InventorySent.Inc()
}
