package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/p2poolv2/p2pool/src/config"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/p2poolv2/p2pool/src/net"
	"github.com/p2poolv2/p2pool/src/shares"
)

var (
	// ErrActorStopped is returned when a command is sent to, or awaited
	// from, an actor that has stopped.
	ErrActorStopped = errors.New("node actor stopped")

	// ErrHandleClosed is returned by the methods of a closed Handle.
	ErrHandleClosed = errors.New("node handle closed")
)

// sender is the sending end of the command channel, shared by every clone of
// a Handle. The channel is closed when the last clone is closed.
type sender struct {
	mu     sync.RWMutex
	ch     chan Command
	refs   int
	closed bool
}

// Handle is the way for the rest of the process to talk to a node. It is
// safe for concurrent use, and Clone returns independent copies sharing the
// same actor. Each clone must be closed; once all of them are, the actor
// stops without disconnecting from its peers.
type Handle struct {
	s       *sender
	doneCh  <-chan struct{}
	metrics *Metrics

	closed    int32
	closeOnce sync.Once
}

// NewHandle creates the store, chain and libp2p transport described by conf,
// starts a node actor on top of them and returns a handle to it, along with
// a channel closed once the actor stops.
func NewHandle(conf *config.Config) (*Handle, <-chan struct{}, error) {
	logger := conf.Logger()

	store, err := shares.NewStore(conf.Store.Path, logger.WithField("prefix", "store"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %v", err)
	}

	chain, err := shares.NewChain(store, logger.WithField("prefix", "chain"))
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("loading chain: %v", err)
	}

	trans, err := net.NewLibP2PTransport(
		conf.Network.EnableMdns,
		conf.Network.DialTimeout,
		logger.WithField("prefix", "net"),
	)
	if err != nil {
		chain.Close()
		return nil, nil, err
	}

	return NewHandleWithTransport(conf, trans, chain)
}

// NewHandleWithTransport starts a node actor over the given transport and
// chain, which it takes ownership of: both are closed when the actor stops,
// or right away if the node cannot be created.
func NewHandleWithTransport(conf *config.Config, trans net.Transport, chain *shares.Chain) (*Handle, <-chan struct{}, error) {
	metrics := NewMetrics()

	node, err := NewNode(conf, trans, chain, metrics)
	if err != nil {
		trans.Close()
		chain.Close()
		return nil, nil, err
	}

	commandCh := make(chan Command, config.CommandQueueSize)

	actor := NewActor(node, commandCh)
	actor.RunAsync()

	handle := &Handle{
		s: &sender{
			ch:   commandCh,
			refs: 1,
		},
		doneCh:  actor.Done(),
		metrics: metrics,
	}

	return handle, actor.Done(), nil
}

// Clone returns a new handle to the same actor. Cloning a closed handle
// returns a closed handle.
func (h *Handle) Clone() *Handle {
	clone := &Handle{
		s:       h.s,
		doneCh:  h.doneCh,
		metrics: h.metrics,
	}

	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if h.isClosed() || h.s.closed {
		clone.closed = 1
		clone.closeOnce.Do(func() {})
		return clone
	}

	h.s.refs++
	return clone
}

// Close releases the handle. Closing the last open clone stops the actor.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		atomic.StoreInt32(&h.closed, 1)

		h.s.mu.Lock()
		defer h.s.mu.Unlock()

		h.s.refs--
		if h.s.refs == 0 && !h.s.closed {
			h.s.closed = true
			close(h.s.ch)
		}
	})
}

// Done returns a channel that is closed once the actor has stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.doneCh
}

// Metrics returns the metrics of the actor.
func (h *Handle) Metrics() *Metrics {
	return h.metrics
}

// GetPeers returns the peers the node is currently connected to.
func (h *Handle) GetPeers(ctx context.Context) ([]peer.ID, error) {
	resp, err := h.send(ctx, &GetPeersRequest{})
	if err != nil {
		return nil, err
	}
	peers, _ := resp.([]peer.ID)
	return peers, nil
}

// Shutdown disconnects the node from every peer and stops the actor. It
// returns once the actor has acknowledged the request.
func (h *Handle) Shutdown(ctx context.Context) error {
	_, err := h.send(ctx, &ShutdownRequest{})
	return err
}

// SendGossip encodes msg and publishes it on the share topic. It succeeds
// whether or not anyone receives the message.
func (h *Handle) SendGossip(ctx context.Context, msg messages.Message) error {
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}
	_, err = h.send(ctx, &SendGossipRequest{Data: data})
	return err
}

// SendToPeer sends msg directly to p. It succeeds whether or not the message
// is delivered.
func (h *Handle) SendToPeer(ctx context.Context, p peer.ID, msg messages.Message) error {
	if msg == nil {
		return messages.ErrNilMessage
	}
	_, err := h.send(ctx, &SendToPeerRequest{Peer: p, Message: msg})
	return err
}

// AddShare adds share to the chain. It returns ErrAddShare if the chain
// rejects it.
func (h *Handle) AddShare(ctx context.Context, share *shares.ShareBlock) error {
	_, err := h.send(ctx, &AddShareRequest{Share: share})
	return err
}

// StoreWorkbase persists workbase. It returns ErrStoreWorkbase if the store
// rejects it.
func (h *Handle) StoreWorkbase(ctx context.Context, workbase *shares.MinerWorkbase) error {
	_, err := h.send(ctx, &StoreWorkbaseRequest{Workbase: workbase})
	return err
}

func (h *Handle) isClosed() bool {
	return atomic.LoadInt32(&h.closed) == 1
}

// send enqueues a command and waits for its reply. Enqueueing blocks while
// the command queue is full.
func (h *Handle) send(ctx context.Context, args interface{}) (interface{}, error) {
	cmd := NewCommand(args)

	if err := h.enqueue(ctx, cmd); err != nil {
		return nil, err
	}

	select {
	case resp := <-cmd.RespChan:
		return resp.Response, resp.Error
	case <-h.doneCh:
		// the actor may have replied right before stopping
		select {
		case resp := <-cmd.RespChan:
			return resp.Response, resp.Error
		default:
			return nil, ErrActorStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) enqueue(ctx context.Context, cmd Command) error {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()

	if h.isClosed() || h.s.closed {
		return ErrHandleClosed
	}

	select {
	case h.s.ch <- cmd:
		return nil
	case <-h.doneCh:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
