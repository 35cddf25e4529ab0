package node

import (
	"context"
	"io/ioutil"
	"os"
	"reflect"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/p2poolv2/p2pool/src/common"
	"github.com/p2poolv2/p2pool/src/config"
	"github.com/p2poolv2/p2pool/src/messages"
	"github.com/p2poolv2/p2pool/src/net"
	"github.com/p2poolv2/p2pool/src/shares"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testNode struct {
	handle *Handle
	done   <-chan struct{}
	trans  *net.InmemTransport
	dir    string
}

func newTestShare(t *testing.T, prev shares.ShareID, nonce uint32) *shares.ShareBlock {
	share, err := shares.NewShareBlock(shares.ShareHeader{
		MinerPubKey:   "02ac493f2130ca56cb5c3a559860cef9a84f90b5a85dfe4ec6e6067eeee17f4d2d",
		PrevShareHash: prev,
		WorkInfoID:    7,
		Nonce:         nonce,
		NTime:         1700000000,
		Timestamp:     1700000000,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return share
}

func newTestTransport(t *testing.T) *net.InmemTransport {
	trans, err := net.NewInmemTransport(common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return trans
}

// newListeningPeer returns a bare transport that can be connected to.
func newListeningPeer(t *testing.T) *net.InmemTransport {
	trans := newTestTransport(t)
	if err := trans.Listen("/ip4/127.0.0.1/tcp/0"); err != nil {
		t.Fatal(err)
	}
	return trans
}

// initNode starts a node over an in-memory transport. If tip is not nil, it
// is added to the chain before the node starts.
func initNode(t *testing.T, tip *shares.ShareBlock) *testNode {
	return initNodeWithTransport(t, tip, newTestTransport(t))
}

// gatedTransport holds ConnectedPeers until the gate is opened, which keeps
// the actor busy inside a GetPeers command.
type gatedTransport struct {
	*net.InmemTransport
	armed   int32
	entered chan struct{}
	gate    chan struct{}
}

func newGatedTransport(t *testing.T) *gatedTransport {
	return &gatedTransport{
		InmemTransport: newTestTransport(t),
		entered:        make(chan struct{}, 1),
		gate:           make(chan struct{}),
	}
}

func (g *gatedTransport) ConnectedPeers() []peer.ID {
	if atomic.CompareAndSwapInt32(&g.armed, 1, 0) {
		g.entered <- struct{}{}
		<-g.gate
	}
	return g.InmemTransport.ConnectedPeers()
}

func initNodeWithTransport(t *testing.T, tip *shares.ShareBlock, trans net.Transport) *testNode {
	os.Mkdir("test_data", os.ModeDir|0777)
	dir, err := ioutil.TempDir("test_data", "node")
	if err != nil {
		t.Fatal(err)
	}

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)

	store, err := shares.NewStore(conf.Store.Path, conf.Logger())
	if err != nil {
		t.Fatal(err)
	}

	chain, err := shares.NewChain(store, conf.Logger())
	if err != nil {
		t.Fatal(err)
	}

	if tip != nil {
		if err := chain.AddShare(tip); err != nil {
			t.Fatal(err)
		}
	}

	handle, done, err := NewHandleWithTransport(conf, trans, chain)
	if err != nil {
		t.Fatal(err)
	}

	inmemTrans, ok := trans.(*net.InmemTransport)
	if !ok {
		inmemTrans = trans.(*gatedTransport).InmemTransport
	}

	return &testNode{
		handle: handle,
		done:   done,
		trans:  inmemTrans,
		dir:    dir,
	}
}

func (n *testNode) stop(t *testing.T) {
	n.handle.Shutdown(context.Background())
	n.handle.Close()
	waitDone(t, n.done)
	os.RemoveAll(n.dir)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for actor to stop")
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-timeout:
			t.Fatalf("timeout waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func eventCount(n *testNode, kind string) float64 {
	return testutil.ToFloat64(n.handle.Metrics().Events.WithLabelValues(kind))
}

func sortPeers(peers []peer.ID) []peer.ID {
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

func TestRepliesInSubmissionOrder(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	// twice the queue capacity, so the producer blocks on a full queue
	const count = 2 * config.CommandQueueSize

	// each share needs the previous one to be in the chain already, so any
	// reordering makes AddShare fail
	chain := make([]*shares.ShareBlock, count)
	var prev shares.ShareID
	for i := range chain {
		chain[i] = newTestShare(t, prev, uint32(i+1))
		prev = chain[i].Hash
	}

	cmds := make(chan Command, count)
	go func() {
		defer close(cmds)
		for _, s := range chain {
			cmd := NewCommand(&AddShareRequest{Share: s})
			node.handle.s.ch <- cmd
			cmds <- cmd
		}
	}()

	i := 0
	for cmd := range cmds {
		select {
		case resp := <-cmd.RespChan:
			if resp.Error != nil {
				t.Fatalf("AddShare %d should succeed, got %v", i, resp.Error)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for reply %d", i)
		}
		i++
	}

	if i != count {
		t.Fatalf("replies should be %d, not %d", count, i)
	}

	ok := testutil.ToFloat64(node.handle.Metrics().Commands.WithLabelValues("add_share", "ok"))
	if ok != count {
		t.Fatalf("successful add_share commands should be %d, not %v", count, ok)
	}

	peers, err := node.handle.GetPeers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Fatalf("peers should be empty, not %v", peers)
	}
}

func TestAddShare(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	ctx := context.Background()

	if err := node.handle.AddShare(ctx, nil); err != ErrAddShare {
		t.Fatalf("AddShare(nil) should return ErrAddShare, not %v", err)
	}

	orphan := newTestShare(t, newTestShare(t, "", 99).Hash, 1)
	if err := node.handle.AddShare(ctx, orphan); err != ErrAddShare {
		t.Fatalf("AddShare(orphan) should return ErrAddShare, not %v", err)
	}

	tampered := newTestShare(t, "", 2)
	tampered.Header.Nonce = 3
	if err := node.handle.AddShare(ctx, tampered); err != ErrAddShare {
		t.Fatalf("AddShare(tampered) should return ErrAddShare, not %v", err)
	}

	if err := node.handle.AddShare(ctx, newTestShare(t, "", 1)); err != nil {
		t.Fatalf("AddShare should succeed, got %v", err)
	}

	failures := testutil.ToFloat64(node.handle.Metrics().Commands.WithLabelValues("add_share", "error"))
	if failures != 3 {
		t.Fatalf("add_share errors should be 3, not %v", failures)
	}
}

func TestStoreWorkbase(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	ctx := context.Background()

	workbase := &shares.MinerWorkbase{
		WorkInfoID: 7,
		Height:     100,
		PrevHash:   "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054",
		Coinb1:     "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff",
		Coinb2:     "ffffffff0100f2052a010000001976a914",
		Merkles:    []string{},
		Version:    "20000000",
		NBits:      "1d00ffff",
		NTime:      "6553f100",
		CreatedAt:  1700000000,
	}

	if err := node.handle.StoreWorkbase(ctx, workbase); err != nil {
		t.Fatalf("StoreWorkbase should succeed, got %v", err)
	}

	if err := node.handle.StoreWorkbase(ctx, workbase); err != ErrStoreWorkbase {
		t.Fatalf("storing a workbase twice should return ErrStoreWorkbase, not %v", err)
	}

	if err := node.handle.StoreWorkbase(ctx, nil); err != ErrStoreWorkbase {
		t.Fatalf("StoreWorkbase(nil) should return ErrStoreWorkbase, not %v", err)
	}
}

func TestShutdownDisconnectsPeers(t *testing.T) {
	node := initNode(t, nil)
	defer os.RemoveAll(node.dir)

	p1 := newListeningPeer(t)
	defer p1.Close()
	p2 := newListeningPeer(t)
	defer p2.Close()

	node.trans.Connect(p1)
	node.trans.Connect(p2)

	if err := node.handle.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitDone(t, node.done)

	disconnects := sortPeers(node.trans.Disconnects())
	expected := sortPeers([]peer.ID{p1.LocalPeer(), p2.LocalPeer()})
	if !reflect.DeepEqual(disconnects, expected) {
		t.Fatalf("disconnects should be %v, not %v", expected, disconnects)
	}

	if !node.trans.Closed() {
		t.Fatalf("transport should be closed")
	}

	if _, err := node.handle.GetPeers(context.Background()); err != ErrActorStopped {
		t.Fatalf("GetPeers after shutdown should return ErrActorStopped, not %v", err)
	}

	if err := node.handle.Shutdown(context.Background()); err != ErrActorStopped {
		t.Fatalf("second Shutdown should return ErrActorStopped, not %v", err)
	}

	node.handle.Close()
}

func TestClosingAllHandlesStopsActor(t *testing.T) {
	node := initNode(t, nil)
	defer os.RemoveAll(node.dir)

	p1 := newListeningPeer(t)
	defer p1.Close()

	node.trans.Connect(p1)

	clone := node.handle.Clone()

	node.handle.Close()

	if _, err := node.handle.GetPeers(context.Background()); err != ErrHandleClosed {
		t.Fatalf("GetPeers on a closed handle should return ErrHandleClosed, not %v", err)
	}

	// the clone keeps the actor alive
	if _, err := clone.GetPeers(context.Background()); err != nil {
		t.Fatalf("GetPeers on the clone should succeed, got %v", err)
	}

	clone.Close()
	waitDone(t, node.done)

	if l := len(node.trans.Disconnects()); l != 0 {
		t.Fatalf("no peer should be disconnected, got %d", l)
	}

	if !node.trans.Closed() {
		t.Fatalf("transport should be closed")
	}

	if closed := node.handle.Clone(); !closed.isClosed() {
		t.Fatalf("cloning a closed handle should return a closed handle")
	}
}

func TestInventoryOnConnection(t *testing.T) {
	s1 := newTestShare(t, "", 1)

	a := initNode(t, nil)
	defer a.stop(t)
	b := initNode(t, s1)
	defer b.stop(t)

	a.trans.Connect(b.trans)

	waitUntil(t, "a to handle the connection", func() bool {
		return eventCount(a, "connection_established") == 1
	})
	waitUntil(t, "b to handle the connection", func() bool {
		return eventCount(b, "connection_established") == 1
	})

	if l := len(a.trans.SentRequests()); l != 0 {
		t.Fatalf("a should not send anything, sent %d messages", l)
	}

	sent := b.trans.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("b should send 1 message, not %d", len(sent))
	}
	if sent[0].Peer != a.trans.LocalPeer() {
		t.Fatalf("b should send to a, not %s", sent[0].Peer)
	}

	expected := messages.NewInventory(s1.Hash)
	if !reflect.DeepEqual(sent[0].Message, expected) {
		t.Fatalf("b should send %#v, not %#v", expected, sent[0].Message)
	}

	waitUntil(t, "a to receive the inventory", func() bool {
		return eventCount(a, "request") == 1
	})

	inv := testutil.ToFloat64(b.handle.Metrics().InventorySent)
	if inv != 1 {
		t.Fatalf("b inventory count should be 1, not %v", inv)
	}
}

func TestSendGossipWithoutPeers(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	msg := messages.NewInventory(newTestShare(t, "", 1).Hash)

	if err := node.handle.SendGossip(context.Background(), msg); err != nil {
		t.Fatalf("SendGossip should succeed, got %v", err)
	}

	published := node.trans.Published()
	if len(published) != 1 {
		t.Fatalf("1 message should be published, not %d", len(published))
	}
	if published[0].Topic != config.DefaultShareTopic {
		t.Fatalf("topic should be %s, not %s", config.DefaultShareTopic, published[0].Topic)
	}

	decoded, err := messages.Decode(published[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(decoded, msg) {
		t.Fatalf("published message should be %#v, not %#v", msg, decoded)
	}
}

func TestSendGossipToSubscriber(t *testing.T) {
	a := initNode(t, nil)
	defer a.stop(t)
	b := initNode(t, nil)
	defer b.stop(t)

	a.trans.Connect(b.trans)

	msg := messages.NewInventory(newTestShare(t, "", 1).Hash)
	if err := a.handle.SendGossip(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, "b to receive the gossip", func() bool {
		return eventCount(b, "gossip_message") == 1
	})
}

func TestGetPeers(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	p1 := newListeningPeer(t)
	defer p1.Close()
	p2 := newListeningPeer(t)
	defer p2.Close()

	node.trans.Connect(p1)
	node.trans.Connect(p2)

	peers, err := node.handle.GetPeers(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	expected := sortPeers([]peer.ID{p1.LocalPeer(), p2.LocalPeer()})
	if !reflect.DeepEqual(sortPeers(peers), expected) {
		t.Fatalf("peers should be %v, not %v", expected, peers)
	}
}

func TestSendToPeer(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	p1 := newListeningPeer(t)
	defer p1.Close()

	node.trans.Connect(p1)

	msg := &messages.GetDataMessage{Kind: messages.ShareData, ID: "abc"}
	if err := node.handle.SendToPeer(context.Background(), p1.LocalPeer(), msg); err != nil {
		t.Fatal(err)
	}

	// delivery failures are not reported to the caller
	stranger := newTestTransport(t)
	stranger.Close()
	if err := node.handle.SendToPeer(context.Background(), stranger.LocalPeer(), msg); err != nil {
		t.Fatalf("SendToPeer to an unknown peer should succeed, got %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-p1.Events():
			req, ok := ev.(*net.RequestEvent)
			if !ok {
				continue
			}
			if !reflect.DeepEqual(req.Message, msg) {
				t.Fatalf("p1 should receive %#v, not %#v", msg, req.Message)
			}
			return
		case <-timeout:
			t.Fatalf("timeout waiting for request")
		}
	}
}

func TestCancelledContext(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the command may or may not be enqueued; either way the actor survives
	_, err := node.handle.GetPeers(ctx)
	if err != nil && err != context.Canceled {
		t.Fatalf("GetPeers should return nil or context.Canceled, not %v", err)
	}

	if _, err := node.handle.GetPeers(context.Background()); err != nil {
		t.Fatalf("actor should still be running, got %v", err)
	}
}

func TestContextCancelledWhileQueued(t *testing.T) {
	trans := newGatedTransport(t)
	node := initNodeWithTransport(t, nil, trans)
	defer node.stop(t)

	atomic.StoreInt32(&trans.armed, 1)

	blocked := make(chan error, 1)
	go func() {
		_, err := node.handle.GetPeers(context.Background())
		blocked <- err
	}()

	select {
	case <-trans.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for the actor to block")
	}

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := node.handle.GetPeers(ctx)
		abandoned <- err
	}()

	waitUntil(t, "command to be queued", func() bool {
		return len(node.handle.s.ch) == 1
	})

	cancel()
	select {
	case err := <-abandoned:
		if err != context.Canceled {
			t.Fatalf("abandoned GetPeers should return context.Canceled, not %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for abandoned GetPeers")
	}

	close(trans.gate)

	if err := <-blocked; err != nil {
		t.Fatalf("blocked GetPeers should succeed, got %v", err)
	}

	if _, err := node.handle.GetPeers(context.Background()); err != nil {
		t.Fatalf("actor should still be running, got %v", err)
	}

	served := testutil.ToFloat64(node.handle.Metrics().Commands.WithLabelValues("get_peers", "ok"))
	if served != 3 {
		t.Fatalf("get_peers commands should be 3, not %v", served)
	}
}

func TestRespondNeverBlocks(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	cmd := NewCommand(&GetPeersRequest{})
	cmd.Respond(1, nil, logger)
	// the slot is used, the second reply is dropped
	cmd.Respond(2, nil, logger)

	resp := <-cmd.RespChan
	if resp.Response != 1 {
		t.Fatalf("reply should be 1, not %v", resp.Response)
	}

	node := initNode(t, nil)
	defer node.stop(t)

	// a reply slot without room is dropped by the actor
	unbuffered := Command{
		Args:     &GetPeersRequest{},
		RespChan: make(chan CommandResponse),
	}
	node.handle.s.ch <- unbuffered

	if _, err := node.handle.GetPeers(context.Background()); err != nil {
		t.Fatalf("actor should still be running, got %v", err)
	}
}

func TestSendToPeerNilMessage(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	p1 := newListeningPeer(t)
	defer p1.Close()

	node.trans.Connect(p1)

	err := node.handle.SendToPeer(context.Background(), p1.LocalPeer(), nil)
	if err != messages.ErrNilMessage {
		t.Fatalf("SendToPeer(nil) should return ErrNilMessage, not %v", err)
	}

	// a nil message reaching the actor directly is logged, not fatal
	cmd := NewCommand(&SendToPeerRequest{Peer: p1.LocalPeer()})
	node.handle.s.ch <- cmd
	select {
	case resp := <-cmd.RespChan:
		if resp.Error != nil {
			t.Fatalf("SendToPeer reply should have no error, not %v", resp.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for reply")
	}

	if _, err := node.handle.GetPeers(context.Background()); err != nil {
		t.Fatalf("actor should still be running, got %v", err)
	}

	if sent := node.trans.SentRequests(); len(sent) != 0 {
		t.Fatalf("no request should be sent, not %v", sent)
	}
}

func TestMdnsDiscoveryDials(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	p1 := newListeningPeer(t)
	defer p1.Close()

	addr := p1.ListenAddrs()[0]

	node.trans.Inject(&net.MdnsDiscoveredEvent{
		Peers: []net.DiscoveredPeer{{Peer: p1.LocalPeer(), Address: addr}},
	})

	waitUntil(t, "connection to discovered peer", func() bool {
		return node.trans.IsConnected(p1.LocalPeer())
	})

	book := node.trans.AddressBook(p1.LocalPeer())
	if len(book) != 1 || !book[0].Equal(addr) {
		t.Fatalf("address book should be [%s], not %v", addr, book)
	}

	// already connected peers are not dialed again
	node.trans.Inject(&net.MdnsDiscoveredEvent{
		Peers: []net.DiscoveredPeer{{Peer: p1.LocalPeer(), Address: addr}},
	})

	waitUntil(t, "second discovery", func() bool {
		return eventCount(node, "mdns_discovered") == 2
	})

	if l := len(node.trans.Dials()); l != 1 {
		t.Fatalf("discovered peer should be dialed once, not %d times", l)
	}
}

func TestIdentifyRegistersAddresses(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	remote := newTestTransport(t)
	defer remote.Close()

	a1, _ := ma.NewMultiaddr("/ip4/10.0.0.1/tcp/6884")
	a2, _ := ma.NewMultiaddr("/ip4/10.0.0.2/tcp/6884")

	node.trans.Inject(&net.IdentifyReceivedEvent{
		Peer:            remote.LocalPeer(),
		ProtocolVersion: net.ProtocolVersion,
		ListenAddrs:     []ma.Multiaddr{a1, a2},
	})

	waitUntil(t, "identify to be handled", func() bool {
		return eventCount(node, "identify_received") == 1
	})

	book := node.trans.AddressBook(remote.LocalPeer())
	if len(book) != 2 || !book[0].Equal(a1) || !book[1].Equal(a2) {
		t.Fatalf("address book should be [%s %s], not %v", a1, a2, book)
	}
}

func TestConnectionClosedRemovesPeer(t *testing.T) {
	node := initNode(t, nil)
	defer node.stop(t)

	p1 := newListeningPeer(t)
	defer p1.Close()

	node.trans.Connect(p1)
	p1.Disconnect(node.trans.LocalPeer())

	waitUntil(t, "connection closed", func() bool {
		return eventCount(node, "connection_closed") == 1
	})

	removed := node.trans.RemovedPeers()
	if !reflect.DeepEqual(removed, []peer.ID{p1.LocalPeer()}) {
		t.Fatalf("removed peers should be [%s], not %v", p1.LocalPeer(), removed)
	}
}

func TestBindFailure(t *testing.T) {
	os.Mkdir("test_data", os.ModeDir|0777)
	dir, err := ioutil.TempDir("test_data", "node")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.Network.ListenAddress = "not a multiaddr"

	store, err := shares.NewStore(conf.Store.Path, conf.Logger())
	if err != nil {
		t.Fatal(err)
	}
	chain, err := shares.NewChain(store, conf.Logger())
	if err != nil {
		t.Fatal(err)
	}

	trans := newTestTransport(t)

	if _, _, err := NewHandleWithTransport(conf, trans, chain); err == nil {
		t.Fatalf("NewHandleWithTransport should fail on a bad listen address")
	}

	if !trans.Closed() {
		t.Fatalf("transport should be closed after a failed start")
	}
}

func TestBadDialPeersAreSkipped(t *testing.T) {
	os.Mkdir("test_data", os.ModeDir|0777)
	dir, err := ioutil.TempDir("test_data", "node")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	p1 := newListeningPeer(t)
	defer p1.Close()

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.Network.DialPeers = []string{
		"garbage",
		p1.ListenAddrs()[0].String() + "/p2p/" + p1.LocalPeer().String(),
	}

	store, err := shares.NewStore(conf.Store.Path, conf.Logger())
	if err != nil {
		t.Fatal(err)
	}
	chain, err := shares.NewChain(store, conf.Logger())
	if err != nil {
		t.Fatal(err)
	}

	trans := newTestTransport(t)

	handle, done, err := NewHandleWithTransport(conf, trans, chain)
	if err != nil {
		t.Fatal(err)
	}

	peers, err := handle.GetPeers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(peers, []peer.ID{p1.LocalPeer()}) {
		t.Fatalf("peers should be [%s], not %v", p1.LocalPeer(), peers)
	}

	handle.Close()
	waitDone(t, done)
}

func TestKindOf(t *testing.T) {
	cases := map[string]interface{}{
		"connection_established": &net.ConnectionEstablishedEvent{},
		"mdns_discovered":        &net.MdnsDiscoveredEvent{},
		"get_peers":              &GetPeersRequest{},
		"store_workbase":         &StoreWorkbaseRequest{},
		"request":                &net.RequestEvent{},
	}
	for expected, v := range cases {
		if k := kindOf(v); k != expected {
			t.Fatalf("kindOf(%T) should be %s, not %s", v, expected, k)
		}
	}
}
