// Package node implements the reactive component of a p2pool node.
//
// A Node owns the network transport, the share gossip topic and the share
// chain. An Actor owns the Node and is the only goroutine that ever touches
// it. Everything else in the process talks to the node through a Handle.
//
// Actor
//
// The actor runs a single loop that waits on two sources at once: the
// transport's event channel and a bounded command queue (32 entries). Each
// iteration handles exactly one ready item. Network events are dispatched by
// the Node:
//
// - a new connection triggers an Inventory message carrying the chain tip, if
// there is one
//
// - a closed connection purges the peer from the routing table
//
// - discovered peers are dialed and their address recorded
//
// - addresses received through identify are recorded
//
// - routing updates, gossip and direct requests are logged
//
// The actor stops after a ShutdownRequest, which first disconnects every peer,
// or when the command queue is closed, in which case peers are left alone.
// Either way the transport and the chain are closed and the Done channel is
// closed exactly once.
//
// Handle
//
// A Handle wraps each call in a Command carrying a reply slot with room for
// exactly one response, enqueues it and waits for the reply. Replies to one
// handle arrive in submission order. If the caller gives up (cancelled
// context), the actor's reply lands in the slot and is discarded; it never
// blocks the actor.
//
// Handles are cloned with Clone and released with Close. Closing the last
// clone closes the command queue.
//
// AddShare and StoreWorkbase return ErrAddShare and ErrStoreWorkbase when the
// chain or store rejects the input; the underlying error is logged. Every
// method returns ErrActorStopped once the actor is gone.
package node
