// Package messages defines the application messages exchanged between p2pool
// nodes, over the gossip topic or direct requests, and their wire encoding.
//
// Every message travels in a CBOR envelope {type, payload}. The type tag
// selects the variant; an unrecognized tag yields ErrUnknownMessage so that
// the transport can drop the message without tearing down the connection.
package messages
