// Package service implements an HTTP API to observe a p2pool node.
//
// The service is not meant to be exposed publicly; it binds to a loopback
// address by default.
//
// Endpoints
//
// - /peers: JSON list of the IDs of the connected peers
//
// - /metrics: Prometheus metrics of the node actor
package service
