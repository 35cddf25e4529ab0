// Package config defines the configuration for a p2pool node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On the command
// line, values are merged in this order: defaults, then a p2pool.toml (or
// .yaml, .json) file found in Config.DataDir, then flags.
//
// A configuration file looks like:
//
//  log = "info"
//
//  [network]
//  listen_address = "/ip4/0.0.0.0/tcp/6884"
//  dial_peers = ["/ip4/10.0.0.2/tcp/6884/p2p/12D3KooW..."]
//  mdns = true
//
//  [store]
//  path = "/home/user/.p2pool/store"
package config
