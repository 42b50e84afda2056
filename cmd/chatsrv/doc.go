// Package `chatsrv` implements server application for chat relay over TCP.
//
// To compile chat server locally, run from package directory:
//
//	go install .
//
// Start the server with configuration file, it is created with defaults if missing:
//
//	chatsrv serve --config ./chatsrv-config/server-config.toml
//
// Check that a server is reachable and speaks the same protocol version:
//
//	chatsrv ping 127.0.0.1:2277
package main
