package broker

import "errors"

var (
	// ErrStopped - returns in case if Broker is under stop condition
	// and will not accept any new clients, so you should close such connection by your own.
	ErrStopped = errors.New("broker.Broker: under stop condition")

	// ErrIDTaken - returns in case if client id is registered already.
	ErrIDTaken = errors.New("broker.Broker: client id is registered already")

	// ErrUsernameTaken - returns in case if a live client uses the same username.
	ErrUsernameTaken = errors.New("broker.Broker: username is in use")

	// ErrSlowClient - eviction cause for Member.Evict implementations.
	ErrSlowClient = errors.New("broker.Broker: client outbox is full")
)
