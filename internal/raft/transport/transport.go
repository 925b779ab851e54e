// Package transport abstracts the datagram channel the event loop reads
// from and writes to. The only production implementation is UDPTransport;
// tests use MemoryTransport to drive several replicas in-process without
// touching a real socket.
package transport

import (
	"time"

	"raftkv/internal/raft/message"
)

// Transport is the one thing a replica's event loop depends on for network
// I/O. Sends are fire-and-forget — a replica must never block waiting for
// a single peer — and Recv never blocks past deadline.
type Transport interface {
	// Send encodes and sends env to dst. It never blocks on the peer being
	// reachable; delivery is not guaranteed (the channel is unreliable,
	// unordered, and possibly duplicating).
	Send(dst message.ReplicaID, env message.Envelope) error

	// Recv blocks until a datagram arrives or deadline passes, whichever is
	// first. It returns (env, true, nil) on a decoded message, (zero,
	// false, nil) on a timeout, and a non-nil error only for a fatal
	// transport failure (e.g. the socket was closed).
	Recv(deadline time.Time) (message.Envelope, bool, error)

	// Close releases the underlying channel.
	Close() error
}
