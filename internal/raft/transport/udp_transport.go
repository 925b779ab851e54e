package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"raftkv/internal/raft/message"
)

const maxDatagramSize = 64 * 1024

// UDPTransport is the production Transport: every Send marshals env as one
// JSON document and writes it as a single UDP datagram (the datagram
// boundary is the message delimiter — no separate length prefix is needed
// on top of it); every Recv reads one datagram and unmarshals it. The
// specific scheme used to resolve a ReplicaID to a network address is not
// part of the wire protocol — it is supplied by the caller as a static
// book, since there is no discovery or membership-change mechanism.
//
// Clients have no entry in that static book — they are anonymous senders
// identified only by the Src of whatever they send. learnedAddrs caches the
// remote address Recv last saw for a given id, so a reply to a client (or
// to any other sender outside peerAddrs) can still go out. Both maps are
// only ever touched from the single goroutine that owns this Replica, per
// this system's lock-free event-loop design, so no mutex guards them.
type UDPTransport struct {
	conn         *net.UDPConn
	peerAddrs    map[message.ReplicaID]*net.UDPAddr
	learnedAddrs map[message.ReplicaID]*net.UDPAddr
	log          *logrus.Entry
}

// NewUDPTransport binds a UDP socket on port and resolves peerAddrs (id ->
// "host:port") into a static address book.
func NewUDPTransport(port int, peerAddrs map[message.ReplicaID]string, log *logrus.Entry) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen on port %d: %w", port, err)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	resolved := make(map[message.ReplicaID]*net.UDPAddr, len(peerAddrs))
	for id, addr := range peerAddrs {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve address %q for peer %s: %w", addr, id, err)
		}
		resolved[id] = udpAddr
	}

	return &UDPTransport{conn: conn, peerAddrs: resolved, learnedAddrs: map[message.ReplicaID]*net.UDPAddr{}, log: log}, nil
}

// Send is fire-and-forget: an unknown destination or a write error is
// logged and swallowed, never returned to the caller, because the event
// loop must never treat the transport as blocking or reliable. dst is
// resolved against the static peer book first, falling back to whatever
// address Recv last learned for that id — the only way a client, which has
// no entry in the peer book, can ever be replied to.
func (t *UDPTransport) Send(dst message.ReplicaID, env message.Envelope) error {
	addr, ok := t.peerAddrs[dst]
	if !ok {
		addr, ok = t.learnedAddrs[dst]
	}
	if !ok {
		t.log.WithField("dst", dst).Debug("transport: send to unknown peer dropped")
		return nil
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}

	if _, err := t.conn.WriteToUDP(payload, addr); err != nil {
		t.log.WithError(err).WithField("dst", dst).Debug("transport: send failed, dropping")
	}
	return nil
}

// Recv blocks until one datagram arrives or deadline passes. A malformed
// datagram is logged and discarded with no reply — it is not surfaced as
// an error, since a single bad peer must never stall the loop. The sender's
// address is cached by Src so a later Send back to it (an anonymous client
// has no entry in the static peer book) has somewhere to go.
func (t *UDPTransport) Recv(deadline time.Time) (message.Envelope, bool, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return message.Envelope{}, false, fmt.Errorf("transport: set read deadline: %w", err)
	}

	buf := make([]byte, maxDatagramSize)
	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return message.Envelope{}, false, nil
		}
		return message.Envelope{}, false, fmt.Errorf("transport: read: %w", err)
	}

	var env message.Envelope
	if err := json.Unmarshal(buf[:n], &env); err != nil {
		t.log.WithError(err).Debug("transport: malformed datagram discarded")
		return message.Envelope{}, false, nil
	}
	if env.Src != "" {
		t.learnedAddrs[env.Src] = from
	}
	return env, true, nil
}

// Close releases the UDP socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
