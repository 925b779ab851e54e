// Command raftkv runs one replica of the key-value store.
//
// Usage:
//
//	raftkv [-config path] <udp-port> <own-id> <peer-id>...
//
// A peer id is resolved to a network address by treating it directly as a
// hostname (operators running across real hosts should pick ids that are
// also resolvable hostnames, e.g. "node1", and run every replica on the
// same udp-port). This keeps the required CLI surface to exactly the
// positional args above, with no separate address book file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"raftkv/internal/config"
	"raftkv/internal/raft/message"
	"raftkv/internal/raft/metrics"
	"raftkv/internal/raft/server"
	"raftkv/internal/raft/statemachine"
	"raftkv/internal/raft/transport"
)

func main() {
	configPath := flag.String("config", "", "optional YAML file overriding timer defaults")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-config path] <udp-port> <own-id> <peer-id>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftkv: invalid udp-port %q: %v\n", args[0], err)
		os.Exit(2)
	}
	ownID := message.ReplicaID(args[1])
	var peers []message.ReplicaID
	for _, p := range args[2:] {
		peers = append(peers, message.ReplicaID(p))
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "raftkv: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "raftkv: %v\n", err)
		os.Exit(1)
	}

	log := logrus.NewEntry(logrus.StandardLogger()).WithField("replica", string(ownID))

	peerAddrs := peerAddressBook(peers, port)
	tr, err := transport.NewUDPTransport(port, peerAddrs, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start transport")
	}
	defer tr.Close()

	sm := statemachine.New(string(ownID), log)
	mc := metrics.New()
	replica := server.New(ownID, peers, sm, tr, mc, cfg, log)

	announceHello(tr, ownID, peers, log)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		defer recoverToExitCode(log)
		done <- replica.Run()
	}()

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received, stopping")
		replica.Stop()
		<-done
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("event loop exited with error")
			os.Exit(1)
		}
	}
}

// peerAddressBook derives each peer's UDP address from its replica id
// under the hostname convention documented above, assuming every replica
// listens on the same port.
func peerAddressBook(peers []message.ReplicaID, port int) map[message.ReplicaID]string {
	addrs := make(map[message.ReplicaID]string, len(peers))
	for _, p := range peers {
		addrs[p] = fmt.Sprintf("%s:%d", p, port)
	}
	return addrs
}

// announceHello sends the one-shot startup announcement this replica's
// peers can use to learn it is alive and reachable at its advertised
// address; it carries no protocol meaning beyond that. It is broadcast
// shaped ({dst: "FFFF", leader: "FFFF"}) rather than addressed to one peer,
// since at startup no leader is known and the announcement is not part of
// the core replication/election protocol.
func announceHello(tr transport.Transport, self message.ReplicaID, peers []message.ReplicaID, log *logrus.Entry) {
	for _, p := range peers {
		env := message.Envelope{Type: message.TypeHello, Src: self, Dst: message.Broadcast, Leader: message.Broadcast}
		if err := tr.Send(p, env); err != nil {
			log.WithError(err).WithField("peer", p).Debug("hello announcement failed")
		}
	}
}

// recoverToExitCode turns a panic raised by a detected invariant breach
// (Replica.fatalf) into a logged error and a non-zero process exit rather
// than letting it unwind past main uncaught.
func recoverToExitCode(log *logrus.Entry) {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("replica aborted on invariant breach")
		os.Exit(1)
	}
}
