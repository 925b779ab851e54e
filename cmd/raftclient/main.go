// Command raftclient is a manual test/demo client: it sends exactly one
// get or put to a replica and prints the reply, following the same
// wire protocol production replicas speak to each other's clients.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"raftkv/internal/raft/message"
)

func main() {
	addr := flag.String("addr", "localhost:9001", "replica address to send the request to")
	get := flag.String("get", "", "key to fetch")
	put := flag.String("put", "", "key=value pair to write")
	timeout := flag.Duration("timeout", 2*time.Second, "how long to wait for a reply")
	flag.Parse()

	if (*get == "") == (*put == "") {
		fmt.Fprintln(os.Stderr, "raftclient: specify exactly one of -get or -put")
		os.Exit(2)
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftclient: dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	clientID := message.ReplicaID(uuid.NewString()[:4])
	mid := uuid.NewString()

	req := message.Envelope{Src: clientID, MID: mid}
	if *get != "" {
		req.Type = message.TypeGet
		req.Key = *get
	} else {
		key, value, ok := splitKV(*put)
		if !ok {
			fmt.Fprintf(os.Stderr, "raftclient: -put wants key=value, got %q\n", *put)
			os.Exit(2)
		}
		req.Type = message.TypePut
		req.Key = key
		req.Value = value
	}

	if err := send(conn, req); err != nil {
		fmt.Fprintf(os.Stderr, "raftclient: send: %v\n", err)
		os.Exit(1)
	}

	resp, err := recv(conn, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftclient: no reply from %s within %s: %v\n", *addr, *timeout, err)
		os.Exit(1)
	}

	switch resp.Type {
	case message.TypeOk:
		if *get != "" {
			fmt.Printf("ok %s=%s\n", *get, resp.Value)
		} else {
			fmt.Println("ok")
		}
	case message.TypeRedirect:
		fmt.Printf("redirect: try the current leader, %s\n", resp.Leader)
		os.Exit(1)
	case message.TypeFail:
		fmt.Println("fail: replica is in a minority partition, retry later")
		os.Exit(1)
	default:
		fmt.Printf("unexpected reply type %q\n", resp.Type)
		os.Exit(1)
	}
}

func send(conn net.Conn, env message.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = conn.Write(payload)
	return err
}

func recv(conn net.Conn, timeout time.Duration) (message.Envelope, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return message.Envelope{}, err
	}
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		return message.Envelope{}, err
	}
	var env message.Envelope
	if err := json.Unmarshal(buf[:n], &env); err != nil {
		return message.Envelope{}, err
	}
	return env, nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
