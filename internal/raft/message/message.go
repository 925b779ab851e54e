// Package message defines the wire format shared by every replica and
// client: one flattened JSON envelope per UDP datagram, discriminated by
// Type. A single struct (rather than one type per message) keeps decoding
// trivial — unmarshal once, branch on Type — at the cost of most fields
// being meaningless for most types, which is why they are all omitempty.
package message

// ReplicaID is an opaque 4-character replica identifier. Broadcast denotes
// "no leader known" or "every peer", depending on context.
type ReplicaID string

// Broadcast is the reserved identifier for broadcast / unknown-leader.
const Broadcast ReplicaID = "FFFF"

// Type enumerates the envelope's Type field.
type Type string

const (
	TypeHello                 Type = "hello"
	TypeGet                   Type = "get"
	TypePut                   Type = "put"
	TypeOk                    Type = "ok"
	TypeFail                  Type = "fail"
	TypeRedirect              Type = "redirect"
	TypeRequestVote           Type = "RequestVote"
	TypeRequestVoteResponse   Type = "RequestVoteResponse"
	TypeAppendEntries         Type = "AppendEntries"
	TypeAppendEntriesResponse Type = "AppendEntriesResponse"
)

// Entry is a single replicated command, tagged with the term in which a
// leader appended it. Client+MID jointly identify the request that produced
// it so the leader can reply exactly once once it commits.
type Entry struct {
	Term   uint64    `json:"term"`
	Key    string    `json:"key"`
	Value  string    `json:"value"`
	Client ReplicaID `json:"client"`
	MID    string    `json:"mid"`
}

// Envelope is the single wire type for every UDP datagram exchanged by the
// protocol: client<->replica requests/replies and replica<->replica RPCs.
type Envelope struct {
	Src    ReplicaID `json:"src"`
	Dst    ReplicaID `json:"dst"`
	Leader ReplicaID `json:"leader,omitempty"`
	Type   Type      `json:"type"`

	// Client <-> replica.
	MID   string `json:"MID,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	// RequestVote / RequestVoteResponse.
	Term         uint64 `json:"term,omitempty"`
	CandidateID  string `json:"candidateId,omitempty"`
	LastLogIndex int64  `json:"lastLogIndex,omitempty"`
	LastLogTerm  uint64 `json:"lastLogTerm,omitempty"`
	Granted      bool   `json:"granted,omitempty"`

	// AppendEntries / AppendEntriesResponse.
	PrevLogIndex          int64   `json:"prevLogIndex,omitempty"`
	PrevLogTerm           uint64  `json:"prevLogTerm,omitempty"`
	Entries               []Entry `json:"entries,omitempty"`
	LeaderCommit          int64   `json:"leaderCommit,omitempty"`
	Success               bool    `json:"success,omitempty"`
	MatchIndex            int64   `json:"matchIndex,omitempty"`
	ConflictingTerm       int64   `json:"conflictingTerm,omitempty"`
	ConflictingFirstIndex int64   `json:"conflictingFirstIndex,omitempty"`
}
