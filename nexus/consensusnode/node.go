package consensusnode

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"nexuschain/nexus/agent"
	"nexuschain/nexus/keymanager"
)

// ErrEquivocation is returned when two different message hashes are seen
// for the same (owner, sequence) pair.
var ErrEquivocation = errors.New("consensusnode: equivocating message detected")

// ErrAlreadySubmitted is returned by SubmitConfirmations when the message
// has already been submitted on-chain, making the call idempotent rather
// than an error condition the caller must retry around.
var ErrAlreadySubmitted = errors.New("consensusnode: confirmations already submitted")

// Gossiper broadcasts a Confirmed vote to the rest of the consensus set.
type Gossiper interface {
	Broadcast(ctx context.Context, c Confirmed) error
}

// ChainSubmitter posts the collected confirmations for a message to the
// on-chain pallet once quorum is reached.
type ChainSubmitter interface {
	SubmitConfirmations(ctx context.Context, messageID string, confirmations []Confirmed) error
}

// Executor carries out the leader's action once quorum and leadership are
// both satisfied.
type Executor interface {
	Execute(ctx context.Context, msg *agent.SignedMessage) error
}

// LeaderTimeoutReporter reports that the elected leader failed to execute
// within the expected window, so the chain can penalize it.
type LeaderTimeoutReporter interface {
	ReportLeaderTimeout(ctx context.Context, messageID, leaderNodeID string) error
	ReportLeaderSuccess(ctx context.Context, messageID, leaderNodeID string) error
}

type messageRecord struct {
	hash          [32]byte
	signature     [64]byte
	confirmations map[string]Confirmed
	submitted     bool
	executed      bool
}

// Node runs the per-message consensus lifecycle for one local consensus
// participant identified by nodeID.
type Node struct {
	mu       sync.Mutex
	nodeID   string
	km       *keymanager.KeyManager
	gossip   Gossiper
	submitter ChainSubmitter
	executor Executor
	timeouts LeaderTimeoutReporter
	nodes    NodeSet
	quorum   int

	seen map[string]*messageRecord
}

// Config wires a Node's collaborators. QuorumSize is the minimum distinct
// confirmations (including the receiving node's own) required before
// on-chain submission and leader execution proceed.
type Config struct {
	NodeID     string
	KeyManager *keymanager.KeyManager
	Gossip     Gossiper
	Submitter  ChainSubmitter
	Executor   Executor
	Timeouts   LeaderTimeoutReporter
	Nodes      NodeSet
	QuorumSize int
}

// New constructs a Node from cfg.
func New(cfg Config) *Node {
	return &Node{
		nodeID:    cfg.NodeID,
		km:        cfg.KeyManager,
		gossip:    cfg.Gossip,
		submitter: cfg.Submitter,
		executor:  cfg.Executor,
		timeouts:  cfg.Timeouts,
		nodes:     cfg.Nodes,
		quorum:    cfg.QuorumSize,
		seen:      make(map[string]*messageRecord),
	}
}

// HandleMessage runs the full per-message lifecycle: verify the owner's
// Ed25519 signature, detect equivocation against any prior record for the
// same (owner, sequence), and gossip a Confirmed vote for valid, novel
// messages.
func (n *Node) HandleMessage(ctx context.Context, msg *agent.SignedMessage) error {
	if !n.verify(msg) {
		return fmt.Errorf("consensusnode: invalid signature for message %s", messageID(msg))
	}

	hash := msg.MessageHash

	n.mu.Lock()
	id := messageID(msg)
	rec, known := n.seen[id]
	if known {
		if rec.hash != hash {
			n.mu.Unlock()
			return ErrEquivocation
		}
		n.mu.Unlock()
		return nil
	}
	rec = &messageRecord{hash: hash, signature: msg.OwnerSignature, confirmations: make(map[string]Confirmed)}
	n.seen[id] = rec
	n.mu.Unlock()

	confirmation := Confirmed{MessageID: id, NodeID: n.nodeID, Signature: n.signConfirmation(id)}
	n.recordConfirmation(id, confirmation)

	if n.gossip != nil {
		if err := n.gossip.Broadcast(ctx, confirmation); err != nil {
			return fmt.Errorf("consensusnode: broadcast confirmation: %w", err)
		}
	}
	return n.tryAdvance(ctx, msg, id)
}

// OnConfirmation ingests a peer's Confirmed vote for a message this node
// has already seen (or is about to see) and advances the lifecycle once
// quorum is reached.
func (n *Node) OnConfirmation(ctx context.Context, msg *agent.SignedMessage, c Confirmed) error {
	n.recordConfirmation(c.MessageID, c)
	return n.tryAdvance(ctx, msg, c.MessageID)
}

func (n *Node) recordConfirmation(id string, c Confirmed) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec, ok := n.seen[id]
	if !ok {
		rec = &messageRecord{confirmations: make(map[string]Confirmed)}
		n.seen[id] = rec
	}
	rec.confirmations[c.NodeID] = c
}

func (n *Node) quorumReached(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec, ok := n.seen[id]
	if !ok {
		return false
	}
	return len(rec.confirmations) >= n.quorum
}

// tryAdvance submits confirmations (idempotently) and, if this node is the
// elected leader for the message, executes its action once quorum holds.
func (n *Node) tryAdvance(ctx context.Context, msg *agent.SignedMessage, id string) error {
	if !n.quorumReached(id) {
		return nil
	}

	n.mu.Lock()
	rec := n.seen[id]
	alreadySubmitted := rec.submitted
	alreadyExecuted := rec.executed
	confirmations := make([]Confirmed, 0, len(rec.confirmations))
	for _, c := range rec.confirmations {
		confirmations = append(confirmations, c)
	}
	n.mu.Unlock()

	if !alreadySubmitted && n.submitter != nil {
		if err := n.submitter.SubmitConfirmations(ctx, id, confirmations); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			return fmt.Errorf("consensusnode: submit confirmations: %w", err)
		}
		n.mu.Lock()
		rec.submitted = true
		n.mu.Unlock()
	}

	if alreadyExecuted || msg == nil {
		return nil
	}
	if n.ElectedLeader(id) != n.nodeID {
		return nil
	}
	if n.executor == nil {
		return nil
	}
	if err := n.executor.Execute(ctx, msg); err != nil {
		return fmt.Errorf("consensusnode: leader execute: %w", err)
	}
	n.mu.Lock()
	rec.executed = true
	n.mu.Unlock()
	if n.timeouts != nil {
		if err := n.timeouts.ReportLeaderSuccess(ctx, id, n.nodeID); err != nil {
			return fmt.Errorf("consensusnode: report leader success: %w", err)
		}
	}
	return nil
}

// ElectedLeader returns the deterministic leader node id for a message,
// computed as sorted_by(node_id)[hash(message_id) mod |set|].
func (n *Node) ElectedLeader(messageID string) string {
	if n.nodes.Len() == 0 {
		return ""
	}
	h := sha256.Sum256([]byte(messageID))
	idx := binary.BigEndian.Uint64(h[:8]) % uint64(n.nodes.Len())
	return n.nodes.At(int(idx))
}

// ReportTimeout notifies the chain that the elected leader for id failed to
// execute within the expected window.
func (n *Node) ReportTimeout(ctx context.Context, id string) error {
	if n.timeouts == nil {
		return nil
	}
	return n.timeouts.ReportLeaderTimeout(ctx, id, n.ElectedLeader(id))
}

func (n *Node) verify(msg *agent.SignedMessage) bool {
	payload := agent.SignaturePayload(msg.BotIDHash, msg.Sequence, msg.Timestamp, msg.MessageHash, msg.Platform)
	return keymanager.Verify(msg.OwnerPublicKey, payload, msg.OwnerSignature)
}

func (n *Node) signConfirmation(id string) [64]byte {
	return n.km.Sign([]byte(id))
}
