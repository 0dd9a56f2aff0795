// Package consensusnode implements the per-message consensus lifecycle a
// node runs on receipt of a SignedMessage: signature verification,
// equivocation detection, confirmation gossip, quorum-gated leader
// execution, and leader-timeout reporting.
package consensusnode

import (
	"encoding/hex"
	"sort"
	"strconv"

	"nexuschain/nexus/agent"
)

// Confirmed is gossiped by a node once it has independently verified a
// SignedMessage and wants its peers to count its vote toward quorum.
type Confirmed struct {
	MessageID string   `json:"message_id"`
	NodeID    string   `json:"node_id"`
	Signature [64]byte `json:"signature"`
}

// messageID derives the canonical message identifier from its owner and
// sequence, matching the (owner, sequence) keying used for equivocation
// detection and confirmation bookkeeping.
func messageID(msg *agent.SignedMessage) string {
	return hex.EncodeToString(msg.OwnerPublicKey[:]) + ":" + strconv.FormatUint(msg.Sequence, 10)
}

// NodeSet is an ordered, de-duplicated view over the active consensus node
// ids used for deterministic leader selection.
type NodeSet struct {
	ids []string
}

// NewNodeSet builds a NodeSet sorted by node id so leader selection is
// reproducible across nodes without any coordination[hash(msg_id) mod |set|]").
func NewNodeSet(ids []string) NodeSet {
	cp := make([]string, len(ids))
	copy(cp, ids)
	sort.Strings(cp)
	return NodeSet{ids: cp}
}

// Len reports the number of nodes in the set.
func (s NodeSet) Len() int { return len(s.ids) }

// At returns the node id at the given sorted index.
func (s NodeSet) At(i int) string { return s.ids[i] }
