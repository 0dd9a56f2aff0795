package agent

import (
	"crypto/sha256"
	"encoding/binary"
)

// NodeStatus mirrors the subset of native/nexusconsensus.NodeStatus relevant
// to multicast target selection: suspended/exiting nodes are skipped and
// replaced by the next candidate in rotation.
type NodeStatus uint8

const (
	NodeActive NodeStatus = iota
	NodeProbation
	NodeSuspended
	NodeExiting
)

// ActiveNode is the minimal view of a registered node the selection
// algorithm needs.
type ActiveNode struct {
	NodeID string
	Status NodeStatus
}

func (n ActiveNode) eligible() bool {
	return n.Status == NodeActive || n.Status == NodeProbation
}

// SelectNodes deterministically draws k distinct eligible nodes from the
// active node list using hash(sequence, bot_id_hash) mod |list| as the
// starting index, then walks forward (wrapping) skipping ineligible nodes
// until k are chosen or the list is exhausted.
func SelectNodes(nodes []ActiveNode, sequence uint64, botIDHash [32]byte, k int) []ActiveNode {
	eligible := make([]ActiveNode, 0, len(nodes))
	for _, n := range nodes {
		if n.eligible() {
			eligible = append(eligible, n)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	if k > len(eligible) {
		k = len(eligible)
	}

	start := int(selectionSeed(sequence, botIDHash) % uint64(len(eligible)))
	out := make([]ActiveNode, 0, k)
	seen := make(map[int]struct{}, k)
	for i := 0; len(out) < k && len(seen) < len(eligible); i++ {
		idx := (start + i) % len(eligible)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, eligible[idx])
	}
	return out
}

func selectionSeed(sequence uint64, botIDHash [32]byte) uint64 {
	h := sha256.New()
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], sequence)
	h.Write(seqBuf[:])
	h.Write(botIDHash[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
