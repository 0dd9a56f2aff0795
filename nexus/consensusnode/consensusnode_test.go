package consensusnode

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"nexuschain/nexus/agent"
	"nexuschain/nexus/keymanager"
	"nexuschain/nexus/platform"
)

func signedMessage(t *testing.T, km *keymanager.KeyManager, seq uint64, text string) *agent.SignedMessage {
	t.Helper()
	ev := &platform.NormalizedEvent{Platform: platform.Telegram, ChannelID: "1", Text: text}
	hash := agent.HashEvent(ev)
	payload := agent.SignaturePayload([32]byte{}, seq, 1000, hash, ev.Platform)
	sig := km.Sign(payload)
	return &agent.SignedMessage{
		OwnerPublicKey: km.PublicKeyBytes(),
		Sequence:       seq,
		Timestamp:      1000,
		MessageHash:    hash,
		OwnerSignature: sig,
		Platform:       ev.Platform,
	}
}

type fakeGossip struct {
	mu  sync.Mutex
	out []Confirmed
}

func (g *fakeGossip) Broadcast(ctx context.Context, c Confirmed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = append(g.out, c)
	return nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	submits int
}

func (s *fakeSubmitter) SubmitConfirmations(ctx context.Context, messageID string, confirmations []Confirmed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	return nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed int
}

func (e *fakeExecutor) Execute(ctx context.Context, msg *agent.SignedMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed++
	return nil
}

type fakeTimeouts struct {
	successes int
	timeouts  int
}

func (f *fakeTimeouts) ReportLeaderTimeout(ctx context.Context, messageID, leaderNodeID string) error {
	f.timeouts++
	return nil
}
func (f *fakeTimeouts) ReportLeaderSuccess(ctx context.Context, messageID, leaderNodeID string) error {
	f.successes++
	return nil
}

func newNode(t *testing.T, nodeID string, nodes NodeSet, quorum int, sub ChainSubmitter, exec Executor, to LeaderTimeoutReporter, g Gossiper) (*Node, *keymanager.KeyManager) {
	t.Helper()
	km, err := keymanager.LoadOrGenerate(filepath.Join(t.TempDir(), "key"))
	require.NoError(t, err)
	n := New(Config{NodeID: nodeID, KeyManager: km, Gossip: g, Submitter: sub, Executor: exec, Timeouts: to, Nodes: nodes, QuorumSize: quorum})
	return n, km
}

func TestHandleMessageRejectsBadSignature(t *testing.T) {
	nodeSet := NewNodeSet([]string{"n1"})
	n, _ := newNode(t, "n1", nodeSet, 1, nil, nil, nil, nil)
	ownerKM, err := keymanager.LoadOrGenerate(filepath.Join(t.TempDir(), "owner"))
	require.NoError(t, err)
	msg := signedMessage(t, ownerKM, 1, "hi")
	msg.OwnerSignature[0] ^= 0xFF

	err = n.HandleMessage(context.Background(), msg)
	require.Error(t, err)
}

func TestHandleMessageDetectsEquivocation(t *testing.T) {
	nodeSet := NewNodeSet([]string{"n1"})
	n, _ := newNode(t, "n1", nodeSet, 1, nil, nil, nil, nil)
	ownerKM, err := keymanager.LoadOrGenerate(filepath.Join(t.TempDir(), "owner"))
	require.NoError(t, err)

	msg1 := signedMessage(t, ownerKM, 5, "first")
	require.NoError(t, n.HandleMessage(context.Background(), msg1))

	msg2 := signedMessage(t, ownerKM, 5, "second") // same sequence, different payload
	err = n.HandleMessage(context.Background(), msg2)
	require.ErrorIs(t, err, ErrEquivocation)
}

func TestHandleMessageIdempotentForIdenticalResend(t *testing.T) {
	nodeSet := NewNodeSet([]string{"n1"})
	n, _ := newNode(t, "n1", nodeSet, 1, nil, nil, nil, nil)
	ownerKM, err := keymanager.LoadOrGenerate(filepath.Join(t.TempDir(), "owner"))
	require.NoError(t, err)
	msg := signedMessage(t, ownerKM, 5, "same")

	require.NoError(t, n.HandleMessage(context.Background(), msg))
	require.NoError(t, n.HandleMessage(context.Background(), msg))
}

func TestQuorumGatesSubmissionAndLeaderExecution(t *testing.T) {
	nodeSet := NewNodeSet([]string{"n1", "n2", "n3"})
	sub := &fakeSubmitter{}
	exec := &fakeExecutor{}
	to := &fakeTimeouts{}
	g := &fakeGossip{}

	ownerKM, err := keymanager.LoadOrGenerate(filepath.Join(t.TempDir(), "owner"))
	require.NoError(t, err)
	msg := signedMessage(t, ownerKM, 1, "quorum-test")

	nodes := make(map[string]*Node, 3)
	for _, id := range []string{"n1", "n2", "n3"} {
		n, _ := newNode(t, id, nodeSet, 2, sub, exec, to, g)
		nodes[id] = n
	}

	leader := nodes["n1"].ElectedLeader(messageID(msg))
	require.Contains(t, []string{"n1", "n2", "n3"}, leader)

	require.NoError(t, nodes[leader].HandleMessage(context.Background(), msg))
	require.Equal(t, 0, exec.executed, "quorum of 2 not yet reached with only the leader's own confirmation")

	// A second node independently verifies and confirms the same message,
	// gossiping its own Confirmed vote too.
	var second string
	for id := range nodes {
		if id != leader {
			second = id
			break
		}
	}
	require.NoError(t, nodes[second].HandleMessage(context.Background(), msg))

	// Cross-feed every gossiped confirmation to every node that didn't
	// originate it, simulating the broadcast fan-out.
	for _, c := range g.out {
		for id, n := range nodes {
			if id == c.NodeID {
				continue
			}
			require.NoError(t, n.OnConfirmation(context.Background(), msg, c))
		}
	}

	require.Equal(t, 1, exec.executed)
	require.GreaterOrEqual(t, sub.submits, 1)
	require.Equal(t, 1, to.successes)
}

func TestElectedLeaderIsDeterministicAcrossNodes(t *testing.T) {
	nodeSet := NewNodeSet([]string{"zeta", "alpha", "mu"})
	n1, _ := newNode(t, "alpha", nodeSet, 1, nil, nil, nil, nil)
	n2, _ := newNode(t, "zeta", nodeSet, 1, nil, nil, nil, nil)

	require.Equal(t, n1.ElectedLeader("msg-1"), n2.ElectedLeader("msg-1"))
}

func TestReportTimeoutDelegatesToReporter(t *testing.T) {
	nodeSet := NewNodeSet([]string{"n1", "n2"})
	to := &fakeTimeouts{}
	n, _ := newNode(t, "n1", nodeSet, 1, nil, nil, to, nil)
	require.NoError(t, n.ReportTimeout(context.Background(), "msg-x"))
	require.Equal(t, 1, to.timeouts)
}
