package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"nexuschain/nexus/keymanager"
	"nexuschain/nexus/platform"
)

// ErrWouldEquivocate is returned when the caller asks the signer to sign a
// second, distinct message_hash at a sequence it already signed. The signer
// refuses rather than producing slashing evidence against its own owner
//.
var ErrWouldEquivocate = errors.New("agent: refusing to sign a second message_hash at the same sequence")

// Multicaster delivers a signed message to one consensus node. Implemented
// by the transport layer (gRPC/HTTP); kept as a narrow interface so the
// signer stays transport-agnostic and unit-testable.
type Multicaster interface {
	Send(ctx context.Context, nodeID string, msg *SignedMessage) error
}

// Signer wraps a KeyManager and Sequencer into the agent's signing
// responsibilities: canonicalize, sign, and multicast.
type Signer struct {
	km        *keymanager.KeyManager
	seq       *Sequencer
	botIDHash [32]byte
	nowFn     func() time.Time

	mu          sync.Mutex
	signedAtSeq map[uint64][32]byte // last message_hash signed per sequence, this process lifetime
}

// NewSigner constructs a Signer for one owner keypair and bot scope.
func NewSigner(km *keymanager.KeyManager, seq *Sequencer, botIDHash [32]byte) *Signer {
	return &Signer{
		km: km, seq: seq, botIDHash: botIDHash,
		nowFn:       func() time.Time { return time.Now().UTC() },
		signedAtSeq: make(map[uint64][32]byte),
	}
}

// Sign assigns the next sequence number, builds and signs a SignedMessage
// for ev. The persisted sequence is advanced before signing completes, so a
// crash after Sign never reuses a sequence value.
func (s *Signer) Sign(ev *platform.NormalizedEvent, telegramUpdate []byte) (*SignedMessage, error) {
	owner := s.km.PublicKeyBytes()
	sequence, err := s.seq.Next(owner)
	if err != nil {
		return nil, err
	}

	hash := HashEvent(ev)

	s.mu.Lock()
	if prior, ok := s.signedAtSeq[sequence]; ok && prior != hash {
		s.mu.Unlock()
		return nil, ErrWouldEquivocate
	}
	s.signedAtSeq[sequence] = hash
	s.mu.Unlock()

	ts := s.nowFn().Unix()
	payload := SignaturePayload(s.botIDHash, sequence, ts, hash, ev.Platform)
	sig := s.km.Sign(payload)

	return &SignedMessage{
		OwnerPublicKey: owner,
		BotIDHash:      s.botIDHash,
		Sequence:       sequence,
		Timestamp:      ts,
		MessageHash:    hash,
		TelegramUpdate: telegramUpdate,
		OwnerSignature: sig,
		Platform:       ev.Platform,
	}, nil
}

// Multicast signs nothing further; it fans the already-signed message out to
// the K selected nodes concurrently and collects per-node errors. A failed
// delivery to one node does not block delivery to the others.
func Multicast(ctx context.Context, mc Multicaster, nodes []ActiveNode, msg *SignedMessage) map[string]error {
	results := make(map[string]error, len(nodes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, n := range nodes {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mc.Send(ctx, n.NodeID, msg)
			mu.Lock()
			results[n.NodeID] = err
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// CountSuccesses is a small helper for callers checking how many deliveries
// in a Multicast result succeeded.
func CountSuccesses(results map[string]error) int {
	n := 0
	for _, err := range results {
		if err == nil {
			n++
		}
	}
	return n
}
