// Package agent wraps a normalized platform event and a rule-engine action
// proposal into a signed, sequence-numbered message and multicasts it to a
// deterministically-selected set of consensus nodes.
package agent

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"nexuschain/nexus/platform"
)

// SignedMessage is the wire message an agent multicasts to consensus nodes.
type SignedMessage struct {
	OwnerPublicKey [32]byte        `json:"owner_public_key"`
	BotIDHash      [32]byte        `json:"bot_id_hash"`
	Sequence       uint64          `json:"sequence"`
	Timestamp      int64           `json:"timestamp"`
	MessageHash    [32]byte        `json:"message_hash"`
	TelegramUpdate json.RawMessage `json:"telegram_update,omitempty"`
	OwnerSignature [64]byte        `json:"owner_signature"`
	Platform       platform.Platform `json:"platform"`
}

// CanonicalEventBytes produces the stable byte serialization of a
// normalized event used to compute MessageHash. It MUST be identical on the
// sign and verify sides: this implementation canonicalizes
// via Go's map-free struct field order plus deterministic JSON (struct
// fields serialize in declaration order, and NormalizedEvent carries no
// maps), so encoding/json's default struct marshaling is already stable.
func CanonicalEventBytes(ev *platform.NormalizedEvent) []byte {
	// encoding/json never returns an error for a NormalizedEvent (no cyclic
	// types, no channels/funcs); ignoring the error keeps this a pure
	// function as the rule engine requires.
	b, _ := json.Marshal(ev)
	return b
}

// HashEvent computes message_hash = SHA256(canonical_event).
func HashEvent(ev *platform.NormalizedEvent) [32]byte {
	return sha256.Sum256(CanonicalEventBytes(ev))
}

// SignaturePayload builds bot_id_hash || sequence || timestamp ||
// message_hash || platform, the exact byte string the owner signature
// covers. Exported so consensus nodes can reconstruct the
// identical byte string to verify an incoming SignedMessage.
func SignaturePayload(botIDHash [32]byte, sequence uint64, timestamp int64, messageHash [32]byte, plat platform.Platform) []byte {
	buf := make([]byte, 0, 32+8+8+32+len(plat))
	buf = append(buf, botIDHash[:]...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], sequence)
	buf = append(buf, seqBuf[:]...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	buf = append(buf, tsBuf[:]...)
	buf = append(buf, messageHash[:]...)
	buf = append(buf, []byte(plat)...)
	return buf
}
