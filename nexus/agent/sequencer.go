package agent

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var sequenceBucket = []byte("agent_sequence")

// ErrSequenceNotMonotone guards against a caller reusing a stale sequence
// value, which would otherwise look like equivocation to consensus nodes.
var ErrSequenceNotMonotone = errors.New("agent: sequence must be strictly increasing")

// Sequencer persists the last-assigned sequence number per owner in a bbolt
// database so restarts resume from the correct value.
type Sequencer struct {
	db *bolt.DB
	mu sync.Mutex
}

// OpenSequencer opens (creating if necessary) the bbolt file at path.
func OpenSequencer(path string) (*Sequencer, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: open sequence db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sequenceBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("agent: init sequence bucket: %w", err)
	}
	return &Sequencer{db: db}, nil
}

// Close releases the underlying bbolt database handle.
func (s *Sequencer) Close() error { return s.db.Close() }

// Next atomically reads the last sequence for owner, persists
// last+1, and returns it. The persist happens before the caller can
// transmit, satisfying the durability-before-send ordering guarantee.
func (s *Sequencer) Next(owner [32]byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sequenceBucket)
		cur := uint64(0)
		if raw := b.Get(owner[:]); raw != nil {
			cur = binary.BigEndian.Uint64(raw)
		}
		next = cur + 1
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next)
		return b.Put(owner[:], buf[:])
	})
	if err != nil {
		return 0, fmt.Errorf("agent: advance sequence: %w", err)
	}
	return next, nil
}

// Last returns the last sequence persisted for owner, or 0 if none.
func (s *Sequencer) Last(owner [32]byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sequenceBucket)
		if raw := b.Get(owner[:]); raw != nil {
			last = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return last, err
}
