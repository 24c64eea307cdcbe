package core

// state_store.go implements C1: a content-addressed key->value store over
// accounts, committed with the sparse Merkle tree in merkle.go. Adapted
// from the teacher's core/ledger.go, which held chain state in a
// mutex-guarded in-memory map with WAL/snapshot persistence; this keeps
// that same "plain map behind a RWMutex" shape (the account set here is
// small and fully-resident, unlike the teacher's full chain state) and
// keeps its Snapshot/Restore naming, but replaces block/WAL replay with the
// transactional snapshot pair spec §4.1(c) requires.

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// InclusionProof is a sparse-Merkle-tree proof: smtDepth sibling hashes,
// indexed by depth (Siblings[0] is the sibling just below the root,
// Siblings[smtDepth-1] the leaf's sibling).
type InclusionProof struct {
	Siblings []Hash
}

// Handle is an opaque snapshot reference returned by StateStore.Snapshot
// and consumed by StateStore.Restore.
type Handle uint64

// StateStore is C1's concrete implementation.
type StateStore struct {
	mu       sync.RWMutex
	accounts map[Addr]Account
	snaps    map[Handle]map[Addr]Account
	nextSnap Handle
	logger   *log.Logger
}

// NewStateStore constructs an empty State Store.
func NewStateStore(logger *log.Logger) *StateStore {
	return &StateStore{
		accounts: make(map[Addr]Account),
		snaps:    make(map[Handle]map[Addr]Account),
		logger:   orDiscard(logger),
	}
}

// Get returns the account at addr, or a zero-balance zero-nonce account if
// absent — spec §4.1 is explicit that NotFound is not an error here.
func (s *StateStore) Get(addr Addr) Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc
	}
	return Account{}
}

// Put writes (or overwrites) the account at addr.
func (s *StateStore) Put(addr Addr, account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.Addr = addr
	s.accounts[addr] = account
}

// Root returns the current StateRoot commitment.
func (s *StateStore) Root() StateRoot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rootLocked()
}

func (s *StateStore) rootLocked() StateRoot {
	keys, byKey := s.leafSetLocked()
	return smtRoot(keys, byKey, 0)
}

func (s *StateStore) leafSetLocked() ([]Hash, map[Hash]Account) {
	byKey := make(map[Hash]Account, len(s.accounts))
	keys := make([]Hash, 0, len(s.accounts))
	for addr, acc := range s.accounts {
		k := smtKey(addr)
		byKey[k] = acc
		keys = append(keys, k)
	}
	return keys, byKey
}

// Proof returns an inclusion proof for addr against the current root.
func (s *StateStore) Proof(addr Addr) InclusionProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, byKey := s.leafSetLocked()
	return InclusionProof{Siblings: smtProof(keys, byKey, smtKey(addr))}
}

// Verify checks that (addr, account) is included under root per proof. It
// is a pure function of its arguments and does not touch store state —
// callers (notably the Step Verifier, C6) use it against ephemeral,
// externally-supplied roots and proofs, not just the live store.
func Verify(root StateRoot, addr Addr, account Account, proof InclusionProof) bool {
	return smtVerify(root, addr, account, proof.Siblings)
}

// Snapshot captures the current account mapping and returns a handle that
// Restore can later roll back to. Snapshot/Restore form the transactional
// pair spec §4.1(c) requires: Restore leaves the store byte-identical to
// its state at Snapshot.
func (s *StateStore) Snapshot() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[Addr]Account, len(s.accounts))
	for k, v := range s.accounts {
		cp[k] = v
	}
	h := s.nextSnap
	s.nextSnap++
	s.snaps[h] = cp
	return h
}

// Restore rolls the store back to the state captured at Snapshot(h). The
// snapshot remains available for further restores until Discard is called.
func (s *StateStore) Restore(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.snaps[h]
	if !ok {
		return fault(SystemFault, ErrInvariantBroken, "restore: unknown snapshot handle")
	}
	restored := make(map[Addr]Account, len(cp))
	for k, v := range cp {
		restored[k] = v
	}
	s.accounts = restored
	return nil
}

// Discard releases a snapshot handle once it is no longer needed.
func (s *StateStore) Discard(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, h)
}
