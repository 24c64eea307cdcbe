package core

// finalization.go implements C4: the Checkpoint state machine. Adapted from
// the teacher's quorum/validator bookkeeping (stake-weighted vote counting
// against a live total) wired onto the Proposed -> Confirmed -> InChallenge
// -> {Finalized, Rejected, ForcedFinalized} lattice spec §4.4 draws.

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FinalizationParams holds the time/quorum thresholds a Finalization Engine
// enforces.
type FinalizationParams struct {
	QuorumBps       uint64
	ChallengeWindow uint64
	ForcedTimeout   uint64
}

// StakeLookup reports the total active stake backing the quorum
// calculation; supplied by the Incentive Ledger.
type StakeLookup func() uint64

// VoterAuthorizer reports whether addr is an authorized confirmation voter.
type VoterAuthorizer func(addr Addr) bool

// FinalizationEngine tracks every Checkpoint from proposal to its terminal
// stage.
type FinalizationEngine struct {
	mu          sync.Mutex
	checkpoints map[CheckpointID]*Checkpoint
	nextID      CheckpointID
	params      FinalizationParams
	totalStake  StakeLookup
	authorized  VoterAuthorizer
	logger      *log.Logger
}

// NewFinalizationEngine constructs an empty Finalization Engine.
func NewFinalizationEngine(params FinalizationParams, totalStake StakeLookup, authorized VoterAuthorizer, logger *log.Logger) *FinalizationEngine {
	return &FinalizationEngine{
		checkpoints: make(map[CheckpointID]*Checkpoint),
		nextID:      1,
		params:      params,
		totalStake:  totalStake,
		authorized:  authorized,
		logger:      orDiscard(logger),
	}
}

// Propose registers a new Checkpoint in the Proposed stage for batch,
// returning its id. Checkpoint ids are assigned in strictly increasing
// order, giving the total order spec §4.4 requires.
func (f *FinalizationEngine) Propose(batch Batch, proposer Addr, blockHeight, now uint64) CheckpointID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.checkpoints[id] = &Checkpoint{
		ID:          id,
		BatchID:     batch.ID,
		StateRoot:   batch.PostRoot,
		BlockHeight: blockHeight,
		Proposer:    proposer,
		CreatedAt:   now,
		Stage:       Proposed,
		Votes:       make(map[Addr]uint64),
		Challenges:  make(map[ChallengeID]bool),
	}
	return id
}

// Confirm records voter's stake-weighted vote for checkpoint id. Once the
// accumulated stake clears quorum_bps of total active stake, the checkpoint
// advances Proposed -> Confirmed -> InChallenge in one step (spec §4.4 draws
// "Confirmed" as a waypoint, not a resting stage with its own window).
func (f *FinalizationEngine) Confirm(id CheckpointID, voter Addr, stake, now uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[id]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "confirm: unknown checkpoint")
	}
	if cp.Stage != Proposed {
		return fault(ProtocolFault, ErrIllegalStageTransition, "confirm: checkpoint not in Proposed")
	}
	if f.authorized != nil && !f.authorized(voter) {
		return fault(UserFault, ErrUnauthorized, "confirm: voter not authorized")
	}
	cp.Votes[voter] = stake

	var sum uint64
	for _, s := range cp.Votes {
		sum += s
	}
	total := f.totalStake()
	if total == 0 {
		return nil
	}
	if sum*10_000 >= f.params.QuorumBps*total {
		cp.Stage = InChallenge
		cp.ConfirmedAt = now
	}
	return nil
}

// OpenChallenge attaches challengeID to checkpoint id. The checkpoint must
// already be InChallenge; attaching a challenge does not change its stage,
// it only blocks the no-challenge Finalized path until resolved.
func (f *FinalizationEngine) OpenChallenge(id CheckpointID, challengeID ChallengeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[id]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "open_challenge: unknown checkpoint")
	}
	if cp.Stage != InChallenge {
		return fault(ProtocolFault, ErrIllegalStageTransition, "open_challenge: checkpoint not in InChallenge")
	}
	cp.Challenges[challengeID] = true
	return nil
}

// ResolveChallenge removes challengeID from checkpoint id's open set and, if
// the challenger won, transitions the checkpoint to Rejected and cascades
// rejection to every later not-yet-finalized checkpoint (spec §4.4).
func (f *FinalizationEngine) ResolveChallenge(id CheckpointID, challengeID ChallengeID, challengerWon bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[id]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "resolve_challenge: unknown checkpoint")
	}
	if _, open := cp.Challenges[challengeID]; !open {
		return fault(ProtocolFault, ErrInvalidChallenge, "resolve_challenge: challenge not open on this checkpoint")
	}
	delete(cp.Challenges, challengeID)
	if challengerWon {
		cp.Stage = Rejected
		f.cascadeRejectLocked(id)
	}
	return nil
}

// cascadeRejectLocked rejects every checkpoint with a strictly larger id
// that has not already reached a finalized stage. Callers must hold f.mu.
func (f *FinalizationEngine) cascadeRejectLocked(rejectedID CheckpointID) {
	for otherID, cp := range f.checkpoints {
		if otherID <= rejectedID {
			continue
		}
		if cp.Stage == Finalized || cp.Stage == ForcedFinalized {
			continue
		}
		cp.Stage = Rejected
	}
}

// Tick drives time-based transitions across every InChallenge checkpoint:
// the no-challenge path to Finalized once challenge_window has elapsed, and
// the forced path to ForcedFinalized once forced_timeout has elapsed
// regardless of open challenges. It returns the ids that transitioned,
// processed in id order for determinism.
func (f *FinalizationEngine) Tick(now uint64) []CheckpointID {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]CheckpointID, 0, len(f.checkpoints))
	for id := range f.checkpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var transitioned []CheckpointID
	for _, id := range ids {
		cp := f.checkpoints[id]
		if cp.Stage != InChallenge {
			continue
		}
		elapsed := now - cp.ConfirmedAt
		switch {
		case len(cp.Challenges) == 0 && elapsed >= f.params.ChallengeWindow:
			cp.Stage = Finalized
			transitioned = append(transitioned, id)
		case elapsed >= f.params.ForcedTimeout:
			cp.Stage = ForcedFinalized
			transitioned = append(transitioned, id)
		}
	}
	return transitioned
}

// Get returns a copy of checkpoint id.
func (f *FinalizationEngine) Get(id CheckpointID) (Checkpoint, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[id]
	if !ok {
		return Checkpoint{}, false
	}
	return *cp, true
}
