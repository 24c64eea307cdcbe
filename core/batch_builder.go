package core

// batch_builder.go implements C3: it drains the admitted-tx queue against a
// live StateStore and seals Batches under the size/age policy in spec §4.3.
// Adapted from the teacher's core/rollups.go block-assembly loop, which
// pulled from a mempool under a max-block-size/max-block-time policy; the
// per-sender nonce-abort-cascade here is new (the teacher's mempool had no
// notion of a cascading nonce gap).

import (
	log "github.com/sirupsen/logrus"
)

// BatchPolicy bounds how a Batch is sealed.
type BatchPolicy struct {
	MaxBatchSize int
	MinBatchAge  uint64
	MaxBatchAge  uint64
}

// RejectedTx records why a tx never made it into a sealed batch, so callers
// can surface "every rejected tx carries its error kind and a brief reason"
// (spec §7) without the Batch Builder itself doing anything with the
// rejection beyond recording it.
type RejectedTx struct {
	Tx     Transaction
	Reason error
}

// BatchBuilder accumulates admitted transactions and seals them into Batches
// against a StateStore it does not own — the caller constructs it with the
// store the Finalization Engine will later checkpoint.
type BatchBuilder struct {
	store    *StateStore
	verify   SignatureVerifier
	policy   BatchPolicy
	nextID   uint64
	pending  []Transaction
	openedAt uint64
	logger   *log.Logger
}

// NewBatchBuilder constructs a Batch Builder over store, starting batch IDs
// at startID.
func NewBatchBuilder(store *StateStore, verify SignatureVerifier, policy BatchPolicy, startID uint64, logger *log.Logger) *BatchBuilder {
	return &BatchBuilder{
		store:  store,
		verify: verify,
		policy: policy,
		nextID: startID,
		logger: orDiscard(logger),
	}
}

// Enqueue appends a syntactically-admitted tx to the pending FIFO queue. The
// Batch Builder itself performs no admission checks — those are C10's job;
// by the time a tx reaches here it has already cleared nonce/rate/amount
// gating.
func (b *BatchBuilder) Enqueue(tx Transaction) {
	if len(b.pending) == 0 {
		b.openedAt = unixNow()
	}
	b.pending = append(b.pending, tx)
}

// Pending reports the current queue depth.
func (b *BatchBuilder) Pending() int { return len(b.pending) }

// ReadyToSeal reports whether the current pending queue meets the seal
// policy (spec §4.3: size cap, max age, or drained-past-min-age).
func (b *BatchBuilder) ReadyToSeal(now uint64) bool {
	if len(b.pending) == 0 {
		return false
	}
	if len(b.pending) >= b.policy.MaxBatchSize {
		return true
	}
	age := now - b.openedAt
	if age >= b.policy.MaxBatchAge {
		return true
	}
	if age >= b.policy.MinBatchAge {
		return true
	}
	return false
}

// Seal executes the pending queue against the store and produces a Batch.
// Txs that fail C2 are dropped, and every subsequent tx from the same
// sender is cascade-dropped (their nonces are now necessarily wrong) — spec
// §4.3's "abort cascade". An empty queue is a caller error, and a queue
// that cascade-aborts down to zero surviving txs is a sealing error, since
// spec §3 forbids N=0 batches either way.
func (b *BatchBuilder) Seal(now uint64, sequencer Addr, expiry uint64) (Batch, []RejectedTx, error) {
	if len(b.pending) == 0 {
		return Batch{}, nil, fault(ProtocolFault, ErrInvalidBatch, "seal: empty queue")
	}
	queue := b.pending
	if len(queue) > b.policy.MaxBatchSize {
		queue = queue[:b.policy.MaxBatchSize]
	}

	preRoot := b.store.Root()
	snap := b.store.Snapshot()
	defer b.store.Discard(snap)

	var surviving []Transaction
	var rejected []RejectedTx
	abortedSenders := make(map[Addr]bool)

	for _, tx := range queue {
		if abortedSenders[tx.Sender] {
			rejected = append(rejected, RejectedTx{Tx: tx, Reason: fault(UserFault, ErrNonceMismatch, "cascaded after earlier abort for this sender")})
			continue
		}
		if err := Apply(b.store, tx, b.verify, now); err != nil {
			abortedSenders[tx.Sender] = true
			rejected = append(rejected, RejectedTx{Tx: tx, Reason: err})
			continue
		}
		surviving = append(surviving, tx)
	}

	consumed := len(queue)

	if len(surviving) == 0 {
		// Every queued tx cascade-aborted: sealing would produce a batch
		// violating §3's |txs| >= 1 invariant. Restore the store (nothing
		// should have mutated it, but a failed Apply must never leak into
		// the next batch's pre_root) and drop the dead txs from the queue —
		// they're already recorded in rejected, and without a nonce fix
		// they'll only abort again.
		if err := b.store.Restore(snap); err != nil {
			b.logger.WithField("err", err).Error("seal: failed to restore store after all-aborted batch")
		}
		b.pending = append([]Transaction(nil), b.pending[consumed:]...)
		if len(b.pending) == 0 {
			b.openedAt = 0
		}
		return Batch{}, rejected, fault(ProtocolFault, ErrInvalidBatch, "seal: every queued tx aborted, no batch to seal")
	}

	postRoot := b.store.Root()

	b.pending = append([]Transaction(nil), b.pending[consumed:]...)
	if len(b.pending) == 0 {
		b.openedAt = 0
	}

	batch := Batch{
		ID:            b.nextID,
		Sequencer:     sequencer,
		Txs:           surviving,
		PreRoot:       preRoot,
		PostRoot:      postRoot,
		CreatedAt:     now,
		Expiry:        expiry,
		MerkleRootTxs: TxMerkleRoot(surviving),
	}
	b.nextID++

	b.logger.WithFields(log.Fields{
		"batch_id": batch.ID,
		"txs":      len(surviving),
		"rejected": len(rejected),
	}).Debug("sealed batch")

	return batch, rejected, nil
}
