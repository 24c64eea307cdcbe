package core

// bridge.go implements C8's deposit and delayed-withdrawal halves: L1->L2
// minting via a synthetic Deposit transaction, and the L2->L1 exit state
// machine with its anti-replay sets. Adapted from the teacher's
// core/cross_chain_bridge.go asset-mapping and idempotence-by-id pattern;
// the withdrawal delay/challenge/ready lattice here replaces the teacher's
// single-step release with spec §4.8's multi-stage one.

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// BridgeParams holds C8's timing thresholds.
type BridgeParams struct {
	DelayPeriod      uint64
	ChallengeWindow  uint64
	WithdrawalExpiry uint64
}

// AssetMapping resolves an L1 token address to the L2 asset it mints as.
// The bridge only ever sees a token_l1 it has an explicit mapping for —
// spec §4.8 treats an unmapped token as a rejection, not a new asset.
type AssetMapping func(tokenL1 AddrL1) (asset AddrL1, ok bool)

// Bridge is C8's deposit/withdrawal half. It executes synthetic Deposit and
// Withdraw transactions against store, and tracks WithdrawalRequests
// through their lifecycle independently of the Finalization Engine —
// MarkBatchFinalized must be called once the enclosing checkpoint
// reaches Finalized so Ready-eligible withdrawals can advance.
type Bridge struct {
	mu sync.Mutex

	store  *StateStore
	assets AssetMapping
	params BridgeParams

	deposits       map[Hash]*Deposit
	withdrawals    map[Hash]*WithdrawalRequest
	executedHashes map[Hash]bool
	usedNonces     map[Addr]map[uint64]bool
	batchFinalized map[uint64]bool

	logger *log.Logger
}

// NewBridge constructs a Bridge over store.
func NewBridge(store *StateStore, assets AssetMapping, params BridgeParams, logger *log.Logger) *Bridge {
	return &Bridge{
		store:          store,
		assets:         assets,
		params:         params,
		deposits:       make(map[Hash]*Deposit),
		withdrawals:    make(map[Hash]*WithdrawalRequest),
		executedHashes: make(map[Hash]bool),
		usedNonces:     make(map[Addr]map[uint64]bool),
		batchFinalized: make(map[uint64]bool),
		logger:         orDiscard(logger),
	}
}

//---------------------------------------------------------------------
// Deposits (L1 -> L2)
//---------------------------------------------------------------------

// Deliver processes a relayed Deposit event. It is idempotent by d.ID: a
// re-delivery of an already-processed deposit never double-credits (P9).
func (b *Bridge) Deliver(d Deposit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.deposits[d.ID]; ok && existing.Processed {
		return fault(UserFault, ErrDuplicateDeposit, "deposit already processed")
	}
	if _, ok := b.assets(d.TokenL1); !ok {
		return fault(UserFault, ErrUnknownAsset, "no L2 mapping for token_l1")
	}

	mint := Transaction{Recipient: d.RecipientL2, Amount: d.Amount, Kind: Deposit}
	if err := Apply(b.store, mint, nil, 0); err != nil {
		return err
	}
	d.Processed = true
	if d.CorrelationID == uuid.Nil {
		d.CorrelationID = uuid.New()
	}
	b.deposits[d.ID] = &d
	b.logger.WithField("deposit_id", d.ID.Hex()).Info("deposit delivered")
	return nil
}

//---------------------------------------------------------------------
// Withdrawals (L2 -> L1)
//---------------------------------------------------------------------

// RequestWithdraw debits sender via a synthetic Withdraw transaction and
// opens a WithdrawalRequest in the Pending stage. verify authenticates the
// withdraw tx per C2's normal Withdraw semantics.
func (b *Bridge) RequestWithdraw(tx Transaction, asset, recipientL1 AddrL1, batchID uint64, verify SignatureVerifier, now uint64) (Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.usedNonces[tx.Sender] == nil {
		b.usedNonces[tx.Sender] = make(map[uint64]bool)
	}
	if b.usedNonces[tx.Sender][tx.Nonce] {
		return Hash{}, fault(UserFault, ErrDuplicateWithdrawal, "sender/nonce pair already used")
	}
	if err := Apply(b.store, tx, verify, now); err != nil {
		return Hash{}, err
	}
	b.usedNonces[tx.Sender][tx.Nonce] = true

	txHash := tx.Hash()
	if _, exists := b.withdrawals[txHash]; exists {
		return Hash{}, fault(ProtocolFault, ErrInvariantBroken, "withdrawal tx_hash collision")
	}
	b.withdrawals[txHash] = &WithdrawalRequest{
		TxHash:        txHash,
		Sender:        tx.Sender,
		Asset:         asset,
		Amount:        tx.Amount,
		RecipientL1:   recipientL1,
		RequestedAt:   now,
		BatchID:       batchID,
		Stage:         WithdrawPending,
		CorrelationID: uuid.New(),
	}
	return txHash, nil
}

// Tick advances every pending withdrawal's stage by elapsed time: Pending
// moves straight to InChallenge once delay_period has elapsed (the
// DelayElapsed stage is never stored), then to Ready once
// challenge_window has also elapsed and the enclosing batch
// has finalized. It also rejects withdrawals that sat Ready past
// withdrawal_expiry without being executed — per SPEC_FULL.md's Open
// Question resolution, expired funds stay escrowed (Rejected, not
// refunded) rather than being credited back on L2.
func (b *Bridge) Tick(now uint64) []Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	var transitioned []Hash
	for hash, w := range b.withdrawals {
		switch w.Stage {
		case WithdrawPending:
			if now-w.RequestedAt >= b.params.DelayPeriod {
				w.Stage = WithdrawInChallenge
				transitioned = append(transitioned, hash)
			}
		case WithdrawInChallenge:
			if now-w.RequestedAt >= b.params.DelayPeriod+b.params.ChallengeWindow && b.batchFinalized[w.BatchID] {
				w.Stage = WithdrawReady
				w.ReadyAt = now
				transitioned = append(transitioned, hash)
			}
		case WithdrawReady:
			if now-w.ReadyAt > b.params.WithdrawalExpiry {
				w.Stage = WithdrawRejected
				transitioned = append(transitioned, hash)
			}
		}
	}
	return transitioned
}

// MarkBatchFinalized records that batchID's enclosing checkpoint reached
// Finalized, unblocking its withdrawals' Ready transition.
func (b *Bridge) MarkBatchFinalized(batchID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchFinalized[batchID] = true
}

// Execute releases funds on L1 for a Ready withdrawal and marks it Executed.
// The persistent executedHashes set rejects any duplicate call — P8's
// non-reentry guarantee.
func (b *Bridge) Execute(txHash Hash, now uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.executedHashes[txHash] {
		return fault(UserFault, ErrDuplicateWithdrawal, "withdrawal already executed")
	}
	w, ok := b.withdrawals[txHash]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "execute: unknown withdrawal")
	}
	if w.Stage != WithdrawReady {
		return fault(ProtocolFault, ErrIllegalStageTransition, "execute: withdrawal not Ready")
	}
	w.Stage = WithdrawExecuted
	w.ExecutedAt = now
	b.executedHashes[txHash] = true
	return nil
}

// Withdrawal returns a copy of the withdrawal request at txHash.
func (b *Bridge) Withdrawal(txHash Hash) (WithdrawalRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.withdrawals[txHash]
	if !ok {
		return WithdrawalRequest{}, false
	}
	return *w, true
}

// MarkSoldToLP records that a pending withdrawal was sold to a liquidity
// provider for an instant payout (see liquidity_pool.go).
func (b *Bridge) MarkSoldToLP(txHash Hash, provider Addr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.withdrawals[txHash]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "unknown withdrawal")
	}
	if w.SoldToLP {
		return fault(UserFault, ErrDuplicateWithdrawal, "withdrawal already sold to a liquidity provider")
	}
	if w.Stage == WithdrawReady || w.Stage == WithdrawExecuted || w.Stage == WithdrawRejected {
		return fault(ProtocolFault, ErrIllegalStageTransition, "withdrawal no longer sellable")
	}
	w.SoldToLP = true
	w.LPProvider = provider
	return nil
}

// Deposit returns a copy of the deposit at id.
func (b *Bridge) Deposit(id Hash) (Deposit, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.deposits[id]
	if !ok {
		return Deposit{}, false
	}
	return *d, true
}
