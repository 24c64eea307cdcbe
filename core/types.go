// Package core implements the rollup state-transition pipeline, the
// interactive fraud-proof protocol, the asset bridge state machine and the
// security envelope that binds them together. It is deliberately one wide
// package, mirroring the teacher codebase this was grown from: the pieces
// are too tightly coupled (a challenge resolution touches the incentive
// ledger, the finalization engine and the bridge in one call) to gain
// anything from splitting across import boundaries.
package core

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

//---------------------------------------------------------------------
// Addresses & hashes
//---------------------------------------------------------------------

// Addr is an opaque 32-byte identifier for an L2 account.
type Addr [32]byte

// AddrL1 is the 20-byte address format used by the host L1 chain.
type AddrL1 [20]byte

// Hash is a 32-byte digest. StateRoot, transaction hashes and message ids
// are all Hash values produced by Keccak-256 (see merkle.go).
type Hash [32]byte

func (a Addr) Hex() string   { return "0x" + hex.EncodeToString(a[:]) }
func (a AddrL1) Hex() string { return "0x" + hex.EncodeToString(a[:]) }
func (h Hash) Hex() string   { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool  { return h == Hash{} }

// StateRoot commits the full account mapping of the State Store.
type StateRoot = Hash

//---------------------------------------------------------------------
// Account
//---------------------------------------------------------------------

// Account is the State Store's leaf value. Balance is non-negative; Nonce
// is strictly monotonic per sender.
type Account struct {
	Addr    Addr   `json:"addr"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

//---------------------------------------------------------------------
// Transaction
//---------------------------------------------------------------------

// TxKind distinguishes the three transaction shapes the transition
// function understands.
type TxKind uint8

const (
	Transfer TxKind = iota + 1
	Deposit
	Withdraw
)

func (k TxKind) String() string {
	switch k {
	case Transfer:
		return "transfer"
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Transaction is the unit of execution the Transition Function consumes.
type Transaction struct {
	Sender    Addr   `json:"sender"`
	Recipient Addr   `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Expiry    uint64 `json:"expiry"`
	Kind      TxKind `json:"kind"`
	Payload   []byte `json:"payload,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// Hash returns the canonical Keccak-256 digest of the transaction, computed
// over its RLP-canonical encoding (see canonicalEncodeTx in merkle.go). This
// is the tx_hash referenced by WithdrawalRequest and the Merkle tree of a
// Batch.
func (tx *Transaction) Hash() Hash {
	return keccak256(canonicalEncodeTx(tx))
}

//---------------------------------------------------------------------
// Batch
//---------------------------------------------------------------------

// Batch is the unit the Batch Builder produces and the Finalization Engine
// tracks through its dispute lifecycle.
type Batch struct {
	ID            uint64        `json:"id"`
	Sequencer     Addr          `json:"sequencer"`
	Txs           []Transaction `json:"txs"`
	PreRoot       StateRoot     `json:"pre_root"`
	PostRoot      StateRoot     `json:"post_root"`
	CreatedAt     uint64        `json:"created_at"`
	Expiry        uint64        `json:"expiry"`
	MerkleRootTxs Hash          `json:"merkle_root_txs"`
}

//---------------------------------------------------------------------
// Checkpoint / finalization
//---------------------------------------------------------------------

// Stage is a Checkpoint's position in the finalization state machine.
type Stage uint8

const (
	Proposed Stage = iota + 1
	Confirmed
	InChallenge
	Finalized
	ForcedFinalized
	Rejected
)

func (s Stage) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case Confirmed:
		return "confirmed"
	case InChallenge:
		return "in_challenge"
	case Finalized:
		return "finalized"
	case ForcedFinalized:
		return "forced_finalized"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// CheckpointID identifies a Checkpoint; checkpoints are totally ordered by
// this value.
type CheckpointID uint64

// Checkpoint is the finalization unit: it points at a Batch and tracks its
// stage through the confirmation/challenge window.
type Checkpoint struct {
	ID          CheckpointID          `json:"id"`
	BatchID     uint64                `json:"batch_id"`
	StateRoot   StateRoot             `json:"state_root"`
	BlockHeight uint64                `json:"block_height"`
	Proposer    Addr                  `json:"proposer"`
	CreatedAt   uint64                `json:"created_at"`
	Stage       Stage                 `json:"stage"`
	Votes       map[Addr]uint64       `json:"votes"`
	Challenges  map[ChallengeID]bool  `json:"challenges"`
	ConfirmedAt uint64                `json:"confirmed_at,omitempty"`
}

//---------------------------------------------------------------------
// Challenge / bisection game
//---------------------------------------------------------------------

// ChallengeID identifies a Challenge.
type ChallengeID uint64

// ChallengeStatus is the terminal/non-terminal state of a Challenge.
type ChallengeStatus uint8

const (
	ChallengeActive ChallengeStatus = iota + 1
	ChallengeChallengerWon
	ChallengeDefenderWon
	ChallengeTimeout
	ChallengeWithdrawn
	ChallengeExpired
)

// Turn identifies whose move it is in a BisectionGame round.
type Turn uint8

const (
	TurnChallenger Turn = iota + 1
	TurnDefender
)

func (t Turn) Other() Turn {
	if t == TurnChallenger {
		return TurnDefender
	}
	return TurnChallenger
}

// StepIndex indexes a single execution step inside a batch, in [0, N].
type StepIndex uint32

// GameStep is one committed state root at a given index, submitted by one
// of the two parties.
type GameStep struct {
	Index       StepIndex `json:"index"`
	StateRoot   StateRoot `json:"state_root"`
	Submitter   Addr      `json:"submitter"`
	SubmittedAt uint64    `json:"submitted_at"`
}

// BisectionGame is the interactive binary search narrowing a dispute to a
// single execution step.
type BisectionGame struct {
	Lo       StepIndex  `json:"lo"`
	Hi       StepIndex  `json:"hi"`
	Steps    []GameStep `json:"steps"`
	Turn     Turn       `json:"turn"`
	Depth    uint32     `json:"depth"`
	Deadline uint64     `json:"deadline"`
}

// Mid returns the midpoint of the current bracket per the round protocol.
func (g *BisectionGame) Mid() StepIndex {
	return g.Lo + (g.Hi-g.Lo)/2
}

// Converged reports whether the bracket has narrowed to a single step.
func (g *BisectionGame) Converged() bool { return g.Hi-g.Lo == 1 }

// Challenge is a disputed Checkpoint's bisection game plus its economic
// stake.
type Challenge struct {
	ID           ChallengeID     `json:"id"`
	Checkpoint   CheckpointID    `json:"checkpoint"`
	Challenger   Addr            `json:"challenger"`
	Bond         uint64          `json:"bond"`
	ClaimedPre   StateRoot       `json:"claimed_pre"`
	ClaimedPost  StateRoot       `json:"claimed_post"`
	Game         BisectionGame   `json:"game"`
	Status       ChallengeStatus `json:"status"`
	Defender     Addr            `json:"defender"`
	BatchID      uint64          `json:"batch_id"`
	DecidedStep  StepIndex       `json:"decided_step,omitempty"`
	DecidedAt    uint64          `json:"decided_at,omitempty"`
	DecisionNote string          `json:"decision_note,omitempty"`
}

//---------------------------------------------------------------------
// Bridge: deposits, withdrawals, messages
//---------------------------------------------------------------------

// Deposit is an L1->L2 mint request, deduplicated by ID.
type Deposit struct {
	ID            Hash      `json:"id"`
	SenderL1      AddrL1    `json:"sender_l1"`
	TokenL1       AddrL1    `json:"token_l1"`
	Amount        uint64    `json:"amount"`
	RecipientL2   Addr      `json:"recipient_l2"`
	Processed     bool      `json:"processed"`
	CorrelationID uuid.UUID `json:"correlation_id,omitempty"`
}

// WithdrawalStage is a WithdrawalRequest's position in the delayed-exit
// state machine.
type WithdrawalStage uint8

const (
	WithdrawPending WithdrawalStage = iota + 1
	WithdrawDelayElapsed
	WithdrawInChallenge
	WithdrawReady
	WithdrawExecuted
	WithdrawRejected
)

func (s WithdrawalStage) String() string {
	switch s {
	case WithdrawPending:
		return "pending"
	case WithdrawDelayElapsed:
		return "delay_elapsed"
	case WithdrawInChallenge:
		return "in_challenge"
	case WithdrawReady:
		return "ready"
	case WithdrawExecuted:
		return "executed"
	case WithdrawRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// WithdrawalRequest tracks one L2->L1 exit from debit to L1 release.
type WithdrawalRequest struct {
	TxHash        Hash            `json:"tx_hash"`
	Sender        Addr            `json:"sender"`
	Asset         AddrL1          `json:"asset"`
	Amount        uint64          `json:"amount"`
	RecipientL1   AddrL1          `json:"recipient_l1"`
	RequestedAt   uint64          `json:"requested_at"`
	BatchID       uint64          `json:"batch_id"`
	Stage         WithdrawalStage `json:"stage"`
	ReadyAt       uint64          `json:"ready_at,omitempty"`
	ExecutedAt    uint64          `json:"executed_at,omitempty"`
	SoldToLP      bool            `json:"sold_to_lp,omitempty"`
	LPProvider    Addr            `json:"lp_provider,omitempty"`
	CorrelationID uuid.UUID       `json:"correlation_id,omitempty"`
}

// Direction is the side a CrossChainMessage travels.
type Direction uint8

const (
	L1ToL2 Direction = iota
	L2ToL1
)

// MessageStatus is a CrossChainMessage's position in the forward-only
// status lattice.
type MessageStatus uint8

const (
	MsgPending MessageStatus = iota + 1
	MsgConfirmed
	MsgFinalized
	MsgRejected
)

func (s MessageStatus) String() string {
	switch s {
	case MsgPending:
		return "pending"
	case MsgConfirmed:
		return "confirmed"
	case MsgFinalized:
		return "finalized"
	case MsgRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// CrossChainMessage is one entry in the ordered, idempotent Message Relay.
type CrossChainMessage struct {
	ID            Hash          `json:"id"`
	Direction     Direction     `json:"direction"`
	Source        []byte        `json:"source"`
	Destination   []byte        `json:"destination"`
	Payload       []byte        `json:"payload"`
	GasLimit      uint64        `json:"gas_limit,omitempty"`
	GasPrice      uint64        `json:"gas_price,omitempty"`
	SourceNonce   uint64        `json:"source_nonce"`
	SubmittedAt   uint64        `json:"submitted_at"`
	Status        MessageStatus `json:"status"`
	L1TxHash      Hash          `json:"l1_tx_hash,omitempty"`
	RejectedWhy   string        `json:"rejected_why,omitempty"`
	CorrelationID uuid.UUID     `json:"correlation_id,omitempty"`
}

//---------------------------------------------------------------------
// Nonce store
//---------------------------------------------------------------------

// nonceEntry is one (nonce, timestamp) pair in a sender's sliding replay
// window.
type nonceEntry struct {
	nonce uint64
	at    int64
}

//---------------------------------------------------------------------
// Misc
//---------------------------------------------------------------------

// nowFn is the wall-clock source behind unixNow, which BatchBuilder.Enqueue
// uses to stamp a queue's open time; tests can substitute a fake clock.
// Other components take the current time as a now argument.
var nowFn = func() time.Time { return time.Now().UTC() }

func unixNow() uint64 { return uint64(nowFn().Unix()) }
