package core

// relay.go implements C9: the ordered, idempotent cross-chain message
// queue. Adapted from the teacher's core/cross_chain.go message-id and
// status-tracking shape, with a bounded LRU in front of the persisted map
// for fast duplicate rejection — the replay-window supplement in
// SPEC_FULL.md §15.

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// RelayParams bounds L2->L1 gas usage.
type RelayParams struct {
	MaxGas   uint64
	MaxPrice uint64
}

// MessageRelay is C9's concrete implementation.
type MessageRelay struct {
	mu sync.Mutex

	messages        map[Hash]*CrossChainMessage
	recent          *lru.Cache[Hash, bool]
	lastHeightByDir map[Direction]uint64

	params RelayParams
	logger *log.Logger
}

// NewMessageRelay constructs an empty relay with a replay-window cache
// holding recentWindow entries.
func NewMessageRelay(params RelayParams, recentWindow int, logger *log.Logger) *MessageRelay {
	cache, err := lru.New[Hash, bool](recentWindow)
	if err != nil {
		cache, _ = lru.New[Hash, bool](1)
	}
	return &MessageRelay{
		messages:        make(map[Hash]*CrossChainMessage),
		recent:          cache,
		lastHeightByDir: make(map[Direction]uint64),
		params:          params,
		logger:          orDiscard(logger),
	}
}

// messageID computes spec §4.9's deterministic id:
// hash(direction || src || dst || payload || nonce).
func messageID(direction Direction, src, dst, payload []byte, nonce uint64) Hash {
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	return keccak256([]byte{byte(direction)}, src, dst, payload, nonceBuf[:])
}

// Send admits a new message. nonce must be the current head block number
// on the source chain, making id deterministic and replay-safe. For
// L2->L1 messages, gasLimit/gasPrice are checked against MAX_GAS/MAX_PRICE.
func (r *MessageRelay) Send(direction Direction, src, dst, payload []byte, nonce, gasLimit, gasPrice, now uint64) (Hash, error) {
	if direction == L2ToL1 {
		if gasLimit > r.params.MaxGas {
			return Hash{}, fault(UserFault, ErrAmountOutOfRange, "gas_limit exceeds MAX_GAS")
		}
		if gasPrice > r.params.MaxPrice {
			return Hash{}, fault(UserFault, ErrAmountOutOfRange, "gas_price exceeds MAX_PRICE")
		}
	}

	id := messageID(direction, src, dst, payload, nonce)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, hit := r.recent.Get(id); hit {
		return Hash{}, fault(UserFault, ErrDuplicateMessage, "message already seen in replay window")
	}
	if _, exists := r.messages[id]; exists {
		r.recent.Add(id, true)
		return Hash{}, fault(UserFault, ErrDuplicateMessage, "message already submitted")
	}

	r.messages[id] = &CrossChainMessage{
		ID:            id,
		Direction:     direction,
		Source:        src,
		Destination:   dst,
		Payload:       payload,
		GasLimit:      gasLimit,
		GasPrice:      gasPrice,
		SourceNonce:   nonce,
		SubmittedAt:   now,
		Status:        MsgPending,
		CorrelationID: uuid.New(),
	}
	r.recent.Add(id, true)
	return id, nil
}

// Confirm advances id from Pending to Confirmed.
func (r *MessageRelay) Confirm(id Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "confirm: unknown message")
	}
	if msg.Status != MsgPending {
		return fault(ProtocolFault, ErrIllegalStageTransition, "confirm: message not Pending")
	}
	msg.Status = MsgConfirmed
	return nil
}

// Finalize advances id from Confirmed to Finalized, recording the L1 tx
// hash that settled it. Finalization is only accepted in non-decreasing
// source-chain-height order per direction (P11): a message whose
// SourceNonce precedes the highest already-finalized height in its
// direction is rejected.
func (r *MessageRelay) Finalize(id Hash, l1TxHash Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "finalize: unknown message")
	}
	if msg.Status != MsgConfirmed {
		return fault(ProtocolFault, ErrIllegalStageTransition, "finalize: message not Confirmed")
	}
	if msg.SourceNonce < r.lastHeightByDir[msg.Direction] {
		return fault(ProtocolFault, ErrInvalidChallenge, "finalize: out of source-chain-height order")
	}
	msg.Status = MsgFinalized
	msg.L1TxHash = l1TxHash
	r.lastHeightByDir[msg.Direction] = msg.SourceNonce
	return nil
}

// Reject moves id to the terminal Rejected status from Pending or
// Confirmed, recording why.
func (r *MessageRelay) Reject(id Hash, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return fault(ProtocolFault, ErrNotFound, "reject: unknown message")
	}
	if msg.Status != MsgPending && msg.Status != MsgConfirmed {
		return fault(ProtocolFault, ErrIllegalStageTransition, "reject: message not in a rejectable status")
	}
	msg.Status = MsgRejected
	msg.RejectedWhy = reason
	return nil
}

// Message returns a copy of the message at id.
func (r *MessageRelay) Message(id Hash) (CrossChainMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return CrossChainMessage{}, false
	}
	return *msg, true
}
