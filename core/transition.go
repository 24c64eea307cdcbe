package core

// transition.go implements C2: the pure state-transition function. It never
// performs I/O, reads a clock, or consults randomness beyond what the
// caller already embedded in the Transaction — the only impurity is the
// mutation of the StateStore view it is handed, which is exactly the
// "mutable transactional view" spec §3 describes (ownership transfer, not a
// side channel).

// TxError pairs a Transaction-level failure with the spec §4.2 failure
// taxonomy. All members are recoverable: the caller discards the offending
// tx and the view is left unchanged.
type TxError struct {
	Kind ErrorKind
	Err  error
}

func (e *TxError) Error() string { return e.Err.Error() }
func (e *TxError) Unwrap() error { return e.Err }

func txErr(err error) *TxError { return &TxError{Kind: UserFault, Err: err} }

// SignatureVerifier checks that sig authenticates msg for addr. Supplied by
// the caller (the keyring in security.go) so the transition function stays
// free of key-management concerns.
type SignatureVerifier func(addr Addr, msg, sig []byte) bool

// Apply executes a single transaction against store, per spec §4.2. kind
// determines which invariants are checked: Transfer and Withdraw require an
// authentic, non-expired, correctly-nonced signature from sender; Deposit
// is the bridge's synthetic mint and is never signature-checked here — the
// Bridge component (bridge.go) is the only caller allowed to construct one,
// exactly as spec §4.2 says ("accepts only from the bridge").
func Apply(store *StateStore, tx Transaction, verify SignatureVerifier, nowTs uint64) error {
	switch tx.Kind {
	case Transfer:
		return applyTransfer(store, tx, verify, nowTs)
	case Deposit:
		return applyDeposit(store, tx)
	case Withdraw:
		return applyWithdraw(store, tx, verify, nowTs)
	default:
		return txErr(ErrUnknownKind)
	}
}

func applyTransfer(store *StateStore, tx Transaction, verify SignatureVerifier, nowTs uint64) error {
	if tx.Sender == tx.Recipient {
		return txErr(ErrSenderEqualsRecipient)
	}
	if tx.Amount == 0 {
		return txErr(ErrAmountZero)
	}
	if nowTs > tx.Expiry {
		return txErr(ErrExpired)
	}
	if !verify(tx.Sender, canonicalEncodeTx(&tx), tx.Signature) {
		return txErr(ErrInvalidSignature)
	}
	sender := store.Get(tx.Sender)
	if tx.Nonce != sender.Nonce+1 {
		return txErr(ErrNonceMismatch)
	}
	if sender.Balance < tx.Amount {
		return txErr(ErrInsufficientBalance)
	}
	newSenderBalance := sender.Balance - tx.Amount
	if newSenderBalance > sender.Balance {
		return txErr(ErrOverflow)
	}
	recipient := store.Get(tx.Recipient)
	newRecipientBalance := recipient.Balance + tx.Amount
	if newRecipientBalance < recipient.Balance {
		return txErr(ErrOverflow)
	}
	sender.Balance = newSenderBalance
	sender.Nonce = tx.Nonce
	recipient.Balance = newRecipientBalance
	store.Put(tx.Sender, sender)
	store.Put(tx.Recipient, recipient)
	return nil
}

// applyDeposit credits tx.Recipient with tx.Amount and bumps its nonce; it
// performs no debit and no signature check (spec §4.2).
func applyDeposit(store *StateStore, tx Transaction) error {
	if tx.Amount == 0 {
		return txErr(ErrAmountZero)
	}
	recipient := store.Get(tx.Recipient)
	newBalance := recipient.Balance + tx.Amount
	if newBalance < recipient.Balance {
		return txErr(ErrOverflow)
	}
	recipient.Balance = newBalance
	recipient.Nonce++
	store.Put(tx.Recipient, recipient)
	return nil
}

// applyWithdraw debits tx.Sender. The caller (Bridge, C8) is responsible
// for recording the resulting WithdrawalRequest keyed by tx.Hash() — the
// transition function itself only mutates balances, matching spec §4.2's
// framing of the withdrawal event as something the caller "emits", not
// something the pure function persists.
func applyWithdraw(store *StateStore, tx Transaction, verify SignatureVerifier, nowTs uint64) error {
	if tx.Amount == 0 {
		return txErr(ErrAmountZero)
	}
	if nowTs > tx.Expiry {
		return txErr(ErrExpired)
	}
	if !verify(tx.Sender, canonicalEncodeTx(&tx), tx.Signature) {
		return txErr(ErrInvalidSignature)
	}
	sender := store.Get(tx.Sender)
	if tx.Nonce != sender.Nonce+1 {
		return txErr(ErrNonceMismatch)
	}
	if sender.Balance < tx.Amount {
		return txErr(ErrInsufficientBalance)
	}
	sender.Balance -= tx.Amount
	sender.Nonce = tx.Nonce
	store.Put(tx.Sender, sender)
	return nil
}

// Fold applies txs in order against store, stopping at the first error and
// returning the index of the failing tx (or -1 if all succeeded). This is
// the building block P1 (determinism) is tested against: two independent
// folds of the same (state, txs) always reach the same root.
func Fold(store *StateStore, txs []Transaction, verify SignatureVerifier, nowTs uint64) (failedAt int, err error) {
	for i, tx := range txs {
		if err := Apply(store, tx, verify, nowTs); err != nil {
			return i, err
		}
	}
	return -1, nil
}
