package core

import (
	"crypto/ed25519"
	"testing"
)

func mustSign(t *testing.T, reg *KeyRegistry, priv ed25519.PrivateKey, tx *Transaction) {
	t.Helper()
	tx.Signature = Sign(priv, canonicalEncodeTx(tx))
}

func newSignedTx(t *testing.T, reg *KeyRegistry, priv ed25519.PrivateKey, sender, recipient Addr, amount, nonce, expiry uint64) Transaction {
	t.Helper()
	tx := Transaction{Sender: sender, Recipient: recipient, Amount: amount, Nonce: nonce, Expiry: expiry, Kind: Transfer}
	mustSign(t, reg, priv, &tx)
	return tx
}

func TestApplyTransferHappyPath(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 0xAA

	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})

	tx := newSignedTx(t, reg, priv, sender, recipient, 300, 1, 1000)
	if err := Apply(store, tx, reg.Verify, 10); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := store.Get(sender); got.Balance != 700 || got.Nonce != 1 {
		t.Fatalf("sender state wrong: %+v", got)
	}
	if got := store.Get(recipient); got.Balance != 300 {
		t.Fatalf("recipient balance wrong: %+v", got)
	}
}

func TestApplyTransferInsufficientBalance(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 0xAA

	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 50})

	tx := newSignedTx(t, reg, priv, sender, recipient, 100, 1, 1000)
	err := Apply(store, tx, reg.Verify, 10)
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if got := store.Get(sender); got.Nonce != 0 {
		t.Fatalf("expected sender nonce unchanged, got %d", got.Nonce)
	}
}

func TestApplyTransferNonceMismatchOnReplay(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 0xAA

	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})

	tx := newSignedTx(t, reg, priv, sender, recipient, 300, 1, 1000)
	if err := Apply(store, tx, reg.Verify, 10); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	before := store.Get(sender)

	if err := Apply(store, tx, reg.Verify, 10); err == nil {
		t.Fatal("expected nonce mismatch on replay")
	}
	after := store.Get(sender)
	if before != after {
		t.Fatalf("expected state unchanged after rejected replay: %+v vs %+v", before, after)
	}
}

func TestApplyTransferSenderEqualsRecipient(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})

	tx := newSignedTx(t, reg, priv, sender, sender, 100, 1, 1000)
	if err := Apply(store, tx, reg.Verify, 10); err == nil {
		t.Fatal("expected sender==recipient error")
	}
}

func TestApplyTransferExpired(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 1
	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})

	tx := newSignedTx(t, reg, priv, sender, recipient, 100, 1, 5)
	if err := Apply(store, tx, reg.Verify, 10); err == nil {
		t.Fatal("expected expired error")
	}
}

func TestApplyTransferBadSignature(t *testing.T) {
	reg := NewKeyRegistry()
	pub, _, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 1
	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})

	tx := Transaction{Sender: sender, Recipient: recipient, Amount: 100, Nonce: 1, Expiry: 1000, Kind: Transfer, Signature: []byte("garbage")}
	if err := Apply(store, tx, reg.Verify, 10); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestApplyDepositCreditsWithoutDebit(t *testing.T) {
	store := NewStateStore(nil)
	var recipient Addr
	recipient[0] = 7
	tx := Transaction{Recipient: recipient, Amount: 500, Kind: Deposit}
	if err := Apply(store, tx, nil, 0); err != nil {
		t.Fatalf("apply deposit: %v", err)
	}
	if got := store.Get(recipient); got.Balance != 500 || got.Nonce != 1 {
		t.Fatalf("unexpected recipient state: %+v", got)
	}
}

func TestApplyWithdrawDebitsSender(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})

	var l1recipient Addr
	tx := Transaction{Sender: sender, Recipient: l1recipient, Amount: 200, Nonce: 1, Expiry: 1000, Kind: Withdraw}
	mustSign(t, reg, priv, &tx)

	if err := Apply(store, tx, reg.Verify, 10); err != nil {
		t.Fatalf("apply withdraw: %v", err)
	}
	if got := store.Get(sender); got.Balance != 800 {
		t.Fatalf("expected debit, got %+v", got)
	}
}

func TestFoldDeterminism(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var r1, r2 Addr
	r1[0], r2[0] = 1, 2

	mkTxs := func() []Transaction {
		return []Transaction{
			newSignedTx(t, reg, priv, sender, r1, 100, 1, 1000),
			newSignedTx(t, reg, priv, sender, r2, 50, 2, 1000),
		}
	}

	s1 := NewStateStore(nil)
	s1.Put(sender, Account{Balance: 1000})
	s2 := NewStateStore(nil)
	s2.Put(sender, Account{Balance: 1000})

	if _, err := Fold(s1, mkTxs(), reg.Verify, 10); err != nil {
		t.Fatalf("fold 1: %v", err)
	}
	if _, err := Fold(s2, mkTxs(), reg.Verify, 10); err != nil {
		t.Fatalf("fold 2: %v", err)
	}
	if s1.Root() != s2.Root() {
		t.Fatal("expected identical folds to reach identical roots (P1)")
	}
}
