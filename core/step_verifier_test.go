package core

import (
	"crypto/ed25519"
	"testing"
)

func TestVerifyStepDefenderWinsOnHonestClaim(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 1

	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})
	preRoot := store.Root()

	senderProof := store.Proof(sender)
	recipientProof := store.Proof(recipient)
	senderAcc := store.Get(sender)
	recipientAcc := store.Get(recipient)

	tx := Transaction{Sender: sender, Recipient: recipient, Amount: 300, Nonce: 1, Expiry: 1000, Kind: Transfer}
	tx.Signature = Sign(priv, canonicalEncodeTx(&tx))

	if err := Apply(store, tx, reg.Verify, 10); err != nil {
		t.Fatalf("reference apply: %v", err)
	}
	honestPost := store.Root()
	badPost := Hash{0xDE, 0xAD}

	proofs := []AccountProof{
		{Addr: sender, Account: senderAcc, Proof: senderProof},
		{Addr: recipient, Account: recipientAcc, Proof: recipientProof},
	}

	outcome, winner := VerifyStep(preRoot, tx, honestPost, badPost, proofs, TurnChallenger, reg.Verify, 10, nil)
	if outcome != StepValid || winner != TurnDefender {
		t.Fatalf("expected defender to win with honest claim, got outcome=%v winner=%v", outcome, winner)
	}
}

func TestVerifyStepChallengerWinsWhenDefenderLied(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient Addr
	recipient[0] = 1

	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})
	preRoot := store.Root()
	senderProof := store.Proof(sender)
	recipientProof := store.Proof(recipient)
	senderAcc := store.Get(sender)
	recipientAcc := store.Get(recipient)

	tx := Transaction{Sender: sender, Recipient: recipient, Amount: 300, Nonce: 1, Expiry: 1000, Kind: Transfer}
	tx.Signature = Sign(priv, canonicalEncodeTx(&tx))
	if err := Apply(store, tx, reg.Verify, 10); err != nil {
		t.Fatalf("reference apply: %v", err)
	}
	honestPost := store.Root()
	defenderLie := Hash{0xBA, 0xD0}

	proofs := []AccountProof{
		{Addr: sender, Account: senderAcc, Proof: senderProof},
		{Addr: recipient, Account: recipientAcc, Proof: recipientProof},
	}

	outcome, winner := VerifyStep(preRoot, tx, defenderLie, honestPost, proofs, TurnChallenger, reg.Verify, 10, nil)
	if outcome != StepValid || winner != TurnChallenger {
		t.Fatalf("expected challenger to win, got outcome=%v winner=%v", outcome, winner)
	}
}

// TestVerifyStepHonestClaimSurvivesUntouchedAccount guards against folding
// the post-root from only the touched leaves: with a third, untouched,
// non-empty account present in the real tree, a defender's honestly
// recomputed root must still match, since its inclusion proof carries the
// unchanged rest-of-tree siblings needed to reconstruct the true root.
func TestVerifyStepHonestClaimSurvivesUntouchedAccount(t *testing.T) {
	reg := NewKeyRegistry()
	pub, priv, _ := ed25519.GenerateKey(nil)
	sender := reg.Register(pub)
	var recipient, bystander Addr
	recipient[0] = 1
	bystander[0] = 2

	store := NewStateStore(nil)
	store.Put(sender, Account{Balance: 1000})
	store.Put(bystander, Account{Balance: 4242})
	preRoot := store.Root()

	senderProof := store.Proof(sender)
	recipientProof := store.Proof(recipient)
	senderAcc := store.Get(sender)
	recipientAcc := store.Get(recipient)

	tx := Transaction{Sender: sender, Recipient: recipient, Amount: 300, Nonce: 1, Expiry: 1000, Kind: Transfer}
	tx.Signature = Sign(priv, canonicalEncodeTx(&tx))

	if err := Apply(store, tx, reg.Verify, 10); err != nil {
		t.Fatalf("reference apply: %v", err)
	}
	honestPost := store.Root()
	badPost := Hash{0xDE, 0xAD}

	proofs := []AccountProof{
		{Addr: sender, Account: senderAcc, Proof: senderProof},
		{Addr: recipient, Account: recipientAcc, Proof: recipientProof},
	}

	outcome, winner := VerifyStep(preRoot, tx, honestPost, badPost, proofs, TurnChallenger, reg.Verify, 10, nil)
	if outcome != StepValid || winner != TurnDefender {
		t.Fatalf("expected defender to win with honest claim despite an untouched account, got outcome=%v winner=%v", outcome, winner)
	}
}

func TestVerifyStepAbstainsOnMalformedProof(t *testing.T) {
	reg := NewKeyRegistry()
	store := NewStateStore(nil)
	var sender Addr
	sender[0] = 1
	store.Put(sender, Account{Balance: 1000})
	preRoot := store.Root()

	badProof := InclusionProof{Siblings: make([]Hash, smtDepth)}
	proofs := []AccountProof{{Addr: sender, Account: Account{Balance: 1000}, Proof: badProof}}

	tx := Transaction{Sender: sender, Amount: 1, Nonce: 1, Expiry: 1000, Kind: Transfer}
	outcome, winner := VerifyStep(preRoot, tx, Hash{1}, Hash{2}, proofs, TurnDefender, reg.Verify, 10, nil)
	if outcome != StepAbstain || winner != TurnChallenger {
		t.Fatalf("expected abstain favoring the non-submitting party, got outcome=%v winner=%v", outcome, winner)
	}
}
