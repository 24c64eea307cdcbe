package core

// step_verifier.go implements C6: given the single execution step a
// bisection game has converged on, recompute the honest post-root from
// Merkle-proven leaves and decide which party's claim matches it. Grounded
// on the teacher's proof-replay pattern in core/merkle_tree_operations.go
// (rebuild a subtree from sibling hashes and compare roots) generalized to
// drive the transition function instead of a plain hash comparison.

import log "github.com/sirupsen/logrus"

// StepOutcome is the Step Verifier's adjudication of one disputed step.
type StepOutcome uint8

const (
	StepValid StepOutcome = iota + 1
	StepInvalid
	StepAbstain
)

func (o StepOutcome) String() string {
	switch o {
	case StepValid:
		return "valid"
	case StepInvalid:
		return "invalid"
	case StepAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// AccountProof bundles one account's pre-state value with its inclusion
// proof against the disputed step's pre_root.
type AccountProof struct {
	Addr    Addr
	Account Account
	Proof   InclusionProof
}

// VerifyStep runs spec §4.6's procedure: it verifies every supplied account
// proof against preRoot, runs the Transition Function over an ephemeral view
// of just those proven leaves, then folds each leaf's new value back up
// through its own inclusion proof to recompute the true post-root — not the
// root of the ephemeral view itself, which omits every untouched account —
// and compares that against both parties' claims. proofSubmitter identifies
// who supplied the account proofs, so a malformed-proof Abstain can be
// resolved against them — spec §4.6 treats Abstain as a loss for whoever
// submitted the proofs.
func VerifyStep(
	preRoot StateRoot,
	tx Transaction,
	defenderPostRoot, challengerPostRoot StateRoot,
	proofs []AccountProof,
	proofSubmitter Turn,
	verify SignatureVerifier,
	now uint64,
	logger *log.Logger,
) (StepOutcome, Turn) {
	logger = orDiscard(logger)

	for _, p := range proofs {
		if !Verify(preRoot, p.Addr, p.Account, p.Proof) {
			logger.WithField("addr", p.Addr.Hex()).Warn("step verifier: malformed inclusion proof")
			return StepAbstain, proofSubmitter.Other()
		}
	}

	view := NewStateStore(nil)
	keys := make([]Hash, 0, len(proofs))
	siblingsByKey := make(map[Hash][]Hash, len(proofs))
	for _, p := range proofs {
		view.Put(p.Addr, p.Account)
		k := smtKey(p.Addr)
		keys = append(keys, k)
		siblingsByKey[k] = p.Proof.Siblings
	}

	honestRoot := preRoot
	if err := Apply(view, tx, verify, now); err == nil {
		// Fold each touched leaf's post-Apply value up through its own
		// InclusionProof.Siblings instead of treating view as the whole
		// tree: view only holds the accounts named in proofs, and an SMT
		// root commits the full account mapping, so any other non-empty
		// account in the real tree would otherwise make an honest
		// defender's claim look wrong.
		updated := make(map[Hash]Account, len(proofs))
		for _, p := range proofs {
			updated[smtKey(p.Addr)] = view.Get(p.Addr)
		}
		honestRoot = smtFoldRoot(keys, updated, siblingsByKey, 0)
	}
	// A TxError leaves the view unchanged, so the honest root for a
	// correctly-rejected tx is the pre_root itself — a defender or
	// challenger claiming otherwise loses exactly as if they had
	// mis-executed a valid tx.

	switch honestRoot {
	case defenderPostRoot:
		return StepValid, TurnDefender
	case challengerPostRoot:
		return StepValid, TurnChallenger
	default:
		// Neither party's claim matches honest re-execution: this can
		// only happen if both are dishonest, which a well-formed game
		// (spec §4.6) rules out. We still must return a determinate
		// result, so the defender — the party carrying the burden of
		// having proposed the batch — is treated as having lost.
		logger.Warn("step verifier: neither claimed root matches honest recomputation")
		return StepInvalid, TurnChallenger
	}
}
