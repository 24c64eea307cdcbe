package core

// bisection_game.go implements C5: the interactive binary search that
// narrows a disputed batch to a single execution step. Adapted from the
// teacher's core/state_channel.go dispute-round bookkeeping (turn
// alternation, per-move deadlines, timeout-as-forfeit) generalized from a
// two-party payment channel close to an N-step execution bisection.

import (
	"fmt"
)

// ChallengeParams bounds a single Challenge's bisection game.
type ChallengeParams struct {
	StepTimeout       uint64
	MaxBisectionDepth uint32
}

// OpenGame constructs the initial BisectionGame for a batch of n execution
// steps. firstMover is who submits the first midpoint — by convention the
// defender moves first, since the defender is the party asserting the
// disputed post-root is correct and narrows from their own claim.
func OpenGame(n StepIndex, firstMover Turn, now uint64, params ChallengeParams) (BisectionGame, error) {
	if n == 0 {
		return BisectionGame{}, fault(SystemFault, ErrInvariantBroken, "bisection game opened over zero-step batch")
	}
	return BisectionGame{
		Lo:       0,
		Hi:       n,
		Turn:     firstMover,
		Depth:    0,
		Deadline: now + params.StepTimeout,
	}, nil
}

// CheckTimeout reports whether the party-to-move has missed its deadline.
// If so, the opponent wins by default per spec §4.5 ("Timeouts").
func CheckTimeout(g *BisectionGame, now uint64) (loser Turn, timedOut bool) {
	if now > g.Deadline {
		return g.Turn, true
	}
	return 0, false
}

// SubmitMove records mover's claimed state root at the current bracket's
// midpoint. mover must match g.Turn; duplicate submissions for the same
// index are rejected per spec §4.5 invariant (b).
func SubmitMove(g *BisectionGame, mover Turn, submitter Addr, root StateRoot, now uint64) error {
	if loser, timedOut := CheckTimeout(g, now); timedOut {
		return fault(ProtocolFault, ErrTimeoutViolation, fmt.Sprintf("move deadline already passed for %v", loser))
	}
	if mover != g.Turn {
		return fault(UserFault, ErrUnauthorized, "not this party's turn")
	}
	mid := g.Mid()
	for _, s := range g.Steps {
		if s.Index == mid {
			return fault(ProtocolFault, ErrInvalidChallenge, "duplicate submission for this index")
		}
	}
	g.Steps = append(g.Steps, GameStep{
		Index:       mid,
		StateRoot:   root,
		Submitter:   submitter,
		SubmittedAt: now,
	})
	return nil
}

// Advance narrows the bracket to the half the responder chose and flips the
// turn, per spec §4.5's round protocol. chooseLowerHalf selects [lo, mid];
// otherwise the bracket becomes [mid, hi]. Advance must be called exactly
// once per round, immediately after the mover's SubmitMove for that round.
func Advance(g *BisectionGame, now uint64, chooseLowerHalf bool, params ChallengeParams) error {
	if len(g.Steps) == 0 {
		return fault(SystemFault, ErrInvariantBroken, "advance called before any move submitted")
	}
	mid := g.Steps[len(g.Steps)-1].Index
	if chooseLowerHalf {
		g.Hi = mid
	} else {
		g.Lo = mid
	}
	g.Turn = g.Turn.Other()
	g.Depth++
	g.Deadline = now + params.StepTimeout
	if g.Depth > params.MaxBisectionDepth {
		return fault(SystemFault, ErrInvariantBroken, "bisection exceeded max depth bound")
	}
	return nil
}

// InconsistentBracket reports whether a party's claimed endpoint roots
// contradict the bracket they are currently defending — e.g. a defender
// whose claimed final-post-root does not match the root they committed to
// at batch proposal. A party found inconsistent loses immediately (spec
// §4.5 edge cases).
func InconsistentBracket(claimedAtOpen StateRoot, claimedNow StateRoot) bool {
	return claimedAtOpen != claimedNow
}

// GameOutcome is the immutable result of a terminated BisectionGame.
type GameOutcome struct {
	Winner   Turn
	TimedOut bool
	Reason   string
}

// MaxBisectionDepth returns ceil(log2(n)), the bound spec §4.5 invariant
// (a) imposes on a game over n execution steps.
func MaxBisectionDepth(n StepIndex) uint32 {
	if n <= 1 {
		return 0
	}
	depth := uint32(0)
	steps := uint64(1)
	for steps < uint64(n) {
		steps *= 2
		depth++
	}
	return depth
}
