package core

// system.go assembles every component into the single SystemState
// aggregate spec §9 calls for: "Global mutable state... represented as one
// SystemState aggregate owned by the top-level task; sub-components
// receive explicit references to the sub-state they need." Grounded on the
// teacher's top-level node struct in cmd/synnergy (now dropped, §14) that
// played the same composition-root role.

import (
	"context"

	"driftlayer-network/pkg/config"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SystemState owns every component and is the construction root a host
// runtime builds once at startup.
type SystemState struct {
	Store       *StateStore
	Keys        *KeyRegistry
	Validators  *ValidatorSet
	Builder     *BatchBuilder
	Finalizer   *FinalizationEngine
	Incentive   *IncentiveLedger
	Bridge      *Bridge
	Pool        *LiquidityPool
	Relay       *MessageRelay
	Envelope    *SecurityEnvelope

	ChallengeParams ChallengeParams

	logger *log.Logger
}

// NewSystemState wires every component per cfg, a mapping from L1 token
// addresses to their L2-mapped asset, and the validator addresses that
// form the ValidatorSet. logger is shared (as a discard-safe default if nil) across
// every component so a single sink sees the whole system's activity.
func NewSystemState(cfg *config.Config, assets AssetMapping, validatorAddrs []Addr, logger *log.Logger) *SystemState {
	logger = orDiscard(logger)
	store := NewStateStore(logger)
	keys := NewKeyRegistry()
	validators := NewValidatorSet(validatorAddrs, cfg.Validators.Threshold)

	incentive := NewIncentiveLedger(IncentiveParams{
		MinBond:                 cfg.Incentive.MinBond,
		RewardBps:               cfg.Incentive.RewardBps,
		PenaltyBps:              cfg.Incentive.PenaltyBps,
		DefenderBps:             cfg.Incentive.DefenderBps,
		SystemBps:               cfg.Incentive.SystemBps,
		MaxConcurrentChallenges: cfg.Incentive.MaxConcurrentChallenges,
	}, logger)

	finalizer := NewFinalizationEngine(FinalizationParams{
		QuorumBps:       cfg.Finalization.QuorumBps,
		ChallengeWindow: cfg.Finalization.ChallengeWindow,
		ForcedTimeout:   cfg.Finalization.ForcedTimeout,
	}, incentive.TotalActiveStake, validators.IsMember, logger)

	builder := NewBatchBuilder(store, keys.Verify, BatchPolicy{
		MaxBatchSize: cfg.Batch.MaxBatchSize,
		MinBatchAge:  cfg.Batch.MinBatchAge,
		MaxBatchAge:  cfg.Batch.MaxBatchAge,
	}, 1, logger)

	bridge := NewBridge(store, assets, BridgeParams{
		DelayPeriod:      cfg.Bridge.DelayPeriod,
		ChallengeWindow:  cfg.Finalization.ChallengeWindow,
		WithdrawalExpiry: cfg.Bridge.WithdrawalExpiry,
	}, logger)

	pool := NewLiquidityPool(cfg.Bridge.LiquidityFeeBps)

	relay := NewMessageRelay(RelayParams{
		MaxGas:   cfg.Bridge.MaxGas,
		MaxPrice: cfg.Bridge.MaxPrice,
	}, cfg.Bridge.RelayWindowSize, logger)

	envelope := NewSecurityEnvelope(EnvelopeParams{
		RateWindow:     cfg.Security.RateWindow,
		RateMax:        cfg.Security.RateMax,
		AmountWindow:   cfg.Security.AmountWindow,
		AmountMax:      cfg.Security.AmountMax,
		FrontRunWindow: cfg.Security.FrontRunWindow,
		NonceTTL:       cfg.Security.NonceTTL,
		MaxStoreSize:   cfg.Security.MaxStoreSize,
	}, validators, logger)

	return &SystemState{
		Store:      store,
		Keys:       keys,
		Validators: validators,
		Builder:    builder,
		Finalizer:  finalizer,
		Incentive:  incentive,
		Bridge:     bridge,
		Pool:       pool,
		Relay:      relay,
		Envelope:   envelope,
		ChallengeParams: ChallengeParams{
			StepTimeout:       cfg.Bisection.StepTimeout,
			MaxBisectionDepth: cfg.Bisection.MaxBisectionDepth,
		},
		logger: logger,
	}
}

// TickAll drives every time-based subsystem forward: finalization
// checkpoint transitions and bridge withdrawal maturation. The
// finalization sweep runs as the only goroutine of an errgroup derived
// from ctx (neither sweep consults the context). Bridge maturation runs
// after finalization completes, since a withdrawal's Ready transition
// depends on its batch's checkpoint having already reached Finalized this
// tick.
func (s *SystemState) TickAll(ctx context.Context, now uint64) (finalized []CheckpointID, withdrawalsAdvanced []Hash, err error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		finalized = s.Finalizer.Tick(now)
		for _, id := range finalized {
			if cp, ok := s.Finalizer.Get(id); ok && (cp.Stage == Finalized || cp.Stage == ForcedFinalized) {
				s.Bridge.MarkBatchFinalized(cp.BatchID)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	withdrawalsAdvanced = s.Bridge.Tick(now)
	return finalized, withdrawalsAdvanced, nil
}
