package core

// liquidity_pool.go implements C8's optional instant-withdrawal path: a
// liquidity provider fronts a pending withdrawal's payout immediately,
// minus a fee, and claims the delayed withdrawal itself once it matures.
// Grounded on the teacher's core/escrow.go pro-rata payout bookkeeping,
// with feesAccrued tracked separately from principal per the liquidity
// pool supplement in SPEC_FULL.md §15.

import "sync"

// LiquidityPool holds per-asset provider liquidity and fee accrual for
// instant withdrawals.
type LiquidityPool struct {
	mu sync.Mutex

	liquidity map[AddrL1]map[Addr]uint64 // asset -> provider -> amount
	totals    map[AddrL1]uint64
	accrued   map[AddrL1]uint64

	feeBps uint64
}

// NewLiquidityPool constructs an empty pool charging feeBps (of 10,000) on
// every instant payout.
func NewLiquidityPool(feeBps uint64) *LiquidityPool {
	return &LiquidityPool{
		liquidity: make(map[AddrL1]map[Addr]uint64),
		totals:    make(map[AddrL1]uint64),
		accrued:   make(map[AddrL1]uint64),
		feeBps:    feeBps,
	}
}

// Deposit adds provider liquidity for asset.
func (p *LiquidityPool) Deposit(asset AddrL1, provider Addr, amount uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.liquidity[asset] == nil {
		p.liquidity[asset] = make(map[Addr]uint64)
	}
	p.liquidity[asset][provider] += amount
	p.totals[asset] += amount
}

// TotalLiquidity reports asset's pool balance — invariant:
// total == sum(provider.liquidity).
func (p *LiquidityPool) TotalLiquidity(asset AddrL1) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals[asset]
}

// FeesAccrued reports asset's accumulated, not-yet-distributed fee pool.
func (p *LiquidityPool) FeesAccrued(asset AddrL1) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accrued[asset]
}

// Payout fronts amount-minus-fee to the withdrawing user, drawing it down
// from every provider in asset's pool pro rata to their liquidity share
// (see drawDownLocked) rather than from any single provider — the pool is
// fungible, so every provider's balance shrinks by the same proportion
// regardless of which withdrawal funded it.
func (p *LiquidityPool) Payout(asset AddrL1, amount uint64) (payout uint64, fee uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totals[asset] < amount {
		return 0, 0, fault(UserFault, ErrInsufficientBalance, "insufficient pool liquidity")
	}
	fee = amount * p.feeBps / 10_000
	payout = amount - fee

	p.distributeFeeLocked(asset, fee)
	p.drawDownLocked(asset, amount)
	return payout, fee, nil
}

// drawDownLocked removes amount from the pool pro rata across providers,
// preserving each provider's liquidity share.
func (p *LiquidityPool) drawDownLocked(asset AddrL1, amount uint64) {
	total := p.totals[asset]
	if total == 0 {
		return
	}
	var removed uint64
	providers := p.liquidity[asset]
	for provider, bal := range providers {
		share := bal * amount / total
		providers[provider] -= share
		removed += share
	}
	p.totals[asset] -= removed
}

// distributeFeeLocked credits fee to asset's accrued pool, claimable pro
// rata to liquidity share at the next Claim.
func (p *LiquidityPool) distributeFeeLocked(asset AddrL1, fee uint64) {
	p.accrued[asset] += fee
}

// ClaimWithdrawal settles an LP's fronted withdrawal once it reaches Ready:
// the LP receives the withdrawal's underlying funds on L1 (outside this
// pool's bookkeeping — a host-runtime release) and their pro-rata share of
// the accrued fee is paid out and zeroed from the accrual pool.
func (p *LiquidityPool) ClaimWithdrawal(asset AddrL1, provider Addr) (feeShare uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.totals[asset]
	if total == 0 {
		return 0, fault(ProtocolFault, ErrInvariantBroken, "no liquidity recorded for asset")
	}
	bal, ok := p.liquidity[asset][provider]
	if !ok {
		return 0, fault(UserFault, ErrUnauthorized, "provider has no liquidity position")
	}
	feeShare = p.accrued[asset] * bal / total
	p.accrued[asset] -= feeShare
	return feeShare, nil
}
