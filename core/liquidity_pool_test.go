package core

import "testing"

func TestLiquidityPoolProRataDrawDown(t *testing.T) {
	p := NewLiquidityPool(100) // 1% fee
	var asset AddrL1
	asset[0] = 1
	var p1, p2 Addr
	p1[0], p2[0] = 1, 2

	p.Deposit(asset, p1, 600)
	p.Deposit(asset, p2, 400)
	if got := p.TotalLiquidity(asset); got != 1000 {
		t.Fatalf("total = %d, want 1000", got)
	}

	payout, fee, err := p.Payout(asset, 500)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	wantFee := uint64(500 * 100 / 10_000)
	if fee != wantFee {
		t.Fatalf("fee = %d, want %d", fee, wantFee)
	}
	if payout != 500-wantFee {
		t.Fatalf("payout = %d, want %d", payout, 500-wantFee)
	}

	// invariant: total == sum(provider balances) after a pro-rata draw-down.
	if got := p.TotalLiquidity(asset); got != 1000-500 {
		t.Fatalf("total after draw-down = %d, want %d", got, 1000-500)
	}
}

func TestLiquidityPoolInsufficientLiquidity(t *testing.T) {
	p := NewLiquidityPool(100)
	var asset AddrL1
	asset[0] = 1
	var provider Addr
	provider[0] = 1
	p.Deposit(asset, provider, 100)

	if _, _, err := p.Payout(asset, 500); err == nil {
		t.Fatal("expected error paying out more than available liquidity")
	}
}

func TestLiquidityPoolFeeClaimProRata(t *testing.T) {
	p := NewLiquidityPool(1000) // 10% fee, easy to check
	var asset AddrL1
	asset[0] = 1
	var p1, p2 Addr
	p1[0], p2[0] = 1, 2
	p.Deposit(asset, p1, 750)
	p.Deposit(asset, p2, 250)

	if _, _, err := p.Payout(asset, 400); err != nil {
		t.Fatalf("payout: %v", err)
	}
	accrued := p.FeesAccrued(asset)
	if accrued == 0 {
		t.Fatal("expected nonzero accrued fee")
	}

	share1, err := p.ClaimWithdrawal(asset, p1)
	if err != nil {
		t.Fatalf("claim p1: %v", err)
	}
	// p1 held 75% of liquidity at payout time.
	wantShare1 := accrued * 750 / 1000
	if share1 != wantShare1 {
		t.Fatalf("share1 = %d, want %d", share1, wantShare1)
	}
	if got := p.FeesAccrued(asset); got != accrued-share1 {
		t.Fatalf("remaining accrued = %d, want %d", got, accrued-share1)
	}
}

func TestLiquidityPoolClaimUnknownProvider(t *testing.T) {
	p := NewLiquidityPool(100)
	var asset AddrL1
	asset[0] = 1
	var provider, stranger Addr
	provider[0], stranger[0] = 1, 2
	p.Deposit(asset, provider, 1000)

	if _, err := p.ClaimWithdrawal(asset, stranger); err == nil {
		t.Fatal("expected error claiming with no liquidity position")
	}
}
