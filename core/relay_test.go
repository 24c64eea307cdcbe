package core

import "testing"

func TestMessageRelaySendIsDeterministic(t *testing.T) {
	r := NewMessageRelay(RelayParams{MaxGas: 1_000_000, MaxPrice: 100}, 16, nil)
	id1, err := r.Send(L1ToL2, []byte("src"), []byte("dst"), []byte("payload"), 1, 0, 0, 0)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	want := messageID(L1ToL2, []byte("src"), []byte("dst"), []byte("payload"), 1)
	if id1 != want {
		t.Fatalf("id = %v, want deterministic %v", id1, want)
	}
}

func TestMessageRelayGasBoundsEnforced(t *testing.T) {
	r := NewMessageRelay(RelayParams{MaxGas: 100, MaxPrice: 10}, 16, nil)
	if _, err := r.Send(L2ToL1, nil, nil, nil, 1, 200, 5, 0); err == nil {
		t.Fatal("expected gas_limit over MAX_GAS to be rejected")
	}
	if _, err := r.Send(L2ToL1, nil, nil, nil, 1, 50, 50, 0); err == nil {
		t.Fatal("expected gas_price over MAX_PRICE to be rejected")
	}
}

func TestMessageRelayStatusLatticeForwardOnly(t *testing.T) {
	r := NewMessageRelay(RelayParams{MaxGas: 1000, MaxPrice: 100}, 16, nil)
	id, err := r.Send(L1ToL2, []byte("a"), []byte("b"), []byte("p"), 1, 0, 0, 0)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := r.Finalize(id, Hash{1}); err == nil {
		t.Fatal("expected finalize before confirm to fail")
	}
	if err := r.Confirm(id); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := r.Confirm(id); err == nil {
		t.Fatal("expected double-confirm to fail")
	}
	if err := r.Finalize(id, Hash{1}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	msg, _ := r.Message(id)
	if msg.Status != MsgFinalized {
		t.Fatalf("expected Finalized, got %v", msg.Status)
	}
	if err := r.Reject(id, "too late"); err == nil {
		t.Fatal("expected reject on a Finalized message to fail, status lattice is forward-only")
	}
}

func TestMessageRelayRejectTerminal(t *testing.T) {
	r := NewMessageRelay(RelayParams{MaxGas: 1000, MaxPrice: 100}, 16, nil)
	id, _ := r.Send(L1ToL2, []byte("a"), []byte("b"), []byte("p"), 1, 0, 0, 0)
	if err := r.Reject(id, "spam"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := r.Confirm(id); err == nil {
		t.Fatal("expected confirm on Rejected message to fail")
	}
}

func TestMessageRelayReplayWindowDedup(t *testing.T) {
	r := NewMessageRelay(RelayParams{MaxGas: 1000, MaxPrice: 100}, 16, nil)
	if _, err := r.Send(L1ToL2, []byte("a"), []byte("b"), []byte("p"), 1, 0, 0, 0); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := r.Send(L1ToL2, []byte("a"), []byte("b"), []byte("p"), 1, 0, 0, 0); err == nil {
		t.Fatal("expected duplicate message id to be rejected")
	}
}

func TestMessageRelayFinalizeOrderingP11(t *testing.T) {
	r := NewMessageRelay(RelayParams{MaxGas: 1000, MaxPrice: 100}, 16, nil)
	idHigh, _ := r.Send(L1ToL2, []byte("a"), []byte("b"), []byte("p1"), 10, 0, 0, 0)
	idLow, _ := r.Send(L1ToL2, []byte("a"), []byte("b"), []byte("p2"), 5, 0, 0, 0)

	_ = r.Confirm(idHigh)
	_ = r.Confirm(idLow)

	if err := r.Finalize(idHigh, Hash{1}); err != nil {
		t.Fatalf("finalize high nonce: %v", err)
	}
	if err := r.Finalize(idLow, Hash{2}); err == nil {
		t.Fatal("expected finalize with a lower source-chain height than already finalized to be rejected (P11)")
	}
}
