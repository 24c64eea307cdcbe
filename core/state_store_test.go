package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStateStoreGetMissingReturnsZeroAccount(t *testing.T) {
	s := NewStateStore(nil)
	var addr Addr
	addr[0] = 0x01
	acc := s.Get(addr)
	if acc.Balance != 0 || acc.Nonce != 0 {
		t.Fatalf("expected zero account, got %+v", acc)
	}
}

func TestStateStoreRootDeterministic(t *testing.T) {
	s1 := NewStateStore(nil)
	s2 := NewStateStore(nil)
	var a, b Addr
	a[0], b[0] = 1, 2
	s1.Put(a, Account{Balance: 100})
	s1.Put(b, Account{Balance: 50})
	s2.Put(b, Account{Balance: 50})
	s2.Put(a, Account{Balance: 100})

	if s1.Root() != s2.Root() {
		t.Fatal("expected equal contents to produce equal roots (P4)")
	}
}

func TestStateStoreRootChangesOnMutation(t *testing.T) {
	s := NewStateStore(nil)
	var a Addr
	a[0] = 1
	r0 := s.Root()
	s.Put(a, Account{Balance: 10})
	r1 := s.Root()
	if r0 == r1 {
		t.Fatal("expected root to change after mutation")
	}
}

func TestStateStoreProofSoundness(t *testing.T) {
	s := NewStateStore(nil)
	var a, b Addr
	a[0], b[0] = 1, 2
	accA := Account{Balance: 500, Nonce: 3}
	s.Put(a, accA)
	s.Put(b, Account{Balance: 10})

	root := s.Root()
	proof := s.Proof(a)
	if !Verify(root, a, accA, proof) {
		t.Fatal("expected proof to verify for present key")
	}
	if Verify(root, a, Account{Balance: 999}, proof) {
		t.Fatal("expected proof to fail for wrong value")
	}
}

func TestStateStoreSnapshotRestore(t *testing.T) {
	s := NewStateStore(nil)
	var a Addr
	a[0] = 1
	s.Put(a, Account{Balance: 100})
	before := s.Root()

	h := s.Snapshot()
	s.Put(a, Account{Balance: 999})
	if s.Root() == before {
		t.Fatal("expected root to have changed after mutation")
	}

	if err := s.Restore(h); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.Root() != before {
		t.Fatal("expected restore to reproduce the snapshot's root byte-for-byte")
	}
	if got := s.Get(a); got.Balance != 100 {
		t.Fatalf("expected balance 100 after restore, got %d", got.Balance)
	}
}

// TestStateStoreGetReflectsPutExactly guards against a field-by-field Put
// copy subtly dropping or reordering Account fields; cmp.Diff gives a
// readable failure instead of a raw struct dump.
func TestStateStoreGetReflectsPutExactly(t *testing.T) {
	s := NewStateStore(nil)
	var a Addr
	a[0] = 1
	want := Account{Addr: a, Balance: 777, Nonce: 4}
	s.Put(a, want)

	got := s.Get(a)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("account mismatch after Put/Get (-want +got):\n%s", diff)
	}
}

func TestStateStoreRestoreUnknownHandle(t *testing.T) {
	s := NewStateStore(nil)
	if err := s.Restore(Handle(12345)); err == nil {
		t.Fatal("expected error restoring unknown handle")
	}
}
