package core

// security.go provides the three signature primitives the system needs,
// per the Open Question resolution in SPEC_FULL.md §16: Ed25519 is
// standardized on L2, secp256k1 is accepted only at the L1<->L2 boundary,
// and BLS aggregation helpers combine and check quorum votes with a single
// aggregate signature instead of N individual ones; FinalizationEngine.
// Confirm (finalization.go) does not check signatures itself. Adapted from the teacher's core/security.go
// key-management shape (a registry keyed by address, a discard-safe
// logger) with the TLS-loader and Shamir-share pieces dropped — this
// system has no host-runtime TLS surface and no secret-sharing component
// in its spec.

import (
	"crypto/ed25519"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/herumi/bls-eth-go-binary/bls"
)

func init() {
	if err := bls.Init(bls.BLS12_381); err != nil {
		panic("core: bls init: " + err.Error())
	}
	bls.SetETHmode(bls.EthModeDraft07)
}

//---------------------------------------------------------------------
// Ed25519 keyring (L2 transaction/game-move signatures)
//---------------------------------------------------------------------

// AddrFromPubKey derives the L2 address a public key controls: the
// Keccak-256 digest of the raw key bytes, which is exactly Addr's width.
func AddrFromPubKey(pub ed25519.PublicKey) Addr {
	return Addr(keccak256(pub))
}

// KeyRegistry maps L2 addresses to the Ed25519 public key that controls
// them, and exposes a SignatureVerifier closure over that mapping.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[Addr]ed25519.PublicKey
}

// NewKeyRegistry constructs an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[Addr]ed25519.PublicKey)}
}

// Register associates pub with its derived address and returns it.
func (r *KeyRegistry) Register(pub ed25519.PublicKey) Addr {
	addr := AddrFromPubKey(pub)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[addr] = pub
	return addr
}

// Verify implements SignatureVerifier against the registered key for addr.
func (r *KeyRegistry) Verify(addr Addr, msg, sig []byte) bool {
	r.mu.RLock()
	pub, ok := r.keys[addr]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// Sign authenticates msg with priv — a test/tooling helper, not used by
// the verification path itself.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

//---------------------------------------------------------------------
// secp256k1 (L1<->L2 boundary only)
//---------------------------------------------------------------------

// VerifySecp256k1 checks a DER-encoded ECDSA signature over msgHash using a
// compressed or uncompressed secp256k1 public key — the only place this
// curve is accepted, per spec §9's Open Question resolution.
func VerifySecp256k1(pubKeyBytes, msgHash, derSig []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(derSig)
	if err != nil {
		return false
	}
	return sig.Verify(msgHash, pub)
}

//---------------------------------------------------------------------
// BLS aggregation (stake-weighted confirmation quorum)
//---------------------------------------------------------------------

// QuorumVote is one validator's signed confirmation of a checkpoint.
type QuorumVote struct {
	Voter     Addr
	PublicKey bls.PublicKey
	Signature bls.Sign
}

// AggregateQuorumSignatures combines N individual confirmation signatures
// into one, which VerifyAggregatedQuorum checks in a single call. It is
// not called from FinalizationEngine.Confirm.
func AggregateQuorumSignatures(votes []QuorumVote) bls.Sign {
	var agg bls.Sign
	sigs := make([]bls.Sign, len(votes))
	for i, v := range votes {
		sigs[i] = v.Signature
	}
	agg.Aggregate(sigs)
	return agg
}

// VerifyAggregatedQuorum checks an aggregate signature over msg against the
// full set of voting public keys — a FastAggregateVerify, valid only if
// every signer signed the identical message (the checkpoint's state root).
func VerifyAggregatedQuorum(agg bls.Sign, votes []QuorumVote, msg []byte) bool {
	pubs := make([]bls.PublicKey, len(votes))
	for i, v := range votes {
		pubs[i] = v.PublicKey
	}
	return agg.FastAggregateVerify(pubs, msg)
}
