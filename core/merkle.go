package core

// merkle.go implements the two Merkle structures the spec names: a sparse
// Merkle tree over the account mapping (State Store commitment, §4.1) and a
// plain binary Merkle tree over a batch's ordered transaction list
// (Batch.MerkleRootTxs, §3). Both share the Keccak-256 hash primitive named
// in spec §6 and both are deterministic by construction: sibling order is
// always (left, right) by bit value, never by content, so two callers
// building the same set always get the same root (P4) and the same proof
// shape (P5).
//
// Adapted from the teacher's core/merkle_tree_operations.go, which built a
// SHA-256 binary tree over arbitrary byte leaves; this keeps that shape for
// the tx-list tree and adds the sparse variant needed for account state.

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

//---------------------------------------------------------------------
// Keccak-256
//---------------------------------------------------------------------

func keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

//---------------------------------------------------------------------
// Canonical encodings
//---------------------------------------------------------------------

// rlpAccount and rlpTransaction mirror Account/Transaction field order for
// deterministic RLP encoding — kept separate from the JSON-tagged public
// structs so storage format (JSON, matching the teacher's persistence
// convention) and hash/sign format (RLP canonical concatenation, spec §6)
// can evolve independently.

type rlpAccount struct {
	Addr    []byte
	Balance uint64
	Nonce   uint64
}

func canonicalEncodeAccount(a Account) []byte {
	b, err := rlp.EncodeToBytes(rlpAccount{Addr: a.Addr[:], Balance: a.Balance, Nonce: a.Nonce})
	if err != nil {
		panic("core: rlp encode account: " + err.Error())
	}
	return b
}

type rlpTransaction struct {
	Sender    []byte
	Recipient []byte
	Amount    uint64
	Nonce     uint64
	Expiry    uint64
	Kind      uint8
	Payload   []byte
}

func canonicalEncodeTx(tx *Transaction) []byte {
	b, err := rlp.EncodeToBytes(rlpTransaction{
		Sender:    tx.Sender[:],
		Recipient: tx.Recipient[:],
		Amount:    tx.Amount,
		Nonce:     tx.Nonce,
		Expiry:    tx.Expiry,
		Kind:      uint8(tx.Kind),
		Payload:   tx.Payload,
	})
	if err != nil {
		panic("core: rlp encode tx: " + err.Error())
	}
	return b
}

//---------------------------------------------------------------------
// Tx-list Merkle tree (Batch.MerkleRootTxs)
//---------------------------------------------------------------------

// TxMerkleRoot computes the Merkle root over a batch's ordered transactions.
func TxMerkleRoot(txs []Transaction) Hash {
	if len(txs) == 0 {
		return Hash{}
	}
	leaves := make([]Hash, len(txs))
	for i := range txs {
		leaves[i] = txs[i].Hash()
	}
	return buildTxTree(leaves)
}

func buildTxTree(level []Hash) Hash {
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = keccak256(level[i][:], level[i+1][:])
		}
		level = next
	}
	return level[0]
}

// TxMerkleProof returns an inclusion proof for the leaf at index within
// txs, ordered from the leaf level upward.
func TxMerkleProof(txs []Transaction, index int) ([]Hash, error) {
	if index < 0 || index >= len(txs) {
		return nil, errors.New("core: merkle proof index out of range")
	}
	level := make([]Hash, len(txs))
	for i := range txs {
		level[i] = txs[i].Hash()
	}
	var proof []Hash
	idx := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		if idx%2 == 0 {
			proof = append(proof, level[idx+1])
		} else {
			proof = append(proof, level[idx-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = keccak256(level[i][:], level[i+1][:])
		}
		level = next
		idx /= 2
	}
	return proof, nil
}

// VerifyTxMerkleProof recomputes the root for leaf at index using proof and
// compares it against root.
func VerifyTxMerkleProof(root Hash, leaf Hash, proof []Hash, index int) bool {
	hash := leaf
	idx := index
	for _, sib := range proof {
		if idx%2 == 0 {
			hash = keccak256(hash[:], sib[:])
		} else {
			hash = keccak256(sib[:], hash[:])
		}
		idx /= 2
	}
	return hash == root
}

//---------------------------------------------------------------------
// Sparse Merkle tree over the account mapping
//---------------------------------------------------------------------

const smtDepth = 256

// smtDefaults[l] is the default hash of an entirely-empty subtree of depth
// l (l=0 is a single empty leaf, l=smtDepth is the whole empty tree root).
var smtDefaults = buildSMTDefaults()

func buildSMTDefaults() [smtDepth + 1]Hash {
	var d [smtDepth + 1]Hash
	d[0] = keccak256(canonicalEncodeAccount(Account{}))
	for l := 1; l <= smtDepth; l++ {
		d[l] = keccak256(d[l-1][:], d[l-1][:])
	}
	return d
}

// smtKey returns the 256-bit path a given address occupies in the sparse
// tree: Keccak256(addr), read MSB-first.
func smtKey(addr Addr) Hash { return keccak256(addr[:]) }

func bitAt(h Hash, depth int) int {
	byteIdx := depth / 8
	bitIdx := 7 - (depth % 8)
	return int((h[byteIdx] >> uint(bitIdx)) & 1)
}

// smtRoot recursively computes the root over the given set of (key,
// account) leaves. Keys not present default to the canonical empty
// account, matching spec §4.1's NotFound semantics (a zero-balance,
// zero-nonce account, not an error).
func smtRoot(keys []Hash, accounts map[Hash]Account, depth int) Hash {
	if len(keys) == 0 {
		return smtDefaults[smtDepth-depth]
	}
	if depth == smtDepth {
		return keccak256(canonicalEncodeAccount(accounts[keys[0]]))
	}
	var left, right []Hash
	for _, k := range keys {
		if bitAt(k, depth) == 0 {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	lh := smtRoot(left, accounts, depth+1)
	rh := smtRoot(right, accounts, depth+1)
	return keccak256(lh[:], rh[:])
}

// smtProof returns the sibling hashes for target indexed by depth (root
// level first, leaf level last), given the full leaf set.
func smtProof(keys []Hash, accounts map[Hash]Account, target Hash) []Hash {
	proof := make([]Hash, 0, smtDepth)
	cur := keys
	for depth := 0; depth < smtDepth; depth++ {
		var left, right []Hash
		for _, k := range cur {
			if bitAt(k, depth) == 0 {
				left = append(left, k)
			} else {
				right = append(right, k)
			}
		}
		if bitAt(target, depth) == 0 {
			proof = append(proof, smtRoot(right, accounts, depth+1))
			cur = left
		} else {
			proof = append(proof, smtRoot(left, accounts, depth+1))
			cur = right
		}
	}
	return proof
}

// smtVerify recomputes the root for (addr, account) given proof and
// compares it against root. Proof must have exactly smtDepth entries,
// indexed by depth as smtProof returns them.
func smtVerify(root Hash, addr Addr, account Account, proof []Hash) bool {
	if len(proof) != smtDepth {
		return false
	}
	key := smtKey(addr)
	hash := keccak256(canonicalEncodeAccount(account))
	for depth := smtDepth - 1; depth >= 0; depth-- {
		sib := proof[depth]
		if bitAt(key, depth) == 0 {
			hash = keccak256(hash[:], sib[:])
		} else {
			hash = keccak256(sib[:], hash[:])
		}
	}
	return hash == root
}

// smtFoldRoot recomputes the root after updating every leaf named by keys
// to the value in accounts, given each leaf's InclusionProof.Siblings
// against the *old* root (proofs, keyed the same way). It is the multi-leaf
// inverse of smtVerify: instead of folding one leaf up to a root and
// comparing, it folds every touched leaf up at once, recursing into a
// subtree only when it actually contains a touched leaf and reusing the
// proof-supplied sibling hash everywhere else. This is what lets two
// touched leaves whose paths reconverge above the leaf level (e.g. a
// transfer's sender and recipient) fold into one consistent new root
// instead of each independently producing a root that ignores the other's
// change.
func smtFoldRoot(keys []Hash, accounts map[Hash]Account, proofs map[Hash][]Hash, depth int) Hash {
	if depth == smtDepth {
		return keccak256(canonicalEncodeAccount(accounts[keys[0]]))
	}
	var left, right []Hash
	for _, k := range keys {
		if bitAt(k, depth) == 0 {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	var leftHash, rightHash Hash
	if len(left) == 0 {
		leftHash = proofs[right[0]][depth]
	} else {
		leftHash = smtFoldRoot(left, accounts, proofs, depth+1)
	}
	if len(right) == 0 {
		rightHash = proofs[left[0]][depth]
	} else {
		rightHash = smtFoldRoot(right, accounts, proofs, depth+1)
	}
	return keccak256(leftHash[:], rightHash[:])
}
