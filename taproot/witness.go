package taproot

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
)

var (
	tagTapLeaf   = []byte("TapLeaf")
	tagTapBranch = []byte("TapBranch")
)

// tapLeafHash is the BIP341 TapLeaf tagged hash:
// TaggedHash("TapLeaf", leafVersion || compactSize(len(script)) || script).
func tapLeafHash(leafVersion byte, script []byte) [32]byte {
	var buf bytes.Buffer
	buf.WriteByte(leafVersion)
	_ = wire.WriteVarInt(&buf, 0, uint64(len(script)))
	buf.Write(script)
	return *chainhash.TaggedHash(tagTapLeaf, buf.Bytes())
}

// tapBranchHash is the BIP341 TapBranch tagged hash: the two children are
// lexicographically sorted before concatenation, so a control block's
// sibling order never depends on original left/right tree order.
func tapBranchHash(left, right [32]byte) [32]byte {
	if bytes.Compare(left[:], right[:]) > 0 {
		left, right = right, left
	}
	return *chainhash.TaggedHash(tagTapBranch, left[:], right[:])
}

// OutputKey holds the taproot output key and the parity bit BIP341 requires
// the control block to carry.
type OutputKey struct {
	Key    *btcec.PublicKey
	Parity bool
}

// TweakInternalKey implements spec component H's key-tweaking step: given an
// internal key and this Info's merkle root (or none, for a key-path-only
// output), returns the tweaked taproot output key.
func (info *Info) TweakInternalKey(internalKey *btcec.PublicKey) (*OutputKey, error) {
	var outputKey *btcec.PublicKey
	if info == nil || !info.hasTree {
		outputKey = txscript.ComputeTaprootKeyNoScript(internalKey)
	} else {
		outputKey = txscript.ComputeTaprootOutputKey(
			internalKey, info.MerkleRoot[:],
		)
	}

	parityBit := outputKey.SerializeCompressed()[0] == 0x03
	return &OutputKey{Key: outputKey, Parity: parityBit}, nil
}

// ControlBlock returns the serialized BIP341 control block for spending
// leaf: leafVersion|parity byte, the 32-byte x-only internal key, then the
// leaf's sibling hashes from leaf to root (33 + 32*depth bytes total).
func (info *Info) ControlBlock(leaf *Leaf, internalKey *btcec.PublicKey,
	outputParity bool) []byte {

	first := BaseLeafVersion
	if outputParity {
		first |= 1
	}

	out := make([]byte, 0, 33+32*len(leaf.path))
	out = append(out, byte(first))
	out = append(out, schnorr.SerializePubKey(internalKey)...)
	for _, sibling := range leaf.ControlBlockPath() {
		out = append(out, sibling[:]...)
	}
	return out
}

// SelectLeaf implements spec component H's leaf-selection algorithm: if
// tapLeaf names an exact leaf text, that leaf is required to exist (fatal if
// absent) and is the only candidate returned; otherwise every leaf is
// returned in tree order, and SatisfyTapTree keeps the cheapest full
// satisfaction, the first leaf on ties.
func (info *Info) SelectLeaf(tapLeaf string) ([]*Leaf, error) {
	if tapLeaf != "" {
		node, err := miniscript.Parse(tapLeaf)
		if err != nil {
			return nil, err
		}
		key := node.String()
		for _, leaf := range info.Leaves {
			if leaf.Node.String() == key {
				return []*Leaf{leaf}, nil
			}
		}
		return nil, fmt.Errorf("%w: requested tap leaf %q not present "+
			"in tree", keyexpr.ErrSatisfaction, tapLeaf)
	}
	return info.Leaves, nil
}

// TapScriptWitness is a satisfied script-path spend for a single leaf: the
// miniscript witness items, the leaf's script and control block, ready to
// append as the final two witness stack items per BIP341.
type TapScriptWitness struct {
	Leaf          *Leaf
	Items         [][]byte
	ControlBlock  []byte
	NLockTime     *uint32
	NSequence     *uint32
}

// SatisfyTapTree implements spec component H's witness assembly: tries every
// candidate leaf (or just tapLeaf if given), satisfies each with the
// miniscript satisfier, and returns the minimum-total-size witness. A leaf
// whose satisfier fails is silently skipped when scanning every leaf, but is
// fatal if tapLeaf named it explicitly.
func (info *Info) SatisfyTapTree(tapLeaf string, internalKey *btcec.PublicKey,
	outputParity bool, signatures map[string][]byte,
	preimages []miniscript.Preimage,
	constraints *miniscript.TimeConstraints) (*TapScriptWitness, error) {

	candidates, err := info.SelectLeaf(tapLeaf)
	if err != nil {
		return nil, err
	}

	var best *TapScriptWitness
	bestSize := -1
	for _, leaf := range candidates {
		sat, err := miniscript.Satisfy(
			leaf.Node, leaf.Keys, signatures, preimages, constraints,
		)
		if err != nil {
			if tapLeaf != "" {
				return nil, err
			}
			continue
		}

		size := 0
		for _, item := range sat.Items {
			size += len(item)
		}
		cb := info.ControlBlock(leaf, internalKey, outputParity)
		size += len(cb) + len(leaf.Script)

		if bestSize == -1 || size < bestSize {
			bestSize = size
			best = &TapScriptWitness{
				Leaf:         leaf,
				Items:        sat.Items,
				ControlBlock: cb,
				NLockTime:    sat.NLockTime,
				NSequence:    sat.NSequence,
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no tap leaf could be satisfied",
			keyexpr.ErrSatisfaction)
	}
	return best, nil
}

// TapBIP32Derivation is one entry of a merged taproot BIP32-derivation map,
// BIP371's PSBT_OUT_TAP_BIP32_DERIVATION field.
type TapBIP32Derivation struct {
	Pubkey            []byte
	LeafHashes        [][32]byte
	MasterFingerprint []byte
	Path              string
}

// MergeTapBIP32Derivations implements the taproot BIP32-derivation merge
// spec component H requires: entries keyed by x-only pubkey hex, leaf hashes
// unioned across occurrences, and a conflicting fingerprint/path for the
// same pubkey is a hard failure rather than a silent overwrite.
func MergeTapBIP32Derivations(entries []TapBIP32Derivation) ([]TapBIP32Derivation, error) {
	byPubkey := make(map[string]*TapBIP32Derivation)
	var order []string

	for _, e := range entries {
		key := hex.EncodeToString(e.Pubkey)
		existing, ok := byPubkey[key]
		if !ok {
			copyEntry := e
			copyEntry.LeafHashes = append([][32]byte{}, e.LeafHashes...)
			byPubkey[key] = &copyEntry
			order = append(order, key)
			continue
		}

		if !bytes.Equal(existing.MasterFingerprint, e.MasterFingerprint) ||
			existing.Path != e.Path {

			return nil, fmt.Errorf("%w: conflicting BIP32 origin "+
				"for taproot key %s", keyexpr.ErrKeyDerivation, key)
		}

		for _, lh := range e.LeafHashes {
			if !containsHash(existing.LeafHashes, lh) {
				existing.LeafHashes = append(existing.LeafHashes, lh)
			}
		}
	}

	sort.Strings(order)
	out := make([]TapBIP32Derivation, 0, len(order))
	for _, key := range order {
		entry := byPubkey[key]
		sort.Slice(entry.LeafHashes, func(i, j int) bool {
			return bytes.Compare(
				entry.LeafHashes[i][:], entry.LeafHashes[j][:],
			) < 0
		})
		out = append(out, *entry)
	}
	return out, nil
}

func containsHash(hashes [][32]byte, h [32]byte) bool {
	for _, existing := range hashes {
		if existing == h {
			return true
		}
	}
	return false
}
