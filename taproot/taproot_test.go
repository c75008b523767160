package taproot

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/stretchr/testify/require"
)

const (
	pubkeyA = "a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd"
	pubkeyB = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
)

func TestParseTreeLeaf(t *testing.T) {
	tree, err := ParseTree("pk(" + pubkeyA + ")")
	require.NoError(t, err)
	require.True(t, tree.IsLeaf())
	require.Equal(t, "pk("+pubkeyA+")", tree.Leaf)
}

func TestParseTreeBranch(t *testing.T) {
	tree, err := ParseTree("{pk(" + pubkeyA + "),pk(" + pubkeyB + ")}")
	require.NoError(t, err)
	require.False(t, tree.IsLeaf())
	require.True(t, tree.Left.IsLeaf())
	require.True(t, tree.Right.IsLeaf())
}

func TestParseTreeNestedDepth(t *testing.T) {
	text := "{pk(" + pubkeyA + "),{pk(" + pubkeyB + "),pk(" + pubkeyA + ")}}"
	tree, err := ParseTree(text)
	require.NoError(t, err)
	require.True(t, tree.Left.IsLeaf())
	require.False(t, tree.Right.IsLeaf())
}

func TestParseTreeUnbalancedBraces(t *testing.T) {
	_, err := ParseTree("{pk(" + pubkeyA + "),pk(" + pubkeyB + ")")
	require.ErrorIs(t, err, keyexpr.ErrParse)
}

func TestParseTreeExtraComma(t *testing.T) {
	_, err := ParseTree(
		"{pk(" + pubkeyA + "),pk(" + pubkeyB + "),pk(" + pubkeyA + ")}",
	)
	require.ErrorIs(t, err, keyexpr.ErrParse)
}

func TestParseTreeEmptySide(t *testing.T) {
	_, err := ParseTree("{pk(" + pubkeyA + "),}")
	require.ErrorIs(t, err, keyexpr.ErrParse)
}

func TestBuildInfoSingleLeafControlBlockLength(t *testing.T) {
	info, err := BuildInfo("pk("+pubkeyA+")", &chaincfg.MainNetParams, nil)
	require.NoError(t, err)
	require.Len(t, info.Leaves, 1)
	require.Empty(t, info.Leaves[0].ControlBlockPath())
}

func TestBuildInfoTwoLeafControlBlockDepth(t *testing.T) {
	text := "{pk(" + pubkeyA + "),pk(" + pubkeyB + ")}"
	info, err := BuildInfo(text, &chaincfg.MainNetParams, nil)
	require.NoError(t, err)
	require.Len(t, info.Leaves, 2)

	for _, leaf := range info.Leaves {
		require.Equal(t, 1, leaf.Depth)
		require.Len(t, leaf.ControlBlockPath(), 1)
	}
	// Each leaf's single sibling must be the other leaf's hash.
	require.Equal(t,
		info.Leaves[1].LeafHash, info.Leaves[0].ControlBlockPath()[0],
	)
	require.Equal(t,
		info.Leaves[0].LeafHash, info.Leaves[1].ControlBlockPath()[0],
	)
}

func TestBuildInfoThreeLeafControlBlockLengthFormula(t *testing.T) {
	text := "{pk(" + pubkeyA + "),{pk(" + pubkeyB + "),pk(" + pubkeyA + ")}}"
	info, err := BuildInfo(text, &chaincfg.MainNetParams, nil)
	require.NoError(t, err)
	require.Len(t, info.Leaves, 3)

	for _, leaf := range info.Leaves {
		// Control block length formula: 33 + 32*depth.
		cb := len(leaf.ControlBlockPath())*32 + 33
		require.Equal(t, 33+32*leaf.Depth, cb)
	}
}

func TestSelectLeafExactMatchRequired(t *testing.T) {
	text := "{pk(" + pubkeyA + "),pk(" + pubkeyB + ")}"
	info, err := BuildInfo(text, &chaincfg.MainNetParams, nil)
	require.NoError(t, err)

	_, err = info.SelectLeaf("pk(deadbeef)")
	require.ErrorIs(t, err, keyexpr.ErrSatisfaction)

	leaves, err := info.SelectLeaf("pk(" + pubkeyA + ")")
	require.NoError(t, err)
	require.Len(t, leaves, 1)
}

func TestMergeTapBIP32DerivationsUnionsLeafHashes(t *testing.T) {
	pub := []byte{0xAA}
	fp := []byte{1, 2, 3, 4}
	h1 := [32]byte{1}
	h2 := [32]byte{2}

	merged, err := MergeTapBIP32Derivations([]TapBIP32Derivation{
		{Pubkey: pub, MasterFingerprint: fp, Path: "/0/0", LeafHashes: [][32]byte{h1}},
		{Pubkey: pub, MasterFingerprint: fp, Path: "/0/0", LeafHashes: [][32]byte{h2}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].LeafHashes, 2)
}

func TestMergeTapBIP32DerivationsConflictIsFatal(t *testing.T) {
	pub := []byte{0xAA}

	_, err := MergeTapBIP32Derivations([]TapBIP32Derivation{
		{Pubkey: pub, MasterFingerprint: []byte{1, 2, 3, 4}, Path: "/0/0"},
		{Pubkey: pub, MasterFingerprint: []byte{5, 6, 7, 8}, Path: "/0/0"},
	})
	require.ErrorIs(t, err, keyexpr.ErrKeyDerivation)
}
