package descriptor

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/stretchr/testify/require"
)

func TestGetScriptSatisfactionWPKH(t *testing.T) {
	text := "wpkh(03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56a" +
		"c1c540c5bd)"
	out, err := NewOutput(text, Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)

	sig := []byte{0x30, 0x01, 0x02}
	sat, err := out.GetScriptSatisfaction(
		map[string][]byte{"sig": sig}, nil, nil,
	)
	require.NoError(t, err)
	require.Len(t, sat.Witness, 2)
	require.Equal(t, sig, sat.Witness[0])
}

func TestGetScriptSatisfactionWSHMultiNeedsSignature(t *testing.T) {
	text := "wsh(multi(1,03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc8" +
		"2b8b56ac1c540c5bd,0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce2" +
		"8d959f2815b16f81798))"
	out, err := NewOutput(text, Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)

	_, err = out.GetScriptSatisfaction(nil, nil, nil)
	require.ErrorIs(t, err, keyexpr.ErrSatisfaction)

	sat, err := out.GetScriptSatisfaction(
		map[string][]byte{"@0": {0xAB}}, nil, nil,
	)
	require.NoError(t, err)
	require.NotEmpty(t, sat.Witness)
}

func TestGetScriptSatisfactionWSHMultiLargeRedeemScriptNotRejected(t *testing.T) {
	// A 2-of-3 multisig witness script is ~105 bytes, well over the
	// 80-byte per-item policy limit but nowhere near the 3600-byte
	// script-size limit; it must be checked against the latter, not the
	// former.
	text := "wsh(multi(2,03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc8" +
		"2b8b56ac1c540c5bd,0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce2" +
		"8d959f2815b16f81798,02c6047f9441ed7d6d3045406e95c07cd85c778e4b8c" +
		"ef3ca7abac09b95c709ee5))"
	out, err := NewOutput(text, Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)
	require.Greater(t, len(out.witnessScript), 80)

	sat, err := out.GetScriptSatisfaction(
		map[string][]byte{"@0": {0xAB}, "@1": {0xCD}}, nil, nil,
	)
	require.NoError(t, err)
	require.NotEmpty(t, sat.Witness)
}

func TestGetScriptSatisfactionTaprootDeepLeafNotRejected(t *testing.T) {
	// A depth-2 control block is 33+32*2=97 bytes, over the 80-byte
	// per-item policy limit; the control block (and the leaf script
	// itself) must not be checked against that limit.
	key := "a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd"
	leafA := "pk(79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b1" +
		"6f81798)"
	leafB := "pk(" + key + ")"
	leafC := "pk(c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c" +
		"709ee5)"
	text := "tr(" + key + ",{{" + leafA + "," + leafB + "}," + leafC + "})"

	out, err := NewOutput(text, Options{
		Network: &chaincfg.MainNetParams,
		TapLeaf: leafA,
	})
	require.NoError(t, err)

	sig := make([]byte, 64)
	sat, err := out.GetScriptSatisfaction(
		map[string][]byte{"@0": sig}, nil, nil,
	)
	require.NoError(t, err)
	require.NotEmpty(t, sat.Witness)

	var controlBlock []byte
	if len(sat.Witness) > 0 {
		controlBlock = sat.Witness[len(sat.Witness)-1]
	}
	require.Len(t, controlBlock, 33+32*2)
}

func TestGetScriptSatisfactionTaprootKeyPath(t *testing.T) {
	key := "a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd"
	out, err := NewOutput("tr("+key+")", Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)

	sig := make([]byte, 64)
	sat, err := out.GetScriptSatisfaction(
		map[string][]byte{"sig": sig}, nil, nil,
	)
	require.NoError(t, err)
	require.Equal(t, [][]byte{sig}, sat.Witness)
}
