package miniscript

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/stretchr/testify/require"
)

const (
	pubkeyA = "03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c54" +
		"0c5bd"
	pubkeyB = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b1" +
		"6f81798"
)

func TestParseStringRoundTrip(t *testing.T) {
	cases := []string{
		"pk(@0)",
		"multi(1,@0,@1)",
		"multi_a(2,@0,@1,@2)",
		"and_v(v:pk(@0),older(144))",
		"andor(pk(@0),pk(@1),pk(@2))",
		"as:pk(@0)",
		"thresh(2,pk(@0),s:pk(@1),s:pk(@2))",
		"sha256(66687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a59" +
			"1d0d5f2925)",
	}
	for _, text := range cases {
		node, err := Parse(text)
		require.NoError(t, err, text)
		require.Equal(t, text, node.String())
	}
}

func TestExpandSkipsHashDigest(t *testing.T) {
	text := "and_v(v:pk(" + pubkeyA + "),sha256(66687aadf862bd776c8fc18b" +
		"8e9f8e20089714856ee233b3902a591d0d5f2925))"

	result, err := Expand(text, &chaincfg.MainNetParams, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Keys.Len())
	require.Contains(t, result.Expanded, "sha256(66687aadf862bd776c8fc1"+
		"8b8e9f8e20089714856ee233b3902a591d0d5f2925)")
	require.Contains(t, result.Expanded, "v:pk(@0)")
}

func TestExpandSharesPlaceholderForRepeatedKey(t *testing.T) {
	text := "or_i(pk(" + pubkeyA + "),pk(" + pubkeyA + "))"

	result, err := Expand(text, &chaincfg.MainNetParams, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Keys.Len())
	require.Equal(t, "or_i(pk(@0),pk(@0))", result.Expanded)
}

func TestCompileMultiAndSatisfy(t *testing.T) {
	text := "multi(1," + pubkeyA + "," + pubkeyB + ")"
	result, err := Expand(text, &chaincfg.MainNetParams, nil, false)
	require.NoError(t, err)

	node, err := Parse(result.Expanded)
	require.NoError(t, err)

	compiled, err := Compile(node, result.Keys, false)
	require.NoError(t, err)
	require.True(t, compiled.Sane)
	require.NotEmpty(t, compiled.Script)

	sig := []byte{0x30, 0x01, 0x02}
	sat, err := Satisfy(node, result.Keys, map[string][]byte{"@0": sig},
		nil, nil)
	require.NoError(t, err)
	require.Len(t, sat.Items, 2)
	require.Equal(t, sig, sat.Items[1])
}

func TestCompilePkAloneIsSane(t *testing.T) {
	node, err := Parse("pk(@0)")
	require.NoError(t, err)

	km := keyexpr.NewExpansionMap()
	info, err := keyexpr.ResolveKeyExpression(
		pubkeyA, &chaincfg.MainNetParams, nil, false,
	)
	require.NoError(t, err)
	km.Add(pubkeyA, info)

	compiled, err := Compile(node, km, false)
	require.NoError(t, err)
	require.True(t, compiled.Sane)
}

func TestCompileBarePkKIsNotSane(t *testing.T) {
	node, err := Parse("pk_k(@0)")
	require.NoError(t, err)

	km := keyexpr.NewExpansionMap()
	info, err := keyexpr.ResolveKeyExpression(
		pubkeyA, &chaincfg.MainNetParams, nil, false,
	)
	require.NoError(t, err)
	km.Add(pubkeyA, info)

	compiled, err := Compile(node, km, false)
	require.NoError(t, err)
	require.False(t, compiled.Sane)
}

func TestSatisfyOlderRecordsSequence(t *testing.T) {
	node, err := Parse("and_v(v:pk(@0),older(144))")
	require.NoError(t, err)

	km := keyexpr.NewExpansionMap()
	info, err := keyexpr.ResolveKeyExpression(
		pubkeyA, &chaincfg.MainNetParams, nil, false,
	)
	require.NoError(t, err)
	km.Add(pubkeyA, info)

	sig := []byte{0xAB}
	sat, err := Satisfy(node, km, map[string][]byte{"@0": sig}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sat.NSequence)
	require.Equal(t, uint32(144), *sat.NSequence)
}

func TestSatisfyHashFragmentUsesPreimage(t *testing.T) {
	preimageHex := "0000000000000000000000000000000000000000000000000" +
		"000000000000000"
	preimage, err := hex.DecodeString(preimageHex)
	require.NoError(t, err)
	_ = preimage

	digest := "66687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a591" +
		"d0d5f2925"
	node, err := Parse("sha256(" + digest + ")")
	require.NoError(t, err)

	sat, err := Satisfy(node, keyexpr.NewExpansionMap(), nil,
		[]Preimage{{
			Digest:   "sha256(" + digest + ")",
			Preimage: preimageHex,
		}}, nil)
	require.NoError(t, err)
	require.Len(t, sat.Items, 1)
	require.Equal(t, preimage, sat.Items[0])
}
