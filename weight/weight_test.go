package weight

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/descriptor"
	"github.com/stretchr/testify/require"
)

func TestEstimateWPKHRealSignature(t *testing.T) {
	text := "wpkh(03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56a" +
		"c1c540c5bd)"
	out, err := descriptor.NewOutput(text, descriptor.Options{
		Network: &chaincfg.MainNetParams,
	})
	require.NoError(t, err)

	sig := make([]byte, 71)
	result, err := Estimate(
		out, map[string][]byte{"sig": sig}, nil, nil, SighashDefault,
	)
	require.NoError(t, err)
	require.Equal(t, 41*4+result.ScriptSigLen*4+result.WitnessLen, result.WeightUnits)
	require.Greater(t, result.WitnessLen, 0)
}

func TestEstimateFakeSignaturesUpperBoundsRealOnes(t *testing.T) {
	text := "wpkh(03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56a" +
		"c1c540c5bd)"
	out, err := descriptor.NewOutput(text, descriptor.Options{
		Network: &chaincfg.MainNetParams,
	})
	require.NoError(t, err)

	realSig := make([]byte, 71)
	realResult, err := Estimate(
		out, map[string][]byte{"sig": realSig}, nil, nil, SighashDefault,
	)
	require.NoError(t, err)

	fakeResult, err := Estimate(
		out, map[string][]byte{DANGEROUSLY_USE_FAKE_SIGNATURES: nil},
		nil, nil, SighashDefault,
	)
	require.NoError(t, err)
	require.GreaterOrEqual(t, fakeResult.VSize, realResult.VSize)
}

func TestEstimateTaprootKeyPathFakeSignatureIsSchnorrLength(t *testing.T) {
	key := "a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd"
	out, err := descriptor.NewOutput("tr("+key+")", descriptor.Options{
		Network: &chaincfg.MainNetParams,
	})
	require.NoError(t, err)

	result, err := Estimate(
		out, map[string][]byte{DANGEROUSLY_USE_FAKE_SIGNATURES: nil},
		nil, nil, SighashDefault,
	)
	require.NoError(t, err)
	require.Equal(t, 1+1+64, result.WitnessLen)
}

func TestEstimateTaprootExplicitSighashIsLarger(t *testing.T) {
	key := "a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd"
	out, err := descriptor.NewOutput("tr("+key+")", descriptor.Options{
		Network: &chaincfg.MainNetParams,
	})
	require.NoError(t, err)

	defaultResult, err := Estimate(
		out, map[string][]byte{DANGEROUSLY_USE_FAKE_SIGNATURES: nil},
		nil, nil, SighashDefault,
	)
	require.NoError(t, err)
	explicitResult, err := Estimate(
		out, map[string][]byte{DANGEROUSLY_USE_FAKE_SIGNATURES: nil},
		nil, nil, SighashExplicit,
	)
	require.NoError(t, err)
	require.Greater(t, explicitResult.WitnessLen, defaultResult.WitnessLen)
}
