package descriptor

import (
	"testing"

	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/stretchr/testify/require"
)

func TestWitnessV0StackItemSizeBoundary(t *testing.T) {
	ok := [][]byte{make([]byte, MaxStandardP2WSHStackItemSize)}
	require.NoError(t, AssertWitnessV0SatisfactionResourceLimits(ok, nil))

	bad := [][]byte{make([]byte, MaxStandardP2WSHStackItemSize+1)}
	err := AssertWitnessV0SatisfactionResourceLimits(bad, nil)
	require.ErrorIs(t, err, keyexpr.ErrResourceLimit)
}

func TestWitnessV0ScriptCheckedAgainstScriptLimitNotItemLimit(t *testing.T) {
	// A witness script well over the 80-byte per-item limit but under the
	// 3600-byte script limit (e.g. a realistic 2-of-3 multisig redeem
	// script, ~105 bytes) must not be rejected.
	items := [][]byte{make([]byte, 71), make([]byte, 71)}
	witnessScript := make([]byte, 105)
	require.NoError(t,
		AssertWitnessV0SatisfactionResourceLimits(items, witnessScript))

	tooLarge := make([]byte, MaxStandardP2WSHScriptSize+1)
	err := AssertWitnessV0SatisfactionResourceLimits(items, tooLarge)
	require.ErrorIs(t, err, keyexpr.ErrResourceLimit)
}

func TestConsensusStackElementSizeBoundary(t *testing.T) {
	ok := [][]byte{make([]byte, MaxScriptElementSize)}
	require.NoError(t, AssertConsensusStackResourceLimits(ok))

	bad := [][]byte{make([]byte, MaxScriptElementSize+1)}
	require.ErrorIs(t, AssertConsensusStackResourceLimits(bad), keyexpr.ErrResourceLimit)
}

func TestScriptSigSizeBoundary(t *testing.T) {
	require.NoError(t, AssertP2SHScriptSigStandardSize(
		make([]byte, MaxStandardScriptSigSize)))
	require.ErrorIs(t, AssertP2SHScriptSigStandardSize(
		make([]byte, MaxStandardScriptSigSize+1)), keyexpr.ErrResourceLimit)
}

func TestTapTreeDepthBoundary(t *testing.T) {
	require.NoError(t, AssertTapTreeDepth(MaxTapTreeDepth))
	require.ErrorIs(t, AssertTapTreeDepth(MaxTapTreeDepth+1),
		keyexpr.ErrResourceLimit)
}

func TestNonPushOpsLimitBoundary(t *testing.T) {
	// OP_CHECKSIG (0xac) repeated 201 times is right at the limit.
	script := make([]byte, MaxOpsPerScript)
	for i := range script {
		script[i] = 0xac
	}
	require.NoError(t, AssertScriptNonPushOnlyOpsLimit(script))

	script202 := make([]byte, MaxOpsPerScript+1)
	for i := range script202 {
		script202[i] = 0xac
	}
	require.ErrorIs(t, AssertScriptNonPushOnlyOpsLimit(script202),
		keyexpr.ErrResourceLimit)
}
