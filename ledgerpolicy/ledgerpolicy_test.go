package ledgerpolicy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractSortedMultiPreservesNodeIdentity(t *testing.T) {
	text := "wsh(sortedmulti(1,03a34b99f22c790c4e36b2b3c2c35a36db06226e41c6" +
		"92fc82b8b56ac1c540c5b,0279be667ef9dcbbac55a06295ce870b07029bfcd" +
		"b2dce28d959f2815b16f81798))"

	policy, err := Extract(text)
	require.NoError(t, err)
	require.Equal(t, "wsh(sortedmulti(1,@0/**,@1/**))", policy.Template)
	require.Len(t, policy.KeyRoots, 2)
}

func TestExtractDuplicateKeyExpressionSharesPlaceholder(t *testing.T) {
	key := "[d34db33f/84'/0'/0']xpub6CUGRUonZSQ4TWtTMmzXdrXDtypWKiKrhko" +
		"qtg7ViyfwQ5mKTcUQCrQCvFEFyvGD9a9xjiMvGN9agbS1bGmHeCjG2xnGhXQ2J2" +
		"vAMCcdBd3/0/*"
	text := "wsh(multi(2," + key + "," + key + "))"

	policy, err := Extract(text)
	require.NoError(t, err)
	require.Len(t, policy.KeyRoots, 1)
	require.Equal(t, "wsh(multi(2,@0/**,@0/**))", policy.Template)
}

func TestExtractMultipathInstantiationInvariance(t *testing.T) {
	key := "[d34db33f/84'/0'/0']xpub6CUGRUonZSQ4TWtTMmzXdrXDtypWKiKrhko" +
		"qtg7ViyfwQ5mKTcUQCrQCvFEFyvGD9a9xjiMvGN9agbS1bGmHeCjG2xnGhXQ2J2" +
		"vAMCcdBd3"
	receive := "wpkh(" + key + "/0/*)"
	change := "wpkh(" + key + "/1/*)"

	receivePolicy, err := Extract(receive)
	require.NoError(t, err)
	changePolicy, err := Extract(change)
	require.NoError(t, err)

	require.Equal(t, receivePolicy.Template, changePolicy.Template)
	require.Equal(t, receivePolicy.KeyRoots, changePolicy.KeyRoots)
}

func TestExtractTaprootTreeLeafOrderPreserved(t *testing.T) {
	internal := "a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c5" +
		"40c5b"
	leaf1 := "pk(79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815" +
		"b16f8179)"
	leaf2 := "pk(" + internal + ")"
	text := "tr(" + internal + ",{" + leaf1 + "," + leaf2 + "})"

	policy, err := Extract(text)
	require.NoError(t, err)
	require.Equal(t, "tr(@0/**,{pk(@1/**),pk(@0/**)})", policy.Template)
	require.Len(t, policy.KeyRoots, 2)
}

func TestExtractRejectsUnbalancedParens(t *testing.T) {
	_, err := Extract("wsh(multi(1,deadbeef")
	require.Error(t, err)
}
