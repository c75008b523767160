package keyexpr

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestResolveKeyExpressionWIF(t *testing.T) {
	info, err := ResolveKeyExpression(
		"L4rK1yDtCWekvXuE6oXD9jCYfFNV2cWRpVuPLBcCU2z8TrisoyY1",
		&chaincfg.MainNetParams, nil, false,
	)
	require.NoError(t, err)
	require.Len(t, info.Pubkey, 33)
	require.NotNil(t, info.PrivKey)
	require.Equal(t,
		"03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd",
		hex.EncodeToString(info.Pubkey))
}

func TestResolveKeyExpressionOriginAndWildcard(t *testing.T) {
	expr := "[d34db33f/49'/0'/0']tpubDCdxmvzJ5QBjTN8oCjjyT2V58AyZvA1fkmCeZRC" +
		"75QMoaHcVP2m45Bv3hmnR7ttAwkb2UNYyoXdHVt4gwBqRrJqLUU2JrM43HippxiW" +
		"pHra/1/2/3/4/*"
	idx := uint32(11)

	info, err := ResolveKeyExpression(
		expr, &chaincfg.RegressionNetParams, &idx, false,
	)
	require.NoError(t, err)
	require.Equal(t, []byte{0xd3, 0x4d, 0xb3, 0x3f}, info.MasterFingerprint)
	require.Equal(t, "/49'/0'/0'", info.OriginPath)
	require.Equal(t, "/1/2/3/4/*", info.KeyPath)
	require.Equal(t, "/49'/0'/0'/1/2/3/4/*", info.Path)
	require.Len(t, info.Pubkey, 33)
}

func TestResolveKeyExpressionWildcardRequiresIndex(t *testing.T) {
	_, err := ResolveKeyExpression(
		"[d34db33f/49'/0'/0']tpubDCdxmvzJ5QBjTN8oCjjyT2V58AyZvA1fkmCeZRC"+
			"75QMoaHcVP2m45Bv3hmnR7ttAwkb2UNYyoXdHVt4gwBqRrJqLUU2JrM43Hipp"+
			"xiWpHra/*",
		&chaincfg.RegressionNetParams, nil, false,
	)
	require.ErrorIs(t, err, ErrRange)
}

func TestResolveKeyExpressionHardenedMarkerNormalization(t *testing.T) {
	lower := "[d34db33f/49h/0h/0h]tpubDCdxmvzJ5QBjTN8oCjjyT2V58AyZvA1fkmCeZRC" +
		"75QMoaHcVP2m45Bv3hmnR7ttAwkb2UNYyoXdHVt4gwBqRrJqLUU2JrM43HippxiW" +
		"pHra"

	info, err := ResolveKeyExpression(
		lower, &chaincfg.RegressionNetParams, nil, false,
	)
	require.NoError(t, err)
	require.Equal(t, "/49'/0'/0'", info.OriginPath)
}

func TestResolveKeyExpressionRawPubkeyTaproot(t *testing.T) {
	compressed := "03a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b5" +
		"6ac1c540c5bd"
	info, err := ResolveKeyExpression(compressed, nil, nil, true)
	require.NoError(t, err)
	require.Len(t, info.Pubkey, 32)
}

func TestResolveKeyExpressionNetworkMismatch(t *testing.T) {
	expr := "tpubDCdxmvzJ5QBjTN8oCjjyT2V58AyZvA1fkmCeZRC75QMoaHcVP2m45Bv3" +
		"hmnR7ttAwkb2UNYyoXdHVt4gwBqRrJqLUU2JrM43HippxiWpHra"
	_, err := ResolveKeyExpression(expr, &chaincfg.MainNetParams, nil, false)
	require.ErrorIs(t, err, ErrNetworkMismatch)
}
