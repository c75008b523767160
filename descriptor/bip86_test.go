package descriptor

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// seedFromMnemonic derives a BIP39 seed the same way btc/bip39.go's default
// passphrase mode does. This is test-fixture code only: mnemonic decoding
// is outside this library's surface (keyexpr.ResolveKeyExpression only
// ever sees an already-derived xpub/xprv/WIF/raw key per spec §4.B), so
// nothing here ships as a package dependency.
func seedFromMnemonic(mnemonic, passphrase string) []byte {
	return pbkdf2.Key(
		[]byte(mnemonic), append([]byte("mnemonic"), passphrase...),
		2048, 64, sha512.New,
	)
}

func TestBIP86TaprootKeyPathDerivation(t *testing.T) {
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon about"

	seed := seedFromMnemonic(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	path := []uint32{
		86 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
		0,
	}
	current := master
	for _, childNum := range path {
		current, err = current.Derive(childNum)
		require.NoError(t, err)
	}

	privKey, err := current.ECPrivKey()
	require.NoError(t, err)
	internalPubkey := schnorr.SerializePubKey(privKey.PubKey())
	require.Equal(t,
		"cc8a4bc64d897bddc5fbc2f670f7a8ba0b386779106cf1223c6fc5d7cd6fc115",
		hex.EncodeToString(internalPubkey),
	)

	text := "tr(" + hex.EncodeToString(internalPubkey) + ")"
	out, err := NewOutput(text, Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)

	wantScript, err := hex.DecodeString(
		"5120a60869f0dbcf1dc659c9cecbaf8050135ea9e8cdc487053f1dc6880949d" +
			"c684c",
	)
	require.NoError(t, err)
	require.Equal(t, wantScript, out.ScriptPubKey)
	require.Equal(t,
		"bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr",
		out.Address,
	)
}
