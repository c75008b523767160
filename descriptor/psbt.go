package descriptor

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
)

// UpdatePSBTInput implements spec §4.I's PSBT support: given the value of
// the prevout locked by this Output's scriptPubKey, it fills in pIn's
// witnessUtxo/redeemScript/witnessScript or taproot fields, plus a bip32
// derivation entry for every non-taproot key of this Output's wrapper that
// carries a 4-byte origin fingerprint (keys without one get no entry). value must
// be a non-negative amount in satoshis, matching a PSBT's own
// arbitrary-precision value guard (spec §4.A); anything else is rejected
// before it can propagate into an under/overflowed prevout commitment.
func (o *Output) UpdatePSBTInput(pIn *psbt.PInput, value int64) error {
	if value < 0 {
		return fmt.Errorf("%w: prevout value %d is negative",
			keyexpr.ErrValueGuard, value)
	}

	utxo := &wire.TxOut{Value: value, PkScript: o.ScriptPubKey}

	switch o.Wrapper {
	case WrapperPKH:
		// Legacy spends carry no witness/redeem fields; only the
		// derivation entry below applies.

	case WrapperWPKH:
		pIn.WitnessUtxo = utxo

	case WrapperSHWPKH:
		pIn.WitnessUtxo = utxo
		pIn.RedeemScript = o.redeemScript

	case WrapperSH:
		pIn.RedeemScript = o.redeemScript

	case WrapperWSH:
		pIn.WitnessUtxo = utxo
		pIn.WitnessScript = o.witnessScript

	case WrapperSHWSH:
		pIn.WitnessUtxo = utxo
		pIn.RedeemScript = o.redeemScript
		pIn.WitnessScript = o.witnessScript

	case WrapperTR:
		pIn.WitnessUtxo = utxo
		if err := o.updateTaprootPSBTInput(pIn); err != nil {
			return err
		}
	}

	if o.Wrapper != WrapperTR {
		for _, keyInfo := range o.bip32Keys() {
			if err := addBip32Derivation(pIn, keyInfo); err != nil {
				return err
			}
		}
	}

	return nil
}

// bip32Keys returns every KeyInfo this Output's non-taproot wrapper carries
// an origin for: the single key for pk/pkh/wpkh/sh(wpkh), or every key in
// the expansion map for a miniscript-backed wrapper.
func (o *Output) bip32Keys() []*keyexpr.KeyInfo {
	if o.keyInfo != nil {
		return []*keyexpr.KeyInfo{o.keyInfo}
	}
	if o.expansion == nil {
		return nil
	}
	var out []*keyexpr.KeyInfo
	for _, placeholder := range o.expansion.Placeholders() {
		if info, ok := o.expansion.Get(placeholder); ok {
			out = append(out, info)
		}
	}
	return out
}

func addBip32Derivation(pIn *psbt.PInput, keyInfo *keyexpr.KeyInfo) error {
	if len(keyInfo.MasterFingerprint) != 4 {
		return nil
	}
	path, err := parseBip32Path(keyInfo.Path)
	if err != nil {
		return err
	}
	fingerprint := leUint32(keyInfo.MasterFingerprint)
	for _, existing := range pIn.Bip32Derivation {
		if bytesEqual(existing.PubKey, keyInfo.Pubkey) {
			return nil
		}
	}
	pIn.Bip32Derivation = append(pIn.Bip32Derivation, &psbt.Bip32Derivation{
		PubKey:               keyInfo.Pubkey,
		MasterKeyFingerprint: fingerprint,
		Bip32Path:            path,
	})
	return nil
}

// updateTaprootPSBTInput fills pIn's taproot-specific fields: the internal
// key, merkle root (script-path outputs only), a tapLeafScript entry per
// tree leaf, and a tapBip32Derivation entry per leaf key, unioning leaf
// hashes in place for keys that recur across leaves. These leaf-key entries
// carry the x-only key and leaf hashes only, no fingerprint or path.
func (o *Output) updateTaprootPSBTInput(pIn *psbt.PInput) error {
	if o.internalKeyInfo == nil {
		return fmt.Errorf("%w: taproot output has no internal key",
			keyexpr.ErrSatisfaction)
	}
	pIn.TaprootInternalKey = o.internalKeyInfo.Pubkey

	if o.tapInfo == nil || len(o.tapInfo.Leaves) == 0 {
		return addTaprootKeyDerivation(pIn, o.internalKeyInfo)
	}

	merkleRoot := o.tapInfo.MerkleRoot
	pIn.TaprootMerkleRoot = merkleRoot[:]

	derivationByPubkey := make(map[string][][32]byte)
	order := make([]string, 0, len(o.tapInfo.Leaves))
	keyBytes := make(map[string][]byte)

	internalKey, err := schnorr.ParsePubKey(o.internalKeyInfo.Pubkey)
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrKeyDerivation, err)
	}

	for _, leaf := range o.tapInfo.Leaves {
		controlBlock := o.tapInfo.ControlBlock(
			leaf, internalKey, o.outputKey.Parity,
		)
		pIn.TaprootLeafScript = append(pIn.TaprootLeafScript, &psbt.TaprootTapLeafScript{
			ControlBlock: controlBlock,
			Script:       leaf.Script,
			LeafVersion:  txscript.BaseLeafVersion,
		})

		for _, placeholder := range leaf.Keys.Placeholders() {
			info, ok := leaf.Keys.Get(placeholder)
			if !ok {
				continue
			}
			k := string(info.Pubkey)
			if _, seen := keyBytes[k]; !seen {
				order = append(order, k)
				keyBytes[k] = info.Pubkey
			}
			derivationByPubkey[k] = append(derivationByPubkey[k], leaf.LeafHash)
		}
	}

	for _, k := range order {
		pIn.TaprootBip32Derivation = append(pIn.TaprootBip32Derivation,
			&psbt.TaprootBip32Derivation{
				XOnlyPubKey: keyBytes[k],
				LeafHashes:  derivationByPubkey[k],
			})
	}

	return nil
}

func addTaprootKeyDerivation(pIn *psbt.PInput, keyInfo *keyexpr.KeyInfo) error {
	if len(keyInfo.MasterFingerprint) != 4 {
		return nil
	}
	path, err := parseBip32Path(keyInfo.Path)
	if err != nil {
		return err
	}
	pIn.TaprootBip32Derivation = append(pIn.TaprootBip32Derivation,
		&psbt.TaprootBip32Derivation{
			XOnlyPubKey:          keyInfo.Pubkey,
			MasterKeyFingerprint: leUint32(keyInfo.MasterFingerprint),
			Bip32Path:            path,
		})
	return nil
}

// FinalizePSBTInput runs GetScriptSatisfaction and writes the resulting
// scriptSig/witness directly into pIn's final fields, clearing the
// now-redundant partial-signature and script bookkeeping fields the way
// psbt.Packet.SanityCheck expects of a finalized input.
func (o *Output) FinalizePSBTInput(pIn *psbt.PInput, signatures map[string][]byte,
	preimages []miniscript.Preimage, constraints *miniscript.TimeConstraints) error {

	sat, err := o.GetScriptSatisfaction(signatures, preimages, constraints)
	if err != nil {
		return err
	}

	pIn.FinalScriptSig = sat.ScriptSig
	serializedWitness, err := serializeWitness(sat.Witness)
	if err != nil {
		return err
	}
	pIn.FinalScriptWitness = serializedWitness

	pIn.PartialSigs = nil
	pIn.SighashType = 0
	pIn.RedeemScript = nil
	pIn.WitnessScript = nil
	pIn.Bip32Derivation = nil
	pIn.TaprootKeySpendSig = nil
	pIn.TaprootScriptSpendSig = nil
	pIn.TaprootLeafScript = nil
	pIn.TaprootBip32Derivation = nil
	pIn.TaprootInternalKey = nil
	pIn.TaprootMerkleRoot = nil

	return nil
}

// serializeWitness encodes items the same way wire.MsgTx encodes a TxIn's
// witness stack: an item-count varint followed by each item length-prefixed.
func serializeWitness(items [][]byte) ([]byte, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(items))); err != nil {
		return nil, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	for _, item := range items {
		if err := wire.WriteVarInt(&buf, 0, uint64(len(item))); err != nil {
			return nil, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
		}
		buf.Write(item)
	}
	return buf.Bytes(), nil
}

func parseBip32Path(path string) ([]uint32, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	out := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'")
		part = strings.TrimSuffix(part, "'")
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid bip32 path component %q",
				keyexpr.ErrParse, part)
		}
		child := uint32(n)
		if hardened {
			child += hdkeychain.HardenedKeyStart
		}
		out = append(out, child)
	}
	return out, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
