package descriptor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
)

// Satisfaction is the result of GetScriptSatisfaction: the scriptSig bytes
// (empty for pure-segwit spends), the witness stack, and any time-lock the
// chosen branch assumes.
type Satisfaction struct {
	ScriptSig []byte
	Witness   [][]byte
	NLockTime *uint32
	NSequence *uint32
}

// GetScriptSatisfaction implements spec §4.I: given available signatures
// (keyed by the @N placeholder the expansion map assigned to each key of a
// miniscript-backed wrapper; for pkh/wpkh/sh(wpkh) and a taproot key-path
// spend the map's single entry is used, whatever its key), preimages and
// optional time constraints, it assembles the scriptSig/witness fields
// needed to spend this Output, enforcing the §4.A resource limits that
// apply to its wrapper. pk(), combo(), addr() and raw() outputs are not
// satisfied here and return ErrSatisfaction.
func (o *Output) GetScriptSatisfaction(signatures map[string][]byte,
	preimages []miniscript.Preimage,
	constraints *miniscript.TimeConstraints) (*Satisfaction, error) {

	switch o.Wrapper {
	case WrapperPKH:
		return o.satisfyP2PKH(signatures)
	case WrapperWPKH:
		return o.satisfyP2WPKH(signatures)
	case WrapperSHWPKH:
		return o.satisfyShWPKH(signatures)
	case WrapperSH:
		return o.satisfyScriptHashMiniscript(
			signatures, preimages, constraints, o.redeemScript, true,
		)
	case WrapperWSH:
		return o.satisfyWitnessMiniscript(signatures, preimages, constraints)
	case WrapperSHWSH:
		return o.satisfyShWSH(signatures, preimages, constraints)
	case WrapperTR:
		return o.satisfyTaproot(signatures, preimages, constraints)
	default:
		return nil, fmt.Errorf("%w: wrapper does not support scripted "+
			"satisfaction", keyexpr.ErrSatisfaction)
	}
}

func singleSignature(signatures map[string][]byte) ([]byte, error) {
	for _, sig := range signatures {
		return sig, nil
	}
	return nil, fmt.Errorf("%w: no signature supplied", keyexpr.ErrSatisfaction)
}

func (o *Output) satisfyP2PKH(signatures map[string][]byte) (*Satisfaction, error) {
	sig, err := singleSignature(signatures)
	if err != nil {
		return nil, err
	}
	scriptSig, err := txscript.NewScriptBuilder().
		AddData(sig).AddData(o.keyInfo.Pubkey).Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	return &Satisfaction{ScriptSig: scriptSig}, nil
}

func (o *Output) satisfyP2WPKH(signatures map[string][]byte) (*Satisfaction, error) {
	sig, err := singleSignature(signatures)
	if err != nil {
		return nil, err
	}
	witness := [][]byte{sig, o.keyInfo.Pubkey}
	if err := AssertWitnessV0SatisfactionResourceLimits(witness, nil); err != nil {
		return nil, err
	}
	return &Satisfaction{Witness: witness}, nil
}

func (o *Output) satisfyShWPKH(signatures map[string][]byte) (*Satisfaction, error) {
	sat, err := o.satisfyP2WPKH(signatures)
	if err != nil {
		return nil, err
	}
	scriptSig, err := txscript.NewScriptBuilder().
		AddData(o.redeemScript).Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	sat.ScriptSig = scriptSig
	return sat, nil
}

// satisfyScriptHashMiniscript runs the miniscript satisfier against a
// generic sh(X) redeem script and packs the result as a legacy scriptSig:
// the decompiled satisfaction pushes followed by the redeem script push.
func (o *Output) satisfyScriptHashMiniscript(signatures map[string][]byte,
	preimages []miniscript.Preimage, constraints *miniscript.TimeConstraints,
	redeemScript []byte, wrapRedeem bool) (*Satisfaction, error) {

	sat, err := miniscript.Satisfy(
		o.miniNode, o.expansion, signatures, preimages, constraints,
	)
	if err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder()
	for _, item := range sat.Items {
		builder.AddData(item)
	}
	if wrapRedeem {
		builder.AddData(redeemScript)
	}
	scriptSig, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	if err := AssertP2SHScriptSigStandardSize(scriptSig); err != nil {
		return nil, err
	}

	return &Satisfaction{
		ScriptSig: scriptSig,
		NLockTime: sat.NLockTime,
		NSequence: sat.NSequence,
	}, nil
}

func (o *Output) satisfyWitnessMiniscript(signatures map[string][]byte,
	preimages []miniscript.Preimage,
	constraints *miniscript.TimeConstraints) (*Satisfaction, error) {

	sat, err := miniscript.Satisfy(
		o.miniNode, o.expansion, signatures, preimages, constraints,
	)
	if err != nil {
		return nil, err
	}

	if err := AssertWitnessV0SatisfactionResourceLimits(
		sat.Items, o.witnessScript,
	); err != nil {
		return nil, err
	}
	witness := append(append([][]byte{}, sat.Items...), o.witnessScript)

	return &Satisfaction{
		Witness:   witness,
		NLockTime: sat.NLockTime,
		NSequence: sat.NSequence,
	}, nil
}

func (o *Output) satisfyShWSH(signatures map[string][]byte,
	preimages []miniscript.Preimage,
	constraints *miniscript.TimeConstraints) (*Satisfaction, error) {

	sat, err := o.satisfyWitnessMiniscript(signatures, preimages, constraints)
	if err != nil {
		return nil, err
	}
	scriptSig, err := txscript.NewScriptBuilder().
		AddData(o.redeemScript).Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	sat.ScriptSig = scriptSig
	return sat, nil
}

func (o *Output) satisfyTaproot(signatures map[string][]byte,
	preimages []miniscript.Preimage,
	constraints *miniscript.TimeConstraints) (*Satisfaction, error) {

	if o.opts.TaprootSpendPath == "key" || (o.tapInfo == nil || len(o.tapInfo.Leaves) == 0) {
		sig, err := singleSignature(signatures)
		if err != nil {
			return nil, err
		}
		return &Satisfaction{Witness: [][]byte{sig}}, nil
	}

	internalKey, err := schnorr.ParsePubKey(o.internalKeyInfo.Pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyexpr.ErrKeyDerivation, err)
	}
	result, err := o.tapInfo.SatisfyTapTree(
		o.opts.TapLeaf, internalKey, o.outputKey.Parity,
		signatures, preimages, constraints,
	)
	if err != nil {
		return nil, err
	}

	if err := AssertTaprootScriptPathSatisfactionResourceLimits(
		result.Items,
	); err != nil {
		return nil, err
	}
	witness := append(append([][]byte{}, result.Items...),
		result.Leaf.Script, result.ControlBlock)

	return &Satisfaction{
		Witness:   witness,
		NLockTime: result.NLockTime,
		NSequence: result.NSequence,
	}, nil
}
