// Package weight implements spec component K: converting a satisfied
// Output's scriptSig/witness into the Bitcoin Core weight/vsize formula,
// either from real signatures or from upper-bound fake ones.
package weight

import (
	"fmt"

	"github.com/lightninglabs/outputdesc/descriptor"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
)

// DANGEROUSLY_USE_FAKE_SIGNATURES is the sentinel signatures map a caller
// passes to Estimate to size every required signature at its upper bound
// instead of running a real satisfaction. The resulting ScriptSig/Witness
// bytes are never valid and must never be broadcast; the name is loud on
// purpose.
const DANGEROUSLY_USE_FAKE_SIGNATURES = "DANGEROUSLY_USE_FAKE_SIGNATURES"

// TaprootSighashMode selects the upper-bound Schnorr signature length used
// under fake-signature sizing: BIP341 defines a 64-byte signature for
// SIGHASH_DEFAULT and a 65-byte one (signature plus explicit sighash byte)
// for any other sighash type.
type TaprootSighashMode int

const (
	SighashDefault TaprootSighashMode = iota
	SighashExplicit
)

const (
	// fakeECDSASigLen is DER's worst-case low-S signature length: 7 bytes
	// of DER header and sighash byte, a 33-byte R (32 bytes plus a
	// possible leading 0x00 padding byte) and a 32-byte low-S S.
	fakeECDSASigLen = 72

	fakeSchnorrSigLenDefault  = 64
	fakeSchnorrSigLenExplicit = 65

	// outpointSequenceBytes is the fixed per-input overhead outside the
	// scriptSig/witness bytes themselves: a 36-byte outpoint, a 4-byte
	// sequence number, and a 1-byte scriptSig length prefix (the size for
	// any scriptSig under 0xfd bytes). The standardness limit in
	// AssertP2SHScriptSigStandardSize allows longer scriptSigs, whose
	// 3-byte prefix resultFromSatisfaction counts in full.
	outpointSequenceBytes = 41
)

// Result is a per-input weight/vsize estimate.
type Result struct {
	ScriptSigLen int
	WitnessLen   int
	WeightUnits  int
	VSize        int
}

// Estimate implements spec component K. signatures is either a map of real
// signatures keyed the way GetScriptSatisfaction expects, or the single
// entry {DANGEROUSLY_USE_FAKE_SIGNATURES: nil}, which asks Estimate to
// build its own upper-bound-sized fake signature for every key the
// satisfier could consult and let its minimum-weight branch selection run
// as normal.
func Estimate(out *descriptor.Output, signatures map[string][]byte,
	preimages []miniscript.Preimage, constraints *miniscript.TimeConstraints,
	sighashMode TaprootSighashMode) (*Result, error) {

	if _, useFake := signatures[DANGEROUSLY_USE_FAKE_SIGNATURES]; useFake {
		fake, err := fakeSignatures(out, sighashMode)
		if err != nil {
			return nil, err
		}
		signatures = fake
	}

	sat, err := out.GetScriptSatisfaction(signatures, preimages, constraints)
	if err != nil {
		return nil, err
	}

	return resultFromSatisfaction(sat), nil
}

func fakeSignatures(out *descriptor.Output,
	sighashMode TaprootSighashMode) (map[string][]byte, error) {

	reqs := out.SignatureRequirements()
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: wrapper has no signature "+
			"requirements to fake", keyexpr.ErrSatisfaction)
	}

	schnorrLen := fakeSchnorrSigLenDefault
	if sighashMode == SighashExplicit {
		schnorrLen = fakeSchnorrSigLenExplicit
	}

	out2 := make(map[string][]byte, len(reqs))
	for _, req := range reqs {
		if req.Schnorr {
			out2[req.Key] = make([]byte, schnorrLen)
		} else {
			out2[req.Key] = make([]byte, fakeECDSASigLen)
		}
	}
	return out2, nil
}

func resultFromSatisfaction(sat *descriptor.Satisfaction) *Result {
	scriptSigLen := len(sat.ScriptSig)

	witnessLen := 0
	if len(sat.Witness) > 0 {
		witnessLen += varIntSize(uint64(len(sat.Witness)))
		for _, item := range sat.Witness {
			witnessLen += varIntSize(uint64(len(item))) + len(item)
		}
	}

	overhead := outpointSequenceBytes - 1 + varIntSize(uint64(scriptSigLen))
	weightUnits := overhead*4 + scriptSigLen*4 + witnessLen
	vsize := (weightUnits + 3) / 4

	return &Result{
		ScriptSigLen: scriptSigLen,
		WitnessLen:   witnessLen,
		WeightUnits:  weightUnits,
		VSize:        vsize,
	}
}

// varIntSize returns the number of bytes a Bitcoin compact-size integer
// encoding of n occupies.
func varIntSize(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
