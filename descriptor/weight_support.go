package descriptor

import "github.com/lightninglabs/outputdesc/miniscript"

// SignatureRequirement names one signature key a satisfier for this Output
// could draw on, across every branch a miniscript or tapscript could take,
// and whether that key is a Schnorr/BIP340 signature (taproot) or an ECDSA
// one (legacy/segwit v0).
type SignatureRequirement struct {
	Key     string
	Schnorr bool
}

// SignatureRequirements supports weight/vsize estimation under fake
// signatures (spec §4.K): it returns every signature key the satisfier
// could consult, so a caller can supply an upper-bound-sized fake signature
// for each one and let GetScriptSatisfaction's own minimum-weight branch
// selection pick the real answer.
func (o *Output) SignatureRequirements() []SignatureRequirement {
	switch o.Wrapper {
	case WrapperPKH, WrapperWPKH, WrapperSHWPKH:
		return []SignatureRequirement{{Key: "sig"}}

	case WrapperSH:
		return keysFromNode(o.miniNode, false)

	case WrapperWSH, WrapperSHWSH:
		return keysFromNode(o.miniNode, false)

	case WrapperTR:
		if o.opts.TaprootSpendPath == "key" ||
			o.tapInfo == nil || len(o.tapInfo.Leaves) == 0 {

			return []SignatureRequirement{{Key: "sig", Schnorr: true}}
		}
		seen := make(map[string]bool)
		var out []SignatureRequirement
		for _, leaf := range o.tapInfo.Leaves {
			for _, req := range keysFromNode(leaf.Node, true) {
				if seen[req.Key] {
					continue
				}
				seen[req.Key] = true
				out = append(out, req)
			}
		}
		return out

	default:
		return nil
	}
}

// keysFromNode walks n's AST collecting every key placeholder a signature
// could be required for: the single Key field pk/pkh/pk_k/pk_h carry, and
// the Keys list multi/multi_a carry, recursing into Children for
// combinators and wrappers.
func keysFromNode(n *miniscript.Node, schnorrKeys bool) []SignatureRequirement {
	if n == nil {
		return nil
	}
	var out []SignatureRequirement
	if n.Key != "" {
		out = append(out, SignatureRequirement{Key: n.Key, Schnorr: schnorrKeys})
	}
	for _, k := range n.Keys {
		out = append(out, SignatureRequirement{Key: k, Schnorr: schnorrKeys})
	}
	for _, c := range n.Children {
		out = append(out, keysFromNode(c, schnorrKeys)...)
	}
	return out
}
