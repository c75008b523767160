package descriptor

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/outputdesc/keyexpr"
)

// Consensus and standardness limits, spec §4.A. The consensus values match
// Bitcoin Core's script.h/policy.h constants byte for byte.
const (
	// MaxStackSize is the consensus-enforced maximum number of items
	// that may be left on the stack during evaluation.
	MaxStackSize = 1000

	// MaxScriptElementSize is the consensus-enforced maximum size, in
	// bytes, of a single stack element.
	MaxScriptElementSize = 520

	// MaxOpsPerScript is the consensus-enforced maximum number of
	// non-push opcodes in a script.
	MaxOpsPerScript = 201

	// MaxStandardP2WSHScriptSize is the policy limit on the size of a
	// P2WSH witness script.
	MaxStandardP2WSHScriptSize = 3600

	// MaxStandardP2WSHStackItems is the policy limit on the number of
	// witness stack items for a P2WSH spend.
	MaxStandardP2WSHStackItems = 100

	// MaxStandardP2WSHStackItemSize is the policy limit on the size of
	// any single P2WSH witness stack item.
	MaxStandardP2WSHStackItemSize = 80

	// MaxStandardScriptSigSize is the policy limit on the size of a
	// legacy/P2SH scriptSig.
	MaxStandardScriptSigSize = 1650

	// MaxStandardTapscriptStackItemSize is the policy limit on the size
	// of any single tapscript witness stack item.
	MaxStandardTapscriptStackItemSize = 80

	// MaxTapTreeDepth is the maximum depth of a taproot script tree.
	MaxTapTreeDepth = 128
)

// AssertConsensusStackResourceLimits fails if items exceeds the consensus
// stack-size or element-size limits.
func AssertConsensusStackResourceLimits(items [][]byte) error {
	if len(items) > MaxStackSize {
		return fmt.Errorf("%w: stack item count %d exceeds consensus "+
			"limit %d", keyexpr.ErrResourceLimit, len(items), MaxStackSize)
	}
	for _, item := range items {
		if len(item) > MaxScriptElementSize {
			return fmt.Errorf("%w: stack item is too large "+
				"(%d > %d)", keyexpr.ErrResourceLimit, len(item),
				MaxScriptElementSize)
		}
	}
	return nil
}

// AssertWitnessV0SatisfactionResourceLimits enforces the consensus limits
// plus the P2WSH standardness limits on item count and item size. items is
// the actual witness stack (signatures/preimages, never including the
// witness script itself); witnessScript is checked separately against the
// 3600-byte P2WSH script-size policy limit, not the 80-byte item limit.
func AssertWitnessV0SatisfactionResourceLimits(items [][]byte,
	witnessScript []byte) error {

	if err := AssertConsensusStackResourceLimits(items); err != nil {
		return err
	}
	if len(items) > MaxStandardP2WSHStackItems {
		return fmt.Errorf("%w: witness stack has %d items, exceeds "+
			"standard policy limit %d", keyexpr.ErrResourceLimit,
			len(items), MaxStandardP2WSHStackItems)
	}
	for _, item := range items {
		if len(item) > MaxStandardP2WSHStackItemSize {
			return fmt.Errorf("%w: witness stack item exceeds "+
				"standard policy (%d > %d)", keyexpr.ErrResourceLimit,
				len(item), MaxStandardP2WSHStackItemSize)
		}
	}
	if len(witnessScript) > MaxStandardP2WSHScriptSize {
		return fmt.Errorf("%w: witness script is too large "+
			"(%d > %d)", keyexpr.ErrResourceLimit, len(witnessScript),
			MaxStandardP2WSHScriptSize)
	}
	return nil
}

// AssertTaprootScriptPathSatisfactionResourceLimits enforces the consensus
// limits plus the tapscript standardness item-size limit. items is the
// actual witness stack (signatures/preimages); the tapscript leaf and
// control block are never subject to the 80-byte item-size policy limit and
// so are excluded entirely (their sizes are already bounded elsewhere: the
// leaf script by the general script-size consensus limit, the control block
// by MaxTapTreeDepth).
func AssertTaprootScriptPathSatisfactionResourceLimits(items [][]byte) error {
	if err := AssertConsensusStackResourceLimits(items); err != nil {
		return err
	}
	for _, item := range items {
		if len(item) > MaxStandardTapscriptStackItemSize {
			return fmt.Errorf("%w: witness stack item exceeds "+
				"standard policy (%d > %d)", keyexpr.ErrResourceLimit,
				len(item), MaxStandardTapscriptStackItemSize)
		}
	}
	return nil
}

// AssertP2SHScriptSigStandardSize fails if scriptSig exceeds the standard
// policy size limit.
func AssertP2SHScriptSigStandardSize(scriptSig []byte) error {
	if len(scriptSig) > MaxStandardScriptSigSize {
		return fmt.Errorf("%w: scriptSig is too large (%d > %d)",
			keyexpr.ErrResourceLimit, len(scriptSig),
			MaxStandardScriptSigSize)
	}
	return nil
}

// AssertScriptNonPushOnlyOpsLimit fails if the number of non-push opcodes
// in script exceeds the consensus limit.
func AssertScriptNonPushOnlyOpsLimit(script []byte) error {
	count, err := countNonPushOnlyOps(script)
	if err != nil {
		return err
	}
	if count > MaxOpsPerScript {
		return fmt.Errorf("%w: script has %d non-push opcodes, "+
			"exceeds consensus limit %d", keyexpr.ErrResourceLimit, count,
			MaxOpsPerScript)
	}
	return nil
}

// AssertTapTreeDepth fails if depth exceeds MaxTapTreeDepth.
func AssertTapTreeDepth(depth int) error {
	if depth > MaxTapTreeDepth {
		return fmt.Errorf("%w: taproot tree depth is too large",
			keyexpr.ErrResourceLimit)
	}
	return nil
}

// countNonPushOnlyOps walks script using txscript's tokenizer, counting
// every opcode above OP_16 (i.e. every opcode that is not a data push or a
// small-integer push), which is what counts against the 201-opcode
// consensus limit.
func countNonPushOnlyOps(script []byte) (int, error) {
	const op16 = txscript.OP_16

	count := 0
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if tokenizer.Opcode() > op16 {
			count++
		}
	}
	if err := tokenizer.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	return count, nil
}
