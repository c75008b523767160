package descriptor

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
)

// maxMultisigKeys is the spec §4.I N ≤ 20 limit. Only compileSortedMulti
// enforces it, for sortedmulti/sortedmulti_a; miniscript multi/multi_a are
// not checked against it.
const maxMultisigKeys = 20

// isSortedMultiCall reports whether text is a top-level sortedmulti(...) or
// sortedmulti_a(...) call, per spec §4.I: sortedmulti is handled specially
// (key-sort then multi/multi_a emission) rather than going through the
// generic miniscript expander, which has no notion of it.
func isSortedMultiCall(text string) bool {
	return strings.HasPrefix(text, "sortedmulti(") ||
		strings.HasPrefix(text, "sortedmulti_a(")
}

// compileSortedMulti resolves sortedmulti(M,k1,...,kN)/sortedmulti_a(...),
// sorts the resolved keys by binary pubkey ascending, and compiles the
// resulting multi/multi_a script directly (bypassing miniscript.Expand,
// since the keys are already resolved here for sorting purposes).
func compileSortedMulti(text string, network *chaincfg.Params, index *uint32,
	taproot bool) (*miniscript.CompileResult, *keyexpr.ExpansionMap, error) {

	name, args, err := splitFuncCall(text)
	if err != nil {
		return nil, nil, err
	}
	isA := name == "sortedmulti_a"

	parts := splitTopLevelArgsDescriptor(args)
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("%w: %s needs a threshold and at "+
			"least one key", keyexpr.ErrParse, name)
	}

	m, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid threshold in %q",
			keyexpr.ErrParse, text)
	}
	keyExprs := parts[1:]
	if len(keyExprs) > maxMultisigKeys {
		return nil, nil, fmt.Errorf("%w: %s has %d keys, exceeds the "+
			"limit of %d", keyexpr.ErrPolicy, name, len(keyExprs),
			maxMultisigKeys)
	}
	if m < 1 || m > len(keyExprs) {
		return nil, nil, fmt.Errorf("%w: threshold %d is not between "+
			"1 and %d", keyexpr.ErrPolicy, m, len(keyExprs))
	}

	type resolved struct {
		expr string
		info *keyexpr.KeyInfo
	}
	resolvedKeys := make([]resolved, len(keyExprs))
	for i, expr := range keyExprs {
		expr = strings.TrimSpace(expr)
		info, err := keyexpr.ResolveKeyExpression(expr, network, index, taproot)
		if err != nil {
			return nil, nil, err
		}
		resolvedKeys[i] = resolved{expr: expr, info: info}
	}

	sort.Slice(resolvedKeys, func(i, j int) bool {
		return bytes.Compare(
			resolvedKeys[i].info.Pubkey, resolvedKeys[j].info.Pubkey,
		) < 0
	})

	km := keyexpr.NewExpansionMap()
	placeholders := make([]string, len(resolvedKeys))
	for i, rk := range resolvedKeys {
		if p, ok := km.Lookup(rk.expr); ok {
			placeholders[i] = p
			continue
		}
		placeholders[i] = km.Add(rk.expr, rk.info)
	}

	fragment := "multi"
	if isA {
		fragment = "multi_a"
	}
	expandedText := fmt.Sprintf("%s(%d,%s)", fragment, m,
		strings.Join(placeholders, ","))

	node, err := miniscript.Parse(expandedText)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := miniscript.Compile(node, km, taproot)
	if err != nil {
		return nil, nil, err
	}
	if !compiled.Sane {
		return nil, nil, fmt.Errorf("%w: %s is not sane as a "+
			"top-level script", keyexpr.ErrPolicy, name)
	}
	return compiled, km, nil
}
