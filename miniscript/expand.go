package miniscript

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/keyexpr"
)

// hashFragmentNames are the fragments whose sole operand is a hex digest,
// never a key expression; the expander must skip over these so it never
// mistakes a 64-hex-char hash for a key.
var hashFragmentNames = map[string]bool{
	"sha256": true, "hash256": true, "ripemd160": true, "hash160": true,
}

// ExpandResult is the output of Expand: the descriptor text with every key
// expression replaced by a @N placeholder, and the placeholder mapping.
type ExpandResult struct {
	Expanded string
	Keys     *keyexpr.ExpansionMap
}

// Expand implements the miniscript expander: it scans text (the inner body
// of a sh/wsh/tr wrapper) for key expressions per the key-expression
// grammar and replaces each unique occurrence with a @N placeholder,
// assigned in textual order of first occurrence. Equal key expressions
// (identical text) share one placeholder. Hash-fragment hex operands are
// never matched as key expressions: the scanner is AST-directed, walking
// fragment call boundaries rather than running a regex over the raw text,
// so it always knows when it is looking at a hash fragment's positional
// hex argument versus a key-expression argument.
func Expand(text string, network *chaincfg.Params, index *uint32,
	taproot bool) (*ExpandResult, error) {

	km := keyexpr.NewExpansionMap()
	out, err := expandWalk(text, km, network, index, taproot)
	if err != nil {
		return nil, err
	}
	return &ExpandResult{Expanded: out, Keys: km}, nil
}

// expandWalk recursively walks text treating it as a nested sequence of
// fragment(arg, arg, ...) calls and wrapper prefixes, substituting key
// expressions found in key-bearing argument positions.
func expandWalk(text string, km *keyexpr.ExpansionMap,
	network *chaincfg.Params, index *uint32, taproot bool) (string, error) {

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty miniscript expression",
			keyexpr.ErrParse)
	}

	if wrappers, rest, ok := splitColonWrapper(text); ok {
		inner, err := expandWalk(rest, km, network, index, taproot)
		if err != nil {
			return "", err
		}
		return wrappers + ":" + inner, nil
	}

	openIdx := strings.IndexByte(text, '(')
	if openIdx < 0 {
		return "", fmt.Errorf("%w: expected fragment call in %q",
			keyexpr.ErrParse, text)
	}
	if !strings.HasSuffix(text, ")") {
		return "", fmt.Errorf("%w: unterminated fragment in %q",
			keyexpr.ErrParse, text)
	}
	name := text[:openIdx]
	body := text[openIdx+1 : len(text)-1]
	args := splitTopLevelArgs(body)

	// Hash fragments carry a positional hex digest, never a key
	// expression; leave the argument untouched.
	if hashFragmentNames[name] {
		return name + "(" + strings.TrimSpace(body) + ")", nil
	}

	switch name {
	case "pk", "pk_k", "pkh", "pk_h":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: %s needs one argument in "+
				"%q", keyexpr.ErrParse, name, text)
		}
		placeholder, err := substituteKey(
			strings.TrimSpace(args[0]), km, network, index, taproot,
		)
		if err != nil {
			return "", err
		}
		return name + "(" + placeholder + ")", nil

	case "multi", "multi_a":
		if len(args) < 2 {
			return "", fmt.Errorf("%w: %s needs a threshold and "+
				"at least one key in %q", keyexpr.ErrParse,
				name, text)
		}
		out := make([]string, len(args))
		out[0] = strings.TrimSpace(args[0])
		for i, a := range args[1:] {
			placeholder, err := substituteKey(
				strings.TrimSpace(a), km, network, index, taproot,
			)
			if err != nil {
				return "", err
			}
			out[i+1] = placeholder
		}
		return name + "(" + strings.Join(out, ",") + ")", nil

	case "older", "after":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: %s needs one argument in "+
				"%q", keyexpr.ErrParse, name, text)
		}
		return name + "(" + strings.TrimSpace(args[0]) + ")", nil

	case "andor", "and_v", "and_b", "or_b", "or_c", "or_d", "or_i":
		parts := make([]string, len(args))
		for i, a := range args {
			sub, err := expandWalk(
				strings.TrimSpace(a), km, network, index, taproot,
			)
			if err != nil {
				return "", err
			}
			parts[i] = sub
		}
		return name + "(" + strings.Join(parts, ",") + ")", nil

	case "thresh":
		if len(args) < 2 {
			return "", fmt.Errorf("%w: thresh needs a threshold "+
				"and at least one sub-expression in %q",
				keyexpr.ErrParse, text)
		}
		parts := make([]string, len(args))
		parts[0] = strings.TrimSpace(args[0])
		for i, a := range args[1:] {
			sub, err := expandWalk(
				strings.TrimSpace(a), km, network, index, taproot,
			)
			if err != nil {
				return "", err
			}
			parts[i+1] = sub
		}
		return name + "(" + strings.Join(parts, ",") + ")", nil

	default:
		return "", fmt.Errorf("%w: unknown fragment %q in %q",
			keyexpr.ErrParse, name, text)
	}
}

// substituteKey resolves a key expression and returns its placeholder,
// minting a fresh one if this exact key-expression text hasn't been seen
// before in this expansion.
func substituteKey(keyExpr string, km *keyexpr.ExpansionMap,
	network *chaincfg.Params, index *uint32, taproot bool) (string, error) {

	if existing, ok := km.Lookup(keyExpr); ok {
		return existing, nil
	}

	info, err := keyexpr.ResolveKeyExpression(
		keyExpr, network, index, taproot,
	)
	if err != nil {
		return "", err
	}
	return km.Add(keyExpr, info), nil
}

// splitColonWrapper mirrors parse.go's colonWrapperPrefix, returning
// ok=false when text has no wrapper prefix. It does not check the wrapper
// letters; Parse rejects unknown ones later.
func splitColonWrapper(text string) (wrappers, rest string, ok bool) {
	w, r := colonWrapperPrefix(text)
	if w == "" {
		return "", text, false
	}
	return w, r, true
}
